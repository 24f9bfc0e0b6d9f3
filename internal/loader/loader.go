package loader

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"ledger-mirror/internal/accounts"
	"ledger-mirror/internal/metrics"
	"ledger-mirror/internal/pkg/config"
	"ledger-mirror/internal/pkg/log"
	"ledger-mirror/internal/pkg/remote"
	"ledger-mirror/internal/pkg/util"
	solanaUtil "ledger-mirror/internal/pkg/util/solana"
)

var ErrProgramListingUnsupported = errors.New("fetcher cannot list program accounts")

// Stat describes one completed Load call.
type Stat struct {
	Requested  int
	Loaded     int
	Removed    int
	Stale      int
	Unresolved int
	Batches    int
	Retries    int
	Elapsed    time.Duration
}

// Loader bulk-fetches accounts into the cache.
type Loader struct {
	cache   *accounts.Cache
	fetcher remote.AccountFetcher
	cfg     config.LoaderConfig
	clock   clock.Clock
	onStat  func(Stat)
}

type Option func(*Loader)

func WithClock(c clock.Clock) Option {
	return func(l *Loader) {
		l.clock = c
	}
}

// WithStatSink registers fn to receive a Stat after every Load.
func WithStatSink(fn func(Stat)) Option {
	return func(l *Loader) {
		l.onStat = fn
	}
}

func New(cache *accounts.Cache, fetcher remote.AccountFetcher, cfg config.LoaderConfig, opts ...Option) *Loader {
	if cfg.BatchSize <= 0 || cfg.BatchSize > solanaUtil.MaxMultipleAccounts {
		cfg.BatchSize = solanaUtil.MaxMultipleAccounts
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	l := &Loader{
		cache:   cache,
		fetcher: fetcher,
		cfg:     cfg,
		clock:   clock.New(),
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

type batchResult struct {
	loaded, removed, stale int
}

// Load fetches keys in batches and applies the results to the cache. Only
// failed batches are retried. Keys that stay unresolved after the last retry
// are returned in Result.Unresolved together with a *PartialBatchError.
func (l *Loader) Load(ctx context.Context, keys []accounts.Key) (res Result, err error) {
	start := l.clock.Now()
	keys = dedupe(keys)
	res.Requested = len(keys)

	pending := partition(keys, l.cfg.BatchSize)
	batches := len(pending)

	var (
		lastErr error
		retries int
	)
	for round := 0; len(pending) != 0; round++ {
		if round > l.cfg.RetryLimit {
			break
		}
		if round > 0 {
			retries++
			if err = util.Wait(ctx, l.clock, l.cfg.RetryDelay); err != nil {
				lastErr = err
				break
			}
			log.Logger.Loader.Debugf("retry %d: %d batches", round, len(pending))
		}

		var (
			failed []batch
			mx     sync.Mutex
			g      errgroup.Group
		)
		g.SetLimit(l.cfg.Concurrency)

		for _, b := range pending {
			b := b
			g.Go(func() error {
				br, err := l.fetchBatch(ctx, b)

				mx.Lock()
				defer mx.Unlock()
				if err != nil {
					failed = append(failed, b)
					lastErr = err
					return nil
				}
				res.Loaded += br.loaded
				res.Removed += br.removed
				res.Stale += br.stale

				return nil
			})
		}
		_ = g.Wait()

		pending = failed
		if ctx.Err() != nil {
			break
		}
	}

	for _, b := range pending {
		res.Unresolved = append(res.Unresolved, b...)
	}

	l.report(res, batches, retries, l.clock.Since(start))

	if len(res.Unresolved) != 0 {
		return res, &PartialBatchError{Unresolved: res.Unresolved, Err: lastErr}
	}

	return res, nil
}

func (l *Loader) fetchBatch(ctx context.Context, b batch) (br batchResult, err error) {
	fetchCtx := ctx
	if l.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, l.cfg.FetchTimeout)
		defer cancel()
	}

	start := l.clock.Now()
	fetched, err := l.fetcher.FetchAccounts(fetchCtx, b)
	metrics.Metrics.Loader.FetchDuration.Observe(l.clock.Since(start).Seconds())
	if err != nil {
		metrics.Metrics.Loader.Batches.WithLabelValues("failed").Inc()
		log.Logger.Loader.Warnf("fetch %d accounts: %s", len(b), err)
		return br, errors.Wrapf(err, "fetch %d accounts", len(b))
	}
	metrics.Metrics.Loader.Batches.WithLabelValues("ok").Inc()

	var slot uint64
	seen := make(map[accounts.Key]struct{}, len(fetched))
	for _, acc := range fetched {
		if acc.Slot > slot {
			slot = acc.Slot
		}
		seen[acc.Key] = struct{}{}

		if !acc.Exists {
			if l.cache.RemoveAt(acc.Key, acc.Slot) {
				br.removed++
			}
			continue
		}

		br.loaded++
		if !l.cache.Upsert(acc.Key, acc.Data, acc.Slot) {
			br.stale++
		}
	}

	// keys missing from the response do not exist at the response slot
	for _, k := range b {
		if _, ok := seen[k]; ok {
			continue
		}
		if l.cache.RemoveAt(k, slot) {
			br.removed++
		}
	}

	return br, nil
}

// LoadProgram fetches every account owned by program that matches all
// filters and applies them to the cache. The whole listing is retried up to
// RetryLimit times.
func (l *Loader) LoadProgram(ctx context.Context, program solana.PublicKey, filters ...rpc.RPCFilter) (res Result, err error) {
	pf, ok := l.fetcher.(remote.ProgramAccountFetcher)
	if !ok {
		return res, ErrProgramListingUnsupported
	}

	start := l.clock.Now()
	var (
		fetched []remote.FetchedAccount
		retries int
	)
	for round := 0; ; round++ {
		if round > 0 {
			retries++
			if err = util.Wait(ctx, l.clock, l.cfg.RetryDelay); err != nil {
				break
			}
		}

		fetched, err = l.fetchProgram(ctx, pf, program, filters)
		if err == nil || ctx.Err() != nil || round >= l.cfg.RetryLimit {
			break
		}
	}
	if err != nil {
		l.report(res, 1, retries, l.clock.Since(start))
		return res, errors.Wrapf(err, "load program %s", program)
	}

	for _, acc := range fetched {
		if !acc.Exists {
			continue
		}
		res.Keys = append(res.Keys, acc.Key)
		res.Loaded++
		if !l.cache.Upsert(acc.Key, acc.Data, acc.Slot) {
			res.Stale++
		}
	}
	res.Requested = len(res.Keys)
	l.report(res, 1, retries, l.clock.Since(start))

	return res, nil
}

// fetchProgram runs without FetchTimeout: a program listing is one request
// however many accounts it returns.
func (l *Loader) fetchProgram(ctx context.Context, pf remote.ProgramAccountFetcher, program solana.PublicKey, filters []rpc.RPCFilter) ([]remote.FetchedAccount, error) {
	start := l.clock.Now()
	fetched, err := pf.FetchProgramAccounts(ctx, program, filters)
	metrics.Metrics.Loader.FetchDuration.Observe(l.clock.Since(start).Seconds())
	if err != nil {
		metrics.Metrics.Loader.Batches.WithLabelValues("failed").Inc()
		log.Logger.Loader.Warnf("fetch accounts of %s: %s", program, err)
		return nil, err
	}
	metrics.Metrics.Loader.Batches.WithLabelValues("ok").Inc()

	return fetched, nil
}

func (l *Loader) report(res Result, batches, retries int, elapsed time.Duration) {
	if len(res.Unresolved) != 0 {
		metrics.Metrics.Loader.Unresolved.Add(float64(len(res.Unresolved)))
		log.Logger.Loader.Errorf("%d of %d accounts unresolved", len(res.Unresolved), res.Requested)
	}
	log.Logger.Loader.Debugf("loaded %d removed %d stale %d of %d in %s", res.Loaded, res.Removed, res.Stale, res.Requested, elapsed)

	if l.onStat == nil {
		return
	}
	l.onStat(Stat{
		Requested:  res.Requested,
		Loaded:     res.Loaded,
		Removed:    res.Removed,
		Stale:      res.Stale,
		Unresolved: len(res.Unresolved),
		Batches:    batches,
		Retries:    retries,
		Elapsed:    elapsed,
	})
}
