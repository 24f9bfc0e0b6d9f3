package submitter

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/patrickmn/go-cache"

	"ledger-mirror/internal/metrics"
	"ledger-mirror/internal/pkg/config"
	"ledger-mirror/internal/pkg/log"
	"ledger-mirror/internal/pkg/remote"
	"ledger-mirror/internal/txn"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	cleanupInterval     = time.Minute
)

// inFlight marks a message hash whose SubmitAndConfirm call has not returned.
type inFlight struct{}

// Submitter signs, submits and confirms pending transactions. Calls run on
// the caller's goroutine; the Submitter itself is safe for concurrent use.
type Submitter struct {
	signer    remote.Signer
	sender    remote.TransactionSender
	status    remote.StatusReader
	blockhash remote.BlockhashSource
	cfg       config.SubmitterConfig
	finality  int
	clock     clock.Clock
	onEvent   func(Event)
	onOutcome func(Outcome)

	seen *cache.Cache
}

type Option func(*Submitter)

func WithClock(c clock.Clock) Option {
	return func(s *Submitter) {
		s.clock = c
	}
}

// WithTransitionHook registers fn to observe every state transition. fn runs
// on the caller's goroutine.
func WithTransitionHook(fn func(Event)) Option {
	return func(s *Submitter) {
		s.onEvent = fn
	}
}

// WithOutcomeSink registers fn to receive every terminal result.
func WithOutcomeSink(fn func(Outcome)) Option {
	return func(s *Submitter) {
		s.onOutcome = fn
	}
}

func New(signer remote.Signer, sender remote.TransactionSender, status remote.StatusReader, blockhash remote.BlockhashSource, cfg config.SubmitterConfig, opts ...Option) *Submitter {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	s := &Submitter{
		signer:    signer,
		sender:    sender,
		status:    status,
		blockhash: blockhash,
		cfg:       cfg,
		finality:  remote.FinalityRank(cfg.Finality),
		clock:     clock.New(),
		seen:      cache.New(cfg.DedupeTTL, cleanupInterval),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SubmitAndConfirm drives pt to a terminal state. It advances
// pt.AttemptCount on every submission and may replace pt.RecentBlockhash
// when it expires between attempts.
func (s *Submitter) SubmitAndConfirm(ctx context.Context, pt *txn.PendingTransaction) Result {
	started := s.clock.Now()

	hash, err := pt.MessageHash()
	if err != nil {
		res := Result{Status: StateRejected, Reason: err, Attempts: pt.AttemptCount}
		s.finish(Outcome{Result: res, Started: started})
		return res
	}

	key := solana.Hash(hash).String()
	if res, ok := s.reserve(key); !ok {
		log.Logger.Submitter.Debugf("message %s: %s result returned without resubmitting", key, res.Status)
		return res
	}

	c := &call{s: s, pt: pt, hash: hash}
	res := c.run(ctx)
	s.release(key, res)

	s.finish(Outcome{MessageHash: hash, Result: res, Started: started, Elapsed: s.clock.Since(started)})
	if res.Status == StateConfirmed {
		metrics.Metrics.Submitter.ConfirmDuration.Observe(c.confirmElapsed().Seconds())
	}

	return res
}

// reserve marks key in flight. When it is already known, the remembered
// result or a duplicate rejection is returned instead.
func (s *Submitter) reserve(key string) (Result, bool) {
	if err := s.seen.Add(key, inFlight{}, cache.NoExpiration); err == nil {
		return Result{}, true
	}

	if v, found := s.seen.Get(key); found {
		if res, ok := v.(Result); ok {
			return res, false
		}
	}

	return Result{Status: StateRejected, Reason: ErrDuplicateSubmission}, false
}

func (s *Submitter) release(key string, res Result) {
	if res.Status == StateRejected || s.cfg.DedupeTTL <= 0 {
		s.seen.Delete(key)
		return
	}

	s.seen.Set(key, res, s.cfg.DedupeTTL)
}

func (s *Submitter) finish(o Outcome) {
	res := o.Result
	metrics.Metrics.Submitter.Outcomes.WithLabelValues(res.Status.String()).Inc()
	metrics.Metrics.Submitter.Attempts.Observe(float64(res.Attempts))

	switch res.Status {
	case StateConfirmed:
		log.Logger.Submitter.Infof("tx %s confirmed at slot %d after %d attempts", res.Signature, res.Slot, res.Attempts)
	case StateTimedOut:
		log.Logger.Submitter.Warnf("tx %s timed out after %d attempts: %v", res.Signature, res.Attempts, res.Reason)
	default:
		log.Logger.Submitter.Warnf("tx %s rejected after %d attempts: %s", res.Signature, res.Attempts, res.Reason)
	}

	if s.onOutcome != nil {
		s.onOutcome(o)
	}
}
