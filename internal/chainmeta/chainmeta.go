package chainmeta

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"ledger-mirror/internal/metrics"
	"ledger-mirror/internal/pkg/config"
	"ledger-mirror/internal/pkg/log"
	"ledger-mirror/internal/pkg/remote"
)

// recentFeeSamples is how many of the most recent slots are averaged.
const recentFeeSamples = 10

const globalGroup = ""

// Service keeps the latest blockhash and recent priority fees warm so that
// transaction building does not wait on the network.
type Service struct {
	reader remote.ChainReader
	cfg    config.ChainMetaConfig
	clock  clock.Clock

	mx          sync.RWMutex
	blockhash   solana.Hash
	fetchedAt   time.Time
	feeAccounts map[string][]solana.PublicKey
	fees        map[string]uint64
}

func New(reader remote.ChainReader, cfg config.ChainMetaConfig, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.New()
	}

	s := &Service{
		reader:      reader,
		cfg:         cfg,
		clock:       clk,
		feeAccounts: make(map[string][]solana.PublicKey),
		fees:        make(map[string]uint64),
	}
	if cfg.PriorityFees {
		s.feeAccounts[globalGroup] = nil
	}
	for _, g := range cfg.FeeGroups {
		s.feeAccounts[g.Name] = g.PublicKeys()
	}

	return s
}

// Run refreshes until ctx is done.
func (s *Service) Run(ctx context.Context) {
	s.refresh(ctx)

	ticker := s.clock.Ticker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Service) refresh(ctx context.Context) {
	if _, err := s.fetchBlockhash(ctx); err != nil && ctx.Err() == nil {
		log.Logger.ChainMeta.Errorf("fetchBlockhash: %s", err)
	}

	s.mx.RLock()
	groups := make(map[string][]solana.PublicKey, len(s.feeAccounts))
	for alias, keys := range s.feeAccounts {
		groups[alias] = keys
	}
	s.mx.RUnlock()

	for alias, keys := range groups {
		fee, err := s.fetchPriorityFee(ctx, keys)
		if err != nil {
			if ctx.Err() == nil {
				log.Logger.ChainMeta.Errorf("fetchPriorityFee %q: %s", alias, err)
			}
			continue
		}

		s.mx.Lock()
		s.fees[alias] = fee
		s.mx.Unlock()
		metrics.Metrics.ChainMeta.PriorityFee.WithLabelValues(alias).Set(float64(fee))
	}
}

func (s *Service) fetchBlockhash(ctx context.Context) (solana.Hash, error) {
	hash, err := s.reader.LatestBlockhash(ctx)
	if err != nil {
		metrics.Metrics.ChainMeta.BlockhashRefreshes.WithLabelValues("failed").Inc()
		return hash, err
	}
	metrics.Metrics.ChainMeta.BlockhashRefreshes.WithLabelValues("ok").Inc()

	s.mx.Lock()
	s.blockhash = hash
	s.fetchedAt = s.clock.Now()
	s.mx.Unlock()

	log.Logger.ChainMeta.Debugf("latest blockhash %s", hash)

	return hash, nil
}

func (s *Service) fetchPriorityFee(ctx context.Context, keys []solana.PublicKey) (uint64, error) {
	fees, err := s.reader.RecentPrioritizationFees(ctx, keys)
	if err != nil {
		return 0, err
	}

	return averageRecentFee(fees, recentFeeSamples), nil
}

// averageRecentFee averages the fees of the n most recent slots.
func averageRecentFee(fees []remote.PrioritizationFee, n int) uint64 {
	if len(fees) == 0 {
		return 0
	}

	sorted := append([]remote.PrioritizationFee(nil), fees...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Slot > sorted[j].Slot })
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	var sum uint64
	for _, f := range sorted {
		sum += f.Fee
	}

	return sum / uint64(len(sorted))
}

// LatestBlockhash returns the cached blockhash while it is younger than
// MaxBlockhashAge, otherwise it fetches a new one.
func (s *Service) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	s.mx.RLock()
	hash, fetchedAt := s.blockhash, s.fetchedAt
	s.mx.RUnlock()

	if hash != (solana.Hash{}) && s.clock.Since(fetchedAt) < s.cfg.MaxBlockhashAge {
		return hash, nil
	}

	hash, err := s.fetchBlockhash(ctx)
	if err != nil {
		return hash, errors.Wrap(err, "latest blockhash")
	}

	return hash, nil
}

func (s *Service) IsBlockhashValid(ctx context.Context, hash solana.Hash) (bool, error) {
	return s.reader.IsBlockhashValid(ctx, hash)
}

// AddPriorityFeeAccounts tracks the priority fee paid by transactions that
// write-lock keys under alias.
func (s *Service) AddPriorityFeeAccounts(alias string, keys []solana.PublicKey) {
	s.mx.Lock()
	s.feeAccounts[alias] = append([]solana.PublicKey(nil), keys...)
	s.mx.Unlock()
}

// PriorityFee is the last known fee for alias, "" being the global one.
func (s *Service) PriorityFee(alias string) (uint64, bool) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	fee, ok := s.fees[alias]
	return fee, ok
}
