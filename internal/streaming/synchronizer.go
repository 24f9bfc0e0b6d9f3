package streaming

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"ledger-mirror/internal/accounts"
	"ledger-mirror/internal/loader"
	"ledger-mirror/internal/metrics"
	"ledger-mirror/internal/pkg/config"
	"ledger-mirror/internal/pkg/log"
	"ledger-mirror/internal/pkg/remote"
	"ledger-mirror/internal/pkg/util"
)

var (
	ErrNoKeys  = errors.New("subscription without keys")
	ErrStopped = errors.New("synchronizer stopped")
)

// Reconciler refetches keys to cover gaps in the update stream.
type Reconciler interface {
	Load(ctx context.Context, keys []accounts.Key) (loader.Result, error)
}

// Synchronizer keeps cache entries of subscribed keys in sync with the
// remote ledger. Each subscription runs on its own goroutine, which is also
// the only goroutine writing to the cache on its behalf.
type Synchronizer struct {
	cache      *accounts.Cache
	streamer   remote.AccountStreamer
	reconciler Reconciler
	cfg        config.SyncConfig
	clock      clock.Clock
	onState    func(*Subscription, State)

	mx      sync.Mutex
	subs    map[string]*Subscription
	stopped bool
}

type Option func(*Synchronizer)

func WithClock(c clock.Clock) Option {
	return func(s *Synchronizer) {
		s.clock = c
	}
}

// WithStateHook registers fn to observe state transitions. fn runs on the
// subscription goroutine and must not call Unsubscribe.
func WithStateHook(fn func(*Subscription, State)) Option {
	return func(s *Synchronizer) {
		s.onState = fn
	}
}

func New(cache *accounts.Cache, streamer remote.AccountStreamer, reconciler Reconciler, cfg config.SyncConfig, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		cache:      cache,
		streamer:   streamer,
		reconciler: reconciler,
		cfg:        cfg,
		clock:      clock.New(),
		subs:       make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Subscribe starts streaming updates for keys into the cache.
func (s *Synchronizer) Subscribe(keys []accounts.Key) (*Subscription, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(uuid.NewString(), keys, cancel)

	s.mx.Lock()
	if s.stopped {
		s.mx.Unlock()
		cancel()
		return nil, ErrStopped
	}
	s.subs[sub.ID] = sub
	s.mx.Unlock()
	metrics.Metrics.Sync.Subscriptions.Inc()

	go s.run(ctx, sub)

	return sub, nil
}

// Unsubscribe stops sub. When it returns no further cache write happens on
// behalf of sub.
func (s *Synchronizer) Unsubscribe(sub *Subscription) {
	s.mx.Lock()
	_, ok := s.subs[sub.ID]
	delete(s.subs, sub.ID)
	s.mx.Unlock()

	sub.stop()
	if ok {
		metrics.Metrics.Sync.Subscriptions.Dec()
	}
}

// Subscriptions lists active subscriptions.
func (s *Synchronizer) Subscriptions() []*Subscription {
	s.mx.Lock()
	defer s.mx.Unlock()

	out := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}

	return out
}

// Stop unsubscribes everything. Later Subscribe calls fail with ErrStopped.
func (s *Synchronizer) Stop() {
	s.mx.Lock()
	s.stopped = true
	s.mx.Unlock()

	for _, sub := range s.Subscriptions() {
		s.Unsubscribe(sub)
	}
}

func (s *Synchronizer) setState(sub *Subscription, st State) {
	if State(sub.state.Swap(int32(st))) == st {
		return
	}

	metrics.Metrics.Sync.States.WithLabelValues(st.String()).Inc()
	log.Logger.Sync.Debugf("subscription %s: %s", sub.ID, st)
	if s.onState != nil {
		s.onState(sub, st)
	}
}

func (s *Synchronizer) run(ctx context.Context, sub *Subscription) {
	defer close(sub.done)
	defer s.setState(sub, StateClosed)

	backoff := util.Backoff{Min: s.cfg.ReconnectMinDelay, Max: s.cfg.ReconnectMaxDelay}
	reconnected := false

	for ctx.Err() == nil {
		s.setState(sub, StateSubscribing)

		stream, err := s.streamer.SubscribeAccounts(ctx, sub.keys)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Logger.Sync.Warnf("subscribe %s (%d keys): %s", sub.ID, len(sub.keys), err)
			if !s.waitReconnect(ctx, sub, &backoff) {
				return
			}
			reconnected = true
			continue
		}

		s.setState(sub, StateStreaming)
		s.reconcile(ctx, sub, reconnected)

		err = s.consume(ctx, sub, stream, &backoff)
		if cerr := stream.Close(); cerr != nil {
			log.Logger.Sync.Debugf("close stream %s: %s", sub.ID, cerr)
		}
		if ctx.Err() != nil {
			return
		}

		log.Logger.Sync.Warnf("stream %s: %s", sub.ID, err)
		if !s.waitReconnect(ctx, sub, &backoff) {
			return
		}
		reconnected = true
	}
}

func (s *Synchronizer) waitReconnect(ctx context.Context, sub *Subscription, backoff *util.Backoff) bool {
	delay := backoff.Next()
	sub.retryDelay.Store(int64(delay))
	s.setState(sub, StateReconnecting)
	metrics.Metrics.Sync.Reconnects.Inc()

	log.Logger.Sync.Infof("reconnect %s in %s (attempt %d)", sub.ID, delay, backoff.Attempt())

	return util.Wait(ctx, s.clock, delay) == nil
}

// reconcile fetches keys that may have missed updates: after a reconnect
// every key, otherwise keys that are absent or older than the staleness
// threshold.
func (s *Synchronizer) reconcile(ctx context.Context, sub *Subscription, all bool) {
	if s.reconciler == nil {
		return
	}

	keys := sub.keys
	if !all {
		keys = s.staleKeys(sub.keys)
	}
	if len(keys) == 0 {
		return
	}

	res, err := s.reconciler.Load(ctx, keys)
	if err != nil && ctx.Err() == nil {
		log.Logger.Sync.Errorf("reconcile %s: %s", sub.ID, err)
		return
	}
	log.Logger.Sync.Debugf("reconciled %s: loaded %d removed %d of %d", sub.ID, res.Loaded, res.Removed, len(keys))
}

func (s *Synchronizer) staleKeys(keys []accounts.Key) []accounts.Key {
	now := s.clock.Now()

	var stale []accounts.Key
	for _, k := range keys {
		e, ok := s.cache.Get(k)
		if !ok || e.Age(now) > s.cfg.StalenessThreshold {
			stale = append(stale, k)
		}
	}

	return stale
}

// consume forwards updates until the stream fails, goes silent for longer
// than the liveness timeout, or ctx is done. The reconnect backoff restarts
// once the stream delivered an update.
func (s *Synchronizer) consume(ctx context.Context, sub *Subscription, stream remote.AccountStream, backoff *util.Backoff) error {
	for delivered := false; ; {
		upd, err := s.recv(ctx, stream)
		if err != nil {
			return err
		}
		if !delivered {
			delivered = true
			backoff.Reset()
		}
		if !sub.has(upd.Key) {
			continue
		}
		metrics.Metrics.Sync.Updates.Inc()

		if upd.Deleted {
			s.cache.RemoveAt(upd.Key, upd.Slot)
			continue
		}
		s.cache.Upsert(upd.Key, upd.Data, upd.Slot)
	}
}

func (s *Synchronizer) recv(ctx context.Context, stream remote.AccountStream) (remote.AccountUpdate, error) {
	if s.cfg.LivenessTimeout <= 0 {
		return stream.Recv(ctx)
	}

	recvCtx, cancel := s.clock.WithTimeout(ctx, s.cfg.LivenessTimeout)
	defer cancel()

	upd, err := stream.Recv(recvCtx)
	if err != nil && ctx.Err() == nil && recvCtx.Err() != nil {
		return upd, errors.Errorf("no updates for %s", s.cfg.LivenessTimeout)
	}

	return upd, err
}
