package streaming

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-mirror/internal/accounts"
	"ledger-mirror/internal/loader"
	"ledger-mirror/internal/pkg/config"
	"ledger-mirror/internal/pkg/remote"
)

const (
	waitFor = 2 * time.Second
	tick    = time.Millisecond
)

type fakeStream struct {
	updates chan remote.AccountUpdate
	fail    chan error
	closed  atomic.Bool
}

func (f *fakeStream) Recv(ctx context.Context) (remote.AccountUpdate, error) {
	select {
	case <-ctx.Done():
		return remote.AccountUpdate{}, ctx.Err()
	case err := <-f.fail:
		return remote.AccountUpdate{}, err
	case u := <-f.updates:
		return u, nil
	}
}

func (f *fakeStream) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeStreamer struct {
	streams   chan *fakeStream
	failFirst atomic.Int32
	attempts  atomic.Int32
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{streams: make(chan *fakeStream, 16)}
}

func (f *fakeStreamer) SubscribeAccounts(ctx context.Context, keys []solana.PublicKey) (remote.AccountStream, error) {
	f.attempts.Add(1)
	if f.failFirst.Add(-1) >= 0 {
		return nil, errors.New("connection refused")
	}

	st := &fakeStream{updates: make(chan remote.AccountUpdate, 16), fail: make(chan error, 1)}
	select {
	case f.streams <- st:
		return st, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeStreamer) next(t *testing.T) *fakeStream {
	t.Helper()

	select {
	case st := <-f.streams:
		return st
	case <-time.After(waitFor):
		t.Fatal("no stream opened")
		return nil
	}
}

type fakeReconciler struct {
	mx    sync.Mutex
	calls [][]accounts.Key
}

func (f *fakeReconciler) Load(_ context.Context, keys []accounts.Key) (loader.Result, error) {
	f.mx.Lock()
	defer f.mx.Unlock()

	f.calls = append(f.calls, append([]accounts.Key(nil), keys...))
	return loader.Result{Requested: len(keys)}, nil
}

func (f *fakeReconciler) Calls() [][]accounts.Key {
	f.mx.Lock()
	defer f.mx.Unlock()

	return append([][]accounts.Key(nil), f.calls...)
}

func testConfig() config.SyncConfig {
	return config.SyncConfig{
		ReconnectMinDelay:  time.Millisecond,
		ReconnectMaxDelay:  10 * time.Millisecond,
		StalenessThreshold: time.Hour,
	}
}

// nextOnClock advances mock until the synchronizer opens a stream.
func (f *fakeStreamer) nextOnClock(t *testing.T, mock *clock.Mock, step time.Duration) *fakeStream {
	t.Helper()

	var st *fakeStream
	require.Eventually(t, func() bool {
		select {
		case st = <-f.streams:
			return true
		default:
			mock.Add(step)
			return false
		}
	}, waitFor, tick)

	return st
}

func newKey() accounts.Key {
	return solana.NewWallet().PublicKey()
}

func TestSubscribeWithoutKeys(t *testing.T) {
	s := New(accounts.NewCache(), newFakeStreamer(), nil, testConfig())
	_, err := s.Subscribe(nil)
	require.ErrorIs(t, err, ErrNoKeys)
}

func TestStreamingForwardsUpdates(t *testing.T) {
	cache := accounts.NewCache()
	streamer := newFakeStreamer()
	s := New(cache, streamer, &fakeReconciler{}, testConfig())
	defer s.Stop()

	key, foreign := newKey(), newKey()
	sub, err := s.Subscribe([]accounts.Key{key})
	require.NoError(t, err)
	assert.Equal(t, []accounts.Key{key}, sub.Keys())

	st := streamer.next(t)
	require.Eventually(t, func() bool { return sub.State() == StateStreaming }, waitFor, tick)

	st.updates <- remote.AccountUpdate{Key: foreign, Data: []byte("x"), Slot: 1}
	st.updates <- remote.AccountUpdate{Key: key, Data: []byte("v5"), Slot: 5}
	st.updates <- remote.AccountUpdate{Key: key, Data: []byte("v3"), Slot: 3}

	require.Eventually(t, func() bool {
		e, ok := cache.Get(key)
		return ok && e.Slot == 5
	}, waitFor, tick)
	_, ok := cache.Get(foreign)
	assert.False(t, ok)

	st.updates <- remote.AccountUpdate{Key: key, Slot: 6, Deleted: true}
	require.Eventually(t, func() bool {
		_, ok := cache.Get(key)
		return !ok
	}, waitFor, tick)
}

func TestInitialReconciliationFetchesAbsentAndStale(t *testing.T) {
	cache := accounts.NewCache()
	fresh, absent := newKey(), newKey()
	cache.Upsert(fresh, []byte("fresh"), 1)

	streamer := newFakeStreamer()
	reconciler := &fakeReconciler{}
	s := New(cache, streamer, reconciler, testConfig())
	defer s.Stop()

	_, err := s.Subscribe([]accounts.Key{fresh, absent})
	require.NoError(t, err)
	streamer.next(t)

	require.Eventually(t, func() bool { return len(reconciler.Calls()) == 1 }, waitFor, tick)
	assert.Equal(t, []accounts.Key{absent}, reconciler.Calls()[0])
}

func TestUnsubscribeStopsWrites(t *testing.T) {
	cache := accounts.NewCache()
	streamer := newFakeStreamer()
	s := New(cache, streamer, &fakeReconciler{}, testConfig())

	key := newKey()
	sub, err := s.Subscribe([]accounts.Key{key})
	require.NoError(t, err)
	st := streamer.next(t)

	st.updates <- remote.AccountUpdate{Key: key, Data: []byte("a"), Slot: 1}
	require.Eventually(t, func() bool {
		_, ok := cache.Get(key)
		return ok
	}, waitFor, tick)

	s.Unsubscribe(sub)
	assert.Equal(t, StateClosed, sub.State())
	assert.True(t, st.closed.Load())
	assert.Empty(t, s.Subscriptions())

	st.updates <- remote.AccountUpdate{Key: key, Data: []byte("b"), Slot: 2}
	time.Sleep(20 * time.Millisecond)

	e, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, uint64(1), e.Slot)

	// idempotent
	s.Unsubscribe(sub)
}

func TestReconnectAfterTransportFailure(t *testing.T) {
	cache := accounts.NewCache()
	streamer := newFakeStreamer()
	reconciler := &fakeReconciler{}

	var (
		mx     sync.Mutex
		states []State
	)
	s := New(cache, streamer, reconciler, testConfig(), WithStateHook(func(_ *Subscription, st State) {
		mx.Lock()
		states = append(states, st)
		mx.Unlock()
	}))

	key := newKey()
	cache.Upsert(key, []byte("fresh"), 1)

	sub, err := s.Subscribe([]accounts.Key{key})
	require.NoError(t, err)

	first := streamer.next(t)
	require.Eventually(t, func() bool { return sub.State() == StateStreaming }, waitFor, tick)
	assert.Empty(t, reconciler.Calls(), "fresh keys are not refetched")

	first.fail <- errors.New("connection reset")

	second := streamer.next(t)
	assert.True(t, first.closed.Load())
	require.Eventually(t, func() bool { return len(reconciler.Calls()) == 1 }, waitFor, tick)
	assert.Equal(t, []accounts.Key{key}, reconciler.Calls()[0], "reconnect refetches every key")

	second.updates <- remote.AccountUpdate{Key: key, Data: []byte("after"), Slot: 2}
	require.Eventually(t, func() bool {
		e, _ := cache.Get(key)
		return e.Slot == 2
	}, waitFor, tick)

	s.Unsubscribe(sub)

	mx.Lock()
	defer mx.Unlock()
	assert.Equal(t, []State{
		StateSubscribing, StateStreaming,
		StateReconnecting, StateSubscribing, StateStreaming,
		StateClosed,
	}, states)
}

func TestSubscribeRetriesWithBackoff(t *testing.T) {
	streamer := newFakeStreamer()
	streamer.failFirst.Store(5)
	mock := clock.NewMock()
	cfg := testConfig()
	cfg.ReconnectMinDelay = 100 * time.Millisecond
	cfg.ReconnectMaxDelay = 400 * time.Millisecond

	var (
		mx     sync.Mutex
		delays []time.Duration
	)
	s := New(accounts.NewCache(), streamer, &fakeReconciler{}, cfg, WithClock(mock), WithStateHook(func(sub *Subscription, st State) {
		if st == StateReconnecting {
			mx.Lock()
			delays = append(delays, sub.RetryDelay())
			mx.Unlock()
		}
	}))
	defer s.Stop()

	sub, err := s.Subscribe([]accounts.Key{newKey()})
	require.NoError(t, err)

	streamer.nextOnClock(t, mock, cfg.ReconnectMaxDelay)
	require.Eventually(t, func() bool { return sub.State() == StateStreaming }, waitFor, tick)
	assert.Equal(t, int32(6), streamer.attempts.Load())

	mx.Lock()
	defer mx.Unlock()
	ms := time.Millisecond
	assert.Equal(t, []time.Duration{100 * ms, 200 * ms, 400 * ms, 400 * ms, 400 * ms}, delays)
}

func TestBackoffRestartsOnlyAfterAnUpdate(t *testing.T) {
	streamer := newFakeStreamer()
	mock := clock.NewMock()
	cfg := testConfig()
	cfg.ReconnectMinDelay = 100 * time.Millisecond
	cfg.ReconnectMaxDelay = time.Second

	cache := accounts.NewCache()
	s := New(cache, streamer, &fakeReconciler{}, cfg, WithClock(mock))
	defer s.Stop()

	key := newKey()
	sub, err := s.Subscribe([]accounts.Key{key})
	require.NoError(t, err)

	// streams that die before delivering anything keep backing off
	st := streamer.next(t)
	st.fail <- errors.New("connection reset")
	require.Eventually(t, func() bool { return sub.RetryDelay() == 100*time.Millisecond }, waitFor, tick)

	st = streamer.nextOnClock(t, mock, cfg.ReconnectMaxDelay)
	st.fail <- errors.New("connection reset")
	require.Eventually(t, func() bool { return sub.RetryDelay() == 200*time.Millisecond }, waitFor, tick)

	st = streamer.nextOnClock(t, mock, cfg.ReconnectMaxDelay)
	st.updates <- remote.AccountUpdate{Key: key, Data: []byte("a"), Slot: 1}
	require.Eventually(t, func() bool {
		_, ok := cache.Get(key)
		return ok
	}, waitFor, tick)
	st.fail <- errors.New("connection reset")

	require.Eventually(t, func() bool {
		return sub.State() == StateReconnecting && sub.RetryDelay() == 100*time.Millisecond
	}, waitFor, tick)
}

func TestLivenessTimeoutReconnects(t *testing.T) {
	streamer := newFakeStreamer()
	mock := clock.NewMock()
	cfg := testConfig()
	cfg.LivenessTimeout = time.Minute

	s := New(accounts.NewCache(), streamer, &fakeReconciler{}, cfg, WithClock(mock))
	defer s.Stop()

	sub, err := s.Subscribe([]accounts.Key{newKey()})
	require.NoError(t, err)

	first := streamer.next(t)
	require.Eventually(t, func() bool { return sub.State() == StateStreaming }, waitFor, tick)

	mock.Add(59 * time.Second)
	assert.Never(t, func() bool { return first.closed.Load() }, 20*time.Millisecond, tick)

	streamer.nextOnClock(t, mock, time.Second)
	assert.True(t, first.closed.Load())
}

func TestStopClosesAll(t *testing.T) {
	streamer := newFakeStreamer()
	s := New(accounts.NewCache(), streamer, nil, testConfig())

	var subs []*Subscription
	for i := 0; i < 3; i++ {
		sub, err := s.Subscribe([]accounts.Key{newKey()})
		require.NoError(t, err)
		subs = append(subs, sub)
	}

	s.Stop()
	for _, sub := range subs {
		assert.Equal(t, StateClosed, sub.State())
		select {
		case <-sub.Done():
		default:
			t.Fatal("subscription goroutine still running")
		}
	}
	assert.Empty(t, s.Subscriptions())

	_, err := s.Subscribe([]accounts.Key{newKey()})
	require.ErrorIs(t, err, ErrStopped)
}
