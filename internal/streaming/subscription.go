package streaming

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ledger-mirror/internal/accounts"
)

// Subscription is the handle of one subscribed key set.
type Subscription struct {
	ID string

	keys   []accounts.Key
	keySet map[accounts.Key]struct{}
	state  atomic.Int32
	// last reconnect delay
	retryDelay atomic.Int64

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func newSubscription(id string, keys []accounts.Key, cancel context.CancelFunc) *Subscription {
	sub := &Subscription{
		ID:     id,
		keySet: make(map[accounts.Key]struct{}, len(keys)),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, k := range keys {
		if _, ok := sub.keySet[k]; ok {
			continue
		}
		sub.keySet[k] = struct{}{}
		sub.keys = append(sub.keys, k)
	}

	return sub
}

// Keys returns the subscribed keys.
func (s *Subscription) Keys() []accounts.Key {
	return append([]accounts.Key(nil), s.keys...)
}

func (s *Subscription) State() State {
	return State(s.state.Load())
}

// RetryDelay is the delay before the latest reconnect attempt.
func (s *Subscription) RetryDelay() time.Duration {
	return time.Duration(s.retryDelay.Load())
}

// Done is closed once the subscription goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) has(key accounts.Key) bool {
	_, ok := s.keySet[key]
	return ok
}

// stop cancels the subscription goroutine and waits for it to exit.
func (s *Subscription) stop() {
	s.stopOnce.Do(s.cancel)
	<-s.done
}
