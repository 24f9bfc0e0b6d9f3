package accounts

import (
	"sync"

	"ledger-mirror/internal/metrics"
)

// Update is delivered to watchers for every applied write.
type Update struct {
	Entry
	Removed bool
}

// Watcher receives cache updates on C until Close is called. A watcher that
// does not keep up loses updates instead of blocking writers.
type Watcher struct {
	C <-chan Update

	ch        chan Update
	keys      map[Key]struct{}
	parent    *watchers
	closeOnce sync.Once
}

type watchers struct {
	mx  sync.RWMutex
	set map[*Watcher]struct{}
}

func newWatchers() *watchers {
	return &watchers{set: make(map[*Watcher]struct{})}
}

// Watch subscribes to updates of keys, or of every key when none are given.
func (c *Cache) Watch(keys ...Key) *Watcher {
	ch := make(chan Update, c.watchBuffer)
	w := &Watcher{
		C:      ch,
		ch:     ch,
		parent: c.watchers,
	}
	if len(keys) != 0 {
		w.keys = make(map[Key]struct{}, len(keys))
		for _, k := range keys {
			w.keys[k] = struct{}{}
		}
	}

	c.watchers.mx.Lock()
	c.watchers.set[w] = struct{}{}
	c.watchers.mx.Unlock()

	return w
}

// Close detaches the watcher and closes C.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		w.parent.mx.Lock()
		delete(w.parent.set, w)
		close(w.ch)
		w.parent.mx.Unlock()
	})
}

func (ws *watchers) notify(u Update) {
	ws.mx.RLock()
	defer ws.mx.RUnlock()

	for w := range ws.set {
		if w.keys != nil {
			if _, ok := w.keys[u.Key]; !ok {
				continue
			}
		}

		select {
		case w.ch <- Update{Entry: u.Entry.Clone(), Removed: u.Removed}:
		default:
			metrics.Metrics.Cache.WatcherDropped.Inc()
		}
	}
}
