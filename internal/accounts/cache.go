package accounts

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cespare/xxhash/v2"

	"ledger-mirror/internal/metrics"
	"ledger-mirror/internal/pkg/log"
)

const (
	shardCount         = 64
	defaultWatchBuffer = 1024
)

type shard struct {
	mx      sync.RWMutex
	records map[Key]*record
}

// Cache is a concurrent mirror of remote accounts. Writes for different keys
// only contend when the keys share a shard, and no lock is ever held across
// I/O.
type Cache struct {
	shards      [shardCount]*shard
	clock       clock.Clock
	watchBuffer int
	live        atomic.Int64
	watchers    *watchers
}

type Option func(*Cache)

// WithClock sets the clock used for Entry.LastUpdated.
func WithClock(c clock.Clock) Option {
	return func(cache *Cache) {
		cache.clock = c
	}
}

// WithWatchBuffer sets the channel capacity of new watchers.
func WithWatchBuffer(n int) Option {
	return func(cache *Cache) {
		if n > 0 {
			cache.watchBuffer = n
		}
	}
}

func NewCache(opts ...Option) *Cache {
	c := &Cache{
		clock:       clock.New(),
		watchBuffer: defaultWatchBuffer,
		watchers:    newWatchers(),
	}
	for i := range c.shards {
		c.shards[i] = &shard{records: make(map[Key]*record)}
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Cache) shardFor(key Key) *shard {
	return c.shards[xxhash.Sum64(key[:])%shardCount]
}

// Get returns a copy of the latest entry for key.
func (c *Cache) Get(key Key) (Entry, bool) {
	s := c.shardFor(key)
	s.mx.RLock()
	r, ok := s.records[key]
	s.mx.RUnlock()

	if !ok || r.tombstone {
		return Entry{}, false
	}

	// published records are never modified, copying outside the lock is safe
	return r.entry.Clone(), true
}

// Upsert stores data for key unless an entry with the same or a newer slot
// exists. It reports whether the update was applied.
func (c *Cache) Upsert(key Key, data []byte, slot uint64) bool {
	r := &record{entry: Entry{
		Key:         key,
		Data:        cloneBytes(data),
		Slot:        slot,
		LastUpdated: c.clock.Now(),
	}}

	s := c.shardFor(key)
	s.mx.Lock()
	cur, ok := s.records[key]
	if ok && slot <= cur.entry.Slot {
		s.mx.Unlock()

		metrics.Metrics.Cache.Upserts.WithLabelValues("stale").Inc()
		log.Logger.Cache.Debugf("stale update %s: slot %d <= %d", key, slot, cur.entry.Slot)
		return false
	}
	s.records[key] = r
	if !ok || cur.tombstone {
		metrics.Metrics.Cache.Entries.Set(float64(c.live.Add(1)))
	}
	// notify under the shard lock to keep per-key order for watchers
	c.watchers.notify(Update{Entry: r.entry})
	s.mx.Unlock()

	metrics.Metrics.Cache.Upserts.WithLabelValues("applied").Inc()

	return true
}

// Remove evicts key. It reports whether a live entry was removed.
func (c *Cache) Remove(key Key) bool {
	s := c.shardFor(key)
	s.mx.Lock()
	defer s.mx.Unlock()

	cur, ok := s.records[key]
	if !ok || cur.tombstone {
		return false
	}
	c.bury(s, key, cur.entry.Slot)

	return true
}

// RemoveAt evicts key if the account was observed absent at a slot not older
// than the cached one. A tombstone is recorded even for unknown keys so that
// updates older than slot are rejected afterwards.
func (c *Cache) RemoveAt(key Key, slot uint64) bool {
	s := c.shardFor(key)
	s.mx.Lock()
	defer s.mx.Unlock()

	cur, ok := s.records[key]
	switch {
	case !ok:
		s.records[key] = &record{entry: Entry{Key: key, Slot: slot, LastUpdated: c.clock.Now()}, tombstone: true}
		return false
	case cur.tombstone:
		if slot > cur.entry.Slot {
			s.records[key] = &record{entry: Entry{Key: key, Slot: slot, LastUpdated: c.clock.Now()}, tombstone: true}
		}
		return false
	case slot < cur.entry.Slot:
		return false
	}
	c.bury(s, key, slot)

	return true
}

// bury replaces a live entry with a tombstone. Must be called with s.mx held.
func (c *Cache) bury(s *shard, key Key, slot uint64) {
	tomb := &record{entry: Entry{Key: key, Slot: slot, LastUpdated: c.clock.Now()}, tombstone: true}
	s.records[key] = tomb

	metrics.Metrics.Cache.Entries.Set(float64(c.live.Add(-1)))
	metrics.Metrics.Cache.Removals.Inc()
	c.watchers.notify(Update{Entry: tomb.entry, Removed: true})
}

// SweepTombstones drops tombstones written more than ttl ago and returns how
// many were dropped. After that an update older than the removal slot is
// accepted again for the key.
func (c *Cache) SweepTombstones(ttl time.Duration) int {
	cutoff := c.clock.Now().Add(-ttl)

	var swept int
	for _, s := range c.shards {
		s.mx.Lock()
		for k, r := range s.records {
			if r.tombstone && r.entry.LastUpdated.Before(cutoff) {
				delete(s.records, k)
				swept++
			}
		}
		s.mx.Unlock()
	}

	return swept
}

// Tombstones is the number of removed keys still remembered.
func (c *Cache) Tombstones() int {
	var n int
	for _, s := range c.shards {
		s.mx.RLock()
		n += len(s.records)
		s.mx.RUnlock()
	}

	return n - c.Len()
}

// SnapshotAll returns copies of all live entries matching predicate (all
// entries when predicate is nil). Each shard is locked only while it is
// scanned, so the result is consistent per key, not across keys. predicate
// must not retain or modify Entry.Data.
func (c *Cache) SnapshotAll(predicate func(Entry) bool) []Entry {
	var matched []Entry
	for _, s := range c.shards {
		s.mx.RLock()
		for _, r := range s.records {
			if r.tombstone {
				continue
			}
			if predicate == nil || predicate(r.entry) {
				matched = append(matched, r.entry)
			}
		}
		s.mx.RUnlock()
	}

	for i := range matched {
		matched[i] = matched[i].Clone()
	}

	return matched
}

// Keys lists the keys of all live entries.
func (c *Cache) Keys() []Key {
	keys := make([]Key, 0, c.Len())
	for _, s := range c.shards {
		s.mx.RLock()
		for k, r := range s.records {
			if !r.tombstone {
				keys = append(keys, k)
			}
		}
		s.mx.RUnlock()
	}

	return keys
}

// Len is the number of live entries.
func (c *Cache) Len() int {
	return int(c.live.Load())
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)

	return out
}
