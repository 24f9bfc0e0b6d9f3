package delayed_insertion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"ledger-mirror/internal/pkg/log"
	"ledger-mirror/internal/pkg/storage/clickhouse"
)

const (
	flushAmount = 1000

	defaultFlushInterval = 10 * time.Second
)

type (
	collectorPossibleTypes interface {
		clickhouse.Outcome | clickhouse.LoadStat
	}
	inserter interface {
		BatchInsertOutcomes([]clickhouse.Outcome) error
		BatchInsertLoadStats([]clickhouse.LoadStat) error
	}
	Collector[T collectorPossibleTypes] struct {
		ctx           context.Context
		storage       inserter
		clock         clock.Clock
		mx            sync.Mutex
		flushInterval time.Duration
		cache         []T
		done          chan struct{}
	}
)

// New starts a collector flushing into chStorage every flushInterval.
// A nil chStorage yields a collector that drops everything.
func New[T collectorPossibleTypes](ctx context.Context, chStorage *clickhouse.Storage, flushInterval time.Duration) *Collector[T] {
	if chStorage == nil {
		return newCollector[T](ctx, nil, flushInterval, clock.New())
	}

	return newCollector[T](ctx, chStorage, flushInterval, clock.New())
}

func newCollector[T collectorPossibleTypes](ctx context.Context, storage inserter, flushInterval time.Duration, clk clock.Clock) (c *Collector[T]) {
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	c = &Collector[T]{
		ctx:           ctx,
		storage:       storage,
		clock:         clk,
		flushInterval: flushInterval,
		cache:         make([]T, 0, flushAmount),
		done:          make(chan struct{}),
	}

	if storage == nil {
		close(c.done)
		return
	}

	go c.start()

	return
}

// Done is closed after the final flush that follows ctx cancellation.
func (c *Collector[T]) Done() <-chan struct{} {
	return c.done
}

func (c *Collector[T]) start() {
	defer close(c.done)

	ticker := c.clock.Ticker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			err := c.flushData()
			if err != nil {
				log.Logger.Collector.Errorf("flushData: %s", err)
			}

			return

		case <-ticker.C:
			err := c.flushData()
			if err != nil {
				log.Logger.Collector.Errorf("flushData: %s", err)
			}
		}
	}
}

func (c *Collector[T]) flushData() error {
	if c.storage == nil {
		return nil
	}

	entries := c.getCachedEntries()
	if len(entries) == 0 {
		return nil
	}

	var (
		err     error
		caller  string
		timeNow = time.Now()
	)
	switch e := any(entries).(type) {
	case []clickhouse.Outcome:
		caller = "InsertOutcomes"
		err = c.storage.BatchInsertOutcomes(e)
	case []clickhouse.LoadStat:
		caller = "InsertLoadStats"
		err = c.storage.BatchInsertLoadStats(e)
	default:
		return fmt.Errorf("unknow type to handle: %T", e)
	}
	if err != nil {
		return fmt.Errorf("%s: %s", caller, err)
	}

	log.Logger.Collector.Debugf("fin flushData %s len %d. Elapsed %s", caller, len(entries), time.Since(timeNow))

	return nil
}
