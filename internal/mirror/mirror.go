package mirror

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"ledger-mirror/internal/accounts"
	"ledger-mirror/internal/chainmeta"
	"ledger-mirror/internal/loader"
	"ledger-mirror/internal/metrics"
	"ledger-mirror/internal/pkg/config"
	"ledger-mirror/internal/pkg/log"
	"ledger-mirror/internal/pkg/remote"
	"ledger-mirror/internal/pkg/storage/clickhouse"
	"ledger-mirror/internal/pkg/storage/clickhouse/delayed_insertion"
	"ledger-mirror/internal/pkg/storage/sqlite"
	echo2 "ledger-mirror/internal/pkg/util/echo"
	"ledger-mirror/internal/streaming"
	"ledger-mirror/internal/submitter"
	"ledger-mirror/internal/txn"
	"ledger-mirror/internal/wallet"
)

const (
	serverShutdownTimeout = 10 * time.Second
	journalReconcileLimit = 100
	maxSweepInterval      = time.Minute
)

type mirror struct {
	apiPort       uint64
	metricsPort   uint64
	router        *echo.Echo
	metricsServer *echo.Echo
	waitGroup     *sync.WaitGroup
	ctx           context.Context
	ctxCancel     context.CancelFunc

	groupsMx   sync.RWMutex
	groups     map[string][]accounts.Key
	groupOrder []string
	programs   map[string]config.AccountGroup

	cache     *accounts.Cache
	loader    *loader.Loader
	sync      *streaming.Synchronizer
	chainMeta *chainmeta.Service
	status    remote.StatusReader
	builder   *txn.Builder
	signer    *wallet.KeypairSigner
	submitter *submitter.Submitter
	finality  int

	tombstoneTTL time.Duration

	journal        *sqlite.Storage
	chStorage      *clickhouse.Storage
	loadStats      *delayed_insertion.Collector[clickhouse.LoadStat]
	outcomes       *delayed_insertion.Collector[clickhouse.Outcome]
	metricsEnabled bool
}

func NewMirror(cfg config.Config) (*mirror, error) {
	ctx, cancelFunc := context.WithCancel(context.Background())

	client, err := remote.NewClient(cfg.RPC)
	if err != nil {
		cancelFunc()
		return nil, fmt.Errorf("rpc client init: %s", err)
	}
	journal, err := sqlite.New(ctx, cfg.SQLite)
	if err != nil {
		cancelFunc()
		return nil, fmt.Errorf("SQLite storage init: %s", err)
	}
	hostname, _ := os.Hostname()
	chStorage, err := clickhouse.New(cfg.CH.DSN, hostname)
	if err != nil {
		cancelFunc()
		journal.Close()
		return nil, fmt.Errorf("CH storage init: %s", err)
	}

	m := &mirror{
		apiPort:       cfg.API.Port,
		metricsPort:   cfg.API.MetricsPort,
		router:        echo.New(),
		metricsServer: echo.New(),
		waitGroup:     &sync.WaitGroup{},
		ctx:           ctx,
		ctxCancel:     cancelFunc,

		cache:     accounts.NewCache(accounts.WithWatchBuffer(cfg.Cache.WatchBuffer)),
		chainMeta: chainmeta.New(client, cfg.ChainMeta, nil),
		status:    client,
		builder:   txn.NewBuilder(),
		finality:  remote.FinalityRank(cfg.Submitter.Finality),

		tombstoneTTL: cfg.Cache.TombstoneTTL,

		journal:   journal,
		chStorage: chStorage,
		loadStats: delayed_insertion.New[clickhouse.LoadStat](ctx, chStorage, cfg.CH.FlushInterval),
		outcomes:  delayed_insertion.New[clickhouse.Outcome](ctx, chStorage, cfg.CH.FlushInterval),
	}
	m.setGroups(cfg.Accounts.Groups)

	m.loader = loader.New(m.cache, client, cfg.Loader, loader.WithStatSink(m.recordLoadStat))
	m.sync = streaming.New(m.cache, remote.NewStreamer(cfg.RPC), m.loader, cfg.Sync, streaming.WithStateHook(logSubscriptionState))

	if cfg.Wallet.KeypairPath != "" {
		key, err := wallet.LoadKeypair(cfg.Wallet.KeypairPath)
		if err != nil {
			m.closeStorages()
			cancelFunc()
			return nil, fmt.Errorf("LoadKeypair: %s", err)
		}
		m.signer = wallet.NewKeypairSigner(key)
		m.submitter = submitter.New(m.signer, client, client, m.chainMeta, cfg.Submitter,
			submitter.WithTransitionHook(m.journalEvent),
			submitter.WithOutcomeSink(m.recordOutcome),
		)
		log.Logger.Mirror.Infof("submitter enabled, fee payer %s", key.PublicKey())
	}

	m.setupServer()
	m.initHandlers()
	m.initMetrics()

	m.waitGroup.Add(1)
	go m.closeOnDone()

	return m, nil
}

func (m *mirror) setGroups(groups []config.AccountGroup) {
	m.groups = make(map[string][]accounts.Key, len(groups))
	m.programs = make(map[string]config.AccountGroup)
	for _, g := range groups {
		m.groups[g.Name] = g.PublicKeys()
		m.groupOrder = append(m.groupOrder, g.Name)
		if _, ok := g.ProgramKey(); ok {
			m.programs[g.Name] = g
		}
	}
}

func (m *mirror) groupKeys(name string) ([]accounts.Key, bool) {
	m.groupsMx.RLock()
	defer m.groupsMx.RUnlock()

	keys, ok := m.groups[name]
	return keys, ok
}

// resolveGroup returns the keys to mirror for a group: its listed keys plus,
// for a program group, the program accounts found now. unloaded is the part
// of keys the program listing did not already put into the cache.
func (m *mirror) resolveGroup(ctx context.Context, name string) (keys, unloaded []accounts.Key) {
	keys, _ = m.groupKeys(name)
	g, ok := m.programs[name]
	if !ok {
		return keys, keys
	}

	program, _ := g.ProgramKey()
	res, err := m.loader.LoadProgram(ctx, program, g.RPCFilters()...)
	if err != nil {
		log.Logger.Mirror.Errorf("group %s: load program %s: %s", name, program, err)
		return keys, keys
	}
	log.Logger.Mirror.Infof("group %s: %d accounts of program %s", name, len(res.Keys), program)

	found := make(map[accounts.Key]struct{}, len(res.Keys))
	for _, k := range res.Keys {
		found[k] = struct{}{}
	}
	merged := append([]accounts.Key(nil), res.Keys...)
	for _, k := range keys {
		if _, ok := found[k]; ok {
			continue
		}
		merged = append(merged, k)
		unloaded = append(unloaded, k)
	}

	m.groupsMx.Lock()
	m.groups[name] = merged
	m.groupsMx.Unlock()

	return merged, unloaded
}

func (m *mirror) setupServer() {
	echo2.SetupServer(m.router)
	echo2.SetupServer(m.metricsServer)
}

func (m *mirror) initMetrics() {
	m.metricsServer.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll: true,
		LogErrorFunc:    echo2.LogPanic,
	}))
	m.metricsServer.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	m.metricsEnabled = m.metricsPort != 0
}

// Run loads and subscribes the configured account groups, starts the chain
// meta poller and serves the API until Stop.
func (m *mirror) Run() (err error) {
	m.waitGroup.Add(4)
	go func() {
		defer m.waitGroup.Done()
		m.startSync(m.ctx)
	}()
	go func() {
		defer m.waitGroup.Done()
		m.chainMeta.Run(m.ctx)
	}()
	go func() {
		defer m.waitGroup.Done()
		m.reconcileJournal(m.ctx)
	}()
	go func() {
		defer m.waitGroup.Done()
		m.sweepTombstones(m.ctx, clock.New())
	}()

	if m.apiPort == 0 {
		<-m.ctx.Done()
		return nil
	}

	err = m.router.Start(fmt.Sprintf(":%d", m.apiPort))
	if err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (m *mirror) RunMetrics() (err error) {
	if !m.metricsEnabled {
		return nil
	}
	err = m.metricsServer.Start(fmt.Sprintf(":%d", m.metricsPort))
	if err != http.ErrServerClosed {
		return err
	}

	return nil
}

// startSync warms the cache group by group and keeps every group subscribed.
// A partially loaded group is still subscribed; reconciliation fills the gaps.
func (m *mirror) startSync(ctx context.Context) {
	for _, name := range m.groupOrder {
		keys, unloaded := m.resolveGroup(ctx, name)
		if len(keys) == 0 {
			log.Logger.Mirror.Warnf("group %s: no accounts to mirror", name)
			continue
		}

		if len(unloaded) != 0 {
			res, err := m.loader.Load(ctx, unloaded)
			if err != nil {
				log.Logger.Mirror.Warnf("group %s: load: %s", name, err)
			}
			log.Logger.Mirror.Infof("group %s: loaded %d, absent %d, unresolved %d", name, res.Loaded, res.Removed, len(res.Unresolved))
		}
		if ctx.Err() != nil {
			return
		}

		sub, err := m.sync.Subscribe(keys)
		if err == streaming.ErrStopped {
			return
		}
		if err != nil {
			log.Logger.Mirror.Errorf("group %s: subscribe: %s", name, err)
			continue
		}
		log.Logger.Mirror.Infof("group %s: subscription %s for %d keys", name, sub.ID, len(sub.Keys()))
	}
}

// sweepTombstones forgets removed keys once no in-flight update can be older
// than their removal.
func (m *mirror) sweepTombstones(ctx context.Context, clk clock.Clock) {
	if m.tombstoneTTL <= 0 {
		return
	}
	interval := m.tombstoneTTL / 2
	if interval <= 0 {
		interval = m.tombstoneTTL
	}
	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}

	t := clk.Ticker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.cache.SweepTombstones(m.tombstoneTTL); n != 0 {
				log.Logger.Mirror.Debugf("forgot %d removed accounts", n)
			}
		}
	}
}

func logSubscriptionState(sub *streaming.Subscription, st streaming.State) {
	if st == streaming.StateReconnecting {
		log.Logger.Mirror.Warnf("subscription %s (%d keys) lost its stream, reconnecting", sub.ID, len(sub.Keys()))
	}
}

func (m *mirror) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	go m.metricsServer.Shutdown(ctx)
	err := m.router.Shutdown(ctx)
	if err != nil {
		log.Logger.Mirror.Errorf("router.Shutdown: %s", err)
	}

	m.sync.Stop()
	m.ctxCancel()

	return nil
}

// closeOnDone releases storages once the collectors made their final flush.
func (m *mirror) closeOnDone() {
	defer m.waitGroup.Done()

	<-m.ctx.Done()
	<-m.loadStats.Done()
	<-m.outcomes.Done()
	m.closeStorages()
}

func (m *mirror) closeStorages() {
	if err := m.journal.Close(); err != nil {
		log.Logger.Storage.Errorf("journal close: %s", err)
	}
	if err := m.chStorage.Close(); err != nil {
		log.Logger.Storage.Errorf("CH close: %s", err)
	}
}

func (m *mirror) WaitGroup() *sync.WaitGroup {
	return m.waitGroup
}
