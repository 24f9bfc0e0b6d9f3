package metrics

import (
	"net/http"

	"ledger-mirror/internal/pkg/metrics"
)

type typedMetrics struct {
	Cache     cache
	Sync      syncer
	Loader    loader
	Submitter submitter
	ChainMeta chainMeta
	Api       api
}

type cache struct {
	Upserts        metrics.CounterVec
	Removals       metrics.Counter
	Entries        metrics.Gauge
	WatcherDropped metrics.Counter
}

type syncer struct {
	Subscriptions metrics.Gauge
	States        metrics.CounterVec
	Reconnects    metrics.Counter
	Updates       metrics.Counter
}

type loader struct {
	Batches       metrics.CounterVec
	FetchDuration metrics.Histogram
	Unresolved    metrics.Counter
}

type submitter struct {
	Outcomes        metrics.CounterVec
	Attempts        metrics.Histogram
	ConfirmDuration metrics.Summary
}

type chainMeta struct {
	BlockhashRefreshes metrics.CounterVec
	PriorityFee        metrics.GaugeVec
}

type api struct {
	Responses metrics.CounterVec
	Duration  metrics.HistogramVec
}

var (
	mi      metrics.Metrics
	Metrics *typedMetrics
)

func init() {
	mi = metrics.NewMetrics()

	Metrics = &typedMetrics{
		Cache: cache{
			Upserts: mi.NewCounterVec("cache",
				"upserts_total", "account upserts by result", "result",
			),
			Removals: mi.NewCounter("cache",
				"removals_total", "accounts removed from the cache",
			),
			Entries: mi.NewGauge("cache",
				"entries", "live accounts in the cache",
			),
			WatcherDropped: mi.NewCounter("cache",
				"watcher_dropped_total", "updates dropped because a watcher was full",
			),
		},
		Sync: syncer{
			Subscriptions: mi.NewGauge("sync",
				"subscriptions", "active subscriptions",
			),
			States: mi.NewCounterVec("sync",
				"state_transitions_total", "subscription state transitions", "state",
			),
			Reconnects: mi.NewCounter("sync",
				"reconnects_total", "stream reconnect attempts",
			),
			Updates: mi.NewCounter("sync",
				"updates_total", "account updates received from streams",
			),
		},
		Loader: loader{
			Batches: mi.NewCounterVec("loader",
				"batches_total", "fetched batches by result", "result",
			),
			FetchDuration: mi.NewHistogram("loader",
				"fetch_duration_seconds", "duration of a single batch fetch", nil,
			),
			Unresolved: mi.NewCounter("loader",
				"unresolved_keys_total", "keys left unresolved after all retries",
			),
		},
		Submitter: submitter{
			Outcomes: mi.NewCounterVec("submitter",
				"outcomes_total", "terminal submission states", "status",
			),
			Attempts: mi.NewHistogram("submitter",
				"attempts", "submission attempts per transaction", []float64{1, 2, 3, 5, 8, 13},
			),
			ConfirmDuration: mi.NewSummary("submitter",
				"confirm_duration_seconds", "time from first submission to confirmation",
				map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			),
		},
		ChainMeta: chainMeta{
			BlockhashRefreshes: mi.NewCounterVec("chainmeta",
				"blockhash_refreshes_total", "latest blockhash refreshes by result", "result",
			),
			PriorityFee: mi.NewGaugeVec("chainmeta",
				"priority_fee_micro_lamports", "recent priority fee per account group", "group",
			),
		},
		Api: api{
			Responses: mi.NewCounterVec("api",
				"responses_total", "api responses by route and status code", "route", "code",
			),
			Duration: mi.NewHistogramVec("api",
				"request_duration_seconds", "api request duration by route", nil, "route",
			),
		},
	}
}

func Handler() http.Handler {
	return mi.Handler()
}
