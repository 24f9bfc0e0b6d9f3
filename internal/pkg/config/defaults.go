package config

import "time"

const (
	defaultCommitment   = "confirmed"
	defaultRPCTimeout   = 10 * time.Second
	defaultWatchBuffer  = 1024
	defaultTombstoneTTL = 10 * time.Minute
	defaultLiveness     = time.Minute
	defaultBatchSize    = 100
	defaultConcurrency  = 4
	defaultRetryLimit   = 3
	defaultMaxAttempts  = 5
	defaultPollInterval = 500 * time.Millisecond
)

func (c *Config) setDefaults() {
	if c.RPC.Commitment == "" {
		c.RPC.Commitment = defaultCommitment
	}
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = defaultRPCTimeout
	}

	if c.Cache.WatchBuffer == 0 {
		c.Cache.WatchBuffer = defaultWatchBuffer
	}
	if c.Cache.TombstoneTTL == 0 {
		c.Cache.TombstoneTTL = defaultTombstoneTTL
	}

	if c.Sync.ReconnectMinDelay == 0 {
		c.Sync.ReconnectMinDelay = 500 * time.Millisecond
	}
	if c.Sync.ReconnectMaxDelay == 0 {
		c.Sync.ReconnectMaxDelay = 30 * time.Second
	}
	if c.Sync.LivenessTimeout == 0 {
		c.Sync.LivenessTimeout = defaultLiveness
	}
	if c.Sync.StalenessThreshold == 0 {
		c.Sync.StalenessThreshold = time.Minute
	}

	if c.Loader.BatchSize == 0 {
		c.Loader.BatchSize = defaultBatchSize
	}
	if c.Loader.Concurrency == 0 {
		c.Loader.Concurrency = defaultConcurrency
	}
	if c.Loader.RetryLimit == 0 {
		c.Loader.RetryLimit = defaultRetryLimit
	}
	if c.Loader.RetryDelay == 0 {
		c.Loader.RetryDelay = 200 * time.Millisecond
	}
	if c.Loader.FetchTimeout == 0 {
		c.Loader.FetchTimeout = 10 * time.Second
	}

	if c.Submitter.MaxAttempts == 0 {
		c.Submitter.MaxAttempts = defaultMaxAttempts
	}
	if c.Submitter.RetryMinDelay == 0 {
		c.Submitter.RetryMinDelay = 250 * time.Millisecond
	}
	if c.Submitter.RetryMaxDelay == 0 {
		c.Submitter.RetryMaxDelay = 4 * time.Second
	}
	if c.Submitter.ConfirmTimeout == 0 {
		c.Submitter.ConfirmTimeout = 60 * time.Second
	}
	if c.Submitter.PollInterval == 0 {
		c.Submitter.PollInterval = defaultPollInterval
	}
	if c.Submitter.Finality == "" {
		c.Submitter.Finality = defaultCommitment
	}
	if c.Submitter.DedupeTTL == 0 {
		c.Submitter.DedupeTTL = 2 * time.Minute
	}

	if c.ChainMeta.RefreshInterval == 0 {
		c.ChainMeta.RefreshInterval = 5 * time.Second
	}
	if c.ChainMeta.MaxBlockhashAge == 0 {
		c.ChainMeta.MaxBlockhashAge = 30 * time.Second
	}

	if c.CH.FlushInterval == 0 {
		c.CH.FlushInterval = 10 * time.Second
	}
}
