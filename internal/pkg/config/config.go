package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration of the mirror daemon.
type Config struct {
	RPC       RPCConfig        `yaml:"rpc"`
	Cache     CacheConfig      `yaml:"cache"`
	Sync      SyncConfig       `yaml:"sync"`
	Loader    LoaderConfig     `yaml:"loader"`
	Submitter SubmitterConfig  `yaml:"submitter"`
	ChainMeta ChainMetaConfig  `yaml:"chain_meta"`
	Accounts  AccountsConfig   `yaml:"accounts"`
	Wallet    WalletConfig     `yaml:"wallet"`
	API       ApiConfig        `yaml:"api"`
	SQLite    SQLiteConfig     `yaml:"sqlite"`
	CH        ClickhouseConfig `yaml:"clickhouse"`
}

type RPCConfig struct {
	Endpoints     []string      `yaml:"endpoints"`
	WsEndpoint    string        `yaml:"ws_endpoint"`
	Commitment    string        `yaml:"commitment"`
	Timeout       time.Duration `yaml:"timeout"`
	SkipPreflight bool          `yaml:"skip_preflight"`
}

type CacheConfig struct {
	WatchBuffer  int           `yaml:"watch_buffer"`
	TombstoneTTL time.Duration `yaml:"tombstone_ttl"`
}

type SyncConfig struct {
	ReconnectMinDelay  time.Duration `yaml:"reconnect_min_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	LivenessTimeout    time.Duration `yaml:"liveness_timeout"`
	StalenessThreshold time.Duration `yaml:"staleness_threshold"`
}

type LoaderConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	Concurrency  int           `yaml:"concurrency"`
	RetryLimit   int           `yaml:"retry_limit"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type SubmitterConfig struct {
	MaxAttempts    uint32        `yaml:"max_attempts"`
	RetryMinDelay  time.Duration `yaml:"retry_min_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	Finality       string        `yaml:"finality"`
	DedupeTTL      time.Duration `yaml:"dedupe_ttl"`
}

type ChainMetaConfig struct {
	RefreshInterval time.Duration  `yaml:"refresh_interval"`
	MaxBlockhashAge time.Duration  `yaml:"max_blockhash_age"`
	PriorityFees    bool           `yaml:"priority_fees"`
	FeeGroups       []AccountGroup `yaml:"fee_groups"`
}

type AccountsConfig struct {
	Groups []AccountGroup `yaml:"groups"`
}

// AccountGroup is a named key set. With Program set the group also holds
// every account owned by the program that matches all Filters.
type AccountGroup struct {
	Name    string          `yaml:"name"`
	Keys    []string        `yaml:"keys"`
	Program string          `yaml:"program"`
	Filters []AccountFilter `yaml:"filters"`
}

// AccountFilter matches accounts of DataSize bytes when DataSize is set,
// otherwise accounts whose data holds Bytes (base58) at Offset.
type AccountFilter struct {
	DataSize uint64 `yaml:"data_size"`
	Offset   uint64 `yaml:"offset"`
	Bytes    string `yaml:"bytes"`
}

type WalletConfig struct {
	KeypairPath string `yaml:"keypair_path"`
}

type ApiConfig struct {
	Port        uint64 `yaml:"port"`
	MetricsPort uint64 `yaml:"metrics_port"`
}

type SQLiteConfig struct {
	DBPath string `yaml:"db_path"`
}

type ClickhouseConfig struct {
	DSN           string        `yaml:"dsn"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// LoadFile parses the given YAML file into a Config, applies environment
// overrides (optionally read from envFile) and validates the result.
func LoadFile(filename, envFile string) (c Config, err error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return c, err
	}
	cfg, err := Load(content)
	if err != nil {
		return c, fmt.Errorf("parsing YAML file %s: %s", filename, err)
	}

	err = cfg.applyEnv(envFile)
	if err != nil {
		return c, fmt.Errorf("env overrides: %s", err)
	}

	cfg.setDefaults()

	err = cfg.validate()
	if err != nil {
		return c, fmt.Errorf("validate %s: %s", filename, err)
	}

	return cfg, nil
}

// Load parses the YAML input s into a Config.
func Load(s []byte) (cfg Config, err error) {
	d := yaml.NewDecoder(bytes.NewBuffer(s))
	d.KnownFields(true)
	err = d.Decode(&cfg)
	if err != nil {
		return cfg, err
	}

	return cfg, nil
}
