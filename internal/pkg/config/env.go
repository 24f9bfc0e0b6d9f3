package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "mirror"

// struct field names are used for env variable names. Edit with care
type envOverrides struct {
	RpcEndpoints  []string `required:"false" split_words:"true"`
	WsEndpoint    string   `required:"false" split_words:"true"`
	KeypairPath   string   `required:"false" split_words:"true"`
	SqlitePath    string   `required:"false" split_words:"true"`
	ClickhouseDsn string   `required:"false" split_words:"true"`
	ApiPort       uint64   `required:"false" split_words:"true"`
	MetricsPort   uint64   `required:"false" split_words:"true"`
}

// applyEnv overrides secrets and endpoints from MIRROR_* variables.
func (c *Config) applyEnv(envFile string) error {
	if envFile != "" {
		err := godotenv.Load(envFile)
		if err != nil {
			return fmt.Errorf("godotenv.Load (%s): %s", envFile, err)
		}
	}

	var e envOverrides
	err := envconfig.Process(envPrefix, &e)
	if err != nil {
		return fmt.Errorf("envconfig.Process: %s", err)
	}

	if len(e.RpcEndpoints) != 0 {
		c.RPC.Endpoints = e.RpcEndpoints
	}
	if e.WsEndpoint != "" {
		c.RPC.WsEndpoint = e.WsEndpoint
	}
	if e.KeypairPath != "" {
		c.Wallet.KeypairPath = e.KeypairPath
	}
	if e.SqlitePath != "" {
		c.SQLite.DBPath = e.SqlitePath
	}
	if e.ClickhouseDsn != "" {
		c.CH.DSN = e.ClickhouseDsn
	}
	if e.ApiPort != 0 {
		c.API.Port = e.ApiPort
	}
	if e.MetricsPort != 0 {
		c.API.MetricsPort = e.MetricsPort
	}

	return nil
}
