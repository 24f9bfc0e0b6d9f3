package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
rpc:
  endpoints:
    - https://api.mainnet-beta.solana.com
  ws_endpoint: wss://api.mainnet-beta.solana.com
loader:
  batch_size: 50
submitter:
  finality: finalized
accounts:
  groups:
    - name: pools
      keys:
        - So11111111111111111111111111111111111111112
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := LoadFile(writeFile(t, "config.yml", testConfig), "")
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Loader.BatchSize)
	assert.Equal(t, defaultConcurrency, cfg.Loader.Concurrency)
	assert.Equal(t, "finalized", cfg.Submitter.Finality)
	assert.Equal(t, defaultCommitment, cfg.RPC.Commitment)
	assert.Equal(t, 5*time.Second, cfg.ChainMeta.RefreshInterval)
	assert.Equal(t, time.Minute, cfg.Sync.LivenessTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TombstoneTTL)
	require.Len(t, cfg.Accounts.Groups, 1)
	assert.Len(t, cfg.Accounts.Groups[0].PublicKeys(), 1)
}

func TestLoadFileEnvOverrides(t *testing.T) {
	envFile := writeFile(t, ".env", "MIRROR_RPC_ENDPOINTS=http://a:8899,http://b:8899\nMIRROR_CLICKHOUSE_DSN=clickhouse://localhost:9000/mirror\n")
	t.Cleanup(func() {
		os.Unsetenv("MIRROR_RPC_ENDPOINTS")
		os.Unsetenv("MIRROR_CLICKHOUSE_DSN")
	})

	cfg, err := LoadFile(writeFile(t, "config.yml", testConfig), envFile)
	require.NoError(t, err)

	assert.Equal(t, []string{"http://a:8899", "http://b:8899"}, cfg.RPC.Endpoints)
	assert.Equal(t, "clickhouse://localhost:9000/mirror", cfg.CH.DSN)
}

func TestLivenessTimeoutOverride(t *testing.T) {
	cfg, err := LoadFile(writeFile(t, "config.yml", "rpc:\n  endpoints: [http://a]\nsync:\n  liveness_timeout: 15s\n"), "")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Sync.LivenessTimeout)

	_, err = LoadFile(writeFile(t, "config.yml", "rpc:\n  endpoints: [http://a]\nsync:\n  liveness_timeout: -1s\n"), "")
	require.Error(t, err)
}

func TestProgramGroup(t *testing.T) {
	content := `
rpc:
  endpoints: [http://a]
accounts:
  groups:
    - name: markets
      program: MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr
      filters:
        - data_size: 165
        - offset: 32
          bytes: 3Bxs4h24hBtQy9rw
`
	cfg, err := LoadFile(writeFile(t, "config.yml", content), "")
	require.NoError(t, err)
	require.Len(t, cfg.Accounts.Groups, 1)
	g := cfg.Accounts.Groups[0]

	program, ok := g.ProgramKey()
	require.True(t, ok)
	assert.Equal(t, "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr", program.String())
	assert.Empty(t, g.PublicKeys())

	filters := g.RPCFilters()
	require.Len(t, filters, 2)
	assert.Equal(t, uint64(165), filters[0].DataSize)
	require.NotNil(t, filters[1].Memcmp)
	assert.Equal(t, uint64(32), filters[1].Memcmp.Offset)
	assert.Equal(t, "3Bxs4h24hBtQy9rw", filters[1].Memcmp.Bytes.String())

	_, ok = AccountGroup{Name: "plain"}.ProgramKey()
	assert.False(t, ok)
}

func TestLoadUnknownField(t *testing.T) {
	_, err := Load([]byte("rpc:\n  endpoint: x\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"no endpoints":      "rpc:\n  endpoints: []\n",
		"bad batch size":    "rpc:\n  endpoints: [http://a]\nloader:\n  batch_size: 101\n",
		"bad finality":      "rpc:\n  endpoints: [http://a]\nsubmitter:\n  finality: processed\n",
		"bad key":           "rpc:\n  endpoints: [http://a]\naccounts:\n  groups:\n    - name: x\n      keys: [nope]\n",
		"bad program":       "rpc:\n  endpoints: [http://a]\naccounts:\n  groups:\n    - name: x\n      program: nope\n",
		"filter no program": "rpc:\n  endpoints: [http://a]\naccounts:\n  groups:\n    - name: x\n      filters: [{data_size: 8}]\n",
		"empty filter":      "rpc:\n  endpoints: [http://a]\naccounts:\n  groups:\n    - name: x\n      program: 11111111111111111111111111111111\n      filters: [{offset: 8}]\n",
		"bad filter bytes":  "rpc:\n  endpoints: [http://a]\naccounts:\n  groups:\n    - name: x\n      program: 11111111111111111111111111111111\n      filters: [{offset: 8, bytes: 0OIl}]\n",
		"duplicate group":   "rpc:\n  endpoints: [http://a]\naccounts:\n  groups:\n    - name: x\n    - name: x\n",
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, "config.yml", content), "")
			require.Error(t, err)
		})
	}
}
