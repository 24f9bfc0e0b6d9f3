package config

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
)

func (c Config) validate() error {
	if err := c.RPC.validate(); err != nil {
		return fmt.Errorf("rpc: %s", err)
	}
	if err := c.Sync.validate(); err != nil {
		return fmt.Errorf("sync: %s", err)
	}
	if err := c.Loader.validate(); err != nil {
		return fmt.Errorf("loader: %s", err)
	}
	if err := c.Submitter.validate(); err != nil {
		return fmt.Errorf("submitter: %s", err)
	}
	if err := c.ChainMeta.validate(); err != nil {
		return fmt.Errorf("chain_meta: %s", err)
	}
	if err := c.Accounts.validate(); err != nil {
		return fmt.Errorf("accounts: %s", err)
	}

	return nil
}

func (r RPCConfig) validate() error {
	if len(r.Endpoints) == 0 {
		return fmt.Errorf("no endpoints")
	}
	for _, e := range r.Endpoints {
		if e == "" {
			return fmt.Errorf("empty endpoint")
		}
	}
	if !isCommitment(r.Commitment) {
		return fmt.Errorf("invalid commitment: %s", r.Commitment)
	}

	return nil
}

func (s SyncConfig) validate() error {
	if s.ReconnectMinDelay > s.ReconnectMaxDelay {
		return fmt.Errorf("reconnect_min_delay %s > reconnect_max_delay %s", s.ReconnectMinDelay, s.ReconnectMaxDelay)
	}
	if s.LivenessTimeout < 0 {
		return fmt.Errorf("invalid liveness_timeout: %s", s.LivenessTimeout)
	}

	return nil
}

func (l LoaderConfig) validate() error {
	if l.BatchSize <= 0 || l.BatchSize > 100 {
		return fmt.Errorf("invalid batch_size: %d", l.BatchSize)
	}
	if l.Concurrency <= 0 {
		return fmt.Errorf("invalid concurrency: %d", l.Concurrency)
	}
	if l.RetryLimit < 0 {
		return fmt.Errorf("invalid retry_limit: %d", l.RetryLimit)
	}

	return nil
}

func (s SubmitterConfig) validate() error {
	if !isCommitment(s.Finality) || s.Finality == "processed" {
		return fmt.Errorf("invalid finality: %s", s.Finality)
	}
	if s.RetryMinDelay > s.RetryMaxDelay {
		return fmt.Errorf("retry_min_delay %s > retry_max_delay %s", s.RetryMinDelay, s.RetryMaxDelay)
	}

	return nil
}

func (c ChainMetaConfig) validate() error {
	if err := validateGroups(c.FeeGroups); err != nil {
		return fmt.Errorf("fee_groups: %s", err)
	}

	return nil
}

func (a AccountsConfig) validate() error {
	return validateGroups(a.Groups)
}

func validateGroups(groups []AccountGroup) error {
	names := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if g.Name == "" {
			return fmt.Errorf("group without name")
		}
		if _, ok := names[g.Name]; ok {
			return fmt.Errorf("duplicate group %s", g.Name)
		}
		names[g.Name] = struct{}{}

		for _, k := range g.Keys {
			_, err := solana.PublicKeyFromBase58(k)
			if err != nil {
				return fmt.Errorf("group %s: key %s: %s", g.Name, k, err)
			}
		}
		if g.Program == "" {
			if len(g.Filters) != 0 {
				return fmt.Errorf("group %s: filters without program", g.Name)
			}
			continue
		}
		if _, err := solana.PublicKeyFromBase58(g.Program); err != nil {
			return fmt.Errorf("group %s: program %s: %s", g.Name, g.Program, err)
		}
		for i, f := range g.Filters {
			if err := f.validate(); err != nil {
				return fmt.Errorf("group %s: filter %d: %s", g.Name, i, err)
			}
		}
	}

	return nil
}

func (f AccountFilter) validate() error {
	switch {
	case f.DataSize != 0 && f.Bytes != "":
		return fmt.Errorf("both data_size and bytes set")
	case f.DataSize != 0:
		return nil
	case f.Bytes == "":
		return fmt.Errorf("neither data_size nor bytes set")
	}
	if _, err := base58.Decode(f.Bytes); err != nil {
		return fmt.Errorf("bytes %q: %s", f.Bytes, err)
	}

	return nil
}

func isCommitment(c string) bool {
	switch c {
	case "processed", "confirmed", "finalized":
		return true
	}

	return false
}

// ProgramKey decodes the group program. ok is false for plain key groups.
func (g AccountGroup) ProgramKey() (program solana.PublicKey, ok bool) {
	if g.Program == "" {
		return program, false
	}

	return solana.MustPublicKeyFromBase58(g.Program), true
}

// RPCFilters converts the group filters for getProgramAccounts.
func (g AccountGroup) RPCFilters() []rpc.RPCFilter {
	filters := make([]rpc.RPCFilter, 0, len(g.Filters))
	for _, f := range g.Filters {
		if f.DataSize != 0 {
			filters = append(filters, rpc.RPCFilter{DataSize: f.DataSize})
			continue
		}
		// validated on load
		b, _ := base58.Decode(f.Bytes)
		filters = append(filters, rpc.RPCFilter{Memcmp: &rpc.RPCFilterMemcmp{
			Offset: f.Offset,
			Bytes:  solana.Base58(b),
		}})
	}

	return filters
}

// PublicKeys decodes the group keys. Groups are validated on load.
func (g AccountGroup) PublicKeys() []solana.PublicKey {
	keys := make([]solana.PublicKey, 0, len(g.Keys))
	for _, k := range g.Keys {
		keys = append(keys, solana.MustPublicKeyFromBase58(k))
	}

	return keys
}
