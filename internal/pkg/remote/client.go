package remote

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"

	"ledger-mirror/internal/pkg/config"
	"ledger-mirror/internal/pkg/log"
	solanaUtil "ledger-mirror/internal/pkg/util/solana"
)

// Client talks to a pool of RPC nodes. Each call starts on the next node in
// round robin order and fails over to the others on transient errors.
type Client struct {
	urls          []string
	rpcs          []*rpc.Client
	next          atomic.Uint32
	commitment    rpc.CommitmentType
	skipPreflight bool
}

func NewClient(cfg config.RPCConfig) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	c := &Client{
		urls:          cfg.Endpoints,
		commitment:    rpc.CommitmentType(cfg.Commitment),
		skipPreflight: cfg.SkipPreflight,
	}
	for _, url := range cfg.Endpoints {
		c.rpcs = append(c.rpcs, createRpcWithTimeout(url, cfg.Timeout))
	}

	return c, nil
}

func newClientWithRPCs(urls []string, rpcs []*rpc.Client, commitment rpc.CommitmentType) *Client {
	return &Client{urls: urls, rpcs: rpcs, commitment: commitment}
}

func (c *Client) executeWithFailover(ctx context.Context, method string, fn func(*rpc.Client) error) (err error) {
	start := int(c.next.Add(1))
	for i := 0; i < len(c.rpcs); i++ {
		idx := (start + i) % len(c.rpcs)

		err = fn(c.rpcs[idx])
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || solanaUtil.IsPermanentError(err) {
			return err
		}

		log.Logger.Remote.Warnf("%s on %s: %s", method, c.urls[idx], solanaUtil.FormatError(err))
	}

	return err
}

func (c *Client) FetchAccounts(ctx context.Context, keys []solana.PublicKey) ([]FetchedAccount, error) {
	if len(keys) > solanaUtil.MaxMultipleAccounts {
		return nil, fmt.Errorf("%s: %d keys, limit %d", solanaUtil.GetMultipleAccounts, len(keys), solanaUtil.MaxMultipleAccounts)
	}

	var res *rpc.GetMultipleAccountsResult
	err := c.executeWithFailover(ctx, solanaUtil.GetMultipleAccounts, func(cl *rpc.Client) (err error) {
		res, err = cl.GetMultipleAccountsWithOpts(ctx, keys, &rpc.GetMultipleAccountsOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: c.commitment,
		})
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, solanaUtil.GetMultipleAccounts)
	}

	return fetchedFromResult(keys, res)
}

// FetchProgramAccounts returns the accounts owned by program. The response
// carries no context slot, so every account is stamped with the slot read
// from the same node right before the query.
func (c *Client) FetchProgramAccounts(ctx context.Context, program solana.PublicKey, filters []rpc.RPCFilter) ([]FetchedAccount, error) {
	var (
		slot uint64
		res  rpc.GetProgramAccountsResult
	)
	err := c.executeWithFailover(ctx, solanaUtil.GetProgramAccounts, func(cl *rpc.Client) (err error) {
		slot, err = cl.GetSlot(ctx, c.commitment)
		if err != nil {
			return errors.Wrap(err, solanaUtil.GetSlot)
		}
		res, err = cl.GetProgramAccountsWithOpts(ctx, program, &rpc.GetProgramAccountsOpts{
			Commitment: c.commitment,
			Encoding:   solana.EncodingBase64,
			Filters:    filters,
		})
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", solanaUtil.GetProgramAccounts, program)
	}

	out := make([]FetchedAccount, 0, len(res))
	for _, acc := range res {
		if acc == nil || acc.Account == nil {
			continue
		}
		fa := FetchedAccount{Key: acc.Pubkey, Exists: true, Slot: slot}
		if acc.Account.Data != nil {
			fa.Data = acc.Account.Data.GetBinary()
		}
		out = append(out, fa)
	}

	return out, nil
}

func fetchedFromResult(keys []solana.PublicKey, res *rpc.GetMultipleAccountsResult) ([]FetchedAccount, error) {
	if res == nil {
		return nil, fmt.Errorf("%s: empty result", solanaUtil.GetMultipleAccounts)
	}
	if len(res.Value) != len(keys) {
		return nil, fmt.Errorf("%s: got %d accounts for %d keys", solanaUtil.GetMultipleAccounts, len(res.Value), len(keys))
	}

	out := make([]FetchedAccount, len(keys))
	for i, acc := range res.Value {
		out[i] = FetchedAccount{Key: keys[i], Slot: res.Context.Slot}
		if acc == nil {
			continue
		}
		out[i].Exists = true
		if acc.Data != nil {
			out[i].Data = acc.Data.GetBinary()
		}
	}

	return out, nil
}

func (c *Client) SendTransaction(ctx context.Context, raw []byte) (sig solana.Signature, err error) {
	err = c.executeWithFailover(ctx, solanaUtil.SendTransaction, func(cl *rpc.Client) (err error) {
		sig, err = cl.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
			SkipPreflight:       c.skipPreflight,
			PreflightCommitment: c.commitment,
		})
		return err
	})
	if err != nil {
		return sig, NewSubmitError(err)
	}

	return sig, nil
}

func (c *Client) GetStatus(ctx context.Context, sig solana.Signature) (TxStatus, error) {
	var res *rpc.GetSignatureStatusesResult
	err := c.executeWithFailover(ctx, solanaUtil.GetSignatureStatuses, func(cl *rpc.Client) (err error) {
		res, err = cl.GetSignatureStatuses(ctx, false, sig)
		return err
	})
	if err != nil {
		return TxStatus{}, errors.Wrap(err, solanaUtil.GetSignatureStatuses)
	}

	return statusFromResult(res), nil
}

func statusFromResult(res *rpc.GetSignatureStatusesResult) TxStatus {
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return TxStatus{}
	}

	st := res.Value[0]
	out := TxStatus{
		Found: true,
		Slot:  st.Slot,
		Level: st.ConfirmationStatus,
	}
	if st.Err != nil {
		out.Err = fmt.Errorf("transaction failed: %v", st.Err)
	}

	return out
}

func (c *Client) LatestBlockhash(ctx context.Context) (hash solana.Hash, err error) {
	err = c.executeWithFailover(ctx, solanaUtil.GetLatestBlockhash, func(cl *rpc.Client) error {
		res, err := cl.GetLatestBlockhash(ctx, c.commitment)
		if err != nil {
			return err
		}
		hash = res.Value.Blockhash
		return nil
	})
	if err != nil {
		return hash, errors.Wrap(err, solanaUtil.GetLatestBlockhash)
	}

	return hash, nil
}

func (c *Client) IsBlockhashValid(ctx context.Context, hash solana.Hash) (valid bool, err error) {
	err = c.executeWithFailover(ctx, solanaUtil.IsBlockhashValid, func(cl *rpc.Client) error {
		res, err := cl.IsBlockhashValid(ctx, hash, c.commitment)
		if err != nil {
			return err
		}
		valid = res.Value
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, solanaUtil.IsBlockhashValid)
	}

	return valid, nil
}

func (c *Client) RecentPrioritizationFees(ctx context.Context, keys []solana.PublicKey) (fees []PrioritizationFee, err error) {
	err = c.executeWithFailover(ctx, solanaUtil.GetRecentPrioritizationFees, func(cl *rpc.Client) error {
		res, err := cl.GetRecentPrioritizationFees(ctx, solana.PublicKeySlice(keys))
		if err != nil {
			return err
		}
		fees = make([]PrioritizationFee, 0, len(res))
		for _, f := range res {
			fees = append(fees, PrioritizationFee{Slot: f.Slot, Fee: f.PrioritizationFee})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, solanaUtil.GetRecentPrioritizationFees)
	}

	return fees, nil
}

// Ping checks that at least one endpoint answers.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := c.LatestBlockhash(ctx)
	return err
}
