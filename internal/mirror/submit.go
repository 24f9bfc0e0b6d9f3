package mirror

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"ledger-mirror/internal/submitter"
	"ledger-mirror/internal/txn"
)

var ErrSubmitterDisabled = errors.New("submitter disabled: no keypair configured")

// SubmitInstructions packs instructions into as few transactions as fit,
// prices each with the recent priority fee of feeGroup and submits them in
// order. It stops after the first transaction that is not confirmed.
func (m *mirror) SubmitInstructions(ctx context.Context, feeGroup string, instructions []solana.Instruction) ([]submitter.Result, error) {
	if m.submitter == nil {
		return nil, ErrSubmitterDisabled
	}

	hash, err := m.chainMeta.LatestBlockhash(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "latest blockhash")
	}
	signers := m.signer.PublicKeys()

	pts, err := m.builder.Split(instructions, signers, hash)
	if err != nil {
		return nil, err
	}

	fee, _ := m.chainMeta.PriorityFee(feeGroup)
	results := make([]submitter.Result, 0, len(pts))
	for _, pt := range pts {
		if fee > 0 {
			// a transaction packed to the limit has no room for the fee instruction
			if priced, err := m.builder.Build(txn.WithPriorityFee(pt.Instructions, fee), signers, hash); err == nil {
				pt = priced
			}
		}

		res := m.submitter.SubmitAndConfirm(ctx, pt)
		results = append(results, res)
		if res.Status != submitter.StateConfirmed {
			break
		}
	}

	return results, nil
}
