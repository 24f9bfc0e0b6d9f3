package txn

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

var ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

const (
	setComputeUnitLimit = 2
	setComputeUnitPrice = 3
)

// ComputeUnitPriceInstruction sets the priority fee in micro-lamports per
// compute unit.
func ComputeUnitPriceInstruction(microLamports uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = setComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:], microLamports)

	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

func ComputeUnitLimitInstruction(units uint32) solana.Instruction {
	data := make([]byte, 5)
	data[0] = setComputeUnitLimit
	binary.LittleEndian.PutUint32(data[1:], units)

	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

// WithPriorityFee prepends a compute unit price instruction unless the fee
// is zero.
func WithPriorityFee(instructions []solana.Instruction, microLamports uint64) []solana.Instruction {
	if microLamports == 0 {
		return instructions
	}

	return append([]solana.Instruction{ComputeUnitPriceInstruction(microLamports)}, instructions...)
}
