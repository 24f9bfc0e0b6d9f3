package remote

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// FetchedAccount is one account of a bulk fetch. Exists is false when the
// account does not exist at Slot.
type FetchedAccount struct {
	Key    solana.PublicKey
	Data   []byte
	Exists bool
	Slot   uint64
}

// AccountUpdate is a pushed account change. Deleted is set when the
// account was closed (zero lamports).
type AccountUpdate struct {
	Key     solana.PublicKey
	Data    []byte
	Slot    uint64
	Deleted bool
}

type AccountFetcher interface {
	FetchAccounts(ctx context.Context, keys []solana.PublicKey) ([]FetchedAccount, error)
}

// ProgramAccountFetcher lists the existing accounts owned by a program that
// match every filter.
type ProgramAccountFetcher interface {
	FetchProgramAccounts(ctx context.Context, program solana.PublicKey, filters []rpc.RPCFilter) ([]FetchedAccount, error)
}

// AccountStream delivers updates for a fixed key set. Any Recv error means
// the stream is unusable and must be closed.
type AccountStream interface {
	Recv(ctx context.Context) (AccountUpdate, error)
	Close() error
}

type AccountStreamer interface {
	SubscribeAccounts(ctx context.Context, keys []solana.PublicKey) (AccountStream, error)
}

// Signer signs tx for signers and returns the wire encoding.
type Signer interface {
	Sign(ctx context.Context, tx *solana.Transaction, signers []solana.PublicKey) ([]byte, error)
}

// TransactionSender submits signed transactions. Errors are *SubmitError.
type TransactionSender interface {
	SendTransaction(ctx context.Context, raw []byte) (solana.Signature, error)
}

// TxStatus is the ledger's view of a signature. Found is false while the
// transaction is unknown, Err is set when it landed but failed.
type TxStatus struct {
	Found bool
	Slot  uint64
	Level rpc.ConfirmationStatusType
	Err   error
}

type StatusReader interface {
	GetStatus(ctx context.Context, sig solana.Signature) (TxStatus, error)
}

type BlockhashSource interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	IsBlockhashValid(ctx context.Context, hash solana.Hash) (bool, error)
}

// PrioritizationFee is the minimum fee paid by a transaction landed in Slot.
type PrioritizationFee struct {
	Slot uint64
	Fee  uint64
}

// ChainReader is the chain metadata surface polled in the background.
type ChainReader interface {
	BlockhashSource
	RecentPrioritizationFees(ctx context.Context, keys []solana.PublicKey) ([]PrioritizationFee, error)
}

// ConfirmationRank orders commitment levels. Unknown levels rank 0.
func ConfirmationRank(level rpc.ConfirmationStatusType) int {
	switch level {
	case rpc.ConfirmationStatusProcessed:
		return 1
	case rpc.ConfirmationStatusConfirmed:
		return 2
	case rpc.ConfirmationStatusFinalized:
		return 3
	}

	return 0
}

// FinalityRank is the rank a transaction must reach to count as final. It is
// never below confirmed.
func FinalityRank(level string) int {
	rank := ConfirmationRank(rpc.ConfirmationStatusType(level))
	if floor := ConfirmationRank(rpc.ConfirmationStatusConfirmed); rank < floor {
		return floor
	}

	return rank
}
