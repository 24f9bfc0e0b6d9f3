package txn

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

var (
	ErrEmptyInstructions = errors.New("transaction has no instructions")
	ErrAmbiguousLookup   = errors.New("account in more than one lookup table")
)

// MissingSignerError lists keys that instructions require as signers but
// that were not provided. Missing is empty when no fee payer was given.
type MissingSignerError struct {
	Missing []solana.PublicKey
}

func (e *MissingSignerError) Error() string {
	if len(e.Missing) == 0 {
		return "missing signer: no fee payer"
	}

	keys := make([]string, len(e.Missing))
	for i, k := range e.Missing {
		keys[i] = k.String()
	}

	return fmt.Sprintf("missing signer: %s", strings.Join(keys, ", "))
}

// TransactionTooLargeError is returned when the serialized transaction does
// not fit the packet limit. Overflow is how many trailing instructions have
// to move to another transaction for the rest to fit.
type TransactionTooLargeError struct {
	Size         int
	Limit        int
	Instructions int
	Overflow     int
}

func (e *TransactionTooLargeError) Error() string {
	return fmt.Sprintf("transaction too large: %d bytes, limit %d, %d of %d instructions overflow",
		e.Size, e.Limit, e.Overflow, e.Instructions)
}
