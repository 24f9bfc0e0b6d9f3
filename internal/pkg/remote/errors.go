package remote

import (
	"fmt"

	"github.com/pkg/errors"

	solanaUtil "ledger-mirror/internal/pkg/util/solana"
)

var ErrNoEndpoints = errors.New("no rpc endpoints")

// SubmitError is returned by TransactionSender. Permanent errors fail the
// same way on every retry.
type SubmitError struct {
	Permanent bool
	Err       error
}

func (e *SubmitError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}

	return fmt.Sprintf("%s submit error: %s", kind, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// NewSubmitError classifies err by its JSON-RPC error code.
func NewSubmitError(err error) *SubmitError {
	return &SubmitError{Permanent: solanaUtil.IsPermanentError(err), Err: err}
}

// IsPermanent reports whether err is a permanent *SubmitError.
func IsPermanent(err error) bool {
	var se *SubmitError
	if errors.As(err, &se) {
		return se.Permanent
	}

	return false
}
