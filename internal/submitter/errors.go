package submitter

import "github.com/pkg/errors"

var (
	ErrSigningFailed       = errors.New("signing failed")
	ErrAttemptsExhausted   = errors.New("submission attempts exhausted")
	ErrDuplicateSubmission = errors.New("duplicate submission in flight")
)
