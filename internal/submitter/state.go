package submitter

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// State of one SubmitAndConfirm call.
//
//	Built -> Signed -> Submitted -> Confirmed | Rejected | TimedOut
//	                             -> Retrying -> Signed -> Submitted ...
type State int

const (
	StateBuilt State = iota
	StateSigned
	StateSubmitted
	StateRetrying
	StateConfirmed
	StateRejected
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateSigned:
		return "signed"
	case StateSubmitted:
		return "submitted"
	case StateRetrying:
		return "retrying"
	case StateConfirmed:
		return "confirmed"
	case StateRejected:
		return "rejected"
	case StateTimedOut:
		return "timed_out"
	}

	return "unknown"
}

func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateRejected || s == StateTimedOut
}

// Event is emitted on every state transition.
type Event struct {
	MessageHash [32]byte
	State       State
	Signature   solana.Signature
	Attempt     uint32
	Slot        uint64
	Reason      error
	Time        time.Time
}

// Result is the terminal outcome of SubmitAndConfirm. Status is one of
// StateConfirmed, StateRejected or StateTimedOut.
type Result struct {
	Status    State
	Signature solana.Signature
	Slot      uint64
	Reason    error
	Attempts  uint32
}

// Outcome is a Result together with the call it belongs to.
type Outcome struct {
	MessageHash [32]byte
	Result      Result
	Started     time.Time
	Elapsed     time.Duration
}
