package streaming

// State of a subscription.
//
//	Idle -> Subscribing -> Streaming -> Reconnecting -> Subscribing -> ...
//	any -> Closed
type State int32

const (
	StateIdle State = iota
	StateSubscribing
	StateStreaming
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}

	return "unknown"
}
