package relay

import "fmt"

// State is a step of one relayed call. A call moves forward through
// Authenticating, RequestingMetadata and Streaming and ends in Completed or
// Failed.
type State int

const (
	Authenticating State = iota
	RequestingMetadata
	Streaming
	Completed
	Failed
)

// String returns the state name used in logs, spans and metric labels.
func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case RequestingMetadata:
		return "requesting_metadata"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether s is Completed or Failed.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}
