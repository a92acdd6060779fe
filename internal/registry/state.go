package registry

// State is the coordinator's position in its cycle.
type State int32

const (
	StateIdle State = iota
	StateDiscovering
	StatePolling
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StatePolling:
		return "polling"
	case StatePublishing:
		return "publishing"
	default:
		return "unknown"
	}
}
