package dashboard

import "fmt"

// ConnState is the connectivity of the inbound feed as shown to the user.
type ConnState int

const (
	Connecting ConnState = iota
	Live
	Blocked
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Live:
		return "live"
	case Blocked:
		return "blocked"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// Status is the connectivity state plus the failure text when Blocked.
type Status struct {
	State   ConnState
	Message string
}

// Text is the label shown next to the status dot.
func (s Status) Text() string {
	switch s.State {
	case Live:
		return "Live"
	case Blocked:
		if s.Message != "" {
			return s.Message
		}
		return "Feed blocked"
	default:
		return "Connecting…"
	}
}

// Color is the status dot colour.
func (s Status) Color() string {
	if s.State == Live {
		return "#22c55e"
	}
	return "rgba(148,163,184,0.9)"
}
