// Package call provides the simulated call domain: sessions, settings and transition rules.
package call

// Status represents the durable lifecycle status of a call session.
type Status string

const (
	StatusIncoming Status = "incoming" // Record created, call not yet answered
	StatusActive   Status = "active"   // Call accepted
	StatusEnded    Status = "ended"    // Terminal
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusIncoming, StatusActive, StatusEnded:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no transition may leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusEnded
}

// rank orders statuses so that transitions can only move forward.
func (s Status) rank() int {
	switch s {
	case StatusIncoming:
		return 1
	case StatusActive:
		return 2
	case StatusEnded:
		return 3
	default:
		return 0
	}
}

// Transition names a state machine operation.
type Transition int

const (
	TransitionAccept  Transition = iota // incoming -> active
	TransitionDecline                   // incoming -> ended
	TransitionEnd                       // active -> ended
	TransitionExpire                    // incoming -> ended, without user action
)

// String returns the string representation of the transition.
func (t Transition) String() string {
	switch t {
	case TransitionAccept:
		return "accept"
	case TransitionDecline:
		return "decline"
	case TransitionEnd:
		return "end"
	case TransitionExpire:
		return "expire"
	default:
		return "unknown"
	}
}

// From returns the only status the transition may start from.
func (t Transition) From() Status {
	switch t {
	case TransitionEnd:
		return StatusActive
	default:
		return StatusIncoming
	}
}

// To returns the status the transition moves to.
func (t Transition) To() Status {
	switch t {
	case TransitionAccept:
		return StatusActive
	default:
		return StatusEnded
	}
}

// LeavesIncoming returns true if the transition exits the incoming state.
func (t Transition) LeavesIncoming() bool {
	return t.From() == StatusIncoming
}

// CanTransition reports whether moving from one status to another is legal.
// Status never moves backward and ended is terminal.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.IsTerminal() {
		return false
	}
	if to.rank() <= from.rank() {
		return false
	}
	return true
}
