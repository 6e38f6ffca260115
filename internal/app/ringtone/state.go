// Package ringtone provides looping ringtone playback for incoming calls.
package ringtone

// State represents the playback state of a handle.
type State int

const (
	StateIdle    State = iota // Acquired, not started
	StateRinging              // Playing (or silently ringing)
	StateStopped              // Stopped, position reset
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRinging:
		return "ringing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
