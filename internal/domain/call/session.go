package call

import "time"

// Session is the durable record of one simulated call attempt.
type Session struct {
	ID            string     // UUID
	Caller        string     // Snapshotted at creation
	Status        Status     // incoming | active | ended
	StartTime     time.Time  // Creation time
	ActivatedTime *time.Time // Set when accepted
	EndedTime     *time.Time // Set when ended
}

// NewSession creates a session in the incoming status.
func NewSession(id, caller string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Caller:    caller,
		Status:    StatusIncoming,
		StartTime: now,
	}
}

// Apply performs the transition on the in-memory record.
// It returns ErrInvalidTransition and leaves the record unchanged if the
// current status does not match the transition's source status.
func (s *Session) Apply(t Transition, now time.Time) error {
	if s.Status != t.From() || !CanTransition(s.Status, t.To()) {
		return NewInvalidTransition(s.ID, t, s.Status)
	}
	s.Status = t.To()
	switch s.Status {
	case StatusActive:
		s.ActivatedTime = &now
	case StatusEnded:
		s.EndedTime = &now
	}
	return nil
}

// Duration returns how long the session lasted, measured from activation
// when the call was answered. Zero until the session has ended.
func (s *Session) Duration() time.Duration {
	if s.EndedTime == nil {
		return 0
	}
	from := s.StartTime
	if s.ActivatedTime != nil {
		from = *s.ActivatedTime
	}
	return s.EndedTime.Sub(from)
}
