package call

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidTransition is returned when a transition is attempted from the wrong status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrStoreUnavailable marks failures of the persistent record store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUnsupportedUpload is returned when an uploaded file is not audio.
	ErrUnsupportedUpload = errors.New("unsupported upload")
	// ErrPlaybackFailure is returned when a ringtone could not start.
	ErrPlaybackFailure = errors.New("playback failure")
	// ErrSessionNotFound is returned when no session has the given id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidSettings is returned when a settings patch or call request fails validation.
	ErrInvalidSettings = errors.New("invalid settings")
)

// InvalidTransitionError carries the status found when a transition was rejected.
type InvalidTransitionError struct {
	SessionID  string
	Transition Transition
	Current    Status
}

func (e *InvalidTransitionError) Error() string {
	return "cannot " + e.Transition.String() + " session " + e.SessionID + " in status " + e.Current.String()
}

// Is enables errors.Is(err, ErrInvalidTransition).
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// NewInvalidTransition returns an error describing a rejected transition.
func NewInvalidTransition(sessionID string, t Transition, current Status) error {
	return &InvalidTransitionError{SessionID: sessionID, Transition: t, Current: current}
}

// StoreUnavailable marks err as a store failure and adds context.
func StoreUnavailable(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(errors.Mark(err, ErrStoreUnavailable), msg)
}
