package screen

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/osa030/exitcall/internal/app/elapsed"
	"github.com/osa030/exitcall/internal/app/navigation"
	"github.com/osa030/exitcall/internal/domain/call"
)

// InCall shows an answered call with its elapsed time.
type InCall struct {
	api   API
	out   io.Writer
	timer *elapsed.Timer

	mu        sync.Mutex
	sessionID string
}

// NewInCall creates the in-call screen.
func NewInCall(api API, out io.Writer, timer *elapsed.Timer) *InCall {
	if timer == nil {
		timer = elapsed.New()
	}
	return &InCall{api: api, out: out, timer: timer}
}

func (s *InCall) Enter(ctx context.Context, req *navigation.Request) error {
	s.Leave()

	session, err := s.api.GetSession(ctx, req.Params.SessionID)
	if err != nil {
		fmt.Fprintf(s.out, "Could not load call: %v\n", err)
		return err
	}
	if session.Status != call.StatusActive {
		fmt.Fprintf(s.out, "Call with %s is not active (%s)\n", session.Caller, session.Status)
		return nil
	}

	s.mu.Lock()
	s.sessionID = session.ID
	s.mu.Unlock()

	fmt.Fprintf(s.out, "In call with %s %s\n", callerName(req), elapsed.Format(0))
	ticks := s.timer.Start(context.WithoutCancel(ctx))
	go func() {
		for n := range ticks {
			s.mu.Lock()
			fmt.Fprintf(s.out, "In call with %s %s\n", callerName(req), elapsed.Format(n))
			s.mu.Unlock()
		}
	}()
	return nil
}

// Leave stops the elapsed display.
func (s *InCall) Leave() {
	s.timer.Stop()
	s.mu.Lock()
	s.sessionID = ""
	s.mu.Unlock()
}

// SessionID returns the active session, or "" when none.
func (s *InCall) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// End hangs up.
func (s *InCall) End(ctx context.Context) (*call.Session, error) {
	id := s.SessionID()
	if id == "" {
		return nil, ErrNoCall
	}
	s.timer.Stop()
	return s.api.EndCall(ctx, id)
}
