package screen

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/osa030/exitcall/internal/app/navigation"
	"github.com/osa030/exitcall/internal/domain/call"
)

// Incoming shows a ringing call.
type Incoming struct {
	api API
	out io.Writer

	mu        sync.Mutex
	sessionID string
}

// NewIncoming creates the incoming-call screen.
func NewIncoming(api API, out io.Writer) *Incoming {
	return &Incoming{api: api, out: out}
}

func (s *Incoming) Enter(ctx context.Context, req *navigation.Request) error {
	s.setSession("")

	session, err := s.api.GetSession(ctx, req.Params.SessionID)
	if err != nil {
		fmt.Fprintf(s.out, "Could not load call: %v\n", err)
		return err
	}
	if session.Status != call.StatusIncoming {
		fmt.Fprintf(s.out, "Call from %s is no longer ringing (%s)\n", session.Caller, session.Status)
		return nil
	}

	s.setSession(session.ID)
	fmt.Fprintf(s.out, "Incoming call from %s\n", callerName(req))
	if req.Params.RingtoneURL != "" {
		fmt.Fprintf(s.out, "Ringtone: %s\n", req.Params.RingtoneURL)
	}
	return nil
}

func (s *Incoming) Leave() {
	s.setSession("")
}

// SessionID returns the ringing session, or "" when none.
func (s *Incoming) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Incoming) setSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = id
}

// Accept answers the ringing call.
func (s *Incoming) Accept(ctx context.Context) (*call.Session, error) {
	id := s.SessionID()
	if id == "" {
		return nil, ErrNoCall
	}
	return s.api.Accept(ctx, id)
}

// Decline rejects the ringing call.
func (s *Incoming) Decline(ctx context.Context) (*call.Session, error) {
	id := s.SessionID()
	if id == "" {
		return nil, ErrNoCall
	}
	return s.api.Decline(ctx, id)
}
