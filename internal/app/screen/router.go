package screen

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/exitcall/internal/app/elapsed"
	"github.com/osa030/exitcall/internal/app/navigation"
	"github.com/osa030/exitcall/internal/domain/call"
)

// Action is a user action on the current screen.
type Action string

const (
	ActionStart   Action = "start"
	ActionAccept  Action = "accept"
	ActionDecline Action = "decline"
	ActionEnd     Action = "end"
)

// Router dispatches navigation requests to the screen controllers.
type Router struct {
	Staging  *Staging
	Incoming *Incoming
	InCall   *InCall

	mu      sync.Mutex
	current navigation.Screen
	lastSeq uint64
}

// NewRouter creates a router with the three screens writing to out.
func NewRouter(api API, out io.Writer, timer *elapsed.Timer) *Router {
	return &Router{
		Staging:  NewStaging(api, out),
		Incoming: NewIncoming(api, out),
		InCall:   NewInCall(api, out, timer),
	}
}

func (r *Router) controller(s navigation.Screen) (Controller, bool) {
	switch s {
	case navigation.ScreenStaging:
		return r.Staging, true
	case navigation.ScreenIncomingCall:
		return r.Incoming, true
	case navigation.ScreenInCall:
		return r.InCall, true
	}
	return nil, false
}

// Dispatch shows the requested screen. Requests older than the last one
// dispatched are ignored.
func (r *Router) Dispatch(ctx context.Context, req *navigation.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.SequenceNo != 0 && req.SequenceNo <= r.lastSeq {
		zlog.Debug().Msgf("Ignoring stale navigation: seq=%d last=%d", req.SequenceNo, r.lastSeq)
		return nil
	}

	next, ok := r.controller(req.Screen)
	if !ok {
		return errors.Wrapf(ErrUnknownScreen, "screen %q", req.Screen)
	}
	if req.SequenceNo != 0 {
		r.lastSeq = req.SequenceNo
	}

	if prev, ok := r.controller(r.current); ok {
		prev.Leave()
	}
	r.current = req.Screen
	return next.Enter(ctx, req)
}

// Current returns the screen shown.
func (r *Router) Current() navigation.Screen {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Do performs an action if the current screen offers it.
func (r *Router) Do(ctx context.Context, action Action) (*call.Session, error) {
	current := r.Current()
	if current == "" {
		current = navigation.ScreenStaging
	}

	switch {
	case action == ActionStart && current == navigation.ScreenStaging:
		return r.Staging.Start(ctx)
	case action == ActionAccept && current == navigation.ScreenIncomingCall:
		return r.Incoming.Accept(ctx)
	case action == ActionDecline && current == navigation.ScreenIncomingCall:
		return r.Incoming.Decline(ctx)
	case action == ActionEnd && current == navigation.ScreenInCall:
		return r.InCall.End(ctx)
	}
	return nil, errors.Wrapf(ErrActionUnavailable, "%s on %s", action, current)
}

// Close leaves the current screen.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.controller(r.current); ok {
		c.Leave()
	}
}
