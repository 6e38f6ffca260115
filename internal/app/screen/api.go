// Package screen provides the presentation controllers of the phone.
// Controllers receive a session identifier and always read the current
// status before acting.
package screen

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/exitcall/internal/app/navigation"
	"github.com/osa030/exitcall/internal/domain/call"
)

var (
	ErrNoCall            = errors.New("no call on this screen")
	ErrUnknownScreen     = errors.New("unknown screen")
	ErrActionUnavailable = errors.New("action not available on this screen")
)

// API is the session API the controllers talk to.
type API interface {
	GetSettings(ctx context.Context) (call.Settings, error)
	StartFromSettings(ctx context.Context) (*call.Session, error)
	GetSession(ctx context.Context, id string) (*call.Session, error)
	Accept(ctx context.Context, id string) (*call.Session, error)
	Decline(ctx context.Context, id string) (*call.Session, error)
	EndCall(ctx context.Context, id string) (*call.Session, error)
}

// Controller is a screen.
type Controller interface {
	Enter(ctx context.Context, req *navigation.Request) error
	Leave()
}

func callerName(req *navigation.Request) string {
	if req.Params.Caller == "" {
		return navigation.UnknownCaller
	}
	return req.Params.Caller
}
