package screen

import (
	"context"
	"fmt"
	"io"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/exitcall/internal/app/navigation"
	"github.com/osa030/exitcall/internal/domain/call"
)

// Staging shows the saved settings and starts calls.
type Staging struct {
	api API
	out io.Writer
}

// NewStaging creates the staging screen.
func NewStaging(api API, out io.Writer) *Staging {
	return &Staging{api: api, out: out}
}

func (s *Staging) Enter(ctx context.Context, req *navigation.Request) error {
	if req.Notice != "" {
		fmt.Fprintf(s.out, "! %s\n", req.Notice)
	}

	settings, err := s.api.GetSettings(ctx)
	if err != nil {
		zlog.Warn().Err(err).Msg("Failed to load settings, showing defaults")
		settings = call.DefaultSettings()
	}

	ringtone := settings.Ringtone
	if settings.CustomRingtoneURL != "" {
		ringtone = "custom (" + settings.CustomRingtoneURL + ")"
	}
	fmt.Fprintf(s.out, "Ready: caller=%s delay=%ds ringtone=%s\n", settings.SelectedCaller, settings.DelaySeconds, ringtone)
	return nil
}

func (s *Staging) Leave() {}

// Start schedules a call with the saved settings.
func (s *Staging) Start(ctx context.Context) (*call.Session, error) {
	session, err := s.api.StartFromSettings(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "Could not start call: %v\n", err)
		return nil, err
	}
	fmt.Fprintf(s.out, "Call from %s scheduled\n", session.Caller)
	return session, nil
}
