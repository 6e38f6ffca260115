// Package connect provides the Connect RPC surface of the call simulation.
package connect

import (
	"context"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/exitcall/internal/app/callsession"
	"github.com/osa030/exitcall/internal/app/navigation"
	"github.com/osa030/exitcall/internal/domain/call"
)

// CallServiceName is the fully-qualified name of the service.
const CallServiceName = "exitcall.v1.CallService"

// Procedure paths.
const (
	CallServiceGetSettingsProcedure         = "/" + CallServiceName + "/GetSettings"
	CallServiceSaveSettingsProcedure        = "/" + CallServiceName + "/SaveSettings"
	CallServiceStartCallProcedure           = "/" + CallServiceName + "/StartCall"
	CallServiceAcceptProcedure              = "/" + CallServiceName + "/Accept"
	CallServiceDeclineProcedure             = "/" + CallServiceName + "/Decline"
	CallServiceEndCallProcedure             = "/" + CallServiceName + "/EndCall"
	CallServiceGetSessionProcedure          = "/" + CallServiceName + "/GetSession"
	CallServiceListSessionsProcedure        = "/" + CallServiceName + "/ListSessions"
	CallServiceExpireStaleProcedure         = "/" + CallServiceName + "/ExpireStale"
	CallServiceSubscribeNavigationProcedure = "/" + CallServiceName + "/SubscribeNavigation"
)

// SettingsStore loads and saves the settings record.
type SettingsStore interface {
	Load(ctx context.Context) (call.Settings, error)
	Save(ctx context.Context, patch call.SettingsPatch) (call.Settings, error)
}

// CallService implements CallService.
type CallService struct {
	machine     *callsession.Machine
	settings    SettingsStore
	broadcaster *navigation.Broadcaster
	staleAfter  time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// NewCallService creates a new CallService. staleAfter is the default
// threshold of ExpireStale; zero requires callers to pass one.
func NewCallService(machine *callsession.Machine, settings SettingsStore, broadcaster *navigation.Broadcaster, staleAfter time.Duration) *CallService {
	return &CallService{
		machine:     machine,
		settings:    settings,
		broadcaster: broadcaster,
		staleAfter:  staleAfter,
		done:        make(chan struct{}),
	}
}

// Close ends all navigation streams.
func (s *CallService) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// NewCallServiceHandler builds an HTTP handler serving every procedure.
// It returns the path to mount the handler on.
func NewCallServiceHandler(svc *CallService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	handlers := map[string]http.Handler{
		CallServiceGetSettingsProcedure:         connect.NewUnaryHandler(CallServiceGetSettingsProcedure, svc.GetSettings, opts...),
		CallServiceSaveSettingsProcedure:        connect.NewUnaryHandler(CallServiceSaveSettingsProcedure, svc.SaveSettings, opts...),
		CallServiceStartCallProcedure:           connect.NewUnaryHandler(CallServiceStartCallProcedure, svc.StartCall, opts...),
		CallServiceAcceptProcedure:              connect.NewUnaryHandler(CallServiceAcceptProcedure, svc.Accept, opts...),
		CallServiceDeclineProcedure:             connect.NewUnaryHandler(CallServiceDeclineProcedure, svc.Decline, opts...),
		CallServiceEndCallProcedure:             connect.NewUnaryHandler(CallServiceEndCallProcedure, svc.EndCall, opts...),
		CallServiceGetSessionProcedure:          connect.NewUnaryHandler(CallServiceGetSessionProcedure, svc.GetSession, opts...),
		CallServiceListSessionsProcedure:        connect.NewUnaryHandler(CallServiceListSessionsProcedure, svc.ListSessions, opts...),
		CallServiceExpireStaleProcedure:         connect.NewUnaryHandler(CallServiceExpireStaleProcedure, svc.ExpireStale, opts...),
		CallServiceSubscribeNavigationProcedure: connect.NewServerStreamHandler(CallServiceSubscribeNavigationProcedure, svc.SubscribeNavigation, opts...),
	}

	return "/" + CallServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// GetSettings returns the saved settings, or the defaults if they cannot be read.
func (s *CallService) GetSettings(
	ctx context.Context,
	req *connect.Request[GetSettingsRequest],
) (*connect.Response[Settings], error) {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		zlog.Warn().Err(err).Msg("Failed to load settings, returning defaults")
		msg := toSettingsMessage(call.DefaultSettings())
		msg.Defaulted = true
		return connect.NewResponse(msg), nil
	}
	return connect.NewResponse(toSettingsMessage(settings)), nil
}

// SaveSettings merges a partial update into the settings record.
func (s *CallService) SaveSettings(
	ctx context.Context,
	req *connect.Request[SaveSettingsRequest],
) (*connect.Response[Settings], error) {
	settings, err := s.settings.Save(ctx, req.Msg.toPatch())
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toSettingsMessage(settings)), nil
}

// StartCall schedules a call from the saved settings and the request overrides.
func (s *CallService) StartCall(
	ctx context.Context,
	req *connect.Request[StartCallRequest],
) (*connect.Response[StartCallResponse], error) {
	var (
		handle *callsession.Handle
		err    error
	)
	if req.Msg.isEmpty() {
		handle, err = s.machine.StartFromSettings(ctx)
	} else {
		settings, loadErr := s.settings.Load(ctx)
		if loadErr != nil {
			zlog.Warn().Err(loadErr).Msg("Failed to load settings, using defaults")
			settings = call.DefaultSettings()
		}
		handle, err = s.machine.StartCall(ctx, req.Msg.apply(settings))
	}
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&StartCallResponse{
		Session: toSessionMessage(handle.Session),
		FiresAt: handle.Session.StartTime.Add(handle.Delay()),
	}), nil
}

// Accept answers an incoming call.
func (s *CallService) Accept(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[Session], error) {
	return sessionResponse(s.machine.Accept(ctx, req.Msg.SessionID))
}

// Decline rejects an incoming call.
func (s *CallService) Decline(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[Session], error) {
	return sessionResponse(s.machine.Decline(ctx, req.Msg.SessionID))
}

// EndCall hangs up an active call.
func (s *CallService) EndCall(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[Session], error) {
	return sessionResponse(s.machine.EndCall(ctx, req.Msg.SessionID))
}

// GetSession returns the current state of a session.
func (s *CallService) GetSession(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[Session], error) {
	return sessionResponse(s.machine.Get(ctx, req.Msg.SessionID))
}

// ListSessions returns the call history, newest first.
func (s *CallService) ListSessions(
	ctx context.Context,
	req *connect.Request[ListSessionsRequest],
) (*connect.Response[ListSessionsResponse], error) {
	if req.Msg.Limit < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("limit must not be negative"))
	}
	sessions, err := s.machine.List(ctx, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ListSessionsResponse{Sessions: toSessionMessages(sessions)}), nil
}

// ExpireStale ends incoming sessions older than the threshold.
func (s *CallService) ExpireStale(
	ctx context.Context,
	req *connect.Request[ExpireStaleRequest],
) (*connect.Response[ExpireStaleResponse], error) {
	olderThan := time.Duration(req.Msg.OlderThanSeconds) * time.Second
	if olderThan <= 0 {
		olderThan = s.staleAfter
	}
	if olderThan <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("olderThanSeconds is required when no default is configured"))
	}

	expired, err := s.machine.ExpireStale(ctx, olderThan)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ExpireStaleResponse{Expired: toSessionMessages(expired)}), nil
}

// SubscribeNavigation streams navigation requests, starting with the
// screen currently shown.
func (s *CallService) SubscribeNavigation(
	ctx context.Context,
	req *connect.Request[SubscribeNavigationRequest],
	stream *connect.ServerStream[navigation.Request],
) error {
	adapter := &navigationStreamAdapter{stream: stream}

	// Subscribe before sending the snapshot; anything newer carries a
	// higher sequence number.
	current := s.broadcaster.Current()
	subscriptionID := s.broadcaster.Subscribe(adapter)
	defer s.broadcaster.Unsubscribe(subscriptionID)

	if err := adapter.Send(&current); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return nil
}

// navigationStreamAdapter adapts connect.ServerStream to navigation.Stream.
type navigationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[navigation.Request]
}

func (a *navigationStreamAdapter) Send(req *navigation.Request) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.Send(req)
}

func sessionResponse(session *call.Session, err error) (*connect.Response[Session], error) {
	if err != nil {
		return nil, toConnectError(err)
	}
	msg := toSessionMessage(session)
	return connect.NewResponse(&msg), nil
}
