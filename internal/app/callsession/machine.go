// Package callsession drives simulated calls through their lifecycle:
// scheduled, incoming, active and ended.
package callsession

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/exitcall/internal/app/navigation"
	"github.com/osa030/exitcall/internal/domain/call"
	"github.com/osa030/exitcall/internal/infra/metrics"
)

// NoticeSessionUnavailable is shown on the staging screen when the
// incoming call could not be loaded.
const NoticeSessionUnavailable = "Could not load the incoming call. Please try again."

const triggerTimeout = 10 * time.Second

// SessionStore persists call sessions.
type SessionStore interface {
	Create(ctx context.Context, s *call.Session) error
	Get(ctx context.Context, id string) (*call.Session, error)
	List(ctx context.Context, limit int) ([]*call.Session, error)
	ListStarted(ctx context.Context, status call.Status, before time.Time) ([]*call.Session, error)
	Transition(ctx context.Context, id string, t call.Transition, now time.Time) (*call.Session, error)
}

// SettingsStore provides the saved settings.
type SettingsStore interface {
	Load(ctx context.Context) (call.Settings, error)
}

// Deps are the collaborators of a Machine.
type Deps struct {
	Sessions  SessionStore
	Settings  SettingsStore
	Ringtones RingtoneOpener
	Navigator navigation.Navigator
	Scheduler Scheduler
	Metrics   *metrics.Metrics
}

// StartRequest describes a call to simulate.
type StartRequest struct {
	Caller       string
	DelaySeconds int
	Ringtone     call.RingtoneRef
}

// Handle is returned by StartCall. The caller owns the deferred trigger.
type Handle struct {
	Session *call.Session
	task    *Task
}

// Cancel stops the deferred trigger if it has not fired yet.
// The session stays incoming until declined or expired.
func (h *Handle) Cancel() bool {
	return h.task.Cancel()
}

// Delay returns how long after the session start the trigger fires.
func (h *Handle) Delay() time.Duration {
	return h.task.Delay()
}

// Fired is closed when the deferred trigger starts running.
func (h *Handle) Fired() <-chan struct{} {
	return h.task.Fired()
}

// Machine is the call session state machine.
type Machine struct {
	sessions  SessionStore
	settings  SettingsStore
	ringtones RingtoneOpener
	navigator navigation.Navigator
	scheduler Scheduler
	metrics   *metrics.Metrics
	registry  *Registry

	now   func() time.Time
	newID func() string
}

// NewMachine creates a new state machine.
func NewMachine(deps Deps) *Machine {
	m := &Machine{
		sessions:  deps.Sessions,
		settings:  deps.Settings,
		ringtones: deps.Ringtones,
		navigator: deps.Navigator,
		scheduler: deps.Scheduler,
		metrics:   deps.Metrics,
		registry:  NewRegistry(),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	if m.scheduler == nil {
		m.scheduler = WallClockScheduler{}
	}
	if m.navigator == nil {
		m.navigator = navigation.Multi{}
	}
	return m
}

// Registry returns the registry of incoming sessions.
func (m *Machine) Registry() *Registry {
	return m.registry
}

// StartCall creates an incoming session and schedules the incoming-call
// trigger after the requested delay.
func (m *Machine) StartCall(ctx context.Context, req StartRequest) (*Handle, error) {
	if !call.IsKnownCaller(req.Caller) {
		return nil, errors.Mark(errors.Newf("unknown caller %q", req.Caller), call.ErrInvalidSettings)
	}
	if req.DelaySeconds < 0 || req.DelaySeconds > call.MaxDelaySeconds {
		return nil, errors.Mark(errors.Newf("delay %ds out of range", req.DelaySeconds), call.ErrInvalidSettings)
	}

	session := call.NewSession(m.newID(), req.Caller, m.now().UTC())
	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	m.metrics.SessionStarted()

	var rt Ringtone = silent{}
	if m.ringtones != nil {
		rt = m.ringtones(req.Ringtone)
	}

	entry := &ringing{
		sessionID: session.ID,
		ref:       req.Ringtone,
		ringtone:  rt,
	}
	delay := time.Duration(req.DelaySeconds) * time.Second
	entry.task = newTask(delay, func() { m.trigger(session.ID) })

	m.registry.add(entry)
	m.metrics.RingingAcquired()
	m.scheduler.Schedule(entry.task)

	zlog.Info().Msgf("Call scheduled: session=%s caller=%s delay=%s", session.ID, session.Caller, delay)
	return &Handle{Session: session, task: entry.task}, nil
}

// StartFromSettings starts a call with the saved settings.
// Defaults are used when the settings cannot be read.
func (m *Machine) StartFromSettings(ctx context.Context) (*Handle, error) {
	settings := call.DefaultSettings()
	if m.settings != nil {
		loaded, err := m.settings.Load(ctx)
		if err != nil {
			zlog.Warn().Err(err).Msg("Failed to load settings, using defaults")
		} else {
			settings = loaded
		}
	}

	return m.StartCall(ctx, StartRequest{
		Caller:       settings.SelectedCaller,
		DelaySeconds: settings.DelaySeconds,
		Ringtone:     settings.RingtoneRef(),
	})
}

// trigger runs when the delay elapses. The store is the source of truth:
// the ringtone and the incoming-call screen only happen if the session is
// still incoming.
func (m *Machine) trigger(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
	defer cancel()

	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		m.metrics.Trigger(metrics.TriggerFailed)
		zlog.Error().Err(err).Msgf("Failed to load session for incoming call: session=%s", sessionID)
		m.navigate(ctx, navigation.Staging(NoticeSessionUnavailable))
		return
	}
	if session.Status != call.StatusIncoming {
		m.metrics.Trigger(metrics.TriggerSkipped)
		zlog.Info().Msgf("Incoming call skipped: session=%s status=%s", sessionID, session.Status)
		return
	}

	var ringtoneURL string
	if e, ok := m.registry.get(sessionID); ok {
		ringtoneURL = e.ref.CustomURL
		if err := e.ringtone.Start(); err != nil {
			zlog.Warn().Err(err).Msgf("Ringing silently: session=%s", sessionID)
		}
	}

	m.metrics.Trigger(metrics.TriggerFired)
	zlog.Info().Msgf("Incoming call: session=%s caller=%s", sessionID, session.Caller)
	m.navigate(ctx, navigation.IncomingCall(sessionID, session.Caller, ringtoneURL))
}

// Accept answers an incoming call.
func (m *Machine) Accept(ctx context.Context, sessionID string) (*call.Session, error) {
	session, err := m.apply(ctx, sessionID, call.TransitionAccept)
	if err != nil {
		return nil, err
	}
	m.navigate(ctx, navigation.InCall(session.ID, session.Caller))
	return session, nil
}

// Decline rejects an incoming call.
func (m *Machine) Decline(ctx context.Context, sessionID string) (*call.Session, error) {
	session, err := m.apply(ctx, sessionID, call.TransitionDecline)
	if err != nil {
		return nil, err
	}
	m.navigate(ctx, navigation.Staging(""))
	return session, nil
}

// EndCall hangs up an active call.
func (m *Machine) EndCall(ctx context.Context, sessionID string) (*call.Session, error) {
	session, err := m.apply(ctx, sessionID, call.TransitionEnd)
	if err != nil {
		return nil, err
	}
	m.navigate(ctx, navigation.Staging(""))
	return session, nil
}

// Get returns a session from the store.
func (m *Machine) Get(ctx context.Context, sessionID string) (*call.Session, error) {
	return m.sessions.Get(ctx, sessionID)
}

// List returns the most recent sessions.
func (m *Machine) List(ctx context.Context, limit int) ([]*call.Session, error) {
	return m.sessions.List(ctx, limit)
}

// ExpireStale ends incoming sessions started more than olderThan ago.
// Sessions that leave incoming concurrently are skipped.
func (m *Machine) ExpireStale(ctx context.Context, olderThan time.Duration) ([]*call.Session, error) {
	stale, err := m.sessions.ListStarted(ctx, call.StatusIncoming, m.now().UTC().Add(-olderThan))
	if err != nil {
		return nil, err
	}

	expired := make([]*call.Session, 0, len(stale))
	for _, s := range stale {
		session, err := m.apply(ctx, s.ID, call.TransitionExpire)
		if errors.Is(err, call.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return expired, err
		}
		zlog.Info().Msgf("Stale call expired: session=%s started=%s", session.ID, session.StartTime.Format(time.RFC3339))
		expired = append(expired, session)
	}
	return expired, nil
}

// RunExpirer calls ExpireStale every interval until ctx is done.
func (m *Machine) RunExpirer(ctx context.Context, olderThan, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.ExpireStale(ctx, olderThan); err != nil {
				zlog.Warn().Err(err).Msg("Failed to expire stale calls")
			}
		}
	}
}

// Close cancels pending triggers and stops every owned ringtone.
func (m *Machine) Close() {
	for _, e := range m.registry.takeAll() {
		m.releaseEntry(e)
	}
}

// apply performs the guarded transition. Side effects belong to the
// winner: only a successful exit from incoming releases the resources.
func (m *Machine) apply(ctx context.Context, sessionID string, t call.Transition) (*call.Session, error) {
	session, err := m.sessions.Transition(ctx, sessionID, t, m.now().UTC())
	if err != nil {
		m.metrics.Transition(t.String(), outcomeOf(err))
		zlog.Warn().Err(err).Msgf("Transition rejected: session=%s transition=%s", sessionID, t)
		return nil, err
	}
	m.metrics.Transition(t.String(), metrics.OutcomeOK)
	zlog.Info().Msgf("Transition applied: session=%s transition=%s status=%s", sessionID, t, session.Status)

	if t.LeavesIncoming() {
		if e, ok := m.registry.take(sessionID); ok {
			m.releaseEntry(e)
		}
	}
	return session, nil
}

// releaseEntry cancels the trigger before stopping, so a trigger that is
// already running cannot start the ringtone after it was stopped.
func (m *Machine) releaseEntry(e *ringing) {
	e.task.Cancel()
	e.ringtone.Stop()
	m.metrics.RingingReleased()
}

func (m *Machine) navigate(ctx context.Context, req *navigation.Request) {
	if err := m.navigator.Navigate(ctx, req); err != nil {
		zlog.Warn().Err(err).Msgf("Navigation failed: screen=%s", req.Screen)
	}
}

func outcomeOf(err error) string {
	if errors.IsAny(err, call.ErrInvalidTransition, call.ErrSessionNotFound) {
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeError
}

type silent struct{}

func (silent) Start() error { return nil }
func (silent) Stop()        {}
