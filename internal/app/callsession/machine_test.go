package callsession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/exitcall/internal/app/navigation"
	"github.com/osa030/exitcall/internal/domain/call"
	"github.com/osa030/exitcall/internal/infra/store"
)

type harness struct {
	machine  *Machine
	sessions *store.SessionRepository
	nav      *recordingNavigator
	sched    *manualScheduler
	rings    *ringtoneBox
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := store.OpenTest(t)
	h := &harness{
		sessions: store.NewSessionRepository(db),
		nav:      &recordingNavigator{},
		sched:    &manualScheduler{},
		rings:    &ringtoneBox{},
	}
	h.machine = NewMachine(Deps{
		Sessions:  h.sessions,
		Settings:  store.NewSettingsRepository(db),
		Ringtones: h.rings.open,
		Navigator: h.nav,
		Scheduler: h.sched,
	})
	return h
}

func (h *harness) start(t *testing.T, caller string) *Handle {
	t.Helper()
	handle, err := h.machine.StartCall(context.Background(), StartRequest{
		Caller:       caller,
		DelaySeconds: 2,
		Ringtone:     call.RingtoneRef{Builtin: call.RingtoneClassic},
	})
	require.NoError(t, err)
	return handle
}

func (h *harness) status(t *testing.T, id string) call.Status {
	t.Helper()
	s, err := h.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	return s.Status
}

func TestMachine_StartCall(t *testing.T) {
	h := newHarness(t)
	handle := h.start(t, "Dad")

	assert.Equal(t, call.StatusIncoming, h.status(t, handle.Session.ID))
	assert.Equal(t, "Dad", handle.Session.Caller)
	assert.Equal(t, 1, h.machine.Registry().Count())
	assert.Equal(t, 2*time.Second, h.sched.last().Delay())
	assert.Empty(t, h.nav.received())

	starts, stops := h.rings.last().counts()
	assert.Zero(t, starts)
	assert.Zero(t, stops)
}

func TestMachine_StartCallValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  StartRequest
	}{
		{"unknown caller", StartRequest{Caller: "Boss", DelaySeconds: 2}},
		{"negative delay", StartRequest{Caller: "Mom", DelaySeconds: -1}},
		{"delay too long", StartRequest{Caller: "Mom", DelaySeconds: call.MaxDelaySeconds + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.machine.StartCall(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, call.ErrInvalidSettings))
		})
	}

	sessions, err := h.machine.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestMachine_TriggerNavigatesToIncomingCall(t *testing.T) {
	t.Run("builtin ringtone", func(t *testing.T) {
		h := newHarness(t)
		handle := h.start(t, "Mom")

		require.True(t, h.sched.last().Fire())
		<-handle.Fired()

		reqs := h.nav.received()
		require.Len(t, reqs, 1)
		assert.Equal(t, navigation.ScreenIncomingCall, reqs[0].Screen)
		assert.Equal(t, navigation.Params{SessionID: handle.Session.ID, Caller: "Mom"}, reqs[0].Params)

		starts, _ := h.rings.last().counts()
		assert.Equal(t, 1, starts)

		assert.False(t, h.sched.last().Fire())
		assert.Len(t, h.nav.received(), 1)
	})

	t.Run("custom ringtone url is passed", func(t *testing.T) {
		h := newHarness(t)
		handle, err := h.machine.StartCall(context.Background(), StartRequest{
			Caller:       "Yamini",
			DelaySeconds: 5,
			Ringtone:     call.RingtoneRef{Builtin: call.RingtoneUrgent, CustomURL: "/ringtones/x.mp3"},
		})
		require.NoError(t, err)
		h.sched.last().Fire()

		reqs := h.nav.received()
		require.Len(t, reqs, 1)
		assert.Equal(t, "/ringtones/x.mp3", reqs[0].Params.RingtoneURL)
		assert.Equal(t, handle.Session.ID, reqs[0].Params.SessionID)
	})

	t.Run("playback failure still rings silently", func(t *testing.T) {
		h := newHarness(t)
		h.rings.err = call.ErrPlaybackFailure
		h.start(t, "Mom")
		h.sched.last().Fire()

		assert.Equal(t, []navigation.Screen{navigation.ScreenIncomingCall}, h.nav.screens())
	})
}

func TestMachine_Accept(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	handle := h.start(t, "Mom")
	h.sched.last().Fire()

	session, err := h.machine.Accept(ctx, handle.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, call.StatusActive, session.Status)
	assert.NotNil(t, session.ActivatedTime)
	assert.Nil(t, session.EndedTime)

	_, stops := h.rings.last().counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, 0, h.machine.Registry().Count())

	reqs := h.nav.received()
	require.Len(t, reqs, 2)
	assert.Equal(t, navigation.ScreenInCall, reqs[1].Screen)
	assert.Equal(t, navigation.Params{SessionID: handle.Session.ID, Caller: "Mom"}, reqs[1].Params)

	t.Run("second accept is rejected without side effects", func(t *testing.T) {
		_, err := h.machine.Accept(ctx, handle.Session.ID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, call.ErrInvalidTransition))
		assert.Equal(t, call.StatusActive, h.status(t, handle.Session.ID))

		_, stops := h.rings.last().counts()
		assert.Equal(t, 1, stops)
		assert.Len(t, h.nav.received(), 2)
	})

	t.Run("end call", func(t *testing.T) {
		ended, err := h.machine.EndCall(ctx, handle.Session.ID)
		require.NoError(t, err)
		assert.Equal(t, call.StatusEnded, ended.Status)
		assert.NotNil(t, ended.EndedTime)
		assert.Equal(t, navigation.ScreenStaging, h.nav.received()[2].Screen)

		_, stops := h.rings.last().counts()
		assert.Equal(t, 1, stops)
	})

	t.Run("accept on ended is rejected", func(t *testing.T) {
		_, err := h.machine.Accept(ctx, handle.Session.ID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, call.ErrInvalidTransition))
		assert.Equal(t, call.StatusEnded, h.status(t, handle.Session.ID))
	})
}

func TestMachine_AcceptBeforeTriggerCancelsIt(t *testing.T) {
	h := newHarness(t)
	handle := h.start(t, "Dad")

	_, err := h.machine.Accept(context.Background(), handle.Session.ID)
	require.NoError(t, err)

	assert.False(t, h.sched.last().Fire())
	starts, stops := h.rings.last().counts()
	assert.Zero(t, starts)
	assert.Equal(t, 1, stops)
	assert.Equal(t, []navigation.Screen{navigation.ScreenInCall}, h.nav.screens())
}

func TestMachine_Decline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	handle := h.start(t, "Yamini")
	h.sched.last().Fire()

	session, err := h.machine.Decline(ctx, handle.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, call.StatusEnded, session.Status)
	assert.NotNil(t, session.EndedTime)
	assert.Nil(t, session.ActivatedTime)

	_, stops := h.rings.last().counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, []navigation.Screen{navigation.ScreenIncomingCall, navigation.ScreenStaging}, h.nav.screens())

	_, err = h.machine.Decline(ctx, handle.Session.ID)
	assert.True(t, errors.Is(err, call.ErrInvalidTransition))
	_, stops = h.rings.last().counts()
	assert.Equal(t, 1, stops)
}

func TestMachine_EndCallOnIncomingIsRejected(t *testing.T) {
	h := newHarness(t)
	handle := h.start(t, "Mom")

	_, err := h.machine.EndCall(context.Background(), handle.Session.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, call.ErrInvalidTransition))
	assert.Equal(t, call.StatusIncoming, h.status(t, handle.Session.ID))
	assert.Equal(t, 1, h.machine.Registry().Count())
}

func TestMachine_UnknownSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.machine.Accept(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, call.ErrSessionNotFound))
	assert.Empty(t, h.nav.received())
}

func TestMachine_TriggerSkipsSessionThatLeftIncoming(t *testing.T) {
	h := newHarness(t)
	handle := h.start(t, "Mom")

	// another writer ends the session behind the machine's back
	_, err := h.sessions.Transition(context.Background(), handle.Session.ID, call.TransitionDecline, time.Now().UTC())
	require.NoError(t, err)

	require.True(t, h.sched.last().Fire())
	assert.Empty(t, h.nav.received())
	starts, _ := h.rings.last().counts()
	assert.Zero(t, starts)
}

func TestMachine_TriggerSessionReadFailure(t *testing.T) {
	h := newHarness(t)
	failing := &failingSessions{SessionStore: h.sessions}
	h.machine.sessions = failing
	handle := h.start(t, "Mom")

	failing.getErr = call.StoreUnavailable(errors.New("disk I/O error"), "failed to get session")
	h.sched.last().Fire()

	reqs := h.nav.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, navigation.ScreenStaging, reqs[0].Screen)
	assert.Equal(t, NoticeSessionUnavailable, reqs[0].Notice)

	starts, _ := h.rings.last().counts()
	assert.Zero(t, starts)
	assert.Equal(t, call.StatusIncoming, h.status(t, handle.Session.ID))
}

func TestMachine_ConcurrentAcceptDeclineHasOneWinner(t *testing.T) {
	h := newHarness(t)
	handle := h.start(t, "Mom")
	h.sched.last().Fire()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	ops := []func(context.Context, string) (*call.Session, error){h.machine.Accept, h.machine.Decline}
	for _, op := range ops {
		wg.Add(1)
		go func(op func(context.Context, string) (*call.Session, error)) {
			defer wg.Done()
			_, err := op(context.Background(), handle.Session.ID)
			if err != nil {
				assert.True(t, errors.Is(err, call.ErrInvalidTransition))
				return
			}
			mu.Lock()
			winners++
			mu.Unlock()
		}(op)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	_, stops := h.rings.last().counts()
	assert.Equal(t, 1, stops)
	assert.Len(t, h.nav.received(), 2)
}

func TestMachine_HandleCancel(t *testing.T) {
	h := newHarness(t)
	handle := h.start(t, "Mom")

	assert.True(t, handle.Cancel())
	assert.False(t, h.sched.last().Fire())
	assert.Empty(t, h.nav.received())
	assert.Equal(t, call.StatusIncoming, h.status(t, handle.Session.ID))

	// the ringtone handle is still released on the eventual exit
	_, err := h.machine.Decline(context.Background(), handle.Session.ID)
	require.NoError(t, err)
	_, stops := h.rings.last().counts()
	assert.Equal(t, 1, stops)
}

func TestMachine_StartFromSettings(t *testing.T) {
	t.Run("uses saved settings", func(t *testing.T) {
		h := newHarness(t)
		h.machine.settings = fixedSettings{settings: call.Settings{
			SelectedCaller:    "Yamini",
			DelaySeconds:      10,
			Ringtone:          call.RingtoneUrgent,
			CustomRingtoneURL: "/ringtones/a.ogg",
		}}

		handle, err := h.machine.StartFromSettings(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Yamini", handle.Session.Caller)
		assert.Equal(t, 10*time.Second, h.sched.last().Delay())
		assert.Equal(t, call.RingtoneRef{Builtin: call.RingtoneUrgent, CustomURL: "/ringtones/a.ogg"}, h.rings.last().ref)
	})

	t.Run("falls back to defaults", func(t *testing.T) {
		h := newHarness(t)
		h.machine.settings = fixedSettings{err: call.StoreUnavailable(errors.New("locked"), "failed to load settings")}

		handle, err := h.machine.StartFromSettings(context.Background())
		require.NoError(t, err)
		assert.Equal(t, call.DefaultCaller, handle.Session.Caller)
		assert.Equal(t, call.DefaultDelaySeconds*time.Second, h.sched.last().Delay())
		assert.Equal(t, call.RingtoneRef{Builtin: call.DefaultRingtone}, h.rings.last().ref)
	})
}

func TestMachine_ExpireStale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	h.machine.now = func() time.Time { return t0 }
	stale := h.start(t, "Mom")
	staleRing := h.rings.last()
	answered := h.start(t, "Dad")
	_, err := h.machine.Accept(ctx, answered.Session.ID)
	require.NoError(t, err)

	h.machine.now = func() time.Time { return t0.Add(20 * time.Minute) }
	recent := h.start(t, "Yamini")
	navBefore := len(h.nav.received())

	h.machine.now = func() time.Time { return t0.Add(25 * time.Minute) }
	expired, err := h.machine.ExpireStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.Session.ID, expired[0].ID)
	assert.Equal(t, call.StatusEnded, expired[0].Status)

	assert.Equal(t, call.StatusActive, h.status(t, answered.Session.ID))
	assert.Equal(t, call.StatusIncoming, h.status(t, recent.Session.ID))

	_, stops := staleRing.counts()
	assert.Equal(t, 1, stops)
	assert.Len(t, h.nav.received(), navBefore)
	assert.Equal(t, 1, h.machine.Registry().Count())

	again, err := h.machine.ExpireStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestMachine_Close(t *testing.T) {
	h := newHarness(t)
	h.start(t, "Mom")
	first := h.rings.last()
	h.start(t, "Dad")
	second := h.rings.last()

	h.machine.Close()

	for _, r := range []*countingRingtone{first, second} {
		_, stops := r.counts()
		assert.Equal(t, 1, stops)
	}
	assert.Equal(t, 0, h.machine.Registry().Count())
	assert.False(t, h.sched.tasks[0].Fire())
}

func TestMachine_DelayFiresOnceAfterDelay(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on the wall clock")
	}
	h := newHarness(t)
	h.machine.scheduler = WallClockScheduler{Tick: 10 * time.Millisecond}

	started := time.Now()
	handle := h.start(t, "Mom")

	select {
	case <-handle.Fired():
	case <-time.After(5 * time.Second):
		t.Fatal("incoming call was not triggered")
	}
	assert.GreaterOrEqual(t, time.Since(started), 2*time.Second)

	require.Eventually(t, func() bool { return len(h.nav.received()) == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	reqs := h.nav.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, navigation.ScreenIncomingCall, reqs[0].Screen)
}
