package screen

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/osa030/exitcall/internal/app/elapsed"
	"github.com/osa030/exitcall/internal/app/navigation"
	"github.com/osa030/exitcall/internal/domain/call"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) GetSettings(ctx context.Context) (call.Settings, error) {
	args := m.Called(ctx)
	return args.Get(0).(call.Settings), args.Error(1)
}

func (m *mockAPI) StartFromSettings(ctx context.Context) (*call.Session, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*call.Session)
	return s, args.Error(1)
}

func (m *mockAPI) GetSession(ctx context.Context, id string) (*call.Session, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*call.Session)
	return s, args.Error(1)
}

func (m *mockAPI) Accept(ctx context.Context, id string) (*call.Session, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*call.Session)
	return s, args.Error(1)
}

func (m *mockAPI) Decline(ctx context.Context, id string) (*call.Session, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*call.Session)
	return s, args.Error(1)
}

func (m *mockAPI) EndCall(ctx context.Context, id string) (*call.Session, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*call.Session)
	return s, args.Error(1)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func session(id, caller string, status call.Status) *call.Session {
	return &call.Session{ID: id, Caller: caller, Status: status, StartTime: time.Now()}
}

func TestStaging_Enter(t *testing.T) {
	t.Run("shows settings and notice", func(t *testing.T) {
		api := new(mockAPI)
		api.On("GetSettings", mock.Anything).Return(call.Settings{
			SelectedCaller:    "Dad",
			DelaySeconds:      10,
			Ringtone:          call.RingtoneUrgent,
			CustomRingtoneURL: "/ringtones/a.mp3",
		}, nil)
		out := &syncBuffer{}

		require.NoError(t, NewStaging(api, out).Enter(context.Background(), navigation.Staging("Could not load call")))
		assert.Contains(t, out.String(), "! Could not load call")
		assert.Contains(t, out.String(), "caller=Dad delay=10s ringtone=custom (/ringtones/a.mp3)")
	})

	t.Run("falls back to defaults", func(t *testing.T) {
		api := new(mockAPI)
		api.On("GetSettings", mock.Anything).Return(call.Settings{}, call.ErrStoreUnavailable)
		out := &syncBuffer{}

		require.NoError(t, NewStaging(api, out).Enter(context.Background(), navigation.Staging("")))
		assert.Contains(t, out.String(), "caller=Mom delay=5s ringtone=Classic iPhone")
	})
}

func TestIncoming_ReReadsStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    call.Status
		wantOut   string
		wantReady bool
	}{
		{"still ringing", call.StatusIncoming, "Incoming call from Mom", true},
		{"already answered", call.StatusActive, "no longer ringing (active)", false},
		{"already ended", call.StatusEnded, "no longer ringing (ended)", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(mockAPI)
			api.On("GetSession", mock.Anything, "s1").Return(session("s1", "Mom", tt.status), nil)
			out := &syncBuffer{}
			screen := NewIncoming(api, out)

			require.NoError(t, screen.Enter(context.Background(), navigation.IncomingCall("s1", "Mom", "")))
			assert.Contains(t, out.String(), tt.wantOut)

			if tt.wantReady {
				assert.Equal(t, "s1", screen.SessionID())
				return
			}
			_, err := screen.Accept(context.Background())
			assert.True(t, errors.Is(err, ErrNoCall))
			api.AssertNotCalled(t, "Accept", mock.Anything, mock.Anything)
		})
	}
}

func TestIncoming_AcceptDecline(t *testing.T) {
	api := new(mockAPI)
	api.On("GetSession", mock.Anything, "s1").Return(session("s1", "Yamini", call.StatusIncoming), nil)
	api.On("Decline", mock.Anything, "s1").Return(session("s1", "Yamini", call.StatusEnded), nil).Once()
	out := &syncBuffer{}
	screen := NewIncoming(api, out)

	req := navigation.IncomingCall("s1", "Yamini", "/ringtones/r.mp3")
	require.NoError(t, screen.Enter(context.Background(), req))
	assert.Contains(t, out.String(), "Ringtone: /ringtones/r.mp3")

	s, err := screen.Decline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, call.StatusEnded, s.Status)
	api.AssertExpectations(t)
}

func TestIncoming_LoadFailure(t *testing.T) {
	api := new(mockAPI)
	api.On("GetSession", mock.Anything, "s1").Return(nil, call.ErrStoreUnavailable)
	out := &syncBuffer{}

	err := NewIncoming(api, out).Enter(context.Background(), navigation.IncomingCall("s1", "", ""))
	require.Error(t, err)
	assert.Contains(t, out.String(), "Could not load call")
}

func TestInCall_ElapsedAndEnd(t *testing.T) {
	api := new(mockAPI)
	api.On("GetSession", mock.Anything, "s1").Return(session("s1", "Dad", call.StatusActive), nil)
	api.On("EndCall", mock.Anything, "s1").Return(session("s1", "Dad", call.StatusEnded), nil).Once()
	out := &syncBuffer{}
	screen := NewInCall(api, out, elapsed.NewWithInterval(10*time.Millisecond))

	require.NoError(t, screen.Enter(context.Background(), navigation.InCall("s1", "Dad")))
	assert.Contains(t, out.String(), "In call with Dad 00:00")
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("In call with Dad 00:02"))
	}, 2*time.Second, 5*time.Millisecond)

	s, err := screen.End(context.Background())
	require.NoError(t, err)
	assert.Equal(t, call.StatusEnded, s.Status)
	api.AssertExpectations(t)
}

func TestInCall_NotActive(t *testing.T) {
	api := new(mockAPI)
	api.On("GetSession", mock.Anything, "s1").Return(session("s1", "Dad", call.StatusEnded), nil)
	out := &syncBuffer{}
	screen := NewInCall(api, out, elapsed.NewWithInterval(10*time.Millisecond))

	require.NoError(t, screen.Enter(context.Background(), navigation.InCall("s1", "")))
	assert.Contains(t, out.String(), "Call with Dad is not active (ended)")

	_, err := screen.End(context.Background())
	assert.True(t, errors.Is(err, ErrNoCall))
}
