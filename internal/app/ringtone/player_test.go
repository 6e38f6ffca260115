package ringtone

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/osa030/exitcall/internal/domain/call"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Start(src Source, volume float64) (Stream, error) {
	args := m.Called(src, volume)
	stream, _ := args.Get(0).(Stream)
	return stream, args.Error(1)
}

type countingStream struct {
	stops int
}

func (s *countingStream) Stop() { s.stops++ }

var testCatalog = Catalog{
	Builtin: map[string]string{
		call.RingtoneClassic: "/sounds/classic.mp3",
		call.RingtoneUrgent:  "/sounds/urgent.mp3",
	},
}

func TestPlayback_StartStop(t *testing.T) {
	backend := new(mockBackend)
	stream := &countingStream{}
	backend.On("Start", Source{Label: call.RingtoneClassic, Location: "/sounds/classic.mp3"}, DefaultVolume).
		Return(stream, nil).Once()

	player := NewPlayer(backend, Config{Catalog: testCatalog}, nil)
	pb := player.Open(call.RingtoneRef{Builtin: call.RingtoneClassic})
	assert.Equal(t, StateIdle, pb.State())

	require.NoError(t, pb.Start())
	assert.Equal(t, StateRinging, pb.State())

	// already ringing
	require.NoError(t, pb.Start())

	pb.Stop()
	pb.Stop()
	assert.Equal(t, StateStopped, pb.State())
	assert.Equal(t, 1, stream.stops)
	backend.AssertExpectations(t)
}

func TestPlayback_StartAfterStopRestarts(t *testing.T) {
	backend := new(mockBackend)
	backend.On("Start", mock.Anything, DefaultVolume).Return(&countingStream{}, nil).Twice()

	pb := NewPlayer(backend, Config{Catalog: testCatalog}, nil).Open(call.RingtoneRef{Builtin: call.RingtoneUrgent})
	require.NoError(t, pb.Start())
	pb.Stop()
	require.NoError(t, pb.Start())
	assert.Equal(t, StateRinging, pb.State())
	backend.AssertExpectations(t)
}

func TestPlayback_StartFailure(t *testing.T) {
	backend := new(mockBackend)
	backend.On("Start", mock.Anything, mock.Anything).Return(nil, errors.New("device busy"))

	pb := NewPlayer(backend, Config{Catalog: testCatalog}, nil).Open(call.RingtoneRef{Builtin: call.RingtoneClassic})
	err := pb.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, call.ErrPlaybackFailure))
	assert.Equal(t, StateIdle, pb.State())

	assert.NotPanics(t, pb.Stop)
	assert.Equal(t, StateStopped, pb.State())
}

func TestPlayback_SilentNeverTouchesBackend(t *testing.T) {
	backend := new(mockBackend)

	pb := NewPlayer(backend, Config{Catalog: testCatalog}, nil).Open(call.RingtoneRef{Builtin: call.RingtoneVibration})
	require.NoError(t, pb.Start())
	assert.Equal(t, StateRinging, pb.State())
	pb.Stop()
	backend.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
}

func TestNewPlayer_Volume(t *testing.T) {
	tests := []struct {
		name   string
		volume float64
		want   float64
	}{
		{"zero uses default", 0, DefaultVolume},
		{"out of range uses default", 1.5, DefaultVolume},
		{"explicit", 0.8, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlayer(nil, Config{Volume: tt.volume}, nil)
			assert.Equal(t, tt.want, p.config.Volume)
			assert.IsType(t, Discard{}, p.backend)
		})
	}
}
