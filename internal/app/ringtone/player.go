package ringtone

import (
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/exitcall/internal/domain/call"
	"github.com/osa030/exitcall/internal/infra/metrics"
)

// DefaultVolume is the fixed playback volume.
const DefaultVolume = 0.5

// Config holds player configuration.
type Config struct {
	Volume  float64
	Catalog Catalog
}

// Player opens playback handles for ringtone references.
type Player struct {
	backend Backend
	config  Config
	metrics *metrics.Metrics
}

// NewPlayer creates a new player. A nil backend plays nothing.
func NewPlayer(backend Backend, config Config, m *metrics.Metrics) *Player {
	if backend == nil {
		backend = Discard{}
	}
	if config.Volume <= 0 || config.Volume > 1 {
		config.Volume = DefaultVolume
	}
	return &Player{backend: backend, config: config, metrics: m}
}

// Open resolves ref and returns an idle handle owned by the caller.
func (p *Player) Open(ref call.RingtoneRef) *Playback {
	return &Playback{
		player: p,
		source: p.config.Catalog.Resolve(ref),
		state:  StateIdle,
	}
}

// Playback is a single ringtone handle.
type Playback struct {
	mu     sync.Mutex
	player *Player
	source Source
	state  State
	stream Stream
}

// Source returns the resolved source.
func (pb *Playback) Source() Source {
	return pb.source
}

// State returns the current state.
func (pb *Playback) State() State {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.state
}

// Start begins looping playback from the beginning. Starting a ringing
// handle does nothing. On failure the handle stays idle and the error is
// marked with call.ErrPlaybackFailure.
func (pb *Playback) Start() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if pb.state == StateRinging {
		return nil
	}

	if pb.source.Silent {
		zlog.Debug().Msgf("Ringtone is silent: ringtone=%s", pb.source.Label)
		pb.state = StateRinging
		return nil
	}

	stream, err := pb.player.backend.Start(pb.source, pb.player.config.Volume)
	if err != nil {
		pb.player.metrics.PlaybackFailure()
		zlog.Warn().Err(err).Msgf("Failed to start ringtone: ringtone=%s", pb.source.Label)
		return errors.Mark(errors.Wrapf(err, "ringtone %s", pb.source.Label), call.ErrPlaybackFailure)
	}

	pb.stream = stream
	pb.state = StateRinging
	zlog.Info().Msgf("Ringtone started: ringtone=%s volume=%.2f", pb.source.Label, pb.player.config.Volume)
	return nil
}

// Stop halts playback. The next Start plays from the beginning.
// Stop is idempotent.
func (pb *Playback) Stop() {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if pb.stream != nil {
		pb.stream.Stop()
		pb.stream = nil
	}
	if pb.state != StateStopped {
		zlog.Debug().Msgf("Ringtone stopped: ringtone=%s", pb.source.Label)
	}
	pb.state = StateStopped
}
