package ringtone

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrPlayerNotFound is returned when the player executable cannot be found.
var ErrPlayerNotFound = errors.New("player command not found")

const defaultRestartDelay = 200 * time.Millisecond

// CommandBackend plays sources with an external player command run through sh -c.
// The placeholders {source} and {volume} (0-100) are substituted before running.
// The command is restarted each time it exits cleanly, until stopped.
type CommandBackend struct {
	Command      string
	RestartDelay time.Duration
}

// NewCommandBackend creates a backend for the given command template.
func NewCommandBackend(command string) *CommandBackend {
	return &CommandBackend{Command: command, RestartDelay: defaultRestartDelay}
}

// Start launches the player and keeps it looping in the background.
func (b *CommandBackend) Start(src Source, volume float64) (Stream, error) {
	line := b.commandLine(src, volume)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errors.New("empty player command")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "player %q", fields[0]), ErrPlayerNotFound)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := b.newCmd(ctx, line)
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to start player")
	}

	s := &commandStream{cancel: cancel, done: make(chan struct{})}
	go s.loop(ctx, cmd, func() *exec.Cmd { return b.newCmd(ctx, line) }, b.restartDelay())
	return s, nil
}

func (b *CommandBackend) restartDelay() time.Duration {
	if b.RestartDelay <= 0 {
		return defaultRestartDelay
	}
	return b.RestartDelay
}

func (b *CommandBackend) commandLine(src Source, volume float64) string {
	return strings.NewReplacer(
		"{source}", shellQuote(src.Location),
		"{volume}", strconv.Itoa(int(volume*100+0.5)),
	).Replace(b.Command)
}

func (b *CommandBackend) newCmd(ctx context.Context, line string) *exec.Cmd {
	// exec so that cancelling kills the player itself, not only the shell
	return exec.CommandContext(ctx, "sh", "-c", "exec "+line)
}

type commandStream struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *commandStream) loop(ctx context.Context, cmd *exec.Cmd, next func() *exec.Cmd, delay time.Duration) {
	defer close(s.done)

	for {
		err := cmd.Wait()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			zlog.Warn().Err(err).Msg("Ringtone player exited with error, not restarting")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		cmd = next()
		if err := cmd.Start(); err != nil {
			zlog.Warn().Err(err).Msg("Failed to restart ringtone player")
			return
		}
	}
}

// Stop kills the running player and waits for the loop to exit.
func (s *commandStream) Stop() {
	s.once.Do(s.cancel)
	<-s.done
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
