package callsession

import (
	"context"
	"sync"
	"time"
)

// Task is a one-shot deferred action. It runs at most once and is never
// retried. Cancel and the run are mutually exclusive: once Cancel returns,
// the action has either completed or will never run.
type Task struct {
	delay  time.Duration
	fn     func()
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
	fired  chan struct{}
}

func newTask(delay time.Duration, fn func()) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{
		delay:  delay,
		fn:     fn,
		ctx:    ctx,
		cancel: cancel,
		fired:  make(chan struct{}),
	}
}

// Delay returns the delay the task was scheduled with.
func (t *Task) Delay() time.Duration {
	return t.delay
}

// Context is done once the task fired or was cancelled.
func (t *Task) Context() context.Context {
	return t.ctx
}

// Fired is closed when the action starts running.
func (t *Task) Fired() <-chan struct{} {
	return t.fired
}

// Fire runs the action unless it already ran or was cancelled.
// It reports whether the action ran.
func (t *Task) Fire() bool {
	ran := false
	t.once.Do(func() {
		ran = true
		close(t.fired)
		defer t.cancel()
		t.fn()
	})
	return ran
}

// Cancel prevents the action from running. It reports whether the task was
// still pending. If the action is running, Cancel waits for it to finish.
func (t *Task) Cancel() bool {
	cancelled := false
	t.once.Do(func() {
		cancelled = true
	})
	t.cancel()
	return cancelled
}
