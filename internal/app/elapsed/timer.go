// Package elapsed provides the in-call duration display.
package elapsed

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Timer counts whole seconds since it was (re)started. It is cosmetic and
// never persisted.
type Timer struct {
	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	seconds  int
}

// New creates a timer ticking once per second.
func New() *Timer {
	return NewWithInterval(time.Second)
}

// NewWithInterval creates a timer counting one "second" per interval.
func NewWithInterval(interval time.Duration) *Timer {
	if interval <= 0 {
		interval = time.Second
	}
	return &Timer{interval: interval}
}

// Start resets the count to zero and returns a channel receiving the
// elapsed seconds after each tick. A running count is stopped first.
// The channel is closed when the timer is stopped or ctx is done.
func (t *Timer) Start(ctx context.Context) <-chan int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.seconds = 0

	ch := make(chan int, 1)
	go t.run(ctx, ch)
	return ch
}

func (t *Timer) run(ctx context.Context, ch chan<- int) {
	defer close(ch)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			if ctx.Err() != nil {
				t.mu.Unlock()
				return
			}
			t.seconds++
			n := t.seconds
			t.mu.Unlock()

			select {
			case ch <- n:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Stop halts the count. It is safe to call when not running.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// Seconds returns the current count.
func (t *Timer) Seconds() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seconds
}

// Format renders seconds as mm:ss. Minutes are not capped at 59.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
