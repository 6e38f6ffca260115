package callsession

import (
	"time"
)

const defaultTick = 100 * time.Millisecond

// Scheduler arranges for a task to fire after its delay.
// Implementations must give up once the task's context is done.
type Scheduler interface {
	Schedule(t *Task)
}

// WallClockScheduler polls the wall clock, so a suspended host still fires
// the task as soon as the deadline has passed in real time.
type WallClockScheduler struct {
	Tick time.Duration
}

// Schedule starts a goroutine that fires t once its deadline has passed.
func (s WallClockScheduler) Schedule(t *Task) {
	tick := s.Tick
	if tick <= 0 {
		tick = defaultTick
	}

	go func() {
		endTime := toWallTime(time.Now()).Add(t.Delay())
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-t.Context().Done():
				return
			case <-ticker.C:
				if !toWallTime(time.Now()).Before(endTime) {
					t.Fire()
					return
				}
			}
		}
	}()
}

// toWallTime returns the time with monotonic clock stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
