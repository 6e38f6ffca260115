package callsession

import (
	"context"
	"sync"

	"github.com/osa030/exitcall/internal/app/navigation"
	"github.com/osa030/exitcall/internal/domain/call"
)

type recordingNavigator struct {
	mu       sync.Mutex
	requests []navigation.Request
}

func (n *recordingNavigator) Navigate(_ context.Context, req *navigation.Request) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, *req)
	return nil
}

func (n *recordingNavigator) received() []navigation.Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]navigation.Request(nil), n.requests...)
}

func (n *recordingNavigator) screens() []navigation.Screen {
	var out []navigation.Screen
	for _, r := range n.received() {
		out = append(out, r.Screen)
	}
	return out
}

// manualScheduler records tasks; tests fire them explicitly.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*Task
}

func (s *manualScheduler) Schedule(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
}

func (s *manualScheduler) last() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[len(s.tasks)-1]
}

type countingRingtone struct {
	mu     sync.Mutex
	ref    call.RingtoneRef
	starts int
	stops  int
	err    error
}

func (r *countingRingtone) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return r.err
}

func (r *countingRingtone) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
}

func (r *countingRingtone) counts() (starts, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops
}

type ringtoneBox struct {
	mu     sync.Mutex
	opened []*countingRingtone
	err    error
}

func (b *ringtoneBox) open(ref call.RingtoneRef) Ringtone {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := &countingRingtone{ref: ref, err: b.err}
	b.opened = append(b.opened, r)
	return r
}

func (b *ringtoneBox) last() *countingRingtone {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened[len(b.opened)-1]
}

type failingSessions struct {
	SessionStore
	getErr error
}

func (f *failingSessions) Get(ctx context.Context, id string) (*call.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.SessionStore.Get(ctx, id)
}

type fixedSettings struct {
	settings call.Settings
	err      error
}

func (f fixedSettings) Load(context.Context) (call.Settings, error) {
	return f.settings, f.err
}
