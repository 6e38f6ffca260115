package navigation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

const defaultSendTimeout = 500 * time.Millisecond

// Stream represents a navigation stream for a subscriber.
type Stream interface {
	Send(*Request) error
}

type subscription struct {
	id     string
	stream Stream
}

// Broadcaster fans navigation requests out to subscribed streams.
type Broadcaster struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	current       *Request

	sequenceNo   uint64
	sequenceNoMu sync.Mutex

	sendTimeout time.Duration
	now         func() time.Time
}

// NewBroadcaster creates a new broadcaster. The initial screen is staging.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscriptions: make(map[string]*subscription),
		current:       Staging(""),
		sendTimeout:   defaultSendTimeout,
		now:           time.Now,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (b *Broadcaster) Subscribe(stream Stream) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	b.subscriptions[id] = &subscription{id: id, stream: stream}
	return id
}

// Unsubscribe removes a subscription.
func (b *Broadcaster) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscriptions, subscriptionID)
}

// Current returns a copy of the last request broadcast.
func (b *Broadcaster) Current() Request {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return *b.current
}

func (b *Broadcaster) nextSequenceNo() uint64 {
	b.sequenceNoMu.Lock()
	defer b.sequenceNoMu.Unlock()
	b.sequenceNo++
	return b.sequenceNo
}

// Navigate stamps req and sends it to all subscribers.
// Each send runs in its own goroutine bounded by the send timeout.
func (b *Broadcaster) Navigate(ctx context.Context, req *Request) error {
	req.SequenceNo = b.nextSequenceNo()
	if req.IssuedAt.IsZero() {
		req.IssuedAt = b.now().UTC()
	}

	b.mu.Lock()
	cur := *req
	b.current = &cur
	subs := make([]*subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	zlog.Info().Msgf("Navigate: screen=%s session=%s seq=%d subscribers=%d",
		req.Screen, req.Params.SessionID, req.SequenceNo, len(subs))

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, b.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(req)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Err(err).Msgf("Navigation send failed: subscription=%s", s.id)
				}
			case <-sendCtx.Done():
				zlog.Debug().Msgf("Navigation send timed out: subscription=%s", s.id)
			}
		}(sub)
	}

	wg.Wait()
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Close removes all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[string]*subscription)
}
