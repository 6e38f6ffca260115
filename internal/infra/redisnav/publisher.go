// Package redisnav relays navigation requests over Redis pub/sub.
package redisnav

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	goredis "github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/exitcall/internal/app/navigation"
)

// DefaultChannel is the channel used when none is configured.
const DefaultChannel = "exitcall:navigation"

// Config holds relay configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Relay publishes navigation requests to a Redis channel and keeps the
// latest request under "<channel>:current" for late followers.
type Relay struct {
	client  goredis.UniversalClient
	channel string
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, cfg Config) (*Relay, error) {
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    []string{cfg.Addr},
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", cfg.Addr)
	}
	return New(client, cfg.Channel), nil
}

// New creates a relay over an existing client.
func New(client goredis.UniversalClient, channel string) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{client: client, channel: channel}
}

func (r *Relay) currentKey() string {
	return r.channel + ":current"
}

// Navigate publishes req as JSON. It implements navigation.Navigator.
func (r *Relay) Navigate(ctx context.Context, req *navigation.Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "failed to encode navigation request")
	}

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.currentKey(), payload, 0)
		pipe.Publish(ctx, r.channel, payload)
		return nil
	})
	if err != nil {
		zlog.Warn().Err(err).Msgf("Failed to relay navigation: channel=%s screen=%s", r.channel, req.Screen)
		return errors.Wrap(err, "failed to publish navigation request")
	}
	return nil
}

// Current returns the last relayed request, or nil if none was relayed.
func (r *Relay) Current(ctx context.Context) (*navigation.Request, error) {
	payload, err := r.client.Get(ctx, r.currentKey()).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read current navigation")
	}
	return decode(payload)
}

// Follow calls fn for each request published until ctx is done.
// Malformed payloads are logged and skipped.
func (r *Relay) Follow(ctx context.Context, fn func(*navigation.Request)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "failed to subscribe")
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			req, err := decode([]byte(msg.Payload))
			if err != nil {
				zlog.Warn().Err(err).Msg("Skipping malformed navigation payload")
				continue
			}
			fn(req)
		}
	}
}

// Close closes the underlying client.
func (r *Relay) Close() error {
	return r.client.Close()
}

func decode(payload []byte) (*navigation.Request, error) {
	var req navigation.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.Wrap(err, "failed to decode navigation request")
	}
	return &req, nil
}
