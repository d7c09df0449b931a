package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kneutral-org/itconsole/internal/equipment"
)

// Broadcaster receives encoded events relayed from Redis.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// RedisBridge publishes equipment events to a Redis channel and relays every
// message on that channel to the local hub, so subscribers connected to any
// process see changes made by all of them.
type RedisBridge struct {
	client  *redis.Client
	channel string
	local   Broadcaster
	logger  zerolog.Logger

	publishTimeout time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewRedisBridge creates a bridge on channel that relays into local.
func NewRedisBridge(client *redis.Client, channel string, local Broadcaster, logger zerolog.Logger) *RedisBridge {
	return &RedisBridge{
		client:         client,
		channel:        channel,
		local:          local,
		logger:         logger.With().Str("component", "redis-bridge").Str("channel", channel).Logger(),
		publishTimeout: 2 * time.Second,
	}
}

// Publish implements equipment.Notifier. Failures are logged; delivery is
// best-effort.
func (b *RedisBridge) Publish(ctx context.Context, records []*equipment.Record) {
	if len(records) == 0 {
		return
	}
	payload, err := EncodeEvent(records)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to encode event")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.publishTimeout)
	defer cancel()

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.Error().Err(err).Int("records", len(records)).Msg("failed to publish event")
	}
}

// Start subscribes to the channel and relays messages until Stop is called.
func (b *RedisBridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	// Wait for the subscription confirmation so events published right after
	// Start are not missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.running = true
	b.cancel = cancel
	b.doneCh = make(chan struct{})

	go b.run(runCtx, pubsub, b.doneCh)

	b.logger.Info().Msg("redis bridge started")
	return nil
}

func (b *RedisBridge) run(ctx context.Context, pubsub *redis.PubSub, done chan struct{}) {
	defer close(done)
	defer func() { _ = pubsub.Close() }()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				b.logger.Warn().Msg("redis subscription closed")
				return
			}
			b.local.Broadcast([]byte(msg.Payload))
		}
	}
}

// Stop ends the relay loop and waits for it to exit.
func (b *RedisBridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel, done := b.cancel, b.doneCh
	b.mu.Unlock()

	cancel()
	<-done
	b.logger.Info().Msg("redis bridge stopped")
}
