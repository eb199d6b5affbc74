package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/physician-availability/internal/appointment"
)

// RedisPublisher fans registry events out to a Redis pub/sub channel so that
// notification and badge services in other processes can react.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	logger  *zap.Logger
}

func NewRedisPublisher(client *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		timeout: 2 * time.Second,
		logger:  logger.Named("publisher"),
	}
}

// Attach subscribes the publisher to every mutation of reg.
func (p *RedisPublisher) Attach(reg *appointment.Registry) (detach func()) {
	return reg.Subscribe(appointment.EventAnyChange, p.Handle)
}

// Handle publishes ev. A failed publish is logged; the mutation already happened.
func (p *RedisPublisher) Handle(ctx context.Context, ev appointment.Event) {
	if err := p.Publish(ctx, NewMessage(ev)); err != nil {
		p.logger.Warn("publish appointment event failed",
			zap.String("kind", string(ev.Kind)),
			zap.String("physician_id", ev.Appointment.PhysicianID),
			zap.Error(err),
		)
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.client.Publish(pubCtx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

// Listen delivers decoded messages from channel to fn until ctx ends.
// Undecodable payloads are logged and skipped.
func Listen(ctx context.Context, client *redis.Client, channel string, logger *zap.Logger, fn func(Message)) error {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				logger.Warn("skipping malformed event", zap.String("channel", m.Channel), zap.Error(err))
				continue
			}
			fn(msg)
		}
	}
}
