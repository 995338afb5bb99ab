package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"kanban/api/internal/ordering"
)

// RedisPublisher publishes notifications on <prefix>:<collection>. Delivery
// failures are logged and never reach the caller.
type RedisPublisher struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewRedisPublisher(redisURL, prefix string, logger *slog.Logger) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisPublisherWithClient(client, prefix, logger), nil
}

// NewRedisPublisherWithClient creates a publisher from an existing Redis client
func NewRedisPublisherWithClient(client *redis.Client, prefix string, logger *slog.Logger) *RedisPublisher {
	if prefix == "" {
		prefix = "kanban:events"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{client: client, prefix: prefix, timeout: 2 * time.Second, logger: logger}
}

func (p *RedisPublisher) Channel(collection string) string {
	return p.prefix + ":" + collection
}

func (p *RedisPublisher) ItemsReordered(ctx context.Context, event ordering.ReorderedEvent) {
	p.publish(ctx, FromReordered(event))
}

func (p *RedisPublisher) ItemScopeChanged(ctx context.Context, event ordering.ScopeChangedEvent) {
	p.publish(ctx, FromScopeChanged(event))
}

func (p *RedisPublisher) publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal event failed", "type", event.Type, "error", err)
		return
	}
	// The caller's request may already be finishing; delivery gets its own budget.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.Channel(event.Collection), payload).Err(); err != nil {
		p.logger.Warn("publish event failed", "type", event.Type, "collection", event.Collection, "error", err)
	}
}

// Subscribe streams the events of the given collections until ctx is done.
func (p *RedisPublisher) Subscribe(ctx context.Context, collections ...string) (<-chan Event, error) {
	channels := make([]string, 0, len(collections))
	for _, c := range collections {
		channels = append(channels, p.Channel(c))
	}
	sub := p.client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					p.logger.Warn("decode event failed", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
