package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/travel-approval/internal/application/dispatcher"
	"github.com/garyjia/travel-approval/internal/application/port"
	"github.com/garyjia/travel-approval/internal/domain/event"
)

// DefaultChannelPrefix is used when no prefix is configured
const DefaultChannelPrefix = "travel"

// DefaultVersionTTL bounds how long the last-change marker of a request is kept
const DefaultVersionTTL = 24 * time.Hour

// Options configures the Redis connection
type Options struct {
	Address  string
	Password string
	DB       int
}

// NewClient creates a Redis client and verifies the connection
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisPublisher publishes request change events on Redis pub/sub.
// Each event goes to <prefix>:<event type> and the request's last event is
// kept under <prefix>:request:<id>:last_event so clients can detect stale views.
type RedisPublisher struct {
	client     *redis.Client
	prefix     string
	versionTTL time.Duration
	logger     *zap.Logger
}

// NewRedisPublisher creates a new publisher
func NewRedisPublisher(client *redis.Client, prefix string, logger *zap.Logger) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{
		client:     client,
		prefix:     prefix,
		versionTTL: DefaultVersionTTL,
		logger:     logger,
	}
}

// Channel returns the pub/sub channel for an event type
func (p *RedisPublisher) Channel(eventType event.Type) string {
	return p.prefix + ":" + string(eventType)
}

// VersionKey returns the key holding the last event of a request
func (p *RedisPublisher) VersionKey(requestID int64) string {
	return fmt.Sprintf("%s:request:%d:last_event", p.prefix, requestID)
}

// Publish sends evt to its channel and records it as the request's latest change
func (p *RedisPublisher) Publish(ctx context.Context, evt *event.Event) error {
	if evt == nil {
		return fmt.Errorf("nil event")
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, p.Channel(evt.Type), body)
		if evt.Type == event.TypeStatusChanged {
			pipe.Set(ctx, p.VersionKey(evt.RequestID), body, p.versionTTL)
		}
		return nil
	})
	if err != nil {
		p.logger.Error("Failed to publish request event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.Int64("request_id", evt.RequestID),
			zap.Error(err))
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Request event published",
		zap.String("event_type", string(evt.Type)),
		zap.Int64("request_id", evt.RequestID))
	return nil
}

// Handler adapts the publisher to the event dispatcher
func (p *RedisPublisher) Handler() dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		return p.Publish(ctx, evt)
	}
}

var _ port.ChangePublisher = (*RedisPublisher)(nil)
