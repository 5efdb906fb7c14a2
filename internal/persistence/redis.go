package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helpdesk-hub/ticket-service/internal/config"
	"github.com/helpdesk-hub/ticket-service/internal/events"
)

// Redis is the pub/sub fan-out for relayed lifecycle events.
type Redis struct {
	client    *redis.Client
	publisher *events.RedisPublisher
}

// NewRedis returns nil when no address is configured. An unreachable server is
// logged and tolerated: the outbox keeps undelivered events for the next poll.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(redisOptions(cfg))

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("unable to reach redis; events stay in the outbox until it is back",
			zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.String("channel_prefix", cfg.EventChannel))
	}

	return &Redis{client: client, publisher: events.NewRedisPublisher(client, cfg.EventChannel)}
}

func redisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
}

// Publish is an events.EventHandler sending the event to its Redis channel.
func (r *Redis) Publish(ctx context.Context, event events.Event) error {
	if r == nil {
		return errors.New("redis client not configured")
	}
	return r.publisher.Handle(ctx, event)
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.client != nil {
		_ = r.client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return errors.New("redis client not configured")
	}
	return r.client.Ping(ctx).Err()
}
