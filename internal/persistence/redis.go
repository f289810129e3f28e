package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/helpdesk-sla/sla-service/internal/config"
)

// Redis holds the client behind the distributed ticket locks. Connecting is
// lazy; callers decide with Ping whether to use it.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds a client. A positive cfg timeout bounds dialing and every
// read and write.
func NewRedis(cfg config.RedisConfig) *Redis {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if timeout := cfg.Timeout(); timeout > 0 {
		opts.DialTimeout = timeout
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}
	return &Redis{Client: redis.NewClient(opts)}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
