package redis

import (
	"context"
	"time"

	"PPGateway/global/config"
	"PPGateway/logger"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 3 * time.Second

// NewClient opens the shared cache connection used for sessions, presence
// and the redis relay, and verifies it with a PING.
func NewClient(ctx context.Context, c config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "redis ping %s", c.Addr)
	}
	logger.Infof("[redis] connected addr=%s db=%d", c.Addr, c.DB)
	return rdb, nil
}

// Ping is used by the health endpoint.
func Ping(ctx context.Context, rdb redis.UniversalClient) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return rdb.Ping(pingCtx).Err()
}
