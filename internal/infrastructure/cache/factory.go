package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/retail/ledger/internal/infrastructure/config"
	"go.uber.org/zap"
)

const (
	pingTimeout     = 5 * time.Second
	janitorInterval = 5 * time.Minute
)

// NewIdempotencyStore builds the store selected by event.idempotency_backend.
// The redis backend must be reachable at startup; there is no silent fallback
// because two instances on in-memory stores would apply the same event twice.
func NewIdempotencyStore(ctx context.Context, eventCfg config.EventConfig, redisCfg config.RedisConfig, logger *zap.Logger) (shared.IdempotencyStore, error) {
	switch eventCfg.IdempotencyBackend {
	case config.IdempotencyBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr(),
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", redisCfg.Addr(), err)
		}

		logger.Info("using redis idempotency store", zap.String("addr", redisCfg.Addr()))
		return NewRedisIdempotencyStore(client, ""), nil
	default:
		logger.Info("using in-memory idempotency store")
		return NewInMemoryIdempotencyStore(janitorInterval), nil
	}
}
