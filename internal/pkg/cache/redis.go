package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hanziloop/core/internal/models"
	pkgredis "github.com/hanziloop/core/internal/pkg/redis"
	"go.uber.org/zap"
)

// Redis backs the phrase cache with Redis for multi-instance
// deployments. TTL is enforced natively, so Cleanup is a no-op.
type Redis struct {
	client *pkgredis.Client
	logger *zap.Logger
}

// NewRedis wraps an existing Redis client as a PhraseCache.
func NewRedis(client *pkgredis.Client, logger *zap.Logger) *Redis {
	return &Redis{client: client, logger: logger.Named("PhraseCache")}
}

func (r *Redis) Get(ctx context.Context, key string) (*models.PhraseModel, bool) {
	raw, err := r.client.Get(ctx, key)
	if err != nil {
		r.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if raw == "" {
		return nil, false
	}
	var record models.PhraseModel
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		r.logger.Warn("cache entry corrupt, dropping", zap.String("key", key), zap.Error(err))
		_ = r.client.Del(ctx, key)
		return nil, false
	}
	return &record, true
}

func (r *Redis) Set(ctx context.Context, key string, record *models.PhraseModel, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	raw, err := json.Marshal(record)
	if err != nil {
		r.logger.Warn("cache set marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, key, string(raw), ttl); err != nil {
		r.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *Redis) Delete(ctx context.Context, key string) {
	if err := r.client.Del(ctx, key); err != nil {
		r.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *Redis) Cleanup(ctx context.Context) int { return 0 }
