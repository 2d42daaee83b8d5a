package repo

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/telo-ai/server/internal/agent/model"
	errx "github.com/telo-ai/server/internal/core/error"
	logx "github.com/telo-ai/server/pkg/logger"
)

// RedisDocumentTextRepository is the KV cache of extracted document text.
// Entries never expire; the backfill job skips keys that are already present.
type RedisDocumentTextRepository struct {
	rdb redis.Cmdable
}

func NewRedisDocumentTextRepository(rdb redis.Cmdable) *RedisDocumentTextRepository {
	return &RedisDocumentTextRepository{rdb: rdb}
}

func (r *RedisDocumentTextRepository) documentKey(key string) string {
	return fmt.Sprintf("doc:%s", key)
}

func (r *RedisDocumentTextRepository) Get(ctx context.Context, key string) (string, bool, error) {
	k := r.documentKey(key)
	text, err := r.rdb.Get(ctx, k).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		logx.Error().Err(err).Str("key", k).Msg("failed to read document text from redis")
		return "", false, errx.WrapRedis(err)
	}
	return text, true, nil
}

func (r *RedisDocumentTextRepository) Put(ctx context.Context, key, text string) error {
	k := r.documentKey(key)
	if err := r.rdb.Set(ctx, k, text, 0).Err(); err != nil {
		logx.Error().Err(err).Str("key", k).Msg("failed to store document text in redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.DocumentTextRepository = (*RedisDocumentTextRepository)(nil)
