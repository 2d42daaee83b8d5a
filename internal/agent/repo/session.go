package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telo-ai/server/internal/agent/model"
	errx "github.com/telo-ai/server/internal/core/error"
	logx "github.com/telo-ai/server/pkg/logger"
)

type RedisSessionRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
	now func() time.Time
}

func NewRedisSessionRepository(rdb redis.Cmdable, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{rdb: rdb, ttl: ttl, now: time.Now}
}

func (r *RedisSessionRepository) sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

func (r *RedisSessionRepository) Save(ctx context.Context, id string, messages []model.UIMessage) error {
	if id == "" {
		return errx.BadRequest("session id is required")
	}
	if messages == nil {
		messages = []model.UIMessage{}
	}
	b, err := json.Marshal(model.Session{ID: id, Messages: messages, UpdatedAt: r.now().UTC()})
	if err != nil {
		logx.Error().Err(err).Str("sessionID", id).Msg("failed to marshal session")
		return fmt.Errorf("marshal session: %w", err)
	}

	key := r.sessionKey(id)
	// SET with TTL refreshes the expiry on every save
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to store session in redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisSessionRepository) Load(ctx context.Context, id string) (*model.Session, error) {
	key := r.sessionKey(id)

	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to load session from redis")
		}
		return nil, errx.WrapRedis(err)
	}

	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		logx.Error().Err(err).Str("sessionID", id).Msg("failed to unmarshal session")
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if s.Messages == nil {
		s.Messages = []model.UIMessage{}
	}
	return &s, nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, id string) error {
	key := r.sessionKey(id)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete session from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.SessionRepository = (*RedisSessionRepository)(nil)
