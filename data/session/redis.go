package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/Ledu55/portfolio-tracker/config"
	"github.com/Ledu55/portfolio-tracker/internal/model"
	"github.com/Ledu55/portfolio-tracker/utils"
	"github.com/redis/go-redis/v9"
)

// RedisSession keeps the single durable session record under one
// namespaced key. Only the session store writes it.
type RedisSession struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisSession(redisClient *redis.Client, cfg *config.Config) *RedisSession {
	return &RedisSession{redis: redisClient, cfg: cfg}
}

func (r *RedisSession) GetSession(ctx context.Context) (model.StoredSession, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	res, err := r.redis.Get(ctx, r.cfg.Session.StorageKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.StoredSession{}, ErrNotFound
		}
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", r.cfg.Session.StorageKey))
		return model.StoredSession{}, err
	}

	stored := model.StoredSession{}
	if err := json.Unmarshal([]byte(res), &stored); err != nil {
		slog.Error("can't unmarshall stored session", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return model.StoredSession{}, errors.New("can't unmarshall stored session")
	}

	return stored, nil
}

func (r *RedisSession) SetSession(ctx context.Context, stored model.StoredSession) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	sessionJson, err := json.Marshal(stored)
	if err != nil {
		slog.Error("can't marshall stored session", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return errors.New("can't marshall stored session")
	}

	_, err = r.redis.Set(ctx, r.cfg.Session.StorageKey, sessionJson, 0).Result()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", r.cfg.Session.StorageKey))
		return err
	}

	return nil
}

func (r *RedisSession) DeleteSession(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	_, err := r.redis.Del(ctx, r.cfg.Session.StorageKey).Result()
	if err != nil {
		slog.Error("failed on redis.Del", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", r.cfg.Session.StorageKey))
		return err
	}

	return nil
}
