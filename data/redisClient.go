package data

import (
	"context"
	"log/slog"
	"net"
	"strconv"

	"github.com/Ledu55/portfolio-tracker/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects the client backing the durable session
// record (see data/session). The process is useless without it, so a
// failed ping is fatal.
func NewRedisClient(cfg *config.Config) *redis.Client {
	rdb := redis.NewClient(redisOptions(cfg))

	ctx := context.Background()
	pong, err := rdb.Ping(ctx).Result()
	if err != nil {
		slog.Error("Error while connecting Redis", slog.String("error", err.Error()))
		panic(err)
	}
	slog.Info("Redis connected", slog.String("pong", pong), slog.String("sessionKey", cfg.Session.StorageKey))

	return rdb
}

func redisOptions(cfg *config.Config) *redis.Options {
	return &redis.Options{
		Addr:     net.JoinHostPort(cfg.Redis.Host, strconv.Itoa(cfg.Redis.Port)),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}
