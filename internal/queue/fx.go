package queue

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/artline/internal/config"
)

func Provide(cfg config.Config, log *zap.Logger) Queue {
	if cfg.QueueDriver == "memory" || cfg.RedisAddr == "" {
		log.Named("queue").Info("using in-memory dispatch queue")
		return NewMemoryQueue(0)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	log.Named("queue").Info("using redis dispatch queue", zap.String("addr", cfg.RedisAddr))
	return NewRedisQueue(client)
}

var Module = fx.Module("queue",
	fx.Provide(Provide),
)
