package joblock

import (
	"time"

	"github.com/condolabs/condoledger/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("joblock",
	fx.Provide(func(cfg config.Config) *redis.Client {
		return redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}),
	fx.Provide(func(client *redis.Client, log *zap.Logger, cfg config.Config) *Locker {
		return NewLocker(client, log, time.Duration(cfg.Jobs.LockTTLSeconds)*time.Second)
	}),
)
