package cache

import (
	"context"
	"fmt"
	"time"

	"accountledger/internal/config"
	"accountledger/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// InitRedis 连接 Redis，启动时连不上直接退出
// Redis 同时承担账户锁和防重复提交
func InitRedis(cfg *config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal(ctx, "连接 Redis 失败", zap.Error(err))
	}

	logger.Info(ctx, "Redis 连接成功", zap.String("addr", client.Options().Addr))
	return client
}
