package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"accountledger/internal/config"
	"accountledger/internal/handler"
	"accountledger/internal/infrastructure/cache"
	"accountledger/internal/infrastructure/database"
	"accountledger/internal/infrastructure/lock"
	"accountledger/internal/infrastructure/mq"
	"accountledger/internal/job"
	"accountledger/pkg/idgen"
	"accountledger/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg := config.LoadConfig(*configPath)

	logger.Init("account-ledger", cfg.Log.Level, cfg.Log.File)
	defer logger.Sync()

	// 初始化 ID 生成器
	idgen.Init(cfg.Server.WorkerID)

	db := database.InitMySQL(&cfg.MySQL)
	redisClient := cache.InitRedis(&cfg.Redis)
	locker := newLocker(redisClient, cfg)

	producer, err := mq.NewSyncProducer(&cfg.Kafka)
	if err != nil {
		logger.Fatal(context.Background(), "连接 Kafka 失败", zap.Error(err))
	}
	publisher := mq.NewPublisher(producer)
	defer publisher.Close()

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, publisher, cfg)
	go outboxSender.Start(ctx)

	rolloverJob := job.NewDailyRolloverJob(db, cfg)
	go rolloverJob.Start(ctx)

	router := handler.SetupRouter(db, redisClient, locker, cfg)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info(ctx, "服务启动", zap.Int("port", cfg.Server.Port), zap.String("lock_mode", cfg.Ledger.LockMode))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "服务启动失败", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 先停止接收请求，再关闭 Kafka 和 Redis
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "服务关闭异常", zap.Error(err))
	}
	if err := redisClient.Close(); err != nil {
		logger.Warn(shutdownCtx, "关闭 Redis 失败", zap.Error(err))
	}

	logger.Info(shutdownCtx, "服务已关闭")
}

// newLocker 多实例部署必须使用 Redis 锁
func newLocker(rdb *redis.Client, cfg *config.Config) lock.Locker {
	if cfg.Ledger.LockMode == config.LockModeLocal {
		return lock.NewLocalLocker(cfg.Ledger.LockWait)
	}
	return lock.NewRedisLocker(rdb, lock.RedisLockerOptions{
		TTL:  cfg.Ledger.LockTTL,
		Wait: cfg.Ledger.LockWait,
	})
}
