package job

import (
	"context"
	"time"

	"accountledger/internal/config"
	"accountledger/internal/metrics"
	"accountledger/internal/model"
	"accountledger/internal/repository"
	"accountledger/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventPublisher 把消息投递到 MQ，mq.Publisher 实现它
type EventPublisher interface {
	Publish(ctx context.Context, topic, key, value string) error
}

// OutboxSender 把本地消息表里的记账事件投递到 Kafka
//
// 至少投递一次：发送成功但标记 SENT 失败时下一轮会重发，消费方按 history_id 去重
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  EventPublisher
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	maxRetry   int
}

func NewOutboxSender(db *gorm.DB, publisher EventPublisher, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		stopCh:     make(chan struct{}),
		interval:   cfg.Business.OutboxInterval,
		batchSize:  cfg.Business.OutboxBatchSize,
		maxRetry:   cfg.Business.MaxRetryCount,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	logger.Info(ctx, "[OutboxSender] 消息发送任务启动", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			logger.Info(ctx, "[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// RunOnce 发送一批待发送消息，返回发送成功的条数
//
// 同一账户的某条消息发送失败后，本批次里该账户后面的消息都跳过，
// 保证下游看到的同一账户事件是有序的
func (s *OutboxSender) RunOnce(ctx context.Context) int {
	messages, err := s.outboxRepo.ListPending(ctx, s.batchSize)
	if err != nil {
		logger.Error(ctx, "[OutboxSender] 查询消息失败", zap.Error(err))
		return 0
	}

	sent := 0
	blocked := make(map[string]struct{})
	for _, msg := range messages {
		if _, ok := blocked[msg.MessageKey]; ok {
			continue
		}
		if s.send(ctx, msg) {
			sent++
		} else {
			blocked[msg.MessageKey] = struct{}{}
		}
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(ctx, msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		metrics.OutboxPublishedTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		if err := s.outboxRepo.MarkSent(ctx, msg.ID); err != nil {
			logger.Error(ctx, "[OutboxSender] 更新消息状态失败", zap.Int64("id", msg.ID), zap.Error(err))
		}
		return true
	}

	metrics.OutboxPublishedTotal.WithLabelValues(metrics.ResultError).Inc()
	logger.Warn(ctx, "[OutboxSender] 消息发送失败",
		zap.Int64("id", msg.ID),
		zap.String("key", msg.MessageKey),
		zap.Int("retry_count", msg.RetryCount),
		zap.Error(err),
	)

	if err := s.outboxRepo.MarkRetry(ctx, msg, s.maxRetry); err != nil {
		logger.Error(ctx, "[OutboxSender] 更新重试次数失败", zap.Int64("id", msg.ID), zap.Error(err))
	}
	if msg.RetryCount+1 >= s.maxRetry {
		logger.Error(ctx, "[OutboxSender] 消息超过最大重试次数，标记为失败", zap.Int64("id", msg.ID))
	}
	return false
}
