package job

import (
	"context"
	"time"

	"accountledger/internal/config"
	"accountledger/internal/metrics"
	"accountledger/internal/repository"
	"accountledger/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DailyRolloverJob 定期把跨天账户的今日收支清零
//
// 记账和单账户查询都会自己做日切，这个任务只是让直接读表的报表
// 也能看到正确的今日数据。写入使用和读路径相同的条件写，
// 不会覆盖并发记账刚写入的今日数据
type DailyRolloverJob struct {
	accountRepo *repository.AccountRepository
	stopCh      chan struct{}
	interval    time.Duration
	batchSize   int
	now         func() time.Time
}

func NewDailyRolloverJob(db *gorm.DB, cfg *config.Config) *DailyRolloverJob {
	return &DailyRolloverJob{
		accountRepo: repository.NewAccountRepository(db),
		stopCh:      make(chan struct{}),
		interval:    cfg.Business.RolloverInterval,
		batchSize:   cfg.Business.RolloverBatch,
		now:         time.Now,
	}
}

func (j *DailyRolloverJob) Start(ctx context.Context) {
	logger.Info(ctx, "[DailyRolloverJob] 日切任务启动", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "[DailyRolloverJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			logger.Info(ctx, "[DailyRolloverJob] 任务停止")
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				logger.Error(ctx, "[DailyRolloverJob] 日切失败", zap.Error(err))
			}
		}
	}
}

func (j *DailyRolloverJob) Stop() {
	close(j.stopCh)
}

// RunOnce 按 id 游标分批扫描，返回本轮实际清零的账户数
func (j *DailyRolloverJob) RunOnce(ctx context.Context) (int, error) {
	now := j.now()
	var afterID int64
	reset := 0

	for {
		accounts, err := j.accountRepo.ListStale(ctx, now, afterID, j.batchSize)
		if err != nil {
			return reset, err
		}
		for _, a := range accounts {
			changed, err := j.accountRepo.ResetTodayIfStale(ctx, a.AccountNo, now)
			if err != nil {
				logger.Warn(ctx, "[DailyRolloverJob] 账户日切失败", zap.String("account_no", a.AccountNo), zap.Error(err))
				continue
			}
			if changed {
				reset++
				metrics.RolloverAccountsTotal.Inc()
			}
		}
		if len(accounts) < j.batchSize {
			break
		}
		afterID = accounts[len(accounts)-1].ID
	}

	if reset > 0 {
		logger.Info(ctx, "[DailyRolloverJob] 日切完成", zap.Int("accounts", reset))
	}
	return reset, nil
}
