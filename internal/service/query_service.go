package service

import (
	"context"
	"time"

	"accountledger/internal/config"
	"accountledger/internal/model"
	"accountledger/internal/repository"
	"accountledger/pkg/logger"
	"accountledger/pkg/page"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QueryService 只读查询，不加账户锁
//
// 单个账户的查询会把跨天的今日收支用条件写清零后再返回；
// 列表查询只在内存里清零，落库交给日切任务
type QueryService struct {
	accountRepo *repository.AccountRepository
	historyRepo *repository.HistoryRepository
	pagination  config.PaginationConfig
	now         func() time.Time
}

func NewQueryService(db *gorm.DB, cfg *config.Config) *QueryService {
	return &QueryService{
		accountRepo: repository.NewAccountRepository(db),
		historyRepo: repository.NewHistoryRepository(db),
		pagination:  cfg.Pagination,
		now:         time.Now,
	}
}

func (s *QueryService) GetAccountByAccountNo(ctx context.Context, accountNo string) (*model.Account, error) {
	account, err := s.accountRepo.GetByAccountNo(ctx, accountNo)
	if err != nil {
		return nil, translateStorageErr(err)
	}
	return s.normalize(ctx, account)
}

func (s *QueryService) GetAccountByUserNo(ctx context.Context, userNo string) (*model.Account, error) {
	account, err := s.accountRepo.GetByUserNo(ctx, userNo)
	if err != nil {
		return nil, translateStorageErr(err)
	}
	return s.normalize(ctx, account)
}

// normalize 读路径上的日切
//
// 写入条件是 edit_time 仍早于今天零点：并发记账如果已经把这一行改成今天，
// 条件写不会生效，这时重新读一次拿到记账后的数据
func (s *QueryService) normalize(ctx context.Context, account *model.Account) (*model.Account, error) {
	now := s.now()
	if !account.IsStale(now) || (account.TodayIncome.IsZero() && account.TodayExpend.IsZero()) {
		return account, nil
	}

	changed, err := s.accountRepo.ResetTodayIfStale(ctx, account.AccountNo, now)
	if err != nil {
		// 写回失败不影响读，返回内存里清零后的结果
		logger.Warn(ctx, "日切写回失败", zap.String("account_no", account.AccountNo), zap.Error(err))
		account.Rollover(now)
		return account, nil
	}
	if changed {
		account.Rollover(now)
		account.EditTime = now
		return account, nil
	}

	fresh, err := s.accountRepo.GetByAccountNo(ctx, account.AccountNo)
	if err != nil {
		return nil, translateStorageErr(err)
	}
	fresh.Rollover(now)
	return fresh, nil
}

// ListAll 全部有效账户
func (s *QueryService) ListAll(ctx context.Context) ([]*model.Account, error) {
	accounts, err := s.accountRepo.ListActive(ctx)
	if err != nil {
		return nil, translateStorageErr(err)
	}
	s.rolloverInMemory(accounts)
	return accounts, nil
}

func (s *QueryService) PageAccount(ctx context.Context, p page.Param, filter repository.Filter) (*page.Bean[*model.Account], error) {
	p = s.checkPageParam(p)
	accounts, total, err := s.accountRepo.ListPage(ctx, filter, &p)
	if err != nil {
		return nil, translateStorageErr(err)
	}
	s.rolloverInMemory(accounts)
	return page.NewBean(p, total, accounts), nil
}

func (s *QueryService) PageAccountHistory(ctx context.Context, p page.Param, filter repository.Filter) (*page.Bean[*model.AccountHistory], error) {
	p = s.checkPageParam(p)
	histories, total, err := s.historyRepo.ListPage(ctx, filter, &p)
	if err != nil {
		return nil, translateStorageErr(err)
	}
	return page.NewBean(p, total, histories), nil
}

func (s *QueryService) PageAccountHistoryByAccountNo(ctx context.Context, p page.Param, accountNo string) (*page.Bean[*model.AccountHistory], error) {
	return s.PageAccountHistory(ctx, p, repository.Filter{"accountNo": accountNo})
}

// GetAccountHistoryByAccountNoAndTrxType 某账户某业务类型最新的一条历史
func (s *QueryService) GetAccountHistoryByAccountNoAndTrxType(ctx context.Context, accountNo, trxType string) (*model.AccountHistory, error) {
	history, err := s.historyRepo.GetLatestByAccountNoAndTrxType(ctx, accountNo, trxType)
	if err != nil {
		return nil, translateStorageErr(err)
	}
	return history, nil
}

func (s *QueryService) GetHistoryByID(ctx context.Context, id int64) (*model.AccountHistory, error) {
	history, err := s.historyRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateStorageErr(err)
	}
	return history, nil
}

// CompleteSettlement 结算完成回调：只改结算标记和银行流水号，返回更新后的记录
func (s *QueryService) CompleteSettlement(ctx context.Context, id int64, bankTrxNo string) (*model.AccountHistory, error) {
	if err := s.historyRepo.CompleteSettlement(ctx, id, bankTrxNo, s.now()); err != nil {
		return nil, translateStorageErr(err)
	}
	logger.Info(ctx, "结算完成", zap.Int64("history_id", id), zap.String("bank_trx_no", bankTrxNo))
	return s.GetHistoryByID(ctx, id)
}

func (s *QueryService) checkPageParam(p page.Param) page.Param {
	p.NumPerPage = page.CheckNumPerPage(p.NumPerPage, s.pagination.DefaultPageSize, s.pagination.MaxPageSize)
	if p.PageNum < 1 {
		p.PageNum = 1
	}
	return p
}

func (s *QueryService) rolloverInMemory(accounts []*model.Account) {
	now := s.now()
	for _, a := range accounts {
		a.Rollover(now)
	}
}
