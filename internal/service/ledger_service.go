package service

import (
	"context"
	"fmt"
	"time"

	"accountledger/internal/config"
	"accountledger/internal/infrastructure/lock"
	"accountledger/internal/metrics"
	"accountledger/internal/model"
	"accountledger/internal/repository"
	"accountledger/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	OpCredit        = "credit"
	OpDebit         = "debit"
	OpFreeze        = "freeze"
	OpSettleSuccess = "settle_success"
	OpSettleFailure = "settle_failure"
)

var validate = validator.New()

// ============================================================================
// 记账引擎
// ============================================================================
//
// 每一次记账都是同一套流程：
//
//   账户锁 -> 开事务 -> SELECT ... FOR UPDATE -> 日切 -> 校验 -> 修改
//          -> 更新账户 + 插入账户历史 + 插入本地消息 -> 提交 -> 释放账户锁
//
// 账户锁让同一账户的请求在进入数据库之前排队，等待有上限；
// 行锁保证即使绕过账户锁（比如锁过期）同一行也不会被并发修改。
// 校验失败时事务回滚，账户和历史都不会有任何变化。
//
// 【注意】request_no 只做记录，不做去重，重复调用会重复记账
// ============================================================================

type LedgerService struct {
	db          *gorm.DB
	locker      lock.Locker
	topic       string
	accountRepo *repository.AccountRepository
	historyRepo *repository.HistoryRepository
	outboxRepo  *repository.OutboxRepository
	now         func() time.Time
}

func NewLedgerService(db *gorm.DB, locker lock.Locker, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:          db,
		locker:      locker,
		topic:       cfg.Kafka.Topic.LedgerEntry,
		accountRepo: repository.NewAccountRepository(db),
		historyRepo: repository.NewHistoryRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		now:         time.Now,
	}
}

// CreditRequest 加款
type CreditRequest struct {
	UserNo    string          `json:"user_no" validate:"required,max=64"`
	Amount    decimal.Decimal `json:"amount"`
	RequestNo string          `json:"request_no" validate:"required,max=64"`
	BankTrxNo string          `json:"bank_trx_no" validate:"max=64"`
	TrxType   string          `json:"trx_type" validate:"required,oneof=EXPENSE RECHARGE WITHDRAW REFUND ADJUST"`
	Remark    string          `json:"remark" validate:"max=256"`
}

// DebitRequest 减款
type DebitRequest CreditRequest

// FreezeRequest 冻结 / 解冻
type FreezeRequest struct {
	UserNo string          `json:"user_no" validate:"required,max=64"`
	Amount decimal.Decimal `json:"amount"`
}

// SettleRequest 冻结资金结算成功
type SettleRequest struct {
	UserNo    string          `json:"user_no" validate:"required,max=64"`
	Amount    decimal.Decimal `json:"amount"`
	RequestNo string          `json:"request_no" validate:"required,max=64"`
	TrxType   string          `json:"trx_type" validate:"required,oneof=EXPENSE RECHARGE WITHDRAW REFUND ADJUST"`
	Remark    string          `json:"remark" validate:"max=256"`
}

// Credit 加款：余额增加，交易收入同时计入收益统计
func (s *LedgerService) Credit(ctx context.Context, req *CreditRequest) (*model.Account, error) {
	if err := checkRequest(req, req.Amount); err != nil {
		return nil, err
	}

	return s.mutate(ctx, OpCredit, req.UserNo, req.Amount, func(a *model.Account) (*model.AccountHistory, error) {
		a.Balance = a.Balance.Add(req.Amount)
		if req.TrxType == model.TrxTypeExpense {
			a.TotalIncome = a.TotalIncome.Add(req.Amount)
			a.TodayIncome = a.TodayIncome.Add(req.Amount)
		}
		return &model.AccountHistory{
			Amount:        req.Amount,
			FundDirection: model.FundDirectionAdd,
			TrxType:       req.TrxType,
			RequestNo:     req.RequestNo,
			BankTrxNo:     optional(req.BankTrxNo),
			IsAllowSett:   model.Yes,
			Remark:        req.Remark,
		}, nil
	})
}

// Debit 减款：只能扣可用余额
func (s *LedgerService) Debit(ctx context.Context, req *DebitRequest) (*model.Account, error) {
	if err := checkRequest(req, req.Amount); err != nil {
		return nil, err
	}

	return s.mutate(ctx, OpDebit, req.UserNo, req.Amount, func(a *model.Account) (*model.AccountHistory, error) {
		if !a.AvailableBalanceIsEnough(req.Amount) {
			return nil, ErrInsufficientAvailableBalance
		}
		a.Balance = a.Balance.Sub(req.Amount)
		addExpend(a, req.Amount)
		return &model.AccountHistory{
			Amount:        req.Amount,
			FundDirection: model.FundDirectionSub,
			TrxType:       req.TrxType,
			RequestNo:     req.RequestNo,
			BankTrxNo:     optional(req.BankTrxNo),
			IsAllowSett:   model.Yes,
			Remark:        req.Remark,
		}, nil
	})
}

// Freeze 冻结：只占用可用余额，不产生账户历史
func (s *LedgerService) Freeze(ctx context.Context, req *FreezeRequest) (*model.Account, error) {
	if err := checkRequest(req, req.Amount); err != nil {
		return nil, err
	}

	return s.mutate(ctx, OpFreeze, req.UserNo, req.Amount, func(a *model.Account) (*model.AccountHistory, error) {
		if !a.AvailableBalanceIsEnough(req.Amount) {
			return nil, ErrFreezeAmountExceedsAvailable
		}
		a.Unbalance = a.Unbalance.Add(req.Amount)
		return nil, nil
	})
}

// SettleSuccess 冻结资金结算成功：解冻并扣除，可结算金额同步减少
func (s *LedgerService) SettleSuccess(ctx context.Context, req *SettleRequest) (*model.Account, error) {
	if err := checkRequest(req, req.Amount); err != nil {
		return nil, err
	}

	return s.mutate(ctx, OpSettleSuccess, req.UserNo, req.Amount, func(a *model.Account) (*model.AccountHistory, error) {
		if a.Unbalance.LessThan(req.Amount) {
			return nil, ErrUnfreezeAmountExceedsHeld
		}
		a.Balance = a.Balance.Sub(req.Amount)
		a.Unbalance = a.Unbalance.Sub(req.Amount)
		a.SettAmount = a.SettAmount.Sub(req.Amount)
		addExpend(a, req.Amount)
		return &model.AccountHistory{
			Amount:        req.Amount,
			FundDirection: model.FundDirectionSub,
			TrxType:       req.TrxType,
			RequestNo:     req.RequestNo,
			IsAllowSett:   model.No, // 已经结算出去，不能再参与结算
			Remark:        req.Remark,
		}, nil
	})
}

// SettleFailure 冻结资金结算失败：只解冻，不产生账户历史
func (s *LedgerService) SettleFailure(ctx context.Context, req *FreezeRequest) (*model.Account, error) {
	if err := checkRequest(req, req.Amount); err != nil {
		return nil, err
	}

	return s.mutate(ctx, OpSettleFailure, req.UserNo, req.Amount, func(a *model.Account) (*model.AccountHistory, error) {
		if a.Unbalance.LessThan(req.Amount) {
			return nil, ErrUnfreezeAmountExceedsHeld
		}
		a.Unbalance = a.Unbalance.Sub(req.Amount)
		return nil, nil
	})
}

// mutation 在已加锁、已日切的账户上做修改；返回 nil 表示不记账户历史
type mutation func(a *model.Account) (*model.AccountHistory, error)

func (s *LedgerService) mutate(ctx context.Context, op, userNo string, amount decimal.Decimal, apply mutation) (account *model.Account, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveOperation(op, resultOf(err), start)
	}()

	release, err := s.locker.Acquire(ctx, lock.AccountKey(userNo))
	if err != nil {
		err = translateLockErr(err)
		logger.Warn(ctx, "获取账户锁失败", zap.String("op", op), zap.String("user_no", userNo), zap.Error(err))
		return nil, err
	}
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := s.accountRepo.GetByUserNoForUpdate(ctx, tx, userNo)
		if err != nil {
			return err
		}

		now := s.now()
		a.Rollover(now)

		history, err := apply(a)
		if err != nil {
			return err
		}

		a.EditTime = now
		if err := s.accountRepo.Save(ctx, tx, a); err != nil {
			return fmt.Errorf("更新账户失败: %w", err)
		}

		if history != nil {
			history.AccountNo = a.AccountNo
			history.UserNo = a.UserNo
			history.Balance = a.Balance
			history.IsCompleteSett = model.No
			history.CreateTime = now
			history.EditTime = now
			if err := s.historyRepo.Create(ctx, tx, history); err != nil {
				return fmt.Errorf("写入账户历史失败: %w", err)
			}

			msg, err := model.NewLedgerEntryMessage(s.topic, history, a)
			if err != nil {
				return fmt.Errorf("生成记账事件失败: %w", err)
			}
			if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
				return fmt.Errorf("写入本地消息失败: %w", err)
			}
		}

		account = a
		return nil
	})
	if err != nil {
		err = translateStorageErr(err)
		if isBusinessError(err) {
			logger.Info(ctx, "记账被拒绝", zap.String("op", op), zap.String("user_no", userNo),
				zap.String("amount", amount.String()), zap.Error(err))
		} else {
			logger.Error(ctx, "记账失败", zap.String("op", op), zap.String("user_no", userNo),
				zap.String("amount", amount.String()), zap.Error(err))
		}
		return nil, err
	}

	logger.Info(ctx, "记账成功",
		zap.String("op", op),
		zap.String("user_no", userNo),
		zap.String("account_no", account.AccountNo),
		zap.String("amount", amount.String()),
		zap.String("balance", account.Balance.String()),
		zap.String("unbalance", account.Unbalance.String()),
	)
	return account, nil
}

// addExpend 日切之后累加今日支出和累计支出
func addExpend(a *model.Account, amount decimal.Decimal) {
	a.TodayExpend = a.TodayExpend.Add(amount)
	a.TotalExpend = a.TotalExpend.Add(amount)
}

func checkRequest(req interface{}, amount decimal.Decimal) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return checkAmount(amount)
}

// checkAmount 金额不能为负，最多两位小数（与 decimal(20,2) 一致）
func checkAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s 不能为负数", ErrInvalidAmount, amount)
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: %s 最多两位小数", ErrInvalidAmount, amount)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case isBusinessError(err):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}
