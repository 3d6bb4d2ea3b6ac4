package service

import (
	"context"
	"errors"
	"fmt"

	"accountledger/internal/model"
	"accountledger/internal/repository"
	"accountledger/pkg/idgen"
	"accountledger/pkg/logger"
	"accountledger/pkg/page"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AccountService 面向用户的账户操作：绑定、余额、提现申请、记录查询
type AccountService struct {
	accountRepo *repository.AccountRepository
	ledger      *LedgerService
	query       *QueryService
}

func NewAccountService(db *gorm.DB, ledger *LedgerService, query *QueryService) *AccountService {
	return &AccountService{
		accountRepo: repository.NewAccountRepository(db),
		ledger:      ledger,
		query:       query,
	}
}

type BindRequest struct {
	UserNo      string `json:"-" validate:"required,max=64"`
	AccountNo   string `json:"account_no" validate:"max=64"`
	AccountName string `json:"account_name" validate:"max=128"`
}

// BalanceView 余额查询结果
type BalanceView struct {
	AccountNo           string          `json:"account_no"`
	Balance             decimal.Decimal `json:"balance"`
	Unbalance           decimal.Decimal `json:"unbalance"`
	AvailableBalance    decimal.Decimal `json:"available_balance"`
	AvailableSettAmount decimal.Decimal `json:"available_sett_amount"`
	TodayIncome         decimal.Decimal `json:"today_income"`
	TodayExpend         decimal.Decimal `json:"today_expend"`
	TotalIncome         decimal.Decimal `json:"total_income"`
	TotalExpend         decimal.Decimal `json:"total_expend"`
}

// BindAccount 用户第一次绑定时创建全零账户，已经有账户则直接返回
func (s *AccountService) BindAccount(ctx context.Context, req *BindRequest) (*model.Account, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	accountNo := req.AccountNo
	if accountNo == "" {
		accountNo = idgen.GenerateAccountNo()
	}

	account, err := s.accountRepo.GetOrCreate(ctx, model.NewAccount(req.UserNo, accountNo, req.AccountName, s.query.now()))
	if err != nil {
		if errors.Is(err, repository.ErrAccountNoConflict) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return nil, translateStorageErr(err)
	}

	logger.Info(ctx, "账户绑定", zap.String("user_no", account.UserNo), zap.String("account_no", account.AccountNo))
	return account, nil
}

func (s *AccountService) GetBalance(ctx context.Context, userNo string) (*BalanceView, error) {
	account, err := s.query.GetAccountByUserNo(ctx, userNo)
	if err != nil {
		return nil, err
	}
	return &BalanceView{
		AccountNo:           account.AccountNo,
		Balance:             account.Balance,
		Unbalance:           account.Unbalance,
		AvailableBalance:    account.AvailableBalance(),
		AvailableSettAmount: account.AvailableSettAmount(),
		TodayIncome:         account.TodayIncome,
		TodayExpend:         account.TodayExpend,
		TotalIncome:         account.TotalIncome,
		TotalExpend:         account.TotalExpend,
	}, nil
}

// Withdraw 提现申请：冻结提现金额
// 打款结果回来后由调用方走 SettleSuccess（trx_type=WITHDRAW）或 SettleFailure
func (s *AccountService) Withdraw(ctx context.Context, userNo string, amount decimal.Decimal) (*model.Account, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: 提现金额必须大于 0", ErrInvalidAmount)
	}
	return s.ledger.Freeze(ctx, &FreezeRequest{UserNo: userNo, Amount: amount})
}

// WithdrawRecords 提现记录，即 trx_type=WITHDRAW 的账户历史
func (s *AccountService) WithdrawRecords(ctx context.Context, userNo string, p page.Param) (*page.Bean[*model.AccountHistory], error) {
	return s.History(ctx, userNo, model.TrxTypeWithdraw, p)
}

// History 当前用户的账户历史，trxType 为空时不过滤
func (s *AccountService) History(ctx context.Context, userNo, trxType string, p page.Param) (*page.Bean[*model.AccountHistory], error) {
	account, err := s.accountRepo.GetByUserNo(ctx, userNo)
	if err != nil {
		return nil, translateStorageErr(err)
	}
	return s.query.PageAccountHistory(ctx, p, repository.Filter{
		"accountNo": account.AccountNo,
		"trxType":   trxType,
	})
}
