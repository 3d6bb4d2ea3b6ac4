package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"accountledger/internal/model"
	"accountledger/pkg/page"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestAccountService(db *gorm.DB) (*AccountService, *LedgerService) {
	ledger := newTestLedger(db)
	return NewAccountService(db, ledger, newTestQuery(db)), ledger
}

func TestAccount_BindCreatesZeroAccount(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestAccountService(db)
	ctx := context.Background()

	account, err := s.BindAccount(ctx, &BindRequest{UserNo: "U1", AccountName: "alice"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(account.AccountNo, "ACC"))
	assert.Equal(t, model.AccountStatusActive, account.Status)
	assert.Equal(t, model.AccountTypeUser, account.AccountType)
	assert.True(t, account.Balance.IsZero())
	assert.True(t, account.Unbalance.IsZero())
	assert.True(t, account.TotalIncome.IsZero())

	again, err := s.BindAccount(ctx, &BindRequest{UserNo: "U1", AccountNo: "OTHER"})
	require.NoError(t, err)
	assert.Equal(t, account.ID, again.ID)
	assert.Equal(t, account.AccountNo, again.AccountNo)
	assert.Equal(t, int64(1), countRows(t, db, &model.Account{}))
}

func TestAccount_BindWithGivenAccountNo(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestAccountService(db)

	account, err := s.BindAccount(context.Background(), &BindRequest{UserNo: "U1", AccountNo: "A1"})
	require.NoError(t, err)
	assert.Equal(t, "A1", account.AccountNo)

	_, err = s.BindAccount(context.Background(), &BindRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAccount_GetBalance(t *testing.T) {
	db := newTestDB(t)
	s, ledger := newTestAccountService(db)
	seedAccount(t, db, "U1", "1000", time.Now())
	updateAccount(t, db, "U1", map[string]interface{}{"sett_amount": dec("800")})
	ctx := context.Background()

	_, err := ledger.Freeze(ctx, &FreezeRequest{UserNo: "U1", Amount: dec("300")})
	require.NoError(t, err)

	view, err := s.GetBalance(ctx, "U1")
	require.NoError(t, err)
	assert.True(t, view.Balance.Equal(dec("1000")))
	assert.True(t, view.AvailableBalance.Equal(dec("700")))
	assert.True(t, view.AvailableSettAmount.Equal(dec("500")))

	_, err = s.GetBalance(ctx, "ghost")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccount_Withdraw(t *testing.T) {
	db := newTestDB(t)
	s, ledger := newTestAccountService(db)
	seedAccount(t, db, "U1", "100", time.Now())
	ctx := context.Background()

	_, err := s.Withdraw(ctx, "U1", dec("0"))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = s.Withdraw(ctx, "U1", dec("100.01"))
	assert.ErrorIs(t, err, ErrFreezeAmountExceedsAvailable)

	account, err := s.Withdraw(ctx, "U1", dec("60"))
	require.NoError(t, err)
	assert.True(t, account.Unbalance.Equal(dec("60")))
	assert.Zero(t, countRows(t, db, &model.AccountHistory{}), "提现申请只冻结，不记历史")

	_, err = ledger.SettleSuccess(ctx, &SettleRequest{UserNo: "U1", Amount: dec("60"), RequestNo: "WD1", TrxType: model.TrxTypeWithdraw})
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, credit("U1", "5", model.TrxTypeRecharge))
	require.NoError(t, err)

	records, err := s.WithdrawRecords(ctx, "U1", page.Param{})
	require.NoError(t, err)
	require.Len(t, records.RecordList, 1)
	assert.Equal(t, "WD1", records.RecordList[0].RequestNo)

	all, err := s.History(ctx, "U1", "", page.Param{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.TotalCount)
}
