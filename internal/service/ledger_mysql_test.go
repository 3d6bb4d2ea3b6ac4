package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"accountledger/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const selectForUpdate = "SELECT \\* FROM `account` WHERE user_no = \\? LIMIT .+ FOR UPDATE"

// newMockLedger gorm 使用 MySQL 方言跑在 sqlmock 上，用来校验真实生成的 SQL
func newMockLedger(t *testing.T) (*LedgerService, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	return NewLedgerService(db, stubLocker{}, newTestConfig()), mock
}

func accountRows(balance, unbalance string, editTime time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "account_no", "account_name", "user_no", "account_type",
		"balance", "unbalance", "sett_amount", "security_money",
		"total_income", "total_expend", "today_income", "today_expend",
		"status", "remark", "creater", "create_time", "edit_time",
	}).AddRow(
		1, "ACC1", "alice", "U1", model.AccountTypeUser,
		balance, unbalance, "0.00", "0.00",
		"0.00", "0.00", "0.00", "0.00",
		model.AccountStatusActive, "", "U1", editTime, editTime,
	)
}

func TestLedgerMySQL_RowLockTimeoutMapsToLockTimeout(t *testing.T) {
	s, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(selectForUpdate).
		WillReturnError(&mysqldriver.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded; try restarting transaction"})
	mock.ExpectRollback()

	_, err := s.Debit(context.Background(), debit("U1", "10"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.NotErrorIs(t, err, ErrStorageFailure)
	assert.True(t, IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerMySQL_StorageFailureOnUpdate(t *testing.T) {
	s, mock := newMockLedger(t)
	connReset := errors.New("connection reset by peer")

	mock.ExpectBegin()
	mock.ExpectQuery(selectForUpdate).WillReturnRows(accountRows("100.00", "0.00", time.Now()))
	mock.ExpectExec("UPDATE `account` SET").WillReturnError(connReset)
	mock.ExpectRollback()

	_, err := s.Credit(context.Background(), credit("U1", "10", model.TrxTypeRecharge))
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.ErrorIs(t, err, connReset)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerMySQL_NotFoundRollsBack(t *testing.T) {
	s, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(selectForUpdate).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := s.Freeze(context.Background(), &FreezeRequest{UserNo: "U1", Amount: dec("1")})
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerMySQL_InsufficientRollsBackWithoutWrites(t *testing.T) {
	s, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(selectForUpdate).WillReturnRows(accountRows("100.00", "90.00", time.Now()))
	mock.ExpectRollback()

	_, err := s.Debit(context.Background(), debit("U1", "10.01"))
	assert.ErrorIs(t, err, ErrInsufficientAvailableBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 一次记账：加锁读 -> 更新账户 -> 写历史 -> 写本地消息，全部在同一个事务里
func TestLedgerMySQL_SingleUnitOfWork(t *testing.T) {
	s, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(selectForUpdate).WillReturnRows(accountRows("100.00", "0.00", time.Now()))
	mock.ExpectExec("UPDATE `account` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `account_history`").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO `outbox_message`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	account, err := s.Debit(context.Background(), debit("U1", "40"))
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec("60")))
	assert.NoError(t, mock.ExpectationsWereMet())
}
