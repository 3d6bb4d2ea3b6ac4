package service

import (
	"context"
	"testing"
	"time"

	"accountledger/internal/config"
	"accountledger/internal/infrastructure/database"
	"accountledger/internal/infrastructure/lock"
	"accountledger/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB SQLite 内存库只保留一个连接；SQLite 不支持 FOR UPDATE，串行由账户锁保证
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{Topic: config.KafkaTopicConfig{LedgerEntry: "ledger_entry"}},
		Ledger: config.LedgerConfig{
			LockMode: config.LockModeLocal,
			LockWait: 5 * time.Second,
		},
		Pagination: config.PaginationConfig{DefaultPageSize: 20, MaxPageSize: 100},
	}
}

func newTestLedger(db *gorm.DB) *LedgerService {
	cfg := newTestConfig()
	return NewLedgerService(db, lock.NewLocalLocker(cfg.Ledger.LockWait), cfg)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seedAccount 直接写库构造账户，edit_time 可以指定为过去的时间
func seedAccount(t *testing.T, db *gorm.DB, userNo, balance string, editTime time.Time) *model.Account {
	t.Helper()
	a := model.NewAccount(userNo, "ACC-"+userNo, userNo, editTime)
	a.Balance = dec(balance)
	require.NoError(t, db.Create(a).Error)
	return a
}

func loadAccount(t *testing.T, db *gorm.DB, userNo string) *model.Account {
	t.Helper()
	var a model.Account
	require.NoError(t, db.Where("user_no = ?", userNo).Take(&a).Error)
	return &a
}

func updateAccount(t *testing.T, db *gorm.DB, userNo string, updates map[string]interface{}) {
	t.Helper()
	require.NoError(t, db.Model(&model.Account{}).Where("user_no = ?", userNo).Updates(updates).Error)
}

func countRows(t *testing.T, db *gorm.DB, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}

func listHistory(t *testing.T, db *gorm.DB, accountNo string) []*model.AccountHistory {
	t.Helper()
	var list []*model.AccountHistory
	require.NoError(t, db.Where("account_no = ?", accountNo).Order("id ASC").Find(&list).Error)
	return list
}

// assertAccountUnchanged 校验失败的操作不能改动账户的任何字段
func assertAccountUnchanged(t *testing.T, before, after *model.Account) {
	t.Helper()
	assert.True(t, before.Balance.Equal(after.Balance), "balance %s -> %s", before.Balance, after.Balance)
	assert.True(t, before.Unbalance.Equal(after.Unbalance), "unbalance %s -> %s", before.Unbalance, after.Unbalance)
	assert.True(t, before.SettAmount.Equal(after.SettAmount))
	assert.True(t, before.TotalIncome.Equal(after.TotalIncome))
	assert.True(t, before.TotalExpend.Equal(after.TotalExpend))
	assert.True(t, before.TodayIncome.Equal(after.TodayIncome))
	assert.True(t, before.TodayExpend.Equal(after.TodayExpend))
	assert.True(t, before.EditTime.Equal(after.EditTime), "edit_time %s -> %s", before.EditTime, after.EditTime)
}

func assertInvariants(t *testing.T, a *model.Account) {
	t.Helper()
	assert.False(t, a.Unbalance.IsNegative(), "unbalance=%s", a.Unbalance)
	assert.True(t, a.Unbalance.LessThanOrEqual(a.Balance), "unbalance=%s balance=%s", a.Unbalance, a.Balance)
	assert.False(t, a.AvailableBalance().IsNegative())
}

// stubLocker 固定返回某个错误的锁
type stubLocker struct {
	err error
}

func (l stubLocker) Acquire(context.Context, string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}
