package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AccountStatusActive   = "ACTIVE"
	AccountStatusInactive = "INACTIVE"
)

const (
	AccountTypeUser = "USER"
)

// Account 用户账户表
// 每个绑定用户一行，account_no 与 user_no 均唯一
//
// 【重要】账户只能通过记账引擎修改：
//  1. 0 <= unbalance <= balance
//  2. 可用余额 = balance - unbalance，任何时刻不小于 0
//  3. today_income / today_expend 只对 edit_time 所在自然日有效
type Account struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountNo     string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"account_no"`
	AccountName   string          `gorm:"type:varchar(128)" json:"account_name"`
	UserNo        string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_no"`
	AccountType   string          `gorm:"type:varchar(20);not null;default:USER" json:"account_type"`
	Balance       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`        // 账户余额
	Unbalance     decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"unbalance"`      // 冻结金额
	SettAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"sett_amount"`    // 可结算金额
	SecurityMoney decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"security_money"` // 保证金
	TotalIncome   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_income"`
	TotalExpend   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_expend"`
	TodayIncome   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"today_income"`
	TodayExpend   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"today_expend"`
	Status        string          `gorm:"type:varchar(20);index;not null" json:"status"`
	Remark        string          `gorm:"type:varchar(256)" json:"remark"`
	Creater       string          `gorm:"type:varchar(64)" json:"creater"`
	CreateTime    time.Time       `gorm:"autoCreateTime" json:"create_time"`
	EditTime      time.Time       `gorm:"index;not null" json:"edit_time"` // 由业务代码维护，日切依赖它
}

func (Account) TableName() string {
	return "account"
}

// NewAccount 绑定时创建的零值账户
func NewAccount(userNo, accountNo, accountName string, now time.Time) *Account {
	return &Account{
		AccountNo:     accountNo,
		AccountName:   accountName,
		UserNo:        userNo,
		AccountType:   AccountTypeUser,
		Balance:       decimal.Zero,
		Unbalance:     decimal.Zero,
		SettAmount:    decimal.Zero,
		SecurityMoney: decimal.Zero,
		TotalIncome:   decimal.Zero,
		TotalExpend:   decimal.Zero,
		TodayIncome:   decimal.Zero,
		TodayExpend:   decimal.Zero,
		Status:        AccountStatusActive,
		Creater:       userNo,
		CreateTime:    now,
		EditTime:      now,
	}
}

// AvailableBalance 可用余额 = 余额 - 冻结金额
func (a *Account) AvailableBalance() decimal.Decimal {
	return a.Balance.Sub(a.Unbalance)
}

// AvailableSettAmount 实际可结算金额 = min(可用余额, 可结算金额 - 冻结金额)
func (a *Account) AvailableSettAmount() decimal.Decimal {
	return decimal.Min(a.AvailableBalance(), a.SettAmount.Sub(a.Unbalance))
}

// AvailableBalanceIsEnough 可用余额是否足够
func (a *Account) AvailableBalanceIsEnough(amount decimal.Decimal) bool {
	return a.AvailableBalance().GreaterThanOrEqual(amount)
}

// IsStale edit_time 不是 now 所在的自然日
func (a *Account) IsStale(now time.Time) bool {
	return !SameDay(a.EditTime, now)
}

// Rollover 日切：上次修改不是今天则把今日收支清零
// 只修改内存中的值，由调用方决定和哪次更新一起落库；返回是否发生了清零
func (a *Account) Rollover(now time.Time) bool {
	if !a.IsStale(now) {
		return false
	}
	a.TodayIncome = decimal.Zero
	a.TodayExpend = decimal.Zero
	return true
}

// SameDay 两个时间是否在同一个自然日（按 b 的时区）
func SameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// StartOfDay now 所在自然日的零点
func StartOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}
