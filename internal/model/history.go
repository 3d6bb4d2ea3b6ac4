package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 资金方向 / 结算标记 / 业务类型
// ============================================================================

const (
	FundDirectionAdd = "ADD" // 加款
	FundDirectionSub = "SUB" // 减款
)

const (
	Yes = "YES"
	No  = "NO"
)

const (
	TrxTypeExpense  = "EXPENSE"  // 交易收入，计入收益统计
	TrxTypeRecharge = "RECHARGE" // 充值
	TrxTypeWithdraw = "WITHDRAW" // 提现
	TrxTypeRefund   = "REFUND"   // 退款
	TrxTypeAdjust   = "ADJUST"   // 人工调账
)

// ============================================================================
// 账户历史实体
// ============================================================================

// AccountHistory 账户历史表
// 每一次影响余额的操作追加一行，是对账的核心依据
//
// 【重要】只追加，不删除；后续结算流程只允许修改 is_complete_sett / bank_trx_no
type AccountHistory struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountNo      string          `gorm:"type:varchar(64);index:idx_history_account_trx;not null" json:"account_no"`
	UserNo         string          `gorm:"type:varchar(64);index;not null" json:"user_no"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`  // 金额（正数）
	Balance        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance"` // 变动后余额
	FundDirection  string          `gorm:"type:varchar(8);not null" json:"fund_direction"`
	TrxType        string          `gorm:"type:varchar(32);index:idx_history_account_trx;not null" json:"trx_type"`
	RequestNo      string          `gorm:"type:varchar(64);index;not null" json:"request_no"` // 调用方请求号，只记录不去重
	BankTrxNo      *string         `gorm:"type:varchar(64)" json:"bank_trx_no,omitempty"`
	IsAllowSett    string          `gorm:"type:varchar(4);not null" json:"is_allow_sett"`
	IsCompleteSett string          `gorm:"type:varchar(4);not null" json:"is_complete_sett"`
	RiskDay        int             `gorm:"not null;default:0" json:"risk_day"` // 风险预存期
	Remark         string          `gorm:"type:varchar(256)" json:"remark"`
	CreateTime     time.Time       `gorm:"autoCreateTime" json:"create_time"`
	EditTime       time.Time       `gorm:"not null" json:"edit_time"`
}

func (AccountHistory) TableName() string {
	return "account_history"
}
