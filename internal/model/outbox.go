package model

import (
	"encoding/json"
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 本地消息表
// 与账户变更在同一事务内写入，由 OutboxSender 异步投递到 Kafka
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// LedgerEntryEvent 记账事件，下游对账 / 通知服务消费
type LedgerEntryEvent struct {
	HistoryID     int64  `json:"history_id"`
	AccountNo     string `json:"account_no"`
	UserNo        string `json:"user_no"`
	RequestNo     string `json:"request_no"`
	TrxType       string `json:"trx_type"`
	FundDirection string `json:"fund_direction"`
	Amount        string `json:"amount"`
	Balance       string `json:"balance"`
	Unbalance     string `json:"unbalance"`
	OccurredAt    string `json:"occurred_at"`
}

// NewLedgerEntryMessage 根据刚写入的历史记录和变更后的账户构造待发送消息
// 消息 key 使用账户编号，保证同一账户的事件落在同一分区内有序
func NewLedgerEntryMessage(topic string, history *AccountHistory, account *Account) (*OutboxMessage, error) {
	event := LedgerEntryEvent{
		HistoryID:     history.ID,
		AccountNo:     history.AccountNo,
		UserNo:        history.UserNo,
		RequestNo:     history.RequestNo,
		TrxType:       history.TrxType,
		FundDirection: history.FundDirection,
		Amount:        history.Amount.StringFixed(2),
		Balance:       history.Balance.StringFixed(2),
		Unbalance:     account.Unbalance.StringFixed(2),
		OccurredAt:    history.EditTime.Format(time.RFC3339),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		MessageKey: history.AccountNo,
		Topic:      topic,
		Payload:    string(payload),
		Status:     OutboxStatusPending,
	}, nil
}
