package repository

import (
	"context"
	"errors"
	"time"

	"accountledger/internal/model"
	"accountledger/pkg/page"

	"gorm.io/gorm"
)

type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Create(ctx context.Context, tx *gorm.DB, history *model.AccountHistory) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(history).Error
}

func (r *HistoryRepository) GetByID(ctx context.Context, id int64) (*model.AccountHistory, error) {
	var history model.AccountHistory
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&history).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHistoryNotFound
		}
		return nil, err
	}
	return &history, nil
}

// GetLatestByAccountNoAndTrxType 某账户某业务类型的最新一条记录
func (r *HistoryRepository) GetLatestByAccountNoAndTrxType(ctx context.Context, accountNo, trxType string) (*model.AccountHistory, error) {
	var history model.AccountHistory
	err := r.db.WithContext(ctx).
		Where("account_no = ? AND trx_type = ?", accountNo, trxType).
		Order("id DESC").
		Take(&history).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHistoryNotFound
		}
		return nil, err
	}
	return &history, nil
}

func (r *HistoryRepository) ListPage(ctx context.Context, filter Filter, p *page.Param) ([]*model.AccountHistory, int64, error) {
	query, err := filter.apply(r.db.WithContext(ctx).Model(&model.AccountHistory{}), historyColumns)
	if err != nil {
		return nil, 0, err
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	p.PageNum = page.CheckCurrentPage(total, p.NumPerPage, p.PageNum)

	var histories []*model.AccountHistory
	err = query.
		Order("id DESC").
		Offset(p.Offset()).
		Limit(p.NumPerPage).
		Find(&histories).Error
	return histories, total, err
}

// CompleteSettlement 把仍未结算完成的记录标记为已完成
// 记录不存在或已经完成时返回 ErrHistoryNotFound，重复回调不会改写银行流水号
func (r *HistoryRepository) CompleteSettlement(ctx context.Context, id int64, bankTrxNo string, now time.Time) error {
	updates := map[string]interface{}{
		"is_complete_sett": model.Yes,
		"edit_time":        now,
	}
	if bankTrxNo != "" {
		updates["bank_trx_no"] = bankTrxNo
	}

	result := r.db.WithContext(ctx).
		Model(&model.AccountHistory{}).
		Where("id = ? AND is_complete_sett = ?", id, model.No).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrHistoryNotFound
	}
	return nil
}
