package repository

import (
	"context"
	"errors"
	"time"

	"accountledger/internal/model"
	"accountledger/pkg/page"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrAccountNoConflict = errors.New("账户编号已被占用")

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) GetByAccountNo(ctx context.Context, accountNo string) (*model.Account, error) {
	return r.first(r.db.WithContext(ctx).Where("account_no = ?", accountNo))
}

func (r *AccountRepository) GetByUserNo(ctx context.Context, userNo string) (*model.Account, error) {
	return r.first(r.db.WithContext(ctx).Where("user_no = ?", userNo))
}

// GetByUserNoForUpdate 在事务内加行锁读取，锁在事务提交或回滚时释放
func (r *AccountRepository) GetByUserNoForUpdate(ctx context.Context, tx *gorm.DB, userNo string) (*model.Account, error) {
	return r.first(tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_no = ?", userNo))
}

func (r *AccountRepository) first(query *gorm.DB) (*model.Account, error) {
	var account model.Account
	if err := query.Take(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Save 写回记账引擎改动过的全部金额字段
// 只按主键更新，调用方必须已经持有该行的锁
func (r *AccountRepository) Save(ctx context.Context, tx *gorm.DB, account *model.Account) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"balance":      account.Balance,
			"unbalance":    account.Unbalance,
			"sett_amount":  account.SettAmount,
			"total_income": account.TotalIncome,
			"total_expend": account.TotalExpend,
			"today_income": account.TodayIncome,
			"today_expend": account.TodayExpend,
			"edit_time":    account.EditTime,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ResetTodayIfStale 条件写：只有 edit_time 早于今天零点时才清零今日收支
// 并发的记账已经把行改成今天的话这里不会覆盖它；返回是否真的写入
func (r *AccountRepository) ResetTodayIfStale(ctx context.Context, accountNo string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("account_no = ? AND edit_time < ?", accountNo, model.StartOfDay(now)).
		Updates(map[string]interface{}{
			"today_income": decimal.Zero,
			"today_expend": decimal.Zero,
			"edit_time":    now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListStale 按 id 游标分批取出今日收支需要清零的账户
func (r *AccountRepository) ListStale(ctx context.Context, now time.Time, afterID int64, limit int) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Where("id > ? AND edit_time < ?", afterID, model.StartOfDay(now)).
		Where("today_income <> 0 OR today_expend <> 0").
		Order("id ASC").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}

func (r *AccountRepository) ListActive(ctx context.Context) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Where("status = ?", model.AccountStatusActive).
		Order("id ASC").
		Find(&accounts).Error
	return accounts, err
}

// ListPage 分页查询，p.PageNum 会被校正到合法范围
func (r *AccountRepository) ListPage(ctx context.Context, filter Filter, p *page.Param) ([]*model.Account, int64, error) {
	query, err := filter.apply(r.db.WithContext(ctx).Model(&model.Account{}), accountColumns)
	if err != nil {
		return nil, 0, err
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	p.PageNum = page.CheckCurrentPage(total, p.NumPerPage, p.PageNum)

	var accounts []*model.Account
	err = query.
		Order("id DESC").
		Offset(p.Offset()).
		Limit(p.NumPerPage).
		Find(&accounts).Error
	return accounts, total, err
}

// GetOrCreate 用户已有账户直接返回，否则插入；并发绑定靠 user_no 唯一索引兜底
func (r *AccountRepository) GetOrCreate(ctx context.Context, account *model.Account) (*model.Account, error) {
	existing, err := r.GetByUserNo(ctx, account.UserNo)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_no"}},
			DoNothing: true,
		}).
		Create(account).Error
	if err != nil {
		return nil, err
	}

	existing, err = r.GetByUserNo(ctx, account.UserNo)
	if errors.Is(err, ErrAccountNotFound) {
		// MySQL 的 DO NOTHING 会吞掉 account_no 冲突，此时用户仍然没有账户
		return nil, ErrAccountNoConflict
	}
	return existing, err
}
