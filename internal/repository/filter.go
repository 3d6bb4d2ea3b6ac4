package repository

import (
	"fmt"
	"sort"

	"gorm.io/gorm"
)

// Filter 分页查询条件，key 为对外的属性名，value 做等值匹配
type Filter map[string]string

// 属性名到列名的白名单，只有这里出现的 key 才会拼进 SQL
var (
	accountColumns = map[string]string{
		"accountNo":   "account_no",
		"accountName": "account_name",
		"userNo":      "user_no",
		"accountType": "account_type",
		"status":      "status",
	}

	historyColumns = map[string]string{
		"accountNo":      "account_no",
		"userNo":         "user_no",
		"trxType":        "trx_type",
		"fundDirection":  "fund_direction",
		"requestNo":      "request_no",
		"bankTrxNo":      "bank_trx_no",
		"isAllowSett":    "is_allow_sett",
		"isCompleteSett": "is_complete_sett",
	}
)

// apply 把过滤条件翻译成 where，空值忽略，未知 key 返回 ErrInvalidFilter
func (f Filter) apply(query *gorm.DB, columns map[string]string) (*gorm.DB, error) {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	// 固定顺序，生成的 SQL 稳定
	sort.Strings(keys)

	for _, k := range keys {
		column, ok := columns[k]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidFilter, k)
		}
		if v := f[k]; v != "" {
			query = query.Where(column+" = ?", v)
		}
	}
	return query, nil
}
