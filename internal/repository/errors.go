package repository

import "errors"

var (
	ErrAccountNotFound = errors.New("账户不存在")
	ErrHistoryNotFound = errors.New("账户历史不存在")
	ErrInvalidFilter   = errors.New("不支持的查询条件")
)
