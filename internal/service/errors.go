package service

import (
	"context"
	"errors"
	"fmt"

	"accountledger/internal/infrastructure/database"
	"accountledger/internal/infrastructure/lock"
	"accountledger/internal/repository"
)

var (
	ErrAccountNotFound = repository.ErrAccountNotFound
	ErrHistoryNotFound = repository.ErrHistoryNotFound
	ErrInvalidFilter   = repository.ErrInvalidFilter

	ErrInsufficientAvailableBalance = errors.New("可用余额不足")
	ErrFreezeAmountExceedsAvailable = errors.New("冻结金额超过可用余额")
	ErrUnfreezeAmountExceedsHeld    = errors.New("解冻金额超过冻结金额")
	ErrInvalidAmount                = errors.New("金额不合法")
	ErrInvalidRequest               = errors.New("请求参数不合法")

	// 以下两类可以由调用方整体重试
	ErrLockTimeout    = errors.New("账户繁忙，获取锁超时")
	ErrStorageFailure = errors.New("存储访问失败")
)

// businessErrors 由当前账户状态决定的错误，重试不会有不同结果
var businessErrors = []error{
	ErrAccountNotFound,
	ErrHistoryNotFound,
	ErrInvalidFilter,
	ErrInsufficientAvailableBalance,
	ErrFreezeAmountExceedsAvailable,
	ErrUnfreezeAmountExceedsHeld,
	ErrInvalidAmount,
	ErrInvalidRequest,
}

func isBusinessError(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRetryable 锁超时和存储失败可以重试，业务错误不可以
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrStorageFailure)
}

// translateStorageErr 业务错误原样返回，行锁等待超时归为 ErrLockTimeout，
// 其余存储错误包装成 ErrStorageFailure 并保留原始错误
func translateStorageErr(err error) error {
	if err == nil || isBusinessError(err) {
		return err
	}
	if database.IsLockTimeout(err) {
		return fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrStorageFailure, err)
}

// translateLockErr 等锁超时（包括调用方的 deadline 先到）归为 ErrLockTimeout，
// 主动取消原样返回，Redis 不可用按存储失败处理
func translateLockErr(err error) error {
	switch {
	case errors.Is(err, lock.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrLockTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
}
