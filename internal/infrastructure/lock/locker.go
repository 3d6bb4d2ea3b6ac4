package lock

import (
	"context"
	"errors"
	"fmt"
)

// ErrLockTimeout 在等待时间内没有拿到锁
var ErrLockTimeout = errors.New("获取账户锁超时")

// Locker 按 key 互斥
//
// Acquire 阻塞直到拿到锁、等待超时（ErrLockTimeout）或 ctx 结束；
// 成功时返回的 release 必须调用且只会生效一次
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// AccountKey 记账锁的 key
//
// 按用户维度加锁：user_no 与账户一一对应，同一账户的记账串行执行，
// 不同账户互不阻塞
func AccountKey(userNo string) string {
	return fmt.Sprintf("ledger:lock:user:%s", userNo)
}
