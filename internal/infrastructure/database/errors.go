package database

import (
	"errors"

	mysqldriver "github.com/go-sql-driver/mysql"
)

const (
	errLockWaitTimeout  = 1205 // ER_LOCK_WAIT_TIMEOUT
	errLockNowaitFailed = 3572 // ER_LOCK_NOWAIT
)

// IsLockTimeout 行锁等待超时或 NOWAIT 加锁失败
func IsLockTimeout(err error) bool {
	var mysqlErr *mysqldriver.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}
	return mysqlErr.Number == errLockWaitTimeout || mysqlErr.Number == errLockNowaitFailed
}
