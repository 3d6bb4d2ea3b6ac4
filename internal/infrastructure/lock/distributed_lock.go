package lock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"accountledger/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ============================================================================
// Redis 分布式锁
// ============================================================================
//
// 加锁：SET key token NX PX ttl
//   - NX 保证互斥
//   - ttl 防止持有者崩溃后死锁
//   - token 是每次加锁生成的 uuid，释放时校验，避免删掉别人的锁
//
// 释放：Lua 脚本里先比较 token 再 DEL，两步是原子的
//
// 【注意】ttl 必须明显大于一次记账的耗时，否则锁可能在事务提交前过期；
// 数据库的 SELECT ... FOR UPDATE 仍然兜底同一行的串行
// ============================================================================

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

type RedisLockerOptions struct {
	TTL           time.Duration // 锁过期时间
	Wait          time.Duration // 最长等待时间
	RetryInterval time.Duration // 重试间隔，实际会加上随机抖动
}

type RedisLocker struct {
	client   *redis.Client
	opts     RedisLockerOptions
	newToken func() string
}

func NewRedisLocker(client *redis.Client, opts RedisLockerOptions) *RedisLocker {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 20 * time.Millisecond
	}
	return &RedisLocker{
		client:   client,
		opts:     opts,
		newToken: uuid.NewString,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := l.newToken()
	deadline := time.Now().Add(l.opts.Wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx %s: %w", key, err)
		}
		if ok {
			return l.releaseFunc(key, token), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrLockTimeout
		}

		// 随机抖动，避免一批等待者同时醒来再次争抢
		sleep := l.opts.RetryInterval/2 + time.Duration(rand.Int63n(int64(l.opts.RetryInterval)))
		if sleep > remaining {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) releaseFunc(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, token) })
	}
}

// release 调用方的 ctx 可能已经取消，释放锁使用独立的超时
func (l *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.client.Eval(ctx, unlockScript, []string{key}, token).Err(); err != nil {
		// 释放失败只能等 ttl 过期
		logger.Warn(ctx, "释放 Redis 锁失败", zap.String("key", key), zap.Error(err))
	}
}
