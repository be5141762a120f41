package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockHeld = errors.New("lock is held by another instance")
)

type sweepLockOptions struct {
	expiry        time.Duration
	renewInterval time.Duration
}

type SweepLockOption func(*sweepLockOptions)

// WithSweepLockExpiry 設置鎖過期時間
func WithSweepLockExpiry(d time.Duration) SweepLockOption {
	return func(o *sweepLockOptions) {
		o.expiry = d
	}
}

// WithSweepLockRenewInterval 設置自動續期間隔
func WithSweepLockRenewInterval(d time.Duration) SweepLockOption {
	return func(o *sweepLockOptions) {
		o.renewInterval = d
	}
}

// SweepLock 確保同一時間只有一個實例在執行結算或通知排程。
// 取得鎖後會在背景續期，直到釋放或續期失敗為止。
type SweepLock struct {
	rs      *redsync.Redsync
	key     string
	options sweepLockOptions
}

// NewSweepLock 建立以 key 為名的 redsync 互斥鎖
func NewSweepLock(client *redis.Client, key string, opts ...SweepLockOption) (*SweepLock, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}

	// 默認選項
	options := sweepLockOptions{
		expiry: 30 * time.Second,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	// 如果未設置續期間隔，使用過期時間的1/3
	if options.renewInterval <= 0 {
		options.renewInterval = options.expiry / 3
	}

	return &SweepLock{
		rs:      redsync.New(goredis.NewPool(client)),
		key:     key,
		options: options,
	}, nil
}

// TryLock 嘗試一次取得鎖，不等待。
// 鎖被其他實例持有時回傳 ErrLockHeld；成功時回傳的 context 會在失去鎖時被取消，
// 呼叫端必須呼叫 release。
func (l *SweepLock) TryLock(ctx context.Context) (context.Context, func(), error) {
	const op = "TryLock"
	mutex := l.rs.NewMutex(
		l.key,
		redsync.WithExpiry(l.options.expiry),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		var commErr *redsync.RedisError
		if errors.As(err, &commErr) || ctx.Err() != nil {
			return nil, nil, fmt.Errorf("[%s] Fail to acquire lock, key=%s, err=%w", op, l.key, err)
		}
		return nil, nil, fmt.Errorf("[%s] key=%s, err=%w", op, l.key, ErrLockHeld)
	}

	lockCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(l.options.renewInterval)
		defer ticker.Stop()

		for {
			select {
			case <-lockCtx.Done():
				return
			case <-ticker.C:
				ok, err := mutex.ExtendContext(lockCtx)
				if err != nil || !ok {
					// 續期失敗代表鎖可能已被別人取得，停止工作
					cancel()
					return
				}
			}
		}
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			// 使用新的 context，避免呼叫端的 context 已取消導致無法解鎖
			unlockCtx, unlockCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer unlockCancel()
			_, _ = mutex.UnlockContext(unlockCtx)
		})
	}
	return lockCtx, release, nil
}
