package xdlock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// Redis 工厂实现
// =============================================================================

type redisFactory struct {
	clients []redis.UniversalClient
	rs      *redsync.Redsync
	closed  atomic.Bool
}

// NewRedisFactory 创建 Redis 锁工厂。
// 单节点为标准 Redis 锁；多节点使用 Redlock 算法。
func NewRedisFactory(clients ...redis.UniversalClient) (Factory, error) {
	if len(clients) == 0 {
		return nil, ErrNilClient
	}

	pools := make([]rsredis.Pool, len(clients))
	for i, client := range clients {
		if client == nil {
			return nil, errors.Join(ErrNilClient, errors.New("client at index "+strconv.Itoa(i)+" is nil"))
		}
		pools[i] = goredis.NewPool(client)
	}

	return &redisFactory{
		clients: clients,
		rs:      redsync.New(pools...),
	}, nil
}

// TryLock 只尝试一次，锁被占用时返回 (nil, nil)。
func (f *redisFactory) TryLock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	if f.closed.Load() {
		return nil, ErrFactoryClosed
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	mutex, fullKey := f.createMutex(key, opts...)

	if err := mutex.TryLockContext(ctx); err != nil {
		err = wrapRedisError(err)
		if errors.Is(err, ErrLockHeld) {
			return nil, nil
		}
		return nil, err
	}

	return &redisLockHandle{mutex: mutex, key: fullKey}, nil
}

// createMutex 按选项构建 redsync.Mutex，返回 mutex 和完整 key。
func (f *redisFactory) createMutex(key string, opts ...MutexOption) (*redsync.Mutex, string) {
	options := applyMutexOptions(opts)
	fullKey := options.KeyPrefix + key

	rsOpts := []redsync.Option{
		redsync.WithExpiry(options.Expiry),
		redsync.WithDriftFactor(options.DriftFactor),
	}

	return f.rs.NewMutex(fullKey, rsOpts...), fullKey
}

// Close 关闭工厂，不关闭传入的 Redis 客户端。
func (f *redisFactory) Close(_ context.Context) error {
	f.closed.Store(true)
	return nil
}

// Health 对所有节点执行 PING。
func (f *redisFactory) Health(ctx context.Context) error {
	if f.closed.Load() {
		return ErrFactoryClosed
	}
	for _, client := range f.clients {
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Redis LockHandle 实现
// =============================================================================

type redisLockHandle struct {
	mutex *redsync.Mutex
	key   string
}

// Unlock 释放锁。工厂关闭后仍可解锁，避免锁悬挂到 TTL 过期。
func (h *redisLockHandle) Unlock(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	return handleResult(ok, err)
}

// Extend 按 Expiry 续期。锁已失去时返回 ErrNotLocked，ErrExtendFailed 保持原样。
func (h *redisLockHandle) Extend(ctx context.Context) error {
	ok, err := h.mutex.ExtendContext(ctx)
	return handleResult(ok, err)
}

func (h *redisLockHandle) Key() string {
	return h.key
}

func handleResult(ok bool, err error) error {
	if err != nil {
		wrapped := wrapRedisError(err)
		// 过期或已被他人持有，对本 handle 而言都是所有权丢失
		if errors.Is(wrapped, ErrLockExpired) || errors.Is(wrapped, ErrLockHeld) {
			return ErrNotLocked
		}
		return wrapped
	}
	if !ok {
		return ErrNotLocked
	}
	return nil
}

// wrapRedisError 将 redsync 错误转换为 xdlock 错误，保留原始错误链。
func wrapRedisError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var errTaken *redsync.ErrTaken
	if errors.As(err, &errTaken) {
		return fmt.Errorf("%w: %w", ErrLockHeld, err)
	}

	switch {
	case errors.Is(err, redsync.ErrFailed):
		return fmt.Errorf("%w: %w", ErrLockFailed, err)
	case errors.Is(err, redsync.ErrExtendFailed):
		return fmt.Errorf("%w: %w", ErrExtendFailed, err)
	case errors.Is(err, redsync.ErrLockAlreadyExpired):
		return fmt.Errorf("%w: %w", ErrLockExpired, err)
	}
	return err
}
