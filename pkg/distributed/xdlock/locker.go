package xdlock

import "context"

// =============================================================================
// LockHandle
// =============================================================================

// LockHandle 表示一次成功的锁获取。
//
// 每次 TryLock/Lock 成功都会返回新的 handle，内部封装唯一的锁值，
// 只有持有该 handle 的一方可以续期或释放，不同获取之间互不干扰。
type LockHandle interface {
	// Unlock 释放锁。
	// 返回 [ErrNotLocked] 表示锁已过期或已被其他持有者覆盖。
	Unlock(ctx context.Context) error

	// Extend 续期锁。
	//
	// Redis 后端：按创建时的 Expiry 重置 TTL。
	// etcd 后端：只检查 Session 是否仍然有效。
	//
	// 返回值：
	//   - nil: 锁仍由本 handle 持有
	//   - [ErrNotLocked]: 所有权已丢失
	//   - [ErrExtendFailed]: 续期操作失败（锁可能仍在）
	//   - [ErrSessionExpired]: etcd Session 已过期，租约随之失效
	Extend(ctx context.Context) error

	// Key 返回锁的完整 key（含前缀）。
	Key() string
}

// Factory 定义锁工厂接口。
//
//go:generate mockgen -destination=xdlockmock/mock_locker.go -package=xdlockmock github.com/omeyang/rsemaphore/pkg/distributed/xdlock Factory,LockHandle
type Factory interface {
	// TryLock 非阻塞式获取锁，只尝试一次。
	//
	// 成功返回 LockHandle；锁被占用返回 (nil, nil)，这是正常的竞争结果。
	// 只有锁服务本身异常（如 Redis 不可达）才返回 error。
	TryLock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error)

	// Close 关闭工厂，之后不能再创建新锁。已持有的 handle 仍可 Unlock。
	// 不会关闭调用方传入的客户端。
	Close(ctx context.Context) error

	// Health 检查底层连接。
	Health(ctx context.Context) error
}
