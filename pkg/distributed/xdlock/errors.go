package xdlock

import "errors"

// 预定义错误，使用 errors.Is 匹配。
var (
	// ErrLockHeld 锁被其他持有者占用。
	// TryLock 会把它转换为 (nil, nil)，业务代码通常只在 mock 中直接使用。
	ErrLockHeld = errors.New("xdlock: lock is held by another owner")

	// ErrLockFailed 未能在过半节点上加锁。
	ErrLockFailed = errors.New("xdlock: failed to acquire lock")

	// ErrLockExpired 锁已过期或被其他持有者抢走。
	ErrLockExpired = errors.New("xdlock: lock expired or stolen")

	// ErrExtendFailed 续期失败，锁可能仍在。
	ErrExtendFailed = errors.New("xdlock: failed to extend lock")

	// ErrNilClient 传入了 nil 客户端。
	ErrNilClient = errors.New("xdlock: client is nil")

	// ErrSessionExpired etcd Session 已过期，基于它的锁已失效。
	ErrSessionExpired = errors.New("xdlock: session expired")

	// ErrFactoryClosed 在已关闭的工厂上加锁。
	ErrFactoryClosed = errors.New("xdlock: factory is closed")

	// ErrNotLocked 锁未被当前 handle 持有。
	ErrNotLocked = errors.New("xdlock: not locked")

	// ErrEmptyKey 锁 key 为空或仅含空白。
	ErrEmptyKey = errors.New("xdlock: key must not be empty")

	// ErrNilConfig etcd 配置为空。
	ErrNilConfig = errors.New("xdlock: config is nil")

	// ErrNoEndpoints etcd 配置中没有 endpoints。
	ErrNoEndpoints = errors.New("xdlock: no endpoints configured")
)
