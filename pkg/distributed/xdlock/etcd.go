package xdlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// =============================================================================
// etcd 工厂实现
// =============================================================================

type etcdFactory struct {
	client *clientv3.Client
	ttl    int
	closed atomic.Bool

	mu      sync.Mutex
	session *concurrency.Session
}

// NewEtcdFactory 创建 etcd 锁工厂。
// 工厂持有一个 Session，所有锁共享它的 Lease。
// Session 过期后，下一次 TryLock 会创建新的 Session。
func NewEtcdFactory(client *clientv3.Client, opts ...EtcdFactoryOption) (Factory, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	options := defaultEtcdFactoryOptions()
	for _, opt := range opts {
		opt(options)
	}

	f := &etcdFactory{client: client, ttl: options.TTL}
	session, err := f.newSession()
	if err != nil {
		return nil, err
	}
	f.session = session
	return f, nil
}

func (f *etcdFactory) newSession() (*concurrency.Session, error) {
	session, err := concurrency.NewSession(f.client, concurrency.WithTTL(f.ttl))
	if err != nil {
		return nil, wrapEtcdError(err)
	}
	return session, nil
}

// currentSession 返回可用的 Session，旧 Session 已过期时重建。
// 旧 Session 上取得的 handle 不受影响，它们的 Extend 仍返回 ErrSessionExpired。
func (f *etcdFactory) currentSession() (*concurrency.Session, error) {
	if f.closed.Load() {
		return nil, ErrFactoryClosed
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if !sessionDone(f.session) {
		return f.session, nil
	}
	session, err := f.newSession()
	if err != nil {
		return nil, fmt.Errorf("%w: renew: %w", ErrSessionExpired, err)
	}
	f.session = session
	return session, nil
}

// TryLock 只尝试一次，锁被占用时返回 (nil, nil)。
// etcd 后端只使用 MutexOption 中的 KeyPrefix，TTL 由 Session 决定。
func (f *etcdFactory) TryLock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	session, err := f.currentSession()
	if err != nil {
		return nil, err
	}

	fullKey := applyMutexOptions(opts).KeyPrefix + key
	mutex := concurrency.NewMutex(session, fullKey)

	if err := mutex.TryLock(ctx); err != nil {
		err = wrapEtcdError(err)
		if errors.Is(err, ErrLockHeld) {
			return nil, nil
		}
		return nil, err
	}

	return &etcdLockHandle{session: session, mutex: mutex, key: fullKey}, nil
}

// Close 关闭 Session，撤销其 Lease，基于它的锁随之释放。
func (f *etcdFactory) Close(_ context.Context) error {
	if f.closed.Swap(true) {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.Close()
}

// Health 检查 Session 状态并执行一次轻量读取。
func (f *etcdFactory) Health(ctx context.Context) error {
	if _, err := f.currentSession(); err != nil {
		return err
	}
	_, err := f.client.Get(ctx, "health-check-key", clientv3.WithLimit(1), clientv3.WithCountOnly())
	return wrapEtcdError(err)
}

func sessionDone(s *concurrency.Session) bool {
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}

// =============================================================================
// etcd LockHandle 实现
// =============================================================================

type etcdLockHandle struct {
	session *concurrency.Session
	mutex   *concurrency.Mutex
	key     string
}

// Unlock 释放锁。Session 已过期时锁已随 Lease 失效，返回 ErrNotLocked。
func (h *etcdLockHandle) Unlock(ctx context.Context) error {
	if sessionDone(h.session) {
		return fmt.Errorf("%w: %w", ErrNotLocked, ErrSessionExpired)
	}
	return wrapEtcdError(h.mutex.Unlock(ctx))
}

// Extend 只检查 Session，Lease 由 Session 自动续期。
func (h *etcdLockHandle) Extend(_ context.Context) error {
	if sessionDone(h.session) {
		return ErrSessionExpired
	}
	return nil
}

func (h *etcdLockHandle) Key() string {
	return h.key
}

// wrapEtcdError 将 etcd 错误转换为 xdlock 错误。
func wrapEtcdError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, concurrency.ErrLocked):
		return ErrLockHeld
	case errors.Is(err, concurrency.ErrSessionExpired),
		errors.Is(err, rpctypes.ErrLeaseNotFound):
		return ErrSessionExpired
	case errors.Is(err, concurrency.ErrLockReleased):
		return ErrNotLocked
	}
	return err
}
