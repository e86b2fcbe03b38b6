package xdlock

import (
	"strings"
	"time"
)

// validateKey 验证锁 key 是否有效。
func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}

// =============================================================================
// etcd 工厂选项
// =============================================================================

// EtcdFactoryOption 定义 etcd 工厂的配置选项。
type EtcdFactoryOption func(*etcdFactoryOptions)

type etcdFactoryOptions struct {
	TTL int // Session TTL（秒），默认 60
}

func defaultEtcdFactoryOptions() *etcdFactoryOptions {
	return &etcdFactoryOptions{TTL: 60}
}

// WithEtcdTTL 设置 Session TTL，向上取整到秒，最少 1 秒。非正值忽略。
//
// Session 失联超过 TTL 后，基于它的所有锁自动失效。
// etcd 服务端会把过小的 TTL 提升到它的最小值（默认配置下为 2 秒）。
func WithEtcdTTL(ttl time.Duration) EtcdFactoryOption {
	return func(o *etcdFactoryOptions) {
		if ttl > 0 {
			o.TTL = int((ttl + time.Second - 1) / time.Second)
		}
	}
}

// =============================================================================
// Mutex 选项
// =============================================================================

// MutexOption 定义单次加锁的配置选项。
type MutexOption func(*mutexOptions)

type mutexOptions struct {
	KeyPrefix string // 通用，默认 "lock:"

	// Redis 专用，etcd 的 TTL 由 Session 决定
	Expiry      time.Duration // 默认 8s
	DriftFactor float64       // 默认 0.01
}

func defaultMutexOptions() *mutexOptions {
	return &mutexOptions{
		KeyPrefix:   "lock:",
		Expiry:      8 * time.Second,
		DriftFactor: 0.01,
	}
}

func applyMutexOptions(opts []MutexOption) *mutexOptions {
	options := defaultMutexOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithKeyPrefix 设置锁 key 前缀，最终 key = prefix + key。
func WithKeyPrefix(prefix string) MutexOption {
	return func(o *mutexOptions) {
		o.KeyPrefix = prefix
	}
}

// WithExpiry 设置锁的 TTL。非正值忽略。
func WithExpiry(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		if d > 0 {
			o.Expiry = d
		}
	}
}

// WithDriftFactor 设置 Redlock 时钟漂移因子，必须 > 0。
func WithDriftFactor(f float64) MutexOption {
	return func(o *mutexOptions) {
		if f > 0 {
			o.DriftFactor = f
		}
	}
}
