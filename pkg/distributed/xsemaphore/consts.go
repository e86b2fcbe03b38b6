package xsemaphore

import "time"

// =============================================================================
// 默认配置常量
// =============================================================================

const (
	// DefaultKeyPrefix 默认 Redis 键前缀。
	// 与其他语言实现共享同一 Redis 时必须保持一致。
	DefaultKeyPrefix = "rsemaphore:"

	// DefaultLeaseTTL leader 租约时长 T。
	// leader 每 T/2 补齐一次令牌并续期，竞争失败或出错后等待 T 再竞争。
	DefaultLeaseTTL = 2 * time.Second

	// DefaultBlockTimeout 单次 BLMOVE 的服务端阻塞窗口。
	// go-redis 以秒为单位下发阻塞超时，低于 1s 的值会被提升到 1s。
	DefaultBlockTimeout = time.Second

	// DefaultCloseTimeout Close 释放 leader 租约的超时时间。
	DefaultCloseTimeout = 5 * time.Second

	// DefaultReleaseAttempts Release 遇到传输错误时的最大尝试次数（含首次）。
	DefaultReleaseAttempts = 3

	// MaxKeyLength 信号量 key 的最大长度。
	MaxKeyLength = 256
)

// =============================================================================
// Redis 键命名
// =============================================================================

const (
	segmentLeaderLock = "leader-locks:"
	segmentAvailable  = "available:"
	segmentProcessing = "processing:"

	// tokenLabelPrefix 令牌名前缀，完整格式 task_<generation>_<i>
	tokenLabelPrefix = "task_"
)

// =============================================================================
// 内部常量
// =============================================================================

const (
	// minBlockTimeout BLMOVE 阻塞窗口下限
	minBlockTimeout = time.Second

	// releaseRetryInitialDelay Release 重试首个退避间隔
	releaseRetryInitialDelay = 50 * time.Millisecond

	// releaseRetryMaxDelay Release 重试退避上限
	releaseRetryMaxDelay = time.Second

	// instrumentationVersion 仪表化版本号（Metrics + Trace 共享）
	instrumentationVersion = "1.0.0"
)
