package xsemaphore

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/rsemaphore/pkg/distributed/xdlock"
	"github.com/omeyang/rsemaphore/pkg/observability/xlog"
	"github.com/omeyang/rsemaphore/pkg/resilience/xretry"
	"github.com/omeyang/rsemaphore/pkg/util/xid"
)

// =============================================================================
// 代际 ID 生成
// =============================================================================

// GenerationFunc 代际 ID 生成函数。
// 每次补齐生成一个新代际，本批令牌名为 task_<generation>_<i>。
type GenerationFunc func(ctx context.Context) (string, error)

// =============================================================================
// 信号量配置选项
// =============================================================================

// options 信号量内部配置
type options struct {
	keyPrefix      string
	leaseTTL       time.Duration
	blockTimeout   time.Duration
	closeTimeout   time.Duration
	locker         xdlock.Factory
	leaderBackoff  xretry.BackoffPolicy
	releaseRetries int
	releaseBackoff xretry.BackoffPolicy
	generation     GenerationFunc
	logger         xlog.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	observer       bool

	// sanitizeHook 测试用：每次补齐脚本执行前调用
	sanitizeHook func()
}

// Option 信号量配置选项函数
type Option func(*options)

// defaultOptions 返回默认配置
func defaultOptions() *options {
	return &options{
		keyPrefix:      DefaultKeyPrefix,
		leaseTTL:       DefaultLeaseTTL,
		blockTimeout:   DefaultBlockTimeout,
		closeTimeout:   DefaultCloseTimeout,
		releaseRetries: DefaultReleaseAttempts,
	}
}

// WithKeyPrefix 设置 Redis 键前缀，默认 "rsemaphore:"。
//
// prefix 不能包含 `{` 或 `}`；集群模式的 hash tag 应写在 key 中。
// 空值表示不修改默认前缀。
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithLeaseTTL 设置 leader 租约时长 T，默认 2s。
// 补齐与续期间隔为 T/2，竞争失败后等待 T。
func WithLeaseTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.leaseTTL = ttl
	}
}

// WithBlockTimeout 设置单次 BLMOVE 阻塞窗口，默认 1s，最小 1s。
// 窗口越短，取消和关闭响应越快，Redis 往返越多。
func WithBlockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.blockTimeout = d
	}
}

// WithCloseTimeout 设置 Close 释放租约的超时时间，默认 5s。
func WithCloseTimeout(d time.Duration) Option {
	return func(o *options) {
		o.closeTimeout = d
	}
}

// WithLocker 设置 leader 租约使用的分布式锁工厂。
//
// 不设置时，若命令连接是 redis.UniversalClient，New 会自动创建
// xdlock.NewRedisFactory 并在 Close 时关闭它；外部传入的工厂由调用方关闭。
func WithLocker(f xdlock.Factory) Option {
	return func(o *options) {
		o.locker = f
	}
}

// WithLeaderBackoff 设置竞争失败或出错后的等待策略，默认 FixedBackoff(T)。
func WithLeaderBackoff(p xretry.BackoffPolicy) Option {
	return func(o *options) {
		o.leaderBackoff = p
	}
}

// WithReleaseRetry 设置 Release 遇到传输错误时的尝试次数（含首次）与退避策略。
// backoff 为 nil 时使用 50ms 起步、上限 1s 的指数退避。
func WithReleaseRetry(attempts int, backoff xretry.BackoffPolicy) Option {
	return func(o *options) {
		o.releaseRetries = attempts
		o.releaseBackoff = backoff
	}
}

// WithGenerationFunc 设置代际 ID 生成函数，默认 xid.NewStringWithRetry。
func WithGenerationFunc(fn GenerationFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.generation = fn
		}
	}
}

// WithLogger 设置日志记录器，默认 xlog.Default()。
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeterProvider 设置 OpenTelemetry MeterProvider。
// 不设置时不收集指标。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithTracerProvider 设置 OpenTelemetry TracerProvider。
// 不设置时使用全局 TracerProvider（otel.GetTracerProvider()）。
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithObserver 不参与 leader 竞选，也不执行补齐。
//
// 用于只查询或释放的工具进程：这类进程的容量参数可能与集群不一致，
// 参与补齐会把池扩大到错误的容量。Acquire 仍可用，但依赖其他实例补齐名额。
func WithObserver() Option {
	return func(o *options) {
		o.observer = true
	}
}

// withSanitizeHook 测试用：注入补齐前回调
func withSanitizeHook(fn func()) Option {
	return func(o *options) {
		o.sanitizeHook = fn
	}
}

// validate 验证配置
func (o *options) validate() error {
	if err := validateKeyPrefix(o.keyPrefix); err != nil {
		return err
	}
	if o.leaseTTL <= 0 {
		return fmt.Errorf("%w: lease ttl must be positive, got %s", ErrInvalidOption, o.leaseTTL)
	}
	if o.blockTimeout < 0 {
		return fmt.Errorf("%w: block timeout cannot be negative, got %s", ErrInvalidOption, o.blockTimeout)
	}
	if o.closeTimeout <= 0 {
		return fmt.Errorf("%w: close timeout must be positive, got %s", ErrInvalidOption, o.closeTimeout)
	}
	if o.releaseRetries <= 0 {
		return fmt.Errorf("%w: release attempts must be positive, got %d", ErrInvalidOption, o.releaseRetries)
	}
	return nil
}

// effectiveBlockTimeout go-redis 按秒下发阻塞超时，0 表示永久阻塞，这里统一抬到下限
func (o *options) effectiveBlockTimeout() time.Duration {
	if o.blockTimeout < minBlockTimeout {
		return minBlockTimeout
	}
	return o.blockTimeout
}

// effectiveLeaderBackoff 返回 leader 退避策略
func (o *options) effectiveLeaderBackoff() xretry.BackoffPolicy {
	if o.leaderBackoff != nil {
		return o.leaderBackoff
	}
	return xretry.NewFixedBackoff(o.leaseTTL)
}

// effectiveReleaseBackoff 返回 Release 重试退避策略
func (o *options) effectiveReleaseBackoff() xretry.BackoffPolicy {
	if o.releaseBackoff != nil {
		return o.releaseBackoff
	}
	return xretry.NewExponentialBackoff(
		xretry.WithInitialDelay(releaseRetryInitialDelay),
		xretry.WithMaxDelay(releaseRetryMaxDelay),
	)
}

// effectiveGeneration 返回代际 ID 生成函数
func (o *options) effectiveGeneration() GenerationFunc {
	if o.generation != nil {
		return o.generation
	}
	return xid.NewStringWithRetry
}

// effectiveLogger 返回日志记录器
func (o *options) effectiveLogger() xlog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return xlog.Default()
}

// =============================================================================
// 查询配置选项
// =============================================================================

// queryOptions 查询的内部配置
type queryOptions struct {
	withTokens bool
}

// QueryOption 查询的配置选项函数
type QueryOption func(*queryOptions)

// QueryWithTokens 查询时同时返回两个列表中的令牌名（LRANGE 0 -1）。
// 容量较大时开销随令牌数线性增长。
func QueryWithTokens() QueryOption {
	return func(o *queryOptions) {
		o.withTokens = true
	}
}

// applyQueryOptions 应用查询选项
func applyQueryOptions(opts []QueryOption) *queryOptions {
	cfg := &queryOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}
