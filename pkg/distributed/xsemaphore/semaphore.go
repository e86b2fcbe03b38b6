package xsemaphore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/rsemaphore/pkg/distributed/xdlock"
	"github.com/omeyang/rsemaphore/pkg/observability/xlog"
	"github.com/omeyang/rsemaphore/pkg/resilience/xretry"
)

// =============================================================================
// 公开类型
// =============================================================================

// Token 一个并发名额。Acquire 返回后由调用方持有，Release 时原样交回。
type Token string

// ReleaseResult Release 的结果
type ReleaseResult struct {
	// Released 令牌确实从 processing 移回了 available。
	// false 表示过期、重复或未知令牌，此次 Release 未改变任何状态。
	Released bool
}

// Stats 某一时刻的名额池快照。
// Available 与 Processing 来自两次独立的 LLEN，并发修改下两者之和可能短暂偏离容量。
type Stats struct {
	Key              string   `json:"key"`
	Capacity         int      `json:"capacity"`
	Available        int      `json:"available"`
	Processing       int      `json:"processing"`
	AvailableTokens  []string `json:"available_tokens,omitempty"`  // 仅 QueryWithTokens 时填充
	ProcessingTokens []string `json:"processing_tokens,omitempty"` // 仅 QueryWithTokens 时填充
	Leader           bool     `json:"leader"`                      // 本实例当前是否持有 leader 租约
	Waiting          int      `json:"waiting"`                     // 本实例本地排队数
}

// =============================================================================
// Semaphore
// =============================================================================

// Semaphore 基于 Redis 列表令牌的分布式计数信号量。
//
// 同一 key 的所有实例共享 capacity 个令牌。每个实例后台运行一个 leader 维护循环，
// 竞争到租约的实例负责补齐令牌；Acquire 在本地 FIFO 排队后经阻塞连接领取令牌。
//
// 所有实例必须使用相同的 capacity。
type Semaphore struct {
	key      string
	capacity int
	keys     keySet
	conns    Connections
	opts     *options

	locker     xdlock.Factory
	ownsLocker bool

	logger     xlog.Logger
	tracer     trace.Tracer
	metrics    *Metrics
	releaser   *xretry.Retryer
	generation GenerationFunc

	queue  *admissionQueue
	leader atomic.Bool
	closed atomic.Bool

	// logCtx 携带 key 日志属性，后台协程与清理操作都从它派生
	logCtx     context.Context
	loopCtx    context.Context
	cancelLoop context.CancelFunc
	wg         sync.WaitGroup

	closeOnce sync.Once
	closeDone chan struct{}
}

// New 创建信号量并启动 leader 维护循环。
//
// 未设置 WithLocker 时，要求 conns.Command 是 redis.UniversalClient，
// 此时用它创建 Redis 锁工厂，Close 时一并关闭。
// 两条连接的生命周期由调用方管理。
func New(key string, capacity int, conns Connections, opts ...Option) (*Semaphore, error) {
	if err := conns.validate(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidCapacity, capacity)
	}

	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	locker, owns, err := resolveLocker(o.locker, conns.Command)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(o.meterProvider)
	if err != nil {
		if owns {
			_ = locker.Close(context.Background())
		}
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	s := &Semaphore{
		key:        key,
		capacity:   capacity,
		keys:       newKeySet(o.keyPrefix, key),
		conns:      conns,
		opts:       o,
		locker:     locker,
		ownsLocker: owns,
		logger:     o.effectiveLogger().With(xlog.Component("xsemaphore")),
		tracer:     getTracer(o.tracerProvider),
		metrics:    metrics,
		generation: o.effectiveGeneration(),
		closeDone:  make(chan struct{}),
	}
	s.releaser = s.newReleaseRetryer()
	s.queue = newAdmissionQueue(s.spawnDrain, func(delta int64) {
		s.metrics.AddQueueDepth(s.logCtx, s.key, delta)
	})
	s.logCtx = xlog.ContextWithAttrs(context.Background(), AttrKey(key))
	s.loopCtx, s.cancelLoop = context.WithCancel(s.logCtx)

	if !o.observer {
		s.wg.Add(1)
		go s.runLeader(s.loopCtx)
	}

	s.logger.Info(s.logCtx, "semaphore started", AttrCapacity(capacity), slog.Bool("observer", o.observer))
	return s, nil
}

// resolveLocker 选择 leader 租约使用的锁工厂
func resolveLocker(f xdlock.Factory, cmd CommandConn) (xdlock.Factory, bool, error) {
	if f != nil {
		return f, false, nil
	}
	client, ok := cmd.(redis.UniversalClient)
	if !ok {
		return nil, false, ErrNilLocker
	}
	rf, err := xdlock.NewRedisFactory(client)
	if err != nil {
		return nil, false, fmt.Errorf("create redis locker: %w", err)
	}
	return rf, true, nil
}

// Key 返回信号量 key
func (s *Semaphore) Key() string { return s.key }

// Capacity 返回配置的容量
func (s *Semaphore) Capacity() int { return s.capacity }

// IsLeader 本实例当前是否持有 leader 租约
func (s *Semaphore) IsLeader() bool { return s.leader.Load() }

// =============================================================================
// Acquire / Release
// =============================================================================

// Acquire 排队领取一个令牌，阻塞直到拿到令牌、ctx 结束或信号量关闭。
//
// 同一实例内按调用顺序 FIFO 领取。ctx 结束时返回 ctx.Err()，
// 若排队协程恰好已为本调用领到令牌，令牌会被放回。
func (s *Semaphore) Acquire(ctx context.Context) (token Token, err error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	if s.closed.Load() {
		return "", ErrSemaphoreClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	start := time.Now()
	ctx, span := startSpan(ctx, s.tracer, spanNameAcquire, semSpanAttributes(s.key, s.capacity)...)
	defer func() {
		if token != "" {
			span.SetAttributes(attribute.String(attrSemToken, string(token)))
		}
		endSpan(span, err)
		s.metrics.RecordAcquire(ctx, s.key, classifyAcquire(err), time.Since(start))
	}()

	w, err := s.queue.enqueue()
	if err != nil {
		return "", err
	}

	select {
	case o := <-w.ch:
		return o.token, o.err
	case <-ctx.Done():
		if s.queue.remove(w) {
			return "", ctx.Err()
		}
		// 结果已投递，丢弃并归还令牌
		if o := <-w.ch; o.err == nil {
			s.returnToken(o.token)
		}
		return "", ctx.Err()
	}
}

// classifyAcquire Acquire 结果分类
func classifyAcquire(err error) acquireResult {
	switch {
	case err == nil:
		return acquireOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return acquireCanceled
	case errors.Is(err, ErrSemaphoreClosed):
		return acquireClosed
	default:
		return acquireError
	}
}

// Release 交回令牌。
//
// 令牌不在 processing 中（过期、重复释放、其他 key 的令牌）时什么都不做，
// 返回 Released=false 且无错误。传输错误按 WithReleaseRetry 重试。
//
// 信号量关闭后仍可 Release，已借出的令牌应当归还。
func (s *Semaphore) Release(ctx context.Context, token Token) (result ReleaseResult, err error) {
	if ctx == nil {
		return ReleaseResult{}, ErrNilContext
	}

	start := time.Now()
	ctx, span := startSpan(ctx, s.tracer, spanNameRelease,
		append(semSpanAttributes(s.key, s.capacity), attribute.String(attrSemToken, string(token)))...)
	defer func() {
		span.SetAttributes(attribute.Bool(attrReleased, result.Released))
		endSpan(span, err)
	}()

	released, err := s.releaseToken(ctx, token)
	if err != nil {
		s.logger.Warn(ctx, "release failed", AttrKey(s.key), AttrToken(token), xlog.Err(err))
		return ReleaseResult{}, err
	}
	s.metrics.RecordRelease(ctx, s.key, released, time.Since(start))
	if !released {
		s.logger.Debug(ctx, "release ignored, token not in processing", AttrKey(s.key), AttrToken(token))
	}
	return ReleaseResult{Released: released}, nil
}

// =============================================================================
// Query / Health
// =============================================================================

// Query 读取名额池当前状态
func (s *Semaphore) Query(ctx context.Context, opts ...QueryOption) (*Stats, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	cfg := applyQueryOptions(opts)
	cmd := s.conns.Command

	avail, err := cmd.LLen(ctx, s.keys.available).Result()
	if err != nil {
		return nil, fmt.Errorf("query available: %w", storeError(err))
	}
	proc, err := cmd.LLen(ctx, s.keys.processing).Result()
	if err != nil {
		return nil, fmt.Errorf("query processing: %w", storeError(err))
	}

	stats := &Stats{
		Key:        s.key,
		Capacity:   s.capacity,
		Available:  int(avail),
		Processing: int(proc),
		Leader:     s.IsLeader(),
		Waiting:    s.queue.len(),
	}
	if cfg.withTokens {
		if stats.AvailableTokens, err = cmd.LRange(ctx, s.keys.available, 0, -1).Result(); err != nil {
			return nil, fmt.Errorf("list available: %w", storeError(err))
		}
		if stats.ProcessingTokens, err = cmd.LRange(ctx, s.keys.processing, 0, -1).Result(); err != nil {
			return nil, fmt.Errorf("list processing: %w", storeError(err))
		}
	}
	return stats, nil
}

// Health 检查命令连接与锁服务
func (s *Semaphore) Health(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	if s.closed.Load() {
		return ErrSemaphoreClosed
	}
	if err := s.conns.Command.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", storeError(err))
	}
	if err := s.locker.Health(ctx); err != nil {
		return fmt.Errorf("locker health: %w", err)
	}
	return nil
}

// =============================================================================
// Close
// =============================================================================

// Close 停止 leader 维护循环与排队协程，排队中的 Acquire 以 ErrSemaphoreClosed 返回。
//
// 持有 leader 租约时会主动释放；ctx 结束前后台协程未退出则返回 ctx.Err()，
// 协程仍会在后台完成退出。重复调用只执行一次清理。
func (s *Semaphore) Close(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.queue.close()
		s.cancelLoop()
		go func() {
			s.wg.Wait()
			if s.ownsLocker {
				lctx, cancel := contextWithCloseTimeout(s.logCtx, s.opts.closeTimeout)
				if err := s.locker.Close(lctx); err != nil {
					s.logger.Warn(lctx, "close locker failed", xlog.Err(err))
				}
				cancel()
			}
			s.logger.Info(s.logCtx, "semaphore closed")
			close(s.closeDone)
		}()
	})

	select {
	case <-s.closeDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
