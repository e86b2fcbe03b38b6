package xsemaphore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// 设计决策: 指标前缀与 Meter scope name 一致使用 "rsemaphore.*"，
// key 作为属性而非指标名的一部分。如需统一命名空间，应在采集端处理。
const (
	metricNameAcquireTotal      = "rsemaphore.acquire.total"
	metricNameReleaseTotal      = "rsemaphore.release.total"
	metricNameSanitizeToppedUp  = "rsemaphore.sanitize.topped_up"
	metricNameLeaderTransitions = "rsemaphore.leader.transitions"
	metricNameAcquireWait       = "rsemaphore.acquire.wait"
	metricNameReleaseDuration   = "rsemaphore.release.duration"
	metricNameQueueDepth        = "rsemaphore.queue.depth"
)

// acquireResult Acquire 结果分类，作为指标属性
type acquireResult string

const (
	acquireOK       acquireResult = "ok"
	acquireCanceled acquireResult = "canceled"
	acquireClosed   acquireResult = "closed"
	acquireError    acquireResult = "error"
)

// Metrics 信号量指标收集器。nil 接收者上的所有方法都是空操作。
type Metrics struct {
	meter             metric.Meter
	acquireTotal      metric.Int64Counter
	releaseTotal      metric.Int64Counter
	sanitizeToppedUp  metric.Int64Counter
	leaderTransitions metric.Int64Counter
	acquireWait       metric.Float64Histogram
	releaseDuration   metric.Float64Histogram
	queueDepth        metric.Int64UpDownCounter
}

// NewMetrics 创建指标收集器
// 如果 meterProvider 为 nil，返回 nil（不收集指标）
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}

	m := &Metrics{
		meter: meterProvider.Meter(tracerName,
			metric.WithInstrumentationVersion(instrumentationVersion),
		),
	}
	if err := m.initCounters(); err != nil {
		return nil, err
	}
	if err := m.initHistograms(); err != nil {
		return nil, err
	}
	return m, nil
}

// waitBuckets 等待时长直方图的桶边界（秒），覆盖从立即拿到到排队数十秒
var waitBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}

// durationBuckets 单次脚本耗时直方图的桶边界（秒）
var durationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0}

func (m *Metrics) initCounters() error {
	var err error
	if m.acquireTotal, err = m.meter.Int64Counter(metricNameAcquireTotal,
		metric.WithDescription("信号量 Acquire 次数"), metric.WithUnit("{acquire}")); err != nil {
		return err
	}
	if m.releaseTotal, err = m.meter.Int64Counter(metricNameReleaseTotal,
		metric.WithDescription("信号量 Release 次数"), metric.WithUnit("{release}")); err != nil {
		return err
	}
	if m.sanitizeToppedUp, err = m.meter.Int64Counter(metricNameSanitizeToppedUp,
		metric.WithDescription("补齐脚本新增的令牌数"), metric.WithUnit("{token}")); err != nil {
		return err
	}
	if m.leaderTransitions, err = m.meter.Int64Counter(metricNameLeaderTransitions,
		metric.WithDescription("leader 状态切换次数"), metric.WithUnit("{transition}")); err != nil {
		return err
	}
	if m.queueDepth, err = m.meter.Int64UpDownCounter(metricNameQueueDepth,
		metric.WithDescription("本地排队中的 Acquire 数"), metric.WithUnit("{waiter}")); err != nil {
		return err
	}
	return nil
}

func (m *Metrics) initHistograms() error {
	var err error
	if m.acquireWait, err = m.meter.Float64Histogram(metricNameAcquireWait,
		metric.WithDescription("Acquire 从排队到拿到令牌的耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(waitBuckets...)); err != nil {
		return err
	}
	if m.releaseDuration, err = m.meter.Float64Histogram(metricNameReleaseDuration,
		metric.WithDescription("Release 耗时（含重试）"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return err
	}
	return nil
}

// RecordAcquire 记录一次 Acquire 结果与等待时长
func (m *Metrics) RecordAcquire(ctx context.Context, key string, result acquireResult, wait time.Duration) {
	if m == nil {
		return
	}
	// 使用 context.WithoutCancel 确保即使 ctx 被取消，指标仍能记录
	metricsCtx := context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(
		attribute.String(attrSemKey, key),
		attribute.String(attrResult, string(result)),
	)
	m.acquireTotal.Add(metricsCtx, 1, attrs)
	m.acquireWait.Record(metricsCtx, wait.Seconds(), attrs)
}

// RecordRelease 记录一次 Release；released=false 表示过期或重复释放
func (m *Metrics) RecordRelease(ctx context.Context, key string, released bool, d time.Duration) {
	if m == nil {
		return
	}
	metricsCtx := context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(
		attribute.String(attrSemKey, key),
		attribute.Bool(attrReleased, released),
	)
	m.releaseTotal.Add(metricsCtx, 1, attrs)
	m.releaseDuration.Record(metricsCtx, d.Seconds(), attrs)
}

// RecordSanitize 记录补齐新增的令牌数，0 不记录
func (m *Metrics) RecordSanitize(ctx context.Context, key string, toppedUp int64) {
	if m == nil || toppedUp <= 0 {
		return
	}
	m.sanitizeToppedUp.Add(context.WithoutCancel(ctx), toppedUp,
		metric.WithAttributes(attribute.String(attrSemKey, key)))
}

// RecordLeaderTransition 记录 leader 状态切换
func (m *Metrics) RecordLeaderTransition(ctx context.Context, key string, state leaderState) {
	if m == nil {
		return
	}
	m.leaderTransitions.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String(attrSemKey, key),
		attribute.String(attrLeaderSt, state.String()),
	))
}

// AddQueueDepth 调整排队深度
func (m *Metrics) AddQueueDepth(ctx context.Context, key string, delta int64) {
	if m == nil {
		return
	}
	m.queueDepth.Add(context.WithoutCancel(ctx), delta,
		metric.WithAttributes(attribute.String(attrSemKey, key)))
}
