package xsemaphore

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Tracer 相关常量
// =============================================================================

const (
	// tracerName 追踪器名称，与 Meter scope 一致
	tracerName = "rsemaphore"
)

// Span 操作名称
const (
	spanNameAcquire  = "rsemaphore.Acquire"
	spanNameRelease  = "rsemaphore.Release"
	spanNameSanitize = "rsemaphore.Sanitize"
)

// Span 属性名称（Metrics 也复用这些常量，确保 trace 与 metrics 键名一致）
const (
	attrSemKey     = "rsemaphore.key"
	attrSemCap     = "rsemaphore.capacity"
	attrSemToken   = "rsemaphore.token"
	attrResult     = "rsemaphore.result"
	attrReleased   = "rsemaphore.released"
	attrLeaderSt   = "rsemaphore.state"
	attrToppedUp   = "rsemaphore.topped_up"
	attrGeneration = "rsemaphore.generation"
)

// =============================================================================
// Tracer 管理
// =============================================================================

// getTracer 获取 tracer 实例
// 如果配置了 TracerProvider 则使用它，否则使用全局默认
func getTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName, trace.WithInstrumentationVersion(instrumentationVersion))
}

// =============================================================================
// Span 辅助函数
// =============================================================================

// startSpan 创建新的 span
func startSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(tracerName)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// setSpanError 设置 span 错误状态
func setSpanError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// setSpanOK 设置 span 成功状态
func setSpanOK(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// endSpan 根据 err 设置状态并结束 span
func endSpan(span trace.Span, err error) {
	if err != nil {
		setSpanError(span, err)
	} else {
		setSpanOK(span)
	}
	span.End()
}

// semSpanAttributes 信号量公共 span 属性
func semSpanAttributes(key string, capacity int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(attrSemKey, key),
		attribute.Int(attrSemCap, capacity),
	}
}
