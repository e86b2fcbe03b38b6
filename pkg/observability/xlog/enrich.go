package xlog

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// ErrNilHandler 当 NewEnrichHandler 的 base handler 为 nil 时返回
var ErrNilHandler = errors.New("xlog: base handler is nil")

// =============================================================================
// Context 属性
// =============================================================================

type ctxAttrsKey struct{}

// ContextWithAttrs 返回携带日志属性的 context
//
// 经 EnrichHandler 输出的每条日志都会附带这些属性。
// 多次调用会追加，父 context 的属性保持不变。
//
//	ctx = xlog.ContextWithAttrs(ctx, slog.String("semaphore_key", "jobs"))
//	logger.Info(ctx, "leader elected") // 自动带上 semaphore_key
func ContextWithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(attrs) == 0 {
		return ctx
	}
	prev := AttrsFromContext(ctx)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, ctxAttrsKey{}, merged)
}

// AttrsFromContext 返回 ContextWithAttrs 注入的属性，返回值不可修改
func AttrsFromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(ctxAttrsKey{}).([]slog.Attr)
	return attrs
}

// =============================================================================
// EnrichHandler
// =============================================================================

// EnrichHandler 从 context 提取追踪信息和属性并注入日志
//
// 装饰模式，包装底层 slog.Handler，在 Handle() 时添加：
//   - trace_id, span_id：来自有效的 OpenTelemetry span 上下文
//   - ContextWithAttrs 注入的属性
//
// context 中缺少这些信息时原样输出。
//
// 设计决策: 调用 WithGroup 后 enrich 属性会被归入 group 下，
// 这是 slog handler 架构的限制。
type EnrichHandler struct {
	base slog.Handler
}

// NewEnrichHandler 创建 EnrichHandler
func NewEnrichHandler(base slog.Handler) (*EnrichHandler, error) {
	if base == nil {
		return nil, ErrNilHandler
	}
	return &EnrichHandler{base: base}, nil
}

// Enabled 委托给底层 handler
func (h *EnrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle 注入 context 信息后交给底层 handler。
// 根据 slog 契约，修改前必须 Clone record。
func (h *EnrichHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx == nil {
		return h.base.Handle(ctx, r)
	}

	var buf [2]slog.Attr
	traceAttrs := buf[:0]
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		traceAttrs = append(traceAttrs,
			slog.String(KeyTraceID, sc.TraceID().String()),
			slog.String(KeySpanID, sc.SpanID().String()),
		)
	}
	ctxAttrs := AttrsFromContext(ctx)

	if len(traceAttrs) == 0 && len(ctxAttrs) == 0 {
		return h.base.Handle(ctx, r)
	}
	r = r.Clone()
	r.AddAttrs(traceAttrs...)
	r.AddAttrs(ctxAttrs...)
	return h.base.Handle(ctx, r)
}

// WithAttrs 返回带额外属性的新 handler
func (h *EnrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EnrichHandler{base: h.base.WithAttrs(attrs)}
}

// WithGroup 返回带分组的新 handler
func (h *EnrichHandler) WithGroup(name string) slog.Handler {
	return &EnrichHandler{base: h.base.WithGroup(name)}
}
