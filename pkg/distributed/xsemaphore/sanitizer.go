package xsemaphore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// 令牌补齐
// =============================================================================

// sanitize 执行一次令牌补齐，返回新增令牌数。
//
// 补齐脚本在 Redis 内原子执行：deficit = capacity - (LLEN available + LLEN processing)，
// deficit > 0 时向 available 追加 deficit 个 task_<generation>_<i> 令牌。
// 同一代际内令牌名互不相同；不同代际的 generation 互不相同。
//
// 只应由持有 leader 租约的协程调用。
func (s *Semaphore) sanitize(ctx context.Context) (n int64, err error) {
	ctx, span := startSpan(ctx, s.tracer, spanNameSanitize, semSpanAttributes(s.key, s.capacity)...)
	defer func() { endSpan(span, err) }()

	gen, err := s.generation(ctx)
	if err != nil {
		return 0, fmt.Errorf("generate token generation: %w", err)
	}
	span.SetAttributes(attribute.String(attrGeneration, gen))

	if s.opts.sanitizeHook != nil {
		s.opts.sanitizeHook()
	}

	n, err = runSanitize(ctx, s.conns.Command, s.keys, s.capacity, tokenLabelPrefix+gen)
	if err != nil {
		return 0, fmt.Errorf("sanitize %s: %w", s.key, err)
	}
	span.SetAttributes(attribute.Int64(attrToppedUp, n))

	if n > 0 {
		s.metrics.RecordSanitize(ctx, s.key, n)
		s.logger.Debug(ctx, "tokens topped up",
			AttrDeficit(n), AttrGeneration(gen), AttrCapacity(s.capacity))
	}
	return n, nil
}
