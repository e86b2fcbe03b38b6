package xsemaphore

import (
	"context"
	"log/slog"
	"time"
)

// =============================================================================
// 公共辅助函数
// =============================================================================

// waitForRetry 等待重试间隔
// 返回 nil 表示等待完成，返回 error 表示 context 被取消
func waitForRetry(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// contextWithCloseTimeout 脱离父 ctx 的取消，保留其中的日志属性与 trace 信息，
// 用于关闭阶段的清理操作
func contextWithCloseTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}

func releasedAttr(released bool) slog.Attr {
	return slog.Bool("released", released)
}
