package xretry

import (
	"context"
	"time"
)

// RetryPolicy 决定一次失败后是否继续尝试
type RetryPolicy interface {
	// MaxAttempts 最大尝试次数（包含首次尝试）
	MaxAttempts() int

	// ShouldRetry 在第 attempt 次（从 1 开始）失败后调用
	ShouldRetry(ctx context.Context, attempt int, err error) bool
}

// BackoffPolicy 计算第 attempt 次（从 1 开始）失败后的等待时间
type BackoffPolicy interface {
	NextDelay(attempt int) time.Duration
}
