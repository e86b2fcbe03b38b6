package xretry

import (
	"context"
	"math"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// Retryer 组合 RetryPolicy 与 BackoffPolicy 的重试执行器，底层为 retry-go
type Retryer struct {
	retryPolicy   RetryPolicy
	backoffPolicy BackoffPolicy
	onRetry       func(attempt int, err error)
}

// RetryerOption 执行器配置
type RetryerOption func(*Retryer)

// WithRetryPolicy nil 被忽略
func WithRetryPolicy(p RetryPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.retryPolicy = p
		}
	}
}

// WithBackoffPolicy nil 被忽略
func WithBackoffPolicy(p BackoffPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.backoffPolicy = p
		}
	}
}

// WithOnRetry 每次失败且将要重试前回调，attempt 从 1 开始
func WithOnRetry(f func(attempt int, err error)) RetryerOption {
	return func(r *Retryer) {
		if f != nil {
			r.onRetry = f
		}
	}
}

// NewRetryer 默认 FixedRetry(3) + ExponentialBackoff
func NewRetryer(opts ...RetryerOption) *Retryer {
	r := &Retryer{
		retryPolicy:   NewFixedRetry(3),
		backoffPolicy: NewExponentialBackoff(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do 执行 fn 直到成功、策略放弃或 ctx 结束，返回最后一次的错误
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil {
		return ErrNilRetryer
	}
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	return retry.New(r.options(ctx)...).Do(func() error {
		return fn(ctx)
	})
}

// options 每次 Do 重建，attempt 计数随闭包隔离
func (r *Retryer) options(ctx context.Context) []retry.Option {
	policy, backoff := r.retryPolicy, r.backoffPolicy
	if policy == nil {
		policy = NewFixedRetry(3)
	}
	if backoff == nil {
		backoff = NewExponentialBackoff()
	}

	attempt := 0
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(max(policy.MaxAttempts(), 1))),
		retry.RetryIf(func(err error) bool {
			attempt++
			if !retry.IsRecoverable(err) {
				return false
			}
			return policy.ShouldRetry(ctx, attempt, err)
		}),
		// retry-go 的 n 从 1 开始，与 NextDelay 一致
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return backoff.NextDelay(uintToInt(n))
		}),
		retry.LastErrorOnly(true),
	}
	if r.onRetry != nil {
		// retry-go 的 OnRetry 从 0 开始计数
		opts = append(opts, retry.OnRetry(func(n uint, err error) {
			r.onRetry(uintToInt(n)+1, err)
		}))
	}
	return opts
}

func uintToInt(n uint) int {
	if n > uint(math.MaxInt) {
		return math.MaxInt
	}
	return int(n)
}
