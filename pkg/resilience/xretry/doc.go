// Package xretry 提供重试策略、退避策略以及基于 avast/retry-go/v5 的执行器。
//
//   - [RetryPolicy] 决定是否继续尝试，内置 [FixedRetryPolicy]
//   - [BackoffPolicy] 决定等待多久，内置 [FixedBackoff]、[ExponentialBackoff]、[NoBackoff]
//
// [Retryer] 组合两者：
//
//	retryer := xretry.NewRetryer(
//	    xretry.WithRetryPolicy(xretry.NewFixedRetry(3)),
//	    xretry.WithBackoffPolicy(xretry.NewExponentialBackoff()),
//	)
//	err := retryer.Do(ctx, func(ctx context.Context) error {
//	    return release(ctx)
//	})
//
// 用 [NewPermanentError] 包装的错误立即终止重试，Do 返回该包装错误。
//
// BackoffPolicy 也可以脱离 Retryer 单独使用，例如 xsemaphore 用它
// 控制 leader 选举失败后的等待间隔。
package xretry
