// Package xrun 基于 errgroup 管理一组协同退出的 goroutine。
//
// 任一函数返回错误、父 context 结束或收到信号时，其余函数的 ctx 被取消，
// Wait 返回第一个错误；信号导致的退出返回 *SignalError（匹配 ErrSignal）。
//
//	err := xrun.Run(ctx,
//	    func(ctx context.Context) error { return hold(ctx, sem) },
//	    xrun.Ticker(time.Second, true, report),
//	)
//	if errors.Is(err, xrun.ErrSignal) {
//	    err = nil
//	}
package xrun
