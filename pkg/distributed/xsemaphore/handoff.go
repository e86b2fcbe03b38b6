package xsemaphore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/rsemaphore/pkg/observability/xlog"
	"github.com/omeyang/rsemaphore/pkg/resilience/xretry"
)

// =============================================================================
// 令牌移交
// =============================================================================

// BLMOVE available processing RIGHT LEFT：补齐和释放都 LPUSH 到 available 左端，
// 获取从右端取，available 按先进先出消费令牌。
const (
	moveSrcPos = "RIGHT"
	moveDstPos = "LEFT"
)

// errMoveTimeout 一个阻塞窗口内没有可用令牌
var errMoveTimeout = errors.New("xsemaphore: no token within block window")

// moveOnce 在阻塞连接上执行一个窗口的 BLMOVE。
//
// 窗口内无令牌返回 errMoveTimeout，由调用方决定是否继续等待。
// 只能由排队协程调用：阻塞连接同一时刻只承载一条 BLMOVE。
func (s *Semaphore) moveOnce(ctx context.Context) (Token, error) {
	tok, err := s.conns.Blocking.BLMove(ctx,
		s.keys.available, s.keys.processing,
		moveSrcPos, moveDstPos,
		s.opts.effectiveBlockTimeout(),
	).Result()
	if errors.Is(err, redis.Nil) {
		return "", errMoveTimeout
	}
	if err != nil {
		return "", storeError(err)
	}
	return Token(tok), nil
}

// newReleaseRetryer 构建 Release 使用的重试执行器
func (s *Semaphore) newReleaseRetryer() *xretry.Retryer {
	return xretry.NewRetryer(
		xretry.WithRetryPolicy(xretry.NewFixedRetry(s.opts.releaseRetries)),
		xretry.WithBackoffPolicy(s.opts.effectiveReleaseBackoff()),
		xretry.WithOnRetry(func(attempt int, err error) {
			s.logger.Warn(s.logCtx, "release attempt failed, retrying",
				attrAttempt(attempt), xlog.Err(err))
		}),
	)
}

// releaseToken 执行释放脚本，返回令牌是否真的从 processing 移回 available。
//
// 释放脚本是幂等的（令牌不在 processing 时什么都不做），传输错误可以安全重试。
// Redis 返回的命令错误和非整数结果不会重试。
func (s *Semaphore) releaseToken(ctx context.Context, token Token) (bool, error) {
	var moved int64
	err := s.releaser.Do(ctx, func(ctx context.Context) error {
		n, err := runRelease(ctx, s.conns.Command, s.keys, token)
		if err != nil {
			if isPermanentReleaseErr(err) {
				return xretry.NewPermanentError(err)
			}
			return err
		}
		moved = n
		return nil
	})
	if err != nil {
		var pe *xretry.PermanentError
		if errors.As(err, &pe) {
			err = pe.Err
		}
		return false, err
	}
	return moved > 0, nil
}

// isPermanentReleaseErr 重试不会改变结果的错误
func isPermanentReleaseErr(err error) bool {
	return errors.Is(err, ErrUnexpectedScriptResult) ||
		errors.Is(err, ErrSemaphoreClosed) ||
		errors.Is(err, ErrStoreCommand)
}

// returnToken 把排队协程已移入 processing、但没有调用方接收的令牌放回 available。
// 调用方已经离开，这里只能记录失败。
func (s *Semaphore) returnToken(token Token) {
	ctx, cancel := contextWithCloseTimeout(s.logCtx, s.opts.closeTimeout)
	defer cancel()

	released, err := s.releaseToken(ctx, token)
	if err != nil {
		s.logger.Error(ctx, "return orphaned token failed", AttrToken(token), xlog.Err(err))
		return
	}
	s.logger.Debug(ctx, "orphaned token returned", AttrToken(token), releasedAttr(released))
}
