package xsemaphore

import (
	"context"
	"errors"

	"github.com/omeyang/rsemaphore/pkg/distributed/xdlock"
	"github.com/omeyang/rsemaphore/pkg/observability/xlog"
)

// =============================================================================
// leader 状态
// =============================================================================

// leaderState leader 维护循环的状态
type leaderState int

const (
	stateContending leaderState = iota
	stateLeading
)

func (s leaderState) String() string {
	switch s {
	case stateLeading:
		return "leading"
	default:
		return "contending"
	}
}

// leaseDriftFactor 租约时钟漂移系数
const leaseDriftFactor = 0.01

// lockOutcome TryLock 结果分类
type lockOutcome int

const (
	lockAcquired lockOutcome = iota
	lockContended
	lockFailed
)

// classifyLockErr 区分正常竞争与锁服务故障。
// 锁被占用（含多数派未达成）属于竞争；租约过期、续期失败等其余错误属于故障。
func classifyLockErr(handle xdlock.LockHandle, err error) lockOutcome {
	switch {
	case err == nil && handle != nil:
		return lockAcquired
	case err == nil:
		return lockContended
	case errors.Is(err, xdlock.ErrLockHeld), errors.Is(err, xdlock.ErrLockFailed):
		return lockContended
	default:
		return lockFailed
	}
}

// =============================================================================
// leader 维护循环
// =============================================================================

// runLeader Contending -> Leading -> Contending 循环，直到 ctx 结束。
// 错误都在循环内消化：记录日志、按退避等待后重新竞争。
func (s *Semaphore) runLeader(ctx context.Context) {
	defer s.wg.Done()

	backoff := s.opts.effectiveLeaderBackoff()
	attempt := 0
	for {
		if handle := s.contend(ctx); handle != nil {
			attempt = 0
			s.lead(ctx, handle)
		}
		if ctx.Err() != nil {
			return
		}
		attempt++
		if waitForRetry(ctx, backoff.NextDelay(attempt)) != nil {
			return
		}
	}
}

// contend 尝试获取一次 leader 租约，失败返回 nil
func (s *Semaphore) contend(ctx context.Context) xdlock.LockHandle {
	handle, err := s.locker.TryLock(ctx, s.keys.lease,
		xdlock.WithKeyPrefix(s.opts.keyPrefix),
		xdlock.WithExpiry(s.opts.leaseTTL),
		xdlock.WithDriftFactor(leaseDriftFactor),
	)
	switch classifyLockErr(handle, err) {
	case lockAcquired:
		return handle
	case lockContended:
		s.logger.Debug(ctx, "leader lease held elsewhere", xlog.Err(ErrLockContention))
	default:
		if ctx.Err() == nil {
			s.logger.Error(ctx, "acquire leader lease failed", xlog.Err(err))
		}
	}
	return nil
}

// lead 持有租约期间：补齐、等待 T/2、续期，任一步失败即退回竞争。
// ctx 结束时主动释放租约。
func (s *Semaphore) lead(ctx context.Context, handle xdlock.LockHandle) {
	s.setLeader(ctx, true)
	defer s.setLeader(ctx, false)

	interval := s.opts.leaseTTL / 2
	for {
		if _, err := s.sanitize(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Error(ctx, "sanitize failed, stepping down", xlog.Err(err))
			return
		}
		if waitForRetry(ctx, interval) != nil {
			break
		}
		if err := handle.Extend(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, xdlock.ErrNotLocked) || errors.Is(err, xdlock.ErrSessionExpired) {
				s.logger.Warn(ctx, "leader lease lost", xlog.Err(err))
			} else {
				s.logger.Error(ctx, "extend leader lease failed", xlog.Err(err))
			}
			return
		}
	}
	s.releaseLease(handle)
}

// releaseLease 在独立的有界 context 上释放租约
func (s *Semaphore) releaseLease(handle xdlock.LockHandle) {
	ctx, cancel := contextWithCloseTimeout(s.logCtx, s.opts.closeTimeout)
	defer cancel()

	if err := handle.Unlock(ctx); err != nil && !errors.Is(err, xdlock.ErrNotLocked) {
		s.logger.Warn(ctx, "release leader lease failed", xlog.Err(err))
		return
	}
	s.logger.Debug(ctx, "leader lease released")
}

// setLeader 更新 leader 标志，状态变化时记录日志与指标
func (s *Semaphore) setLeader(ctx context.Context, leading bool) {
	if s.leader.Swap(leading) == leading {
		return
	}
	state := stateContending
	if leading {
		state = stateLeading
	}
	s.metrics.RecordLeaderTransition(ctx, s.key, state)
	s.logger.Info(ctx, "leader state changed", attrState(state))
}
