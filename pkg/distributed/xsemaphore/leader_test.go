package xsemaphore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/omeyang/rsemaphore/pkg/distributed/xdlock"
	"github.com/omeyang/rsemaphore/pkg/distributed/xdlock/xdlockmock"
	"github.com/omeyang/rsemaphore/pkg/resilience/xretry"
)

func TestClassifyLockErr(t *testing.T) {
	ctrl := gomock.NewController(t)
	handle := xdlockmock.NewMockLockHandle(ctrl)

	tests := []struct {
		name   string
		handle xdlock.LockHandle
		err    error
		want   lockOutcome
	}{
		{"acquired", handle, nil, lockAcquired},
		{"nil handle", nil, nil, lockContended},
		{"held", nil, xdlock.ErrLockHeld, lockContended},
		{"quorum failed", nil, xdlock.ErrLockFailed, lockContended},
		{"expired", nil, xdlock.ErrLockExpired, lockFailed},
		{"extend failed", nil, xdlock.ErrExtendFailed, lockFailed},
		{"transport", nil, errors.New("dial tcp: refused"), lockFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyLockErr(tt.handle, tt.err))
		})
	}
}

func TestLeaderState_String(t *testing.T) {
	assert.Equal(t, "contending", stateContending.String())
	assert.Equal(t, "leading", stateLeading.String())
}

// newMockedSemaphore 使用 mock 锁工厂创建信号量
func newMockedSemaphore(t *testing.T, locker xdlock.Factory, hook func()) *Semaphore {
	t.Helper()
	mr := setupRedis(t)
	opts := []Option{
		WithLeaseTTL(testLeaseTTL),
		WithLocker(locker),
		WithLeaderBackoff(xretry.NewFixedBackoff(20 * time.Millisecond)),
		WithGenerationFunc(seqGeneration()),
	}
	if hook != nil {
		opts = append(opts, withSanitizeHook(hook))
	}
	sem, err := New("jobs", 2, newConns(t, mr), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { closeSemaphore(t, sem) })
	return sem
}

func TestLeader_ContentionNeverSanitizes(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := xdlockmock.NewMockFactory(ctrl)

	var tries atomic.Int32
	locker.EXPECT().TryLock(gomock.Any(), "leader-locks:jobs", gomock.Any()).
		DoAndReturn(func(context.Context, string, ...xdlock.MutexOption) (xdlock.LockHandle, error) {
			if tries.Add(1)%2 == 0 {
				return nil, xdlock.ErrLockHeld
			}
			return nil, nil
		}).MinTimes(3)

	var sanitized atomic.Int32
	sem := newMockedSemaphore(t, locker, func() { sanitized.Add(1) })

	require.Eventually(t, func() bool { return tries.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, sem.IsLeader())
	assert.Zero(t, sanitized.Load())
}

func TestLeader_LockErrorKeepsContending(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := xdlockmock.NewMockFactory(ctrl)

	var tries atomic.Int32
	locker.EXPECT().TryLock(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, ...xdlock.MutexOption) (xdlock.LockHandle, error) {
			tries.Add(1)
			return nil, errors.New("redis down")
		}).MinTimes(2)

	sem := newMockedSemaphore(t, locker, nil)
	require.Eventually(t, func() bool { return tries.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, sem.IsLeader())
}

func TestLeader_SanitizeThenExtend(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := xdlockmock.NewMockFactory(ctrl)
	handle := xdlockmock.NewMockLockHandle(ctrl)

	var extends atomic.Int32
	locker.EXPECT().TryLock(gomock.Any(), "leader-locks:jobs", gomock.Any()).Return(handle, nil).Times(1)
	handle.EXPECT().Extend(gomock.Any()).DoAndReturn(func(context.Context) error {
		extends.Add(1)
		return nil
	}).MinTimes(2)
	handle.EXPECT().Unlock(gomock.Any()).Return(nil).Times(1)

	var sanitized atomic.Int32
	sem := newMockedSemaphore(t, locker, func() { sanitized.Add(1) })

	require.Eventually(t, func() bool { return extends.Load() >= 2 }, 3*time.Second, 5*time.Millisecond)
	assert.True(t, sem.IsLeader())
	// 每次续期前都补齐一次
	assert.GreaterOrEqual(t, sanitized.Load(), extends.Load())
	waitAvailable(t, sem, 2)

	// Close 释放租约
	closeSemaphore(t, sem)
	assert.False(t, sem.IsLeader())
}

func TestLeader_LostLeaseStepsDown(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"redis lease overwritten", xdlock.ErrNotLocked},
		{"etcd session expired", xdlock.ErrSessionExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			locker := xdlockmock.NewMockFactory(ctrl)
			handle := xdlockmock.NewMockLockHandle(ctrl)

			var tries atomic.Int32
			locker.EXPECT().TryLock(gomock.Any(), gomock.Any(), gomock.Any()).
				DoAndReturn(func(context.Context, string, ...xdlock.MutexOption) (xdlock.LockHandle, error) {
					if tries.Add(1) == 1 {
						return handle, nil
					}
					return nil, nil
				}).MinTimes(2)
			handle.EXPECT().Extend(gomock.Any()).Return(tt.err).Times(1)

			sem := newMockedSemaphore(t, locker, nil)

			require.Eventually(t, func() bool { return tries.Load() >= 2 }, 3*time.Second, 5*time.Millisecond)
			assert.False(t, sem.IsLeader())
			// 已补齐的令牌保留
			waitAvailable(t, sem, 2)
		})
	}
}

func TestLeader_SanitizeErrorStepsDown(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := xdlockmock.NewMockFactory(ctrl)
	handle := xdlockmock.NewMockLockHandle(ctrl)

	var tries atomic.Int32
	locker.EXPECT().TryLock(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, ...xdlock.MutexOption) (xdlock.LockHandle, error) {
			if tries.Add(1) == 1 {
				return handle, nil
			}
			return nil, nil
		}).MinTimes(2)

	mr := setupRedis(t)
	sem, err := New("jobs", 2, newConns(t, mr),
		WithLeaseTTL(testLeaseTTL),
		WithLocker(locker),
		WithLeaderBackoff(xretry.NewFixedBackoff(20*time.Millisecond)),
		WithGenerationFunc(func(context.Context) (string, error) {
			return "", errors.New("clock moved backwards")
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { closeSemaphore(t, sem) })

	require.Eventually(t, func() bool { return tries.Load() >= 2 }, 3*time.Second, 5*time.Millisecond)
	assert.False(t, sem.IsLeader())
	assert.Equal(t, 0, listLen(t, mr, sem.keys.available))
}

// TestLeader_Uniqueness 两个实例竞争同一 key，任一时刻只有一个实例补齐；
// leader 关闭后另一实例接管，令牌总数保持不变。
func TestLeader_Uniqueness(t *testing.T) {
	ctx := context.Background()
	mr := setupRedis(t)

	var runsA, runsB atomic.Int32
	a := newTestSemaphore(t, mr, "jobs", 3, withSanitizeHook(func() { runsA.Add(1) }))
	b := newTestSemaphore(t, mr, "jobs", 3, withSanitizeHook(func() { runsB.Add(1) }))

	require.Eventually(t, func() bool { return a.IsLeader() || b.IsLeader() }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(3 * testLeaseTTL)

	leader, follower := a, b
	leaderRuns, followerRuns := &runsA, &runsB
	if b.IsLeader() {
		leader, follower = b, a
		leaderRuns, followerRuns = &runsB, &runsA
	}
	assert.True(t, leader.IsLeader())
	assert.False(t, follower.IsLeader())
	assert.Positive(t, leaderRuns.Load())
	assert.Zero(t, followerRuns.Load())

	tok, err := follower.Acquire(ctx)
	require.NoError(t, err)

	closeSemaphore(t, leader)
	require.Eventually(t, follower.IsLeader, 3*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return followerRuns.Load() > 0 }, 3*time.Second, 5*time.Millisecond)

	st, err := follower.Query(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Available+st.Processing)
	assert.Equal(t, 1, st.Processing)

	res, err := follower.Release(ctx, tok)
	require.NoError(t, err)
	assert.True(t, res.Released)
}
