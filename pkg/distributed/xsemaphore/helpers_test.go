package xsemaphore

import (
	"context"
	"fmt"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 测试辅助函数
// =============================================================================

// testLeaseTTL 缩短租约，让 leader 在测试中快速完成首次补齐
const testLeaseTTL = 200 * time.Millisecond

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	return miniredis.RunT(t)
}

// newConns 为同一个 miniredis 创建两条独立连接
func newConns(t *testing.T, mr *miniredis.Miniredis) Connections {
	t.Helper()
	blocking := redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: 1})
	command := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = blocking.Close()
		_ = command.Close()
	})
	return Connections{Blocking: blocking, Command: command}
}

// seqGeneration 可预测的代际 ID：g1, g2, ...
func seqGeneration() GenerationFunc {
	var n atomic.Int64
	return func(context.Context) (string, error) {
		return fmt.Sprintf("g%d", n.Add(1)), nil
	}
}

// newTestSemaphore 创建测试用信号量，Cleanup 时关闭
func newTestSemaphore(t *testing.T, mr *miniredis.Miniredis, key string, capacity int, opts ...Option) *Semaphore {
	t.Helper()
	base := []Option{
		WithLeaseTTL(testLeaseTTL),
		WithGenerationFunc(seqGeneration()),
	}
	sem, err := New(key, capacity, newConns(t, mr), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { closeSemaphore(t, sem) })
	return sem
}

// closeSemaphore 关闭信号量并检查错误
func closeSemaphore(t *testing.T, sem *Semaphore) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sem.Close(ctx); err != nil {
		t.Errorf("semaphore close failed: %v", err)
	}
}

// waitAvailable 等待 available 列表达到 n 个令牌
func waitAvailable(t *testing.T, sem *Semaphore, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := sem.Query(context.Background())
		return err == nil && st.Available == n
	}, 3*time.Second, 10*time.Millisecond)
}

// waitQueued 等待本地排队数达到 n
func waitQueued(t *testing.T, sem *Semaphore, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return sem.queue.len() == n
	}, 3*time.Second, 5*time.Millisecond)
}

// listLen 直接读取 miniredis 中列表长度
func listLen(t *testing.T, mr *miniredis.Miniredis, key string) int {
	t.Helper()
	if !mr.Exists(key) {
		return 0
	}
	items, err := mr.List(key)
	require.NoError(t, err)
	return len(items)
}

// =============================================================================
// 连接替身
// =============================================================================

// narrowCommand 只暴露 CommandConn 方法，不满足 redis.UniversalClient
type narrowCommand struct {
	CommandConn
}

// flakyRelease 前 fails 次释放脚本调用返回连接重置错误
type flakyRelease struct {
	CommandConn
	processing string
	fails      atomic.Int32
	calls      atomic.Int32
}

func (f *flakyRelease) failRelease(keys []string) bool {
	if len(keys) == 0 || keys[0] != f.processing {
		return false
	}
	f.calls.Add(1)
	return f.fails.Add(-1) >= 0
}

func (f *flakyRelease) EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	if f.failRelease(keys) {
		return redis.NewCmdResult(nil, syscall.ECONNRESET)
	}
	return f.CommandConn.EvalSha(ctx, sha1, keys, args...)
}

// gatedBlocking 第一次 BLMOVE 阻塞到 gate 关闭后返回 err，之后委托给真实连接
type gatedBlocking struct {
	BlockingConn
	gate    chan struct{}
	entered chan struct{}
	err     error
	once    atomic.Bool
}

func newGatedBlocking(inner BlockingConn, err error) *gatedBlocking {
	return &gatedBlocking{
		BlockingConn: inner,
		gate:         make(chan struct{}),
		entered:      make(chan struct{}),
		err:          err,
	}
}

func (g *gatedBlocking) BLMove(ctx context.Context, src, dst, srcpos, dstpos string, timeout time.Duration) *redis.StringCmd {
	if g.once.CompareAndSwap(false, true) {
		close(g.entered)
		<-g.gate
		return redis.NewStringResult("", g.err)
	}
	return g.BlockingConn.BLMove(ctx, src, dst, srcpos, dstpos, timeout)
}
