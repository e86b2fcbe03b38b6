//go:build integration

package xsemaphore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// =============================================================================
// 集成测试环境
// =============================================================================

// setupIntegrationRedis 优先使用 RSEMAPHORE_REDIS_ADDR，否则启动 Redis 容器
func setupIntegrationRedis(t *testing.T) string {
	t.Helper()

	if addr := os.Getenv("RSEMAPHORE_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			t.Skipf("无法连接到 Redis %s: %v", addr, err)
		}
		return addr
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7.2-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func integrationConns(t *testing.T, addr string) Connections {
	t.Helper()
	blocking := redis.NewClient(&redis.Options{Addr: addr, PoolSize: 1})
	command := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() {
		_ = blocking.Close()
		_ = command.Close()
	})
	return Connections{Blocking: blocking, Command: command}
}

// =============================================================================
// 多实例
// =============================================================================

// TestIntegration_MultiInstance 三个实例共享容量 2，任一时刻全局持有数不超过 2
func TestIntegration_MultiInstance(t *testing.T) {
	addr := setupIntegrationRedis(t)
	ctx := context.Background()
	key := fmt.Sprintf("it-%d", time.Now().UnixNano())
	const capacity = 2

	sems := make([]*Semaphore, 3)
	for i := range sems {
		sem, err := New(key, capacity, integrationConns(t, addr), WithLeaseTTL(500*time.Millisecond))
		require.NoError(t, err)
		t.Cleanup(func() { _ = sem.Close(context.Background()) })
		sems[i] = sem
	}
	require.NoError(t, WarmupScripts(ctx, integrationConns(t, addr).Command))

	require.Eventually(t, func() bool {
		st, err := sems[0].Query(ctx)
		return err == nil && st.Available == capacity
	}, 5*time.Second, 20*time.Millisecond)

	leaders := 0
	for _, s := range sems {
		if s.IsLeader() {
			leaders++
		}
	}
	assert.Equal(t, 1, leaders)

	var (
		inFlight atomic.Int32
		maxSeen  atomic.Int32
		wg       sync.WaitGroup
	)
	for _, sem := range sems {
		for w := 0; w < 2; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 3; i++ {
					tok, err := sem.Acquire(ctx)
					if !assert.NoError(t, err) {
						return
					}
					n := inFlight.Add(1)
					for {
						old := maxSeen.Load()
						if n <= old || maxSeen.CompareAndSwap(old, n) {
							break
						}
					}
					time.Sleep(20 * time.Millisecond)
					inFlight.Add(-1)
					_, err = sem.Release(ctx, tok)
					assert.NoError(t, err)
				}
			}()
		}
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int32(capacity))
	st, err := sems[0].Query(ctx)
	require.NoError(t, err)
	assert.Equal(t, capacity, st.Available)
	assert.Zero(t, st.Processing)
}
