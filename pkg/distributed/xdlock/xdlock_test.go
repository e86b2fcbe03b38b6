package xdlock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/omeyang/rsemaphore/pkg/distributed/xdlock"
)

// =============================================================================
// 错误定义测试
// =============================================================================

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ErrLockHeld", xdlock.ErrLockHeld, "xdlock: lock is held by another owner"},
		{"ErrLockFailed", xdlock.ErrLockFailed, "xdlock: failed to acquire lock"},
		{"ErrLockExpired", xdlock.ErrLockExpired, "xdlock: lock expired or stolen"},
		{"ErrExtendFailed", xdlock.ErrExtendFailed, "xdlock: failed to extend lock"},
		{"ErrNilClient", xdlock.ErrNilClient, "xdlock: client is nil"},
		{"ErrSessionExpired", xdlock.ErrSessionExpired, "xdlock: session expired"},
		{"ErrFactoryClosed", xdlock.ErrFactoryClosed, "xdlock: factory is closed"},
		{"ErrNotLocked", xdlock.ErrNotLocked, "xdlock: not locked"},
		{"ErrEmptyKey", xdlock.ErrEmptyKey, "xdlock: key must not be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

// =============================================================================
// etcd（无需集群）
// =============================================================================

func TestNewEtcdFactory_NilClient(t *testing.T) {
	_, err := xdlock.NewEtcdFactory(nil)
	assert.ErrorIs(t, err, xdlock.ErrNilClient)
}

func TestEtcdConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  *xdlock.EtcdConfig
		want error
	}{
		{"nil", nil, xdlock.ErrNilConfig},
		{"无 endpoints", &xdlock.EtcdConfig{}, xdlock.ErrNoEndpoints},
		{"空白 endpoints", &xdlock.EtcdConfig{Endpoints: []string{" ", ""}}, xdlock.ErrNoEndpoints},
		{"有效", &xdlock.EtcdConfig{Endpoints: []string{"localhost:2379"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDefaultEtcdConfig(t *testing.T) {
	cfg := xdlock.DefaultEtcdConfig()
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 10*time.Second, cfg.DialKeepAliveTime)
	assert.Equal(t, 3*time.Second, cfg.DialKeepAliveTimeout)
	assert.Empty(t, cfg.Endpoints)
}

func TestNewEtcdClient_InvalidConfig(t *testing.T) {
	_, err := xdlock.NewEtcdClient(nil)
	assert.ErrorIs(t, err, xdlock.ErrNilConfig)

	_, err = xdlock.NewEtcdClient(xdlock.DefaultEtcdConfig(), xdlock.WithEtcdClientContext(context.Background()))
	assert.ErrorIs(t, err, xdlock.ErrNoEndpoints)

	_, _, err = xdlock.NewEtcdFactoryFromConfig(&xdlock.EtcdConfig{}, nil)
	assert.ErrorIs(t, err, xdlock.ErrNoEndpoints)
}

func TestWithEtcdTTL(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		want int
	}{
		{"默认", 0, 60},
		{"负值忽略", -time.Second, 60},
		{"整秒", 2 * time.Second, 2},
		{"向上取整", 2500 * time.Millisecond, 3},
		{"不足一秒", 200 * time.Millisecond, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, xdlock.EtcdSessionTTL(xdlock.WithEtcdTTL(tt.ttl)))
		})
	}
}
