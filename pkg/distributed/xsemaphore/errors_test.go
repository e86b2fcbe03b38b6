package xsemaphore

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// replyError 模拟 Redis 服务端错误回复，满足 redis.Error
type replyError string

func (e replyError) Error() string { return string(e) }
func (replyError) RedisError()     {}

func TestStoreError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
		command     bool
	}{
		{"connection reset", syscall.ECONNRESET, true, false},
		{"client closed", redis.ErrClosed, true, false},
		{"plain error", errors.New("boom"), true, false},
		{"wrong type", replyError("WRONGTYPE Operation against a key holding the wrong kind of value"), false, true},
		{"script error", replyError("ERR user_script:1: bad argument"), false, true},
		{"loading", replyError("LOADING Redis is loading the dataset in memory"), true, false},
		{"readonly replica", replyError("READONLY You can't write against a read only replica."), true, false},
		{"cluster down", replyError("CLUSTERDOWN The cluster is down"), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storeError(tt.err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.unavailable, errors.Is(err, ErrStoreUnavailable))
			assert.Equal(t, tt.command, errors.Is(err, ErrStoreCommand))
			assert.Equal(t, tt.command, isPermanentReleaseErr(err))
		})
	}

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, storeError(nil))
	})

	t.Run("context errors pass through", func(t *testing.T) {
		assert.Same(t, context.Canceled, storeError(context.Canceled))
		wrapped := fmt.Errorf("blmove: %w", context.DeadlineExceeded)
		assert.Equal(t, wrapped, storeError(wrapped))
	})

	t.Run("already wrapped", func(t *testing.T) {
		once := storeError(replyError("WRONGTYPE x"))
		assert.Equal(t, once, storeError(once))
	})
}

func TestIsStoreError_CommandError(t *testing.T) {
	assert.True(t, IsStoreError(storeError(syscall.ECONNREFUSED)))
	assert.False(t, IsStoreError(storeError(replyError("WRONGTYPE x"))))
}
