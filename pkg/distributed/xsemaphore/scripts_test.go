package xsemaphore

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptsEmbedded(t *testing.T) {
	assert.Contains(t, sanitizeLuaSource, "LPUSH")
	assert.Contains(t, releaseLuaSource, "LREM")

	s := getScripts()
	assert.Same(t, s, getScripts())
	assert.NotEmpty(t, s.sanitize.Hash())
	assert.NotEqual(t, s.sanitize.Hash(), s.release.Hash())
}

func TestWarmupScripts(t *testing.T) {
	ctx := context.Background()

	t.Run("nil context", func(t *testing.T) {
		//nolint:staticcheck // 测试 nil ctx
		assert.ErrorIs(t, WarmupScripts(nil, nil), ErrNilContext)
	})

	t.Run("nil client", func(t *testing.T) {
		var c *redis.Client
		assert.ErrorIs(t, WarmupScripts(ctx, c), ErrNilClient)
	})

	t.Run("loads both scripts", func(t *testing.T) {
		mr := setupRedis(t)
		conns := newConns(t, mr)
		require.NoError(t, WarmupScripts(ctx, conns.Command))

		s := getScripts()
		exists, err := conns.Command.ScriptExists(ctx, s.sanitize.Hash(), s.release.Hash()).Result()
		require.NoError(t, err)
		assert.Equal(t, []bool{true, true}, exists)
	})

	t.Run("store down", func(t *testing.T) {
		mr := setupRedis(t)
		conns := newConns(t, mr)
		mr.Close()
		err := WarmupScripts(ctx, conns.Command)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestRunSanitize(t *testing.T) {
	ctx := context.Background()
	mr := setupRedis(t)
	conns := newConns(t, mr)
	keys := newKeySet(DefaultKeyPrefix, "jobs")

	t.Run("fills empty pool", func(t *testing.T) {
		n, err := runSanitize(ctx, conns.Command, keys, 3, "task_g1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		items, err := mr.List(keys.available)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"task_g1_1", "task_g1_2", "task_g1_3"}, items)
	})

	t.Run("idempotent when full", func(t *testing.T) {
		n, err := runSanitize(ctx, conns.Command, keys, 3, "task_g2")
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, 3, listLen(t, mr, keys.available))
	})

	t.Run("counts processing tokens", func(t *testing.T) {
		// 借出一个，再删掉一个空闲令牌模拟丢失
		_, err := conns.Command.(*redis.Client).LMove(ctx, keys.available, keys.processing, "RIGHT", "LEFT").Result()
		require.NoError(t, err)
		_, err = conns.Command.(*redis.Client).RPop(ctx, keys.available).Result()
		require.NoError(t, err)

		n, err := runSanitize(ctx, conns.Command, keys, 3, "task_g3")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Equal(t, 2, listLen(t, mr, keys.available))
		assert.Equal(t, 1, listLen(t, mr, keys.processing))

		items, err := mr.List(keys.available)
		require.NoError(t, err)
		assert.Equal(t, "task_g3_1", items[0], "补齐令牌 LPUSH 到左端")
	})

	t.Run("never removes surplus", func(t *testing.T) {
		n, err := runSanitize(ctx, conns.Command, keys, 1, "task_g4")
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, 3, listLen(t, mr, keys.available)+listLen(t, mr, keys.processing))
	})
}

func TestRunRelease(t *testing.T) {
	ctx := context.Background()
	mr := setupRedis(t)
	conns := newConns(t, mr)
	keys := newKeySet(DefaultKeyPrefix, "jobs")

	_, err := mr.Lpush(keys.processing, "task_g1_1")
	require.NoError(t, err)

	t.Run("moves token back", func(t *testing.T) {
		n, err := runRelease(ctx, conns.Command, keys, "task_g1_1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Equal(t, 1, listLen(t, mr, keys.available))
		assert.Equal(t, 0, listLen(t, mr, keys.processing))
	})

	t.Run("second release is a no-op", func(t *testing.T) {
		n, err := runRelease(ctx, conns.Command, keys, "task_g1_1")
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, 1, listLen(t, mr, keys.available))
	})

	t.Run("unknown token is a no-op", func(t *testing.T) {
		n, err := runRelease(ctx, conns.Command, keys, "task_nope_9")
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, 1, listLen(t, mr, keys.available))
	})
}

func TestToInt64(t *testing.T) {
	n, err := toInt64(int64(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	_, err = toInt64("7")
	assert.ErrorIs(t, err, ErrUnexpectedScriptResult)
}
