package xsemaphore

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// Lua 脚本嵌入
// =============================================================================

var (
	//go:embed lua/sanitize.lua
	sanitizeLuaSource string

	//go:embed lua/release.lua
	releaseLuaSource string
)

// =============================================================================
// 脚本管理器
// =============================================================================

// scripts 持有所有 Redis 脚本实例
type scripts struct {
	sanitize *redis.Script
	release  *redis.Script
}

var (
	globalScripts     *scripts
	globalScriptsOnce sync.Once
)

// getScripts 获取脚本实例（线程安全的单例）
func getScripts() *scripts {
	globalScriptsOnce.Do(func() {
		globalScripts = &scripts{
			sanitize: redis.NewScript(sanitizeLuaSource),
			release:  redis.NewScript(releaseLuaSource),
		}
	})
	return globalScripts
}

// WarmupScripts 将脚本预加载到 Redis 脚本缓存。
//
// 不调用也能工作：redis.Script.Run 在 NOSCRIPT 时会回退到 EVAL。
func WarmupScripts(ctx context.Context, conn redis.Scripter) error {
	if ctx == nil {
		return ErrNilContext
	}
	if isNilConn(conn) {
		return ErrNilClient
	}

	s := getScripts()
	if err := s.sanitize.Load(ctx, conn).Err(); err != nil {
		return fmt.Errorf("load sanitize script: %w", storeError(err))
	}
	if err := s.release.Load(ctx, conn).Err(); err != nil {
		return fmt.Errorf("load release script: %w", storeError(err))
	}
	return nil
}

// =============================================================================
// 脚本调用
// =============================================================================

// runSanitize 执行补齐脚本，返回新增的令牌数。
// label 为本批令牌名前缀，令牌完整名为 label_<i>。
func runSanitize(ctx context.Context, conn redis.Scripter, keys keySet, capacity int, label string) (int64, error) {
	res, err := getScripts().sanitize.Run(ctx, conn,
		[]string{keys.available, keys.processing},
		strconv.Itoa(capacity), label,
	).Result()
	if err != nil {
		return 0, storeError(err)
	}
	return toInt64(res)
}

// runRelease 执行释放脚本，返回从 processing 中移除的数量。
func runRelease(ctx context.Context, conn redis.Scripter, keys keySet, token Token) (int64, error) {
	res, err := getScripts().release.Run(ctx, conn,
		[]string{keys.processing, keys.available},
		string(token),
	).Result()
	if err != nil {
		return 0, storeError(err)
	}
	return toInt64(res)
}

// toInt64 转换脚本的整数返回值
func toInt64(res any) (int64, error) {
	n, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: expected int64, got %T", ErrUnexpectedScriptResult, res)
	}
	return n, nil
}
