package xsemaphore

import (
	"log/slog"
)

// =============================================================================
// 日志属性键常量
// =============================================================================

const (
	attrKeyKey        = "semaphore_key"
	attrKeyToken      = "token"
	attrKeyCapacity   = "capacity"
	attrKeyDeficit    = "deficit"
	attrKeyGeneration = "generation"
	attrKeyAttempt    = "attempt"
	attrKeyState      = "state"
)

// =============================================================================
// 日志属性构造函数
// =============================================================================

// AttrKey 返回信号量 key 属性
func AttrKey(key string) slog.Attr {
	return slog.String(attrKeyKey, key)
}

// AttrToken 返回令牌属性
func AttrToken(token Token) slog.Attr {
	return slog.String(attrKeyToken, string(token))
}

// AttrCapacity 返回容量属性
func AttrCapacity(capacity int) slog.Attr {
	return slog.Int(attrKeyCapacity, capacity)
}

// AttrDeficit 返回补齐数量属性
func AttrDeficit(n int64) slog.Attr {
	return slog.Int64(attrKeyDeficit, n)
}

// AttrGeneration 返回代际 ID 属性
func AttrGeneration(gen string) slog.Attr {
	return slog.String(attrKeyGeneration, gen)
}

func attrAttempt(n int) slog.Attr {
	return slog.Int(attrKeyAttempt, n)
}

func attrState(s leaderState) slog.Attr {
	return slog.String(attrKeyState, s.String())
}
