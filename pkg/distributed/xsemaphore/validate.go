package xsemaphore

import (
	"fmt"
	"strings"
	"unicode"
)

// =============================================================================
// Key 前缀校验
// =============================================================================

// invalidKeyPrefixChars 前缀中禁止的 Redis Cluster hash tag 分隔符。
//
// 集群模式下 hash tag 应放在 key 中（如 "{jobs}"），让 available/processing
// 两个列表落在同一 slot；前缀里的 {} 会抢先生效，把所有信号量压到同一 slot。
const invalidKeyPrefixChars = "{}"

// validateKeyPrefix 校验 key 前缀
func validateKeyPrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("%w: key prefix cannot be empty", ErrInvalidOption)
	}
	if idx := strings.IndexAny(prefix, invalidKeyPrefixChars); idx >= 0 {
		return fmt.Errorf("%w: key prefix cannot contain '%c' (found at position %d)",
			ErrInvalidOption, prefix[idx], idx)
	}
	return nil
}

// =============================================================================
// 信号量 key 校验
// =============================================================================

// validateKey 校验信号量 key：非空、不超过 MaxKeyLength、不含空白字符
func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key exceeds max length %d (got %d)", ErrInvalidKey, MaxKeyLength, len(key))
	}
	for i, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: key cannot contain whitespace or control characters at position %d",
				ErrInvalidKey, i)
		}
	}
	return nil
}

// =============================================================================
// 键集合
// =============================================================================

// keySet 一个信号量 key 派生出的三个 Redis 键
type keySet struct {
	lease      string // 传给 xdlock 的锁名（不含前缀，前缀由 WithKeyPrefix 提供）
	available  string
	processing string
}

func newKeySet(prefix, key string) keySet {
	return keySet{
		lease:      segmentLeaderLock + key,
		available:  prefix + segmentAvailable + key,
		processing: prefix + segmentProcessing + key,
	}
}
