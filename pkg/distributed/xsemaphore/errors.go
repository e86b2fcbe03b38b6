package xsemaphore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// 预定义错误
// =============================================================================

// 预定义错误，使用 errors.Is 进行比较
var (
	// ErrNilClient 连接为空。
	ErrNilClient = errors.New("xsemaphore: client is nil")

	// ErrSharedConnection 阻塞连接与命令连接是同一个句柄。
	// 阻塞命令会占住连接，命令连接上的脚本和续期会被拖住。
	ErrSharedConnection = errors.New("xsemaphore: blocking and command connections must be distinct")

	// ErrNilLocker 没有可用的分布式锁。
	// 未传 WithLocker 且命令连接不是 redis.UniversalClient 时返回。
	ErrNilLocker = errors.New("xsemaphore: distributed locker is nil")

	// ErrEmptyKey 信号量 key 为空。
	ErrEmptyKey = errors.New("xsemaphore: key must not be empty")

	// ErrInvalidKey 信号量 key 过长或包含空白字符。
	ErrInvalidKey = errors.New("xsemaphore: invalid key")

	// ErrInvalidCapacity 容量必须为正整数。
	ErrInvalidCapacity = errors.New("xsemaphore: invalid capacity")

	// ErrInvalidOption 选项值不合法。
	ErrInvalidOption = errors.New("xsemaphore: invalid option")

	// ErrNilContext context 参数为空。
	ErrNilContext = errors.New("xsemaphore: context must not be nil")

	// ErrSemaphoreClosed 信号量已关闭。
	// Close 之后的 Acquire，以及 Close 时仍在排队的 Acquire 都返回此错误。
	ErrSemaphoreClosed = errors.New("xsemaphore: semaphore is closed")

	// ErrStoreUnavailable Redis 操作失败。
	// 原始错误通过双 %w 保留，errors.Is 可同时匹配两者。
	ErrStoreUnavailable = errors.New("xsemaphore: store unavailable")

	// ErrStoreCommand Redis 拒绝执行命令（如 WRONGTYPE、脚本运行错误）。
	// 与 ErrStoreUnavailable 互斥，重试不会改变结果。
	ErrStoreCommand = errors.New("xsemaphore: store rejected command")

	// ErrLockContention leader 租约被其他实例持有。
	// 只在日志和指标中出现，不会返回给调用方。
	ErrLockContention = errors.New("xsemaphore: leader lease held by another instance")

	// ErrUnexpectedScriptResult Lua 脚本返回了非整数结果。
	ErrUnexpectedScriptResult = errors.New("xsemaphore: unexpected script result")
)

// =============================================================================
// 错误检查函数
// =============================================================================

// transportErrors Redis 传输层常见错误
var transportErrors = []error{
	ErrStoreUnavailable,
	redis.ErrClosed,
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.EPIPE,
	syscall.ETIMEDOUT,
	io.EOF,
	io.ErrUnexpectedEOF,
}

// IsStoreError 检查是否是 Redis 不可用类错误。
//
// context.Canceled 和 context.DeadlineExceeded 不算，它们是调用方自己放弃等待。
func IsStoreError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, target := range transportErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// transientReplyPrefixes 服务端暂时无法处理、稍后重试可能成功的错误回复
var transientReplyPrefixes = []string{
	"LOADING", "READONLY", "MASTERDOWN", "CLUSTERDOWN", "TRYAGAIN", "BUSY",
}

// isCommandError 判断是否是 Redis 拒绝命令的错误回复
func isCommandError(err error) bool {
	var redisErr redis.Error
	if !errors.As(err, &redisErr) || errors.Is(err, redis.Nil) {
		return false
	}
	msg := redisErr.Error()
	for _, prefix := range transientReplyPrefixes {
		if strings.HasPrefix(msg, prefix) {
			return false
		}
	}
	return true
}

// storeError 包装 Redis 错误：命令错误包装为 ErrStoreCommand，
// 其余包装为 ErrStoreUnavailable，ctx 错误原样返回。
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrStoreCommand) {
		return err
	}
	if isCommandError(err) {
		return fmt.Errorf("%w: %w", ErrStoreCommand, err)
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
