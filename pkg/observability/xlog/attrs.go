package xlog

import (
	"log/slog"
	"time"
)

// =============================================================================
// 标准字段名
// =============================================================================

const (
	KeyError     = "error"
	KeyStack     = "stack"
	KeyDuration  = "duration"
	KeyCount     = "count"
	KeyComponent = "component"
	KeyOperation = "operation"

	// KeyTraceID / KeySpanID 由 EnrichHandler 从 OpenTelemetry span 上下文注入
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"
)

// Err 创建错误属性，err 为 nil 时返回会被 slog 忽略的空属性
//
//	if err != nil {
//	    logger.Error(ctx, "release failed", xlog.Err(err))
//	}
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 创建耗时属性
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Component 标识日志来源组件，如 "xsemaphore"、"rsemctl"
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Operation 标识当前执行的操作
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

func Count(n int64) slog.Attr {
	return slog.Int64(KeyCount, n)
}
