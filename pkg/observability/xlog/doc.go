// Package xlog 基于 log/slog 的结构化日志。
//
// # 接口
//
// [Logger] 的所有方法都强制传入 context.Context，只接受 slog.Attr：
//
//	logger.Info(ctx, "lease acquired", xlog.Component("xsemaphore"))
//
// [Builder] 构建 [LoggerWithLevel]，级别可在运行时通过 SetLevel 调整，
// 派生 logger（With/WithGroup）共享同一个 LevelVar：
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/rsemctl.log", xrotate.WithMaxSize(100)).
//		Build()
//	if err != nil {
//		return err
//	}
//	defer cleanup()
//
// # Context 注入
//
// 默认启用的 [EnrichHandler] 为每条日志附加：
//   - 当前 OpenTelemetry span 的 trace_id / span_id
//   - [ContextWithAttrs] 放入 context 的属性
//
// # 全局 Logger
//
// [Default] 懒初始化一个写 stderr 的 Logger，供未注入 Logger 的组件使用；
// 进程入口可用 [SetDefault] 替换。
package xlog
