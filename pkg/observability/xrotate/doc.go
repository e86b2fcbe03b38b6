// Package xrotate 为 rsemctl 的文件日志提供按大小轮转的输出目标。
//
// [Rotator] 是 io.WriteCloser 加上手动 Rotate，由 xlog.Builder.SetRotation
// 作为日志输出使用；实现基于 lumberjack v2，并发安全。
//
//	r, err := xrotate.NewLumberjack("/var/log/rsemctl/rsemctl.log",
//		xrotate.WithMaxSize(100),
//		xrotate.WithMaxBackups(3),
//	)
//
// Close 之后的 Write 与 Rotate 返回 [ErrClosed]。
package xrotate
