// Package xid 基于 sony/sonyflake 生成可排序的唯一 ID。
//
// xsemaphore 的 leader 每次补齐令牌时用它生成代际标签，令牌名形如
// task_<代际>_<序号>；不同实例、不同轮次生成的令牌因此不会重名。
//
// # ID 结构
//
//	39 bits - 时间戳（10ms 单位）
//	 8 bits - 序列号
//	16 bits - 机器 ID，来源见 DefaultMachineID
//
// 字符串形式为 36 进制，约 12 个字符。
//
//	gen, err := xid.NewGenerator(xid.WithMachineID(func() (uint16, error) { return 7, nil }))
//	label, err := gen.NewStringWithRetry(ctx)
//
// 全局函数 NewString / NewStringWithRetry 在首次使用时以默认配置初始化，
// 需要自定义时在进程启动时调用 Init。
package xid
