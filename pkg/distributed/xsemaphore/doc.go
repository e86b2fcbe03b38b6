// Package xsemaphore 提供基于 Redis 列表令牌的分布式计数信号量。
//
// # 设计理念
//
// 名额是 Redis 列表中的具名令牌，而不是计数器：
//   - available 列表存放空闲令牌
//   - processing 列表存放已借出的令牌
//   - 借出与归还都是单条原子命令（BLMOVE / Lua 脚本），令牌不会凭空出现或消失
//
// 令牌总数由 leader 维护：同一 key 的所有实例竞争一把分布式锁（xdlock），
// 持有者每 T/2 执行一次补齐脚本，把 available + processing 补足到 capacity，
// 然后续期租约。竞争失败或出错的实例等待 T 后重新竞争。
//
// # Redis 键
//
// 以默认前缀 "rsemaphore:" 和 key "jobs" 为例：
//
//	rsemaphore:leader-locks:jobs   leader 租约（xdlock）
//	rsemaphore:available:jobs      空闲令牌列表
//	rsemaphore:processing:jobs     借出令牌列表
//
// 令牌名格式为 task_<generation>_<i>，generation 由 xid 生成，每次补齐一个新值。
//
// Redis Cluster 下把 hash tag 写在 key 中（如 "{jobs}"），两个列表落在同一 slot，
// 脚本才能在一个节点上原子执行。前缀不允许包含 `{` `}`。
//
// # 连接
//
// BLMOVE 会占住连接直到返回，因此 New 要求两条不同的连接：
//
//	conns := xsemaphore.Connections{
//	    Blocking: redis.NewClient(&redis.Options{Addr: addr, PoolSize: 1}),
//	    Command:  redis.NewClient(&redis.Options{Addr: addr}),
//	}
//
// # 快速开始
//
//	sem, err := xsemaphore.New("jobs", 10, conns,
//	    xsemaphore.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	defer sem.Close(context.Background())
//
//	token, err := sem.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer sem.Release(context.Background(), token)
//
// # 本地排队
//
// 每个实例只有一条阻塞连接，同一实例的 Acquire 在进程内 FIFO 排队，
// 由一个排队协程依次执行 BLMOVE。跨实例之间没有顺序保证。
//
// Acquire 的 ctx 结束会把调用方移出队列；若令牌已经领到，会立即放回。
//
// # 释放
//
// Release 执行 LREM processing + LPUSH available 脚本。令牌不在 processing 中时
// 什么都不做并返回 Released=false，重复释放和过期令牌因此是安全的。
// 传输错误按 WithReleaseRetry 配置重试。
//
// # 不做的事
//
//   - 不回收崩溃进程借出的令牌，它们会一直留在 processing 中
//   - 不处理运行中缩容：各实例 capacity 必须一致
//   - 不提供跨实例公平性
//
// # 可观测性
//
// WithMeterProvider 开启 OpenTelemetry 指标（rsemaphore.*），
// WithTracerProvider 指定 Acquire/Release/Sanitize 的 span 来源，
// 日志通过 xlog 输出，后台协程的日志都带 semaphore_key 属性。
package xsemaphore
