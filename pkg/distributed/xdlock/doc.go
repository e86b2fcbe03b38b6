// Package xdlock 提供信号量 leader 租约所依赖的分布式互斥锁，支持 Redis (redsync) 和 etcd 两种后端。
//
// # 核心概念
//
//   - Factory: 锁工厂，管理底层连接并创建锁
//   - LockHandle: 一次成功获取的锁，持有 handle 即持有锁
//   - MutexOption: 单次加锁的配置（前缀、TTL、漂移因子等）
//
// # Redis 后端
//
// NewRedisFactory 接收一个或多个 redis.UniversalClient。单节点为标准 SET NX PX 锁，
// 多节点使用 Redlock 算法（需过半成功）。Redis 锁需要调用方周期性 Extend 续期，
// xsemaphore 的 leader 循环每 TTL/2 调用一次。
//
// # etcd 后端
//
// NewEtcdFactory 基于 concurrency.Session 实现，Session 自动保持心跳，
// Extend 只检查 Session 是否仍然有效。WithEtcdTTL 应与 leader 租约时长一致，
// 否则持有者崩溃后要等 Session TTL（默认 60 秒）才会被接管。
// Session 过期后，下一次 TryLock 会重建 Session，旧 handle 的 Extend 返回 ErrSessionExpired。
//
// # 后端差异
//
//	| 特性 | Redis (redsync) | etcd |
//	|------|-----------------|------|
//	| 续期方式 | 手动（Extend） | 自动（Session） |
//	| TTL 粒度 | 毫秒 | 秒 |
//	| 多节点 | Redlock 算法 | 原生集群 |
//
// # 使用模式
//
//	handle, err := factory.TryLock(ctx, "leader-locks:jobs", xdlock.WithExpiry(2*time.Second))
//	if err != nil {
//	    return err // 锁服务异常
//	}
//	if handle == nil {
//	    return nil // 被其他实例持有
//	}
//	defer handle.Unlock(ctx)
package xdlock
