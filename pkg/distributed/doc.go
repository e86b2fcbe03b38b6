// Package distributed 提供分布式协调相关的子包。
//
// 子包列表：
//   - xdlock: 分布式锁，支持 Redis（redsync）与 etcd（concurrency）后端
//   - xsemaphore: 基于两个 Redis 列表的计数信号量，leader 持锁补齐名额
//
// 设计原则：
//   - 锁接口统一，信号量只依赖 xdlock.Factory
//   - 租约可续期，关闭时主动释放
package distributed
