// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xid: sonyflake 分布式 ID，生成信号量令牌的批次号
package util
