package xid

import "time"

type options struct {
	machineID        func() (uint16, error)
	checkMachineID   func(uint16) bool
	maxWaitDuration  time.Duration
	maxWaitSet       bool
	retryInterval    time.Duration
	retryIntervalSet bool
}

// Option 生成器配置
type Option func(*options)

// WithMachineID 自定义机器 ID 来源，默认 DefaultMachineID
func WithMachineID(fn func() (uint16, error)) Option {
	return func(c *options) { c.machineID = fn }
}

// WithCheckMachineID 校验机器 ID，返回 false 时 NewGenerator 失败
func WithCheckMachineID(fn func(uint16) bool) Option {
	return func(c *options) { c.checkMachineID = fn }
}

// WithMaxWaitDuration NewWithRetry 遇到时钟回拨时的最长等待，0 表示不等待
func WithMaxWaitDuration(d time.Duration) Option {
	return func(c *options) {
		c.maxWaitDuration = d
		c.maxWaitSet = true
	}
}

// WithRetryInterval 时钟回拨重试间隔
func WithRetryInterval(d time.Duration) Option {
	return func(c *options) {
		c.retryInterval = d
		c.retryIntervalSet = true
	}
}
