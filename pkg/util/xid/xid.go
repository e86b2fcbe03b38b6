package xid

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/sonyflake/v2"
)

var (
	ErrNotInitialized       = errors.New("xid: generator not initialized")
	ErrAlreadyInitialized   = errors.New("xid: generator already initialized")
	ErrClockBackwardTimeout = errors.New("xid: clock backward wait timeout")
	ErrOverTimeLimit        = errors.New("xid: time component overflow")
	ErrInvalidID            = errors.New("xid: invalid id")
	ErrNoPrivateAddress     = errors.New("xid: no private IP address found")
	ErrNilContext           = errors.New("xid: nil context")
	ErrInvalidConfig        = errors.New("xid: invalid config")
	ErrNilGenerator         = errors.New("xid: nil generator")
)

const (
	DefaultMaxWaitDuration = 500 * time.Millisecond
	DefaultRetryInterval   = 10 * time.Millisecond
)

// Generator 基于 sonyflake 的 ID 生成器，并发安全
type Generator struct {
	next            func() (int64, error)
	maxWaitDuration time.Duration
	retryInterval   time.Duration
}

// NewGenerator 创建生成器
func NewGenerator(opts ...Option) (*Generator, error) {
	cfg := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.maxWaitDuration < 0 || cfg.retryInterval < 0 {
		return nil, fmt.Errorf("%w: durations must be non-negative", ErrInvalidConfig)
	}

	machineID := cfg.machineID
	if machineID == nil {
		machineID = DefaultMachineID
	}
	settings := sonyflake.Settings{
		MachineID: func() (int, error) {
			id, err := machineID()
			return int(id), err
		},
	}
	if cfg.checkMachineID != nil {
		settings.CheckMachineID = func(id int) bool {
			return cfg.checkMachineID(uint16(id))
		}
	}

	sf, err := sonyflake.New(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	g := &Generator{
		next:            sf.NextID,
		maxWaitDuration: DefaultMaxWaitDuration,
		retryInterval:   DefaultRetryInterval,
	}
	if cfg.maxWaitSet {
		g.maxWaitDuration = cfg.maxWaitDuration
	}
	if cfg.retryIntervalSet {
		g.retryInterval = cfg.retryInterval
	}
	return g, nil
}

// New 生成一个 ID，时钟回拨时直接返回错误
func (g *Generator) New() (int64, error) {
	if g == nil || g.next == nil {
		return 0, ErrNilGenerator
	}
	id, err := g.next()
	if errors.Is(err, sonyflake.ErrOverTimeLimit) {
		return 0, fmt.Errorf("%w: %w", ErrOverTimeLimit, err)
	}
	return id, err
}

// NewWithRetry 生成一个 ID，时钟回拨时在 maxWaitDuration 内按 retryInterval 重试
func (g *Generator) NewWithRetry(ctx context.Context) (int64, error) {
	if g == nil || g.next == nil {
		return 0, ErrNilGenerator
	}
	if ctx == nil {
		return 0, ErrNilContext
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(g.maxWaitDuration)
	for {
		id, err := g.New()
		if err == nil || errors.Is(err, ErrOverTimeLimit) {
			return id, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, fmt.Errorf("%w: %w", ErrClockBackwardTimeout, err)
		}
		timer := time.NewTimer(min(g.retryInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
}

// NewString 以 36 进制字符串返回 ID
func (g *Generator) NewString() (string, error) {
	id, err := g.New()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 36), nil
}

// NewStringWithRetry NewWithRetry 的 36 进制字符串版本
func (g *Generator) NewStringWithRetry(ctx context.Context) (string, error) {
	id, err := g.NewWithRetry(ctx)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 36), nil
}

// Parse 解析 NewString 生成的字符串
func Parse(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 36, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidID, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: value must be positive, got %d", ErrInvalidID, id)
	}
	return id, nil
}

// =============================================================================
// 全局生成器
// =============================================================================

var (
	defaultGen atomic.Pointer[Generator]
	initMu     sync.Mutex
	initFailed bool
)

// Init 以指定配置初始化全局生成器，只能成功一次。
// 未调用 Init 时，首次使用全局函数会以默认配置自动初始化。
func Init(opts ...Option) error {
	initMu.Lock()
	defer initMu.Unlock()
	if defaultGen.Load() != nil {
		return ErrAlreadyInitialized
	}
	gen, err := NewGenerator(opts...)
	if err != nil {
		initFailed = true
		return err
	}
	initFailed = false
	defaultGen.Store(gen)
	return nil
}

func defaultGenerator() (*Generator, error) {
	if gen := defaultGen.Load(); gen != nil {
		return gen, nil
	}
	initMu.Lock()
	defer initMu.Unlock()
	if gen := defaultGen.Load(); gen != nil {
		return gen, nil
	}
	// 显式 Init 失败后不静默回退到默认配置
	if initFailed {
		return nil, ErrNotInitialized
	}
	gen, err := NewGenerator()
	if err != nil {
		return nil, err
	}
	defaultGen.Store(gen)
	return gen, nil
}

// NewString 使用全局生成器
func NewString() (string, error) {
	gen, err := defaultGenerator()
	if err != nil {
		return "", err
	}
	return gen.NewString()
}

// NewStringWithRetry 使用全局生成器，xsemaphore 默认以它生成令牌代际标签
func NewStringWithRetry(ctx context.Context) (string, error) {
	gen, err := defaultGenerator()
	if err != nil {
		return "", err
	}
	return gen.NewStringWithRetry(ctx)
}

// resetDefault 仅用于测试
func resetDefault() {
	initMu.Lock()
	defaultGen.Store(nil)
	initFailed = false
	initMu.Unlock()
}
