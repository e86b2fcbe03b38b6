package xrun

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/rsemaphore/pkg/observability/xlog"
)

// Group 一组协同退出的 goroutine
type Group struct {
	eg       *errgroup.Group
	ctx      context.Context
	causeCtx context.Context
	cancel   context.CancelCauseFunc
	logger   xlog.Logger
	name     string
}

// NewGroup 创建 Group，返回的 ctx 在任一函数出错或 Cancel 时取消
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := applyOptions(opts)

	causeCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(causeCtx)
	return &Group{
		eg:       eg,
		ctx:      egCtx,
		causeCtx: causeCtx,
		cancel:   cancel,
		logger:   o.logger,
		name:     o.name,
	}, egCtx
}

func applyOptions(opts []Option) *groupOptions {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = xlog.Default()
	}
	return o
}

// Go 启动 fn
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		if fn == nil {
			return ErrNilFunc
		}
		return fn(g.ctx)
	})
}

// GoWithName 启动 fn，并记录其启停
func (g *Group) GoWithName(name string, fn func(ctx context.Context) error) {
	attrs := []slog.Attr{slog.String("group", g.name), slog.String("service", name)}
	g.Go(func(ctx context.Context) error {
		if fn == nil {
			return ErrNilFunc
		}
		g.logger.Debug(ctx, "service starting", attrs...)
		err := fn(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.logger.Warn(ctx, "service exited with error", append(attrs, xlog.Err(err))...)
		} else {
			g.logger.Debug(ctx, "service stopped", attrs...)
		}
		return err
	})
}

// Wait 等待所有函数返回
//
// 由 Cancel(cause) 或信号触发的退出返回 cause；
// 仅因 ctx 取消而返回 context.Canceled 的情况视为正常退出。
func (g *Group) Wait() error {
	defer g.cancel(nil)

	err := g.eg.Wait()

	cause := context.Cause(g.causeCtx)
	if g.causeCtx.Err() != nil && cause != nil && !errors.Is(cause, context.Canceled) {
		if err == nil || errors.Is(err, context.Canceled) {
			return cause
		}
	}
	if errors.Is(err, context.Canceled) && g.causeCtx.Err() != nil {
		return nil
	}
	return err
}

// Cancel 以 cause 取消 Group
func (g *Group) Cancel(cause error) {
	g.cancel(cause)
}

func (g *Group) Context() context.Context {
	return g.ctx
}

// Run 运行 services，默认监听 SIGINT/SIGTERM
func Run(ctx context.Context, services ...func(ctx context.Context) error) error {
	return RunWithOptions(ctx, nil, services...)
}

// RunWithOptions 同 Run，可配置信号与日志
func RunWithOptions(ctx context.Context, opts []Option, services ...func(ctx context.Context) error) error {
	o := applyOptions(opts)
	g, _ := NewGroup(ctx, opts...)

	if !o.noSignalHandler {
		signals := o.signals
		if len(signals) == 0 {
			signals = DefaultSignals()
		}
		g.Go(func(ctx context.Context) error {
			return g.waitSignal(ctx, signals)
		})
	}

	// 所有 service 返回后结束信号监听，否则 Wait 永远不会返回
	var running sync.WaitGroup
	running.Add(len(services))
	for _, svc := range services {
		g.Go(func(ctx context.Context) error {
			defer running.Done()
			if svc == nil {
				return ErrNilFunc
			}
			return svc(ctx)
		})
	}
	go func() {
		running.Wait()
		g.cancel(nil)
	}()
	return g.Wait()
}

func (g *Group) waitSignal(ctx context.Context, signals []os.Signal) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)
	defer signal.Stop(sigCh)

	var sig os.Signal
	select {
	case sig = <-testSigChan(ctx):
	case sig = <-sigCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	g.logger.Info(ctx, "received signal",
		slog.String("group", g.name), slog.String("signal", sig.String()))
	g.cancel(&SignalError{Signal: sig})
	return nil
}

type testSigChanKey struct{}

// testSigChan 测试通过 ctx 注入信号，未注入时返回 nil（永不就绪）
func testSigChan(ctx context.Context) <-chan os.Signal {
	c, _ := ctx.Value(testSigChanKey{}).(<-chan os.Signal)
	return c
}
