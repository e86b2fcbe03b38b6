package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/rsemaphore/pkg/distributed/xsemaphore"
	"github.com/omeyang/rsemaphore/pkg/lifecycle/xrun"
	"github.com/omeyang/rsemaphore/pkg/observability/xlog"
)

// exitError 表示需要非零退出码但已完成输出的场景。
// 命令内部已完成所有输出，run 只需设置退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

// usageError 参数或配置错误，退出码 2
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// cliUsageMarkers urfave/cli 与 flag 包的参数错误前缀
var cliUsageMarkers = []string{
	"flag provided but not defined",
	"flag needs an argument",
	"invalid value",
	"invalid boolean",
	"Required flag",
	"No help topic for",
	"command not found",
}

// isCLIUsageError 判断是否为 CLI 框架产生的参数错误
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, m := range cliUsageMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// 内部哨兵：服务按预期结束，映射为成功
var (
	errHoldElapsed = errors.New("hold duration elapsed")
	errWatchDone   = errors.New("watch sample count reached")
)

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createHoldCommand(),
		createReleaseCommand(),
		createInspectCommand(),
		createDemoCommand(),
		createWatchCommand(),
	}
}

// =============================================================================
// hold
// =============================================================================

func createHoldCommand() *cli.Command {
	return &cli.Command{
		Name:  "hold",
		Usage: "占用一个名额，打印令牌，直到信号或时长耗尽后释放",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "for",
				Usage: "持有时长，0 表示直到收到信号",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			holdFor := cmd.Duration("for")
			if holdFor < 0 {
				return &usageError{msg: "--for 不能为负数"}
			}
			return withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				return cmdHold(ctx, s, cmd.Root().Writer, cmd.Duration("timeout"), holdFor,
					!cmd.IsSet("log-level"))
			})
		},
	}
}

// cmdHold 获取阶段受 timeout 约束，持有阶段只由信号或 holdFor 结束。
// hotReload 为 true 且使用了配置文件时，持有期间热更新日志级别。
func cmdHold(ctx context.Context, s *session, w io.Writer, timeout, holdFor time.Duration, hotReload bool) error {
	acqCtx, cancel := context.WithTimeout(ctx, timeout)
	token, err := s.sem.Acquire(acqCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("获取名额: %w", err)
	}
	fmt.Fprintln(w, token)

	services := []func(context.Context) error{holdService(holdFor)}
	if hotReload && s.file != nil {
		watcher, err := watchLogLevel(ctx, s.file, s.logger)
		if err != nil {
			s.logger.Warn(ctx, "config watch disabled", xlog.Err(err))
		} else {
			services = append(services, func(ctx context.Context) error {
				watcher.StartAsync()
				<-ctx.Done()
				return watcher.Stop()
			})
		}
	}

	started := time.Now()
	runErr := xrun.RunWithOptions(ctx,
		[]xrun.Option{xrun.WithLogger(s.logger), xrun.WithName("hold")},
		services...)
	if errors.Is(runErr, errHoldElapsed) || errors.Is(runErr, xrun.ErrSignal) {
		runErr = nil
	}

	// 持有阶段可能因取消结束，释放使用独立的超时
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	res, err := s.sem.Release(relCtx, token)
	if err != nil {
		return errors.Join(runErr, fmt.Errorf("释放名额 %s: %w", token, err))
	}
	s.logger.Info(ctx, "slot released",
		xsemaphore.AttrToken(token),
		slog.Bool("released", res.Released),
		xlog.Duration(time.Since(started)))
	return runErr
}

func holdService(d time.Duration) func(context.Context) error {
	if d == 0 {
		return xrun.WaitForDone()
	}
	return func(ctx context.Context) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return errHoldElapsed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// =============================================================================
// release
// =============================================================================

func createReleaseCommand() *cli.Command {
	return &cli.Command{
		Name:      "release",
		Usage:     "把令牌从 processing 移回 available",
		ArgsUsage: "<token>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return &usageError{msg: "release 需要且只需要一个 token 参数"}
			}
			token := xsemaphore.Token(cmd.Args().First())
			if strings.TrimSpace(string(token)) == "" {
				return &usageError{msg: "token 不能为空"}
			}
			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()
			return withObserver(ctx, cmd, func(ctx context.Context, s *session) error {
				return cmdRelease(ctx, s, cmd.Root().Writer, token)
			})
		},
	}
}

// cmdRelease 令牌不在 processing 中时打印 noop，同样视为成功
func cmdRelease(ctx context.Context, s *session, w io.Writer, token xsemaphore.Token) error {
	res, err := s.sem.Release(ctx, token)
	if err != nil {
		return fmt.Errorf("释放名额: %w", err)
	}
	if res.Released {
		fmt.Fprintln(w, "released")
	} else {
		fmt.Fprintln(w, "noop")
	}
	return nil
}

// =============================================================================
// inspect
// =============================================================================

func createInspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "查看名额池状态",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "tokens",
				Usage: "同时列出令牌",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "以 JSON 输出",
			},
			&cli.BoolFlag{
				Name:  "check",
				Usage: "available+processing 与容量不一致时以退出码 1 结束",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()
			return withObserver(ctx, cmd, func(ctx context.Context, s *session) error {
				return cmdInspect(ctx, s, cmd.Root().Writer, inspectFlags{
					tokens: cmd.Bool("tokens"),
					json:   cmd.Bool("json"),
					check:  cmd.Bool("check"),
				})
			})
		},
	}
}

type inspectFlags struct {
	tokens bool
	json   bool
	check  bool
}

// cmdInspect 设计决策: --check 时名额数与容量不一致返回 exitError，
// 输出照常打印，便于探针和脚本直接判断。
func cmdInspect(ctx context.Context, s *session, w io.Writer, f inspectFlags) error {
	var opts []xsemaphore.QueryOption
	if f.tokens {
		opts = append(opts, xsemaphore.QueryWithTokens())
	}
	st, err := s.sem.Query(ctx, opts...)
	if err != nil {
		return fmt.Errorf("查询名额池: %w", err)
	}

	if f.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(st)
	} else {
		err = printStats(w, st, f.tokens)
	}
	if err != nil {
		return err
	}
	if f.check && st.Available+st.Processing != st.Capacity {
		return &exitError{code: 1}
	}
	return nil
}

func printStats(w io.Writer, st *xsemaphore.Stats, withTokens bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Key:\t%s\n", st.Key)
	fmt.Fprintf(tw, "Capacity:\t%d\n", st.Capacity)
	fmt.Fprintf(tw, "Available:\t%d\n", st.Available)
	fmt.Fprintf(tw, "Processing:\t%d\n", st.Processing)
	if missing := st.Capacity - st.Available - st.Processing; missing > 0 {
		fmt.Fprintf(tw, "Missing:\t%d\t(等待 leader 补齐)\n", missing)
	}
	if withTokens {
		for _, tok := range st.AvailableTokens {
			fmt.Fprintf(tw, "  available\t%s\n", tok)
		}
		for _, tok := range st.ProcessingTokens {
			fmt.Fprintf(tw, "  processing\t%s\n", tok)
		}
	}
	return tw.Flush()
}

// =============================================================================
// demo
// =============================================================================

func createDemoCommand() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "N 个 worker 并发获取、持有、释放，统计耗时与最大并发",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "workers",
				Usage: "worker 数量",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "hold",
				Usage: "每个 worker 的持有时长",
				Value: time.Second,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			workers, hold := cmd.Int("workers"), cmd.Duration("hold")
			if workers <= 0 {
				return &usageError{msg: "--workers 必须大于 0"}
			}
			if hold < 0 {
				return &usageError{msg: "--hold 不能为负数"}
			}
			return withSession(ctx, cmd, func(ctx context.Context, s *session) error {
				rep, err := cmdDemo(ctx, s, &syncWriter{w: cmd.Root().Writer}, workers, hold)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.Root().Writer, rep)
				return nil
			})
		},
	}
}

// demoReport demo 的统计结果
type demoReport struct {
	Workers        int
	Capacity       int
	Hold           time.Duration
	Elapsed        time.Duration
	MaxConcurrency int64
}

func (r demoReport) String() string {
	return fmt.Sprintf("workers=%d capacity=%d hold=%s elapsed=%s max_concurrency=%d",
		r.Workers, r.Capacity, r.Hold, r.Elapsed.Round(time.Millisecond), r.MaxConcurrency)
}

// cmdDemo 每个 worker 的获取等待不设超时，只由 ctx 结束
func cmdDemo(ctx context.Context, s *session, w io.Writer, workers int, hold time.Duration) (demoReport, error) {
	var current, peak atomic.Int64
	g, _ := xrun.NewGroup(ctx, xrun.WithLogger(s.logger), xrun.WithName("demo"))

	start := time.Now()
	for i := range workers {
		name := fmt.Sprintf("worker-%d", i+1)
		g.GoWithName(name, func(ctx context.Context) error {
			token, err := s.sem.Acquire(ctx)
			if err != nil {
				return fmt.Errorf("%s 获取名额: %w", name, err)
			}
			n := current.Add(1)
			storeMax(&peak, n)
			fmt.Fprintf(w, "%s acquired %s after %s\n", name, token, time.Since(start).Round(time.Millisecond))

			holdErr := sleepCtx(ctx, hold)
			current.Add(-1)

			// 先减计数再释放：释放后名额可能立刻被其他 worker 拿到
			relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
			defer cancel()
			if _, err := s.sem.Release(relCtx, token); err != nil {
				return fmt.Errorf("%s 释放名额: %w", name, err)
			}
			return holdErr
		})
	}
	if err := g.Wait(); err != nil {
		return demoReport{}, err
	}

	return demoReport{
		Workers:        workers,
		Capacity:       s.sem.Capacity(),
		Hold:           hold,
		Elapsed:        time.Since(start),
		MaxConcurrency: peak.Load(),
	}, nil
}

func storeMax(v *atomic.Int64, n int64) {
	for {
		old := v.Load()
		if n <= old || v.CompareAndSwap(old, n) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// syncWriter 多个 worker 共享输出时按行互斥
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// =============================================================================
// watch
// =============================================================================

func createWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "周期打印 available/processing 数量",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "采样间隔",
				Value: time.Second,
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "采样次数后退出，0 表示直到收到信号",
			},
			&cli.BoolFlag{
				Name:  "lead",
				Usage: "参与 leader 竞选并补齐名额（作为维护进程运行）",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			interval, count := cmd.Duration("interval"), cmd.Int("count")
			if interval <= 0 {
				return &usageError{msg: "--interval 必须大于 0"}
			}
			if count < 0 {
				return &usageError{msg: "--count 不能为负数"}
			}
			fn := func(ctx context.Context, s *session) error {
				return cmdWatch(ctx, s, cmd.Root().Writer, interval, count, cmd.Duration("timeout"))
			}
			if cmd.Bool("lead") {
				return withSession(ctx, cmd, fn)
			}
			return withObserver(ctx, cmd, fn)
		},
	}
}

func cmdWatch(ctx context.Context, s *session, w io.Writer, interval time.Duration, count int, timeout time.Duration) error {
	var samples int
	sample := func(ctx context.Context) error {
		qctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		st, err := s.sem.Query(qctx)
		if err != nil {
			// 单次采样失败不退出，Redis 恢复后继续输出
			fmt.Fprintf(w, "%s error=%q\n", time.Now().Format(time.TimeOnly), err.Error())
		} else {
			fmt.Fprintf(w, "%s available=%d processing=%d capacity=%d leader=%t\n",
				time.Now().Format(time.TimeOnly), st.Available, st.Processing, st.Capacity, st.Leader)
		}
		samples++
		if count > 0 && samples >= count {
			return errWatchDone
		}
		return nil
	}

	err := xrun.RunWithOptions(ctx,
		[]xrun.Option{xrun.WithLogger(s.logger), xrun.WithName("watch")},
		xrun.Ticker(interval, true, sample))
	if errors.Is(err, errWatchDone) || errors.Is(err, xrun.ErrSignal) {
		return nil
	}
	return err
}
