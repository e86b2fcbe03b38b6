// rsemctl 是 rsemaphore 分布式信号量的命令行工具。
//
// 用法:
//
//	rsemctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config      配置文件（.yaml/.yml/.json），命令行参数优先
//	-r, --redis       Redis 地址 (默认: 127.0.0.1:6379)
//	    --password    Redis 密码
//	    --db          Redis DB
//	-k, --key         信号量名称 (默认: default)
//	-n, --capacity    池容量 (默认: 1)
//	    --prefix      Redis 键前缀 (默认: rsemaphore:)
//	    --lock        leader 租约后端: redis | etcd (默认: redis)
//	    --etcd        etcd 地址，可重复
//	    --log-level   日志级别 (debug/info/warn/error)
//	    --log-format  日志格式 (text/json)
//	    --log-file    日志文件，设置后按大小轮转
//	-t, --timeout     单条命令超时 (默认: 30s)；hold/demo/watch 不受限
//
// 命令:
//
//	hold [--for dur]              占用一个名额直到信号或时长耗尽，然后释放
//	release <token>               把令牌从 processing 移回 available
//	inspect [--tokens] [--json]   查看池状态
//	demo --workers N --hold dur   N 个 worker 并发占用，统计最大并发
//	watch --interval dur          周期打印池状态
//
// 退出码:
//
//	0: 成功（release 命令: 令牌已移回或本就不在 processing 中）
//	1: 运行时错误（连接失败、获取超时等）
//	2: 参数错误（缺少参数、未知 flag、配置非法等）
//
// 示例:
//
//	rsemctl -k jobs -n 3 hold --for 10s
//	rsemctl -k jobs inspect --tokens --json
//	rsemctl -k jobs -n 3 demo --workers 10 --hold 200ms
//	rsemctl -c rsemctl.yaml watch --interval 500ms
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

// defaultTimeout 单条命令默认超时。
const defaultTimeout = 30 * time.Second

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD) -X main.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	setupSignalHandler(cancel)

	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// createApp 创建 CLI 应用。
func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "rsemctl",
		Usage:     "Redis 列表令牌分布式信号量命令行工具",
		Version:   fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags:     globalFlags(),
		Commands:  createCommands(),
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(stderr, err)
			}
		},
		Description: `rsemctl 通过两个 Redis 列表实现的计数信号量做运维与演示:
available 中的每个元素是一个空闲名额，processing 中的是被占用的名额。
持有 leader 租约的实例周期性补齐丢失的名额。`,
	}
}

// run 执行命令并返回退出码。
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := createApp(stdout, stderr)

	if err := app.Run(ctx, args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		if isCLIUsageError(err) {
			// flag 解析器已向 stderr 输出错误详情
			return 2
		}
		fmt.Fprintf(stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}

// setupSignalHandler 第一次信号优雅取消，第二次强制退出。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
