package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/rsemaphore/pkg/config/xconf"
	"github.com/omeyang/rsemaphore/pkg/distributed/xdlock"
	"github.com/omeyang/rsemaphore/pkg/distributed/xsemaphore"
	"github.com/omeyang/rsemaphore/pkg/observability/xlog"
	"github.com/omeyang/rsemaphore/pkg/observability/xrotate"
)

// =============================================================================
// 配置
// =============================================================================

// 租约后端
const (
	lockBackendRedis = "redis"
	lockBackendEtcd  = "etcd"
)

// Config rsemctl 的完整配置，可由 YAML/JSON 文件加载，命令行参数覆盖文件值。
//
//	redis:
//	  addr: 127.0.0.1:6379
//	semaphore:
//	  key: jobs
//	  capacity: 3
//	  lease_ttl: 2s
//	lock:
//	  backend: etcd
//	  etcd:
//	    endpoints: [127.0.0.1:2379]
//	log:
//	  level: info
//	  file: /var/log/rsemctl.log
type Config struct {
	Redis     RedisConfig     `koanf:"redis"`
	Semaphore SemaphoreConfig `koanf:"semaphore"`
	Lock      LockConfig      `koanf:"lock"`
	Log       LogConfig       `koanf:"log"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// SemaphoreConfig 信号量参数，零值表示使用 xsemaphore 的默认值
type SemaphoreConfig struct {
	Key          string        `koanf:"key"`
	Capacity     int           `koanf:"capacity"`
	Prefix       string        `koanf:"prefix"`
	LeaseTTL     time.Duration `koanf:"lease_ttl"`
	BlockTimeout time.Duration `koanf:"block_timeout"`
	// MachineID 代际 ID 的 sonyflake 机器号，0 表示自动探测。
	MachineID uint16 `koanf:"machine_id"`
}

// LockConfig leader 租约后端
type LockConfig struct {
	Backend string            `koanf:"backend"`
	Etcd    xdlock.EtcdConfig `koanf:"etcd"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
}

func defaultConfig() *Config {
	return &Config{
		Redis:     RedisConfig{Addr: "127.0.0.1:6379"},
		Semaphore: SemaphoreConfig{Key: "default", Capacity: 1},
		Lock:      LockConfig{Backend: lockBackendRedis, Etcd: *xdlock.DefaultEtcdConfig()},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// validate 只校验 CLI 自身的约束，键名和租约参数交给 xsemaphore.New
func (c *Config) validate() error {
	if strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("redis 地址不能为空")
	}
	if c.Semaphore.Capacity <= 0 {
		return fmt.Errorf("capacity 必须大于 0，当前 %d", c.Semaphore.Capacity)
	}
	switch c.Lock.Backend {
	case lockBackendRedis:
	case lockBackendEtcd:
		if err := c.Lock.Etcd.Validate(); err != nil {
			return fmt.Errorf("etcd 后端配置无效: %w", err)
		}
	default:
		return fmt.Errorf("未知的租约后端 %q（可选: redis, etcd）", c.Lock.Backend)
	}
	return nil
}

// semaphoreOptions 把配置转换为 xsemaphore 选项，零值不下发
func (c *Config) semaphoreOptions() []xsemaphore.Option {
	var opts []xsemaphore.Option
	if c.Semaphore.Prefix != "" {
		opts = append(opts, xsemaphore.WithKeyPrefix(c.Semaphore.Prefix))
	}
	if c.Semaphore.LeaseTTL > 0 {
		opts = append(opts, xsemaphore.WithLeaseTTL(c.Semaphore.LeaseTTL))
	}
	if c.Semaphore.BlockTimeout > 0 {
		opts = append(opts, xsemaphore.WithBlockTimeout(c.Semaphore.BlockTimeout))
	}
	return opts
}

// leaseTTL 实际使用的 leader 租约时长 T
func (c *Config) leaseTTL() time.Duration {
	if c.Semaphore.LeaseTTL > 0 {
		return c.Semaphore.LeaseTTL
	}
	return xsemaphore.DefaultLeaseTTL
}

// etcdClientOptions 连接 etcd 时先做一次读取，地址错误在启动时暴露
func (c *Config) etcdClientOptions(ctx context.Context) []xdlock.EtcdClientOption {
	return []xdlock.EtcdClientOption{
		xdlock.WithEtcdClientContext(ctx),
		xdlock.WithEtcdHealthCheck(true, c.Lock.Etcd.DialTimeout),
	}
}

// etcdFactoryOptions etcd Session 的 TTL 跟随租约时长 T，
// leader 崩溃后其他实例在约 T 后接管
func (c *Config) etcdFactoryOptions() []xdlock.EtcdFactoryOption {
	return []xdlock.EtcdFactoryOption{xdlock.WithEtcdTTL(c.leaseTTL())}
}

// =============================================================================
// 加载
// =============================================================================

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "配置文件（.yaml/.yml/.json）",
			Sources: cli.EnvVars("RSEMCTL_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "redis",
			Aliases: []string{"r"},
			Usage:   "Redis 地址",
			Value:   "127.0.0.1:6379",
			Sources: cli.EnvVars("RSEMCTL_REDIS"),
		},
		&cli.StringFlag{
			Name:    "password",
			Usage:   "Redis 密码",
			Sources: cli.EnvVars("RSEMCTL_REDIS_PASSWORD"),
		},
		&cli.IntFlag{
			Name:  "db",
			Usage: "Redis DB",
		},
		&cli.StringFlag{
			Name:    "key",
			Aliases: []string{"k"},
			Usage:   "信号量名称",
			Value:   "default",
			Sources: cli.EnvVars("RSEMCTL_KEY"),
		},
		&cli.IntFlag{
			Name:    "capacity",
			Aliases: []string{"n"},
			Usage:   "池容量",
			Value:   1,
		},
		&cli.StringFlag{
			Name:  "prefix",
			Usage: "Redis 键前缀",
			Value: xsemaphore.DefaultKeyPrefix,
		},
		&cli.StringFlag{
			Name:  "lock",
			Usage: "leader 租约后端: redis | etcd",
			Value: lockBackendRedis,
		},
		&cli.StringSliceFlag{
			Name:    "etcd",
			Usage:   "etcd 地址（--lock etcd 时使用），可重复",
			Sources: cli.EnvVars("RSEMCTL_ETCD"),
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "日志级别 (debug/info/warn/error)",
			Value: "info",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "日志格式 (text/json)",
			Value: "text",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "日志文件，设置后按大小轮转",
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "单条命令超时",
			Value:   defaultTimeout,
		},
	}
}

// loadConfig 默认值 < 配置文件 < 命令行参数/环境变量。
// 返回的 xconf.Config 在未指定文件时为 nil。
func loadConfig(cmd *cli.Command) (*Config, xconf.Config, error) {
	cfg := defaultConfig()

	var file xconf.Config
	if path := cmd.String("config"); path != "" {
		var err error
		file, err = xconf.New(path)
		if err != nil {
			return nil, nil, &usageError{msg: fmt.Sprintf("加载配置文件失败: %v", err)}
		}
		if err := file.Unmarshal("", cfg); err != nil {
			return nil, nil, &usageError{msg: fmt.Sprintf("解析配置文件失败: %v", err)}
		}
	}

	applyFlags(cmd, cfg)

	if err := cfg.validate(); err != nil {
		return nil, nil, &usageError{msg: err.Error()}
	}
	return cfg, file, nil
}

// applyFlags 仅覆盖显式设置的参数，未设置的保留文件值
func applyFlags(cmd *cli.Command, cfg *Config) {
	if cmd.IsSet("redis") {
		cfg.Redis.Addr = cmd.String("redis")
	}
	if cmd.IsSet("password") {
		cfg.Redis.Password = cmd.String("password")
	}
	if cmd.IsSet("db") {
		cfg.Redis.DB = cmd.Int("db")
	}
	if cmd.IsSet("key") {
		cfg.Semaphore.Key = cmd.String("key")
	}
	if cmd.IsSet("capacity") {
		cfg.Semaphore.Capacity = cmd.Int("capacity")
	}
	if cmd.IsSet("prefix") {
		cfg.Semaphore.Prefix = cmd.String("prefix")
	}
	if cmd.IsSet("lock") {
		cfg.Lock.Backend = cmd.String("lock")
	}
	if cmd.IsSet("etcd") {
		cfg.Lock.Etcd.Endpoints = cmd.StringSlice("etcd")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}
	if cmd.IsSet("log-file") {
		cfg.Log.File = cmd.String("log-file")
	}
}

// buildLogger 按配置构建日志记录器，w 为未设置日志文件时的输出
func buildLogger(cfg LogConfig, w io.Writer) (xlog.LoggerWithLevel, func() error, error) {
	b := xlog.New().
		SetOutput(w).
		SetLevelString(cfg.Level).
		SetFormat(cfg.Format)

	if cfg.File != "" {
		var opts []xrotate.Option
		if cfg.MaxSizeMB > 0 {
			opts = append(opts, xrotate.WithMaxSize(cfg.MaxSizeMB))
		}
		if cfg.MaxBackups > 0 {
			opts = append(opts, xrotate.WithMaxBackups(cfg.MaxBackups))
		}
		b = b.SetRotation(cfg.File, opts...)
	}

	logger, cleanup, err := b.Build()
	if err != nil {
		return nil, nil, &usageError{msg: fmt.Sprintf("日志配置无效: %v", err)}
	}
	return logger, cleanup, nil
}

// watchLogLevel 配置文件变更时热更新日志级别；解析失败保留当前级别
func watchLogLevel(ctx context.Context, file xconf.Config, logger xlog.LoggerWithLevel) (*xconf.Watcher, error) {
	return xconf.Watch(file, func(c xconf.Config, err error) {
		if err != nil {
			logger.Warn(ctx, "config reload failed", xlog.Err(err))
			return
		}
		raw := c.Client().String("log.level")
		if raw == "" {
			return
		}
		level, err := xlog.ParseLevel(raw)
		if err != nil {
			logger.Warn(ctx, "ignore invalid log level", slog.String("level", raw))
			return
		}
		if level != logger.GetLevel() {
			logger.SetLevel(level)
			logger.Info(ctx, "log level changed", slog.String("level", level.String()))
		}
	})
}
