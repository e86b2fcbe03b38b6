package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/omeyang/rsemaphore/pkg/config/xconf"
	"github.com/omeyang/rsemaphore/pkg/distributed/xdlock"
	"github.com/omeyang/rsemaphore/pkg/distributed/xsemaphore"
	"github.com/omeyang/rsemaphore/pkg/observability/xlog"
	"github.com/omeyang/rsemaphore/pkg/util/xid"
)

// closeTimeout 关闭信号量与连接的上限
const closeTimeout = 5 * time.Second

// session 一次命令执行持有的全部资源
type session struct {
	cfg    *Config
	file   xconf.Config
	logger xlog.LoggerWithLevel
	sem    *xsemaphore.Semaphore

	blocking *redis.Client
	command  *redis.Client
	locker   xdlock.Factory
	etcd     *clientv3.Client
	logClose func() error
}

// openSession 加载配置、构建日志、连接 Redis（以及 etcd）并创建信号量。
// observer 为 true 时信号量不参与 leader 竞选。任一步骤失败都会回收已创建的资源。
func openSession(ctx context.Context, cmd *cli.Command, observer bool) (_ *session, err error) {
	cfg, file, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, logClose, err := buildLogger(cfg.Log, cmd.Root().ErrWriter)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, file: file, logger: logger, logClose: logClose}
	defer func() {
		if err != nil {
			err = errors.Join(err, s.close())
		}
	}()

	if id := cfg.Semaphore.MachineID; id != 0 {
		err := xid.Init(xid.WithMachineID(func() (uint16, error) { return id, nil }))
		if err != nil && !errors.Is(err, xid.ErrAlreadyInitialized) {
			return nil, fmt.Errorf("初始化代际 ID 生成器: %w", err)
		}
	}

	// 阻塞连接只服务 BLMOVE，一个连接足够
	s.blocking = redis.NewClient(s.redisOptions(1))
	s.command = redis.NewClient(s.redisOptions(0))

	opts := append(cfg.semaphoreOptions(), xsemaphore.WithLogger(logger))
	if observer {
		opts = append(opts, xsemaphore.WithObserver())
	}
	if cfg.Lock.Backend == lockBackendEtcd {
		factory, client, err := xdlock.NewEtcdFactoryFromConfig(&cfg.Lock.Etcd,
			cfg.etcdClientOptions(ctx), cfg.etcdFactoryOptions()...)
		if err != nil {
			return nil, fmt.Errorf("连接 etcd: %w", err)
		}
		s.locker, s.etcd = factory, client
		opts = append(opts, xsemaphore.WithLocker(factory))
	}

	conns := xsemaphore.Connections{Blocking: s.blocking, Command: s.command}
	s.sem, err = xsemaphore.New(cfg.Semaphore.Key, cfg.Semaphore.Capacity, conns, opts...)
	if err != nil {
		if errors.Is(err, xsemaphore.ErrInvalidKey) || errors.Is(err, xsemaphore.ErrEmptyKey) ||
			errors.Is(err, xsemaphore.ErrInvalidOption) {
			return nil, &usageError{msg: err.Error()}
		}
		return nil, err
	}

	logger.Debug(ctx, "session opened",
		xsemaphore.AttrKey(cfg.Semaphore.Key),
		xsemaphore.AttrCapacity(cfg.Semaphore.Capacity),
		xlog.Component(cfg.Lock.Backend))
	return s, nil
}

func (s *session) redisOptions(poolSize int) *redis.Options {
	return &redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Username: s.cfg.Redis.Username,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
		PoolSize: poolSize,
	}
}

// close 依次关闭信号量、租约后端、Redis 连接和日志文件，可重复调用
func (s *session) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	var errs []error
	if s.sem != nil {
		errs = append(errs, s.sem.Close(ctx))
		s.sem = nil
	}
	if s.locker != nil {
		errs = append(errs, s.locker.Close(ctx))
		s.locker = nil
	}
	if s.etcd != nil {
		errs = append(errs, s.etcd.Close())
		s.etcd = nil
	}
	for _, c := range []**redis.Client{&s.blocking, &s.command} {
		if *c != nil {
			errs = append(errs, (*c).Close())
			*c = nil
		}
	}
	if s.logClose != nil {
		errs = append(errs, s.logClose())
		s.logClose = nil
	}
	return errors.Join(errs...)
}

type sessionFunc func(ctx context.Context, s *session) error

// withSession 打开参与 leader 竞选的会话、执行 fn 并关闭会话
func withSession(ctx context.Context, cmd *cli.Command, fn sessionFunc) error {
	return runSession(ctx, cmd, false, fn)
}

// withObserver 同 withSession，但信号量只观察不维护名额池
func withObserver(ctx context.Context, cmd *cli.Command, fn sessionFunc) error {
	return runSession(ctx, cmd, true, fn)
}

func runSession(ctx context.Context, cmd *cli.Command, observer bool, fn sessionFunc) (err error) {
	s, err := openSession(ctx, cmd, observer)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil && err == nil {
			err = fmt.Errorf("关闭会话: %w", cerr)
		}
	}()
	return fn(ctx, s)
}
