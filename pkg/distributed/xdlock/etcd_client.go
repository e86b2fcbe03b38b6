package xdlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// =============================================================================
// etcd 客户端配置
// =============================================================================

// EtcdConfig etcd 客户端配置，支持 JSON/YAML 反序列化。
type EtcdConfig struct {
	Endpoints            []string      `json:"endpoints" yaml:"endpoints" koanf:"endpoints"`
	Username             string        `json:"username" yaml:"username" koanf:"username"`
	Password             string        `json:"password" yaml:"password" koanf:"password"`
	DialTimeout          time.Duration `json:"dialTimeout" yaml:"dialTimeout" koanf:"dialTimeout"`
	DialKeepAliveTime    time.Duration `json:"dialKeepAliveTime" yaml:"dialKeepAliveTime" koanf:"dialKeepAliveTime"`
	DialKeepAliveTimeout time.Duration `json:"dialKeepAliveTimeout" yaml:"dialKeepAliveTimeout" koanf:"dialKeepAliveTimeout"`
}

const (
	defaultDialTimeout          = 5 * time.Second
	defaultDialKeepAliveTime    = 10 * time.Second
	defaultDialKeepAliveTimeout = 3 * time.Second
)

// DefaultEtcdConfig 返回默认配置。
func DefaultEtcdConfig() *EtcdConfig {
	return &EtcdConfig{
		DialTimeout:          defaultDialTimeout,
		DialKeepAliveTime:    defaultDialKeepAliveTime,
		DialKeepAliveTimeout: defaultDialKeepAliveTimeout,
	}
}

// Validate 校验配置，至少需要一个非空 endpoint。
func (c *EtcdConfig) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	for _, ep := range c.Endpoints {
		if strings.TrimSpace(ep) != "" {
			return nil
		}
	}
	return ErrNoEndpoints
}

func (c *EtcdConfig) clientConfig(ctx context.Context) clientv3.Config {
	cfg := clientv3.Config{
		Endpoints:            c.Endpoints,
		Username:             c.Username,
		Password:             c.Password,
		DialTimeout:          c.DialTimeout,
		DialKeepAliveTime:    c.DialKeepAliveTime,
		DialKeepAliveTimeout: c.DialKeepAliveTimeout,
		Context:              ctx,
		RejectOldCluster:     true,
		PermitWithoutStream:  true,
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.DialKeepAliveTime <= 0 {
		cfg.DialKeepAliveTime = defaultDialKeepAliveTime
	}
	if cfg.DialKeepAliveTimeout <= 0 {
		cfg.DialKeepAliveTimeout = defaultDialKeepAliveTimeout
	}
	return cfg
}

// =============================================================================
// etcd 客户端选项
// =============================================================================

type etcdClientOptions struct {
	Context       context.Context
	HealthCheck   bool
	HealthTimeout time.Duration
}

func defaultEtcdClientOptions() *etcdClientOptions {
	return &etcdClientOptions{
		Context:       context.Background(),
		HealthTimeout: 10 * time.Second,
	}
}

// EtcdClientOption 定义 etcd 客户端的配置选项。
type EtcdClientOption func(*etcdClientOptions)

// WithEtcdClientContext 设置客户端上下文。
func WithEtcdClientContext(ctx context.Context) EtcdClientOption {
	return func(o *etcdClientOptions) {
		if ctx != nil {
			o.Context = ctx
		}
	}
}

// WithEtcdHealthCheck 创建后执行一次读取验证连接。
func WithEtcdHealthCheck(enabled bool, timeout time.Duration) EtcdClientOption {
	return func(o *etcdClientOptions) {
		o.HealthCheck = enabled
		if timeout > 0 {
			o.HealthTimeout = timeout
		}
	}
}

// =============================================================================
// etcd 客户端创建
// =============================================================================

// NewEtcdClient 根据配置创建 etcd 客户端，调用方负责关闭。
func NewEtcdClient(config *EtcdConfig, opts ...EtcdClientOption) (*clientv3.Client, error) {
	if config == nil {
		return nil, ErrNilConfig
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	options := defaultEtcdClientOptions()
	for _, opt := range opts {
		opt(options)
	}

	client, err := clientv3.New(config.clientConfig(options.Context))
	if err != nil {
		return nil, fmt.Errorf("xdlock: %w", err)
	}

	if options.HealthCheck {
		ctx, cancel := context.WithTimeout(options.Context, options.HealthTimeout)
		defer cancel()
		if _, err := client.Get(ctx, "health-check-key", clientv3.WithCountOnly()); err != nil {
			return nil, errors.Join(fmt.Errorf("xdlock: health check: %w", err), client.Close())
		}
	}

	return client, nil
}

// NewEtcdFactoryFromConfig 等同于 NewEtcdClient + NewEtcdFactory。
// 返回的 client 需要调用方负责关闭。
func NewEtcdFactoryFromConfig(
	config *EtcdConfig,
	clientOpts []EtcdClientOption,
	factoryOpts ...EtcdFactoryOption,
) (Factory, *clientv3.Client, error) {
	client, err := NewEtcdClient(config, clientOpts...)
	if err != nil {
		return nil, nil, err
	}

	factory, err := NewEtcdFactory(client, factoryOpts...)
	if err != nil {
		return nil, nil, errors.Join(err, client.Close())
	}

	return factory, client, nil
}
