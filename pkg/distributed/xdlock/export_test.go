package xdlock

import clientv3 "go.etcd.io/etcd/client/v3"

// EtcdSessionTTL 应用选项后得到的 Session TTL（秒）
func EtcdSessionTTL(opts ...EtcdFactoryOption) int {
	o := defaultEtcdFactoryOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o.TTL
}

// EtcdSessionLease 返回 etcd 工厂当前 Session 的 Lease
func EtcdSessionLease(f Factory) clientv3.LeaseID {
	ef := f.(*etcdFactory)
	ef.mu.Lock()
	defer ef.mu.Unlock()
	return ef.session.Lease()
}
