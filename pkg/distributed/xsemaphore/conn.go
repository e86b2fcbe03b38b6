package xsemaphore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// 连接能力接口
// =============================================================================

// BlockingConn 阻塞连接需要的能力：只发 BLMOVE。
//
// 阻塞命令执行期间连接无法处理其他命令，因此必须与 CommandConn 分离。
type BlockingConn interface {
	BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd
}

// CommandConn 命令连接需要的能力：Lua 脚本、列表长度/内容查询和 PING。
//
// redis.Scripter 覆盖 Eval/EvalSha/EvalRO/EvalShaRO/ScriptExists/ScriptLoad，
// 便于直接使用 redis.Script 的 EVALSHA + NOSCRIPT 回退。
type CommandConn interface {
	redis.Scripter
	LLen(ctx context.Context, key string) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// 编译期检查：go-redis 的通用客户端同时满足两种能力
var (
	_ BlockingConn = (redis.UniversalClient)(nil)
	_ CommandConn  = (redis.UniversalClient)(nil)
)

// Connections 信号量使用的两条 Redis 连接。
//
// 典型用法是同一地址创建两个 *redis.Client：
//
//	conns := xsemaphore.Connections{
//	    Blocking: redis.NewClient(&redis.Options{Addr: addr, PoolSize: 1}),
//	    Command:  redis.NewClient(&redis.Options{Addr: addr}),
//	}
//
// 两个句柄的生命周期由调用方管理，Semaphore.Close 不会关闭它们。
type Connections struct {
	// Blocking 专用于 BLMOVE 的阻塞连接，只由本实例的排队协程使用。
	Blocking BlockingConn

	// Command 用于补齐脚本、释放脚本、查询和健康检查，可在实例内共享。
	Command CommandConn
}

// validate 校验两条连接：非 nil 且不是同一个句柄。
func (c Connections) validate() error {
	if isNilConn(c.Blocking) || isNilConn(c.Command) {
		return ErrNilClient
	}
	if sameHandle(c.Blocking, c.Command) {
		return ErrSharedConnection
	}
	return nil
}

// isNilConn 同时识别 nil 接口和包着 nil 指针的接口
func isNilConn(c any) bool {
	switch v := c.(type) {
	case nil:
		return true
	case *redis.Client:
		return v == nil
	case *redis.ClusterClient:
		return v == nil
	case *redis.Ring:
		return v == nil
	}
	return false
}

// sameHandle 判断两个接口值是否指向同一个客户端。
// 不可比较的动态类型视为不同句柄。
func sameHandle(a, b any) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
