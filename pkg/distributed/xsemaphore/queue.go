package xsemaphore

import (
	"container/list"
	"context"
	"errors"
	"sync"

	"github.com/omeyang/rsemaphore/pkg/observability/xlog"
)

// =============================================================================
// 本地排队
// =============================================================================

// outcome 排队协程交给等待者的结果
type outcome struct {
	token Token
	err   error
}

// waiter 一个排队中的 Acquire 调用
type waiter struct {
	ch   chan outcome // 容量 1，投递在队列锁内完成，不会阻塞
	elem *list.Element
}

// admissionQueue 进程内 FIFO 等待队列。
//
// 同一个 Semaphore 实例的 Acquire 按入队顺序拿到令牌。
// 至多一个排队协程在运行：队列由空变为非空时启动，队列再次变空时退出。
type admissionQueue struct {
	mu       sync.Mutex
	waiters  *list.List
	draining bool
	closed   bool

	// startDrain 在队列锁内调用，负责登记并启动排队协程
	startDrain func()
	// onDepth 排队深度变化回调
	onDepth func(delta int64)
}

func newAdmissionQueue(startDrain func(), onDepth func(delta int64)) *admissionQueue {
	return &admissionQueue{
		waiters:    list.New(),
		startDrain: startDrain,
		onDepth:    onDepth,
	}
}

// enqueue 把等待者追加到队尾，必要时启动排队协程
func (q *admissionQueue) enqueue() (*waiter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrSemaphoreClosed
	}
	w := &waiter{ch: make(chan outcome, 1)}
	w.elem = q.waiters.PushBack(w)
	q.onDepth(1)

	if !q.draining {
		q.draining = true
		q.startDrain()
	}
	return w, nil
}

// remove 取消中的等待者把自己移出队列。
// 返回 false 表示排队协程已经把结果投递给它。
func (q *admissionQueue) remove(w *waiter) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if w.elem == nil {
		return false
	}
	q.waiters.Remove(w.elem)
	w.elem = nil
	q.onDepth(-1)
	return true
}

// deliver 把结果交给队首等待者。没有等待者返回 false。
func (q *admissionQueue) deliver(o outcome) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.waiters.Front()
	if front == nil {
		return false
	}
	w := q.waiters.Remove(front).(*waiter)
	w.elem = nil
	q.onDepth(-1)
	w.ch <- o
	return true
}

// idle 队列为空或已关闭时标记排队协程退出并返回 true。
// 判断与清除 draining 在同一把锁内完成，enqueue 不会错过重启。
func (q *admissionQueue) idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.waiters.Len() == 0 {
		q.draining = false
		return true
	}
	return false
}

// close 拒绝后续入队，让所有等待者以 ErrSemaphoreClosed 失败
func (q *admissionQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	for e := q.waiters.Front(); e != nil; e = q.waiters.Front() {
		w := q.waiters.Remove(e).(*waiter)
		w.elem = nil
		q.onDepth(-1)
		w.ch <- outcome{err: ErrSemaphoreClosed}
	}
}

// len 当前排队数
func (q *admissionQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiters.Len()
}

// =============================================================================
// 排队协程
// =============================================================================

// spawnDrain 由 admissionQueue 在锁内调用
func (s *Semaphore) spawnDrain() {
	s.wg.Add(1)
	go s.drain(s.loopCtx)
}

// drain 逐个为队首等待者执行 BLMOVE，直到队列变空或信号量关闭。
//
// BLMOVE 错误只让当前队首失败，其余等待者继续排队。
// 拿到令牌时若已没有等待者（全部取消或已关闭），令牌立即放回。
func (s *Semaphore) drain(ctx context.Context) {
	defer s.wg.Done()

	// Close 先关闭队列再取消 ctx，idle 在关闭后恒为 true
	for !s.queue.idle() {
		tok, err := s.moveOnce(ctx)
		switch {
		case errors.Is(err, errMoveTimeout):
			continue
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			s.logger.Warn(s.logCtx, "move token failed", xlog.Err(err))
			s.queue.deliver(outcome{err: err})
		default:
			if !s.queue.deliver(outcome{token: tok}) {
				s.returnToken(tok)
			}
		}
	}
}
