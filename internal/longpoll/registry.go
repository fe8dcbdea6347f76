// Package longpoll 实现长轮询通知核心：Channel Registry 按
// (团队, 逻辑聊天日) 维护挂起的 poll 等待者，新消息到达时立即唤醒它们。
package longpoll

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"team-caltalk/internal/domain"
)

// DefaultTimeout 是等待者的默认过期时长。
// 过期后客户端应立即带同一游标重新发起 poll (hanging GET 模式)。
const DefaultTimeout = 30 * time.Second

// ChannelKey 标识一个逻辑频道：消息和等待者都按 (团队, 聊天日) 分组。
type ChannelKey struct {
	TeamID     uint
	TargetDate string // domain.TargetDateLayout 格式
}

// Result 是一次 poll 的最终结果，由 resolve 或 expire 填充。
type Result struct {
	Messages []domain.Message
	HasNew   bool
}

// Waiter 表示一个挂起的 poll 请求。
// 每个等待者恰好被 {resolve, expire, cancel} 之一移除一次，
// 结果通过一次性缓冲通道投递，注册表对传输层一无所知。
type Waiter struct {
	key     ChannelKey
	sinceID uint
	done    chan Result // 容量 1，至多写入一次
	timer   *time.Timer
}

// Registry 维护挂起等待者的集合并协调唤醒。
// 内部只有一把互斥锁保护 map 变更，锁内不做任何 I/O。
type Registry struct {
	mu       sync.Mutex
	channels map[ChannelKey]map[*Waiter]struct{}
	timeout  time.Duration
}

// NewRegistry 创建并返回一个新的 Registry 实例。
// timeout <= 0 时使用 DefaultTimeout。
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		channels: make(map[ChannelKey]map[*Waiter]struct{}),
		timeout:  timeout,
	}
}

// Register 在频道下登记一个新的等待者并启动过期定时器。
// 调用者随后必须恰好调用一次 Await (或 Cancel) 来消费这个等待者。
func (r *Registry) Register(key ChannelKey, sinceID uint) *Waiter {
	w := &Waiter{
		key:     key,
		sinceID: sinceID,
		done:    make(chan Result, 1),
	}

	// 定时器必须在等待者对 Resolve 可见之前就位：一旦释放锁，
	// 并发的 Resolve 就可能摘走等待者并调用 timer.Stop()。
	// 定时器回调在独立 goroutine 中触发 expire；
	// remove-if-present 保证与 Resolve/Cancel 竞争时只有一方生效。
	r.mu.Lock()
	w.timer = time.AfterFunc(r.timeout, func() { r.expire(w) })
	waiters, ok := r.channels[key]
	if !ok {
		waiters = make(map[*Waiter]struct{})
		r.channels[key] = waiters
	}
	waiters[w] = struct{}{}
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"team_id":     key.TeamID,
		"target_date": key.TargetDate,
		"since_id":    sinceID,
	}).Debug("Registry: waiter registered")
	return w
}

// Resolve 唤醒频道下当前登记的全部等待者。
// 没有等待者时是 no-op (新消息由下一次 poll 的游标检查捕获)。
// 返回被唤醒的等待者数量。
func (r *Registry) Resolve(key ChannelKey, messages []domain.Message) int {
	if len(messages) == 0 {
		return 0
	}

	r.mu.Lock()
	waiters := r.channels[key]
	// 先摘下整组等待者再解锁，投递不在锁内进行
	woken := make([]*Waiter, 0, len(waiters))
	for w := range waiters {
		woken = append(woken, w)
	}
	delete(r.channels, key)
	r.mu.Unlock()

	if len(woken) == 0 {
		return 0
	}

	for _, w := range woken {
		w.timer.Stop()
		// 按各自游标过滤；done 缓冲为 1 且每个等待者只被移除一次，写入不会阻塞
		fresh := messagesAfter(messages, w.sinceID)
		w.done <- Result{Messages: fresh, HasNew: len(fresh) > 0}
	}

	logrus.WithFields(logrus.Fields{
		"team_id":     key.TeamID,
		"target_date": key.TargetDate,
		"woken":       len(woken),
	}).Debug("Registry: waiters resolved")
	return len(woken)
}

// expire 由等待者自己的定时器触发，以空结果唤醒它。
func (r *Registry) expire(w *Waiter) {
	if !r.remove(w) {
		// 已被 Resolve 或 Cancel 抢先移除
		return
	}
	w.done <- Result{HasNew: false}
}

// Cancel 移除等待者且不投递任何结果 (客户端连接断开)。
func (r *Registry) Cancel(w *Waiter) {
	if w == nil {
		return
	}
	if r.remove(w) {
		w.timer.Stop()
	}
}

// remove 是原子的 remove-if-present 操作，等待者至多一次解决的根基：
// 只有成功移除的一方才允许向 done 写入。
func (r *Registry) remove(w *Waiter) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	waiters, ok := r.channels[w.key]
	if !ok {
		return false
	}
	if _, ok := waiters[w]; !ok {
		return false
	}
	delete(waiters, w)
	if len(waiters) == 0 {
		delete(r.channels, w.key)
	}
	return true
}

// Await 阻塞直到等待者被解决或 ctx 取消。
// ctx 取消时同步注销等待者；若此刻恰好已被 Resolve 抢先，
// 则消费已投递的结果而不是丢弃它。
func (r *Registry) Await(ctx context.Context, w *Waiter) (Result, error) {
	select {
	case res := <-w.done:
		return res, nil
	case <-ctx.Done():
		r.Cancel(w)
		select {
		case res := <-w.done:
			return res, nil
		default:
			return Result{}, ctx.Err()
		}
	}
}

// WaiterCount 返回频道下当前登记的等待者数量 (测试和观测用)。
func (r *Registry) WaiterCount(key ChannelKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels[key])
}

// messagesAfter 返回 ID 大于游标的消息，保持输入顺序。
func messagesAfter(messages []domain.Message, sinceID uint) []domain.Message {
	fresh := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if m.ID > sinceID {
			fresh = append(fresh, m)
		}
	}
	return fresh
}
