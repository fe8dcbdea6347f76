package longpoll // 白盒测试：需要访问 waiter 的内部通道验证至多一次投递

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"team-caltalk/internal/domain"
)

func testKey() ChannelKey {
	return ChannelKey{TeamID: 1, TargetDate: "2024-12-25"}
}

func testMessages(ids ...uint) []domain.Message {
	messages := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		messages = append(messages, domain.Message{
			ID:          id,
			TeamID:      1,
			SenderID:    2,
			Content:     "hello",
			TargetDate:  "2024-12-25",
			MessageType: domain.MessageTypeNormal,
		})
	}
	return messages
}

// --- Resolve ---

func TestRegistry_Resolve_WakesAllWaiters(t *testing.T) {
	// Arrange: 同一频道登记多个等待者
	r := NewRegistry(time.Minute)
	key := testKey()
	waiters := make([]*Waiter, 5)
	for i := range waiters {
		waiters[i] = r.Register(key, 0)
	}
	require.Equal(t, 5, r.WaiterCount(key))

	// Act
	woken := r.Resolve(key, testMessages(1))

	// Assert: 全部被唤醒且注册表清空
	assert.Equal(t, 5, woken)
	assert.Equal(t, 0, r.WaiterCount(key))
	for _, w := range waiters {
		res, err := r.Await(context.Background(), w)
		require.NoError(t, err)
		assert.True(t, res.HasNew)
		require.Len(t, res.Messages, 1)
		assert.Equal(t, uint(1), res.Messages[0].ID)
	}
}

func TestRegistry_Resolve_FiltersByCursor(t *testing.T) {
	// Arrange: 两个等待者持有不同游标
	r := NewRegistry(time.Minute)
	key := testKey()
	behind := r.Register(key, 0)
	caught := r.Register(key, 6)

	// Act: 派发的批次里同时有新旧消息
	r.Resolve(key, testMessages(4, 6, 7))

	// Assert: 各自只看到游标之后的消息
	res, err := r.Await(context.Background(), behind)
	require.NoError(t, err)
	assert.True(t, res.HasNew)
	assert.Len(t, res.Messages, 3)

	res, err = r.Await(context.Background(), caught)
	require.NoError(t, err)
	assert.True(t, res.HasNew)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, uint(7), res.Messages[0].ID)
}

func TestRegistry_Resolve_NoWaitersIsNoop(t *testing.T) {
	r := NewRegistry(time.Minute)

	woken := r.Resolve(testKey(), testMessages(1))

	assert.Equal(t, 0, woken)
	assert.Equal(t, 0, r.WaiterCount(testKey()))
}

func TestRegistry_Resolve_DoesNotCrossChannels(t *testing.T) {
	// Arrange: 同团队不同聊天日是两个独立频道
	r := NewRegistry(time.Minute)
	keyA := ChannelKey{TeamID: 1, TargetDate: "2024-12-25"}
	keyB := ChannelKey{TeamID: 1, TargetDate: "2024-12-26"}
	r.Register(keyA, 0)
	other := r.Register(keyB, 0)

	// Act
	r.Resolve(keyA, testMessages(1))

	// Assert: 另一个频道的等待者原地不动
	assert.Equal(t, 1, r.WaiterCount(keyB))
	select {
	case <-other.done:
		t.Fatal("另一频道的等待者不应被唤醒")
	default:
	}
	r.Cancel(other)
}

// --- 过期 ---

func TestRegistry_Expire_DeliversEmptyResult(t *testing.T) {
	// Arrange: 使用很短的超时
	r := NewRegistry(30 * time.Millisecond)
	key := testKey()
	w := r.Register(key, 0)

	// Act: 不派发任何消息，等定时器触发
	start := time.Now()
	res, err := r.Await(context.Background(), w)

	// Assert: 空结果，且等待者已被清理
	require.NoError(t, err)
	assert.False(t, res.HasNew)
	assert.Empty(t, res.Messages)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	assert.Equal(t, 0, r.WaiterCount(key))
}

// --- Cancel 与泄漏 ---

func TestRegistry_Cancel_LeavesNoTrace(t *testing.T) {
	// Arrange: 模拟大量客户端断开
	r := NewRegistry(time.Minute)
	key := testKey()
	waiters := make([]*Waiter, 100)
	for i := range waiters {
		waiters[i] = r.Register(key, 0)
	}
	require.Equal(t, 100, r.WaiterCount(key))

	// Act
	for _, w := range waiters {
		r.Cancel(w)
	}

	// Assert: 注册表回到空状态，后续 Resolve 不受影响
	assert.Equal(t, 0, r.WaiterCount(key))
	assert.Equal(t, 0, r.Resolve(key, testMessages(1)))
}

func TestRegistry_Cancel_NilAndDoubleCancelAreSafe(t *testing.T) {
	r := NewRegistry(time.Minute)
	w := r.Register(testKey(), 0)

	r.Cancel(nil)
	r.Cancel(w)
	r.Cancel(w) // 第二次是 no-op

	assert.Equal(t, 0, r.WaiterCount(testKey()))
}

func TestRegistry_Await_ContextCancelUnregisters(t *testing.T) {
	// Arrange
	r := NewRegistry(time.Minute)
	key := testKey()
	w := r.Register(key, 0)
	ctx, cancel := context.WithCancel(context.Background())

	// Act: 客户端断开
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := r.Await(ctx, w)

	// Assert
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, r.WaiterCount(key))
}

func TestRegistry_Await_ConsumesResultOnCancelRace(t *testing.T) {
	// Arrange: 结果先于 ctx 取消到达时不应被丢弃
	r := NewRegistry(time.Minute)
	key := testKey()
	w := r.Register(key, 0)
	r.Resolve(key, testMessages(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // ctx 已取消，但 done 里已有结果

	// Act
	res, err := r.Await(ctx, w)

	// Assert: Await 优先消费已投递的结果
	if err == nil {
		assert.True(t, res.HasNew)
	} else {
		// select 的两个分支都就绪时走哪条是随机的，
		// 但取消分支的二次读取必须兜住已投递的结果
		t.Fatalf("已投递的结果不应丢失: %v", err)
	}
}

// --- 至多一次解决 ---

func TestRegistry_AtMostOnceDelivery(t *testing.T) {
	// Arrange: 让 Resolve 与过期定时器激烈竞争
	const rounds = 200
	key := testKey()

	for i := 0; i < rounds; i++ {
		r := NewRegistry(time.Millisecond)
		w := r.Register(key, 0)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Resolve(key, testMessages(1))
		}()
		go func() {
			defer wg.Done()
			r.Cancel(w)
		}()
		wg.Wait()

		// 给已触发的定时器回调一点时间落地
		time.Sleep(2 * time.Millisecond)

		// Assert: done 里至多一个结果，绝不会有两个
		drained := 0
		for {
			select {
			case <-w.done:
				drained++
				continue
			default:
			}
			break
		}
		assert.LessOrEqual(t, drained, 1, "第 %d 轮出现了重复投递", i)
		assert.Equal(t, 0, r.WaiterCount(key))
	}
}

func TestRegistry_TimerArmedBeforeWaiterVisible(t *testing.T) {
	// Arrange: 一个 goroutine 持续 Resolve，主 goroutine 紧凑地注册/注销。
	// Resolve 摘到的每个等待者都会调用 timer.Stop()，所以等待者在频道里
	// 可见的那一刻定时器必须已经就位。
	r := NewRegistry(time.Minute)
	key := testKey()
	stop := make(chan struct{})
	resolverDone := make(chan struct{})
	go func() {
		defer close(resolverDone)
		for {
			select {
			case <-stop:
				return
			default:
				r.Resolve(key, testMessages(1))
			}
		}
	}()

	// Act
	for i := 0; i < 500; i++ {
		w := r.Register(key, 0)
		require.NotNil(t, w.timer)
		r.Cancel(w)
		// 被 Resolve 抢走的等待者把结果丢进 done，排干即可
		select {
		case <-w.done:
		default:
		}
	}
	close(stop)
	<-resolverDone

	// Assert
	assert.Equal(t, 0, r.WaiterCount(key))
}

func TestRegistry_ConcurrentRegisterResolve(t *testing.T) {
	// Arrange: 并发注册与派发不应 panic 或泄漏
	r := NewRegistry(time.Minute)
	key := testKey()

	var wg sync.WaitGroup
	results := make(chan Result, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := r.Register(key, 0)
			res, err := r.Await(context.Background(), w)
			if err == nil {
				results <- res
			}
		}()
	}
	// 反复派发直到所有等待者都被唤醒
	deadline := time.After(2 * time.Second)
	go func() {
		for {
			select {
			case <-deadline:
				return
			default:
			}
			r.Resolve(key, testMessages(1))
			time.Sleep(time.Millisecond)
		}
	}()
	wg.Wait()
	close(results)

	// Assert
	got := 0
	for res := range results {
		assert.True(t, res.HasNew)
		got++
	}
	assert.Equal(t, 50, got)
	assert.Equal(t, 0, r.WaiterCount(key))
}

func TestNewRegistry_DefaultTimeout(t *testing.T) {
	r := NewRegistry(0)
	assert.Equal(t, DefaultTimeout, r.timeout)
}
