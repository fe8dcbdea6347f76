package longpoll

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"team-caltalk/internal/domain"
)

// Notifier 把"有新消息"事件送达注册表。
// 派发方 (ChatService) 只依赖这个接口，不关心是单实例直连还是跨实例广播。
type Notifier interface {
	Notify(ctx context.Context, key ChannelKey, message domain.Message) error
}

// LocalNotifier 直接解决同进程内的注册表，单实例部署的默认实现。
type LocalNotifier struct {
	registry *Registry
}

// NewLocalNotifier 创建 LocalNotifier 实例。
func NewLocalNotifier(registry *Registry) *LocalNotifier {
	if registry == nil {
		panic("registry cannot be nil for LocalNotifier")
	}
	return &LocalNotifier{registry: registry}
}

// Notify 实现 Notifier 接口。
func (n *LocalNotifier) Notify(_ context.Context, key ChannelKey, message domain.Message) error {
	n.registry.Resolve(key, []domain.Message{message})
	return nil
}

// dispatchEnvelope 是跨实例广播的载荷。
type dispatchEnvelope struct {
	Key     ChannelKey     `json:"key"`
	Message domain.Message `json:"message"`
}

// RedisNotifier 通过 Redis pub/sub 把派发事件广播给所有服务实例。
// 每个实例订阅同一频道并解决各自的本地注册表，发布者自己也经由订阅
// 收到事件，因此本地等待者不会被解决两次。
type RedisNotifier struct {
	client   *redis.Client
	registry *Registry
	channel  string
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRedisNotifier 创建 RedisNotifier 实例。channel 为空时使用默认频道名。
func NewRedisNotifier(client *redis.Client, registry *Registry, channel string) *RedisNotifier {
	if client == nil {
		panic("redis client cannot be nil for RedisNotifier")
	}
	if registry == nil {
		panic("registry cannot be nil for RedisNotifier")
	}
	if channel == "" {
		channel = "caltalk:dispatch"
	}
	return &RedisNotifier{
		client:   client,
		registry: registry,
		channel:  channel,
		done:     make(chan struct{}),
	}
}

// Notify 实现 Notifier 接口：只发布，不直接解决本地注册表。
func (n *RedisNotifier) Notify(ctx context.Context, key ChannelKey, message domain.Message) error {
	payload, err := json.Marshal(dispatchEnvelope{Key: key, Message: message})
	if err != nil {
		return fmt.Errorf("notifier: marshal dispatch envelope: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("notifier: publish dispatch: %w", err)
	}
	return nil
}

// Start 启动订阅循环。应在应用启动时调用一次。
func (n *RedisNotifier) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	sub := n.client.Subscribe(ctx, n.channel)

	go func() {
		defer close(n.done)
		defer sub.Close()
		log := logrus.WithField("component", "redis_notifier")
		log.Infof("Subscribed to dispatch channel '%s'", n.channel)

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				log.Info("Dispatch subscription stopped")
				return
			case msg, ok := <-ch:
				if !ok {
					log.Warn("Dispatch subscription channel closed")
					return
				}
				var envelope dispatchEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
					log.WithError(err).Error("Failed to unmarshal dispatch envelope, dropping")
					continue
				}
				n.registry.Resolve(envelope.Key, []domain.Message{envelope.Message})
			}
		}
	}()
}

// Stop 停止订阅循环并等待其退出。
func (n *RedisNotifier) Stop() {
	if n.cancel == nil {
		return
	}
	n.cancel()
	<-n.done
}
