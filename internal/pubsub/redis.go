package pubsub

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisBus 基于 Redis PUBLISH/PSUBSCRIBE 的总线实现
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus 创建 Redis 总线
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// Publish 发布消息
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

// PSubscribe 按模式订阅，返回的订阅在 Close 前持续投递
func (b *RedisBus) PSubscribe(ctx context.Context, pattern string) (Subscription, error) {
	ps := b.client.PSubscribe(ctx, pattern)
	// 等待订阅确认，失败时立即暴露
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &redisSubscription{ps: ps, out: make(chan Message, 64)}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan Message
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		s.out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}
	}
}

func (s *redisSubscription) Messages() <-chan Message {
	return s.out
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
