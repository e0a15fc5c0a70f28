// Package pubsub 设备报文与实时事件共用的发布/订阅传输抽象。
// 传输不提供投递保证（at-most-once），上层据此设计幂等语义。
package pubsub

import "context"

// Message 一条订阅消息
type Message struct {
	Channel string
	Payload []byte
}

// Publisher 发布端
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscription 一个活动订阅。Close 后 Messages 通道关闭。
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Subscriber 订阅端，pattern 支持通配（如 charjee/device/*/up）
type Subscriber interface {
	PSubscribe(ctx context.Context, pattern string) (Subscription, error)
}

// Bus 同时具备收发能力的总线
type Bus interface {
	Publisher
	Subscriber
}
