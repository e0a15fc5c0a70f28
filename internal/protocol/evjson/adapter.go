package evjson

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/pubsub"
)

// TelemetrySink 解码后的样本去向（会话注册表）
type TelemetrySink interface {
	HandleTelemetry(ctx context.Context, sample *coremodel.TelemetrySample)
}

// DeviceDirectory 设备目录：合法样本作为在线信号刷新 last_seen
type DeviceDirectory interface {
	TouchLastSeen(ctx context.Context, deviceID coremodel.DeviceID, at time.Time) error
}

// Adapter 设备遥测接入：订阅全网通配主题，解码校验后路由到会话核心。
// 非法报文只记日志后丢弃，绝不向上传播。
type Adapter struct {
	sub      pubsub.Subscriber
	sink     TelemetrySink
	devices  DeviceDirectory
	pattern  string
	observer func(result string)
	log      *zap.Logger
	// dropLog 限制畸形报文告警的刷屏速率
	dropLog *rate.Limiter
	now     func() time.Time
}

// NewAdapter 创建遥测接入适配器。pattern 形如 "charjee/device/*/up"。
func NewAdapter(sub pubsub.Subscriber, sink TelemetrySink, devices DeviceDirectory, pattern string, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		sub:      sub,
		sink:     sink,
		devices:  devices,
		pattern:  pattern,
		observer: func(string) {},
		log:      log,
		dropLog:  rate.NewLimiter(rate.Every(time.Second), 5),
		now:      time.Now,
	}
}

// SetObserver 注入接入观测钩子（result: ok|malformed）
func (a *Adapter) SetObserver(fn func(result string)) {
	if fn != nil {
		a.observer = fn
	}
}

// Run 订阅并持续消费，直到 ctx 取消或订阅关闭。阻塞调用。
func (a *Adapter) Run(ctx context.Context) error {
	sub, err := a.sub.PSubscribe(ctx, a.pattern)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	a.log.Info("device telemetry adapter subscribed", zap.String("pattern", a.pattern))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			a.handle(ctx, msg)
		}
	}
}

func (a *Adapter) handle(ctx context.Context, msg pubsub.Message) {
	sample, err := DecodeTelemetry(msg.Payload)
	if err != nil {
		a.observer("malformed")
		if a.dropLog.Allow() {
			a.log.Warn("telemetry payload dropped",
				zap.String("channel", msg.Channel),
				zap.Error(err))
		}
		return
	}
	sample.ReceivedAt = a.now()
	a.observer("ok")

	// 合法样本即在线信号，目录刷新失败不阻断路由
	if a.devices != nil {
		if err := a.devices.TouchLastSeen(ctx, sample.DeviceID, sample.ReceivedAt); err != nil {
			a.log.Debug("touch device last seen failed",
				zap.String("device_id", string(sample.DeviceID)), zap.Error(err))
		}
	}

	a.sink.HandleTelemetry(ctx, sample)
}
