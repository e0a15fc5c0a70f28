package evjson

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/pubsub"
)

// 控制命令字
const (
	CommandTurnOn  = "turn_on"
	CommandTurnOff = "turn_off"
)

// controlPayload 下行控制报文线格式
type controlPayload struct {
	DeviceID  string `json:"id"`
	Command   string `json:"cmd"`
	Timer     string `json:"timer"`
	SessionID string `json:"sid"`
}

// CommandPublisher 向每设备控制主题发布 turn_on/turn_off。
// 发布失败只记日志与观测，不在本层重试；重试策略归调用方。
type CommandPublisher struct {
	pub         pubsub.Publisher
	topicFormat string
	timeout     time.Duration
	observer    func(command, result string)
	log         *zap.Logger
}

// NewCommandPublisher 创建控制命令发布器。
// topicFormat 形如 "charjee/device/%s/down"；timeout 约束单次发布时延。
func NewCommandPublisher(pub pubsub.Publisher, topicFormat string, timeout time.Duration, log *zap.Logger) *CommandPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CommandPublisher{
		pub:         pub,
		topicFormat: topicFormat,
		timeout:     timeout,
		observer:    func(string, string) {},
		log:         log,
	}
}

// SetObserver 注入命令发布观测钩子
func (p *CommandPublisher) SetObserver(fn func(command, result string)) {
	if fn != nil {
		p.observer = fn
	}
}

// TurnOn 下发开电命令
func (p *CommandPublisher) TurnOn(ctx context.Context, deviceID coremodel.DeviceID, timer time.Duration, sessionID coremodel.SessionID) error {
	return p.publish(ctx, CommandTurnOn, deviceID, timer, sessionID)
}

// TurnOff 下发断电命令
func (p *CommandPublisher) TurnOff(ctx context.Context, deviceID coremodel.DeviceID, timer time.Duration, sessionID coremodel.SessionID) error {
	return p.publish(ctx, CommandTurnOff, deviceID, timer, sessionID)
}

func (p *CommandPublisher) publish(ctx context.Context, command string, deviceID coremodel.DeviceID, timer time.Duration, sessionID coremodel.SessionID) error {
	payload, err := json.Marshal(controlPayload{
		DeviceID:  string(deviceID),
		Command:   command,
		Timer:     formatTimer(timer),
		SessionID: string(sessionID),
	})
	if err != nil {
		return fmt.Errorf("encode control payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	topic := fmt.Sprintf(p.topicFormat, deviceID)
	if err := p.pub.Publish(ctx, topic, payload); err != nil {
		p.observer(command, "error")
		p.log.Warn("control publish failed",
			zap.String("device_id", string(deviceID)),
			zap.String("command", command),
			zap.Error(err))
		return fmt.Errorf("publish %s to %s: %w", command, topic, err)
	}
	p.observer(command, "ok")
	return nil
}

// formatTimer 设备侧定时器为分钟粒度字符串，如 "15m"
func formatTimer(d time.Duration) string {
	if d <= 0 {
		return "0m"
	}
	return fmt.Sprintf("%dm", int64(d.Minutes()))
}
