package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
)

// SessionCache 设备→活动会话的查找缓存。
// 进程重启后遥测报文靠它找回归属会话；缓存不可用时调用方降级为孤儿处理。
type SessionCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewSessionCache 创建查找缓存。ttl<=0 时使用 24h。
func NewSessionCache(client redis.Cmdable, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionCache{client: client, ttl: ttl}
}

func (c *SessionCache) key(deviceID coremodel.DeviceID) string {
	return fmt.Sprintf("charjee:session:active:%s", deviceID)
}

// PutActive 写入设备当前活动会话
func (c *SessionCache) PutActive(ctx context.Context, deviceID coremodel.DeviceID, sessionID coremodel.SessionID) error {
	return c.client.Set(ctx, c.key(deviceID), string(sessionID), c.ttl).Err()
}

// GetActive 查询设备活动会话，未命中返回 ("", false, nil)
func (c *SessionCache) GetActive(ctx context.Context, deviceID coremodel.DeviceID) (coremodel.SessionID, bool, error) {
	val, err := c.client.Get(ctx, c.key(deviceID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return coremodel.SessionID(val), true, nil
}

// DeleteActive 会话终结时移除映射
func (c *SessionCache) DeleteActive(ctx context.Context, deviceID coremodel.DeviceID) error {
	return c.client.Del(ctx, c.key(deviceID)).Err()
}
