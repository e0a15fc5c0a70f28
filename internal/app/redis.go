package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/charjee-official/Charjee-Apk-sub000/internal/config"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/health"
	redisstorage "github.com/charjee-official/Charjee-Apk-sub000/internal/storage/redis"
)

// NewRedisClient 创建 Redis 客户端。
// Redis 同时承担设备报文总线、实时广播与会话查找缓存，属于必需依赖。
func NewRedisClient(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	client, err := redisstorage.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))

	return client, nil
}

// NewSessionCache 创建设备→活动会话查找缓存
func NewSessionCache(client *redisstorage.Client, cfg cfgpkg.RedisConfig) *redisstorage.SessionCache {
	return redisstorage.NewSessionCache(client.Client, cfg.CacheTTL)
}

// AddRedisChecker 添加 Redis 检查器到聚合器
func AddRedisChecker(aggregator *health.Aggregator, redisClient *redisstorage.Client) {
	if redisClient != nil {
		aggregator.AddChecker(health.NewRedisChecker(redisClient))
	}
}
