package redis

import (
	"testing"
	"time"
)

// 注意: 缓存读写路径需要Redis服务器，相关集成测试跳过

func TestSessionCache_KeyFormat(t *testing.T) {
	c := NewSessionCache(nil, time.Hour)
	if got := c.key("CHJ-001"); got != "charjee:session:active:CHJ-001" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestSessionCache_DefaultTTL(t *testing.T) {
	c := NewSessionCache(nil, 0)
	if c.ttl != 24*time.Hour {
		t.Fatalf("expected 24h default ttl, got %v", c.ttl)
	}
}

func TestSessionCache_RoundTrip(t *testing.T) {
	// 跳过测试（需要真实Redis）
	t.Skip("需要Redis服务器，跳过测试")
}
