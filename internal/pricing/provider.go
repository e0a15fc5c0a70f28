// Package pricing 解析某运营商/设备适用的电价与平台费率。
package pricing

import (
	"context"
	"errors"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
)

// ErrNoRate 无适用费率
var ErrNoRate = errors.New("no applicable rate")

// Rate 会话开始时锁定的费率
type Rate struct {
	PricePerKWh    float64 `yaml:"pricePerKwh"`
	PlatformFeePct float64 `yaml:"platformFeePct"`
}

// Provider 费率提供方。查找顺序由实现决定，约定为 设备级 > 运营商级 > 默认。
type Provider interface {
	RateFor(ctx context.Context, vendorID coremodel.VendorID, deviceID coremodel.DeviceID) (Rate, error)
}
