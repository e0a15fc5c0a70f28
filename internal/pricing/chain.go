package pricing

import (
	"context"
	"errors"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
)

// Chain 按顺序查询多个费率源，前一个返回 ErrNoRate 时落到下一个。
// 其他错误立即返回，不做掩盖。
type Chain []Provider

func (c Chain) RateFor(ctx context.Context, vendorID coremodel.VendorID, deviceID coremodel.DeviceID) (Rate, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		r, err := p.RateFor(ctx, vendorID, deviceID)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrNoRate) {
			return Rate{}, err
		}
	}
	return Rate{}, ErrNoRate
}
