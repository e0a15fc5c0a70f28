// Package billing 将设备遥测样本转换为会话的单调电量/金额累计。
package billing

import "github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"

// whPerKWh 设备累计读数单位为 Wh，会话累计以 kWh 计
const whPerKWh = 1000.0

// Accrual 单个样本产生的增量结果
type Accrual struct {
	EnergyKWh float64
	Amount    float64
	// Rollback 表示设备读数回退（计数器复位/疑似篡改），增量被钳位为零
	Rollback bool
}

// Apply 按样本推进会话的计费累计，就地修改 sess。
// 调用方必须持有该会话的锁。
//
// 增量来源优先级：
//  1. 设备累计电量计数器 tpwh（前后两次读数都存在）
//  2. 瞬时累计电量读数 e（前后两次读数都存在）
//  3. 无可用基线时增量为零（首个样本只记录基线，不产生累计）
//
// 负增量（计数器回退）钳位为零，但最新原始读数始终被记录，
// 保证漂移不会在后续样本中复利放大。
func Apply(sess *coremodel.Session, sample *coremodel.TelemetrySample) Accrual {
	var acc Accrual

	deltaWh := 0.0
	switch {
	case sample.CounterWh != nil && sess.LastCounterWh != nil:
		deltaWh = *sample.CounterWh - *sess.LastCounterWh
	case sample.EnergyWh != nil && sess.LastEnergyWh != nil:
		deltaWh = *sample.EnergyWh - *sess.LastEnergyWh
	}
	if deltaWh < 0 {
		acc.Rollback = true
		deltaWh = 0
	}

	if deltaWh > 0 {
		acc.EnergyKWh = deltaWh / whPerKWh
		acc.Amount = acc.EnergyKWh * sess.PricePerKWh

		sess.EnergyKWh += acc.EnergyKWh
		sess.Amount += acc.Amount
		sess.PlatformShare = sess.Amount * sess.PlatformFeePct / 100
		sess.VendorShare = sess.Amount - sess.PlatformShare
	}

	// 无论增量符号如何都刷新基线
	if sample.CounterWh != nil {
		v := *sample.CounterWh
		sess.LastCounterWh = &v
	}
	if sample.EnergyWh != nil {
		v := *sample.EnergyWh
		sess.LastEnergyWh = &v
	}
	return acc
}
