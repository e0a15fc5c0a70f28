// Package evjson 充电桩 JSON 报文协议：遥测上行解码与控制命令下行编码。
// 传输层不提供投递保证，重复与乱序由会话核心吸收。
package evjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
)

var (
	// ErrMalformed 报文不是合法 JSON 或缺少必填字段
	ErrMalformed = errors.New("malformed telemetry payload")
	// ErrUnknownReport 未识别的报文类型标签
	ErrUnknownReport = errors.New("unknown report type tag")
)

// wireSample 上行报文线格式。短字段名随设备固件约定。
type wireSample struct {
	DeviceID   string   `json:"id"`
	Report     string   `json:"rpt"`
	Status     *int32   `json:"st"`
	DeviceTime *int64   `json:"ts"`
	VoltageV   *float64 `json:"v"`
	PowerW     *float64 `json:"p"`
	EnergyWh   *float64 `json:"e"`
	CounterWh  *float64 `json:"tpwh"`
	UptimeSec  *int64   `json:"up"`
	ChargeType *string  `json:"ct"`
	Illegal    *bool    `json:"ill"`
	Amount     *float64 `json:"amt"`
	Rate       *float64 `json:"rt"`
	SessionID  *string  `json:"sid"`
	TxRef      *string  `json:"tr"`
}

// DecodeTelemetry 解码并校验一条上行报文。
// 必填：非空设备ID、可识别的 rpt 标签、数值型 st 与 ts。
func DecodeTelemetry(payload []byte) (*coremodel.TelemetrySample, error) {
	var w wireSample
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	deviceID := strings.TrimSpace(w.DeviceID)
	if deviceID == "" {
		return nil, fmt.Errorf("%w: missing device id", ErrMalformed)
	}
	report, ok := coremodel.ParseReportType(w.Report)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReport, w.Report)
	}
	if w.Status == nil {
		return nil, fmt.Errorf("%w: missing device status", ErrMalformed)
	}
	if w.DeviceTime == nil {
		return nil, fmt.Errorf("%w: missing device clock", ErrMalformed)
	}

	sample := &coremodel.TelemetrySample{
		DeviceID:     coremodel.DeviceID(deviceID),
		Report:       report,
		DeviceStatus: coremodel.DeviceStatus(*w.Status),
		DeviceTime:   *w.DeviceTime,
		VoltageV:     w.VoltageV,
		PowerW:       w.PowerW,
		EnergyWh:     w.EnergyWh,
		CounterWh:    w.CounterWh,
		UptimeSec:    w.UptimeSec,
		ChargeType:   w.ChargeType,
		Illegal:      w.Illegal,
		DeviceAmount: w.Amount,
		DeviceRate:   w.Rate,
		TxRef:        w.TxRef,
	}
	if w.SessionID != nil && *w.SessionID != "" {
		sid := coremodel.SessionID(*w.SessionID)
		sample.SessionID = &sid
	}
	return sample, nil
}
