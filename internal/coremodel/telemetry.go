package coremodel

import "time"

// ReportType 遥测报文类型，封闭枚举。
// 设备侧以单字符标签上报：s=start i=interim f=final a=ambient。
type ReportType uint8

const (
	ReportAmbient ReportType = iota
	ReportStart
	ReportInterim
	ReportFinal
)

// ParseReportType 解析设备上报的类型标签，未识别返回 false
func ParseReportType(tag string) (ReportType, bool) {
	switch tag {
	case "s":
		return ReportStart, true
	case "i":
		return ReportInterim, true
	case "f":
		return ReportFinal, true
	case "a":
		return ReportAmbient, true
	default:
		return ReportAmbient, false
	}
}

func (t ReportType) String() string {
	switch t {
	case ReportStart:
		return "start"
	case ReportInterim:
		return "interim"
	case ReportFinal:
		return "final"
	case ReportAmbient:
		return "ambient"
	}
	return "unknown"
}

// TelemetrySample 一条设备遥测事件。只追加的审计数据，创建后不可变。
type TelemetrySample struct {
	DeviceID     DeviceID
	Report       ReportType
	DeviceStatus DeviceStatus
	// DeviceTime 设备时钟（unix秒），仅用于同设备样本排序与诊断
	DeviceTime int64

	VoltageV  *float64
	PowerW    *float64
	EnergyWh  *float64
	CounterWh *float64
	UptimeSec *int64

	ChargeType *string
	Illegal    *bool
	// 设备侧自行计算的金额/费率，仅作对账参考，不参与计费
	DeviceAmount *float64
	DeviceRate   *float64

	SessionID *SessionID
	TxRef     *string

	ReceivedAt time.Time
}
