package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	TelemetryTotal   *prometheus.CounterVec // labels: result=ok|malformed|unknown_report
	RegistryOpsTotal *prometheus.CounterVec // labels: operation, status
	BookingOpsTotal  *prometheus.CounterVec // labels: operation, status
	SessionsOpen     prometheus.Gauge       // 当前未终结会话数
	EnergyAccruedKWh prometheus.Counter     // 累计计费电量
	AmountAccrued    prometheus.Counter     // 累计计费金额
	CommandsTotal    *prometheus.CounterVec // labels: command, status
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		TelemetryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "device_telemetry_total",
			Help: "Device telemetry reports by decode result.",
		}, []string{"result"}),
		RegistryOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_registry_ops_total",
			Help: "Session registry operations by status.",
		}, []string{"operation", "status"}),
		BookingOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_ops_total",
			Help: "Booking operations by status.",
		}, []string{"operation", "status"}),
		SessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "charging_sessions_open",
			Help: "Current number of non-terminal charging sessions.",
		}),
		EnergyAccruedKWh: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_energy_kwh_total",
			Help: "Total billed energy in kWh.",
		}),
		AmountAccrued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_amount_total",
			Help: "Total billed amount in currency units.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "device_commands_total",
			Help: "Device control commands by status.",
		}, []string{"command", "status"}),
	}
	reg.MustRegister(
		m.TelemetryTotal, m.RegistryOpsTotal, m.BookingOpsTotal,
		m.SessionsOpen, m.EnergyAccruedKWh, m.AmountAccrued, m.CommandsTotal,
	)
	return m
}
