package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/tracker-server/internal/metrics"
)

// NewMetrics 初始化注册表与业务指标，并登记实例信息（版本、实例ID）
func NewMetrics(version, serverID string) (*prometheus.Registry, *metrics.AppMetrics) {
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)
	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "tracker_build_info",
		Help:        "Build and instance information, always 1.",
		ConstLabels: prometheus.Labels{"version": version, "server_id": serverID},
	})
	info.Set(1)
	reg.MustRegister(info)
	return reg, appm
}
