package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 帧处理结果标签
const (
	ResultOK        = "ok"
	ResultEmpty     = "empty" // 合法帧但没有产生定位（事件、未知设备等）
	ResultCorrupted = "corrupted"
	ResultError     = "error"
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
	ConnAccepted  *prometheus.CounterVec // labels: transport
	ConnRejected  *prometheus.CounterVec // labels: reason=limit|rate|peer_rate
	BytesReceived *prometheus.CounterVec // labels: transport
	FramesTotal   *prometheus.CounterVec // labels: protocol, result
	PositionsOut  *prometheus.CounterVec // labels: protocol
	AcksTotal     *prometheus.CounterVec // labels: protocol, result=ok|error
	SessionsGauge prometheus.Gauge       // 当前活跃设备会话数

	PipelineStored  prometheus.Counter
	PipelineDropped *prometheus.CounterVec // labels: reason=queue_full|queue_error|store_error|circuit_open
	PipelineQueue   prometheus.Gauge
	StoreLatency    prometheus.Histogram
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		ConnAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_conn_accept_total",
			Help: "Total accepted TCP connections and new UDP peers.",
		}, []string{"transport"}),
		ConnRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_conn_rejected_total",
			Help: "Connections rejected by limiters.",
		}, []string{"reason"}),
		BytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_bytes_received_total",
			Help: "Total bytes received from devices.",
		}, []string{"transport"}),
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_frames_total",
			Help: "Decoded frames by protocol and result.",
		}, []string{"protocol", "result"}),
		PositionsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_positions_decoded_total",
			Help: "Positions produced by decoders.",
		}, []string{"protocol"}),
		AcksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_acks_total",
			Help: "Acknowledgments written back to devices.",
		}, []string{"protocol", "result"}),
		SessionsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_device_sessions",
			Help: "Current number of live device sessions.",
		}),
		PipelineStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_pipeline_stored_total",
			Help: "Positions persisted by the storage pipeline.",
		}),
		PipelineDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_pipeline_dropped_total",
			Help: "Positions dropped by the storage pipeline.",
		}, []string{"reason"}),
		PipelineQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_pipeline_queue_length",
			Help: "Positions waiting in the in-memory queue.",
		}),
		StoreLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_store_batch_seconds",
			Help:    "Latency of position batch writes.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.ConnAccepted, m.ConnRejected, m.BytesReceived, m.FramesTotal, m.PositionsOut,
		m.AcksTotal, m.SessionsGauge, m.PipelineStored, m.PipelineDropped, m.PipelineQueue, m.StoreLatency,
	)
	return m
}
