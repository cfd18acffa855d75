package scanner

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsSink 把扫描结果汇总为 Prometheus 指标。
type MetricsSink struct {
	scans      *prometheus.CounterVec
	rejections *prometheus.CounterVec
	signals    *prometheus.CounterVec
	confidence prometheus.Gauge
	lastScan   prometheus.Gauge
}

// NewMetricsSink 在 reg 上注册指标；同一个 reg 只能注册一次。
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	f := promauto.With(reg)
	return &MetricsSink{
		scans: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goldsweep_scans_total",
				Help: "Total number of live scans by outcome",
			},
			[]string{"outcome"},
		),
		rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goldsweep_gate_rejections_total",
				Help: "Scans rejected per pipeline gate",
			},
			[]string{"gate"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goldsweep_signals_total",
				Help: "Emitted signals by direction",
			},
			[]string{"direction"},
		),
		confidence: f.NewGauge(prometheus.GaugeOpts{
			Name: "goldsweep_last_signal_confidence",
			Help: "Confidence score of the most recent signal",
		}),
		lastScan: f.NewGauge(prometheus.GaugeOpts{
			Name: "goldsweep_last_scan_timestamp_seconds",
			Help: "Unix time of the most recent scan",
		}),
	}
}

func (m *MetricsSink) Publish(_ context.Context, r Report) {
	m.lastScan.Set(float64(r.At.Unix()))
	d := r.Decision
	switch {
	case d.Emitted():
		m.scans.WithLabelValues("signal").Inc()
		m.signals.WithLabelValues(string(d.Signal.Direction)).Inc()
		m.confidence.Set(float64(d.Signal.Confidence))
	case !r.Fetched:
		m.scans.WithLabelValues("skipped").Inc()
		m.rejections.WithLabelValues(string(d.Rejected)).Inc()
	default:
		m.scans.WithLabelValues("rejected").Inc()
		m.rejections.WithLabelValues(string(d.Rejected)).Inc()
	}
}
