package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/KaramelBytes/lapboard-cli/internal/telemetry"
)

type metrics struct {
	uploads   *prometheus.CounterVec
	rows      *prometheus.CounterVec
	analyses  prometheus.Counter
	evictions prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, st *Store) *metrics {
	m := &metrics{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lapboard",
			Name:      "uploads_total",
			Help:      "Telemetry uploads by outcome.",
		}, []string{"result"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lapboard",
			Name:      "rows_total",
			Help:      "Uploaded rows, kept or dropped by reason.",
		}, []string{"status"}),
		analyses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lapboard",
			Name:      "analyses_total",
			Help:      "Analysis and report requests served.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lapboard",
			Name:      "sessions_evicted_total",
			Help:      "Sessions removed after the inactivity timeout.",
		}),
	}
	active := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "lapboard",
		Name:      "sessions_active",
		Help:      "Sessions currently held in memory.",
	}, func() float64 { return float64(st.Count()) })
	reg.MustRegister(m.uploads, m.rows, m.analyses, m.evictions, active)
	return m
}

func (m *metrics) observeRows(s telemetry.DropStats) {
	m.rows.WithLabelValues("kept").Add(float64(s.Kept))
	m.rows.WithLabelValues("dropped_driver").Add(float64(s.Driver))
	m.rows.WithLabelValues("dropped_lap").Add(float64(s.Lap))
	m.rows.WithLabelValues("dropped_duration").Add(float64(s.Duration))
	m.rows.WithLabelValues("dropped_position").Add(float64(s.Position))
	m.rows.WithLabelValues("dropped_timestamp").Add(float64(s.Timestamp))
}
