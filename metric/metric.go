// Package metric holds the Prometheus instruments for the bridge. Every
// method is safe on a nil *Metrics, which disables collection.
package metric

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "livelink"

// Metrics contains the provider's instruments.
type Metrics struct {
	SchemasPublished *prometheus.CounterVec
	FramesPublished  *prometheus.CounterVec
	FramesDropped    prometheus.Counter
	Retractions      prometheus.Counter
	SubjectsPruned   prometheus.Counter
	Subjects         prometheus.Gauge
	Subscribers      prometheus.Gauge
	SweepDuration    prometheus.Histogram
}

// NewMetrics creates the instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		SchemasPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "schemas_published_total",
			Help:      "Static schemas published, by role",
		}, []string{"role"}),

		FramesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frames_published_total",
			Help:      "Frame samples published, by role",
		}, []string{"role"}),

		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frames_dropped_total",
			Help:      "Messages dropped because a subscriber buffer was full",
		}),

		Retractions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "retractions_total",
			Help:      "Subjects retracted from consumers",
		}),

		SubjectsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "subjects_pruned_total",
			Help:      "Subjects removed because their scene node no longer resolves",
		}),

		Subjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "subjects",
			Help:      "Live subjects, including the active camera",
		}),

		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "subscribers",
			Help:      "Connected stream consumers",
		}),

		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "sweep_duration_seconds",
			Help:      "Time to sample every subject once",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		}),
	}

	collectors := []prometheus.Collector{
		m.SchemasPublished,
		m.FramesPublished,
		m.FramesDropped,
		m.Retractions,
		m.SubjectsPruned,
		m.Subjects,
		m.Subscribers,
		m.SweepDuration,
	}
	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordSchema(role string) {
	if m == nil {
		return
	}
	m.SchemasPublished.WithLabelValues(role).Inc()
}

func (m *Metrics) RecordFrame(role string) {
	if m == nil {
		return
	}
	m.FramesPublished.WithLabelValues(role).Inc()
}

func (m *Metrics) RecordDrop() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

func (m *Metrics) RecordRetract() {
	if m == nil {
		return
	}
	m.Retractions.Inc()
}

func (m *Metrics) RecordPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SubjectsPruned.Add(float64(n))
}

func (m *Metrics) SetSubjects(n int) {
	if m == nil {
		return
	}
	m.Subjects.Set(float64(n))
}

func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}
