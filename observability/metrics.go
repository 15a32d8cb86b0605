package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors recorded by the pipeline.
type Metrics struct {
	Documents  *prometheus.CounterVec
	Amendments *prometheus.CounterVec
	Stages     *prometheus.HistogramVec
	OCRPages   prometheus.Counter
	Validation prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which is what tests usually want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricDocuments,
			Help: "Charter party documents processed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Amendments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricAmendments,
			Help: "Amendments detected, by bucket.",
		}, []string{"bucket"}),
		Stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricStage,
			Help:    "Duration of each processing stage.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"stage"}),
		OCRPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricOCRPages,
			Help: "Pages sent to the OCR engine.",
		}),
		Validation: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricValidation,
			Help: "Part I validation errors reported.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Documents, m.Amendments, m.Stages, m.OCRPages, m.Validation)
	}
	return m
}

// ObserveStage records the elapsed time since start for a stage. Safe on nil.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.Stages.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Document counts a processed document. Safe on nil.
func (m *Metrics) Document(kind, outcome string) {
	if m == nil {
		return
	}
	m.Documents.WithLabelValues(kind, outcome).Inc()
}

// Amendment adds n amendments to a bucket. Safe on nil.
func (m *Metrics) Amendment(bucket string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Amendments.WithLabelValues(bucket).Add(float64(n))
}

// OCRPage counts one page sent to OCR. Safe on nil.
func (m *Metrics) OCRPage() {
	if m == nil {
		return
	}
	m.OCRPages.Inc()
}

// ValidationErrors adds n validation errors. Safe on nil.
func (m *Metrics) ValidationErrors(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Validation.Add(float64(n))
}
