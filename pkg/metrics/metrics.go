package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors of the studio.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	EngineInvocations *prometheus.CounterVec
	EngineDuration    *prometheus.HistogramVec
	StageDuration     *prometheus.HistogramVec
	Units             *prometheus.CounterVec
	ActiveUnits       prometheus.Gauge
	Normalizations    *prometheus.CounterVec
	Archives          *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil reg uses a private registry so repeated construction never collides.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		EngineInvocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ivrstudio_engine_invocations_total",
			Help: "External ffmpeg/ffprobe invocations by tool and outcome",
		}, []string{"tool", "outcome"}),
		EngineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ivrstudio_engine_duration_seconds",
			Help:    "Wall time of external engine invocations",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"tool"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ivrstudio_stage_duration_seconds",
			Help:    "Duration of unit pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),
		Units: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ivrstudio_units_total",
			Help: "Output units by outcome",
		}, []string{"outcome"}),
		ActiveUnits: f.NewGauge(prometheus.GaugeOpts{
			Name: "ivrstudio_active_units",
			Help: "Unit pipelines currently running",
		}),
		Normalizations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ivrstudio_normalizations_total",
			Help: "Background uploads normalized by outcome",
		}, []string{"outcome"}),
		Archives: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ivrstudio_archives_total",
			Help: "Job archives by outcome",
		}, []string{"outcome"}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveEngine records one external process invocation
func (m *Metrics) ObserveEngine(tool string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.EngineInvocations.WithLabelValues(tool, outcome(err)).Inc()
	m.EngineDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveStage records the duration of a unit pipeline stage
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// UnitStarted marks a unit pipeline as running
func (m *Metrics) UnitStarted() {
	if m == nil {
		return
	}
	m.ActiveUnits.Inc()
}

// UnitFinished marks a unit pipeline as settled
func (m *Metrics) UnitFinished(err error) {
	if m == nil {
		return
	}
	m.ActiveUnits.Dec()
	if err != nil {
		m.Units.WithLabelValues("skipped").Inc()
		return
	}
	m.Units.WithLabelValues("completed").Inc()
}

// NormalizeDone records a normalizer outcome
func (m *Metrics) NormalizeDone(err error) {
	if m == nil {
		return
	}
	m.Normalizations.WithLabelValues(outcome(err)).Inc()
}

// ArchiveDone records a packaging outcome
func (m *Metrics) ArchiveDone(err error) {
	if m == nil {
		return
	}
	m.Archives.WithLabelValues(outcome(err)).Inc()
}
