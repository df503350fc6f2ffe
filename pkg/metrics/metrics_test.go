package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matches(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matches(m *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			found++
		}
	}
	return found == len(labels)
}

func TestMetricsRecordOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveEngine("ffmpeg", 20*time.Millisecond, nil)
	m.ObserveEngine("ffmpeg", 20*time.Millisecond, errors.New("exit 1"))
	m.UnitStarted()
	m.UnitFinished(nil)
	m.UnitStarted()
	m.UnitFinished(errors.New("mix failed"))
	m.ArchiveDone(nil)

	assert.Equal(t, 1.0, counterValue(t, reg, "ivrstudio_engine_invocations_total", map[string]string{"tool": "ffmpeg", "outcome": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "ivrstudio_engine_invocations_total", map[string]string{"tool": "ffmpeg", "outcome": "error"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "ivrstudio_units_total", map[string]string{"outcome": "completed"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "ivrstudio_units_total", map[string]string{"outcome": "skipped"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "ivrstudio_archives_total", map[string]string{"outcome": "ok"}))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveEngine("ffprobe", time.Second, nil)
		m.ObserveStage("mix", time.Second)
		m.UnitStarted()
		m.UnitFinished(nil)
		m.NormalizeDone(nil)
		m.ArchiveDone(nil)
	})
}

func TestNewWithoutRegistererDoesNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}
