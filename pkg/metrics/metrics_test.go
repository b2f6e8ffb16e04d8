package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSagaCompleted_IncrementsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordSagaStarted("tenant-a")
	m.RecordSagaCompleted("tenant-a", "completed", 4.2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SagaStarted.WithLabelValues("tenant-a")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SagaCompleted.WithLabelValues("tenant-a", "completed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SagaDuration))
}

func TestRecordToolCall_TracksOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordToolCall("execute_sql", "success", 0.3)
	m.RecordToolCall("execute_sql", "error", 0.1)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ToolCallCounter.WithLabelValues("execute_sql", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ToolCallCounter.WithLabelValues("execute_sql", "error")))
}

func TestSetRegistryServerStatus_TogglesGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetRegistryServerStatus("database", "http://db-tool:8080", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RegistryServerStatus.WithLabelValues("database", "http://db-tool:8080")))

	m.SetRegistryServerStatus("database", "http://db-tool:8080", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.RegistryServerStatus.WithLabelValues("database", "http://db-tool:8080")))
}

func TestRecordKBIngest_AddsChunkCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordKBIngest(3)
	m.RecordKBIngest(2)

	assert.Equal(t, float64(5), testutil.ToFloat64(m.KBChunksIngested))
}
