package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordConnectorOperation(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordConnectorOperation("memory", "save", "success", time.Millisecond)
	m.RecordConnectorOperation("memory", "save", "success", time.Millisecond)
	m.RecordConnectorOperation("memory", "save", "error", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectorOperationsTotal.WithLabelValues("memory", "save", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectorOperationsTotal.WithLabelValues("memory", "save", "error")))
}

func TestEntityCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordPipelineRejection("User", "age")
	m.RecordObjectSaved("User")
	m.RecordObjectDeleted("User")
	m.SetKVRecords("User", 7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRejectionsTotal.WithLabelValues("User", "age")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ObjectsSavedTotal.WithLabelValues("User")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ObjectsDeletedTotal.WithLabelValues("User")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.KVRecords.WithLabelValues("User")))
}

func TestInFlight(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	done := m.InFlight()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GrpcRequestsInFlight))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.GrpcRequestsInFlight))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordGrpcRequest("/x", "success", time.Second)
		m.RecordConnectorOperation("kv", "delete", "error", time.Second)
		m.RecordPipelineRejection("User", "age")
		m.RecordObjectSaved("User")
		m.SetKVRecords("User", 1)
		m.InFlight()()
	})
}
