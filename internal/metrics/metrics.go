// Package metrics provides Prometheus metrics for entitycore
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for entitycore. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// Connector metrics
	ConnectorOperationsTotal   *prometheus.CounterVec
	ConnectorOperationDuration *prometheus.HistogramVec

	// Entity metrics
	PipelineRejectionsTotal *prometheus.CounterVec
	ObjectsSavedTotal       *prometheus.CounterVec
	ObjectsDeletedTotal     *prometheus.CounterVec
	KVRecords               *prometheus.GaugeVec

	// Server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	m.GrpcRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitycore_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	m.GrpcRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entitycore_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.GrpcRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "entitycore_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	m.ConnectorOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitycore_connector_operations_total",
			Help: "Total number of connector operations",
		},
		[]string{"provider", "operation", "status"},
	)

	m.ConnectorOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entitycore_connector_operation_duration_seconds",
			Help:    "Duration of connector operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "operation"},
	)

	m.PipelineRejectionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitycore_pipeline_rejections_total",
			Help: "Total number of field values rejected by a pipeline",
		},
		[]string{"model", "field"},
	)

	m.ObjectsSavedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitycore_objects_saved_total",
			Help: "Total number of successfully saved objects",
		},
		[]string{"model"},
	)

	m.ObjectsDeletedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitycore_objects_deleted_total",
			Help: "Total number of successfully deleted objects",
		},
		[]string{"model"},
	)

	m.KVRecords = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "entitycore_kv_records",
			Help: "Number of records held by key-space connectors",
		},
		[]string{"model"},
	)

	m.ServerUptimeSeconds = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "entitycore_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
	)

	return m
}

// TrackUptime updates the uptime gauge until done is closed
func (m *Metrics) TrackUptime(done <-chan struct{}) {
	if m == nil {
		return
	}
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
		}
	}
}

// RecordGrpcRequest records a gRPC request with its status
func (m *Metrics) RecordGrpcRequest(method string, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordConnectorOperation records a backend save, delete or lookup
func (m *Metrics) RecordConnectorOperation(provider, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ConnectorOperationsTotal.WithLabelValues(provider, operation, status).Inc()
	m.ConnectorOperationDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordPipelineRejection counts a value rejected for model.field
func (m *Metrics) RecordPipelineRejection(model, field string) {
	if m == nil {
		return
	}
	m.PipelineRejectionsTotal.WithLabelValues(model, field).Inc()
}

func (m *Metrics) RecordObjectSaved(model string) {
	if m == nil {
		return
	}
	m.ObjectsSavedTotal.WithLabelValues(model).Inc()
}

func (m *Metrics) RecordObjectDeleted(model string) {
	if m == nil {
		return
	}
	m.ObjectsDeletedTotal.WithLabelValues(model).Inc()
}

// SetKVRecords reports the live record count of one model in the kv store
func (m *Metrics) SetKVRecords(model string, n int) {
	if m == nil {
		return
	}
	m.KVRecords.WithLabelValues(model).Set(float64(n))
}

// InFlight tracks one running gRPC request; call the returned func when done
func (m *Metrics) InFlight() func() {
	if m == nil {
		return func() {}
	}
	m.GrpcRequestsInFlight.Inc()
	return m.GrpcRequestsInFlight.Dec
}
