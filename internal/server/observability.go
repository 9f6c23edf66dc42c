// Observability middleware and HTTP server for metrics and profiling
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nainya/entitycore/internal/logger"
	"github.com/nainya/entitycore/internal/metrics"
)

// GrpcMetricsInterceptor records every unary call. The status label is
// "success" or the snake-cased gRPC code, e.g. "already_exists".
func GrpcMetricsInterceptor(m *metrics.Metrics, log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		done := m.InFlight()
		defer done()

		resp, err := handler(ctx, req)
		duration := time.Since(start)

		m.RecordGrpcRequest(info.FullMethod, statusLabel(err), duration)
		log.LogGrpcRequest(info.FullMethod, duration, err)
		return resp, err
	}
}

func statusLabel(err error) string {
	code := status.Code(err)
	if code == codes.OK {
		return "success"
	}
	return strcase.ToSnake(code.String())
}

// ReadyFunc reports whether the backend can serve requests
type ReadyFunc func(ctx context.Context) error

// ObservabilityServer serves /metrics, /health, /ready and pprof over HTTP
type ObservabilityServer struct {
	server  *http.Server
	log     *logger.Logger
	started time.Time
}

// NewObservabilityServer reads metrics from gatherer; a nil ready always
// reports ready.
func NewObservabilityServer(port int, gatherer prometheus.Gatherer, ready ReadyFunc, log *logger.Logger) *ObservabilityServer {
	o := &ObservabilityServer{log: log, started: time.Now()}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "healthy",
			"service":        "entitycore",
			"uptime_seconds": int64(time.Since(o.started).Seconds()),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	for _, name := range []string{"heap", "goroutine", "threadcreate", "block", "mutex", "allocs"} {
		mux.Handle("/debug/pprof/"+name, pprof.Handler(name))
	}

	o.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return o
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Handler exposes the endpoint mux
func (o *ObservabilityServer) Handler() http.Handler {
	return o.server.Handler
}

// Start blocks serving until Shutdown
func (o *ObservabilityServer) Start() error {
	o.log.Info("observability endpoints available").
		Str("addr", o.server.Addr).
		Str("metrics", "/metrics").
		Str("pprof", "/debug/pprof/").
		Send()

	if err := o.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("observability server failed: %w", err)
	}
	return nil
}

func (o *ObservabilityServer) Shutdown(ctx context.Context) error {
	o.log.Info("shutting down observability server").Send()
	return o.server.Shutdown(ctx)
}
