package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nainya/entitycore/internal/connector"
	"github.com/nainya/entitycore/internal/metrics"
	"github.com/nainya/entitycore/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured backend over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, envFrom(cmd))
		},
	}
	cmd.Flags().Int("port", 0, "gRPC port")
	cmd.Flags().Int("metrics-port", 0, "observability HTTP port (0 disables)")
	return cmd
}

func runServe(ctx context.Context, e *env) error {
	cfg := e.cfg
	models, err := e.loadModels("")
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.NewMetrics(reg)

	e.log.LogServerStart(cfg.Server.Port, cfg.Connector.Provider)
	backend, err := connector.Open(ctx, connector.Config{
		Provider:           cfg.Connector.Provider,
		URL:                cfg.Connector.URL,
		WALPath:            cfg.Connector.WALPath,
		CheckpointInterval: cfg.Connector.CheckpointInterval,
		Models:             models,
	}, e.log, met)
	if err != nil {
		return err
	}
	defer backend.Close()

	srv, err := server.NewServer(backend, cfg.Connector.Provider, models, e.log)
	if err != nil {
		return err
	}
	gs := server.NewGRPCServer(srv, met)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	var obs *server.ObservabilityServer
	if cfg.Metrics.Port > 0 {
		var ready server.ReadyFunc
		if p, ok := backend.(connector.Pinger); ok {
			ready = p.Ping
		}
		obs = server.NewObservabilityServer(cfg.Metrics.Port, reg, ready, e.log)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		e.log.LogServerReady(cfg.Server.Port)
		return gs.Serve(lis)
	})
	if obs != nil {
		eg.Go(obs.Start)
	}
	eg.Go(func() error {
		met.TrackUptime(ctx.Done())
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		e.log.LogServerShutdown()
		gs.GracefulStop()
		if obs == nil {
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return obs.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}
