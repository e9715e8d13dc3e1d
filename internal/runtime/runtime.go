package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lingolabs/lingo-core/internal/bus"
	"github.com/lingolabs/lingo-core/internal/config"
	"github.com/lingolabs/lingo-core/internal/metrics"
	"github.com/lingolabs/lingo-core/internal/metricstore"
	"github.com/lingolabs/lingo-core/internal/natsserver"
	"github.com/lingolabs/lingo-core/internal/transport"
)

// Runtime assembles the relay: embedded bus, metric store, session transport,
// and the HTTP surface for health and metrics.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error

	natsServer *natsserver.EmbeddedServer
	busClient  *bus.Client
	store      *metricstore.Store
	transport  *transport.Service

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings every subsystem up in dependency order, then blocks until ctx
// is cancelled and tears them down in reverse.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	natsServer, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	r.natsServer = natsServer

	busCfg := r.cfg.Bus
	if natsServer != nil && len(busCfg.Servers) == 0 {
		busCfg.Servers = []string{natsServer.ClientURL()}
	}
	busClient, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		r.natsServer.Shutdown()
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = busClient

	store, err := metricstore.Open(ctx, r.cfg.MetricStore, r.logger)
	if err != nil {
		r.busClient.Close()
		r.natsServer.Shutdown()
		return fmt.Errorf("failed to open metric store: %w", err)
	}
	r.store = store

	collectors := metrics.NewCollectors(prometheus.DefaultRegisterer)
	r.transport = transport.NewService(ctx, r.cfg, busClient, store, collectors, r.logger)
	if err := r.transport.Start(); err != nil {
		r.store.Close()
		r.busClient.Close()
		r.natsServer.Shutdown()
		return fmt.Errorf("failed to start session transport: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/summaries", r.handleSummaries)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	r.transport.Close()
	r.busClient.Close()
	if err := r.store.Close(); err != nil {
		r.logger.Error("metric store close error", slog.String("error", err.Error()))
	}
	r.natsServer.Shutdown()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() && r.transport.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

// handleSummaries serves recent per-session latency summaries for diagnostics.
func (r *Runtime) handleSummaries(w http.ResponseWriter, req *http.Request) {
	summaries, err := r.store.ListSummaries(req.Context(), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summaries); err != nil {
		r.logger.Warn("failed to encode summaries", slog.String("error", err.Error()))
	}
}
