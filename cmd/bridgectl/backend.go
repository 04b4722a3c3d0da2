package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wippyai/native-bridge/bridge"
	"github.com/wippyai/native-bridge/config"
	"github.com/wippyai/native-bridge/dispatch"
	"github.com/wippyai/native-bridge/metrics"
	"github.com/wippyai/native-bridge/native"
	"github.com/wippyai/native-bridge/native/dylib"
	"github.com/wippyai/native-bridge/native/loopback"
	"github.com/wippyai/native-bridge/native/wasmsvc"
)

// setLoggers points every package logger at log.
func setLoggers(log *zap.Logger) {
	bridge.SetLogger(log)
	dispatch.SetLogger(log)
	loopback.SetLogger(log)
	wasmsvc.SetLogger(log)
	dylib.SetLogger(log)
}

// openService loads the backend named by cfg.
func openService(ctx context.Context, cfg *config.Config, log *zap.Logger) (native.Service, error) {
	switch cfg.Backend {
	case config.BackendLoopback:
		return loopback.New(loopback.WithLogger(log)), nil

	case config.BackendDylib:
		svc, err := dylib.Open(cfg.Library)
		if err != nil {
			return nil, err
		}
		return svc, nil

	case config.BackendWasm:
		data, err := os.ReadFile(cfg.Module)
		if err != nil {
			return nil, fmt.Errorf("read module: %w", err)
		}
		svc, err := wasmsvc.New(ctx, data, &wasmsvc.Config{
			MemoryLimitPages: cfg.Wasm.MemoryLimitPages,
			PollInterval:     cfg.Wasm.PollInterval.Duration,
			DisableWASI:      cfg.Wasm.DisableWASI,
		})
		if err != nil {
			return nil, err
		}
		return svc, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// serveMetrics starts the Prometheus endpoint when configured. The returned
// stop function is always safe to call.
func serveMetrics(cfg config.MetricsConfiguration, log *zap.Logger) (*metrics.Metrics, func()) {
	if cfg.Listen == "" {
		return metrics.Noop(), func() {}
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, cfg.Namespace)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("listen", cfg.Listen))

	return m, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
