// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"log/slog"
	stdhttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wneessen/mylocations/internal/logger"
)

const metricsReadHeaderTimeout = 5 * time.Second

type metricsServer struct {
	logger *logger.Logger
	server *stdhttp.Server
}

func newMetricsServer(addr string, registry *prometheus.Registry, log *logger.Logger) *metricsServer {
	mux := stdhttp.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.HandleFunc("GET /healthz", func(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
		w.WriteHeader(stdhttp.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	return &metricsServer{
		logger: log,
		server: &stdhttp.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: metricsReadHeaderTimeout,
		},
	}
}

// serve blocks until ctx is done and shuts the server down gracefully.
func (m *metricsServer) serve(ctx context.Context) {
	context.AfterFunc(ctx, func() {
		ctxShutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := m.server.Shutdown(ctxShutdown); err != nil {
			m.logger.Error("failed to shut down metrics server", logger.Err(err))
		}
	})

	m.logger.Info("serving metrics", slog.String("address", m.server.Addr))
	if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
		m.logger.Error("metrics server failed", logger.Err(err))
	}
}
