package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nestdesk/internal/platform/config"
	"nestdesk/internal/platform/health"
	"nestdesk/internal/platform/logger"
	"nestdesk/internal/tickets/handler"
	"nestdesk/internal/tickets/metrics"
	"nestdesk/internal/tickets/repairdesk"
	"nestdesk/internal/tickets/resolver"
	"nestdesk/internal/tickets/service"
	"nestdesk/internal/tickets/store"
	"nestdesk/internal/tickets/tracer"
	"nestdesk/pkg/platform/circuit"
	request "nestdesk/pkg/platform/middleware/request"
	"nestdesk/pkg/platform/validation"
)

const (
	requestTimeout  = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	log.Info("initializing nestdesk",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"cache_path", cfg.Cache.Path,
		"base_url", cfg.RepairDesk.BaseURL,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ticketMetrics := metrics.New(reg)
	httpMetrics := request.NewMetrics(reg)

	client := repairdesk.New(repairdesk.Config{
		BaseURL: cfg.RepairDesk.BaseURL,
		APIKey:  cfg.RepairDesk.APIKey,
		Timeout: cfg.RepairDesk.Timeout,
		Breaker: circuit.New("repairdesk"),
		Logger:  log,
		Metrics: ticketMetrics,
	})
	cache := store.New(cfg.Cache.Path)

	res := resolver.New(resolver.Config{PageSize: cfg.Cache.PageSize}, client, cache,
		resolver.WithLogger(log),
		resolver.WithMetrics(ticketMetrics),
		resolver.WithTracer(tracer.NewOTel()),
	)
	svc := service.New(res, client, service.WithLogger(log))

	healthHandler := health.New(cfg.Server.Environment)
	healthHandler.RegisterCheck("repairdesk", client.Health)

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(request.Logger(log))
	r.Use(request.LatencyMiddleware(httpMetrics, routePattern))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Group(func(api chi.Router) {
		api.Use(request.Timeout(requestTimeout))
		api.Use(request.ContentTypeJSON)
		api.Use(request.BodyLimit(validation.MaxBodySize))
		handler.New(svc, log).Register(api)
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

// routePattern labels latency by chi's matched pattern so ticket ids do not
// explode metric cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
