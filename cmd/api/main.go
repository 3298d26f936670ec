package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/whatsapp-concierge/cmd/mainconfig"
	"github.com/wolfman30/whatsapp-concierge/internal/api/router"
	"github.com/wolfman30/whatsapp-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/whatsapp-concierge/internal/config"
	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/whatsapp-concierge/internal/http/middleware"
	"github.com/wolfman30/whatsapp-concierge/internal/messaging"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		logging.Default().Warn("failed to read .env", "error", err)
	}
	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger.Info("starting whatsapp-concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"state_backend", cfg.StateBackend,
		"queue_backend", cfg.QueueBackend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, metricsHandler := setupMetrics()
	awsLoader := bootstrap.NewAWSLoader(func(ctx context.Context) (aws.Config, error) {
		return mainconfig.LoadAWSConfig(ctx, cfg)
	})

	rt, err := bootstrap.NewRuntime(ctx, cfg, logger, bootstrap.Options{Registerer: registry, AWS: awsLoader})
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	// The in-memory queue lives in this process, so its consumer must too.
	var worker *conversation.Worker
	if cfg.QueueBackend == "" || cfg.QueueBackend == "memory" {
		worker = conversation.NewWorker(rt.Engine, rt.Queue, logger, conversation.WithWorkerCount(cfg.WorkerCount))
		worker.Start(ctx)
		logger.Info("in-process conversation worker started", "workers", cfg.WorkerCount)
	}

	limiter := httpmiddleware.NewRateLimiter(20, 40)
	go limiter.RunEviction(ctx, 5*time.Minute, 10*time.Minute)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, rt, metricsHandler, limiter),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range signals {
		if sig == syscall.SIGHUP {
			reloadTenants(rt, logger)
			continue
		}
		break
	}

	logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	if worker != nil {
		waitForWorker(shutdownCtx, worker, logger)
	}
	logger.Info("server stopped")
}

func setupMetrics() (*prometheus.Registry, http.Handler) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func newRouter(cfg *appconfig.Config, rt *bootstrap.Runtime, metricsHandler http.Handler, limiter *httpmiddleware.RateLimiter) http.Handler {
	webhook := messaging.NewHandler(messaging.HandlerConfig{
		VerifyToken:   cfg.VerifyToken,
		AppSecret:     cfg.WhatsAppAppSecret,
		DebugPayloads: cfg.WebhookDebugLogs,
	}, rt.Publisher, rt.Logger, rt.Metrics)

	return router.New(&router.Config{
		Logger:             rt.Logger,
		MessagingHandler:   webhook,
		AdminTenants:       handlers.NewAdminTenantsHandler(rt.Registry, rt.Reloader, rt.Logger),
		AdminConversations: handlers.NewAdminConversationsHandler(rt.Store, rt.Logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		WebhookLimiter:     limiter,
	})
}

func reloadTenants(rt *bootstrap.Runtime, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cfgs, err := rt.Reloader.Reload(ctx)
	if err != nil {
		logger.Error("tenant reload failed; keeping previous configuration", "error", err)
		return
	}
	logger.Info("tenants reloaded", "count", len(cfgs))
}

func waitForWorker(ctx context.Context, worker *conversation.Worker, logger *logging.Logger) {
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("conversation worker stopped")
	case <-ctx.Done():
		logger.Error("conversation worker shutdown timed out", "error", ctx.Err())
	}
}
