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

	"github.com/kirillkom/contract-signer/internal/bootstrap"
	"github.com/kirillkom/contract-signer/internal/config"
	"github.com/kirillkom/contract-signer/internal/core/domain"
	"github.com/kirillkom/contract-signer/internal/observability/logging"
	"github.com/kirillkom/contract-signer/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("contract-signer-worker", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, logger, workerMetrics)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSRenderSubject, "metrics_port", cfg.WorkerMetricsPort)
	if err := app.Queue.SubscribeRenderRequests(ctx, renderHandler(app.JobsUC, workerMetrics, logger)); err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

type jobRunner interface {
	Run(ctx context.Context, req domain.RenderRequest) (*domain.GeneratedDocument, error)
}

func renderHandler(runner jobRunner, m *metrics.WorkerMetrics, logger *slog.Logger) func(context.Context, domain.RenderRequest) error {
	return func(ctx context.Context, req domain.RenderRequest) error {
		start := time.Now()
		m.StartRender()
		doc, err := runner.Run(ctx, req)
		m.FinishRender(time.Since(start), err)
		if err != nil {
			return err
		}
		if doc == nil {
			return nil
		}
		logger.Info("render_request_completed",
			"job_id", req.JobID,
			"template_id", req.TemplateID,
			"project_id", req.ProjectID,
			"document_id", doc.ID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}
}
