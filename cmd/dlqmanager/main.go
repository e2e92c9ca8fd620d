package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/swimrun/internal/config"
	"example.com/swimrun/internal/logging"
	"example.com/swimrun/internal/outbox"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup(logging.SetupParams{
		LogFileName:   cfg.LogFile,
		LogToStdout:   cfg.LogToStdout,
		LogLevel:      cfg.LogLevel,
		LogFormatJSON: cfg.LogFormatJSON,
		ServiceName:   "swimrun-dlqmanager",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, outbox.WithDLQLogger(logger.WithField("component", "dlq")))

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.WithField("address", cfg.MetricsAddress).Info("dlq manager metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server error")
		}
	}()

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	logger.WithField("interval", cfg.DLQPollInterval).WithField("max_retries", cfg.DLQMaxRetries).Info("dlq manager started")

loop:
	for {
		select {
		case <-stop:
			logger.Info("dlq manager shutdown requested")
			cancel()
			break loop
		case <-ticker.C:
			requeued, err := manager.RunOnce(ctx, cfg.DLQBatchSize)
			if err != nil {
				logger.WithError(err).Error("dlq pass failed")
			} else if requeued > 0 {
				logger.WithField("requeued", requeued).Info("dlq pass complete")
			}
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("metrics server shutdown failed")
	}
}
