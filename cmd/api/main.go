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

	"example.com/swimrun/internal/api"
	"example.com/swimrun/internal/auth"
	"example.com/swimrun/internal/config"
	"example.com/swimrun/internal/domain"
	"example.com/swimrun/internal/logging"
	"example.com/swimrun/internal/outbox"
	"example.com/swimrun/internal/persistence/postgres"
	httptransport "example.com/swimrun/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup(logging.SetupParams{
		LogFileName:   cfg.LogFile,
		LogToStdout:   cfg.LogToStdout,
		LogLevel:      cfg.LogLevel,
		LogFormatJSON: cfg.LogFormatJSON,
		ServiceName:   "swimrun-api",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pool.Close()

	repo := postgres.NewRepository(pool)
	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaBatchTimeout)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(outbox.NewPostgresStore(pool), producer, registry,
		cfg.OutboxPollInterval, cfg.OutboxBatchSize,
		outbox.WithDispatcherLogger(logger.WithField("component", "outbox")))
	go dispatcher.Start(ctx)

	var opts []domain.Option
	if cfg.AnalyticsCacheMB > 0 {
		opts = append(opts, domain.WithCache(domain.NewAnalyticsCache(cfg.AnalyticsCacheMB, cfg.AnalyticsCacheTTL)))
	}
	service := domain.NewService(repo, opts...)

	handler := api.NewHandler(service, api.WithLogger(logger.WithField("component", "api")))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	requestLogger := httptransport.RequestLogger(logger)
	cors := httptransport.CORS(cfg.CORSOrigin)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, requestLogger(cors(authMiddleware.Wrap(mux))))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.WithField("address", cfg.HTTPAddress).Info("swimrun api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	<-shutdownCh
	logger.Info("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}

	dispatcher.Wait()
}
