// modwatchd is the moderation audit-trail daemon.
//
// It consumes raw platform events from Kafka, correlates them into
// human-readable audit records, and delivers those records through a webhook
// sink. Guild configuration is read from Redis; moderator attribution is
// resolved against the platform's audit-log API.
//
// Configuration is environment-driven; see internal/config. A .env file in
// the working directory is honored for local development.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/modwatch/modwatch/internal/auditlog"
	"github.com/modwatch/modwatch/internal/config"
	"github.com/modwatch/modwatch/internal/configstore"
	"github.com/modwatch/modwatch/internal/correlator"
	"github.com/modwatch/modwatch/internal/gateway"
	"github.com/modwatch/modwatch/internal/sink"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "modwatchd",
		Short:   "Moderation audit-trail daemon",
		Long: `modwatchd correlates raw chat-platform events into moderation audit
records: who joined, who was banned and by whom, what was deleted and why.

All configuration comes from the environment; run with a .env file for
local development.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := logConfig.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best effort on shutdown

	logger.Info("Starting modwatchd",
		zap.String("version", version),
		zap.String("kafka_brokers", cfg.Kafka.Brokers),
		zap.String("kafka_topic", cfg.Kafka.Topic),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Guild settings store.
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close() //nolint:errcheck
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Settings degrade to defaults when Redis is down; warn, don't fail.
		logger.Warn("redis unreachable at startup", zap.Error(err))
	}
	store := configstore.NewRedisStore(redisClient)

	// Record delivery.
	webhookSink, err := sink.NewWebhookSink(logger, sink.WebhookConfig{
		URL:       cfg.Sink.WebhookURL,
		Timeout:   cfg.Sink.Timeout,
		AuthToken: cfg.Sink.AuthToken,
	})
	if err != nil {
		return fmt.Errorf("create webhook sink: %w", err)
	}

	// Attribution.
	querier, err := auditlog.NewHTTPQuerier(logger, auditlog.HTTPQuerierConfig{
		BaseURL:   cfg.AuditAPI.BaseURL,
		Timeout:   cfg.AuditAPI.Timeout,
		AuthToken: cfg.AuditAPI.AuthToken,
	})
	if err != nil {
		return fmt.Errorf("create audit querier: %w", err)
	}

	// Correlation engine.
	opts := correlator.Options{
		AttributionWindow:   cfg.Engine.AttributionWindow,
		DebounceWait:        cfg.Engine.DebounceWait,
		DebounceTTL:         cfg.Engine.DebounceTTL,
		BounceThreshold:     cfg.Engine.BounceThreshold,
		NewAccountThreshold: cfg.Engine.NewAccountThreshold,
	}
	corr := correlator.New(correlator.Deps{
		Sink:    webhookSink,
		Store:   store,
		Querier: querier,
	}, opts, logger)
	corr.Start(ctx)

	// Gateway consumer.
	consumer, err := gateway.NewConsumer(gateway.ConsumerOptions{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topic:   cfg.Kafka.Topic,
		Logger:  logger,
	}, corr)
	if err != nil {
		return fmt.Errorf("create gateway consumer: %w", err)
	}

	// Metrics and health endpoints.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server exited", zap.Error(err))
		}
	}()

	// Blocks until signal or fatal consumer stop.
	consumer.Run(ctx)

	logger.Info("Shutting down")
	if err := consumer.Close(); err != nil {
		logger.Error("consumer close failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", zap.Error(err))
	}
	return nil
}
