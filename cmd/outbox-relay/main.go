package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sessionguard/platform/internal/infra"
	"github.com/sessionguard/platform/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("outbox relay failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *infra.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox-relay connected to postgres")

	if !cfg.KafkaEnabled {
		// Without a broker the relay would delete events nobody received.
		return fmt.Errorf("KAFKA_ENABLED must be true to relay the outbox")
	}
	producer := infra.NewKafkaProducer(cfg.Brokers(), true, logger)
	defer producer.Close()

	relay := infra.NewOutboxRelay(repository.NewPgStore(pool).Outbox(), producer, logger, infra.RelayOptions{
		TopicPrefix: cfg.KafkaTopicPrefix,
		Interval:    cfg.OutboxInterval,
		BatchSize:   cfg.OutboxBatchSize,
	})
	relay.Run(ctx)
	return nil
}
