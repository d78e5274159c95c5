package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-order-ledger/internal/config"
	kafkax "github.com/ariefcatur/go-order-ledger/internal/kafka"
	"github.com/ariefcatur/go-order-ledger/internal/logging"
	"github.com/ariefcatur/go-order-ledger/internal/observability"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
	"github.com/ariefcatur/go-order-ledger/internal/redisx"
	"github.com/ariefcatur/go-order-ledger/internal/stockwatch"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-stockwatch"

	logger, err := logging.New(service, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, service, logger); err != nil {
		logger.Fatal("stockwatch exited", zap.Error(err))
	}
}

func run(cfg config.Config, service string, logger *zap.Logger) error {
	if len(cfg.KafkaBrokers) == 0 || cfg.RedisAddr == "" {
		return fmt.Errorf("KAFKA_BROKERS and REDIS_ADDR are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, service, cfg.OtelEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &stockwatch.Service{
		Dedup:     redisx.NewDedup(rdb, service),
		Levels:    redisx.NewLowStock(rdb),
		Threshold: cfg.LowStockThreshold,
		Log:       logger,
	}

	topics := []string{orders.TopicOrderCreated, orders.TopicOrderDeleted}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.StockwatchGroup, topics, cfg.StockwatchWorkers, logger.Named("kafka"))

	logger.Info("stockwatch consumer started",
		zap.String("group", cfg.StockwatchGroup),
		zap.Strings("topics", topics),
		zap.Int("workers", cfg.StockwatchWorkers),
		zap.Int("threshold", cfg.LowStockThreshold))
	if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
		return fmt.Errorf("consumer: %w", err)
	}
	logger.Info("stockwatch stopped")
	return nil
}
