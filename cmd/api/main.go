package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-order-ledger/internal/config"
	"github.com/ariefcatur/go-order-ledger/internal/httpx"
	kafkax "github.com/ariefcatur/go-order-ledger/internal/kafka"
	"github.com/ariefcatur/go-order-ledger/internal/logging"
	"github.com/ariefcatur/go-order-ledger/internal/memstore"
	"github.com/ariefcatur/go-order-ledger/internal/observability"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
	"github.com/ariefcatur/go-order-ledger/internal/postgres"
	"github.com/ariefcatur/go-order-ledger/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("order-api exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// Store
	var store orders.Store
	switch cfg.StoreDriver {
	case "memory":
		ms := memstore.New()
		if cfg.DBSeed {
			memstore.Seed(ms)
		}
		store = ms
		logger.Warn("using in-memory store, data is lost on exit")
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresConns)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()
		if cfg.DBMigrate {
			if err := postgres.Migrate(ctx, db, cfg.DBSeed); err != nil {
				return err
			}
		}
		store = postgres.NewStore(db)
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	opts := []orders.Option{
		orders.WithLogger(logger.Named("orders")),
		orders.WithMaxRetries(cfg.TxMaxRetries),
	}
	handler := &httpx.OrdersHandler{Log: logger.Named("http"), Timeout: cfg.RequestTimeout}

	// Redis (opsional)
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			logger.Warn("redis unreachable, continuing", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		opts = append(opts, orders.WithCache(redisx.NewOrderCache(rdb, redisx.TTLOrder, logger.Named("cache"))))
		handler.Idem = redisx.NewIdempotencyStore(rdb)
		handler.LowStock = redisx.NewLowStock(rdb)
	}

	// Kafka producer (opsional)
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger.Named("kafka"))
		prod.Start()
		opts = append(opts, orders.WithPublisher(kafkax.NewEventPublisher(prod, cfg.ServiceName)))
	}

	handler.Service = orders.NewService(store, opts...)
	router := httpx.NewRouter(logger)
	handler.Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		if prod != nil {
			prod.Close()      // tutup inbox -> flush & close writer
			prod.WaitClosed() // drain
		}
		return err
	})
	return g.Wait()
}
