package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aJV99/CommodiTrade-sub000/libs/health"
	"github.com/aJV99/CommodiTrade-sub000/libs/httpmiddleware"
	"github.com/aJV99/CommodiTrade-sub000/libs/kafka"
	"github.com/aJV99/CommodiTrade-sub000/libs/logging"
	"github.com/aJV99/CommodiTrade-sub000/libs/metrics"
	"github.com/aJV99/CommodiTrade-sub000/libs/trace"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/config"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/consumer"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/handlers"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/rate"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/service"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)
	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)
	ledgerMetrics := service.NewMetrics(registry)

	ready := health.NewManager(false)

	pool, err := connectDB(cfg)
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := storage.New(pool, logger, ledgerMetrics, storage.RetryPolicy{
		MaxAttempts: cfg.Tx.MaxAttempts,
		BaseBackoff: cfg.Tx.BaseBackoff,
	})
	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 10*time.Second)
	err = store.EnsureSchema(schemaCtx)
	cancelSchema()
	if err != nil {
		logger.Error("schema migration failed", "error", err)
		os.Exit(1)
	}
	ready.AddCheck("postgres", store)

	var (
		events        *service.EventPublisher
		consumerGroup *kafka.Consumer
	)
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, logger, kafka.NewProducerMetrics(registry))
		if err != nil {
			logger.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		publisher := kafka.Publisher(producer)
		if cfg.Kafka.Topics.DLQ != "" {
			publisher = kafka.NewDLQPublisher(producer, producer, cfg.Kafka.Topics.DLQ, logger)
		}
		events = service.NewEventPublisher(publisher, service.Topics{
			TradesExecuted:     cfg.Kafka.Topics.TradesExecuted,
			TradesCancelled:    cfg.Kafka.Topics.TradesCancelled,
			ContractTranches:   cfg.Kafka.Topics.ContractTranches,
			InventoryMovements: cfg.Kafka.Topics.InventoryMovements,
		}, logger, ledgerMetrics)

		consumerGroup, err = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, logger)
		if err != nil {
			logger.Error("kafka consumer init failed", "error", err)
			os.Exit(1)
		}
		consumerGroup.WithDLQ(producer, cfg.Kafka.Topics.DLQ).WithMaxAttempts(cfg.Kafka.MaxAttempts)
		defer consumerGroup.Close()
	}

	ledgerService := service.NewLedgerService(store, events, service.Routing{
		Warehouse: cfg.Inventory.DefaultWarehouse,
		Location:  cfg.Inventory.DefaultLocation,
		Quality:   cfg.Inventory.DefaultQuality,
	}, logger, ledgerMetrics)

	var commandMiddleware []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		limiter, closeLimiter, err := buildLimiter(cfg, ready, logger)
		if err != nil {
			logger.Error("rate limiter init failed", "error", err)
			os.Exit(1)
		}
		defer closeLimiter()
		commandMiddleware = append(commandMiddleware, rate.Middleware(limiter, logger))
	}

	httpServer := buildHTTPServer(cfg, ready, registry, handlers.New(ledgerService, logger), commandMiddleware, logger)

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()

	if consumerGroup != nil {
		shipments := consumer.NewShipmentConsumer(ledgerService, logger)
		go func() {
			logger.Info("ledger consumer starting", "topic", cfg.Kafka.Topics.ShipmentsDelivered)
			if err := consumerGroup.Consume(consumerCtx, []string{cfg.Kafka.Topics.ShipmentsDelivered}, shipments); err != nil {
				logger.Error("kafka consumer error", "error", err)
			}
		}()
	}

	go func() {
		logger.Info("ledger http starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	ready.SetReady(true)
	waitForShutdown(httpServer, ready, consumerCancel, cfg.App.HTTP.ShutdownTimeout, logger)
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func buildLimiter(cfg *config.Config, ready *health.Manager, logger *slog.Logger) (rate.Limiter, func() error, error) {
	memory := func() (rate.Limiter, func() error, error) {
		return rate.NewMemory(cfg.RateLimit.Requests, cfg.RateLimit.Window), func() error { return nil }, nil
	}
	if cfg.RateLimit.Backend != "redis" {
		return memory()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if cfg.App.Env == "dev" || cfg.App.Env == "test" {
			logger.Warn("redis rate limiter unavailable, falling back to memory", "error", err)
			return memory()
		}
		return nil, nil, err
	}

	ready.AddCheck("redis", redisPinger{client: client})
	return rate.NewRedisLimiter(client, cfg.RateLimit.Requests, cfg.RateLimit.Window, ""), client.Close, nil
}

func buildHTTPServer(cfg *config.Config, ready *health.Manager, registry *prometheus.Registry, h *handlers.Handler, commandMiddleware []gin.HandlerFunc, logger *slog.Logger) *http.Server {
	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName, "/healthz", "/readyz", cfg.App.MetricsPath))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	h.Register(router, commandMiddleware...)

	addr := fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	return &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}
}

func waitForShutdown(httpServer *http.Server, ready *health.Manager, cancel context.CancelFunc, timeout time.Duration, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown started")
	ready.SetReady(false)
	cancel()

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancelTimeout := context.WithTimeout(context.Background(), timeout)
	defer cancelTimeout()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
