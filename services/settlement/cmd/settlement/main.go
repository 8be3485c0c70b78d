package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joesimop/farmers-backend/libs/health"
	"github.com/joesimop/farmers-backend/libs/httpmiddleware"
	"github.com/joesimop/farmers-backend/libs/kafka"
	"github.com/joesimop/farmers-backend/libs/logging"
	"github.com/joesimop/farmers-backend/libs/metrics"
	"github.com/joesimop/farmers-backend/services/settlement/internal/cache"
	"github.com/joesimop/farmers-backend/services/settlement/internal/config"
	"github.com/joesimop/farmers-backend/services/settlement/internal/handlers"
	"github.com/joesimop/farmers-backend/services/settlement/internal/service"
	"github.com/joesimop/farmers-backend/services/settlement/internal/storage"
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

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	settlementMetrics := service.NewMetrics(registry)

	ready := health.NewManager(false)

	pool, err := connectDB(cfg)
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := storage.New(pool, logger)

	redisClient := connectRedis(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	scheduleCache := cache.NewScheduleCache()
	loadCtx, loadCancel := context.WithTimeout(runCtx, 10*time.Second)
	if err := scheduleCache.Load(loadCtx, store); err != nil {
		logger.Error("fee schedule load failed", "error", err)
		loadCancel()
		os.Exit(1)
	}
	loadCancel()
	logger.Info("fee schedule cache loaded", "rules", scheduleCache.Size())
	scheduleCache.StartAutoRefresh(runCtx, store, cfg.Settlement.ScheduleRefresh, logger)

	catalogCache := cache.NewCatalogCache(redisClient, store, cfg.Settlement.CatalogTTL, logger)

	var publisher service.EventPublisher
	if cfg.Kafka.Enabled {
		kafkaMetrics := kafka.NewProducerMetrics(registry)
		producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, logger, kafkaMetrics)
		if err != nil {
			logger.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		publisher = kafka.NewDLQPublisher(producer, producer, cfg.Kafka.Topics.DeadLetter, logger)
	}

	resolver := service.NewFeeResolver(store, scheduleCache, logger)
	checkoutSvc := service.NewCheckoutService(
		store, resolver, publisher, cfg.Kafka.Topics.CheckoutSettled,
		cfg.Settlement.StrictFees, logger, settlementMetrics,
	)
	optionsSvc := service.NewOptionsService(store, catalogCache, logger)
	reportSvc := service.NewReportService(store, catalogCache, logger, settlementMetrics)

	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger))
	router.Use(httpmiddleware.Recovery(logger))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	handlers.New(checkoutSvc, optionsSvc, reportSvc, logger).Register(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	ready.SetReady(true)

	go func() {
		logger.Info("settlement http starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	waitForShutdown(httpServer, ready, runCancel, logger)
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

// connectRedis is best effort: the catalog cache degrades to direct store
// reads when redis is unreachable.
func connectRedis(cfg *config.Config, logger *slog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, token catalog cache disabled", "addr", cfg.Redis.Addr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

func waitForShutdown(httpServer *http.Server, ready *health.Manager, cancel context.CancelFunc, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown started")
	ready.SetReady(false)
	cancel()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
