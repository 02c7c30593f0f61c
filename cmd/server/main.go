package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/stock-ingest/internal/adapter/handler"
	"github.com/rl1809/stock-ingest/internal/adapter/messaging"
	"github.com/rl1809/stock-ingest/internal/adapter/storage"
	"github.com/rl1809/stock-ingest/internal/config"
	"github.com/rl1809/stock-ingest/internal/core/service"
	"github.com/rl1809/stock-ingest/internal/platform/observability"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	providers, otelErr := observability.Setup(ctx, cfg)
	logger := observability.NewLogger(cfg.ServiceName, cfg.OtelEnabled())
	defer logger.Sync()
	if otelErr != nil {
		logger.Warn("telemetry setup incomplete", zap.Error(otelErr))
	}

	consistency, err := storage.ParseConsistency(cfg.ScyllaConsistency)
	if err != nil {
		logger.Fatal("invalid scylla consistency", zap.Error(err))
	}
	dialect, err := storage.DialectFor(cfg.RelationalDriver)
	if err != nil {
		logger.Fatal("invalid relational driver", zap.Error(err))
	}

	// Initialize relational store
	db, err := storage.OpenSQL(ctx, dialect, cfg.RelationalDSN())
	if err != nil {
		logger.Fatal("failed to connect relational store", zap.Error(err))
	}
	logger.Info("connected to relational store", zap.String("driver", dialect.Name))

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	// Initialize Kafka producer
	writer, err := messaging.NewKafkaWriter(cfg.KafkaBroker, cfg.KafkaTopic, cfg.ServiceName,
		cfg.KafkaBatchTimeout, providers.TracerProvider)
	if err != nil {
		logger.Fatal("failed to create kafka writer", zap.Error(err))
	}

	// Initialize adapters
	repos := storage.NewRepositoryFactory(storage.ScyllaConfig{
		Hosts:             cfg.ScyllaHosts,
		Keyspace:          cfg.ScyllaKeyspace,
		Datacenter:        cfg.ScyllaDatacenter,
		ReplicationFactor: cfg.ScyllaReplicationFactor,
		Consistency:       consistency,
		Timeout:           cfg.ScyllaTimeout,
		Username:          cfg.ScyllaUsername,
		Password:          cfg.ScyllaPassword,
	}, db, dialect, cfg.BatchSize, logger)
	publishers := messaging.NewPublisherFactory(writer, cfg.KafkaTopic, cfg.PublishTimeout, logger.Named("kafka"))
	cache := storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)

	// The request path shares one scylla session for the process lifetime.
	// Audit rows and ingestion cycles take fresh repositories from the factory.
	stockRepo := repos.NewScyllaAdapter()
	if err := stockRepo.Open(ctx); err != nil {
		logger.Fatal("failed to open scylla", zap.Error(err))
	}

	// Initialize services
	coordinator := service.NewPersistenceCoordinator(repos, cfg.RecordDelay, logger.Named("persistence"))
	ingestion := service.NewIngestionService(coordinator, publishers, cfg.IngestQueueSize, logger.Named("ingestion"))
	adjustments := service.NewStockAdjustmentService(stockRepo, repos, cache, cfg.DefaultStoreID, logger.Named("adjustment"))
	queries := service.NewStockQueryService(stockRepo, cache, cfg.StockCacheTTL, logger.Named("query"))

	// Start worker pool
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	ingestion.Start(workerCtx, cfg.IngestWorkers)
	logger.Info("started ingestion workers", zap.Int("workers", cfg.IngestWorkers))

	// Start snapshot generator
	driverCtx, stopDriver := context.WithCancel(ctx)
	defer stopDriver()
	if cfg.SnapshotCount > 0 {
		driver := service.NewSnapshotDriver(ingestion,
			service.NewSnapshotGenerator(uint64(time.Now().UnixNano()), service.DefaultStores),
			cfg.SnapshotCount, cfg.SnapshotLines, cfg.SnapshotInterval, logger.Named("generator"))
		go func() {
			accepted, err := driver.Run(driverCtx)
			logger.Info("snapshot generator finished",
				zap.Int("accepted", accepted), zap.Int("scheduled", cfg.SnapshotCount), zap.Error(err))
		}()
	}

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(cfg.ServiceName))
	handler.NewHTTPHandler(ingestion, adjustments, queries, logger.Named("http")).Register(router)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	stopDriver()
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	// Stop gRPC server
	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Let queued snapshots finish unless shutdown takes too long
	go func() {
		<-shutdownCtx.Done()
		cancelWorkers()
	}()
	ingestion.Close()
	logger.Info("workers stopped")

	// Close connections
	if err := stockRepo.Close(shutdownCtx); err != nil {
		logger.Warn("scylla close", zap.Error(err))
	}
	if err := writer.Close(); err != nil {
		logger.Warn("kafka writer close", zap.Error(err))
	}
	rdb.Close()
	db.Close()
	logger.Info("connections closed")

	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
}
