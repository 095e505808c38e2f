package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/notify"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

// productStore is what the server needs from a catalog backend.
type productStore interface {
	port.ProductRepository
	port.ProductSeeder
}

var sampleProducts = []domain.Product{
	{ID: 1, Name: "Laptop Gaming", UnitPrice: 12000000, Stock: 10, Category: "Elektronik", Description: "Laptop gaming dengan GPU terbaru"},
	{ID: 2, Name: "Smartphone", UnitPrice: 5000000, Stock: 15, Category: "Elektronik", Description: "Smartphone dengan kamera 108MP"},
	{ID: 3, Name: "T-Shirt Casual", UnitPrice: 150000, Stock: 50, Category: "Fashion", Description: "Kaos katun nyaman dipakai sehari-hari"},
	{ID: 4, Name: "Sepatu Sneakers", UnitPrice: 350000, Stock: 25, Category: "Fashion", Description: "Sneakers ringan untuk olahraga"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	products, closeProducts, err := openProductStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open product store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	if cfg.SeedProducts {
		if err := seed(ctx, products, logger); err != nil {
			logger.Fatal("failed to seed products", zap.Error(err))
		}
	}

	sessions, stockCache, closeSessions, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open session store", zap.Error(err))
	}

	// Initialize services
	m := metrics.New()
	validator := service.NewInventoryValidator(products, logger, m)
	carts := service.NewCartService(products, sessions, stockCache, validator, logger, m)
	checkout := service.NewCheckoutService(products, sessions, stockCache, validator, cfg.ShippingPolicy(), cfg.NotifyQueue, logger, m)
	checkout.SetCommitTimeout(cfg.CommitTimeout)

	// Start notification workers
	whatsApp := notify.WhatsApp{Number: cfg.WhatsAppNumber}
	notifier, closeNotifier := newNotifier(cfg, whatsApp, logger)

	var wg sync.WaitGroup
	for i := 0; i < cfg.NotifyWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, checkout.GetOrderQueue(), notifier, cfg.NotifyTimeout, logger)
		}(i)
	}
	logger.Info("started notification workers", zap.Int("count", cfg.NotifyWorkers))

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterStorefrontServer(grpcServer, handler.NewGRPCHandler(carts, validator, checkout, whatsApp, logger))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

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
	httpHandler := handler.NewHTTPHandler(products, carts, checkout, whatsApp, cfg.CartTTL, logger, m)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Close order queue and wait for workers
	checkout.Close()
	wg.Wait()
	logger.Info("workers stopped")

	closeNotifier()
	closeSessions()
	closeProducts()
	logger.Info("connections closed")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if lvl.Level() == zap.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	return cfg.Build()
}

func openProductStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (productStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping mysql: %w", err)
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("connected to mysql")
		return adapter, func() { db.Close() }, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		adapter := storage.NewPostgresAdapter(pool)
		if err := adapter.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("connected to postgres")
		return adapter, pool.Close, nil

	default:
		logger.Warn("using in-memory product store, stock is lost on restart")
		return storage.NewMemoryProductStore(), func() {}, nil
	}
}

// openSessionStore returns a nil StockCache when sessions live in memory;
// cart mutations then read stock from the product store directly.
func openSessionStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (port.SessionRepository, port.StockCache, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR empty, sessions kept in process memory")
		return storage.NewMemorySessionStore(), nil, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("connected to redis")

	adapter := storage.NewRedisAdapter(rdb, cfg.CartTTL, cfg.StockCacheTTL)
	return adapter, adapter, func() { rdb.Close() }, nil
}

// seed adds the sample products that are missing. Rows already in the
// catalog keep their stock, sold out or not.
func seed(ctx context.Context, store port.ProductSeeder, logger *zap.Logger) error {
	added := 0
	for _, p := range sampleProducts {
		inserted, err := store.InsertProduct(ctx, p)
		if err != nil {
			return fmt.Errorf("seed product %d: %w", p.ID, err)
		}
		if inserted {
			added++
		}
	}
	logger.Info("seeded sample products", zap.Int("added", added), zap.Int("total", len(sampleProducts)))
	return nil
}

func newNotifier(cfg config.Config, whatsApp notify.WhatsApp, logger *zap.Logger) (port.OrderNotifier, func()) {
	notifiers := notify.Multi{notify.NewLogNotifier(logger, whatsApp)}
	brokers := notify.ParseBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		return notifiers, func() {}
	}

	publisher := notify.NewKafkaPublisher(brokers, cfg.KafkaTopic)
	logger.Info("publishing order events", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaTopic))
	return append(notifiers, publisher), func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("kafka writer close failed", zap.Error(err))
		}
	}
}

func workerLoop(id int, queue <-chan domain.OrderSummary, notifier port.OrderNotifier, timeout time.Duration, logger *zap.Logger) {
	for order := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)

		// the order is already settled; a failed notification is only reported
		if err := notifier.Notify(ctx, order); err != nil {
			logger.Error("order notification failed",
				zap.Int("worker", id),
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		} else {
			logger.Debug("order notified", zap.Int("worker", id), zap.String("order_id", order.ID))
		}

		cancel()
	}
}
