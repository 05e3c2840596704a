package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleet-bridge/internal/config"
	"github.com/fleet-bridge/internal/gateway"
	"github.com/fleet-bridge/internal/handler"
	"github.com/fleet-bridge/internal/middleware"
	"github.com/fleet-bridge/internal/models"
	"github.com/fleet-bridge/internal/pnl"
	"github.com/fleet-bridge/internal/queue"
	"github.com/fleet-bridge/internal/repository"
	"github.com/fleet-bridge/internal/service"
	"github.com/fleet-bridge/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Build info (injected at build time via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize file logging
	if err := middleware.InitLogger("logs"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis
	rdb := initRedis(cfg)

	// Auto migrate database
	if err := autoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	executorRepo := repository.NewExecutorRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	commandRepo := repository.NewCommandRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Initialize the delivery queue and restore any saved snapshot
	cmdQueue := queue.New[models.TradeCommand](cfg.Fleet.QueueMaxItems)
	snapshots := queue.NewSnapshotStore(rdb, "queue:commands", 0)
	ctx := context.Background()
	if err := queue.Load(ctx, snapshots, cmdQueue); err != nil {
		if errors.Is(err, queue.ErrNoSnapshot) {
			log.Println("No queue snapshot found, starting empty")
		} else {
			log.Printf("Warning: failed to restore queue snapshot: %v", err)
		}
	} else {
		log.Printf("Restored %d queued commands from snapshot", cmdQueue.Size())
	}

	// The gateway authenticates upgrades through the fleet service; the
	// closure defers resolution until the service exists.
	var fleetService *service.FleetService
	gw := gateway.NewWSGateway(func(apiKey, apiSecret string) (string, error) {
		return fleetService.Authenticate(apiKey, apiSecret)
	})

	// Alerting: webhook fan-out when configured, log-only otherwise
	var alertService *service.AlertService
	if cfg.Fleet.AlertWebhookURL != "" {
		alertService = service.NewAlertService(service.NewWebhookNotifier(cfg.Fleet.AlertWebhookURL))
	} else {
		alertService = service.NewAlertService()
	}

	// Initialize services
	authService := service.NewAuthService(userRepo, cfg.JWT)
	fleetService = service.NewFleetService(
		executorRepo,
		tradeRepo,
		commandRepo,
		auditRepo,
		gw,
		cmdQueue,
		alertService,
		cfg.Fleet.MaxAttempts,
	)
	if err := fleetService.Start(); err != nil {
		log.Fatalf("Failed to start fleet service: %v", err)
	}

	// Inbound gateway events route back into the fleet core
	gw.OnHeartbeat = fleetService.RecordHeartbeat
	gw.OnDisconnect = fleetService.HandleDisconnection

	// P&L engine with rates hydrated from Redis
	engine := pnl.NewEngine(cfg.Fleet.AccountCurrency, cfg.Fleet.Leverage)
	rateStore := pnl.NewRateStore(rdb, 0)
	if err := rateStore.Hydrate(ctx, engine); err != nil {
		log.Printf("Warning: failed to hydrate exchange rates: %v", err)
	}
	reportService := service.NewReportService(tradeRepo, engine)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService)
	fleetHandler := handler.NewFleetHandler(fleetService)
	reportHandler := handler.NewReportHandler(reportService, cmdQueue)

	// Background workers
	monitorWorker := worker.NewMonitorWorker(fleetService, gw, cfg.Fleet.MonitorInterval)
	dispatchWorker := worker.NewDispatchWorker(
		cmdQueue,
		gw,
		commandRepo,
		auditRepo,
		cfg.Fleet.DispatchInterval,
		cfg.Fleet.RetryBackoff,
		cfg.Fleet.RetryBackoffMax,
	)
	go monitorWorker.Start()
	go dispatchWorker.Start()

	// Create Gin router
	router := gin.Default()
	router.Use(middleware.RequestLoggerMiddleware())
	router.Use(corsMiddleware())

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"version":    Version,
			"commit":     Commit,
			"build_time": BuildTime,
			"time":       time.Now().Unix(),
			"executors":  len(gw.ConnectedExecutors()),
			"queued":     cmdQueue.Size(),
		})
	})

	// Executor agent websocket endpoint
	router.GET("/ws/executor", gin.WrapF(gw.HandleUpgrade))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Auth routes (public)
		authHandler.RegisterRoutes(v1)

		// Fleet and report routes (protected)
		authMiddleware := middleware.AuthMiddleware(authService)
		fleetHandler.RegisterRoutes(v1, authMiddleware)
		reportHandler.RegisterRoutes(v1, authMiddleware)
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop workers before draining connections so no dispatch races
	// the final snapshot.
	monitorWorker.Stop()
	dispatchWorker.Stop()
	fleetService.Stop()
	gw.Close()

	// Persist the remaining queue so durable commands survive restart
	if err := queue.Save(ctx, snapshots, cmdQueue); err != nil {
		log.Printf("Error saving queue snapshot: %v", err)
	} else {
		log.Printf("Saved queue snapshot with %d commands", cmdQueue.Size())
	}

	// Graceful shutdown with 10 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Close Redis connection
	if err := rdb.Close(); err != nil {
		log.Printf("Error closing Redis connection: %v", err)
	}

	log.Println("Server exited properly")
}

func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.Server.Mode == "release" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Executor{},
		&models.Trade{},
		&models.TradeCommand{},
		&models.AuditLog{},
	)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-API-KEY, X-API-SECRET")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
