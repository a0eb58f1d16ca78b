// Package main provides the main entry point for the SMS campaign backend
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sms-backend/app/handlers"
	"sms-backend/app/router"
	"sms-backend/app/scheduler"
	"sms-backend/app/services"
	businessflow "sms-backend/business_flow"
	"sms-backend/config"
	"sms-backend/models"
	"sms-backend/repository"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting SMS backend...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg.Logging)

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// setupLogging routes the standard logger to stdout, a rotated file, or both
func setupLogging(cfg config.LoggingConfig) {
	if cfg.Output == "stdout" || cfg.FilePath == "" {
		return
	}

	fileWriter := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	switch cfg.Output {
	case "file":
		log.SetOutput(fileWriter)
	case "both":
		log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
	}
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// ensureSchema migrates the schema for all persisted models
func ensureSchema(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Customer{},
		&models.Campaign{},
		&models.ContactList{},
		&models.Contact{},
		&models.Message{},
		&models.Provider{},
		&models.ProviderAssignment{},
		&models.RateDeck{},
		&models.Rate{},
		&models.BillingRecord{},
		&models.BillingSettings{},
	)
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return nil, fmt.Errorf("redis cache is required for provider rate limiting")
	}

	cancel := startCacheHealthMonitor(context.Background(), rc, 30*time.Second)
	stopFuncs = append(stopFuncs, cancel)

	// Initialize repositories
	customerRepo := repository.NewCustomerRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	contactRepo := repository.NewContactRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	providerRepo := repository.NewProviderRepository(db)
	assignmentRepo := repository.NewProviderAssignmentRepository(db)
	rateDeckRepo := repository.NewRateDeckRepository(db)
	billingRepo := repository.NewBillingRecordRepository(db)
	settingsRepo := repository.NewBillingSettingsRepository(db)

	// Initialize services
	gateways := services.NewGatewayRegistry(cfg.Gateways)
	sippyClient := services.NewSippyClient(&cfg.Sippy)
	rateLimiter := services.NewRedisRateLimiter(rc)

	// Initialize flows
	rateFlow := businessflow.NewRateFlow(rateDeckRepo)

	routingFlow := businessflow.NewRoutingFlow(
		assignmentRepo,
		providerRepo,
		rateLimiter,
	)

	campaignFlow := businessflow.NewCampaignFlow(
		campaignRepo,
		customerRepo,
		contactRepo,
		rateFlow,
		db,
	)

	usageFlow := businessflow.NewUsageFlow(messageRepo, billingRepo)

	chargeFlow := businessflow.NewChargeFlow(
		billingRepo,
		customerRepo,
		sippyClient,
	)

	triggerFlow := businessflow.NewBillingTriggerFlow(
		settingsRepo,
		billingRepo,
		messageRepo,
		customerRepo,
		usageFlow,
		chargeFlow,
	)

	deliveryFlow := businessflow.NewDeliveryFlow(messageRepo, campaignRepo)

	// Initialize handlers
	campaignHandler := handlers.NewCampaignHandler(campaignFlow)
	billingHandler := handlers.NewBillingHandler(billingRepo, chargeFlow)
	webhookHandler := handlers.NewWebhookHandler(deliveryFlow)

	// Initialize router
	appRouter := router.NewFiberRouter(
		campaignHandler,
		billingHandler,
		webhookHandler,
		cfg.Security.AllowedOrigins,
	)

	// Start message dispatcher
	dispatcher := scheduler.NewMessageDispatcher(
		campaignRepo,
		contactRepo,
		messageRepo,
		campaignFlow,
		routingFlow,
		rateFlow,
		triggerFlow,
		gateways,
		log.Default(),
		cfg.Dispatch.Interval,
		cfg.Dispatch.Workers,
	)
	stopFuncs = append(stopFuncs, dispatcher.Start(context.Background()))

	// Start billing runner
	billingRunner := scheduler.NewBillingRunner(
		customerRepo,
		triggerFlow,
		chargeFlow,
		log.Default(),
		cfg.Billing.Interval,
	)
	stopFuncs = append(stopFuncs, billingRunner.Start(context.Background()))

	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
