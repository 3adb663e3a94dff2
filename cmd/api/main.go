package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"equity-portal/grant-ledger-backend/internal/assets"
	"equity-portal/grant-ledger-backend/internal/auth"
	"equity-portal/grant-ledger-backend/internal/config"
	"equity-portal/grant-ledger-backend/internal/grants"
	"equity-portal/grant-ledger-backend/internal/notifications"
	wshub "equity-portal/grant-ledger-backend/internal/notifications/websocket"
	"equity-portal/grant-ledger-backend/internal/scheduler"
	"equity-portal/grant-ledger-backend/internal/statements"
)

func main() {
	_ = godotenv.Load()

	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if cfg.Security.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}
	treasury, err := uuid.Parse(cfg.Treasury.HolderID)
	if err != nil {
		logger.Fatal("TREASURY_HOLDER_ID must be a valid UUID", zap.Error(err))
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("failed to access database pool", zap.Error(err))
	}
	defer sqlDB.Close()
	if cfg.Database.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxConnections)
	}
	if cfg.Database.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}

	// Auth
	issuer := auth.NewTokenIssuer(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	authService := auth.NewService(db, issuer)
	if err := authService.Migrate(); err != nil {
		logger.Fatal("failed to migrate auth tables", zap.Error(err))
	}
	authHandler := auth.NewHandler(authService)

	// Asset ledgers
	equityLedger, err := assets.NewCappedEquityLedger(db, cfg.Equity.AssetCode, cfg.Equity.Decimals, cfg.Equity.CapWholeUnits)
	if err != nil {
		logger.Fatal("failed to init equity ledger", zap.Error(err))
	}
	paymentLedger, err := assets.NewPaymentLedger(db, treasury)
	if err != nil {
		logger.Fatal("failed to init payment ledger", zap.Error(err))
	}

	// Grant ledger
	grantRepo := grants.NewGormRepository(db)
	if err := grantRepo.Migrate(); err != nil {
		logger.Fatal("failed to migrate grant tables", zap.Error(err))
	}
	grantService, err := grants.NewService(db, grantRepo, equityLedger, paymentLedger, treasury, logger)
	if err != nil {
		logger.Fatal("failed to init grant service", zap.Error(err))
	}
	grantHandler := grants.NewHandler(grantService)

	// Notifications
	wsManager := wshub.NewManager(logger)
	defer wsManager.Close()
	notificationService, err := notifications.NewService(db, wsManager, logger)
	if err != nil {
		logger.Fatal("failed to init notifications", zap.Error(err))
	}
	notificationHandler := notifications.NewHandler(notificationService, func(c *gin.Context, userID uuid.UUID) error {
		_, err := wsManager.HandleConnection(c.Writer, c.Request, userID)
		return err
	})
	grantService.SetPublisher(func(e *grants.GrantEvent) {
		notificationService.NotifyGrantEvent(e.ActorID, e.GrantID, string(e.EventType), e.Payload)
	})

	// Statements
	statementService := statements.NewService(grantService)
	statementHandler := statements.NewHandler(statementService)

	// Expiry sweep
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	expiryScheduler := scheduler.NewExpiryScheduler(grantService, cfg.Scheduler.ExpirySweepSpec, logger)
	if err := expiryScheduler.Start(sweepCtx); err != nil {
		logger.Fatal("failed to start expiry scheduler", zap.Error(err))
	}
	defer expiryScheduler.Stop()

	// Setup Router
	router := gin.Default()

	authHandler.RegisterRoutes(router)

	api := router.Group("/api/v1", issuer.Middleware())
	{
		authHandler.RegisterProtectedRoutes(api)
		grantHandler.RegisterRoutes(api)
		statementHandler.RegisterRoutes(api)
		notificationHandler.RegisterRoutes(api)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.Int("port", cfg.Server.Port))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
