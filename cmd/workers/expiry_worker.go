package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"equity-portal/grant-ledger-backend/internal/assets"
	"equity-portal/grant-ledger-backend/internal/config"
	"equity-portal/grant-ledger-backend/internal/grants"
	"equity-portal/grant-ledger-backend/internal/scheduler"
)

// Standalone expiry worker. Runs the same sweep the API embeds, for
// deployments that keep background work off the serving path.
func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	treasury, err := uuid.Parse(cfg.Treasury.HolderID)
	if err != nil {
		logger.Fatal("TREASURY_HOLDER_ID must be a valid UUID", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	equityLedger, err := assets.NewCappedEquityLedger(db, cfg.Equity.AssetCode, cfg.Equity.Decimals, cfg.Equity.CapWholeUnits)
	if err != nil {
		logger.Fatal("failed to init equity ledger", zap.Error(err))
	}
	paymentLedger, err := assets.NewPaymentLedger(db, treasury)
	if err != nil {
		logger.Fatal("failed to init payment ledger", zap.Error(err))
	}

	repo := grants.NewGormRepository(db)
	if err := repo.Migrate(); err != nil {
		logger.Fatal("failed to migrate grant tables", zap.Error(err))
	}
	service, err := grants.NewService(db, repo, equityLedger, paymentLedger, treasury, logger)
	if err != nil {
		logger.Fatal("failed to init grant service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := scheduler.NewExpiryScheduler(service, cfg.Scheduler.ExpirySweepSpec, logger)
	if err := sweeper.Start(ctx); err != nil {
		logger.Fatal("failed to start expiry scheduler", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("stopping expiry worker")
	sweeper.Stop()
}
