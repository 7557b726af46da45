package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thereal-osas/broker-sub006/config"
	"github.com/thereal-osas/broker-sub006/internal/accrual"
	"github.com/thereal-osas/broker-sub006/internal/api"
	"github.com/thereal-osas/broker-sub006/internal/auth"
	"github.com/thereal-osas/broker-sub006/internal/cache"
	"github.com/thereal-osas/broker-sub006/internal/database"
	"github.com/thereal-osas/broker-sub006/internal/events"
	"github.com/thereal-osas/broker-sub006/internal/logging"
	"github.com/thereal-osas/broker-sub006/internal/referral"
	"github.com/thereal-osas/broker-sub006/internal/vault"
	"github.com/thereal-osas/broker-sub006/internal/withdrawal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not configured yet at this point.
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  cfg.LoggingConfig.Level,
		Pretty: cfg.LoggingConfig.Pretty,
	})

	ctx := context.Background()

	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create vault client")
	}

	jwtSecret := cfg.AuthConfig.JWTSecret
	dbPassword := cfg.DatabaseConfig.Password
	if vaultClient.IsEnabled() {
		if secret, err := vaultClient.GetSecret(ctx, vault.SecretJWTSigningKey); err == nil {
			jwtSecret = secret
		} else if jwtSecret == "" {
			logger.Fatal().Err(err).Msg("JWT signing key unavailable from vault and environment")
		}
		if password, err := vaultClient.GetSecret(ctx, vault.SecretDBPassword); err == nil {
			dbPassword = password
		}
	}

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: dbPassword,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	repo := database.NewRepository(db)
	eventBus := events.NewEventBus()

	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis cache unavailable, reads fall back to database")
			cacheService = nil
		} else {
			defer cacheService.Close()
		}
	}
	balances := cache.NewBalanceCache(cacheService, repo, logger)
	lastRuns := cache.NewRunSummaryCache(cacheService, logger)

	jwtManager := auth.NewJWTManager(jwtSecret, cfg.AuthConfig.AccessTokenDuration)
	passwords := auth.NewPasswordManager(cfg.AuthConfig.BcryptCost, cfg.AuthConfig.MinPasswordLength)
	authService := auth.NewService(repo, jwtManager, passwords, logger)

	withdrawals := withdrawal.NewService(
		repo,
		eventBus,
		decimal.NewFromFloat(cfg.WithdrawalConfig.MinAmount),
		logger,
	)

	referralRate := decimal.Zero
	if cfg.ReferralConfig.Enabled {
		referralRate = decimal.NewFromFloat(cfg.ReferralConfig.CommissionRate)
	}
	referrals := referral.NewService(repo, repo, balances, referralRate, logger)

	orchestrator := accrual.NewOrchestrator(repo, repo, eventBus, balances, accrual.Config{
		MaxConcurrent:      cfg.DistributionConfig.MaxConcurrent,
		ContractTimeout:    cfg.DistributionConfig.ContractTimeout,
		InvestmentCooldown: cfg.DistributionConfig.InvestmentCooldown,
		LiveTradeCooldown:  cfg.DistributionConfig.LiveTradeCooldown,
	}, logger)

	var scheduler *accrual.Scheduler
	if cfg.DistributionConfig.SchedulerEnabled {
		scheduler = accrual.NewScheduler(orchestrator, cfg.DistributionConfig.SchedulerInterval, logger)
		if err := scheduler.Start(); err != nil {
			logger.Error().Err(err).Msg("Failed to start distribution scheduler")
		}
	}

	server := api.NewServer(
		api.ServerConfig{
			Host:           cfg.ServerConfig.Host,
			Port:           cfg.ServerConfig.Port,
			AllowedOrigins: splitOrigins(cfg.ServerConfig.AllowedOrigins),
			ReadTimeout:    time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
			WriteTimeout:   time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
			ProductionMode: os.Getenv("GIN_MODE") == "release",
		},
		repo,
		balances,
		lastRuns,
		eventBus,
		authService,
		jwtManager,
		withdrawals,
		orchestrator,
		referrals,
		logger,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server stopped")
		}
	}

	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}

	logger.Info().Msg("Shutdown complete")
}

// splitOrigins parses the comma-separated SERVER_ALLOWED_ORIGINS value.
func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
