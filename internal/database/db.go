package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Info().Msg("database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Info().Msg("running database migrations")

	migrations := []string{
		// Users
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			referred_by UUID REFERENCES users(id),
			last_login_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,

		// Balances: one row per owner, every component non-negative,
		// total maintained as the sum of the monetary components.
		`CREATE TABLE IF NOT EXISTS balances (
			owner_id UUID PRIMARY KEY REFERENCES users(id),
			total DECIMAL(20, 2) NOT NULL DEFAULT 0 CHECK (total >= 0),
			deposit DECIMAL(20, 2) NOT NULL DEFAULT 0 CHECK (deposit >= 0),
			profit DECIMAL(20, 2) NOT NULL DEFAULT 0 CHECK (profit >= 0),
			bonus DECIMAL(20, 2) NOT NULL DEFAULT 0 CHECK (bonus >= 0),
			card DECIMAL(20, 2) NOT NULL DEFAULT 0 CHECK (card >= 0),
			credit_score DECIMAL(20, 2) NOT NULL DEFAULT 0 CHECK (credit_score >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Contracts: investments accrue daily, live trades hourly
		`CREATE TABLE IF NOT EXISTS contracts (
			id UUID PRIMARY KEY,
			owner_id UUID NOT NULL REFERENCES users(id),
			class VARCHAR(20) NOT NULL,
			principal DECIMAL(20, 2) NOT NULL CHECK (principal > 0),
			rate DECIMAL(10, 6) NOT NULL CHECK (rate > 0),
			duration INT NOT NULL CHECK (duration > 0),
			start_at TIMESTAMPTZ NOT NULL,
			end_at TIMESTAMPTZ,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			accrued_profit DECIMAL(20, 2) NOT NULL DEFAULT 0,
			distributed_periods INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contracts_owner ON contracts(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_contracts_class_status ON contracts(class, status)`,

		// Profit distributions: the unique (contract_id, period_key)
		// pair is the accrual idempotency anchor. Rows are immutable.
		`CREATE TABLE IF NOT EXISTS profit_distributions (
			id BIGSERIAL PRIMARY KEY,
			contract_id UUID NOT NULL REFERENCES contracts(id),
			period_key TIMESTAMPTZ NOT NULL,
			amount DECIMAL(20, 2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT uq_distribution_period UNIQUE (contract_id, period_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_distributions_contract ON profit_distributions(contract_id)`,

		// Transactions: append-only audit trail
		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			owner_id UUID NOT NULL REFERENCES users(id),
			kind VARCHAR(30) NOT NULL,
			component VARCHAR(20) NOT NULL,
			amount DECIMAL(20, 2) NOT NULL,
			reference_id VARCHAR(64),
			status VARCHAR(20) NOT NULL DEFAULT 'completed',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_owner ON transactions(owner_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_reference ON transactions(reference_id)`,

		// Withdrawal requests
		`CREATE TABLE IF NOT EXISTS withdrawal_requests (
			id UUID PRIMARY KEY,
			owner_id UUID NOT NULL REFERENCES users(id),
			amount DECIMAL(20, 2) NOT NULL CHECK (amount > 0),
			method VARCHAR(50) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			admin_notes TEXT NOT NULL DEFAULT '',
			processed_by UUID REFERENCES users(id),
			processed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_withdrawals_owner ON withdrawal_requests(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawal_requests(status)`,

		// Distribution runs: run history plus the persisted cooldown
		// anchor (started_at of the latest run per class).
		`CREATE TABLE IF NOT EXISTS distribution_runs (
			id BIGSERIAL PRIMARY KEY,
			contract_class VARCHAR(20) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ,
			processed_contracts INT NOT NULL DEFAULT 0,
			completed_contracts INT NOT NULL DEFAULT 0,
			periods_credited INT NOT NULL DEFAULT 0,
			error_count INT NOT NULL DEFAULT 0,
			total_amount DECIMAL(20, 2) NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_class_started ON distribution_runs(contract_class, started_at DESC)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info().Msg("database migrations completed")
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
