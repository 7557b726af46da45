// Package config loads platform configuration from config.json with
// environment variable overrides. A .env file is honored when present.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerConfig       ServerConfig       `json:"server"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	AuthConfig         AuthConfig         `json:"auth"`
	VaultConfig        VaultConfig        `json:"vault"`
	LoggingConfig      LoggingConfig      `json:"logging"`
	DistributionConfig DistributionConfig `json:"distribution"`
	WithdrawalConfig   WithdrawalConfig   `json:"withdrawal"`
	ReferralConfig     ReferralConfig     `json:"referral"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // seconds
	WriteTimeout    int    `json:"write_timeout"`    // seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // seconds
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for the balance cache
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// AuthConfig holds JWT and password policy configuration
type AuthConfig struct {
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	BcryptCost          int           `json:"bcrypt_cost"`
	MinPasswordLength   int           `json:"min_password_length"`
}

// VaultConfig holds optional HashiCorp Vault secret-source configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Pretty bool   `json:"pretty"` // console output instead of JSON
}

// DistributionConfig drives the profit distribution orchestrator
type DistributionConfig struct {
	MaxConcurrent      int           `json:"max_concurrent"`      // contract worker pool size
	ContractTimeout    time.Duration `json:"contract_timeout"`    // per-contract unit-of-work budget
	InvestmentCooldown time.Duration `json:"investment_cooldown"` // min gap between investment runs
	LiveTradeCooldown  time.Duration `json:"live_trade_cooldown"` // min gap between live-trade runs
	SchedulerEnabled   bool          `json:"scheduler_enabled"`   // background trigger loop
	SchedulerInterval  time.Duration `json:"scheduler_interval"`  // how often the loop fires
}

// WithdrawalConfig drives withdrawal settlement
type WithdrawalConfig struct {
	MinAmount float64 `json:"min_amount"`
}

// ReferralConfig drives the commission hook fired on contract funding
type ReferralConfig struct {
	Enabled        bool    `json:"enabled"`
	CommissionRate float64 `json:"commission_rate"` // fraction of the funded principal
}

func Load() (*Config, error) {
	// Optional .env for local development; real deployments set env vars.
	_ = godotenv.Load()

	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	if cfg.AuthConfig.JWTSecret == "" && !cfg.VaultConfig.Enabled {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required when vault is disabled")
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Server
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Database
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", 5432)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", "broker")
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", "broker")
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	// Redis
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)

	// Auth
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", 24*time.Hour)
	cfg.AuthConfig.BcryptCost = getEnvIntOrDefault("AUTH_BCRYPT_COST", 12)
	cfg.AuthConfig.MinPasswordLength = getEnvIntOrDefault("AUTH_MIN_PASSWORD_LENGTH", 8)

	// Vault
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "broker/platform")
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.LoggingConfig.Pretty = getEnvOrDefault("LOG_PRETTY", "false") == "true"

	// Distribution
	cfg.DistributionConfig.MaxConcurrent = getEnvIntOrDefault("DISTRIBUTION_MAX_CONCURRENT", 5)
	cfg.DistributionConfig.ContractTimeout = getEnvDurationOrDefault("DISTRIBUTION_CONTRACT_TIMEOUT", 30*time.Second)
	cfg.DistributionConfig.InvestmentCooldown = getEnvDurationOrDefault("DISTRIBUTION_INVESTMENT_COOLDOWN", 20*time.Hour)
	cfg.DistributionConfig.LiveTradeCooldown = getEnvDurationOrDefault("DISTRIBUTION_LIVE_TRADE_COOLDOWN", 45*time.Minute)
	cfg.DistributionConfig.SchedulerEnabled = getEnvOrDefault("DISTRIBUTION_SCHEDULER_ENABLED", "false") == "true"
	cfg.DistributionConfig.SchedulerInterval = getEnvDurationOrDefault("DISTRIBUTION_SCHEDULER_INTERVAL", 15*time.Minute)

	// Withdrawal
	cfg.WithdrawalConfig.MinAmount = getEnvFloatOrDefault("WITHDRAWAL_MIN_AMOUNT", 10.0)

	// Referral
	cfg.ReferralConfig.Enabled = getEnvOrDefault("REFERRAL_ENABLED", "true") == "true"
	cfg.ReferralConfig.CommissionRate = getEnvFloatOrDefault("REFERRAL_COMMISSION_RATE", 0.05)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
