// Package cache provides Redis-based caching for balance reads with
// graceful degradation: when Redis is unavailable callers fall back to
// database queries.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/thereal-osas/broker-sub006/config"
)

// Key prefixes for different cache types
const (
	PrefixBalance    = "user:%s:balance"
	PrefixRunSummary = "distribution:%s:last_run"
)

// Default TTLs
const (
	DefaultBalanceTTL = 5 * time.Minute
	DefaultRunTTL     = time.Hour
)

// CacheService wraps a Redis client with a small circuit breaker so a
// Redis outage never takes down the read path.
type CacheService struct {
	client       *redis.Client
	config       config.RedisConfig
	logger       zerolog.Logger
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// NewCacheService connects to Redis and verifies connectivity. A failed
// initial ping returns the service in degraded mode rather than an error.
func NewCacheService(cfg config.RedisConfig, logger zerolog.Logger) (*CacheService, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	cs := &CacheService{
		client:        client,
		config:        cfg,
		logger:        logger.With().Str("component", "cache").Logger(),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		cs.logger.Warn().Err(err).Msg("Initial Redis connection failed, running degraded")
		return cs, nil
	}

	cs.healthy = true
	cs.lastCheck = time.Now()
	cs.logger.Info().Str("address", cfg.Address).Msg("Redis connected")

	return cs, nil
}

// IsHealthy returns whether Redis is currently available.
func (cs *CacheService) IsHealthy() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.healthy
}

func (cs *CacheService) recordFailure() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.failureCount++
	if cs.failureCount >= cs.maxFailures {
		if cs.healthy {
			cs.logger.Warn().Int("failures", cs.failureCount).Msg("Circuit breaker open, Redis marked unhealthy")
		}
		cs.healthy = false
	}
}

func (cs *CacheService) recordSuccess() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.healthy {
		cs.logger.Info().Msg("Circuit breaker closed, Redis recovered")
	}
	cs.healthy = true
	cs.failureCount = 0
	cs.lastCheck = time.Now()
}

// checkHealth performs a background health check if enough time has passed.
func (cs *CacheService) checkHealth() {
	cs.mu.RLock()
	shouldCheck := !cs.healthy && time.Since(cs.lastCheck) >= cs.checkInterval
	cs.mu.RUnlock()

	if !shouldCheck {
		return
	}

	go func() {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := cs.client.Ping(pingCtx).Err(); err == nil {
			cs.recordSuccess()
		}
	}()
}

// Get retrieves a value from cache. A redis.Nil error is a cache miss,
// not a failure.
func (cs *CacheService) Get(ctx context.Context, key string) (string, error) {
	cs.checkHealth()

	if !cs.IsHealthy() {
		return "", fmt.Errorf("redis unavailable (circuit breaker open)")
	}

	result, err := cs.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", err
		}
		cs.recordFailure()
		return "", fmt.Errorf("redis get failed: %w", err)
	}

	cs.recordSuccess()
	return result, nil
}

// Set stores a value in cache with TTL.
func (cs *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	cs.checkHealth()

	if !cs.IsHealthy() {
		return fmt.Errorf("redis unavailable (circuit breaker open)")
	}

	var data string
	switch v := value.(type) {
	case string:
		data = v
	case []byte:
		data = string(v)
	default:
		jsonData, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal value: %w", err)
		}
		data = string(jsonData)
	}

	if err := cs.client.Set(ctx, key, data, ttl).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis set failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

// Delete removes a key from cache.
func (cs *CacheService) Delete(ctx context.Context, key string) error {
	cs.checkHealth()

	if !cs.IsHealthy() {
		return fmt.Errorf("redis unavailable (circuit breaker open)")
	}

	if err := cs.client.Del(ctx, key).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis delete failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

// GetJSON retrieves and unmarshals a JSON value from cache.
func (cs *CacheService) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := cs.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return nil
}

// SetJSON marshals and stores a JSON value in cache.
func (cs *CacheService) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return cs.Set(ctx, key, value, ttl)
}

// Close closes the Redis connection.
func (cs *CacheService) Close() error {
	if cs.client != nil {
		return cs.client.Close()
	}
	return nil
}

// Ping checks Redis connectivity.
func (cs *CacheService) Ping(ctx context.Context) error {
	if err := cs.client.Ping(ctx).Err(); err != nil {
		cs.recordFailure()
		return err
	}
	cs.recordSuccess()
	return nil
}

// Stats returns cache statistics for monitoring.
type Stats struct {
	Healthy      bool   `json:"healthy"`
	FailureCount int    `json:"failure_count"`
	Address      string `json:"address"`
	PoolSize     int    `json:"pool_size"`
}

// GetStats returns current cache statistics.
func (cs *CacheService) GetStats() Stats {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	return Stats{
		Healthy:      cs.healthy,
		FailureCount: cs.failureCount,
		Address:      cs.config.Address,
		PoolSize:     cs.config.PoolSize,
	}
}

// BalanceKey generates a cache key for a user's balance snapshot.
func BalanceKey(ownerID string) string {
	return fmt.Sprintf(PrefixBalance, ownerID)
}

// RunSummaryKey generates a cache key for the last run of a contract class.
func RunSummaryKey(class string) string {
	return fmt.Sprintf(PrefixRunSummary, class)
}
