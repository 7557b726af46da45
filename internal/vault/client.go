// Package vault loads platform secrets (database password, JWT signing
// key) from HashiCorp Vault. When Vault is disabled the client serves
// values from its in-memory cache only, which keeps local development
// working without a Vault server.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"github.com/thereal-osas/broker-sub006/config"
)

// Secret names under the configured secret path.
const (
	SecretJWTSigningKey = "jwt_signing_key"
	SecretDBPassword    = "db_password"
	SecretRedisPassword = "redis_password"
)

// Client wraps the HashiCorp Vault client with a small read cache.
type Client struct {
	client       *api.Client
	config       config.VaultConfig
	mu           sync.RWMutex
	cache        map[string]string
	cacheEnabled bool
}

// NewClient creates a new Vault client. A disabled config returns a
// cache-only client.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config:       cfg,
			cache:        make(map[string]string),
			cacheEnabled: true,
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client:       client,
		config:       cfg,
		cache:        make(map[string]string),
		cacheEnabled: true,
	}, nil
}

// GetSecret reads a named secret from the configured path.
func (c *Client) GetSecret(ctx context.Context, name string) (string, error) {
	if c.cacheEnabled {
		c.mu.RLock()
		if cached, ok := c.cache[name]; ok {
			c.mu.RUnlock()
			return cached, nil
		}
		c.mu.RUnlock()
	}

	if !c.config.Enabled {
		return "", fmt.Errorf("secret %q not found and vault is disabled", name)
	}

	path := c.secretPath()

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret %q not found", name)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid secret format")
	}

	value := getString(data, name)
	if value == "" {
		return "", fmt.Errorf("secret %q not found", name)
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cache[name] = value
		c.mu.Unlock()
	}

	return value, nil
}

// StoreSecret writes a named secret to the configured path.
func (c *Client) StoreSecret(ctx context.Context, name, value string) error {
	if !c.config.Enabled {
		c.mu.Lock()
		c.cache[name] = value
		c.mu.Unlock()
		return nil
	}

	path := c.secretPath()

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			name: value,
		},
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		return fmt.Errorf("failed to store secret in vault: %w", err)
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cache[name] = value
		c.mu.Unlock()
	}

	return nil
}

// ClearCache clears the in-memory cache.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]string)
	c.mu.Unlock()
}

// SetCacheEnabled enables or disables caching.
func (c *Client) SetCacheEnabled(enabled bool) {
	c.mu.Lock()
	c.cacheEnabled = enabled
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection.
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// NewMockClient creates a cache-only client for testing.
func NewMockClient() *Client {
	return &Client{
		config: config.VaultConfig{
			Enabled: false,
		},
		cache:        make(map[string]string),
		cacheEnabled: true,
	}
}
