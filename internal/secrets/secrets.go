// Package secrets resolves store credentials (Neo4j, Qdrant, Temporal)
// from pluggable backends so none of them live in config files.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// SecretKey identifies common secret types.
type SecretKey string

const (
	SecretGraphPassword SecretKey = "store_password"
	SecretGraphURI      SecretKey = "store_uri"
	SecretVectorAPIKey  SecretKey = "vector_api_key"
	SecretTemporalToken SecretKey = "temporal_token"
	SecretWebhookSecret SecretKey = "webhook_secret"
)

// Provider is one secret backend. Read-only backends return errors from
// Set and Delete.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Name() string
}

// Config selects and configures the primary backend. Env vars always
// remain available as a fallback regardless of the primary.
type Config struct {
	// Provider is "env", "vault" or "file".
	Provider string
	// VaultConfig configures the vault backend.
	VaultConfig *VaultConfig
	// FileConfig configures the file backend (development only).
	FileConfig *FileConfig
	// EnvPrefix prefixes environment variable names (default "SIMFORGE_").
	EnvPrefix string
}

// DefaultConfig returns the env-backed default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "env",
		EnvPrefix: "SIMFORGE_",
	}
}

func buildProvider(cfg *Config) (Provider, error) {
	switch cfg.Provider {
	case "vault":
		if cfg.VaultConfig == nil {
			return nil, fmt.Errorf("vault config required for vault provider")
		}
		p, err := NewVaultProvider(cfg.VaultConfig)
		if err != nil {
			return nil, fmt.Errorf("create vault provider: %w", err)
		}
		return p, nil
	case "file":
		if cfg.FileConfig == nil {
			return nil, fmt.Errorf("file config required for file provider")
		}
		p, err := NewFileProvider(cfg.FileConfig)
		if err != nil {
			return nil, fmt.Errorf("create file provider: %w", err)
		}
		return p, nil
	case "env", "":
		return NewEnvProvider(cfg.EnvPrefix), nil
	default:
		return nil, fmt.Errorf("unknown secrets provider: %s", cfg.Provider)
	}
}

// Manager resolves secrets through a primary backend with env fallback,
// caching hits so Vault is not re-queried per lookup.
type Manager struct {
	primary  Provider
	fallback Provider

	cacheMu  sync.RWMutex
	cache    map[string]string
	useCache bool
}

// NewManager creates a secrets manager with the specified configuration.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	primary, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	return &Manager{
		primary:  primary,
		fallback: NewEnvProvider(cfg.EnvPrefix),
		cache:    make(map[string]string),
		useCache: true,
	}, nil
}

// Get resolves a secret from cache, then the primary backend, then env.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	if m.useCache {
		m.cacheMu.RLock()
		val, ok := m.cache[key]
		m.cacheMu.RUnlock()
		if ok {
			return val, nil
		}
	}

	for _, p := range []Provider{m.primary, m.fallback} {
		if p == nil {
			continue
		}
		if val, err := p.Get(ctx, key); err == nil && val != "" {
			m.cacheSet(key, val)
			return val, nil
		}
	}

	return "", fmt.Errorf("secret not found: %s", key)
}

// GetOrDefault resolves a secret, falling back to defaultVal.
func (m *Manager) GetOrDefault(ctx context.Context, key, defaultVal string) string {
	val, err := m.Get(ctx, key)
	if err != nil || val == "" {
		return defaultVal
	}
	return val
}

// MustGet resolves a secret or panics. For credentials the process cannot
// start without.
func (m *Manager) MustGet(ctx context.Context, key string) string {
	val, err := m.Get(ctx, key)
	if err != nil {
		panic(fmt.Sprintf("required secret not found: %s", key))
	}
	return val
}

// Set writes a secret through the primary backend.
func (m *Manager) Set(ctx context.Context, key, value string) error {
	if err := m.primary.Set(ctx, key, value); err != nil {
		return err
	}
	m.cacheSet(key, value)
	return nil
}

// Delete removes a secret from the primary backend.
func (m *Manager) Delete(ctx context.Context, key string) error {
	if err := m.primary.Delete(ctx, key); err != nil {
		return err
	}
	m.cacheMu.Lock()
	delete(m.cache, key)
	m.cacheMu.Unlock()
	return nil
}

// ClearCache drops all cached values.
func (m *Manager) ClearCache() {
	m.cacheMu.Lock()
	m.cache = make(map[string]string)
	m.cacheMu.Unlock()
}

// DisableCache turns caching off, so every Get hits the backends.
func (m *Manager) DisableCache() {
	m.useCache = false
}

func (m *Manager) cacheSet(key, value string) {
	if !m.useCache {
		return
	}
	m.cacheMu.Lock()
	m.cache[key] = value
	m.cacheMu.Unlock()
}

// EnvProvider reads secrets from environment variables, prefixed first
// (SIMFORGE_STORE_PASSWORD) then bare (STORE_PASSWORD).
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment-based secrets provider.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = "SIMFORGE_"
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) envKey(key string) string {
	return p.prefix + strings.ToUpper(key)
}

func (p *EnvProvider) Get(ctx context.Context, key string) (string, error) {
	if val := os.Getenv(p.envKey(key)); val != "" {
		return val, nil
	}
	if val := os.Getenv(strings.ToUpper(key)); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("env var not found: %s", p.envKey(key))
}

func (p *EnvProvider) Set(ctx context.Context, key, value string) error {
	return os.Setenv(p.envKey(key), value)
}

func (p *EnvProvider) Delete(ctx context.Context, key string) error {
	return os.Unsetenv(p.envKey(key))
}

// Process-wide manager, initialized on first use when Init is never called.
var (
	globalManager *Manager
	managerOnce   sync.Once
)

// Init initializes the global secrets manager. Later calls are no-ops.
func Init(cfg *Config) error {
	var err error
	managerOnce.Do(func() {
		globalManager, err = NewManager(cfg)
	})
	return err
}

func global() (*Manager, error) {
	if globalManager == nil {
		if err := Init(nil); err != nil {
			return nil, err
		}
	}
	return globalManager, nil
}

// Get resolves a secret through the global manager.
func Get(ctx context.Context, key string) (string, error) {
	m, err := global()
	if err != nil {
		return "", err
	}
	return m.Get(ctx, key)
}

// GetOrDefault resolves a secret through the global manager, falling back
// to defaultVal.
func GetOrDefault(ctx context.Context, key, defaultVal string) string {
	m, err := global()
	if err != nil {
		return defaultVal
	}
	return m.GetOrDefault(ctx, key, defaultVal)
}

// MustGet resolves a secret through the global manager or panics.
func MustGet(ctx context.Context, key string) string {
	m, err := global()
	if err != nil {
		panic(fmt.Sprintf("secrets manager init failed: %v", err))
	}
	return m.MustGet(ctx, key)
}
