package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileConfig configures the file-backed secrets provider.
type FileConfig struct {
	// Path locates the JSON secrets file.
	Path string
	// CreateIfMissing writes an empty file when Path does not exist yet.
	CreateIfMissing bool
}

// FileProvider keeps secrets in a flat JSON file on local disk. It exists
// for development setups without a Vault; production deployments should use
// env vars or Vault.
type FileProvider struct {
	path string

	mu      sync.RWMutex
	secrets map[string]string
}

// NewFileProvider opens (or, with CreateIfMissing, creates) the secrets file.
func NewFileProvider(config *FileConfig) (*FileProvider, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("file path required")
	}

	p := &FileProvider{
		path:    config.Path,
		secrets: make(map[string]string),
	}

	if err := p.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load secrets file: %w", err)
		}
		if config.CreateIfMissing {
			if err := p.flush(); err != nil {
				return nil, fmt.Errorf("create secrets file: %w", err)
			}
		}
	}

	return p, nil
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Get(ctx context.Context, key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	val, ok := p.secrets[key]
	if !ok {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	return val, nil
}

func (p *FileProvider) Set(ctx context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.secrets[key] = value
	return p.flush()
}

func (p *FileProvider) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.secrets, key)
	return p.flush()
}

// Reload re-reads the file, picking up edits made outside the process.
func (p *FileProvider) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()
}

func (p *FileProvider) load() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &p.secrets)
}

// flush writes the secrets back with owner-only permissions.
func (p *FileProvider) flush() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	data, err := json.MarshalIndent(p.secrets, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}
	return os.WriteFile(p.path, data, 0o600)
}
