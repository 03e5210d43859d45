package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestFileProvider(t *testing.T) (*FileProvider, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.json")
	p, err := NewFileProvider(&FileConfig{Path: path, CreateIfMissing: true})
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}
	return p, path
}

func TestEnvProvider_Resolution(t *testing.T) {
	t.Setenv("SIMFORGE_TEST_SECRET", "prefixed")
	t.Setenv("BARE_SECRET", "bare")

	p := NewEnvProvider("SIMFORGE_")
	ctx := context.Background()

	cases := []struct {
		key  string
		want string
	}{
		{"test_secret", "prefixed"},
		{"bare_secret", "bare"},
	}
	for _, tc := range cases {
		got, err := p.Get(ctx, tc.key)
		if err != nil {
			t.Fatalf("Get(%q): %v", tc.key, err)
		}
		if got != tc.want {
			t.Fatalf("Get(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}

	if _, err := p.Get(ctx, "nonexistent_secret_xyz"); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestEnvProvider_SetDelete(t *testing.T) {
	p := NewEnvProvider("SIMFORGE_")
	ctx := context.Background()

	if err := p.Set(ctx, "set_test", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("SIMFORGE_SET_TEST") })
	if os.Getenv("SIMFORGE_SET_TEST") != "v" {
		t.Fatal("Set did not write the prefixed env var")
	}

	if err := p.Delete(ctx, "set_test"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if os.Getenv("SIMFORGE_SET_TEST") != "" {
		t.Fatal("Delete did not clear the env var")
	}
}

func TestEnvProvider_EmptyPrefixDefaults(t *testing.T) {
	p := NewEnvProvider("")
	if p.Name() != "env" {
		t.Fatalf("Name = %q", p.Name())
	}
	if p.prefix != "SIMFORGE_" {
		t.Fatalf("prefix = %q, want SIMFORGE_", p.prefix)
	}
}

func TestFileProvider_Lifecycle(t *testing.T) {
	p, path := newTestFileProvider(t)
	if p.Name() != "file" {
		t.Fatalf("Name = %q", p.Name())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("backing file not created: %v", err)
	}

	ctx := context.Background()
	if err := p.Set(ctx, "api_key", "k1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := p.Get(ctx, "api_key")
	if err != nil || got != "k1" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if _, err := p.Get(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing key")
	}

	if err := p.Delete(ctx, "api_key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := p.Get(ctx, "api_key"); err == nil {
		t.Fatal("expected error after delete")
	}
}

func TestFileProvider_ReloadPicksUpExternalEdits(t *testing.T) {
	p, path := newTestFileProvider(t)
	ctx := context.Background()
	if err := p.Set(ctx, "key1", "value1"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"key1":"modified","key2":"new"}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := p.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	for key, want := range map[string]string{"key1": "modified", "key2": "new"} {
		got, err := p.Get(ctx, key)
		if err != nil || got != want {
			t.Fatalf("Get(%q) = %q, %v, want %q", key, got, err, want)
		}
	}
}

func TestFileProvider_ConfigErrors(t *testing.T) {
	if _, err := NewFileProvider(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := NewFileProvider(&FileConfig{Path: ""}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Provider != "env" {
		t.Fatalf("Provider = %q, want env", cfg.Provider)
	}
	if cfg.EnvPrefix != "SIMFORGE_" {
		t.Fatalf("EnvPrefix = %q, want SIMFORGE_", cfg.EnvPrefix)
	}
}

func TestManager_GetThroughEnv(t *testing.T) {
	t.Setenv("SIMFORGE_MANAGER_TEST", "manager_value")

	m, err := NewManager(&Config{Provider: "env", EnvPrefix: "SIMFORGE_"})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	got, err := m.Get(context.Background(), "manager_test")
	if err != nil || got != "manager_value" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}

func TestManager_FileProviderRoundTrip(t *testing.T) {
	m, err := NewManager(&Config{
		Provider:   "file",
		FileConfig: &FileConfig{Path: filepath.Join(t.TempDir(), "secrets.json"), CreateIfMissing: true},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx := context.Background()
	if err := m.Set(ctx, "file_key", "file_value"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := m.Get(ctx, "file_key")
	if err != nil || got != "file_value" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	if err := m.Delete(ctx, "file_key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, "file_key"); err == nil {
		t.Fatal("expected error for deleted secret")
	}
}

func TestManager_FallsBackToEnv(t *testing.T) {
	t.Setenv("SIMFORGE_FALLBACK_TEST", "fallback_value")

	m, err := NewManager(&Config{
		Provider:   "file",
		FileConfig: &FileConfig{Path: filepath.Join(t.TempDir(), "secrets.json"), CreateIfMissing: true},
		EnvPrefix:  "SIMFORGE_",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	// Key is absent from the file store, env supplies it.
	got, err := m.Get(context.Background(), "fallback_test")
	if err != nil || got != "fallback_value" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}

func TestManager_GetOrDefault(t *testing.T) {
	m, _ := NewManager(&Config{Provider: "env", EnvPrefix: "SIMFORGE_"})
	if got := m.GetOrDefault(context.Background(), "nonexistent_key_xyz", "fallback"); got != "fallback" {
		t.Fatalf("GetOrDefault = %q", got)
	}
}

func TestManager_MustGetPanics(t *testing.T) {
	m, _ := NewManager(&Config{Provider: "env", EnvPrefix: "SIMFORGE_"})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for missing required secret")
		}
	}()
	m.MustGet(context.Background(), "definitely_missing_secret_xyz")
}

func TestManager_CacheBehavior(t *testing.T) {
	t.Setenv("SIMFORGE_CACHE_TEST", "first")

	m, _ := NewManager(&Config{Provider: "env", EnvPrefix: "SIMFORGE_"})
	ctx := context.Background()

	if v, _ := m.Get(ctx, "cache_test"); v != "first" {
		t.Fatalf("Get = %q", v)
	}
	t.Setenv("SIMFORGE_CACHE_TEST", "second")

	if v, _ := m.Get(ctx, "cache_test"); v != "first" {
		t.Fatalf("expected cached value, got %q", v)
	}
	m.ClearCache()
	if v, _ := m.Get(ctx, "cache_test"); v != "second" {
		t.Fatalf("expected fresh value after ClearCache, got %q", v)
	}

	m.DisableCache()
	t.Setenv("SIMFORGE_CACHE_TEST", "third")
	if v, _ := m.Get(ctx, "cache_test"); v != "third" {
		t.Fatalf("expected uncached value, got %q", v)
	}
}

func TestManager_ProviderConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		cfg  *Config
	}{
		{"unknown provider", &Config{Provider: "unknown_provider"}},
		{"vault without config", &Config{Provider: "vault"}},
		{"file without config", &Config{Provider: "file"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSecretKeysNonEmpty(t *testing.T) {
	for _, k := range []SecretKey{
		SecretGraphPassword,
		SecretGraphURI,
		SecretVectorAPIKey,
		SecretTemporalToken,
		SecretWebhookSecret,
	} {
		if k == "" {
			t.Fatal("secret key constant must not be empty")
		}
	}
}
