package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidate_Empty(t *testing.T) {
	cfg := &Config{}
	warnings := cfg.Validate()
	if len(warnings) != 0 {
		t.Errorf("empty config should have no warnings, got %v", warnings)
	}
}

func TestValidate_StoreWithoutUsername(t *testing.T) {
	cfg := &Config{
		Store: StoreConfig{URI: "neo4j://localhost:7687"},
	}
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "username") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected warning about missing store username")
	}
}

func TestValidate_VectorPort(t *testing.T) {
	tests := []struct {
		name string
		port int
		want bool // true = should warn
	}{
		{"zero", 0, false},
		{"normal", 6334, false},
		{"max", 65535, false},
		{"negative", -1, true},
		{"too_high", 70000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Vector: VectorConfig{Port: tt.port}}
			warnings := cfg.Validate()
			hasWarn := false
			for _, w := range warnings {
				if strings.Contains(w, "vector port") {
					hasWarn = true
				}
			}
			if hasWarn != tt.want {
				t.Errorf("port=%d: hasWarn=%v, want=%v", tt.port, hasWarn, tt.want)
			}
		})
	}
}

func TestValidate_GateRatios(t *testing.T) {
	cfg := &Config{}
	cfg.Gates.MaxUnknownHandlerRatio = 1.5
	cfg.Gates.MaxDanglingEdgeRatio = -0.2

	warnings := cfg.Validate()
	var unknown, dangling bool
	for _, w := range warnings {
		if strings.Contains(w, "max_unknown_handler_ratio") {
			unknown = true
		}
		if strings.Contains(w, "max_dangling_edge_ratio") {
			dangling = true
		}
	}
	if !unknown || !dangling {
		t.Errorf("expected warnings for both gate ratios, got %v", warnings)
	}
}

func TestValidate_LogLevel(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "warn", "error"} {
		cfg := &Config{Log: LogConfig{Level: level}}
		if warnings := cfg.Validate(); len(warnings) != 0 {
			t.Errorf("level %q should not warn, got %v", level, warnings)
		}
	}

	cfg := &Config{Log: LogConfig{Level: "verbose"}}
	warnings := cfg.Validate()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "log level") {
		t.Errorf("expected a log level warning, got %v", warnings)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with no config file should fall back to defaults: %v", err)
	}

	if cfg.Temporal.TaskQueue != "simforge-convert" {
		t.Errorf("expected default task queue, got %s", cfg.Temporal.TaskQueue)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default server addr, got %s", cfg.Server.Addr)
	}
	if cfg.Session.Keep != 50 {
		t.Errorf("expected default session keep 50, got %d", cfg.Session.Keep)
	}
	if !cfg.Gates.Enabled {
		t.Error("expected gates enabled by default")
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "simforge.yaml")
	content := []byte("store:\n  uri: neo4j://db:7687\n  username: reviewer\nsession:\n  keep: 10\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.URI != "neo4j://db:7687" {
		t.Errorf("expected store uri from file, got %s", cfg.Store.URI)
	}
	if cfg.Store.Username != "reviewer" {
		t.Errorf("expected username from file, got %s", cfg.Store.Username)
	}
	if cfg.Session.Keep != 10 {
		t.Errorf("expected keep 10 from file, got %d", cfg.Session.Keep)
	}
	// Unset sections keep their defaults
	if cfg.Vector.Port != 6334 {
		t.Errorf("expected default vector port, got %d", cfg.Vector.Port)
	}
}

func TestLoad_MissingNamedFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for explicitly named missing config file")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SIMFORGE_TEMPORAL_NAMESPACE", "staging")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Temporal.Namespace != "staging" {
		t.Errorf("expected env override to win, got %s", cfg.Temporal.Namespace)
	}
}
