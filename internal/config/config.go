package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/simforge/simforge/internal/qualitygate"
)

// Config holds all application configuration.
type Config struct {
	Store    StoreConfig            `mapstructure:"store"`
	Vector   VectorConfig           `mapstructure:"vector"`
	Temporal TemporalConfig         `mapstructure:"temporal"`
	Server   ServerConfig           `mapstructure:"server"`
	Session  SessionConfig          `mapstructure:"session"`
	Gates    qualitygate.GateConfig `mapstructure:"gates"`
	Log      LogConfig              `mapstructure:"log"`
}

// StoreConfig points at the Neo4j model store. An empty URI disables
// graph persistence.
type StoreConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// VectorConfig points at the Qdrant index for model similarity search.
type VectorConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type ServerConfig struct {
	Addr         string `mapstructure:"addr"`
	HealthAddr   string `mapstructure:"health_addr"`
	ReviewAddr   string `mapstructure:"review_addr"`
	CacheSize    int    `mapstructure:"cache_size"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// SessionConfig controls the local compile-session store. Keep bounds how
// many sessions prune retains.
type SessionConfig struct {
	Dir  string `mapstructure:"dir"`
	Keep int    `mapstructure:"keep"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Store.URI != "" && c.Store.Username == "" {
		warnings = append(warnings, fmt.Sprintf("store uri '%s' is configured but username is empty", c.Store.URI))
	}

	if c.Vector.Port < 0 || c.Vector.Port > 65535 {
		warnings = append(warnings, fmt.Sprintf("vector port %d is outside valid range [0, 65535]", c.Vector.Port))
	}

	if c.Session.Keep < 0 {
		warnings = append(warnings, fmt.Sprintf("session keep %d is negative", c.Session.Keep))
	}

	if r := c.Gates.MaxUnknownHandlerRatio; r < 0 || r > 1 {
		warnings = append(warnings, fmt.Sprintf("gate max_unknown_handler_ratio %.2f is outside [0.0, 1.0]", r))
	}
	if r := c.Gates.MaxDanglingEdgeRatio; r < 0 || r > 1 {
		warnings = append(warnings, fmt.Sprintf("gate max_dangling_edge_ratio %.2f is outside [0.0, 1.0]", r))
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		warnings = append(warnings, fmt.Sprintf("log level '%s' is not one of debug, info, warn, error", c.Log.Level))
	}

	return warnings
}

// Load reads configuration from file and environment. With an empty path
// it searches configs/ and the working directory, falling back to defaults
// when no file exists; a named file must be readable.
func Load(path string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("simforge")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("SIMFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("store.uri", "")
	v.SetDefault("store.username", "neo4j")
	v.SetDefault("store.password", "")
	v.SetDefault("store.database", "neo4j")

	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "simforge-models")

	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "simforge-convert")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.health_addr", ":8081")
	v.SetDefault("server.review_addr", ":8090")
	v.SetDefault("server.cache_size", 256)
	v.SetDefault("server.otlp_endpoint", "")

	v.SetDefault("session.dir", ".simforge/sessions")
	v.SetDefault("session.keep", 50)

	v.SetDefault("gates.enabled", true)
	v.SetDefault("gates.model_required", true)
	v.SetDefault("gates.max_unknown_handler_ratio", 0.25)
	v.SetDefault("gates.unknown_handler_severity", "required")
	v.SetDefault("gates.max_dangling_edge_ratio", 0.1)
	v.SetDefault("gates.dangling_edge_severity", "required")
	v.SetDefault("gates.max_unclassified_dependencies", 0)
	v.SetDefault("gates.unclassified_severity", "advisory")
	v.SetDefault("gates.orphan_resources", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
