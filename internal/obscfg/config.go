// Package obscfg loads the gateway's static startup configuration: bind
// address, provider descriptors, router/cache tuning, and the ambient
// logging/telemetry settings. Defaults apply first; an optional YAML file
// is layered over them.
package obscfg

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the gateway's full startup configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Router    RouterConfig     `yaml:"router"`
	Cache     CacheConfig      `yaml:"cache"`
	Providers []ProviderConfig `yaml:"providers"`
	Log       LogConfig        `yaml:"log"`
	Telemetry TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	BindAddr        string        `yaml:"bind_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RouterConfig configures the circuit-breaker threshold shared by every
// provider entry.
type RouterConfig struct {
	HealthThreshold uint64 `yaml:"health_threshold"`
}

// CacheConfig configures the semantic cache's bounds.
type CacheConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

// ProviderConfig is the YAML shape of one upstream provider descriptor.
type ProviderConfig struct {
	ID              string   `yaml:"id"`
	Endpoint        string   `yaml:"endpoint"`
	Kind            string   `yaml:"kind"`
	SupportedModels []string `yaml:"supported_models"`
	CostPer1kMicro  uint64   `yaml:"cost_per_1k_micro"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level            string   `yaml:"level"`
	Format           string   `yaml:"format"`
	OutputPaths      []string `yaml:"output_paths"`
	EnableCaller     bool     `yaml:"enable_caller"`
	EnableStacktrace bool     `yaml:"enable_stacktrace"`
}

// TelemetryConfig configures the OTLP exporters set up by
// internal/telemetry.Init.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Default returns the configuration a gateway binds with if no file is
// supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddr:        ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Router: RouterConfig{
			HealthThreshold: 5,
		},
		Cache: CacheConfig{
			Capacity: 10_000,
			TTL:      5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "agentflow-gateway",
			SampleRate:   0.1,
		},
	}
}

// Loader loads a Config from an optional YAML file layered over Default.
type Loader struct {
	configPath string
}

// NewLoader builds a Loader with no file path set; Load then returns the
// Default configuration unmodified.
func NewLoader() *Loader {
	return &Loader{}
}

// WithConfigPath sets the YAML file to layer over the defaults.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// Load reads the configured YAML file (if any) over Default and returns
// the result. A missing file is not an error: the gateway starts on
// defaults.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("obscfg: read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("obscfg: parse config file: %w", err)
	}
	return cfg, nil
}
