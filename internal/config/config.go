// Package config aggregates every engine tunable, logging/metrics setting,
// and provider credential into one YAML-loadable struct, with TOWOW_-prefixed
// environment overrides layered on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a towow engine process.
type Config struct {
	Engine       EngineConfig       `yaml:"engine"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	PlatformLLM  PlatformLLMConfig  `yaml:"platform_llm"`
	Adapter      AdapterConfig      `yaml:"adapter"`
	Encoder      EncoderConfig      `yaml:"encoder"`
	Retention    RetentionConfig    `yaml:"retention"`
}

// EngineConfig mirrors spec §6's configuration table.
type EngineConfig struct {
	MaxCenterRounds            int           `yaml:"max_center_rounds"`
	OfferTimeoutSeconds        int           `yaml:"offer_timeout_seconds"`
	FormulationTimeoutSeconds  int           `yaml:"formulation_timeout_seconds"`
	ConfirmationTimeoutSeconds int           `yaml:"confirmation_timeout_seconds"`
	DefaultKStar               int           `yaml:"default_k_star"`
	MaxRecursionDepth          int           `yaml:"max_recursion_depth"`
	ToolTimeoutSeconds         int           `yaml:"tool_timeout_seconds"`
	BarrierWorkerLimit         int           `yaml:"barrier_worker_limit"`
}

// OfferTimeout returns the configured offer timeout as a time.Duration.
func (c EngineConfig) OfferTimeout() time.Duration {
	return time.Duration(c.OfferTimeoutSeconds) * time.Second
}

// FormulationTimeout returns the configured formulation timeout.
func (c EngineConfig) FormulationTimeout() time.Duration {
	return time.Duration(c.FormulationTimeoutSeconds) * time.Second
}

// ConfirmationTimeout returns the configured confirmation-gate timeout.
func (c EngineConfig) ConfirmationTimeout() time.Duration {
	return time.Duration(c.ConfirmationTimeoutSeconds) * time.Second
}

// ToolTimeout returns the configured per-tool-call timeout.
func (c EngineConfig) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSeconds) * time.Second
}

// LoggingConfig configures the slog-based logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus metrics surface.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// PlatformLLMConfig configures the engine's own Claude calls (center,
// sub-negotiation, gap-recursion skills).
type PlatformLLMConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// AdapterConfig configures the built-in Anthropic-backed per-agent adapter.
type AdapterConfig struct {
	APIKey             string        `yaml:"api_key"`
	BaseURL            string        `yaml:"base_url"`
	Source             string        `yaml:"source"`
	DefaultModel       string        `yaml:"default_model"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryDelaySeconds  int           `yaml:"retry_delay_seconds"`
}

// RetryDelay returns the configured retry delay.
func (c AdapterConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// EncoderConfig configures the demand/profile text encoder.
type EncoderConfig struct {
	Mode     string `yaml:"mode"` // "local" or "remote"
	Remote   RemoteEncoderConfig `yaml:"remote"`
}

// RemoteEncoderConfig configures the HTTP embeddings encoder.
type RemoteEncoderConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Dim         int    `yaml:"dim"`
	CacheDir    string `yaml:"cache_dir"`
	TimeoutSecs int    `yaml:"timeout_seconds"`
}

// RetentionConfig configures the terminal-session sweeper.
type RetentionConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Window   time.Duration `yaml:"window"`
	Cron     string        `yaml:"cron"`
}

// DefaultConfig returns spec §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			MaxCenterRounds:            5,
			OfferTimeoutSeconds:        30,
			FormulationTimeoutSeconds:  10,
			ConfirmationTimeoutSeconds: 300,
			DefaultKStar:               5,
			MaxRecursionDepth:          1,
			ToolTimeoutSeconds:         30,
			BarrierWorkerLimit:         8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		PlatformLLM: PlatformLLMConfig{
			Model:     "claude-sonnet-4-5-20250929",
			MaxTokens: 4096,
		},
		Adapter: AdapterConfig{
			Source:            "anthropic",
			DefaultModel:      "claude-sonnet-4-20250514",
			MaxRetries:        3,
			RetryDelaySeconds: 1,
		},
		Encoder: EncoderConfig{
			Mode: "local",
		},
		Retention: RetentionConfig{
			Enabled: false,
			Window:  72 * time.Hour,
			Cron:    "0 * * * *",
		},
	}
}

// Load starts from the documented defaults, overlays the keys present in the
// YAML config file (a key set to zero in the file stays zero), applies
// TOWOW_-prefixed environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("TOWOW_PLATFORM_LLM_API_KEY")); v != "" {
		cfg.PlatformLLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("TOWOW_PLATFORM_LLM_MODEL")); v != "" {
		cfg.PlatformLLM.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("TOWOW_ADAPTER_API_KEY")); v != "" {
		cfg.Adapter.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("TOWOW_ADAPTER_MODEL")); v != "" {
		cfg.Adapter.DefaultModel = v
	}
	if v := strings.TrimSpace(os.Getenv("TOWOW_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("TOWOW_LOG_FORMAT")); v != "" {
		cfg.Logging.Format = v
	}
	if v := strings.TrimSpace(os.Getenv("TOWOW_DEFAULT_K_STAR")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.DefaultKStar = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TOWOW_MAX_RECURSION_DEPTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxRecursionDepth = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TOWOW_METRICS_ADDR")); v != "" {
		cfg.Metrics.Addr = v
	}
}

// ValidationError collects every problem found during validation.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	if cfg.Engine.MaxCenterRounds <= 0 {
		issues = append(issues, "engine.max_center_rounds must be > 0")
	}
	if cfg.Engine.DefaultKStar <= 0 {
		issues = append(issues, "engine.default_k_star must be > 0")
	}
	if cfg.Engine.MaxRecursionDepth < 0 {
		issues = append(issues, "engine.max_recursion_depth must be >= 0")
	}
	if cfg.Engine.BarrierWorkerLimit <= 0 {
		issues = append(issues, "engine.barrier_worker_limit must be > 0")
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		issues = append(issues, `logging.format must be "json" or "text"`)
	}
	switch strings.ToLower(cfg.Encoder.Mode) {
	case "local", "remote":
	default:
		issues = append(issues, `encoder.mode must be "local" or "remote"`)
	}
	if cfg.Encoder.Mode == "remote" && strings.TrimSpace(cfg.Encoder.Remote.URL) == "" {
		issues = append(issues, "encoder.remote.url is required when encoder.mode is \"remote\"")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
