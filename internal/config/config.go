// Package config loads Kagan's core configuration from config.yaml,
// environment variables, and built-in defaults via viper, with environment
// variables taking precedence over the config file and the config file
// taking precedence over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// GeneralConfig holds the orchestration knobs under the `general` section
// of config.yaml.
type GeneralConfig struct {
	MaxConcurrentAgents        int    `mapstructure:"max_concurrent_agents" yaml:"max_concurrent_agents"`
	MaxIterations              int    `mapstructure:"max_iterations" yaml:"max_iterations"`
	RequireReviewApproval      bool   `mapstructure:"require_review_approval" yaml:"require_review_approval"`
	SerializeMerges            bool   `mapstructure:"serialize_merges" yaml:"serialize_merges"`
	DefaultBaseBranch          string `mapstructure:"default_base_branch" yaml:"default_base_branch"`
	DefaultPairTerminalBackend string `mapstructure:"default_pair_terminal_backend" yaml:"default_pair_terminal_backend"`
	AutoApprove                bool   `mapstructure:"auto_approve" yaml:"auto_approve"`
	// AgentCommand is the executable (plus any fixed leading arguments)
	// automation iterations spawn in a workspace's worktree; how that
	// process speaks to the underlying coding agent is between it and
	// its own stdio, never parsed here. KAGAN_TASK_ID, KAGAN_TASK_TITLE,
	// KAGAN_READ_ONLY and KAGAN_AUTO_APPROVE are set in its environment.
	AgentCommand []string `mapstructure:"agent_command" yaml:"agent_command"`
}

// AIConfig configures the provider backing plan.propose.
type AIConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model    string `mapstructure:"model" yaml:"model"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

// TelemetryConfig controls the opt-out PostHog lifecycle event stream
//.
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Host    string `mapstructure:"host" yaml:"host"`
}

// TracingConfig controls OpenTelemetry span export for diagnostics.instrumentation
//.
type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint,omitempty"`
}

// TransportConfig controls the IPC listener.
type TransportConfig struct {
	ForceTCP bool `mapstructure:"force_tcp" yaml:"force_tcp"`
	TCPPort  int  `mapstructure:"tcp_port" yaml:"tcp_port"`
}

// Config is the root of Kagan's loaded configuration.
type Config struct {
	General   GeneralConfig   `mapstructure:"general" yaml:"general"`
	AI        AIConfig        `mapstructure:"ai" yaml:"ai"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
}

// defaultConfig mirrors setDefaults, as a value WriteDefaultConfig can
// marshal directly rather than round-tripping through viper.
func defaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			MaxConcurrentAgents:        3,
			MaxIterations:              25,
			RequireReviewApproval:      true,
			SerializeMerges:            true,
			DefaultBaseBranch:          "main",
			DefaultPairTerminalBackend: string(models.TerminalBackendTmux),
			AgentCommand:               []string{"claude", "--print"},
		},
		AI: AIConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-5",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			Host:    "https://app.posthog.com",
		},
		Transport: TransportConfig{},
	}
}

// WriteDefaultConfig writes a starter config.yaml to GetConfigPath if one
// doesn't already exist there. It returns the path written, or an empty
// path if a file was already present.
func WriteDefaultConfig() (string, error) {
	path := GetConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat config path: %w", err)
	}

	out, err := yaml.Marshal(defaultConfig())
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.MkdirAll(GetConfigDir(), 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.max_concurrent_agents", 3)
	v.SetDefault("general.max_iterations", 25)
	v.SetDefault("general.require_review_approval", true)
	v.SetDefault("general.serialize_merges", true)
	v.SetDefault("general.default_base_branch", "main")
	v.SetDefault("general.default_pair_terminal_backend", string(models.TerminalBackendTmux))
	v.SetDefault("general.auto_approve", false)
	v.SetDefault("general.agent_command", []string{"claude", "--print"})

	v.SetDefault("ai.provider", "anthropic")
	v.SetDefault("ai.model", "claude-sonnet-4-5")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.host", "https://app.posthog.com")

	v.SetDefault("tracing.enabled", false)

	v.SetDefault("transport.force_tcp", false)
	v.SetDefault("transport.tcp_port", 0)
}

func bindEnv(v *viper.Viper) error {
	binds := [][2]string{
		{"general.max_concurrent_agents", "KAGAN_MAX_CONCURRENT_AGENTS"},
		{"general.max_iterations", "KAGAN_MAX_ITERATIONS"},
		{"general.require_review_approval", "KAGAN_REQUIRE_REVIEW_APPROVAL"},
		{"general.serialize_merges", "KAGAN_SERIALIZE_MERGES"},
		{"general.default_base_branch", "KAGAN_DEFAULT_BASE_BRANCH"},
		{"general.default_pair_terminal_backend", "KAGAN_DEFAULT_PAIR_TERMINAL_BACKEND"},
		{"general.auto_approve", "KAGAN_AUTO_APPROVE"},
		{"ai.provider", "KAGAN_AI_PROVIDER"},
		{"ai.api_key", "KAGAN_AI_API_KEY"},
		{"ai.model", "KAGAN_AI_MODEL"},
		{"ai.base_url", "KAGAN_AI_BASE_URL"},
		{"telemetry.enabled", "KAGAN_TELEMETRY_ENABLED"},
		{"telemetry.api_key", "KAGAN_TELEMETRY_API_KEY"},
		{"tracing.enabled", "KAGAN_TRACING_ENABLED"},
		{"tracing.otlp_endpoint", "KAGAN_OTLP_ENDPOINT"},
		{"transport.force_tcp", "KAGAN_FORCE_TCP"},
		{"transport.tcp_port", "KAGAN_TCP_PORT"},
	}
	for _, b := range binds {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return fmt.Errorf("bind env %s: %w", b[1], err)
		}
	}
	return nil
}

// Load reads the config file (the one set on the global viper by the
// --config flag, else GetConfigPath) if present, layers in environment
// variable overrides, and returns the resolved Config. A missing config
// file is not an error: defaults plus environment apply.
func Load() (*Config, error) {
	v := viper.New()
	path := GetConfigPath()
	if used := viper.ConfigFileUsed(); used != "" {
		path = used
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("kagan")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants not expressible as viper defaults.
func (c *Config) Validate() error {
	if c.General.MaxConcurrentAgents < 1 {
		return fmt.Errorf("general.max_concurrent_agents must be >= 1, got %d", c.General.MaxConcurrentAgents)
	}
	if c.General.MaxIterations < 1 {
		return fmt.Errorf("general.max_iterations must be >= 1, got %d", c.General.MaxIterations)
	}
	switch models.TerminalBackend(c.General.DefaultPairTerminalBackend) {
	case models.TerminalBackendTmux, models.TerminalBackendVSCode, models.TerminalBackendCursor:
	default:
		return fmt.Errorf("general.default_pair_terminal_backend %q is not a recognized terminal backend",
			c.General.DefaultPairTerminalBackend)
	}
	return nil
}
