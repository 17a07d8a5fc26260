package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	AI       AIConfig       `mapstructure:"ai"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Voucher  VoucherConfig  `mapstructure:"voucher"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Events   EventsConfig   `mapstructure:"events"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AI providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// AIConfig holds the reasoning provider configuration
type AIConfig struct {
	Provider     string        `mapstructure:"provider"`
	Model        string        `mapstructure:"model"`
	BaseURL      string        `mapstructure:"base_url"`
	OpenAIKey    string        `mapstructure:"openai_api_key"`
	AnthropicKey string        `mapstructure:"anthropic_api_key"`
	Temperature  float32       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PromptsFile  string        `mapstructure:"prompts_file"`
}

// APIKey returns the key of the selected provider
func (a AIConfig) APIKey() string {
	if a.Provider == ProviderAnthropic {
		return a.AnthropicKey
	}
	return a.OpenAIKey
}

// PipelineConfig holds stage queue and worker configuration
type PipelineConfig struct {
	Async        bool          `mapstructure:"async"`
	Workers      int           `mapstructure:"workers"`
	QueueBuffer  int           `mapstructure:"queue_buffer"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	StageVersion string        `mapstructure:"stage_version"`
}

// SweeperConfig holds the resume sweeper configuration
type SweeperConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Schedule   string        `mapstructure:"schedule"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	BatchSize  int           `mapstructure:"batch_size"`
}

// StorageConfig holds the file storage root for documents and vouchers
type StorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// VoucherConfig holds settlement voucher configuration
type VoucherConfig struct {
	OutputDir   string `mapstructure:"output_dir"`
	CompanyName string `mapstructure:"company_name"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	OutputFile  string `mapstructure:"output_file"`
}

// EventsConfig holds claim event subscription settings
type EventsConfig struct {
	// AuditTenant limits the event audit log to one tenant when set
	AuditTenant string `mapstructure:"audit_tenant"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads .env (when present), then the YAML file at configPath, then
// environment overrides
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("database.path", "data/claims.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)

	v.SetDefault("ai.provider", ProviderOpenAI)
	v.SetDefault("ai.temperature", 0.1)
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.timeout", 30*time.Second)

	v.SetDefault("pipeline.async", true)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_buffer", 100)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.retry_delay", time.Second)
	v.SetDefault("pipeline.stage_version", "v1")

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.schedule", "*/5 * * * *")
	v.SetDefault("sweeper.stale_after", 10*time.Minute)
	v.SetDefault("sweeper.batch_size", 50)

	v.SetDefault("storage.base_dir", "data/files")
	v.SetDefault("voucher.output_dir", "vouchers")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "claimflow")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	// credentials never live in the YAML file
	_ = v.BindEnv("ai.openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("ai.anthropic_api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("ai.provider", "AI_PROVIDER")
	_ = v.BindEnv("voucher.company_name", "COMPANY_NAME")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("ai.provider must be %q or %q, got %q", ProviderOpenAI, ProviderAnthropic, c.AI.Provider)
	}
	if c.AI.APIKey() == "" {
		return fmt.Errorf("ai.%s_api_key is required", c.AI.Provider)
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 1 {
		return fmt.Errorf("ai.temperature must be within [0,1]")
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("ai.timeout must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Pipeline.Async && c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive when async is enabled")
	}
	if c.Sweeper.Enabled && strings.TrimSpace(c.Sweeper.Schedule) == "" {
		return fmt.Errorf("sweeper.schedule is required when the sweeper is enabled")
	}
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Voucher.CompanyName == "" {
		return fmt.Errorf("voucher.company_name is required")
	}
	return nil
}
