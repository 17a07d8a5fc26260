// Package container provides dependency injection and lifecycle management
// for the claim processing service.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
type Config struct {
	Database DatabaseConfig
	AI       AIConfig
	Pipeline PipelineConfig
	Sweeper  SweeperConfig
	Storage  StorageConfig
	Tracing  TracingConfig
	Events   EventsConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AIConfig selects and configures the reasoning provider.
type AIConfig struct {
	// Provider is "openai" or "anthropic"
	Provider string

	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int

	// Temperature is sent with every validation call
	Temperature float32

	// Timeout bounds one reasoning call
	Timeout time.Duration

	// PromptsFile optionally replaces the built-in validation prompts
	PromptsFile string
}

// PipelineConfig holds stage queue and worker settings.
type PipelineConfig struct {
	// Async starts stage workers; without it pipelines only run inline
	Async        bool
	Workers      int
	QueueBuffer  int
	MaxRetries   int
	RetryDelay   time.Duration
	StageVersion string
}

// SweeperConfig holds resume sweeper settings.
type SweeperConfig struct {
	Enabled    bool
	Schedule   string
	StaleAfter time.Duration
	BatchSize  int
}

// StorageConfig holds file storage settings.
type StorageConfig struct {
	// BaseDir is the root for claim documents and vouchers
	BaseDir string

	// VoucherDir is relative to BaseDir
	VoucherDir string

	// CompanyName for vouchers
	CompanyName string
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	OutputFile     string
}

// EventsConfig holds event subscription settings.
type EventsConfig struct {
	// AuditTenant narrows the audit log subscription to one tenant
	AuditTenant string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:         "data/claims.db",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		AI: AIConfig{
			Provider:    "openai",
			Temperature: 0.1,
			MaxTokens:   1024,
			Timeout:     30 * time.Second,
		},
		Pipeline: PipelineConfig{
			Async:        true,
			Workers:      4,
			QueueBuffer:  100,
			MaxRetries:   3,
			RetryDelay:   time.Second,
			StageVersion: "v1",
		},
		Sweeper: SweeperConfig{
			Enabled:    true,
			Schedule:   "*/5 * * * *",
			StaleAfter: 10 * time.Minute,
			BatchSize:  50,
		},
		Storage: StorageConfig{
			BaseDir:    "data/files",
			VoucherDir: "vouchers",
		},
		Tracing: TracingConfig{
			ServiceName: "claimflow",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.AI.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown ai provider %q", c.AI.Provider)
	}
	if c.AI.APIKey == "" {
		return fmt.Errorf("ai api key is required")
	}

	if c.Pipeline.Async && c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	return nil
}
