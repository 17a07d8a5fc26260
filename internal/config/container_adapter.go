package config

import (
	"github.com/garyjia/claimflow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig(version string) *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		AI: container.AIConfig{
			Provider:    c.AI.Provider,
			APIKey:      c.AI.APIKey(),
			Model:       c.AI.Model,
			BaseURL:     c.AI.BaseURL,
			MaxTokens:   c.AI.MaxTokens,
			Temperature: c.AI.Temperature,
			Timeout:     c.AI.Timeout,
			PromptsFile: c.AI.PromptsFile,
		},
		Pipeline: container.PipelineConfig{
			Async:        c.Pipeline.Async,
			Workers:      c.Pipeline.Workers,
			QueueBuffer:  c.Pipeline.QueueBuffer,
			MaxRetries:   c.Pipeline.MaxRetries,
			RetryDelay:   c.Pipeline.RetryDelay,
			StageVersion: c.Pipeline.StageVersion,
		},
		Sweeper: container.SweeperConfig{
			Enabled:    c.Sweeper.Enabled,
			Schedule:   c.Sweeper.Schedule,
			StaleAfter: c.Sweeper.StaleAfter,
			BatchSize:  c.Sweeper.BatchSize,
		},
		Storage: container.StorageConfig{
			BaseDir:     c.Storage.BaseDir,
			VoucherDir:  c.Voucher.OutputDir,
			CompanyName: c.Voucher.CompanyName,
		},
		Tracing: container.TracingConfig{
			Enabled:        c.Tracing.Enabled,
			ServiceName:    c.Tracing.ServiceName,
			ServiceVersion: version,
			OutputFile:     c.Tracing.OutputFile,
		},
		Events: container.EventsConfig{
			AuditTenant: c.Events.AuditTenant,
		},
	}
}
