package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string // debug, info, warn, error
	OutputPath string // stdout, stderr, or file path
	Format     string // json or console

	// Service and Version are stamped on every entry when set
	Service string
	Version string
}

// Field keys shared by every component that logs about a claim
const (
	FieldTenantID   = "tenant_id"
	FieldClaimID    = "claim_id"
	FieldStage      = "stage"
	FieldStageIndex = "stage_index"
)

// NewLogger creates a structured logger. An unknown level falls back to info.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	sink, err := openSink(cfg.OutputPath)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), sink, parseLevel(cfg.Level))
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	var base []zap.Field
	if cfg.Service != "" {
		base = append(base, zap.String("service", cfg.Service))
	}
	if cfg.Version != "" {
		base = append(base, zap.String("version", cfg.Version))
	}
	return logger.With(base...), nil
}

func parseLevel(s string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func newEncoder(format string) zapcore.Encoder {
	if format == "json" {
		ec := zap.NewProductionEncoderConfig()
		ec.TimeKey = "timestamp"
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(ec)
	}

	ec := zap.NewDevelopmentEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(ec)
}

// openSink resolves an output path; files are appended to and their
// directory is created on demand
func openSink(path string) (zapcore.WriteSyncer, error) {
	switch path {
	case "stdout", "":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return zapcore.AddSync(f), nil
}

// TenantField tags an entry with the claim's tenant
func TenantField(tenantID string) zap.Field {
	return zap.String(FieldTenantID, tenantID)
}

// ClaimField tags an entry with a claim id
func ClaimField(claimID string) zap.Field {
	return zap.String(FieldClaimID, claimID)
}

// StageFields tags an entry with a pipeline stage position. An empty name
// only records the index.
func StageFields(name string, index int) []zap.Field {
	if name == "" {
		return []zap.Field{zap.Int(FieldStageIndex, index)}
	}
	return []zap.Field{zap.String(FieldStage, name), zap.Int(FieldStageIndex, index)}
}

// ClaimLogger returns a child logger scoped to one claim. Empty ids are
// left out.
func ClaimLogger(logger *zap.Logger, tenantID, claimID string) *zap.Logger {
	var fields []zap.Field
	if tenantID != "" {
		fields = append(fields, TenantField(tenantID))
	}
	if claimID != "" {
		fields = append(fields, ClaimField(claimID))
	}
	return logger.With(fields...)
}

// NewTestLogger creates a debug console logger for local runs
func NewTestLogger() *zap.Logger {
	logger, err := NewLogger(LoggerConfig{Level: "debug", OutputPath: "stderr", Format: "console"})
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
