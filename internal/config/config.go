// Package config loads runtime settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/neomorfeo/budgetiq/internal/logger"
)

// Config holds all application configuration.
type Config struct {
	Port         string `validate:"required,numeric"`
	DatabasePath string `validate:"required"`
	// CodePrefix starts every budget code, e.g. ORC in ORC2026100001.
	CodePrefix         string `validate:"required,alphanum,max=10"`
	Log                logger.Config
	CORSAllowedOrigins []string
	DocumentDir        string `validate:"required"`
	QueueWorkers       int    `validate:"min=1,max=100"`
	Telemetry          TelemetryConfig
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `validate:"required"`
	ServiceVersion string
	Environment    string
	Exporter       string `validate:"oneof=stdout otlp none"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("database_path", "budgetiq.db")
	v.SetDefault("budget_code_prefix", "ORC")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("log_output", "stdout")
	v.SetDefault("cors_allowed_origins", "*")
	v.SetDefault("document_dir", filepath.Join(os.TempDir(), "budgetiq-documents"))
	v.SetDefault("queue_workers", 2)
	v.SetDefault("otel_service_name", "budgetiq")
	v.SetDefault("otel_service_version", "0.1.0")
	v.SetDefault("otel_environment", "development")
	v.SetDefault("otel_exporter", "stdout")
}

// Load reads .env from the working directory, if present, and then the
// environment. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with explicit dotenv files. Missing files are skipped.
func LoadFrom(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Port:         v.GetString("port"),
		DatabasePath: v.GetString("database_path"),
		CodePrefix:   strings.ToUpper(v.GetString("budget_code_prefix")),
		Log: logger.Config{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
			Output: v.GetString("log_output"),
		},
		CORSAllowedOrigins: splitList(v.GetString("cors_allowed_origins")),
		DocumentDir:        v.GetString("document_dir"),
		QueueWorkers:       v.GetInt("queue_workers"),
		Telemetry: TelemetryConfig{
			ServiceName:    v.GetString("otel_service_name"),
			ServiceVersion: v.GetString("otel_service_version"),
			Environment:    v.GetString("otel_environment"),
			Exporter:       strings.ToLower(v.GetString("otel_exporter")),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// splitList splits a comma separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
