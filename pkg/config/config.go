package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv/autoload"

	"github.com/FACorreiaa/sales-report/pkg/money"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Pipeline      PipelineConfig
	Report        ReportConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
	MaxUploadBytes     int64
	AllowedOrigins     []string
	ShutdownTimeout    time.Duration
}

type StorageConfig struct {
	LocalPath     string
	Retention     time.Duration // Jobs older than this are removed; 0 keeps them forever
	SweepSchedule string        // Cron expression for the retention sweep
}

type PipelineConfig struct {
	SampleBytes   int
	MinConfidence float64
}

type ReportConfig struct {
	Title    string
	Currency string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
	LogLevel       string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 10),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 20),
			MaxUploadBytes:     int64(getEnvAsInt("SERVER_MAX_UPLOAD_BYTES", 32<<20)),
			AllowedOrigins:     getEnvAsList("SERVER_ALLOWED_ORIGINS", []string{"*"}),
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			LocalPath:     getEnv("STORAGE_LOCAL_PATH", "./data"),
			Retention:     getEnvAsDuration("STORAGE_RETENTION", 24*time.Hour),
			SweepSchedule: getEnv("STORAGE_SWEEP_SCHEDULE", "@every 1h"),
		},
		Pipeline: PipelineConfig{
			SampleBytes:   getEnvAsInt("PIPELINE_SAMPLE_BYTES", 10*1024),
			MinConfidence: getEnvAsFloat("PIPELINE_MIN_CONFIDENCE", 0.7),
		},
		Report: ReportConfig{
			Title:    getEnv("REPORT_TITLE", "Reporte de Ventas"),
			Currency: strings.ToUpper(getEnv("REPORT_CURRENCY", money.ARS)),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT %d out of range", c.Server.Port))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("SERVER_MAX_UPLOAD_BYTES must be positive"))
	}
	if c.Storage.LocalPath == "" {
		errs = append(errs, errors.New("STORAGE_LOCAL_PATH is required"))
	}
	if c.Storage.Retention < 0 {
		errs = append(errs, errors.New("STORAGE_RETENTION must not be negative"))
	}
	if c.Pipeline.SampleBytes <= 0 {
		errs = append(errs, errors.New("PIPELINE_SAMPLE_BYTES must be positive"))
	}
	if c.Pipeline.MinConfidence < 0 || c.Pipeline.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("PIPELINE_MIN_CONFIDENCE %.2f not in [0,1]", c.Pipeline.MinConfidence))
	}
	if !money.IsKnownCurrency(c.Report.Currency) {
		errs = append(errs, fmt.Errorf("REPORT_CURRENCY %q is not an ISO-4217 code", c.Report.Currency))
	}

	return errors.Join(errs...)
}

// Addr returns the HTTP listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
