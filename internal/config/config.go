package config

import (
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// Config is the process-level configuration for the risk engine
type Config struct {
	Environment string
	LogLevel    string

	Monitoring struct {
		PrometheusPort int
		HealthPort     int
	}

	Limits RiskLimits
}

// Load builds the configuration from environment variables,
// falling back to defaults for anything unset
func Load() *Config {
	cfg := &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Limits:      LoadRiskLimits(),
	}

	cfg.Monitoring.PrometheusPort = getEnvInt("PROMETHEUS_PORT", 8080)
	cfg.Monitoring.HealthPort = getEnvInt("HEALTH_PORT", 8081)

	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvDecimal(key string, defaultVal string) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if parsed, err := decimal.NewFromString(val); err == nil {
			return parsed
		}
	}
	return decimal.RequireFromString(defaultVal)
}
