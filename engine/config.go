package engine

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the healing engine daemon.
type Config struct {
	DBPath              string
	OracleMode          string
	OracleBaseURL       string
	OracleAPIKey        string
	OracleModel         string
	OracleRPM           int
	FixTablePath        string
	DetectorRulesPath   string
	HealInterval        time.Duration
	MaxErrors           int
	MaxAttempts         int
	ConfidenceThreshold float64
	AutoApply           bool
	HTTPPort            string
	LogLevel            string
	JaegerEndpoint      string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		DBPath:              getEnv("DB_PATH", ""),
		OracleMode:          getEnv("ORACLE_MODE", "mock"),
		OracleBaseURL:       getEnv("ORACLE_BASE_URL", ""),
		OracleAPIKey:        getEnv("ORACLE_API_KEY", ""),
		OracleModel:         getEnv("ORACLE_MODEL", ""),
		OracleRPM:           getEnvInt("ORACLE_RPM", 60),
		FixTablePath:        getEnv("FIX_TABLE_PATH", ""),
		DetectorRulesPath:   getEnv("DETECTOR_RULES_PATH", ""),
		HealInterval:        getEnvDuration("HEAL_INTERVAL", "0s"),
		MaxErrors:           getEnvInt("MAX_ERRORS", 10),
		MaxAttempts:         getEnvInt("MAX_ATTEMPTS", 3),
		ConfidenceThreshold: getEnvFloat("CONFIDENCE_THRESHOLD", 0.7),
		AutoApply:           getEnvBool("AUTO_APPLY", true),
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		JaegerEndpoint:      getEnv("JAEGER_ENDPOINT", ""),
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
