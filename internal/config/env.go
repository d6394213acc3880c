// Package config handles environment-based configuration loading.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Network
	ListenAddress   string
	Port            int
	PublicBaseURL   string
	APIMaxBodyBytes int

	// CORS
	CORSAllowOriginRegex string

	// Store
	MongoURL     string
	DatabaseName string

	// Credentials
	JWTSecretKey           string
	JWTTokenTTLDays        int
	JWTRefreshIntervalDays int

	// Email
	ResendAPIKey string
	EmailFrom    string

	// Maintenance
	ResetTokenCleanupSchedule string
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any required variable is missing or any value is invalid.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Network ---
	cfg.ListenAddress = strings.TrimSpace(envStr("LISTEN_ADDRESS", "0.0.0.0"))
	cfg.Port = envInt("PORT", 8000, &errs)
	cfg.PublicBaseURL = strings.TrimRight(envStr("PUBLIC_BASE_URL", "http://localhost:8000"), "/")
	cfg.APIMaxBodyBytes = envInt("API_MAX_BODY_BYTES", 1<<20, &errs)

	// --- CORS ---
	cfg.CORSAllowOriginRegex = envRequired("CORS_ALLOW_ORIGIN_REGEX", &errs)

	// --- Store ---
	cfg.MongoURL = envRequired("MONGO_URL", &errs)
	cfg.DatabaseName = envRequired("DATABASE_NAME", &errs)

	// --- Credentials ---
	cfg.JWTSecretKey = envRequired("JWT_SECRET_KEY", &errs)
	cfg.JWTTokenTTLDays = envInt("JWT_TOKEN_TTL_DAYS", 30, &errs)
	cfg.JWTRefreshIntervalDays = envInt("JWT_REFRESH_INTERVAL_DAYS", 3, &errs)

	// --- Email ---
	cfg.ResendAPIKey = envRequired("RESEND_API_KEY", &errs)
	cfg.EmailFrom = envStr("EMAIL_FROM", "no-reply@auth.survivorpoolapp.com")

	// --- Maintenance ---
	cfg.ResetTokenCleanupSchedule = envStr("RESET_TOKEN_CLEANUP_SCHEDULE", "0 * * * *")

	// --- Validation ---
	if cfg.ListenAddress == "" {
		errs = append(errs, "LISTEN_ADDRESS must not be empty")
	}
	validatePort("PORT", cfg.Port, &errs)
	validatePositive("API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)
	validatePositive("JWT_TOKEN_TTL_DAYS", cfg.JWTTokenTTLDays, &errs)
	validatePositive("JWT_REFRESH_INTERVAL_DAYS", cfg.JWTRefreshIntervalDays, &errs)

	if cfg.CORSAllowOriginRegex != "" {
		if _, err := regexp.Compile(cfg.CORSAllowOriginRegex); err != nil {
			errs = append(errs, fmt.Sprintf("CORS_ALLOW_ORIGIN_REGEX: invalid regex %q: %v", cfg.CORSAllowOriginRegex, err))
		}
	}
	if cfg.JWTSecretKey != "" && IsWeakSecret(cfg.JWTSecretKey) {
		errs = append(errs, "JWT_SECRET_KEY is too weak; use a longer random value")
	}
	if _, err := cron.ParseStandard(cfg.ResetTokenCleanupSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("RESET_TOKEN_CLEANUP_SCHEDULE: invalid cron expression %q: %v", cfg.ResetTokenCleanupSchedule, err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid environment configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return cfg, nil
}

func envStr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envRequired(key string, errs *[]string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		*errs = append(*errs, key+" must be defined")
		return ""
	}
	return v
}

func envInt(key string, fallback int, errs *[]string) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, raw))
		return fallback
	}
	return v
}

func validatePort(name string, v int, errs *[]string) {
	if v < 1 || v > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s must be in [1, 65535], got %d", name, v))
	}
}

func validatePositive(name string, v int, errs *[]string) {
	if v <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s must be positive, got %d", name, v))
	}
}
