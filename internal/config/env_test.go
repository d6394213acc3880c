package config

import (
	"strings"
	"testing"
)

func assertEqual[T comparable](t *testing.T, name string, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %v, want %v", name, got, want)
	}
}

// setEnvs sets multiple env vars for the duration of the test.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// requiredEnvs returns the minimum env vars needed for LoadEnvConfig to succeed.
func requiredEnvs() map[string]string {
	return map[string]string{
		"CORS_ALLOW_ORIGIN_REGEX": `^https://.*\.example\.com$`,
		"MONGO_URL":               "mongodb://localhost:27017",
		"DATABASE_NAME":           "survivor_pool",
		"JWT_SECRET_KEY":          "fN8!rQz2#kV9pL4xWm7Y",
		"RESEND_API_KEY":          "re_test_key",
	}
}

func TestLoadEnvConfig_Defaults(t *testing.T) {
	setEnvs(t, requiredEnvs())

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertEqual(t, "ListenAddress", cfg.ListenAddress, "0.0.0.0")
	assertEqual(t, "Port", cfg.Port, 8000)
	assertEqual(t, "PublicBaseURL", cfg.PublicBaseURL, "http://localhost:8000")
	assertEqual(t, "APIMaxBodyBytes", cfg.APIMaxBodyBytes, 1<<20)
	assertEqual(t, "JWTTokenTTLDays", cfg.JWTTokenTTLDays, 30)
	assertEqual(t, "JWTRefreshIntervalDays", cfg.JWTRefreshIntervalDays, 3)
	assertEqual(t, "EmailFrom", cfg.EmailFrom, "no-reply@auth.survivorpoolapp.com")
	assertEqual(t, "ResetTokenCleanupSchedule", cfg.ResetTokenCleanupSchedule, "0 * * * *")
}

func TestLoadEnvConfig_MissingRequired(t *testing.T) {
	envs := requiredEnvs()
	delete(envs, "MONGO_URL")
	setEnvs(t, envs)

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected error for missing MONGO_URL")
	}
	if !strings.Contains(err.Error(), "MONGO_URL") {
		t.Fatalf("error should mention MONGO_URL, got: %v", err)
	}
}

func TestLoadEnvConfig_RejectsWeakSecret(t *testing.T) {
	envs := requiredEnvs()
	envs["JWT_SECRET_KEY"] = "secret"
	setEnvs(t, envs)

	_, err := LoadEnvConfig()
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET_KEY") {
		t.Fatalf("expected weak secret error, got: %v", err)
	}
}

func TestLoadEnvConfig_InvalidOriginRegex(t *testing.T) {
	envs := requiredEnvs()
	envs["CORS_ALLOW_ORIGIN_REGEX"] = "("
	setEnvs(t, envs)

	_, err := LoadEnvConfig()
	if err == nil || !strings.Contains(err.Error(), "CORS_ALLOW_ORIGIN_REGEX") {
		t.Fatalf("expected regex error, got: %v", err)
	}
}

func TestLoadEnvConfig_InvalidCleanupSchedule(t *testing.T) {
	envs := requiredEnvs()
	envs["RESET_TOKEN_CLEANUP_SCHEDULE"] = "every hour"
	setEnvs(t, envs)

	_, err := LoadEnvConfig()
	if err == nil || !strings.Contains(err.Error(), "RESET_TOKEN_CLEANUP_SCHEDULE") {
		t.Fatalf("expected cron error, got: %v", err)
	}
}

func TestLoadEnvConfig_Overrides(t *testing.T) {
	envs := requiredEnvs()
	envs["PORT"] = "9100"
	envs["PUBLIC_BASE_URL"] = "https://pool.example.com/"
	envs["JWT_TOKEN_TTL_DAYS"] = "7"
	setEnvs(t, envs)

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertEqual(t, "Port", cfg.Port, 9100)
	assertEqual(t, "PublicBaseURL", cfg.PublicBaseURL, "https://pool.example.com")
	assertEqual(t, "JWTTokenTTLDays", cfg.JWTTokenTTLDays, 7)
}
