package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "LEAD_DAYS")
	unsetEnvWithCleanup(t, "TIMEZONE")
	unsetEnvWithCleanup(t, "SCHEDULER_CRON_SPEC")
	unsetEnvWithCleanup(t, "DELIVERY_WORKERS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.LeadDays != 7 {
		t.Fatalf("expected default LeadDays 7, got %d", cfg.LeadDays)
	}
	if cfg.Timezone != "America/Sao_Paulo" {
		t.Fatalf("expected default timezone America/Sao_Paulo, got %q", cfg.Timezone)
	}
	if cfg.SchedulerCronSpec != "* * * * *" {
		t.Fatalf("expected per-minute scheduler spec, got %q", cfg.SchedulerCronSpec)
	}
	if cfg.DeliveryWorkers != 5 {
		t.Fatalf("expected default DeliveryWorkers 5, got %d", cfg.DeliveryWorkers)
	}
	if cfg.DunningEnabled {
		t.Fatal("expected dunning to default to disabled")
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "LEAD_DAYS", "10")
	setEnvWithCleanup(t, "DUNNING_ENABLED", "true")
	setEnvWithCleanup(t, "RETRY_INTERVAL_MINUTES", "15")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.LeadDays != 10 {
		t.Fatalf("expected LeadDays 10, got %d", cfg.LeadDays)
	}
	if !cfg.DunningEnabled {
		t.Fatal("expected dunning to be enabled")
	}
	if cfg.RetryIntervalMinutes != 15 {
		t.Fatalf("expected RetryIntervalMinutes 15, got %d", cfg.RetryIntervalMinutes)
	}
}

func TestLoadConfig_ClampsBadValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "LEAD_DAYS", "-3")
	setEnvWithCleanup(t, "DELIVERY_WORKERS", "0")
	setEnvWithCleanup(t, "MAX_DELIVERY_ATTEMPTS", "-1")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.LeadDays != 0 {
		t.Fatalf("expected negative LeadDays coerced to 0, got %d", cfg.LeadDays)
	}
	if cfg.DeliveryWorkers != 5 {
		t.Fatalf("expected DeliveryWorkers restored to default, got %d", cfg.DeliveryWorkers)
	}
	if cfg.MaxDeliveryAttempts != 3 {
		t.Fatalf("expected MaxDeliveryAttempts restored to default, got %d", cfg.MaxDeliveryAttempts)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
