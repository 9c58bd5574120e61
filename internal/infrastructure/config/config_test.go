package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_ENABLED", "false")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Scheduler.Workers != 8 {
		t.Errorf("Scheduler.Workers = %d, want 8", cfg.Scheduler.Workers)
	}
	if cfg.Monitor.WarningThreshold != 80 || cfg.Monitor.CriticalThreshold != 95 {
		t.Errorf("warning band = %v..%v, want 80..95", cfg.Monitor.WarningThreshold, cfg.Monitor.CriticalThreshold)
	}
	if cfg.Analytics.CacheTTL != 5*time.Minute {
		t.Errorf("Analytics.CacheTTL = %v, want 5m", cfg.Analytics.CacheTTL)
	}
	if cfg.Cleanup.SessionRetention != 30*24*time.Hour {
		t.Errorf("Cleanup.SessionRetention = %v, want 720h", cfg.Cleanup.SessionRetention)
	}
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := strings.Join([]string{
		"DB_DRIVER=sqlite",
		"DB_SQLITE_PATH=/tmp/guard-test.db",
		"SCHEDULER_WORKERS=3",
		"MONITOR_LOSS_CHECK_INTERVAL=15s",
		"ANALYTICS_RISK_FREE_RATE=0.5",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"DB_DRIVER", "DB_SQLITE_PATH", "SCHEDULER_WORKERS", "MONITOR_LOSS_CHECK_INTERVAL", "ANALYTICS_RISK_FREE_RATE"} {
		key := key
		old, had := os.LookupEnv(key)
		t.Cleanup(func() {
			if had {
				os.Setenv(key, old)
			} else {
				os.Unsetenv(key)
			}
		})
		os.Unsetenv(key)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.SQLitePath != "/tmp/guard-test.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Scheduler.Workers != 3 {
		t.Errorf("Scheduler.Workers = %d, want 3", cfg.Scheduler.Workers)
	}
	if cfg.Monitor.LossCheckInterval != 15*time.Second {
		t.Errorf("LossCheckInterval = %v, want 15s", cfg.Monitor.LossCheckInterval)
	}
	if cfg.Analytics.RiskFreeRate != 0.5 {
		t.Errorf("RiskFreeRate = %v, want 0.5", cfg.Analytics.RiskFreeRate)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	t.Setenv("DB_ENABLED", "false")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	cfg.Scheduler.LeaseTTL = 0
	cfg.Monitor.WarningThreshold = 96
	cfg.Cleanup.DailyHour = 24

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"SCHEDULER_LEASE_TTL", "MONITOR_WARNING_THRESHOLD", "CLEANUP_DAILY_HOUR"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestUnknownDriverRejected(t *testing.T) {
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("DB_DRIVER", "mysql")

	if _, err := LoadConfig(""); err == nil || !strings.Contains(err.Error(), "DB_DRIVER") {
		t.Fatalf("expected DB_DRIVER error, got %v", err)
	}
}
