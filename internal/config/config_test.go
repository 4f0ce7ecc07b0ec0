package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_PATH", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("ASSESSMENT_REVIEWERS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "course-ledger.db" {
		t.Errorf("Expected default database path, got %s", cfg.Database.Path)
	}
	if cfg.Reconcile.Schedule != "@every 5m" {
		t.Errorf("Expected default reconcile schedule, got %s", cfg.Reconcile.Schedule)
	}
	if cfg.Provider.RetryAttempts != 3 || cfg.Provider.Timeout != 10*time.Second {
		t.Errorf("Unexpected provider defaults %+v", cfg.Provider)
	}
	if len(cfg.Outbox.KafkaBrokers) != 0 {
		t.Errorf("Expected publishing disabled by default, got %v", cfg.Outbox.KafkaBrokers)
	}
	if len(cfg.Assessment.Reviewers) != 0 {
		t.Errorf("Expected no reviewers by default, got %v", cfg.Assessment.Reviewers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POLLER_INTERVAL", "45s")
	t.Setenv("PAYMENT_CURRENCY", "eur")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("SANDBOX_PROVIDER_ENABLED", "true")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")
	t.Setenv("ASSESSMENT_REVIEWERS", "mentor-1,mentor-2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Poller.PollingInterval != 45*time.Second {
		t.Errorf("Expected 45s polling interval, got %s", cfg.Poller.PollingInterval)
	}
	if cfg.Provider.Currency != "EUR" {
		t.Errorf("Expected upper-cased currency, got %s", cfg.Provider.Currency)
	}
	if len(cfg.Outbox.KafkaBrokers) != 2 || cfg.Outbox.KafkaBrokers[1] != "kafka-2:9092" {
		t.Errorf("Unexpected broker list %v", cfg.Outbox.KafkaBrokers)
	}
	if len(cfg.Assessment.Reviewers) != 2 || cfg.Assessment.Reviewers[0] != "mentor-1" {
		t.Errorf("Unexpected reviewers %v", cfg.Assessment.Reviewers)
	}
	if !cfg.Provider.SandboxEnabled {
		t.Errorf("Expected sandbox provider enabled")
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("Expected invalid int to fall back to default, got %d", cfg.Database.MaxOpenConns)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("Expected invalid duration to fail")
	}
}
