package models

import "time"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Provider   ProviderConfig
	Poller     PollerConfig
	Reconcile  ReconcileConfig
	Outbox     OutboxConfig
	Catalog    CatalogConfig
	Assessment AssessmentConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ProviderConfig holds payment provider credentials and call limits
type ProviderConfig struct {
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	Currency       string

	PayPalClientID     string
	PayPalClientSecret string
	PayPalAPIBase      string
	PayPalWebhookID    string
	PayPalReturnURL    string
	PayPalCancelURL    string

	GatewayBaseURL       string
	GatewayAPIKey        string
	GatewayWebhookSecret string

	SandboxEnabled bool
	SandboxSecret  string
}

// PollerConfig holds pending payment poller settings
type PollerConfig struct {
	PollingInterval time.Duration
	MinPendingAge   time.Duration
	CleanupInterval time.Duration
	BatchSize       int
}

// ReconcileConfig holds reconciliation sweep settings
type ReconcileConfig struct {
	Schedule  string
	BatchSize int
}

// OutboxConfig holds event publishing settings
type OutboxConfig struct {
	KafkaBrokers []string
	Topic        string
	PollInterval time.Duration
	BatchSize    int
}

// CatalogConfig points at the course catalog file
type CatalogConfig struct {
	File string
}

// AssessmentConfig lists the user ids allowed to record practical assessments
type AssessmentConfig struct {
	Reviewers []string
}
