/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"course-ledger-go/internal/models"
)

func Load() (*models.Config, error) {
	d := durations{}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "course-ledger.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: d.get("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: d.get("DB_CONN_MAX_IDLE_TIME", 30*time.Second),
			PingTimeout:     d.get("DB_PING_TIMEOUT", 5*time.Second),
			BusyTimeout:     d.get("DB_BUSY_TIMEOUT", 5*time.Second),
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("HTTP_ADDR", ":8080"),
			ReadTimeout:     d.get("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    d.get("HTTP_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: d.get("HTTP_SHUTDOWN_TIMEOUT", 20*time.Second),
		},
		Provider: models.ProviderConfig{
			Timeout:              d.get("PROVIDER_TIMEOUT", 10*time.Second),
			RetryAttempts:        getEnvInt("PROVIDER_RETRY_ATTEMPTS", 3),
			RetryBaseDelay:       d.get("PROVIDER_RETRY_BASE_DELAY", 200*time.Millisecond),
			Currency:             strings.ToUpper(getEnvString("PAYMENT_CURRENCY", "USD")),
			PayPalClientID:       os.Getenv("PAYPAL_CLIENT_ID"),
			PayPalClientSecret:   os.Getenv("PAYPAL_CLIENT_SECRET"),
			PayPalAPIBase:        getEnvString("PAYPAL_API_BASE", "https://api-m.sandbox.paypal.com"),
			PayPalWebhookID:      os.Getenv("PAYPAL_WEBHOOK_ID"),
			PayPalReturnURL:      os.Getenv("PAYPAL_RETURN_URL"),
			PayPalCancelURL:      os.Getenv("PAYPAL_CANCEL_URL"),
			GatewayBaseURL:       os.Getenv("GATEWAY_BASE_URL"),
			GatewayAPIKey:        os.Getenv("GATEWAY_API_KEY"),
			GatewayWebhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
			SandboxEnabled:       getEnvBool("SANDBOX_PROVIDER_ENABLED", false),
			SandboxSecret:        getEnvString("SANDBOX_WEBHOOK_SECRET", "sandbox-secret"),
		},
		Poller: models.PollerConfig{
			PollingInterval: d.get("POLLER_INTERVAL", 30*time.Second),
			MinPendingAge:   d.get("POLLER_MIN_PENDING_AGE", 2*time.Minute),
			CleanupInterval: d.get("POLLER_CLEANUP_INTERVAL", 15*time.Minute),
			BatchSize:       getEnvInt("POLLER_BATCH_SIZE", 100),
		},
		Reconcile: models.ReconcileConfig{
			Schedule:  getEnvString("RECONCILE_SCHEDULE", "@every 5m"),
			BatchSize: getEnvInt("RECONCILE_BATCH_SIZE", 100),
		},
		Outbox: models.OutboxConfig{
			KafkaBrokers: getEnvList("KAFKA_BROKERS"),
			Topic:        getEnvString("KAFKA_TOPIC", "course-ledger.events"),
			PollInterval: d.get("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 50),
		},
		Catalog: models.CatalogConfig{
			File: getEnvString("CATALOG_FILE", "catalog.yaml"),
		},
		Assessment: models.AssessmentConfig{
			Reviewers: getEnvList("ASSESSMENT_REVIEWERS"),
		},
	}

	if d.err != nil {
		return nil, d.err
	}
	return cfg, nil
}

// durations collects the first parse error so Load can read every
// setting before failing.
type durations struct {
	err error
}

func (d *durations) get(key string, defaultValue time.Duration) time.Duration {
	value, err := getEnvDuration(key, defaultValue)
	if err != nil && d.err == nil {
		d.err = err
	}
	return value
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty entries
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
