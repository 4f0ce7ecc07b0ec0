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

package listener

import (
	"context"
	"sync"
	"time"

	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"

	"go.uber.org/zap"
)

// StatusPoller resolves a pending payment by asking its provider.
type StatusPoller interface {
	PollPayment(ctx context.Context, payment *models.Payment, source models.EventSource) (*models.EventResult, error)
}

// PaymentPollerConfig contains configuration for PaymentPoller
type PaymentPollerConfig struct {
	Payments        StatusPoller
	DbService       store.LedgerStore
	PollingInterval time.Duration
	MinPendingAge   time.Duration
	CleanupInterval time.Duration
	BatchSize       int
}

// PaymentPoller periodically asks providers about payments that have been
// pending for a while, covering webhooks that never arrived.
type PaymentPoller struct {
	payments  StatusPoller
	dbService store.LedgerStore

	// pending payments already checked recently, by payment id
	checkedIds      map[string]time.Time
	mutex           sync.RWMutex
	pollingInterval time.Duration
	minPendingAge   time.Duration
	cleanupInterval time.Duration
	batchSize       int

	stopChan chan struct{}
	doneChan chan struct{}
	now      func() time.Time
}

// NewPaymentPoller creates a new pending payment poller
func NewPaymentPoller(cfg PaymentPollerConfig) *PaymentPoller {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &PaymentPoller{
		payments:        cfg.Payments,
		dbService:       cfg.DbService,
		checkedIds:      make(map[string]time.Time),
		pollingInterval: cfg.PollingInterval,
		minPendingAge:   cfg.MinPendingAge,
		cleanupInterval: cfg.CleanupInterval,
		batchSize:       batch,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
		now:             time.Now,
	}
}

// wasCheckedRecently reports whether the payment was polled within minPendingAge
func (p *PaymentPoller) wasCheckedRecently(paymentId string) bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	checkedAt, exists := p.checkedIds[paymentId]
	return exists && p.now().Sub(checkedAt) < p.minPendingAge
}

func (p *PaymentPoller) markChecked(paymentId string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.checkedIds[paymentId] = p.now()
}

func (p *PaymentPoller) forget(paymentId string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	delete(p.checkedIds, paymentId)
}

// cleanupLoop periodically drops stale entries from the checked set
func (p *PaymentPoller) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.cleanupCheckedPayments()
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *PaymentPoller) cleanupCheckedPayments() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	cutoff := p.now().Add(-p.minPendingAge)
	cleaned := 0

	for id, checkedAt := range p.checkedIds {
		if checkedAt.Before(cutoff) {
			delete(p.checkedIds, id)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up checked payments",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(p.checkedIds)))
	}
}
