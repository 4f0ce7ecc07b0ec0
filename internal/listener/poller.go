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
	"fmt"
	"sync"
	"time"

	"course-ledger-go/internal/apperrors"
	"course-ledger-go/internal/models"

	"go.uber.org/zap"
)

// Start runs one poll pass and then polls on the configured interval
func (p *PaymentPoller) Start(ctx context.Context) error {
	if p.pollingInterval <= 0 || p.cleanupInterval <= 0 {
		return fmt.Errorf("polling and cleanup intervals must be positive")
	}

	zap.L().Info("Starting payment poller")

	go p.pollLoop(ctx)
	go p.cleanupLoop(ctx)

	zap.L().Info("Payment poller started successfully",
		zap.Duration("polling_interval", p.pollingInterval),
		zap.Duration("min_pending_age", p.minPendingAge))

	return nil
}

// Stop gracefully stops the payment poller
func (p *PaymentPoller) Stop() {
	zap.L().Info("Stopping payment poller")
	close(p.stopChan)
	<-p.doneChan
	zap.L().Info("Payment poller stopped")
}

func (p *PaymentPoller) pollLoop(ctx context.Context) {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	p.PollOnce(ctx)

	for {
		select {
		case <-ticker.C:
			p.PollOnce(ctx)
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// PollOnce checks every payment that has been pending for at least
// minPendingAge. Payments are polled concurrently, none holds a storage lock
// while its provider call is in flight.
func (p *PaymentPoller) PollOnce(ctx context.Context) models.PollReport {
	var report models.PollReport

	olderThan := p.now().UTC().Add(-p.minPendingAge)
	pending, err := p.dbService.ListPendingPayments(ctx, olderThan, p.batchSize)
	if err != nil {
		zap.L().Error("Failed to list pending payments", zap.Error(err))
		report.Errors++
		return report
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := range pending {
		payment := pending[i]
		if payment.ProviderTransactionId == "" || p.wasCheckedRecently(payment.Id) {
			report.Skipped++
			continue
		}
		report.Checked++

		wg.Add(1)
		go func() {
			defer wg.Done()

			resolved, err := p.pollPayment(ctx, &payment)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Errors++
			case resolved:
				report.Resolved++
			}
		}()
	}

	wg.Wait()

	if report.Checked > 0 || report.Errors > 0 {
		zap.L().Info("Pending payment poll completed",
			zap.Int("checked", report.Checked),
			zap.Int("resolved", report.Resolved),
			zap.Int("skipped", report.Skipped),
			zap.Int("errors", report.Errors))
	}
	return report
}

func (p *PaymentPoller) pollPayment(ctx context.Context, payment *models.Payment) (bool, error) {
	result, err := p.payments.PollPayment(ctx, payment, models.EventSourcePoller)
	if err != nil {
		zap.L().Error("Failed to poll payment",
			zap.String("payment_id", payment.Id),
			zap.String("provider", payment.Provider),
			zap.Bool("retryable", apperrors.IsRetryable(err)),
			zap.Error(err))
		p.markChecked(payment.Id)
		return false, err
	}

	if result.Payment.Status.IsTerminal() {
		p.forget(payment.Id)
		zap.L().Info("Resolved pending payment",
			zap.String("payment_id", payment.Id),
			zap.String("status", string(result.Payment.Status)),
			zap.Bool("applied", result.Applied))
		return true, nil
	}

	p.markChecked(payment.Id)
	return false, nil
}
