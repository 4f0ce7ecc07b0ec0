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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreatePendingPayment opens a purchase attempt. A second pending payment for
// the same user and course is rejected by the partial unique index.
func (s *Service) CreatePendingPayment(ctx context.Context, params store.CreatePaymentParams) (*models.Payment, error) {
	zap.L().Info("Creating pending payment",
		zap.String("user_id", params.UserId),
		zap.String("course_id", params.CourseId),
		zap.String("amount", params.Amount.String()),
		zap.String("provider", params.Provider))

	now := time.Now().UTC()
	payment, err := scanPayment(s.db.QueryRowContext(ctx, queryInsertPayment,
		uuid.New().String(), params.UserId, params.CourseId, params.Amount.String(), params.Currency,
		params.Provider, params.Method, nullString(params.IdempotencyKey), now, now))
	if err != nil {
		switch {
		case isUniqueViolation(err, "idempotency_key"):
			return nil, fmt.Errorf("idempotency key %s: %w", params.IdempotencyKey, store.ErrDuplicate)
		case isUniqueViolation(err, "payments.user_id"):
			return nil, fmt.Errorf("user %s course %s: %w", params.UserId, params.CourseId, store.ErrPendingPaymentExists)
		}
		zap.L().Error("Failed to insert payment", zap.String("user_id", params.UserId), zap.Error(err))
		return nil, fmt.Errorf("unable to insert payment: %w", err)
	}

	zap.L().Info("Pending payment created", zap.String("payment_id", payment.Id))
	return payment, nil
}

func (s *Service) GetPayment(ctx context.Context, paymentId string) (*models.Payment, error) {
	return s.getPayment(ctx, s.db, queryGetPayment, paymentId)
}

func (s *Service) GetPaymentByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	return s.getPayment(ctx, s.db, queryGetPaymentByIdempotencyKey, key)
}

func (s *Service) GetPendingPayment(ctx context.Context, userId, courseId string) (*models.Payment, error) {
	payment, err := scanPayment(s.db.QueryRowContext(ctx, queryGetPendingPayment, userId, courseId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pending payment for user %s course %s: %w", userId, courseId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query pending payment: %w", err)
	}
	return payment, nil
}

func (s *Service) GetPaymentByProviderTransaction(ctx context.Context, transactionId string) (*models.Payment, error) {
	return s.getPayment(ctx, s.db, queryGetPaymentByProviderTx, transactionId)
}

func (s *Service) getPayment(ctx context.Context, q querier, query, key string) (*models.Payment, error) {
	payment, err := scanPayment(q.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payment %s: %w", key, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query payment: %w", err)
	}
	return payment, nil
}

// AttachProviderHandle records the provider transaction id and redirect URL
// on a pending payment. Attaching the same handle twice is a no-op.
func (s *Service) AttachProviderHandle(ctx context.Context, paymentId, transactionId, redirectURL string) (*models.Payment, error) {
	var payment *models.Payment
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, queryAttachProviderHandle,
			transactionId, redirectURL, time.Now().UTC(), paymentId, transactionId)
		if err != nil {
			if isUniqueViolation(err, "provider_transaction_id") {
				return fmt.Errorf("provider transaction %s: %w", transactionId, store.ErrDuplicate)
			}
			return fmt.Errorf("unable to attach provider handle: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("unable to get rows affected: %w", err)
		}

		payment, err = s.getPayment(ctx, tx, queryGetPayment, paymentId)
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return fmt.Errorf("payment %s is %s with handle %q: %w",
				paymentId, payment.Status, payment.ProviderTransactionId, store.ErrConcurrentModification)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Provider handle attached",
		zap.String("payment_id", paymentId),
		zap.String("provider_transaction_id", transactionId))
	return payment, nil
}

// TransitionPayment moves a pending payment to a terminal status. The bool
// result is false when another writer already moved it; the payment
// returned is then the current stored state.
func (s *Service) TransitionPayment(ctx context.Context, params store.TransitionParams) (*models.Payment, bool, error) {
	if !params.To.IsTerminal() {
		return nil, false, fmt.Errorf("transition target %q is not terminal", params.To)
	}
	at := params.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var payment *models.Payment
	var applied bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, queryTransitionPayment, string(params.To), params.RawPayload, at.UTC(), at.UTC(), params.PaymentId)
		if err != nil {
			return fmt.Errorf("failed to transition payment: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		applied = rowsAffected == 1

		payment, err = s.getPayment(ctx, tx, queryGetPayment, params.PaymentId)
		if err != nil {
			return err
		}

		if applied {
			return insertOutboxEvent(ctx, tx, models.PaymentEventType(params.To), payment.Id, payment, at)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if applied {
		zap.L().Info("Payment transitioned",
			zap.String("payment_id", payment.Id),
			zap.String("status", string(payment.Status)))
	} else {
		zap.L().Debug("Payment transition skipped, already terminal",
			zap.String("payment_id", payment.Id),
			zap.String("status", string(payment.Status)),
			zap.String("requested", string(params.To)))
	}
	return payment, applied, nil
}

// ListPendingPayments returns pending payments that already have a provider
// handle and were created at or before olderThan.
func (s *Service) ListPendingPayments(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error) {
	return s.listPayments(ctx, queryListPendingPayments, olderThan.UTC(), limit)
}

// ListSucceededPaymentsWithoutEnrollment finds succeeded payments whose
// enrollment was never materialized.
func (s *Service) ListSucceededPaymentsWithoutEnrollment(ctx context.Context, limit int) ([]models.Payment, error) {
	return s.listPayments(ctx, queryListSucceededWithoutEnrollment, limit)
}

func (s *Service) listPayments(ctx context.Context, query string, args ...any) ([]models.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query payments: %w", err)
	}
	defer closeRows(rows)

	var payments []models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan payment row: %w", err)
		}
		payments = append(payments, *payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment rows: %w", err)
	}
	return payments, nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var amount, status string
	var providerTx, idempotencyKey sql.NullString
	var processedAt sql.NullTime

	err := row.Scan(&p.Id, &p.UserId, &p.CourseId, &amount, &p.Currency, &status, &p.Provider, &p.Method,
		&providerTx, &p.RedirectURL, &idempotencyKey, &p.RawProviderPayload,
		&p.CreatedAt, &p.UpdatedAt, &processedAt)
	if err != nil {
		return nil, err
	}

	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amount, err)
	}
	p.Status = models.PaymentStatus(status)
	p.ProviderTransactionId = providerTx.String
	p.IdempotencyKey = idempotencyKey.String
	p.ProcessedAt = timePtr(processedAt)
	return &p, nil
}
