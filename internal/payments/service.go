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

package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"course-ledger-go/internal/apperrors"
	"course-ledger-go/internal/models"
	"course-ledger-go/internal/provider"
	"course-ledger-go/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Materializer creates the enrollment for a settled payment.
type Materializer interface {
	MaterializeOnSuccess(ctx context.Context, payment *models.Payment) (*models.Enrollment, error)
}

// IntentParams is a purchase request from an authenticated user.
type IntentParams struct {
	UserId         string `validate:"required"`
	CourseId       string `validate:"required"`
	Method         string `validate:"required"`
	IdempotencyKey string `validate:"omitempty,max=255"`
}

// Service is the payment state machine. Webhooks, confirm requests and the
// background poller all funnel provider outcomes through ApplyProviderEvent.
type Service struct {
	store        store.LedgerStore
	providers    *provider.Registry
	materializer Materializer
	validate     *validator.Validate

	currency       string
	timeout        time.Duration
	retryAttempts  int
	retryBaseDelay time.Duration
	now            func() time.Time
}

func NewService(st store.LedgerStore, providers *provider.Registry, materializer Materializer, cfg models.ProviderConfig) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := cfg.RetryBaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	attempts := cfg.RetryAttempts
	if attempts < 0 {
		attempts = 0
	}

	return &Service{
		store:          st,
		providers:      providers,
		materializer:   materializer,
		validate:       validator.New(),
		currency:       cfg.Currency,
		timeout:        timeout,
		retryAttempts:  attempts,
		retryBaseDelay: base,
		now:            time.Now,
	}
}

// CreateIntent opens a pending payment and obtains a provider handle for it.
// An existing pending payment for the same user and course is returned with
// ErrPaymentInProgress instead of creating a second one. When the provider
// cannot be reached the payment stays pending and the result still carries
// its id alongside ErrProviderUnavailable.
func (s *Service) CreateIntent(ctx context.Context, params IntentParams) (*models.IntentResult, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, apperrors.With(apperrors.ErrInvalidRequest, err)
	}

	prov, err := s.providers.ForMethod(params.Method)
	if err != nil {
		return nil, apperrors.With(apperrors.ErrInvalidRequest, err)
	}

	if params.IdempotencyKey != "" {
		existing, err := s.store.GetPaymentByIdempotencyKey(ctx, params.IdempotencyKey)
		switch {
		case err == nil:
			return s.replayIntent(ctx, existing, params)
		case !errors.Is(err, store.ErrNotFound):
			return nil, apperrors.Transient(err)
		}
	}

	course, err := s.store.GetCourse(ctx, params.CourseId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.With(apperrors.ErrCourseNotFound, err)
		}
		return nil, apperrors.Transient(err)
	}
	if course.IsFree() {
		return nil, apperrors.Withf(apperrors.ErrCourseIsFree, "course %s", course.Id)
	}

	if _, err := s.store.GetEnrollment(ctx, params.UserId, params.CourseId); err == nil {
		return nil, apperrors.Withf(apperrors.ErrAlreadyEnrolled, "user %s course %s", params.UserId, params.CourseId)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.Transient(err)
	}

	if pending, err := s.store.GetPendingPayment(ctx, params.UserId, params.CourseId); err == nil {
		return s.resumePending(ctx, pending, course)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.Transient(err)
	}

	currency := course.Currency
	if currency == "" {
		currency = s.currency
	}

	payment, err := s.store.CreatePendingPayment(ctx, store.CreatePaymentParams{
		UserId:         params.UserId,
		CourseId:       params.CourseId,
		Amount:         course.Price,
		Currency:       currency,
		Provider:       prov.Name(),
		Method:         params.Method,
		IdempotencyKey: params.IdempotencyKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrPendingPaymentExists):
			// lost the race against a concurrent intent for the same course
			pending, getErr := s.store.GetPendingPayment(ctx, params.UserId, params.CourseId)
			if getErr != nil {
				return nil, apperrors.Transient(getErr)
			}
			return s.resumePending(ctx, pending, course)
		case errors.Is(err, store.ErrDuplicate):
			existing, getErr := s.store.GetPaymentByIdempotencyKey(ctx, params.IdempotencyKey)
			if getErr != nil {
				return nil, apperrors.Transient(getErr)
			}
			return s.replayIntent(ctx, existing, params)
		}
		return nil, apperrors.Transient(err)
	}

	payment, err = s.requestHandle(ctx, prov, payment, course)
	return intentResult(payment, false), err
}

// replayIntent answers a request that reuses an idempotency key.
func (s *Service) replayIntent(ctx context.Context, payment *models.Payment, params IntentParams) (*models.IntentResult, error) {
	if payment.UserId != params.UserId || payment.CourseId != params.CourseId {
		return nil, apperrors.Withf(apperrors.ErrInvalidRequest, "idempotency key %s belongs to another request", params.IdempotencyKey)
	}
	if payment.Status != models.PaymentStatusPending || payment.ProviderTransactionId != "" {
		return intentResult(payment, true), nil
	}

	course, err := s.store.GetCourse(ctx, payment.CourseId)
	if err != nil {
		return nil, apperrors.Transient(err)
	}
	prov, err := s.providers.ByName(payment.Provider)
	if err != nil {
		return nil, apperrors.With(apperrors.ErrProviderNotFound, err)
	}
	payment, err = s.requestHandle(ctx, prov, payment, course)
	return intentResult(payment, true), err
}

// resumePending hands back an existing pending intent. A payment that never
// obtained a provider handle gets another attempt here.
func (s *Service) resumePending(ctx context.Context, payment *models.Payment, course *models.Course) (*models.IntentResult, error) {
	zap.L().Info("Pending payment already exists",
		zap.String("payment_id", payment.Id),
		zap.String("user_id", payment.UserId),
		zap.String("course_id", payment.CourseId))

	if payment.ProviderTransactionId == "" {
		prov, err := s.providers.ByName(payment.Provider)
		if err != nil {
			return nil, apperrors.With(apperrors.ErrProviderNotFound, err)
		}
		payment, err = s.requestHandle(ctx, prov, payment, course)
		if err != nil {
			return intentResult(payment, true), err
		}
	}

	return intentResult(payment, true), apperrors.Withf(apperrors.ErrPaymentInProgress, "payment %s", payment.Id)
}

// requestHandle asks the provider for a transaction and attaches it to the
// payment. No storage transaction is open while the provider call runs.
func (s *Service) requestHandle(ctx context.Context, prov provider.Provider, payment *models.Payment, course *models.Course) (*models.Payment, error) {
	var intent *provider.Intent
	err := s.withRetry(ctx, "create intent", func(ctx context.Context) error {
		var err error
		intent, err = prov.CreateIntent(ctx, provider.IntentRequest{
			Reference: payment.Id,
			UserId:    payment.UserId,
			CourseId:  payment.CourseId,
			Title:     course.Title,
			Amount:    payment.Amount,
			Currency:  payment.Currency,
		})
		return err
	})
	if err != nil {
		zap.L().Error("Provider intent creation failed, payment left pending",
			zap.String("payment_id", payment.Id),
			zap.String("provider", prov.Name()),
			zap.Error(err))
		return payment, providerFailure(err)
	}

	attached, err := s.store.AttachProviderHandle(ctx, payment.Id, intent.TransactionId, intent.RedirectURL)
	if err != nil {
		if errors.Is(err, store.ErrConcurrentModification) {
			// a concurrent request attached its handle first, or the payment settled
			current, getErr := s.store.GetPayment(ctx, payment.Id)
			if getErr != nil {
				return payment, apperrors.Transient(getErr)
			}
			return current, nil
		}
		return payment, apperrors.Transient(fmt.Errorf("attach provider handle: %w", err))
	}

	zap.L().Info("Payment intent ready",
		zap.String("payment_id", attached.Id),
		zap.String("provider", attached.Provider),
		zap.String("transaction_id", attached.ProviderTransactionId))
	return attached, nil
}

// ApplyProviderEvent settles a pending payment from a provider outcome. The
// status write is a compare-and-swap, so when the webhook and a poll race the
// loser observes the terminal state and returns without side effects. The
// enrollment is materialized as a separate step once the transition commits.
func (s *Service) ApplyProviderEvent(ctx context.Context, event models.PaymentEvent) (*models.EventResult, error) {
	if err := s.validate.Struct(event); err != nil {
		return nil, apperrors.With(apperrors.ErrInvalidRequest, err)
	}
	if !event.Outcome.Valid() {
		return nil, apperrors.Withf(apperrors.ErrInvalidRequest, "unknown outcome %q", event.Outcome)
	}

	payment, err := s.store.GetPaymentByProviderTransaction(ctx, event.TransactionId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("Provider event for unknown transaction",
				zap.String("transaction_id", event.TransactionId),
				zap.String("source", string(event.Source)))
			return nil, apperrors.With(apperrors.ErrPaymentNotFound, err)
		}
		return nil, apperrors.Transient(err)
	}

	if !event.Outcome.IsTerminal() {
		return &models.EventResult{Payment: payment}, nil
	}
	if payment.Status.IsTerminal() {
		s.logSettled(payment, event)
		return &models.EventResult{Payment: payment}, nil
	}

	updated, applied, err := s.store.TransitionPayment(ctx, store.TransitionParams{
		PaymentId:  payment.Id,
		To:         event.Outcome,
		RawPayload: event.Payload,
		At:         s.now().UTC(),
	})
	if err != nil {
		return nil, apperrors.Transient(fmt.Errorf("transition payment %s: %w", payment.Id, err))
	}
	if !applied {
		s.logSettled(updated, event)
		return &models.EventResult{Payment: updated}, nil
	}

	zap.L().Info("Payment settled",
		zap.String("payment_id", updated.Id),
		zap.String("status", string(updated.Status)),
		zap.String("source", string(event.Source)))

	result := &models.EventResult{Payment: updated, Applied: true}
	if updated.Status != models.PaymentStatusSucceeded {
		return result, nil
	}

	var enrollment *models.Enrollment
	err = s.withRetry(ctx, "materialize enrollment", func(ctx context.Context) error {
		var err error
		enrollment, err = s.materializer.MaterializeOnSuccess(ctx, updated)
		return err
	})
	if err != nil {
		// the payment stays succeeded and the reconciliation sweep retries
		zap.L().Error("Enrollment materialization failed",
			zap.String("payment_id", updated.Id),
			zap.Error(err))
		if apperrors.KindOf(err) == apperrors.KindFatal {
			return result, err
		}
		return result, nil
	}
	result.Enrollment = enrollment
	return result, nil
}

func (s *Service) logSettled(payment *models.Payment, event models.PaymentEvent) {
	if payment.Status != event.Outcome {
		zap.L().Warn("Provider outcome disagrees with settled payment",
			zap.String("payment_id", payment.Id),
			zap.String("stored", string(payment.Status)),
			zap.String("incoming", string(event.Outcome)),
			zap.String("source", string(event.Source)))
		return
	}
	zap.L().Debug("Payment already settled",
		zap.String("payment_id", payment.Id),
		zap.String("source", string(event.Source)))
}

// GetStatus returns a payment owned by userId.
func (s *Service) GetStatus(ctx context.Context, userId, paymentId string) (*models.Payment, error) {
	payment, err := s.store.GetPayment(ctx, paymentId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.With(apperrors.ErrPaymentNotFound, err)
		}
		return nil, apperrors.Transient(err)
	}
	if payment.UserId != userId {
		return nil, apperrors.Withf(apperrors.ErrPaymentNotFound, "payment %s", paymentId)
	}
	return payment, nil
}

// Confirm is the client-side poll: it asks the provider for the outcome of
// the user's payment and applies it. Abandoning the request leaves the
// payment pending for a later poll or webhook.
func (s *Service) Confirm(ctx context.Context, userId, paymentId string) (*models.EventResult, error) {
	payment, err := s.GetStatus(ctx, userId, paymentId)
	if err != nil {
		return nil, err
	}
	return s.PollPayment(ctx, payment, models.EventSourceConfirm)
}

// PollPayment reads the provider status of a pending payment and feeds it to
// ApplyProviderEvent.
func (s *Service) PollPayment(ctx context.Context, payment *models.Payment, source models.EventSource) (*models.EventResult, error) {
	if payment.Status.IsTerminal() || payment.ProviderTransactionId == "" {
		return &models.EventResult{Payment: payment}, nil
	}

	prov, err := s.providers.ByName(payment.Provider)
	if err != nil {
		return nil, apperrors.With(apperrors.ErrProviderNotFound, err)
	}

	var status *provider.Status
	err = s.withRetry(ctx, "get status", func(ctx context.Context) error {
		var err error
		status, err = prov.GetStatus(ctx, payment.ProviderTransactionId)
		return err
	})
	if err != nil {
		return nil, providerFailure(err)
	}
	if !status.Outcome.IsTerminal() {
		return &models.EventResult{Payment: payment}, nil
	}

	return s.ApplyProviderEvent(ctx, models.PaymentEvent{
		TransactionId: payment.ProviderTransactionId,
		Outcome:       status.Outcome,
		Payload:       status.Payload,
		Source:        source,
	})
}

// HandleWebhook verifies, audits and applies one provider delivery. Deliveries
// for transactions this system never created are acknowledged as ignored so
// the provider stops redelivering them.
func (s *Service) HandleWebhook(ctx context.Context, providerName string, header http.Header, body []byte) (*models.WebhookAck, error) {
	handler, err := s.providers.Webhooks(providerName)
	if err != nil {
		return nil, apperrors.With(apperrors.ErrProviderNotFound, err)
	}

	verifyErr := handler.VerifyWebhook(ctx, header, body)
	event, parseErr := handler.ParseWebhook(body)
	if parseErr != nil {
		if verifyErr != nil {
			return nil, apperrors.With(apperrors.ErrInvalidSignature, verifyErr)
		}
		return nil, apperrors.With(apperrors.ErrInvalidRequest, parseErr)
	}

	record, fresh, err := s.store.RecordProviderEvent(ctx, store.ProviderEventParams{
		Provider:       providerName,
		EventId:        event.EventId,
		TransactionId:  event.TransactionId,
		Outcome:        string(event.Outcome),
		Payload:        event.Payload,
		SignatureValid: verifyErr == nil,
		ReceivedAt:     s.now().UTC(),
	})
	if err != nil {
		return nil, apperrors.Transient(err)
	}

	if verifyErr != nil {
		zap.L().Warn("Rejected webhook with invalid signature",
			zap.String("provider", providerName),
			zap.String("event_id", record.EventId),
			zap.Error(verifyErr))
		return nil, apperrors.With(apperrors.ErrInvalidSignature, verifyErr)
	}

	ack := &models.WebhookAck{EventId: record.EventId, Status: models.WebhookProcessed}
	if !fresh && record.ProcessedAt != nil && record.SignatureValid {
		ack.Status = models.WebhookDuplicate
		return ack, nil
	}

	if event.Outcome == "" || event.TransactionId == "" {
		ack.Status = models.WebhookIgnored
		s.markProcessed(ctx, record.Id, nil)
		return ack, nil
	}

	result, err := s.applyWebhookEvent(ctx, event)
	if err != nil {
		if apperrors.IsRetryable(err) {
			// leave unprocessed so the redelivery is handled
			return nil, err
		}
		s.markProcessed(ctx, record.Id, err)
		if errors.Is(err, apperrors.ErrPaymentNotFound) {
			ack.Status = models.WebhookIgnored
			return ack, nil
		}
		return nil, err
	}

	s.markProcessed(ctx, record.Id, nil)
	ack.PaymentId = result.Payment.Id
	ack.PaymentStatus = result.Payment.Status
	return ack, nil
}

// applyWebhookEvent applies a terminal outcome directly. A pending outcome
// means the provider wants us to look again, so the payment is polled.
func (s *Service) applyWebhookEvent(ctx context.Context, event *provider.WebhookEvent) (*models.EventResult, error) {
	if event.Outcome.IsTerminal() {
		return s.ApplyProviderEvent(ctx, models.PaymentEvent{
			TransactionId: event.TransactionId,
			Outcome:       event.Outcome,
			Payload:       event.Payload,
			Source:        models.EventSourceWebhook,
		})
	}

	payment, err := s.store.GetPaymentByProviderTransaction(ctx, event.TransactionId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.With(apperrors.ErrPaymentNotFound, err)
		}
		return nil, apperrors.Transient(err)
	}
	return s.PollPayment(ctx, payment, models.EventSourceWebhook)
}

func (s *Service) markProcessed(ctx context.Context, id string, cause error) {
	if err := s.store.MarkProviderEventProcessed(ctx, id, cause); err != nil {
		zap.L().Error("Failed to mark provider event processed", zap.String("event_record_id", id), zap.Error(err))
	}
}

// withRetry retries fn with exponential backoff while it returns transient
// errors. Each attempt runs under its own timeout.
func (s *Service) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(s.retryBaseDelay)
	backoff = retry.WithJitterPercent(10, backoff)
	backoff = retry.WithMaxRetries(uint64(s.retryAttempts), backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		err := fn(attemptCtx)
		if err != nil && apperrors.IsRetryable(err) {
			zap.L().Warn("Transient failure, retrying",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
}

// providerFailure classifies a provider error once retries are exhausted.
// Timeouts stay retryable; anything the adapter did not classify is a
// permanent rejection.
func providerFailure(err error) error {
	var classified *apperrors.Error
	switch {
	case errors.As(err, &classified):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.With(apperrors.ErrProviderUnavailable, err)
	default:
		return apperrors.With(apperrors.ErrProviderRejected, err)
	}
}

func intentResult(payment *models.Payment, reused bool) *models.IntentResult {
	return &models.IntentResult{
		PaymentId:   payment.Id,
		Status:      payment.Status,
		Provider:    payment.Provider,
		RedirectURL: payment.RedirectURL,
		Reused:      reused,
	}
}
