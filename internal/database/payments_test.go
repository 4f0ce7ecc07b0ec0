package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

func createTestPayment(t *testing.T, svc *Service, userId, key string) *models.Payment {
	t.Helper()
	payment, err := svc.CreatePendingPayment(context.Background(), store.CreatePaymentParams{
		UserId:         userId,
		CourseId:       "course-1",
		Amount:         decimal.RequireFromString("49.99"),
		Currency:       "USD",
		Provider:       "sandbox",
		Method:         "card",
		IdempotencyKey: key,
	})
	if err != nil {
		t.Fatalf("Failed to create payment: %v", err)
	}
	return payment
}

func TestCreatePendingPayment(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	ctx := context.Background()

	payment := createTestPayment(t, svc, "user-1", "key-1")
	if payment.Status != models.PaymentStatusPending {
		t.Errorf("Expected pending, got %s", payment.Status)
	}
	if !payment.Amount.Equal(decimal.RequireFromString("49.99")) {
		t.Errorf("Expected amount 49.99, got %s", payment.Amount)
	}

	_, err := svc.CreatePendingPayment(ctx, store.CreatePaymentParams{
		UserId: "user-1", CourseId: "course-1", Amount: decimal.RequireFromString("49.99"),
		Currency: "USD", Provider: "sandbox", Method: "card",
	})
	if !errors.Is(err, store.ErrPendingPaymentExists) {
		t.Errorf("Expected ErrPendingPaymentExists, got %v", err)
	}

	_, err = svc.CreatePendingPayment(ctx, store.CreatePaymentParams{
		UserId: "user-2", CourseId: "course-1", Amount: decimal.RequireFromString("49.99"),
		Currency: "USD", Provider: "sandbox", Method: "card", IdempotencyKey: "key-1",
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for reused idempotency key, got %v", err)
	}

	byKey, err := svc.GetPaymentByIdempotencyKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("Failed to get payment by key: %v", err)
	}
	if byKey.Id != payment.Id {
		t.Errorf("Expected %s, got %s", payment.Id, byKey.Id)
	}
}

func TestConcurrentPendingPaymentCreation(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	created, conflicts := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreatePendingPayment(context.Background(), store.CreatePaymentParams{
				UserId: "user-1", CourseId: "course-1", Amount: decimal.RequireFromString("49.99"),
				Currency: "USD", Provider: "sandbox", Method: "card",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, store.ErrPendingPaymentExists):
				conflicts++
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("Expected exactly 1 created payment, got %d", created)
	}
	if conflicts != workers-1 {
		t.Errorf("Expected %d conflicts, got %d", workers-1, conflicts)
	}
}

func TestAttachProviderHandle(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	ctx := context.Background()

	payment := createTestPayment(t, svc, "user-1", "")

	updated, err := svc.AttachProviderHandle(ctx, payment.Id, "tx-1", "https://pay.example/tx-1")
	if err != nil {
		t.Fatalf("Failed to attach handle: %v", err)
	}
	if updated.ProviderTransactionId != "tx-1" || updated.RedirectURL != "https://pay.example/tx-1" {
		t.Errorf("Expected handle to be stored, got %+v", updated)
	}

	// same handle again is accepted
	if _, err := svc.AttachProviderHandle(ctx, payment.Id, "tx-1", "https://pay.example/tx-1"); err != nil {
		t.Errorf("Expected re-attach of same handle to succeed, got %v", err)
	}

	if _, err := svc.AttachProviderHandle(ctx, payment.Id, "tx-2", ""); !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("Expected ErrConcurrentModification for a different handle, got %v", err)
	}

	found, err := svc.GetPaymentByProviderTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("Failed to find by provider tx: %v", err)
	}
	if found.Id != payment.Id {
		t.Errorf("Expected %s, got %s", payment.Id, found.Id)
	}
}

func TestTransitionPaymentIsCompareAndSwap(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	ctx := context.Background()

	payment := createTestPayment(t, svc, "user-1", "")

	updated, applied, err := svc.TransitionPayment(ctx, store.TransitionParams{
		PaymentId: payment.Id, To: models.PaymentStatusSucceeded, RawPayload: `{"status":"ok"}`,
	})
	if err != nil {
		t.Fatalf("Failed to transition: %v", err)
	}
	if !applied {
		t.Errorf("Expected first transition to apply")
	}
	if updated.Status != models.PaymentStatusSucceeded || updated.ProcessedAt == nil {
		t.Errorf("Expected succeeded with processed_at, got %+v", updated)
	}

	current, applied, err := svc.TransitionPayment(ctx, store.TransitionParams{
		PaymentId: payment.Id, To: models.PaymentStatusFailed,
	})
	if err != nil {
		t.Fatalf("Expected no error on lost CAS, got %v", err)
	}
	if applied {
		t.Errorf("Expected second transition to be skipped")
	}
	if current.Status != models.PaymentStatusSucceeded {
		t.Errorf("Expected succeeded to stick, got %s", current.Status)
	}

	if _, _, err := svc.TransitionPayment(ctx, store.TransitionParams{PaymentId: "missing", To: models.PaymentStatusFailed}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if _, _, err := svc.TransitionPayment(ctx, store.TransitionParams{PaymentId: payment.Id, To: models.PaymentStatusPending}); err == nil {
		t.Errorf("Expected error for non-terminal target")
	}

	events, err := svc.ListPendingOutboxEvents(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list outbox: %v", err)
	}
	if len(events) != 1 || events[0].EventType != models.EventPaymentSucceeded {
		t.Errorf("Expected one payment.succeeded event, got %+v", events)
	}

	// a new attempt is allowed once the previous one is terminal
	createTestPayment(t, svc, "user-1", "")
}

func TestConcurrentTransitionsApplyOnce(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)

	payment := createTestPayment(t, svc, "user-1", "")

	outcomes := []models.PaymentStatus{
		models.PaymentStatusSucceeded, models.PaymentStatusFailed,
		models.PaymentStatusSucceeded, models.PaymentStatusCancelled,
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for _, outcome := range outcomes {
		wg.Add(1)
		go func(to models.PaymentStatus) {
			defer wg.Done()
			_, ok, err := svc.TransitionPayment(context.Background(), store.TransitionParams{PaymentId: payment.Id, To: to})
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(outcome)
	}
	wg.Wait()

	if applied != 1 {
		t.Errorf("Expected exactly one applied transition, got %d", applied)
	}
}

func TestListPayments(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	ctx := context.Background()

	pending := createTestPayment(t, svc, "user-1", "")
	if _, err := svc.AttachProviderHandle(ctx, pending.Id, "tx-pending", ""); err != nil {
		t.Fatalf("Failed to attach handle: %v", err)
	}

	// no handle yet, so the poller cannot check it
	createTestPayment(t, svc, "user-3", "")

	succeeded := createTestPayment(t, svc, "user-2", "")
	if _, _, err := svc.TransitionPayment(ctx, store.TransitionParams{PaymentId: succeeded.Id, To: models.PaymentStatusSucceeded}); err != nil {
		t.Fatalf("Failed to transition: %v", err)
	}

	list, err := svc.ListPendingPayments(ctx, time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("Failed to list pending: %v", err)
	}
	if len(list) != 1 || list[0].Id != pending.Id {
		t.Errorf("Expected only %s, got %+v", pending.Id, list)
	}

	list, err = svc.ListPendingPayments(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("Failed to list pending: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("Expected no payments older than an hour, got %d", len(list))
	}

	orphans, err := svc.ListSucceededPaymentsWithoutEnrollment(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list orphans: %v", err)
	}
	if len(orphans) != 1 || orphans[0].Id != succeeded.Id {
		t.Fatalf("Expected %s to be unmaterialized, got %+v", succeeded.Id, orphans)
	}

	if _, _, err := svc.CreateEnrollment(ctx, store.EnrollmentParams{
		UserId: "user-2", CourseId: "course-1", PaymentId: succeeded.Id, Source: models.EnrollmentSourcePayment,
	}); err != nil {
		t.Fatalf("Failed to enroll: %v", err)
	}

	orphans, err = svc.ListSucceededPaymentsWithoutEnrollment(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list orphans: %v", err)
	}
	if len(orphans) != 0 {
		t.Errorf("Expected no orphans after enrollment, got %d", len(orphans))
	}
}

func TestRecordProviderEventUpgradesUnverified(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	forged := store.ProviderEventParams{
		Provider: "gateway", EventId: "evt-1", TransactionId: "tx-forged",
		Outcome: "failed", Payload: `{"forged":true}`, SignatureValid: false,
	}
	first, fresh, err := svc.RecordProviderEvent(ctx, forged)
	if err != nil || !fresh {
		t.Fatalf("Failed to record unverified event: fresh=%v err=%v", fresh, err)
	}

	_, fresh, err = svc.RecordProviderEvent(ctx, forged)
	if err != nil || fresh {
		t.Errorf("Expected a repeated unverified delivery to change nothing, fresh=%v err=%v", fresh, err)
	}

	genuine := store.ProviderEventParams{
		Provider: "gateway", EventId: "evt-1", TransactionId: "tx-1",
		Outcome: "succeeded", Payload: `{"ok":true}`, SignatureValid: true,
	}
	ev, fresh, err := svc.RecordProviderEvent(ctx, genuine)
	if err != nil {
		t.Fatalf("Failed to record verified event: %v", err)
	}
	if !fresh {
		t.Errorf("Expected the verified delivery to replace the unverified row")
	}
	if ev.Id != first.Id || !ev.SignatureValid || ev.TransactionId != "tx-1" || ev.Payload != `{"ok":true}` {
		t.Errorf("Expected upgraded audit row, got %+v", ev)
	}

	forged.Payload = `{"forged":"again"}`
	again, fresh, err := svc.RecordProviderEvent(ctx, forged)
	if err != nil || fresh {
		t.Fatalf("Expected a later unverified delivery to be ignored, fresh=%v err=%v", fresh, err)
	}
	if !again.SignatureValid || again.Payload != `{"ok":true}` {
		t.Errorf("Verified row must not be downgraded, got %+v", again)
	}
}

func TestRecordProviderEventDeduplicates(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	params := store.ProviderEventParams{
		Provider: "gateway", EventId: "evt-1", TransactionId: "tx-1",
		Outcome: "succeeded", Payload: "{}", SignatureValid: true,
	}
	ev, fresh, err := svc.RecordProviderEvent(ctx, params)
	if err != nil {
		t.Fatalf("Failed to record event: %v", err)
	}
	if !fresh {
		t.Errorf("Expected first delivery to be fresh")
	}

	if err := svc.MarkProviderEventProcessed(ctx, ev.Id, nil); err != nil {
		t.Fatalf("Failed to mark processed: %v", err)
	}

	again, fresh, err := svc.RecordProviderEvent(ctx, params)
	if err != nil {
		t.Fatalf("Failed to record duplicate: %v", err)
	}
	if fresh {
		t.Errorf("Expected duplicate delivery to be detected")
	}
	if again.Id != ev.Id || again.ProcessedAt == nil {
		t.Errorf("Expected the stored processed event, got %+v", again)
	}
}
