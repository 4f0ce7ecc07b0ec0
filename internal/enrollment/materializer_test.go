package enrollment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"course-ledger-go/internal/apperrors"
	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"
	"course-ledger-go/internal/testutil"

	"github.com/shopspring/decimal"
)

func settledPayment(t *testing.T, st store.LedgerStore, userId, courseId string) *models.Payment {
	t.Helper()
	ctx := context.Background()

	payment, err := st.CreatePendingPayment(ctx, store.CreatePaymentParams{
		UserId: userId, CourseId: courseId, Amount: decimal.RequireFromString("49.99"),
		Currency: "USD", Provider: "sandbox", Method: "card",
	})
	if err != nil {
		t.Fatalf("Failed to create payment: %v", err)
	}
	payment, applied, err := st.TransitionPayment(ctx, store.TransitionParams{
		PaymentId: payment.Id, To: models.PaymentStatusSucceeded, At: time.Now().UTC(),
	})
	if err != nil || !applied {
		t.Fatalf("Failed to settle payment: applied=%v err=%v", applied, err)
	}
	return payment
}

func TestMaterializeOnSuccess(t *testing.T) {
	st := testutil.NewStore(t)
	testutil.SeedCatalog(t, st)
	m := NewMaterializer(st)
	ctx := context.Background()

	payment := settledPayment(t, st, "user-1", "course-1")

	first, err := m.MaterializeOnSuccess(ctx, payment)
	if err != nil {
		t.Fatalf("Failed to materialize: %v", err)
	}
	second, err := m.MaterializeOnSuccess(ctx, payment)
	if err != nil {
		t.Fatalf("Second materialize should succeed, got %v", err)
	}
	if first.Id != second.Id {
		t.Errorf("Expected the same enrollment, got %s and %s", first.Id, second.Id)
	}
	if first.PaymentId != payment.Id || first.Source != models.EnrollmentSourcePayment {
		t.Errorf("Unexpected enrollment %+v", first)
	}

	cp, err := st.GetCourseProgress(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Expected initial course progress, got %v", err)
	}
	if cp.TotalLessons != 4 || cp.CompletedLessons != 0 || cp.ProgressPercentage != 0 {
		t.Errorf("Unexpected initial progress %+v", cp)
	}
}

func TestMaterializeConcurrentCallers(t *testing.T) {
	st := testutil.NewStore(t)
	testutil.SeedCatalog(t, st)
	m := NewMaterializer(st)
	payment := settledPayment(t, st, "user-1", "course-1")

	var wg sync.WaitGroup
	ids := make(chan string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			enrollment, err := m.MaterializeOnSuccess(context.Background(), payment)
			if err != nil {
				if apperrors.IsRetryable(err) {
					return
				}
				t.Errorf("Unexpected error: %v", err)
				return
			}
			ids <- enrollment.Id
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Errorf("Expected exactly one enrollment id, got %v", seen)
	}

	enrollments, err := st.ListEnrollments(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Failed to list enrollments: %v", err)
	}
	if len(enrollments) != 1 {
		t.Errorf("Expected 1 enrollment, got %d", len(enrollments))
	}
}

func TestMaterializeRejectsUnsettledPayment(t *testing.T) {
	st := testutil.NewStore(t)
	testutil.SeedCatalog(t, st)
	m := NewMaterializer(st)

	payment := &models.Payment{Id: "p-1", UserId: "user-1", CourseId: "course-1", Status: models.PaymentStatusPending}
	_, err := m.MaterializeOnSuccess(context.Background(), payment)
	if !errors.Is(err, apperrors.ErrInvariantViolation) {
		t.Fatalf("Expected ErrInvariantViolation, got %v", err)
	}
	if apperrors.KindOf(err) != apperrors.KindFatal {
		t.Errorf("Expected fatal kind, got %s", apperrors.KindOf(err))
	}

	if _, err := st.GetEnrollment(context.Background(), "user-1", "course-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected no enrollment, got %v", err)
	}
}

func TestEnrollFree(t *testing.T) {
	st := testutil.NewStore(t)
	testutil.SeedCatalog(t, st)
	m := NewMaterializer(st)
	ctx := context.Background()

	enrollment, created, err := m.EnrollFree(ctx, "user-1", "course-free")
	if err != nil || !created {
		t.Fatalf("Expected free enrollment, created=%v err=%v", created, err)
	}
	if enrollment.Source != models.EnrollmentSourceFree || enrollment.PaymentId != "" {
		t.Errorf("Unexpected enrollment %+v", enrollment)
	}

	_, created, err = m.EnrollFree(ctx, "user-1", "course-free")
	if err != nil || created {
		t.Errorf("Expected idempotent re-enroll, created=%v err=%v", created, err)
	}

	if _, _, err := m.EnrollFree(ctx, "user-1", "course-1"); !errors.Is(err, apperrors.ErrCourseNotFree) {
		t.Errorf("Expected ErrCourseNotFree, got %v", err)
	}
	if _, _, err := m.EnrollFree(ctx, "user-1", "missing"); !errors.Is(err, apperrors.ErrCourseNotFound) {
		t.Errorf("Expected ErrCourseNotFound, got %v", err)
	}
}

func TestGrant(t *testing.T) {
	st := testutil.NewStore(t)
	testutil.SeedCatalog(t, st)
	m := NewMaterializer(st)

	enrollment, created, err := m.Grant(context.Background(), "user-1", "course-1")
	if err != nil || !created {
		t.Fatalf("Expected grant, created=%v err=%v", created, err)
	}
	if enrollment.Source != models.EnrollmentSourceGrant {
		t.Errorf("Expected grant source, got %s", enrollment.Source)
	}
}
