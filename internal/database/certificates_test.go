package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"
)

func TestIssueCertificate(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	ctx := context.Background()

	issued := time.Now().UTC()
	expires := issued.AddDate(1, 0, 0)
	params := store.IssueCertificateParams{
		UserId: "user-1", CertificateId: "cert-1", CourseId: "course-1", Code: "CERT-AAAA",
		IssuedAt: issued, ExpiresAt: &expires,
		VerificationData: models.VerificationData{RecipientName: "Ada", CourseTitle: "Go Fundamentals", IssuedAt: issued},
	}

	cert, err := svc.IssueCertificate(ctx, params)
	if err != nil {
		t.Fatalf("Failed to issue certificate: %v", err)
	}
	if cert.Status != models.CertificateStatusActive {
		t.Errorf("Expected active, got %s", cert.Status)
	}
	if cert.VerificationData.RecipientName != "Ada" {
		t.Errorf("Expected snapshot name Ada, got %s", cert.VerificationData.RecipientName)
	}

	dup := params
	dup.Code = "CERT-BBBB"
	if _, err := svc.IssueCertificate(ctx, dup); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for second issuance, got %v", err)
	}

	collision := params
	collision.UserId = "user-2"
	if _, err := svc.IssueCertificate(ctx, collision); !errors.Is(err, store.ErrDuplicateCode) {
		t.Errorf("Expected ErrDuplicateCode, got %v", err)
	}

	byCode, err := svc.GetUserCertificateByCode(ctx, "CERT-AAAA")
	if err != nil {
		t.Fatalf("Failed to look up by code: %v", err)
	}
	if byCode.Id != cert.Id {
		t.Errorf("Expected %s, got %s", cert.Id, byCode.Id)
	}
}

func TestExpireCertificates(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	ctx := context.Background()

	issued := time.Now().UTC().Add(-48 * time.Hour)
	expired := issued.Add(24 * time.Hour)
	if _, err := svc.IssueCertificate(ctx, store.IssueCertificateParams{
		UserId: "user-1", CertificateId: "cert-1", CourseId: "course-1", Code: "CERT-OLD",
		IssuedAt: issued, ExpiresAt: &expired,
	}); err != nil {
		t.Fatalf("Failed to issue certificate: %v", err)
	}
	if _, err := svc.IssueCertificate(ctx, store.IssueCertificateParams{
		UserId: "user-2", CertificateId: "cert-1", CourseId: "course-1", Code: "CERT-FOREVER",
		IssuedAt: issued,
	}); err != nil {
		t.Fatalf("Failed to issue certificate: %v", err)
	}

	count, err := svc.ExpireCertificates(ctx, time.Now())
	if err != nil {
		t.Fatalf("Failed to expire: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 expired, got %d", count)
	}

	cert, err := svc.GetUserCertificate(ctx, "user-1", "cert-1")
	if err != nil {
		t.Fatalf("Failed to read certificate: %v", err)
	}
	if cert.Status != models.CertificateStatusExpired {
		t.Errorf("Expected expired, got %s", cert.Status)
	}

	count, err = svc.ExpireCertificates(ctx, time.Now())
	if err != nil {
		t.Fatalf("Failed to expire: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected expiry to be idempotent, got %d", count)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	ctx := context.Background()

	enrollTestUser(t, svc, "user-1")

	events, err := svc.ListPendingOutboxEvents(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list outbox: %v", err)
	}
	if len(events) != 1 || events[0].EventType != models.EventEnrollmentCreated {
		t.Fatalf("Expected one enrollment.created event, got %+v", events)
	}

	if err := svc.MarkOutboxEventFailed(ctx, events[0].Id, errors.New("broker down")); err != nil {
		t.Fatalf("Failed to mark failed: %v", err)
	}
	events, err = svc.ListPendingOutboxEvents(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list outbox: %v", err)
	}
	if events[0].Attempts != 1 || events[0].LastError != "broker down" {
		t.Errorf("Expected one failed attempt, got %+v", events[0])
	}

	if err := svc.MarkOutboxEventSent(ctx, events[0].Id, time.Now()); err != nil {
		t.Fatalf("Failed to mark sent: %v", err)
	}
	events, err = svc.ListPendingOutboxEvents(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list outbox: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected empty outbox, got %d", len(events))
	}
}
