package certificate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"course-ledger-go/internal/apperrors"
	"course-ledger-go/internal/database"
	"course-ledger-go/internal/models"
	"course-ledger-go/internal/progress"
	"course-ledger-go/internal/store"
	"course-ledger-go/internal/testutil"
)

func setupEvaluator(t *testing.T) (*Evaluator, *progress.Engine, *database.Service) {
	t.Helper()
	st := testutil.NewStore(t)
	testutil.SeedCatalog(t, st)
	return NewEvaluator(st, "mentor"), progress.NewEngine(st), st
}

func completeLessons(t *testing.T, engine *progress.Engine, userId string, lessonIds ...string) {
	t.Helper()
	for _, id := range lessonIds {
		_, err := engine.RecordWatchProgress(context.Background(), progress.WatchParams{
			UserId: userId, LessonId: id, WatchPercentage: 90, TimeSpentDelta: 60,
		})
		if err != nil {
			t.Fatalf("Failed to complete %s: %v", id, err)
		}
	}
}

func TestGenerateRequiresCompletion(t *testing.T) {
	e, engine, st := setupEvaluator(t)
	testutil.Grant(t, st, "user-1", "course-basic")
	completeLessons(t, engine, "user-1", "b1")

	_, err := e.GenerateCertificate(context.Background(), "user-1", "course-basic")
	var notMet *apperrors.RequirementsNotMetError
	if !errors.As(err, &notMet) {
		t.Fatalf("Expected RequirementsNotMetError, got %v", err)
	}
	if !errors.Is(err, apperrors.ErrRequirementsNotMet) {
		t.Errorf("Expected error to match ErrRequirementsNotMet")
	}
	if notMet.Verdict.CourseCompleted || notMet.Verdict.ProgressPercentage != 50 || notMet.Verdict.Eligible {
		t.Errorf("Unexpected verdict %+v", notMet.Verdict)
	}
	if notMet.Verdict.MinimumQuizScore != nil || notMet.Verdict.PracticalAssessment != nil {
		t.Errorf("Undefined requirements must be absent from the verdict, got %+v", notMet.Verdict)
	}
}

func TestGenerateCertificate(t *testing.T) {
	e, engine, st := setupEvaluator(t)
	ctx := context.Background()
	if _, err := st.CreateUser(ctx, "user-1", "Ada Lovelace", "ada@example.com"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	testutil.Grant(t, st, "user-1", "course-basic")
	completeLessons(t, engine, "user-1", "b1", "b2")

	cert, err := e.GenerateCertificate(ctx, "user-1", "course-basic")
	if err != nil {
		t.Fatalf("Failed to generate certificate: %v", err)
	}
	if !strings.HasPrefix(cert.CertificateCode, "CERT-") || len(cert.CertificateCode) != 17 {
		t.Errorf("Unexpected code %q", cert.CertificateCode)
	}
	if cert.VerificationData.RecipientName != "Ada Lovelace" || cert.VerificationData.CourseTitle != "Basics" {
		t.Errorf("Unexpected verification data %+v", cert.VerificationData)
	}
	if cert.ExpiresAt != nil {
		t.Errorf("Certificate without validity should not expire")
	}

	// later profile edits do not touch the issued snapshot
	if _, err := st.CreateUser(ctx, "user-1", "Someone Else", "ada@example.com"); err == nil {
		t.Errorf("Expected duplicate user to be rejected")
	}
	verified, err := e.Verify(ctx, strings.ToLower(cert.CertificateCode))
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if verified.Id != cert.Id || verified.Status != models.CertificateStatusActive {
		t.Errorf("Unexpected verification %+v", verified)
	}

	if _, err := e.GenerateCertificate(ctx, "user-1", "course-basic"); !errors.Is(err, apperrors.ErrAlreadyIssued) {
		t.Errorf("Expected ErrAlreadyIssued, got %v", err)
	}
}

func TestGenerateMinimumQuizScore(t *testing.T) {
	e, engine, st := setupEvaluator(t)
	ctx := context.Background()
	testutil.Grant(t, st, "user-1", "course-1")
	completeLessons(t, engine, "user-1", "l1", "l2", "l3", "l4")

	verdict, err := e.Evaluate(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Failed to evaluate: %v", err)
	}
	if !verdict.CourseCompleted || verdict.MinimumQuizScore == nil || *verdict.MinimumQuizScore || verdict.Eligible {
		t.Fatalf("Expected completed course with unmet quiz score, got %+v", verdict)
	}

	if _, err := engine.RecordQuizAttempt(ctx, "user-1", "l4", 65); err != nil {
		t.Fatalf("Failed to record attempt: %v", err)
	}
	verdict, err = e.Evaluate(ctx, "user-1", "course-1")
	if err != nil || verdict.Eligible {
		t.Fatalf("Expected 65 to fall short, got %+v %v", verdict, err)
	}

	if _, err := engine.RecordQuizAttempt(ctx, "user-1", "l4", 75); err != nil {
		t.Fatalf("Failed to record attempt: %v", err)
	}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	cert, err := e.GenerateCertificate(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Failed to generate certificate: %v", err)
	}
	if cert.ExpiresAt == nil || !cert.ExpiresAt.Equal(now.AddDate(0, 0, 365)) {
		t.Errorf("Expected expiry a year out, got %v", cert.ExpiresAt)
	}
	if cert.VerificationData.RecipientName != "user-1" {
		t.Errorf("Expected user id fallback for recipient, got %q", cert.VerificationData.RecipientName)
	}

	e.now = func() time.Time { return now.AddDate(2, 0, 0) }
	verified, err := e.Verify(ctx, cert.CertificateCode)
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if verified.Status != models.CertificateStatusExpired {
		t.Errorf("Expected expired status, got %s", verified.Status)
	}
}

func TestGenerateRequiresEnrollment(t *testing.T) {
	e, _, st := setupEvaluator(t)
	ctx := context.Background()

	for _, lessonId := range []string{"b1", "b2"} {
		_, err := st.UpdateLessonProgress(ctx, store.LessonUpdateParams{
			UserId: "user-1", LessonId: lessonId, CourseId: "course-basic",
			Mutate: func(lp *models.LessonProgress, now time.Time) (bool, error) {
				lp.WatchPercentage = 100
				lp.IsCompleted = true
				lp.CompletedAt = &now
				return true, nil
			},
		})
		if err != nil {
			t.Fatalf("Failed to seed progress: %v", err)
		}
	}

	_, err := e.GenerateCertificate(ctx, "user-1", "course-basic")
	if !errors.Is(err, apperrors.ErrNotEnrolled) {
		t.Errorf("Expected ErrNotEnrolled, got %v", err)
	}
}

func TestGenerateRetriesCodeCollision(t *testing.T) {
	e, engine, st := setupEvaluator(t)
	ctx := context.Background()
	for _, user := range []string{"user-1", "user-2"} {
		testutil.Grant(t, st, user, "course-basic")
		completeLessons(t, engine, user, "b1", "b2")
	}

	codes := []string{"CERT-AAAAAAAAAAAA", "CERT-AAAAAAAAAAAA", "CERT-BBBBBBBBBBBB"}
	e.newCode = func() string {
		code := codes[0]
		codes = codes[1:]
		return code
	}

	first, err := e.GenerateCertificate(ctx, "user-1", "course-basic")
	if err != nil {
		t.Fatalf("Failed to generate first certificate: %v", err)
	}
	second, err := e.GenerateCertificate(ctx, "user-2", "course-basic")
	if err != nil {
		t.Fatalf("Failed to generate second certificate: %v", err)
	}
	if first.CertificateCode != "CERT-AAAAAAAAAAAA" || second.CertificateCode != "CERT-BBBBBBBBBBBB" {
		t.Errorf("Expected collision to be retried, got %s and %s", first.CertificateCode, second.CertificateCode)
	}
}

func TestPracticalAssessmentRequirement(t *testing.T) {
	e, engine, st := setupEvaluator(t)
	ctx := context.Background()

	err := st.SyncCatalog(ctx, store.CatalogSnapshot{Certificates: []models.Certificate{
		{Id: "cert-basic", CourseId: "course-basic", Title: "Basics Certificate",
			Requirements: models.CertificateRequirements{PracticalAssessment: true}},
	}})
	if err != nil {
		t.Fatalf("Failed to update certificate: %v", err)
	}

	testutil.Grant(t, st, "user-1", "course-basic")
	completeLessons(t, engine, "user-1", "b1", "b2")

	verdict, err := e.Evaluate(ctx, "user-1", "course-basic")
	if err != nil {
		t.Fatalf("Failed to evaluate: %v", err)
	}
	if verdict.PracticalAssessment == nil || *verdict.PracticalAssessment || verdict.Eligible {
		t.Fatalf("Expected unmet assessment, got %+v", verdict)
	}

	if _, err := e.RecordAssessment(ctx, models.PracticalAssessment{UserId: "user-1", CourseId: "course-basic", Passed: true, Reviewer: "mentor"}); err != nil {
		t.Fatalf("Failed to record assessment: %v", err)
	}
	verdict, err = e.Evaluate(ctx, "user-1", "course-basic")
	if err != nil || !verdict.Eligible {
		t.Errorf("Expected eligibility after assessment, got %+v %v", verdict, err)
	}
}

func TestRecordAssessmentReviewerRules(t *testing.T) {
	e, _, st := setupEvaluator(t)
	ctx := context.Background()
	testutil.Grant(t, st, "user-1", "course-basic")

	tests := []struct {
		name     string
		reviewer string
		want     error
	}{
		{name: "learner assesses own work", reviewer: "user-1", want: apperrors.ErrSelfAssessment},
		{name: "unlisted reviewer", reviewer: "user-2", want: apperrors.ErrNotReviewer},
		{name: "no reviewer", reviewer: "", want: apperrors.ErrNotReviewer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.RecordAssessment(ctx, models.PracticalAssessment{
				UserId: "user-1", CourseId: "course-basic", Passed: true, Reviewer: tt.reviewer,
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if apperrors.KindOf(err) != apperrors.KindForbidden {
				t.Errorf("Expected forbidden kind, got %v", apperrors.KindOf(err))
			}
		})
	}

	if _, err := st.GetPracticalAssessment(ctx, "user-1", "course-basic"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected no assessment stored, got %v", err)
	}

	// a self-listed learner is still refused
	self := NewEvaluator(st, "user-1")
	if _, err := self.RecordAssessment(ctx, models.PracticalAssessment{
		UserId: "user-1", CourseId: "course-basic", Passed: true, Reviewer: "user-1",
	}); !errors.Is(err, apperrors.ErrSelfAssessment) {
		t.Errorf("Expected ErrSelfAssessment for a listed learner, got %v", err)
	}
}

func TestEvaluateUnknownCourse(t *testing.T) {
	e, _, _ := setupEvaluator(t)
	if _, err := e.Evaluate(context.Background(), "user-1", "missing"); !errors.Is(err, apperrors.ErrCourseNotFound) {
		t.Errorf("Expected ErrCourseNotFound, got %v", err)
	}
	if _, err := e.Verify(context.Background(), "CERT-NOPE"); !errors.Is(err, apperrors.ErrCertificateNotFound) {
		t.Errorf("Expected ErrCertificateNotFound, got %v", err)
	}
}
