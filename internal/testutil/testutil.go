// Package testutil opens migrated sqlite stores and seeds a small catalog
// for package tests outside internal/database.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"course-ledger-go/internal/database"
	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

// NewStore opens a fresh database under t.TempDir and closes it on cleanup.
func NewStore(t *testing.T) *database.Service {
	t.Helper()

	svc, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
		PingTimeout:     5 * time.Second,
		BusyTimeout:     5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

// SeedCatalog creates course-1 (49.99 USD) with module m1 holding l1 (free),
// l2 and l3, and module m2 holding l4 (quiz, passing score 70). cert-1 on
// course-1 requires completion and a quiz score of 70. course-free has one
// lesson lf and no certificate. course-basic has b1 and b2 and a certificate
// cert-basic with no extra requirements.
func SeedCatalog(t *testing.T, st store.LedgerStore) {
	t.Helper()

	minScore := 70.0
	snapshot := store.CatalogSnapshot{
		Courses: []models.Course{
			{Id: "course-1", Title: "Go Fundamentals", Price: decimal.RequireFromString("49.99"), Currency: "USD"},
			{Id: "course-free", Title: "Intro", Price: decimal.Zero, Currency: "USD"},
			{Id: "course-basic", Title: "Basics", Price: decimal.RequireFromString("10"), Currency: "USD"},
		},
		Modules: []models.Module{
			{Id: "m1", CourseId: "course-1", Title: "Basics", Position: 0},
			{Id: "m2", CourseId: "course-1", Title: "Concurrency", Position: 1},
			{Id: "mf", CourseId: "course-free", Title: "Welcome", Position: 0},
			{Id: "mb", CourseId: "course-basic", Title: "Only", Position: 0},
		},
		Lessons: []models.Lesson{
			{Id: "l1", CourseId: "course-1", ModuleId: "m1", Title: "Hello", Position: 0, IsFree: true, DurationSeconds: 300},
			{Id: "l2", CourseId: "course-1", ModuleId: "m1", Title: "Types", Position: 1, DurationSeconds: 600},
			{Id: "l3", CourseId: "course-1", ModuleId: "m1", Title: "Interfaces", Position: 2, DurationSeconds: 600},
			{Id: "l4", CourseId: "course-1", ModuleId: "m2", Title: "Goroutines", Position: 0, HasQuiz: true, PassingScore: 70, DurationSeconds: 900},
			{Id: "lf", CourseId: "course-free", ModuleId: "mf", Title: "Welcome", Position: 0, DurationSeconds: 60},
			{Id: "b1", CourseId: "course-basic", ModuleId: "mb", Title: "First", Position: 0, DurationSeconds: 60},
			{Id: "b2", CourseId: "course-basic", ModuleId: "mb", Title: "Second", Position: 1, DurationSeconds: 60},
		},
		Certificates: []models.Certificate{
			{Id: "cert-1", CourseId: "course-1", Title: "Go Fundamentals", ValidityDays: 365,
				Requirements: models.CertificateRequirements{MinimumQuizScore: &minScore}},
			{Id: "cert-basic", CourseId: "course-basic", Title: "Basics Certificate"},
		},
	}

	if err := st.SyncCatalog(context.Background(), snapshot); err != nil {
		t.Fatalf("Failed to seed catalog: %v", err)
	}
}

// Grant enrolls userId in courseId directly through the store.
func Grant(t *testing.T, st store.LedgerStore, userId, courseId string) *models.Enrollment {
	t.Helper()

	enrollment, _, err := st.CreateEnrollment(context.Background(), store.EnrollmentParams{
		UserId:   userId,
		CourseId: courseId,
		Source:   models.EnrollmentSourceGrant,
		At:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to enroll %s in %s: %v", userId, courseId, err)
	}
	return enrollment
}
