package database

import (
	"context"
	"errors"
	"testing"

	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

func TestSyncCatalog(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	ctx := context.Background()

	course, err := svc.GetCourse(ctx, "course-1")
	if err != nil {
		t.Fatalf("Failed to get course: %v", err)
	}
	if !course.Price.Equal(decimal.RequireFromString("49.99")) {
		t.Errorf("Expected price 49.99, got %s", course.Price)
	}
	if course.IsFree() {
		t.Errorf("Expected paid course")
	}

	lessons, err := svc.ListCourseLessons(ctx, "course-1")
	if err != nil {
		t.Fatalf("Failed to list lessons: %v", err)
	}
	expectedOrder := []string{"l1", "l2", "l3", "l4"}
	if len(lessons) != len(expectedOrder) {
		t.Fatalf("Expected %d lessons, got %d", len(expectedOrder), len(lessons))
	}
	for i, id := range expectedOrder {
		if lessons[i].Id != id {
			t.Errorf("Expected lesson %d to be %s, got %s", i, id, lessons[i].Id)
		}
	}

	cert, err := svc.GetCertificateByCourse(ctx, "course-1")
	if err != nil {
		t.Fatalf("Failed to get certificate: %v", err)
	}
	if cert.Requirements.MinimumQuizScore == nil || *cert.Requirements.MinimumQuizScore != 70 {
		t.Errorf("Expected minimum quiz score 70, got %v", cert.Requirements.MinimumQuizScore)
	}
	if !cert.Requirements.RequiresCompletion() {
		t.Errorf("Expected completion to be required by default")
	}

	if _, err := svc.GetCertificateByCourse(ctx, "course-free"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSyncCatalogPrunesRemovedLessons(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	ctx := context.Background()

	snapshot := store.CatalogSnapshot{
		Courses: []models.Course{{Id: "course-1", Title: "Go Fundamentals", Price: decimal.RequireFromString("59.00"), Currency: "USD"}},
		Modules: []models.Module{{Id: "m1", CourseId: "course-1", Title: "Basics"}},
		Lessons: []models.Lesson{
			{Id: "l1", CourseId: "course-1", ModuleId: "m1", Title: "Hello", Position: 0},
			{Id: "l2", CourseId: "course-1", ModuleId: "m1", Title: "Types", Position: 1},
		},
	}
	if err := svc.SyncCatalog(ctx, snapshot); err != nil {
		t.Fatalf("Failed to resync catalog: %v", err)
	}

	lessons, err := svc.ListCourseLessons(ctx, "course-1")
	if err != nil {
		t.Fatalf("Failed to list lessons: %v", err)
	}
	if len(lessons) != 2 {
		t.Errorf("Expected 2 lessons after prune, got %d", len(lessons))
	}

	if _, err := svc.GetLesson(ctx, "l4"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected l4 to be removed, got %v", err)
	}

	// untouched course keeps its lessons
	if _, err := svc.GetLesson(ctx, "lf"); err != nil {
		t.Errorf("Expected lf to survive, got %v", err)
	}
}
