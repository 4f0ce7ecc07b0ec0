package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"
)

func enrollTestUser(t *testing.T, svc *Service, userId string) *models.Enrollment {
	t.Helper()
	enrollment, created, err := svc.CreateEnrollment(context.Background(), store.EnrollmentParams{
		UserId: userId, CourseId: "course-1", Source: models.EnrollmentSourceGrant,
	})
	if err != nil {
		t.Fatalf("Failed to enroll: %v", err)
	}
	if !created {
		t.Fatalf("Expected enrollment to be created")
	}
	return enrollment
}

func watch(pct float64, seconds int64) store.LessonMutation {
	return func(lp *models.LessonProgress, now time.Time) (bool, error) {
		if pct > lp.WatchPercentage {
			lp.WatchPercentage = pct
		}
		lp.TimeSpentSeconds += seconds
		if !lp.IsCompleted && lp.WatchPercentage >= models.CompletionThreshold {
			lp.IsCompleted = true
			lp.CompletedAt = &now
		}
		return true, nil
	}
}

func TestCreateEnrollmentIsIdempotent(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	ctx := context.Background()

	first := enrollTestUser(t, svc, "user-1")

	second, created, err := svc.CreateEnrollment(ctx, store.EnrollmentParams{
		UserId: "user-1", CourseId: "course-1", Source: models.EnrollmentSourceFree,
	})
	if err != nil {
		t.Fatalf("Expected no error for existing enrollment, got %v", err)
	}
	if created {
		t.Errorf("Expected created=false for existing enrollment")
	}
	if second.Id != first.Id || second.Source != models.EnrollmentSourceGrant {
		t.Errorf("Expected original enrollment, got %+v", second)
	}

	cp, err := svc.GetCourseProgress(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Expected course progress to be initialised: %v", err)
	}
	if cp.TotalLessons != 4 || cp.CompletedLessons != 0 {
		t.Errorf("Expected 0/4, got %d/%d", cp.CompletedLessons, cp.TotalLessons)
	}

	enrollments, err := svc.ListEnrollments(ctx, "user-1")
	if err != nil {
		t.Fatalf("Failed to list enrollments: %v", err)
	}
	if len(enrollments) != 1 {
		t.Errorf("Expected 1 enrollment, got %d", len(enrollments))
	}
}

func TestListLessonProgressCatalogOrder(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	enrollTestUser(t, svc, "user-1")
	ctx := context.Background()

	// l4 opens the second module, l2 is second in the first
	for _, lesson := range []string{"l4", "l2", "l1"} {
		if _, err := svc.UpdateLessonProgress(ctx, store.LessonUpdateParams{
			UserId: "user-1", LessonId: lesson, CourseId: "course-1", Enrolled: true, Mutate: watch(10, 5),
		}); err != nil {
			t.Fatalf("Failed to update progress on %s: %v", lesson, err)
		}
	}

	rows, err := svc.ListLessonProgress(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Failed to list progress: %v", err)
	}
	var got []string
	for _, r := range rows {
		got = append(got, r.LessonId)
	}
	if len(got) != 3 || got[0] != "l1" || got[1] != "l2" || got[2] != "l4" {
		t.Errorf("Expected catalog order [l1 l2 l4], got %v", got)
	}
}

func TestUpdateLessonProgressRecomputesCourse(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	enrollTestUser(t, svc, "user-1")
	ctx := context.Background()

	res, err := svc.UpdateLessonProgress(ctx, store.LessonUpdateParams{
		UserId: "user-1", LessonId: "l1", CourseId: "course-1", Enrolled: true, Mutate: watch(50, 120),
	})
	if err != nil {
		t.Fatalf("Failed to update progress: %v", err)
	}
	if res.Lesson.IsCompleted {
		t.Errorf("Expected lesson not completed at 50%%")
	}
	if res.Course.CompletedLessons != 0 || res.Course.TimeSpentSeconds != 120 {
		t.Errorf("Expected 0 completed and 120s, got %+v", res.Course)
	}
	if res.Streak == nil || res.Streak.CurrentStreak != 1 {
		t.Errorf("Expected streak of 1, got %+v", res.Streak)
	}

	res, err = svc.UpdateLessonProgress(ctx, store.LessonUpdateParams{
		UserId: "user-1", LessonId: "l1", CourseId: "course-1", Enrolled: true, Mutate: watch(85, 60),
	})
	if err != nil {
		t.Fatalf("Failed to update progress: %v", err)
	}
	if !res.Lesson.IsCompleted || res.Lesson.CompletedAt == nil {
		t.Errorf("Expected lesson completed at 85%%")
	}
	if res.Course.CompletedLessons != 1 || res.Course.ProgressPercentage != 25 {
		t.Errorf("Expected 1 completed at 25%%, got %+v", res.Course)
	}
	if res.Course.LastActivityAt == nil {
		t.Errorf("Expected last activity to be set")
	}

	stored, err := svc.GetCourseProgress(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Failed to read course progress: %v", err)
	}
	if stored.CompletedLessons != 1 || stored.TimeSpentSeconds != 180 {
		t.Errorf("Expected stored 1 completed and 180s, got %+v", stored)
	}
}

func TestUpdateLessonProgressCompletesCourse(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	enrollTestUser(t, svc, "user-1")
	ctx := context.Background()

	var last *store.LessonUpdateResult
	for _, lessonId := range []string{"l1", "l2", "l3", "l4"} {
		res, err := svc.UpdateLessonProgress(ctx, store.LessonUpdateParams{
			UserId: "user-1", LessonId: lessonId, CourseId: "course-1", Enrolled: true, Mutate: watch(100, 10),
		})
		if err != nil {
			t.Fatalf("Failed to update %s: %v", lessonId, err)
		}
		last = res
	}

	if last.Course.ProgressPercentage != 100 || last.Course.CompletedAt == nil {
		t.Errorf("Expected completed course, got %+v", last.Course)
	}

	events, err := svc.ListPendingOutboxEvents(ctx, 50)
	if err != nil {
		t.Fatalf("Failed to list outbox: %v", err)
	}
	counts := map[string]int{}
	for _, ev := range events {
		counts[ev.EventType]++
	}
	if counts[models.EventLessonCompleted] != 4 {
		t.Errorf("Expected 4 lesson.completed events, got %d", counts[models.EventLessonCompleted])
	}
	if counts[models.EventCourseCompleted] != 1 {
		t.Errorf("Expected 1 course.completed event, got %d", counts[models.EventCourseCompleted])
	}
}

func TestUpdateLessonProgressRollsBackOnMutationError(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	ctx := context.Background()

	boom := errors.New("rejected")
	_, err := svc.UpdateLessonProgress(ctx, store.LessonUpdateParams{
		UserId: "user-1", LessonId: "l1", CourseId: "course-1",
		Mutate: func(lp *models.LessonProgress, now time.Time) (bool, error) {
			lp.WatchPercentage = 90
			return true, boom
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected mutation error, got %v", err)
	}

	if _, err := svc.GetLessonProgress(ctx, "user-1", "l1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected no row to be written, got %v", err)
	}
}

func TestUnenrolledProgressSkipsAggregate(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	ctx := context.Background()

	res, err := svc.UpdateLessonProgress(ctx, store.LessonUpdateParams{
		UserId: "user-1", LessonId: "l1", CourseId: "course-1", Mutate: watch(90, 30),
	})
	if err != nil {
		t.Fatalf("Failed to update free lesson: %v", err)
	}
	if res.Course != nil {
		t.Errorf("Expected no course aggregate for unenrolled user")
	}
	if _, err := svc.GetCourseProgress(ctx, "user-1", "course-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected no course progress row, got %v", err)
	}

	// enrolling later counts the free lesson already watched
	enrollTestUser(t, svc, "user-1")
	cp, err := svc.GetCourseProgress(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Failed to read course progress: %v", err)
	}
	if cp.CompletedLessons != 1 {
		t.Errorf("Expected preview lesson to count, got %d", cp.CompletedLessons)
	}
}

func TestRecomputeRepairsDrift(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	enrollTestUser(t, svc, "user-1")
	ctx := context.Background()

	if _, err := svc.UpdateLessonProgress(ctx, store.LessonUpdateParams{
		UserId: "user-1", LessonId: "l1", CourseId: "course-1", Enrolled: true, Mutate: watch(100, 10),
	}); err != nil {
		t.Fatalf("Failed to update progress: %v", err)
	}

	if _, err := svc.db.ExecContext(ctx, `UPDATE course_progress SET completed_lessons = 3, progress_percentage = 75 WHERE user_id = ?`, "user-1"); err != nil {
		t.Fatalf("Failed to corrupt aggregate: %v", err)
	}

	drifted, err := svc.ListDriftedCourseProgress(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list drift: %v", err)
	}
	if len(drifted) != 1 {
		t.Fatalf("Expected 1 drifted row, got %d", len(drifted))
	}

	computed, err := svc.ComputeCourseProgress(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Failed to compute: %v", err)
	}
	if computed.CompletedLessons != 1 {
		t.Errorf("Expected computed 1, got %d", computed.CompletedLessons)
	}

	cp, changed, err := svc.RecomputeCourseProgress(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Failed to recompute: %v", err)
	}
	if !changed || cp.CompletedLessons != 1 || cp.ProgressPercentage != 25 {
		t.Errorf("Expected repaired 1/25%%, got changed=%v %+v", changed, cp)
	}

	_, changed, err = svc.RecomputeCourseProgress(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Failed to recompute: %v", err)
	}
	if changed {
		t.Errorf("Expected second recompute to be a no-op")
	}
}

func TestQuizAttemptsAndAssessments(t *testing.T) {
	svc, cleanup := setupTestDb(t)
	defer cleanup()
	seedCatalog(t, svc)
	ctx := context.Background()

	for _, score := range []float64{55, 82} {
		if _, err := svc.RecordQuizAttempt(ctx, store.QuizAttemptParams{
			UserId: "user-1", LessonId: "l4", CourseId: "course-1", Score: score, Passed: score >= 70,
		}); err != nil {
			t.Fatalf("Failed to record attempt: %v", err)
		}
	}

	attempts, err := svc.ListQuizAttempts(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Failed to list attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Errorf("Expected 2 attempts, got %d", len(attempts))
	}

	if _, err := svc.GetPracticalAssessment(ctx, "user-1", "course-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := svc.UpsertPracticalAssessment(ctx, models.PracticalAssessment{UserId: "user-1", CourseId: "course-1", Passed: true, Reviewer: "mentor"}); err != nil {
		t.Fatalf("Failed to upsert assessment: %v", err)
	}
	a, err := svc.GetPracticalAssessment(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Failed to read assessment: %v", err)
	}
	if !a.Passed || a.Reviewer != "mentor" {
		t.Errorf("Expected passed by mentor, got %+v", a)
	}
}
