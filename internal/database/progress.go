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
	"go.uber.org/zap"
)

func (s *Service) GetLessonProgress(ctx context.Context, userId, lessonId string) (*models.LessonProgress, error) {
	return getLessonProgress(ctx, s.db, userId, lessonId)
}

func (s *Service) ListLessonProgress(ctx context.Context, userId, courseId string) ([]models.LessonProgress, error) {
	rows, err := s.db.QueryContext(ctx, queryListLessonProgress, userId, courseId)
	if err != nil {
		return nil, fmt.Errorf("unable to query lesson progress: %w", err)
	}
	defer closeRows(rows)

	var progress []models.LessonProgress
	for rows.Next() {
		lp, err := scanLessonProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan lesson progress row: %w", err)
		}
		progress = append(progress, *lp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lesson progress rows: %w", err)
	}
	return progress, nil
}

// UpdateLessonProgress applies params.Mutate to the lesson row and, for
// enrolled users, recomputes the course aggregate before committing. Both
// rows are written in the same transaction.
func (s *Service) UpdateLessonProgress(ctx context.Context, params store.LessonUpdateParams) (*store.LessonUpdateResult, error) {
	if params.Mutate == nil {
		return nil, fmt.Errorf("lesson mutation is required")
	}
	now := params.At
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	result := &store.LessonUpdateResult{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		lp, err := getLessonProgress(ctx, tx, params.UserId, params.LessonId)
		if errors.Is(err, store.ErrNotFound) {
			lp = &models.LessonProgress{
				UserId:    params.UserId,
				LessonId:  params.LessonId,
				CourseId:  params.CourseId,
				CreatedAt: now,
				UpdatedAt: now,
			}
		} else if err != nil {
			return err
		}

		wasCompleted := lp.IsCompleted
		changed, err := params.Mutate(lp, now)
		if err != nil {
			return err
		}
		result.Lesson = lp
		result.Changed = changed

		if changed {
			lp.UpdatedAt = now
			_, err := tx.ExecContext(ctx, queryUpsertLessonProgress,
				lp.UserId, lp.LessonId, lp.CourseId, lp.WatchPercentage, lp.TimeSpentSeconds,
				lp.IsCompleted, nullTime(lp.CompletedAt), lp.Notes, lp.CreatedAt.UTC(), now)
			if err != nil {
				return fmt.Errorf("failed to write lesson progress: %w", err)
			}

			streak, err := advanceStreak(ctx, tx, params.UserId, now)
			if err != nil {
				return err
			}
			result.Streak = streak

			if !wasCompleted && lp.IsCompleted {
				if err := insertOutboxEvent(ctx, tx, models.EventLessonCompleted, lp.UserId+":"+lp.LessonId, lp, now); err != nil {
					return err
				}
			}
		}

		if !params.Enrolled {
			return nil
		}

		change, err := recomputeCourseProgress(ctx, tx, params.UserId, params.CourseId, now, changed)
		if err != nil {
			return err
		}
		result.Course = change.progress
		if change.justCompleted {
			return insertOutboxEvent(ctx, tx, models.EventCourseCompleted, params.UserId+":"+params.CourseId, change.progress, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Changed {
		zap.L().Debug("Lesson progress updated",
			zap.String("user_id", params.UserId),
			zap.String("lesson_id", params.LessonId),
			zap.Float64("watch_percentage", result.Lesson.WatchPercentage),
			zap.Bool("completed", result.Lesson.IsCompleted))
	}
	return result, nil
}

func (s *Service) GetCourseProgress(ctx context.Context, userId, courseId string) (*models.CourseProgress, error) {
	return getCourseProgress(ctx, s.db, userId, courseId)
}

// ComputeCourseProgress derives the aggregate from lesson rows without writing it.
func (s *Service) ComputeCourseProgress(ctx context.Context, userId, courseId string) (*models.CourseProgress, error) {
	cp, err := getCourseProgress(ctx, s.db, userId, courseId)
	if errors.Is(err, store.ErrNotFound) {
		cp = &models.CourseProgress{UserId: userId, CourseId: courseId}
	} else if err != nil {
		return nil, err
	}

	total, completed, spent, err := aggregateLessonProgress(ctx, s.db, userId, courseId)
	if err != nil {
		return nil, err
	}
	cp.TotalLessons = total
	cp.CompletedLessons = completed
	cp.TimeSpentSeconds = spent
	cp.ProgressPercentage = models.ProgressPercentage(completed, total)
	if !cp.IsComplete() {
		cp.CompletedAt = nil
	}
	return cp, nil
}

// RecomputeCourseProgress rewrites the stored aggregate from lesson rows and
// reports whether the stored values had drifted.
func (s *Service) RecomputeCourseProgress(ctx context.Context, userId, courseId string) (*models.CourseProgress, bool, error) {
	var change progressChange
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		change, err = recomputeCourseProgress(ctx, tx, userId, courseId, time.Now().UTC(), false)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return change.progress, change.changed, nil
}

func (s *Service) ListDriftedCourseProgress(ctx context.Context, limit int) ([]models.CourseProgress, error) {
	rows, err := s.db.QueryContext(ctx, queryListDriftedCourseProgress, limit)
	if err != nil {
		return nil, fmt.Errorf("unable to query drifted course progress: %w", err)
	}
	defer closeRows(rows)

	var drifted []models.CourseProgress
	for rows.Next() {
		cp, err := scanCourseProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan course progress row: %w", err)
		}
		drifted = append(drifted, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating course progress rows: %w", err)
	}
	return drifted, nil
}

func (s *Service) GetStreak(ctx context.Context, userId string) (*models.Streak, error) {
	return getStreak(ctx, s.db, userId)
}

func (s *Service) RecordQuizAttempt(ctx context.Context, params store.QuizAttemptParams) (*models.QuizAttempt, error) {
	at := params.At
	if at.IsZero() {
		at = time.Now()
	}
	attempt := &models.QuizAttempt{
		Id:          uuid.New().String(),
		UserId:      params.UserId,
		LessonId:    params.LessonId,
		CourseId:    params.CourseId,
		Score:       params.Score,
		Passed:      params.Passed,
		AttemptedAt: at.UTC(),
	}

	_, err := s.db.ExecContext(ctx, queryInsertQuizAttempt,
		attempt.Id, attempt.UserId, attempt.LessonId, attempt.CourseId, attempt.Score, attempt.Passed, attempt.AttemptedAt)
	if err != nil {
		return nil, fmt.Errorf("unable to insert quiz attempt: %w", err)
	}

	zap.L().Info("Quiz attempt recorded",
		zap.String("user_id", attempt.UserId),
		zap.String("lesson_id", attempt.LessonId),
		zap.Float64("score", attempt.Score),
		zap.Bool("passed", attempt.Passed))
	return attempt, nil
}

func (s *Service) ListQuizAttempts(ctx context.Context, userId, courseId string) ([]models.QuizAttempt, error) {
	rows, err := s.db.QueryContext(ctx, queryListQuizAttempts, userId, courseId)
	if err != nil {
		return nil, fmt.Errorf("unable to query quiz attempts: %w", err)
	}
	defer closeRows(rows)

	var attempts []models.QuizAttempt
	for rows.Next() {
		var a models.QuizAttempt
		if err := rows.Scan(&a.Id, &a.UserId, &a.LessonId, &a.CourseId, &a.Score, &a.Passed, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("unable to scan quiz attempt row: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quiz attempt rows: %w", err)
	}
	return attempts, nil
}

func (s *Service) UpsertPracticalAssessment(ctx context.Context, a models.PracticalAssessment) error {
	reviewed := a.ReviewedAt
	if reviewed.IsZero() {
		reviewed = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, queryUpsertPracticalAssessment, a.UserId, a.CourseId, a.Passed, a.Reviewer, reviewed.UTC()); err != nil {
		return fmt.Errorf("unable to upsert practical assessment: %w", err)
	}
	return nil
}

func (s *Service) GetPracticalAssessment(ctx context.Context, userId, courseId string) (*models.PracticalAssessment, error) {
	var a models.PracticalAssessment
	err := s.db.QueryRowContext(ctx, queryGetPracticalAssessment, userId, courseId).Scan(
		&a.UserId, &a.CourseId, &a.Passed, &a.Reviewer, &a.ReviewedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("practical assessment for user %s course %s: %w", userId, courseId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query practical assessment: %w", err)
	}
	return &a, nil
}

type progressChange struct {
	progress      *models.CourseProgress
	changed       bool
	justCompleted bool
}

// recomputeCourseProgress derives the aggregate from lesson rows and writes it
// when it differs from the stored row. touch marks new learner activity.
func recomputeCourseProgress(ctx context.Context, tx *sql.Tx, userId, courseId string, now time.Time, touch bool) (progressChange, error) {
	current, err := getCourseProgress(ctx, tx, userId, courseId)
	if errors.Is(err, store.ErrNotFound) {
		if _, err := tx.ExecContext(ctx, queryInsertCourseProgress, userId, courseId, now); err != nil {
			return progressChange{}, fmt.Errorf("failed to initialise course progress: %w", err)
		}
		current = &models.CourseProgress{UserId: userId, CourseId: courseId, UpdatedAt: now}
	} else if err != nil {
		return progressChange{}, err
	}

	total, completed, spent, err := aggregateLessonProgress(ctx, tx, userId, courseId)
	if err != nil {
		return progressChange{}, err
	}

	next := *current
	next.TotalLessons = total
	next.CompletedLessons = completed
	next.TimeSpentSeconds = spent
	next.ProgressPercentage = models.ProgressPercentage(completed, total)
	switch {
	case !next.IsComplete():
		next.CompletedAt = nil
	case next.CompletedAt == nil:
		completedAt := now
		next.CompletedAt = &completedAt
	}
	if touch {
		activity := now
		next.LastActivityAt = &activity
	}

	change := progressChange{
		progress:      &next,
		justCompleted: current.CompletedAt == nil && next.CompletedAt != nil,
	}
	change.changed = touch ||
		next.TotalLessons != current.TotalLessons ||
		next.CompletedLessons != current.CompletedLessons ||
		next.TimeSpentSeconds != current.TimeSpentSeconds ||
		next.ProgressPercentage != current.ProgressPercentage ||
		(next.CompletedAt == nil) != (current.CompletedAt == nil)
	if !change.changed {
		return change, nil
	}

	next.UpdatedAt = now
	_, err = tx.ExecContext(ctx, queryUpdateCourseProgress,
		next.CompletedLessons, next.TotalLessons, next.ProgressPercentage, next.TimeSpentSeconds,
		nullTime(next.CompletedAt), nullTime(next.LastActivityAt), now, userId, courseId)
	if err != nil {
		return progressChange{}, fmt.Errorf("failed to update course progress: %w", err)
	}

	if !touch {
		zap.L().Info("Course progress recomputed",
			zap.String("user_id", userId),
			zap.String("course_id", courseId),
			zap.Int("completed_lessons", next.CompletedLessons),
			zap.Int("total_lessons", next.TotalLessons))
	}
	return change, nil
}

func aggregateLessonProgress(ctx context.Context, q querier, userId, courseId string) (total, completed int, spent int64, err error) {
	if err = q.QueryRowContext(ctx, queryCountCourseLessons, courseId).Scan(&total); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count course lessons: %w", err)
	}
	if err = q.QueryRowContext(ctx, queryAggregateLessonProgress, userId, courseId).Scan(&completed, &spent); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to aggregate lesson progress: %w", err)
	}
	return total, completed, spent, nil
}

func advanceStreak(ctx context.Context, tx *sql.Tx, userId string, now time.Time) (*models.Streak, error) {
	streak, err := getStreak(ctx, tx, userId)
	if errors.Is(err, store.ErrNotFound) {
		streak = &models.Streak{UserId: userId}
	} else if err != nil {
		return nil, err
	}

	next := streak.Advance(now)
	_, err = tx.ExecContext(ctx, queryUpsertStreak, next.UserId, next.CurrentStreak, next.LongestStreak, next.LastActiveDate, next.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update streak: %w", err)
	}
	return &next, nil
}

func getLessonProgress(ctx context.Context, q querier, userId, lessonId string) (*models.LessonProgress, error) {
	lp, err := scanLessonProgress(q.QueryRowContext(ctx, queryGetLessonProgress, userId, lessonId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lesson progress for user %s lesson %s: %w", userId, lessonId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query lesson progress: %w", err)
	}
	return lp, nil
}

func getCourseProgress(ctx context.Context, q querier, userId, courseId string) (*models.CourseProgress, error) {
	cp, err := scanCourseProgress(q.QueryRowContext(ctx, queryGetCourseProgress, userId, courseId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("course progress for user %s course %s: %w", userId, courseId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query course progress: %w", err)
	}
	return cp, nil
}

func getStreak(ctx context.Context, q querier, userId string) (*models.Streak, error) {
	var st models.Streak
	err := q.QueryRowContext(ctx, queryGetStreak, userId).Scan(
		&st.UserId, &st.CurrentStreak, &st.LongestStreak, &st.LastActiveDate, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("streak for user %s: %w", userId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query streak: %w", err)
	}
	return &st, nil
}

func scanLessonProgress(row rowScanner) (*models.LessonProgress, error) {
	var lp models.LessonProgress
	var completedAt sql.NullTime
	err := row.Scan(&lp.UserId, &lp.LessonId, &lp.CourseId, &lp.WatchPercentage, &lp.TimeSpentSeconds,
		&lp.IsCompleted, &completedAt, &lp.Notes, &lp.CreatedAt, &lp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	lp.CompletedAt = timePtr(completedAt)
	return &lp, nil
}

func scanCourseProgress(row rowScanner) (*models.CourseProgress, error) {
	var cp models.CourseProgress
	var completedAt, lastActivity sql.NullTime
	err := row.Scan(&cp.UserId, &cp.CourseId, &cp.CompletedLessons, &cp.TotalLessons, &cp.ProgressPercentage,
		&cp.TimeSpentSeconds, &completedAt, &lastActivity, &cp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	cp.CompletedAt = timePtr(completedAt)
	cp.LastActivityAt = timePtr(lastActivity)
	return &cp, nil
}
