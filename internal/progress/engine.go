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

package progress

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"course-ledger-go/internal/apperrors"
	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"

	"go.uber.org/zap"
)

// WatchParams is one watch heartbeat from the player. Notes is optional and
// replaces the stored notes when set.
type WatchParams struct {
	UserId          string
	LessonId        string
	WatchPercentage float64
	TimeSpentDelta  int64
	Notes           *string
}

// Engine records lesson progress, keeps the course aggregate in step with
// it and decides lesson access.
type Engine struct {
	store store.LedgerStore
	now   func() time.Time
}

func NewEngine(st store.LedgerStore) *Engine {
	return &Engine{store: st, now: time.Now}
}

// RecordWatchProgress stores watch progress for a lesson. Watch percentage
// only ever increases and time spent accumulates. Crossing the completion
// threshold completes the lesson.
func (e *Engine) RecordWatchProgress(ctx context.Context, p WatchParams) (*models.ProgressResult, error) {
	if math.IsNaN(p.WatchPercentage) || p.WatchPercentage < 0 || p.WatchPercentage > 100 {
		return nil, apperrors.Withf(apperrors.ErrInvalidProgress, "watch percentage %v", p.WatchPercentage)
	}
	if p.TimeSpentDelta < 0 {
		return nil, apperrors.Withf(apperrors.ErrInvalidProgress, "negative time spent %d", p.TimeSpentDelta)
	}

	lesson, enrolled, err := e.RequireAccess(ctx, p.UserId, p.LessonId)
	if err != nil {
		return nil, err
	}

	result, err := e.store.UpdateLessonProgress(ctx, store.LessonUpdateParams{
		UserId:   p.UserId,
		LessonId: lesson.Id,
		CourseId: lesson.CourseId,
		Enrolled: enrolled,
		At:       e.now(),
		Mutate: func(lp *models.LessonProgress, now time.Time) (bool, error) {
			changed := false
			if p.WatchPercentage > lp.WatchPercentage {
				lp.WatchPercentage = p.WatchPercentage
				changed = true
			}
			if p.TimeSpentDelta > 0 {
				lp.TimeSpentSeconds += p.TimeSpentDelta
				changed = true
			}
			if p.Notes != nil && *p.Notes != lp.Notes {
				lp.Notes = *p.Notes
				changed = true
			}
			if !lp.IsCompleted && lp.WatchPercentage >= models.CompletionThreshold {
				complete(lp, now)
				changed = true
			}
			return changed, nil
		},
	})
	if err != nil {
		return nil, apperrors.Transient(fmt.Errorf("record watch progress: %w", err))
	}

	zap.L().Debug("Watch progress recorded",
		zap.String("user_id", p.UserId),
		zap.String("lesson_id", lesson.Id),
		zap.Float64("watch_percentage", result.Lesson.WatchPercentage),
		zap.Bool("changed", result.Changed))
	return toResult(result), nil
}

// MarkLessonComplete completes a lesson the user has watched far enough.
// Completing an already complete lesson is a no-op.
func (e *Engine) MarkLessonComplete(ctx context.Context, userId, lessonId string) (*models.ProgressResult, error) {
	lesson, enrolled, err := e.RequireAccess(ctx, userId, lessonId)
	if err != nil {
		return nil, err
	}

	result, err := e.store.UpdateLessonProgress(ctx, store.LessonUpdateParams{
		UserId:   userId,
		LessonId: lesson.Id,
		CourseId: lesson.CourseId,
		Enrolled: enrolled,
		At:       e.now(),
		Mutate: func(lp *models.LessonProgress, now time.Time) (bool, error) {
			if lp.IsCompleted {
				return false, nil
			}
			if lp.WatchPercentage < models.CompletionThreshold {
				return false, apperrors.Withf(apperrors.ErrInsufficientProgress,
					"watched %.2f%%, need %.0f%%", lp.WatchPercentage, models.CompletionThreshold)
			}
			complete(lp, now)
			return true, nil
		},
	})
	if err != nil {
		return nil, apperrors.Transient(fmt.Errorf("mark lesson complete: %w", err))
	}

	if result.Changed {
		zap.L().Info("Lesson completed",
			zap.String("user_id", userId),
			zap.String("lesson_id", lesson.Id),
			zap.String("course_id", lesson.CourseId))
	}
	return toResult(result), nil
}

func complete(lp *models.LessonProgress, now time.Time) {
	lp.IsCompleted = true
	completedAt := now
	lp.CompletedAt = &completedAt
}

func toResult(r *store.LessonUpdateResult) *models.ProgressResult {
	return &models.ProgressResult{Lesson: r.Lesson, Course: r.Course, Streak: r.Streak}
}

// RecordQuizAttempt scores an attempt at a quiz lesson.
func (e *Engine) RecordQuizAttempt(ctx context.Context, userId, lessonId string, score float64) (*models.QuizAttempt, error) {
	if math.IsNaN(score) || score < 0 || score > 100 {
		return nil, apperrors.Withf(apperrors.ErrInvalidRequest, "score %v out of range", score)
	}

	lesson, _, err := e.RequireAccess(ctx, userId, lessonId)
	if err != nil {
		return nil, err
	}
	if !lesson.HasQuiz {
		return nil, apperrors.Withf(apperrors.ErrInvalidRequest, "lesson %s has no quiz", lessonId)
	}

	attempt, err := e.store.RecordQuizAttempt(ctx, store.QuizAttemptParams{
		UserId:   userId,
		LessonId: lesson.Id,
		CourseId: lesson.CourseId,
		Score:    score,
		Passed:   score >= lesson.PassingScore,
		At:       e.now(),
	})
	if err != nil {
		return nil, apperrors.Transient(err)
	}

	zap.L().Info("Quiz attempt recorded",
		zap.String("user_id", userId),
		zap.String("lesson_id", lesson.Id),
		zap.Float64("score", score),
		zap.Bool("passed", attempt.Passed))
	return attempt, nil
}

// GetCourseProgress recomputes the learner's aggregate from lesson rows.
func (e *Engine) GetCourseProgress(ctx context.Context, userId, courseId string) (*models.CourseProgress, error) {
	if _, err := e.store.GetCourse(ctx, courseId); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.With(apperrors.ErrCourseNotFound, err)
		}
		return nil, apperrors.Transient(err)
	}

	enrolled, err := e.isEnrolled(ctx, userId, courseId)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, apperrors.Withf(apperrors.ErrNotEnrolled, "user %s course %s", userId, courseId)
	}

	cp, err := e.store.ComputeCourseProgress(ctx, userId, courseId)
	if err != nil {
		return nil, apperrors.Transient(err)
	}
	return cp, nil
}

// GetStreak returns the learner's streak, zero valued if they have none.
func (e *Engine) GetStreak(ctx context.Context, userId string) (*models.Streak, error) {
	streak, err := e.store.GetStreak(ctx, userId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &models.Streak{UserId: userId}, nil
		}
		return nil, apperrors.Transient(err)
	}
	return streak, nil
}

func (e *Engine) isEnrolled(ctx context.Context, userId, courseId string) (bool, error) {
	if userId == "" {
		return false, nil
	}
	_, err := e.store.GetEnrollment(ctx, userId, courseId)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, apperrors.Transient(err)
	}
}
