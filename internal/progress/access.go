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

	"course-ledger-go/internal/apperrors"
	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"
)

// CheckAccess decides whether userId may open a lesson. Free lessons are open
// to everyone. Otherwise the user must be enrolled, and within a module
// lesson i opens once lessons 0..i-1 are all completed.
func (e *Engine) CheckAccess(ctx context.Context, userId, lessonId string) (*models.AccessDecision, error) {
	lesson, err := e.lesson(ctx, lessonId)
	if err != nil {
		return nil, err
	}
	decision, _, err := e.decide(ctx, userId, lesson)
	return decision, err
}

// RequireAccess is CheckAccess for write paths. It returns the lesson and
// whether the user is enrolled in its course, or the denial as an error.
func (e *Engine) RequireAccess(ctx context.Context, userId, lessonId string) (*models.Lesson, bool, error) {
	if userId == "" {
		return nil, false, apperrors.Withf(apperrors.ErrAccessDenied, "anonymous caller")
	}

	lesson, err := e.lesson(ctx, lessonId)
	if err != nil {
		return nil, false, err
	}

	decision, enrolled, err := e.decide(ctx, userId, lesson)
	if err != nil {
		return nil, false, err
	}
	if decision.Accessible {
		return lesson, enrolled, nil
	}

	if decision.Reason == models.AccessReasonLocked {
		return nil, false, apperrors.Withf(apperrors.ErrLessonLocked, "lesson %s blocked by %s", lessonId, decision.BlockingLessonId)
	}
	return nil, false, apperrors.Withf(apperrors.ErrAccessDenied, "user %s lesson %s: %s", userId, lessonId, decision.Reason)
}

func (e *Engine) decide(ctx context.Context, userId string, lesson *models.Lesson) (*models.AccessDecision, bool, error) {
	decision := &models.AccessDecision{LessonId: lesson.Id}

	enrolled, err := e.isEnrolled(ctx, userId, lesson.CourseId)
	if err != nil {
		return nil, false, err
	}

	switch {
	case lesson.IsFree:
		decision.Accessible = true
		decision.Reason = models.AccessReasonFreeLesson
		return decision, enrolled, nil
	case userId == "":
		decision.Reason = models.AccessReasonUnauthorized
		return decision, false, nil
	case !enrolled:
		decision.Reason = models.AccessReasonNotEnrolled
		return decision, false, nil
	}

	siblings, err := e.store.ListModuleLessons(ctx, lesson.ModuleId)
	if err != nil {
		return nil, false, apperrors.Transient(err)
	}

	var preceding []models.Lesson
	for _, l := range siblings {
		if l.Id == lesson.Id {
			break
		}
		preceding = append(preceding, l)
	}
	if len(preceding) == 0 {
		decision.Accessible = true
		decision.Reason = models.AccessReasonFirstLesson
		return decision, true, nil
	}

	rows, err := e.store.ListLessonProgress(ctx, userId, lesson.CourseId)
	if err != nil {
		return nil, false, apperrors.Transient(err)
	}
	completed := make(map[string]bool, len(rows))
	for _, lp := range rows {
		completed[lp.LessonId] = lp.IsCompleted
	}

	for _, l := range preceding {
		if !completed[l.Id] {
			decision.Reason = models.AccessReasonLocked
			decision.BlockingLessonId = l.Id
			return decision, true, nil
		}
	}

	decision.Accessible = true
	decision.Reason = models.AccessReasonUnlocked
	return decision, true, nil
}

func (e *Engine) lesson(ctx context.Context, lessonId string) (*models.Lesson, error) {
	lesson, err := e.store.GetLesson(ctx, lessonId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.With(apperrors.ErrLessonNotFound, fmt.Errorf("lesson %s: %w", lessonId, err))
		}
		return nil, apperrors.Transient(err)
	}
	return lesson, nil
}
