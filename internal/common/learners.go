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

package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"course-ledger-go/internal/models"
	"course-ledger-go/internal/progress"
	"course-ledger-go/internal/store"

	"go.uber.org/zap"
)

// LearnerReport is one user's enrollments with progress recomputed from
// lesson rows, as printed by the operator commands.
type LearnerReport struct {
	User    models.User
	Streak  *models.Streak
	Courses []CourseReport
}

type CourseReport struct {
	Enrollment models.Enrollment
	Progress   *models.CourseProgress
}

// CompletedCourses counts enrollments whose progress reached 100%.
func (r LearnerReport) CompletedCourses() int {
	n := 0
	for _, c := range r.Courses {
		if c.Progress.IsComplete() {
			n++
		}
	}
	return n
}

// FindLearner resolves a single learner by email.
func FindLearner(ctx context.Context, st store.LedgerStore, email string) (*models.User, error) {
	email = strings.TrimSpace(email)
	user, err := st.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no learner with email %q: %w", email, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up learner: %w", err)
	}
	return user, nil
}

// BuildLearnerReports loads every learner, or only the one matching
// emailFilter, together with their enrollments and course progress.
func BuildLearnerReports(ctx context.Context, st store.LedgerStore, engine *progress.Engine, emailFilter string, logger *zap.Logger) ([]LearnerReport, error) {
	var users []models.User
	if emailFilter != "" {
		logger.Info("Looking up learner by email", zap.String("email", emailFilter))
		user, err := FindLearner(ctx, st, emailFilter)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	} else {
		all, err := st.GetUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get users: %w", err)
		}
		users = all
	}

	reports := make([]LearnerReport, 0, len(users))
	for _, user := range users {
		report, err := buildLearnerReport(ctx, st, engine, user)
		if err != nil {
			return nil, fmt.Errorf("learner %s: %w", user.Id, err)
		}
		reports = append(reports, report)
	}

	logger.Info("Built learner reports", zap.Int("count", len(reports)))
	return reports, nil
}

func buildLearnerReport(ctx context.Context, st store.LedgerStore, engine *progress.Engine, user models.User) (LearnerReport, error) {
	report := LearnerReport{User: user}

	enrollments, err := st.ListEnrollments(ctx, user.Id)
	if err != nil {
		return report, fmt.Errorf("failed to list enrollments: %w", err)
	}
	if len(enrollments) == 0 {
		return report, nil
	}

	report.Streak, err = engine.GetStreak(ctx, user.Id)
	if err != nil {
		return report, fmt.Errorf("failed to get streak: %w", err)
	}

	for _, e := range enrollments {
		cp, err := engine.GetCourseProgress(ctx, user.Id, e.CourseId)
		if err != nil {
			return report, fmt.Errorf("failed to get progress for %s: %w", e.CourseId, err)
		}
		report.Courses = append(report.Courses, CourseReport{Enrollment: e, Progress: cp})
	}
	return report, nil
}
