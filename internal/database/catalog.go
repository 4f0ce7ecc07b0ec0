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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SyncCatalog upserts the snapshot and removes modules and lessons that
// no longer appear under a course present in the snapshot.
func (s *Service) SyncCatalog(ctx context.Context, snapshot store.CatalogSnapshot) error {
	now := time.Now().UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range snapshot.Courses {
			if _, err := tx.ExecContext(ctx, queryUpsertCourse, c.Id, c.Title, c.Price.String(), c.Currency, now, now); err != nil {
				return fmt.Errorf("failed to upsert course %s: %w", c.Id, err)
			}
		}

		for _, m := range snapshot.Modules {
			if _, err := tx.ExecContext(ctx, queryUpsertModule, m.Id, m.CourseId, m.Title, m.Position); err != nil {
				return fmt.Errorf("failed to upsert module %s: %w", m.Id, err)
			}
		}

		for _, l := range snapshot.Lessons {
			_, err := tx.ExecContext(ctx, queryUpsertLesson,
				l.Id, l.CourseId, l.ModuleId, l.Title, l.Position, l.IsFree, l.HasQuiz, l.PassingScore, l.DurationSeconds)
			if err != nil {
				return fmt.Errorf("failed to upsert lesson %s: %w", l.Id, err)
			}
		}

		for _, c := range snapshot.Certificates {
			requirements, err := json.Marshal(c.Requirements)
			if err != nil {
				return fmt.Errorf("failed to encode requirements for certificate %s: %w", c.Id, err)
			}
			if _, err := tx.ExecContext(ctx, queryUpsertCertificate, c.Id, c.CourseId, c.Title, string(requirements), c.ValidityDays); err != nil {
				return fmt.Errorf("failed to upsert certificate %s: %w", c.Id, err)
			}
		}

		return pruneCatalog(ctx, tx, snapshot)
	})
	if err != nil {
		return err
	}

	zap.L().Info("Catalog synchronized",
		zap.Int("courses", len(snapshot.Courses)),
		zap.Int("modules", len(snapshot.Modules)),
		zap.Int("lessons", len(snapshot.Lessons)),
		zap.Int("certificates", len(snapshot.Certificates)))
	return nil
}

func pruneCatalog(ctx context.Context, tx *sql.Tx, snapshot store.CatalogSnapshot) error {
	keepModules := make(map[string]bool, len(snapshot.Modules))
	for _, m := range snapshot.Modules {
		keepModules[m.Id] = true
	}
	keepLessons := make(map[string]bool, len(snapshot.Lessons))
	for _, l := range snapshot.Lessons {
		keepLessons[l.Id] = true
	}

	for _, c := range snapshot.Courses {
		stale, err := staleIds(ctx, tx, `SELECT id FROM lessons WHERE course_id = ?`, c.Id, keepLessons)
		if err != nil {
			return err
		}
		for _, id := range stale {
			if _, err := tx.ExecContext(ctx, `DELETE FROM lessons WHERE id = ?`, id); err != nil {
				return fmt.Errorf("failed to remove lesson %s: %w", id, err)
			}
			zap.L().Info("Removed lesson no longer in catalog", zap.String("lesson_id", id), zap.String("course_id", c.Id))
		}

		stale, err = staleIds(ctx, tx, `SELECT id FROM modules WHERE course_id = ?`, c.Id, keepModules)
		if err != nil {
			return err
		}
		for _, id := range stale {
			if _, err := tx.ExecContext(ctx, `DELETE FROM modules WHERE id = ?`, id); err != nil {
				return fmt.Errorf("failed to remove module %s: %w", id, err)
			}
		}
	}
	return nil
}

func staleIds(ctx context.Context, tx *sql.Tx, query, courseId string, keep map[string]bool) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, courseId)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog ids: %w", err)
	}
	defer closeRows(rows)

	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan catalog id: %w", err)
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	return stale, rows.Err()
}

func (s *Service) GetCourse(ctx context.Context, courseId string) (*models.Course, error) {
	course, err := scanCourse(s.db.QueryRowContext(ctx, queryGetCourse, courseId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("course %s: %w", courseId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query course: %w", err)
	}
	return course, nil
}

func (s *Service) ListCourses(ctx context.Context) ([]models.Course, error) {
	rows, err := s.db.QueryContext(ctx, queryListCourses)
	if err != nil {
		return nil, fmt.Errorf("unable to query courses: %w", err)
	}
	defer closeRows(rows)

	var courses []models.Course
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan course row: %w", err)
		}
		courses = append(courses, *course)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating course rows: %w", err)
	}
	return courses, nil
}

func (s *Service) GetLesson(ctx context.Context, lessonId string) (*models.Lesson, error) {
	lesson, err := scanLesson(s.db.QueryRowContext(ctx, queryGetLesson, lessonId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lesson %s: %w", lessonId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query lesson: %w", err)
	}
	return lesson, nil
}

func (s *Service) ListModuleLessons(ctx context.Context, moduleId string) ([]models.Lesson, error) {
	return s.listLessons(ctx, queryListModuleLessons, moduleId)
}

func (s *Service) ListCourseLessons(ctx context.Context, courseId string) ([]models.Lesson, error) {
	return s.listLessons(ctx, queryListCourseLessons, courseId)
}

func (s *Service) listLessons(ctx context.Context, query, key string) ([]models.Lesson, error) {
	rows, err := s.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("unable to query lessons: %w", err)
	}
	defer closeRows(rows)

	var lessons []models.Lesson
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan lesson row: %w", err)
		}
		lessons = append(lessons, *lesson)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lesson rows: %w", err)
	}
	return lessons, nil
}

func (s *Service) GetCertificateByCourse(ctx context.Context, courseId string) (*models.Certificate, error) {
	var cert models.Certificate
	var requirements string
	err := s.db.QueryRowContext(ctx, queryGetCertificateByCourse, courseId).Scan(
		&cert.Id, &cert.CourseId, &cert.Title, &requirements, &cert.ValidityDays)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("certificate for course %s: %w", courseId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query certificate: %w", err)
	}

	if err := json.Unmarshal([]byte(requirements), &cert.Requirements); err != nil {
		return nil, fmt.Errorf("failed to decode requirements for certificate %s: %w", cert.Id, err)
	}
	return &cert, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (*models.Course, error) {
	var course models.Course
	var price string
	if err := row.Scan(&course.Id, &course.Title, &price, &course.Currency, &course.CreatedAt, &course.UpdatedAt); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price '%s': %w", price, err)
	}
	course.Price = amount
	return &course, nil
}

func scanLesson(row rowScanner) (*models.Lesson, error) {
	var l models.Lesson
	err := row.Scan(&l.Id, &l.CourseId, &l.ModuleId, &l.Title, &l.Position, &l.IsFree, &l.HasQuiz, &l.PassingScore, &l.DurationSeconds)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
