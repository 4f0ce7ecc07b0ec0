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

// CreateEnrollment inserts the enrollment and initialises course progress in
// one transaction. When the user is already enrolled the existing row is
// returned with created=false.
func (s *Service) CreateEnrollment(ctx context.Context, params store.EnrollmentParams) (*models.Enrollment, bool, error) {
	at := params.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	at = at.UTC()

	var enrollment *models.Enrollment
	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, queryInsertEnrollment,
			uuid.New().String(), params.UserId, params.CourseId, nullString(params.PaymentId), string(params.Source), at)
		if err != nil {
			if isUniqueViolation(err, "payment_id") {
				return fmt.Errorf("payment %s already materialized: %w", params.PaymentId, store.ErrDuplicate)
			}
			return fmt.Errorf("failed to insert enrollment: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		created = rowsAffected == 1

		enrollment, err = getEnrollment(ctx, tx, params.UserId, params.CourseId)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}

		// lessons watched before enrolling (free previews) count immediately
		if _, err := recomputeCourseProgress(ctx, tx, params.UserId, params.CourseId, at, false); err != nil {
			return err
		}

		return insertOutboxEvent(ctx, tx, models.EventEnrollmentCreated, enrollment.Id, enrollment, at)
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		zap.L().Info("Enrollment created",
			zap.String("enrollment_id", enrollment.Id),
			zap.String("user_id", enrollment.UserId),
			zap.String("course_id", enrollment.CourseId),
			zap.String("source", string(enrollment.Source)))
	}
	return enrollment, created, nil
}

func (s *Service) GetEnrollment(ctx context.Context, userId, courseId string) (*models.Enrollment, error) {
	return getEnrollment(ctx, s.db, userId, courseId)
}

func (s *Service) ListEnrollments(ctx context.Context, userId string) ([]models.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, queryListEnrollments, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query enrollments: %w", err)
	}
	defer closeRows(rows)

	var enrollments []models.Enrollment
	for rows.Next() {
		enrollment, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan enrollment row: %w", err)
		}
		enrollments = append(enrollments, *enrollment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollment rows: %w", err)
	}
	return enrollments, nil
}

func getEnrollment(ctx context.Context, q querier, userId, courseId string) (*models.Enrollment, error) {
	enrollment, err := scanEnrollment(q.QueryRowContext(ctx, queryGetEnrollment, userId, courseId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("enrollment for user %s course %s: %w", userId, courseId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query enrollment: %w", err)
	}
	return enrollment, nil
}

func scanEnrollment(row rowScanner) (*models.Enrollment, error) {
	var e models.Enrollment
	var paymentId sql.NullString
	var source string
	if err := row.Scan(&e.Id, &e.UserId, &e.CourseId, &paymentId, &source, &e.EnrolledAt); err != nil {
		return nil, err
	}
	e.PaymentId = paymentId.String
	e.Source = models.EnrollmentSource(source)
	return &e, nil
}
