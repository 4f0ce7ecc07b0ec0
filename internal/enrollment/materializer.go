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

package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"course-ledger-go/internal/apperrors"
	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"

	"go.uber.org/zap"
)

// Materializer turns settled purchases and grants into enrollments. The
// unique (user_id, course_id) constraint is the only concurrency control:
// every caller inserts and a conflicting insert counts as success.
type Materializer struct {
	store store.LedgerStore
	now   func() time.Time
}

func NewMaterializer(st store.LedgerStore) *Materializer {
	return &Materializer{store: st, now: time.Now}
}

// MaterializeOnSuccess ensures exactly one enrollment exists for the
// payment's user and course. It is safe to call any number of times.
func (m *Materializer) MaterializeOnSuccess(ctx context.Context, payment *models.Payment) (*models.Enrollment, error) {
	if payment == nil {
		return nil, apperrors.Withf(apperrors.ErrInvariantViolation, "materialize called without a payment")
	}
	if payment.Status != models.PaymentStatusSucceeded {
		zap.L().Error("Refusing to materialize unsettled payment",
			zap.String("payment_id", payment.Id),
			zap.String("status", string(payment.Status)))
		return nil, apperrors.Withf(apperrors.ErrInvariantViolation,
			"payment %s is %s, not succeeded", payment.Id, payment.Status)
	}

	at := m.now().UTC()
	if payment.ProcessedAt != nil {
		at = payment.ProcessedAt.UTC()
	}

	enrollment, created, err := m.store.CreateEnrollment(ctx, store.EnrollmentParams{
		UserId:    payment.UserId,
		CourseId:  payment.CourseId,
		PaymentId: payment.Id,
		Source:    models.EnrollmentSourcePayment,
		At:        at,
	})
	if err != nil {
		return nil, apperrors.Transient(fmt.Errorf("materialize payment %s: %w", payment.Id, err))
	}

	if created {
		zap.L().Info("Enrollment materialized",
			zap.String("payment_id", payment.Id),
			zap.String("user_id", payment.UserId),
			zap.String("course_id", payment.CourseId),
			zap.String("enrollment_id", enrollment.Id))
	} else {
		zap.L().Debug("Enrollment already present",
			zap.String("payment_id", payment.Id),
			zap.String("enrollment_id", enrollment.Id))
	}
	return enrollment, nil
}

// EnrollFree enrolls a user in a zero-price course.
func (m *Materializer) EnrollFree(ctx context.Context, userId, courseId string) (*models.Enrollment, bool, error) {
	course, err := m.lookupCourse(ctx, courseId)
	if err != nil {
		return nil, false, err
	}
	if !course.IsFree() {
		return nil, false, apperrors.Withf(apperrors.ErrCourseNotFree, "course %s costs %s %s", courseId, course.Price, course.Currency)
	}
	return m.enroll(ctx, userId, courseId, models.EnrollmentSourceFree)
}

// Grant enrolls a user regardless of price. Used by operators.
func (m *Materializer) Grant(ctx context.Context, userId, courseId string) (*models.Enrollment, bool, error) {
	if _, err := m.lookupCourse(ctx, courseId); err != nil {
		return nil, false, err
	}
	return m.enroll(ctx, userId, courseId, models.EnrollmentSourceGrant)
}

func (m *Materializer) enroll(ctx context.Context, userId, courseId string, source models.EnrollmentSource) (*models.Enrollment, bool, error) {
	if userId == "" {
		return nil, false, apperrors.ErrAccessDenied
	}

	enrollment, created, err := m.store.CreateEnrollment(ctx, store.EnrollmentParams{
		UserId:   userId,
		CourseId: courseId,
		Source:   source,
		At:       m.now().UTC(),
	})
	if err != nil {
		return nil, false, apperrors.Transient(fmt.Errorf("enroll user %s in course %s: %w", userId, courseId, err))
	}

	zap.L().Info("Enrollment recorded",
		zap.String("user_id", userId),
		zap.String("course_id", courseId),
		zap.String("source", string(source)),
		zap.Bool("created", created))
	return enrollment, created, nil
}

func (m *Materializer) lookupCourse(ctx context.Context, courseId string) (*models.Course, error) {
	course, err := m.store.GetCourse(ctx, courseId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.With(apperrors.ErrCourseNotFound, err)
		}
		return nil, apperrors.Transient(err)
	}
	return course, nil
}
