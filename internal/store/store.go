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

package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"course-ledger-go/internal/models"
)

// Sentinel errors shared by all store implementations.
var (
	ErrNotFound               = errors.New("record not found")
	ErrDuplicate              = errors.New("duplicate record")
	ErrPendingPaymentExists   = errors.New("pending payment already exists for user and course")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrDuplicateCode          = errors.New("certificate code already in use")
)

// CreatePaymentParams contains the parameters for opening a pending payment.
type CreatePaymentParams struct {
	UserId         string
	CourseId       string
	Amount         decimal.Decimal
	Currency       string
	Provider       string
	Method         string
	IdempotencyKey string
}

// TransitionParams moves a payment out of pending. The transition only
// applies when the stored status is still pending.
type TransitionParams struct {
	PaymentId  string
	To         models.PaymentStatus
	RawPayload string
	At         time.Time
}

// EnrollmentParams describes an enrollment to create.
type EnrollmentParams struct {
	UserId    string
	CourseId  string
	PaymentId string
	Source    models.EnrollmentSource
	At        time.Time
}

// LessonMutation edits a lesson progress row in place. It reports whether
// anything changed; returning false skips the write.
type LessonMutation func(lp *models.LessonProgress, now time.Time) (bool, error)

// LessonUpdateParams scopes a lesson progress update.
type LessonUpdateParams struct {
	UserId   string
	LessonId string
	CourseId string
	// Enrolled controls whether the course aggregate is recomputed alongside.
	Enrolled bool
	At       time.Time
	Mutate   LessonMutation
}

// LessonUpdateResult is the state committed by UpdateLessonProgress.
type LessonUpdateResult struct {
	Lesson  *models.LessonProgress
	Course  *models.CourseProgress
	Streak  *models.Streak
	Changed bool
}

// QuizAttemptParams records one quiz attempt.
type QuizAttemptParams struct {
	UserId   string
	LessonId string
	CourseId string
	Score    float64
	Passed   bool
	At       time.Time
}

// IssueCertificateParams contains a fully evaluated certificate instance.
type IssueCertificateParams struct {
	UserId           string
	CertificateId    string
	CourseId         string
	Code             string
	IssuedAt         time.Time
	ExpiresAt        *time.Time
	VerificationData models.VerificationData
}

// ProviderEventParams is an incoming webhook delivery to audit.
type ProviderEventParams struct {
	Provider       string
	EventId        string
	TransactionId  string
	Outcome        string
	Payload        string
	SignatureValid bool
	ReceivedAt     time.Time
}

// CatalogSnapshot is a full catalog to upsert.
type CatalogSnapshot struct {
	Courses      []models.Course
	Modules      []models.Module
	Lessons      []models.Lesson
	Certificates []models.Certificate
}

// LedgerStore defines the contract that the engine's persistence backend must satisfy.
type LedgerStore interface {
	Ping(ctx context.Context) error

	// --- Users ---
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, userId, name, email string) (*models.User, error)

	// --- Catalog ---
	SyncCatalog(ctx context.Context, snapshot CatalogSnapshot) error
	GetCourse(ctx context.Context, courseId string) (*models.Course, error)
	ListCourses(ctx context.Context) ([]models.Course, error)
	GetLesson(ctx context.Context, lessonId string) (*models.Lesson, error)
	ListModuleLessons(ctx context.Context, moduleId string) ([]models.Lesson, error)
	ListCourseLessons(ctx context.Context, courseId string) ([]models.Lesson, error)
	GetCertificateByCourse(ctx context.Context, courseId string) (*models.Certificate, error)

	// --- Payments ---
	CreatePendingPayment(ctx context.Context, params CreatePaymentParams) (*models.Payment, error)
	GetPayment(ctx context.Context, paymentId string) (*models.Payment, error)
	GetPaymentByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error)
	GetPendingPayment(ctx context.Context, userId, courseId string) (*models.Payment, error)
	GetPaymentByProviderTransaction(ctx context.Context, transactionId string) (*models.Payment, error)
	AttachProviderHandle(ctx context.Context, paymentId, transactionId, redirectURL string) (*models.Payment, error)
	TransitionPayment(ctx context.Context, params TransitionParams) (*models.Payment, bool, error)
	ListPendingPayments(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error)
	ListSucceededPaymentsWithoutEnrollment(ctx context.Context, limit int) ([]models.Payment, error)

	// --- Provider events ---
	RecordProviderEvent(ctx context.Context, params ProviderEventParams) (*models.ProviderEvent, bool, error)
	MarkProviderEventProcessed(ctx context.Context, id string, processingErr error) error

	// --- Enrollments ---
	CreateEnrollment(ctx context.Context, params EnrollmentParams) (*models.Enrollment, bool, error)
	GetEnrollment(ctx context.Context, userId, courseId string) (*models.Enrollment, error)
	ListEnrollments(ctx context.Context, userId string) ([]models.Enrollment, error)

	// --- Progress ---
	GetLessonProgress(ctx context.Context, userId, lessonId string) (*models.LessonProgress, error)
	ListLessonProgress(ctx context.Context, userId, courseId string) ([]models.LessonProgress, error)
	UpdateLessonProgress(ctx context.Context, params LessonUpdateParams) (*LessonUpdateResult, error)
	GetCourseProgress(ctx context.Context, userId, courseId string) (*models.CourseProgress, error)
	ComputeCourseProgress(ctx context.Context, userId, courseId string) (*models.CourseProgress, error)
	RecomputeCourseProgress(ctx context.Context, userId, courseId string) (*models.CourseProgress, bool, error)
	ListDriftedCourseProgress(ctx context.Context, limit int) ([]models.CourseProgress, error)
	GetStreak(ctx context.Context, userId string) (*models.Streak, error)
	RecordQuizAttempt(ctx context.Context, params QuizAttemptParams) (*models.QuizAttempt, error)
	ListQuizAttempts(ctx context.Context, userId, courseId string) ([]models.QuizAttempt, error)
	UpsertPracticalAssessment(ctx context.Context, assessment models.PracticalAssessment) error
	GetPracticalAssessment(ctx context.Context, userId, courseId string) (*models.PracticalAssessment, error)

	// --- Certificates ---
	IssueCertificate(ctx context.Context, params IssueCertificateParams) (*models.UserCertificate, error)
	GetUserCertificate(ctx context.Context, userId, certificateId string) (*models.UserCertificate, error)
	GetUserCertificateByCode(ctx context.Context, code string) (*models.UserCertificate, error)
	ExpireCertificates(ctx context.Context, now time.Time) (int, error)

	// --- Outbox ---
	ListPendingOutboxEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkOutboxEventSent(ctx context.Context, id string, at time.Time) error
	MarkOutboxEventFailed(ctx context.Context, id string, cause error) error

	// --- Lifecycle ---
	Close()
}
