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

package certificate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"course-ledger-go/internal/apperrors"
	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxCodeAttempts = 5

// Evaluator decides certificate eligibility from authoritative progress rows
// and issues certificates to eligible learners.
type Evaluator struct {
	store     store.LedgerStore
	now       func() time.Time
	newCode   func() string
	reviewers map[string]bool
}

// NewEvaluator builds an evaluator. Only the listed reviewers may record
// practical assessments; with none listed, assessments are refused.
func NewEvaluator(st store.LedgerStore, reviewers ...string) *Evaluator {
	allowed := make(map[string]bool, len(reviewers))
	for _, r := range reviewers {
		if r = strings.TrimSpace(r); r != "" {
			allowed[r] = true
		}
	}
	return &Evaluator{store: st, now: time.Now, newCode: NewCode, reviewers: allowed}
}

// NewCode returns a random public certificate code such as CERT-3F2A9C01B7D4.
func NewCode() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "CERT-" + strings.ToUpper(id[:12])
}

type evaluation struct {
	verdict     models.Verdict
	course      *models.Course
	certificate *models.Certificate
	progress    *models.CourseProgress
}

// Evaluate reports which certificate requirements the user meets. Progress is
// recomputed from lesson rows, never read from the stored aggregate.
func (e *Evaluator) Evaluate(ctx context.Context, userId, courseId string) (*models.Verdict, error) {
	ev, err := e.evaluate(ctx, userId, courseId)
	if err != nil {
		return nil, err
	}
	return &ev.verdict, nil
}

func (e *Evaluator) evaluate(ctx context.Context, userId, courseId string) (*evaluation, error) {
	course, err := e.store.GetCourse(ctx, courseId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.With(apperrors.ErrCourseNotFound, err)
		}
		return nil, apperrors.Transient(err)
	}

	cert, err := e.store.GetCertificateByCourse(ctx, courseId)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.Transient(err)
	}

	cp, err := e.store.ComputeCourseProgress(ctx, userId, courseId)
	if err != nil {
		return nil, apperrors.Transient(err)
	}

	ev := &evaluation{course: course, certificate: cert, progress: cp}
	ev.verdict.ProgressPercentage = cp.ProgressPercentage
	ev.verdict.CourseCompleted = cp.IsComplete()

	var req models.CertificateRequirements
	if cert != nil {
		req = cert.Requirements
	}
	eligible := ev.verdict.CourseCompleted || !req.RequiresCompletion()

	if req.MinimumQuizScore != nil {
		met, err := e.quizScoreMet(ctx, userId, courseId, *req.MinimumQuizScore)
		if err != nil {
			return nil, err
		}
		ev.verdict.MinimumQuizScore = &met
		eligible = eligible && met
	}

	if req.PracticalAssessment {
		passed, err := e.assessmentPassed(ctx, userId, courseId)
		if err != nil {
			return nil, err
		}
		ev.verdict.PracticalAssessment = &passed
		eligible = eligible && passed
	}

	ev.verdict.Eligible = eligible
	return ev, nil
}

// quizScoreMet holds when the best attempt at every quiz lesson reaches minScore.
func (e *Evaluator) quizScoreMet(ctx context.Context, userId, courseId string, minScore float64) (bool, error) {
	lessons, err := e.store.ListCourseLessons(ctx, courseId)
	if err != nil {
		return false, apperrors.Transient(err)
	}
	attempts, err := e.store.ListQuizAttempts(ctx, userId, courseId)
	if err != nil {
		return false, apperrors.Transient(err)
	}

	best := make(map[string]float64)
	for _, a := range attempts {
		if score, ok := best[a.LessonId]; !ok || a.Score > score {
			best[a.LessonId] = a.Score
		}
	}

	for _, l := range lessons {
		if !l.HasQuiz {
			continue
		}
		score, ok := best[l.Id]
		if !ok || score < minScore {
			return false, nil
		}
	}
	return true, nil
}

func (e *Evaluator) assessmentPassed(ctx context.Context, userId, courseId string) (bool, error) {
	a, err := e.store.GetPracticalAssessment(ctx, userId, courseId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, apperrors.Transient(err)
	}
	return a.Passed, nil
}

// GenerateCertificate issues the course certificate to an eligible, enrolled
// learner. The verification data is a snapshot taken at issuance.
func (e *Evaluator) GenerateCertificate(ctx context.Context, userId, courseId string) (*models.UserCertificate, error) {
	if userId == "" {
		return nil, apperrors.Withf(apperrors.ErrAccessDenied, "anonymous caller")
	}

	ev, err := e.evaluate(ctx, userId, courseId)
	if err != nil {
		return nil, err
	}
	if ev.certificate == nil {
		return nil, apperrors.Withf(apperrors.ErrCertificateNotOffered, "course %s", courseId)
	}
	if !ev.verdict.Eligible {
		return nil, &apperrors.RequirementsNotMetError{Verdict: ev.verdict}
	}

	if existing, err := e.store.GetUserCertificate(ctx, userId, ev.certificate.Id); err == nil {
		return nil, apperrors.Withf(apperrors.ErrAlreadyIssued, "certificate %s", existing.CertificateCode)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.Transient(err)
	}

	if _, err := e.store.GetEnrollment(ctx, userId, courseId); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.Withf(apperrors.ErrNotEnrolled, "Not enrolled in this course")
		}
		return nil, apperrors.Transient(err)
	}

	now := e.now().UTC()
	params := store.IssueCertificateParams{
		UserId:        userId,
		CertificateId: ev.certificate.Id,
		CourseId:      courseId,
		IssuedAt:      now,
		VerificationData: models.VerificationData{
			RecipientName:    e.recipientName(ctx, userId),
			CourseTitle:      ev.course.Title,
			CertificateTitle: ev.certificate.Title,
			CompletionDate:   now,
			IssuedAt:         now,
		},
	}
	if ev.progress.CompletedAt != nil {
		params.VerificationData.CompletionDate = ev.progress.CompletedAt.UTC()
	}
	if ev.certificate.ValidityDays > 0 {
		expires := now.AddDate(0, 0, ev.certificate.ValidityDays)
		params.ExpiresAt = &expires
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		params.Code = e.newCode()
		cert, err := e.store.IssueCertificate(ctx, params)
		switch {
		case err == nil:
			zap.L().Info("Certificate generated",
				zap.String("user_id", userId),
				zap.String("course_id", courseId),
				zap.String("certificate_code", cert.CertificateCode))
			return cert, nil
		case errors.Is(err, store.ErrDuplicateCode):
			zap.L().Warn("Certificate code collision", zap.String("code", params.Code), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, store.ErrDuplicate):
			return nil, apperrors.With(apperrors.ErrAlreadyIssued, err)
		default:
			return nil, apperrors.Transient(err)
		}
	}
	return nil, fmt.Errorf("no unique certificate code after %d attempts", maxCodeAttempts)
}

func (e *Evaluator) recipientName(ctx context.Context, userId string) string {
	user, err := e.store.GetUserById(ctx, userId)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("Failed to load recipient profile", zap.String("user_id", userId), zap.Error(err))
		}
		return userId
	}
	if user.Name == "" {
		return userId
	}
	return user.Name
}

// Verify looks up an issued certificate by its public code.
func (e *Evaluator) Verify(ctx context.Context, code string) (*models.UserCertificate, error) {
	cert, err := e.store.GetUserCertificateByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.With(apperrors.ErrCertificateNotFound, err)
		}
		return nil, apperrors.Transient(err)
	}
	cert.Status = cert.EffectiveStatus(e.now())
	return cert, nil
}

// RecordAssessment stores a reviewer's practical assessment verdict.
func (e *Evaluator) RecordAssessment(ctx context.Context, assessment models.PracticalAssessment) (*models.PracticalAssessment, error) {
	if assessment.UserId == "" || assessment.CourseId == "" {
		return nil, apperrors.Withf(apperrors.ErrInvalidRequest, "user and course are required")
	}
	if assessment.Reviewer == assessment.UserId {
		return nil, apperrors.ErrSelfAssessment
	}
	if !e.reviewers[assessment.Reviewer] {
		zap.L().Warn("Assessment from unlisted reviewer refused",
			zap.String("user_id", assessment.UserId),
			zap.String("course_id", assessment.CourseId),
			zap.String("reviewer", assessment.Reviewer))
		return nil, apperrors.ErrNotReviewer
	}
	if _, err := e.store.GetCourse(ctx, assessment.CourseId); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.With(apperrors.ErrCourseNotFound, err)
		}
		return nil, apperrors.Transient(err)
	}

	assessment.ReviewedAt = e.now().UTC()
	if err := e.store.UpsertPracticalAssessment(ctx, assessment); err != nil {
		return nil, apperrors.Transient(err)
	}

	zap.L().Info("Practical assessment recorded",
		zap.String("user_id", assessment.UserId),
		zap.String("course_id", assessment.CourseId),
		zap.Bool("passed", assessment.Passed),
		zap.String("reviewer", assessment.Reviewer))
	return &assessment, nil
}
