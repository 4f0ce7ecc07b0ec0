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

package apperrors

import (
	"errors"
	"fmt"

	"course-ledger-go/internal/models"
)

// Kind classifies an error for callers deciding how to react to it
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindForbidden
	KindUnauthorized
	KindTransient
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindUnauthorized:
		return "unauthorized"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "internal"
	}
}

// Error is a classified engine error. Two Errors match under errors.Is when
// their codes are equal.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidProgress       = newError(KindValidation, "invalid_progress", "watch percentage must be between 0 and 100")
	ErrInvalidRequest        = newError(KindValidation, "invalid_request", "invalid request")
	ErrInsufficientProgress  = newError(KindConflict, "insufficient_progress", "lesson has not been watched enough to complete")
	ErrCourseNotFree         = newError(KindValidation, "course_not_free", "course requires payment")
	ErrAlreadyEnrolled       = newError(KindConflict, "already_enrolled", "user is already enrolled in this course")
	ErrPaymentInProgress     = newError(KindConflict, "payment_in_progress", "a payment for this course is already pending")
	ErrAlreadyIssued         = newError(KindConflict, "already_issued", "certificate already issued")
	ErrRequirementsNotMet    = newError(KindConflict, "requirements_not_met", "certificate requirements are not met")
	ErrNotEnrolled           = newError(KindForbidden, "not_enrolled", "user is not enrolled in this course")
	ErrCourseIsFree          = newError(KindConflict, "course_is_free", "course does not require payment")
	ErrPaymentNotFound       = newError(KindNotFound, "payment_not_found", "payment not found")
	ErrLessonNotFound        = newError(KindNotFound, "lesson_not_found", "lesson not found")
	ErrCourseNotFound        = newError(KindNotFound, "course_not_found", "course not found")
	ErrCertificateNotOffered = newError(KindNotFound, "certificate_not_offered", "course does not offer a certificate")
	ErrCertificateNotFound   = newError(KindNotFound, "certificate_not_found", "certificate not found")
	ErrProviderNotFound      = newError(KindNotFound, "provider_not_found", "unknown payment provider")
	ErrAccessDenied          = newError(KindForbidden, "access_denied", "access denied")
	ErrLessonLocked          = newError(KindForbidden, "lesson_locked", "complete the previous lessons first")
	ErrSelfAssessment        = newError(KindForbidden, "self_assessment", "learners cannot assess their own work")
	ErrNotReviewer           = newError(KindForbidden, "not_reviewer", "caller is not an assessment reviewer")
	ErrInvalidSignature      = newError(KindUnauthorized, "invalid_signature", "webhook signature verification failed")
	ErrUnauthenticated       = newError(KindUnauthorized, "unauthenticated", "caller identity is required")
	ErrProviderUnavailable   = newError(KindTransient, "provider_unavailable", "payment provider unavailable")
	ErrProviderRejected      = newError(KindInternal, "provider_rejected", "payment provider rejected the request")
	ErrStoreUnavailable      = newError(KindTransient, "store_unavailable", "storage temporarily unavailable")
	ErrInvariantViolation    = newError(KindFatal, "invariant_violation", "invariant violation")
)

// With returns a copy of sentinel carrying err as its cause.
func With(sentinel *Error, err error) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: sentinel.Message, Err: err}
}

// Withf returns a copy of sentinel with a formatted cause.
func Withf(sentinel *Error, format string, args ...any) *Error {
	return With(sentinel, fmt.Errorf(format, args...))
}

// Transient marks a storage or network failure as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return With(ErrStoreUnavailable, err)
}

// RequirementsNotMetError carries the per-requirement verdict back to the caller
type RequirementsNotMetError struct {
	Verdict models.Verdict
}

func (e *RequirementsNotMetError) Error() string {
	return ErrRequirementsNotMet.Message
}

func (e *RequirementsNotMetError) Unwrap() error { return ErrRequirementsNotMet }

// KindOf returns the classification of err, or KindInternal when unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of err, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// IsRetryable reports whether the operation may succeed if repeated unchanged.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
