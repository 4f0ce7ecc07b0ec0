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

package models

// IntentResult is returned by intent creation. Reused is set when an
// existing pending intent was handed back instead of a new one.
type IntentResult struct {
	PaymentId   string        `json:"payment_id"`
	Status      PaymentStatus `json:"status"`
	Provider    string        `json:"provider"`
	RedirectURL string        `json:"redirect_url,omitempty"`
	Reused      bool          `json:"reused"`
}

// EventResult describes what applying a provider event did
type EventResult struct {
	Payment    *Payment    `json:"payment"`
	Applied    bool        `json:"applied"`
	Enrollment *Enrollment `json:"enrollment,omitempty"`
}

// WebhookAck is returned to the provider once a delivery has been handled.
// Status is one of processed, duplicate or ignored.
type WebhookAck struct {
	EventId       string        `json:"event_id"`
	Status        string        `json:"status"`
	PaymentId     string        `json:"payment_id,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
}

const (
	WebhookProcessed = "processed"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
)

// ProgressResult is the response of a lesson progress write
type ProgressResult struct {
	Lesson *LessonProgress `json:"lesson"`
	Course *CourseProgress `json:"course,omitempty"`
	Streak *Streak         `json:"streak,omitempty"`
}

// AccessDecision is the gating verdict for one lesson
type AccessDecision struct {
	LessonId         string `json:"lesson_id"`
	Accessible       bool   `json:"accessible"`
	Reason           string `json:"reason"`
	BlockingLessonId string `json:"blocking_lesson_id,omitempty"`
}

const (
	AccessReasonFreeLesson   = "free_lesson"
	AccessReasonFirstLesson  = "first_lesson"
	AccessReasonUnlocked     = "previous_lessons_completed"
	AccessReasonNotEnrolled  = "not_enrolled"
	AccessReasonLocked       = "previous_lesson_incomplete"
	AccessReasonUnauthorized = "anonymous"
)

// Verdict is the certificate eligibility result. Optional requirements
// are nil when the certificate does not define them.
type Verdict struct {
	CourseCompleted     bool    `json:"course_completed"`
	MinimumQuizScore    *bool   `json:"minimum_quiz_score,omitempty"`
	PracticalAssessment *bool   `json:"practical_assessment,omitempty"`
	ProgressPercentage  float64 `json:"progress_percentage"`
	Eligible            bool    `json:"eligible"`
}

// SweepReport summarises one reconciliation pass
type SweepReport struct {
	Scanned             int `json:"scanned"`
	Materialized        int `json:"materialized"`
	MaterializeFailures int `json:"materialize_failures"`
	ProgressRepaired    int `json:"progress_repaired"`
	CertificatesExpired int `json:"certificates_expired"`
}
