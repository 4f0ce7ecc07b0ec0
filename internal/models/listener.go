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

// EventSource identifies where a payment outcome was learned from
type EventSource string

const (
	EventSourceWebhook EventSource = "webhook"
	EventSourceConfirm EventSource = "confirm"
	EventSourcePoller  EventSource = "poller"
	EventSourceManual  EventSource = "manual"
)

// PaymentEvent is a provider-reported outcome for a transaction, regardless
// of whether it arrived by webhook or by polling the provider.
type PaymentEvent struct {
	TransactionId string        `json:"transaction_id" validate:"required"`
	Outcome       PaymentStatus `json:"outcome" validate:"required"`
	Payload       string        `json:"payload,omitempty"`
	Source        EventSource   `json:"source,omitempty"`
}

// PollReport summarises one pass of the pending payment poller
type PollReport struct {
	Checked  int
	Resolved int
	Skipped  int
	Errors   int
}

// Domain event types written to the outbox
const (
	EventPaymentSucceeded  = "payment.succeeded"
	EventPaymentFailed     = "payment.failed"
	EventPaymentCancelled  = "payment.cancelled"
	EventEnrollmentCreated = "enrollment.created"
	EventLessonCompleted   = "lesson.completed"
	EventCourseCompleted   = "course.completed"
	EventCertificateIssued = "certificate.issued"
)

// PaymentEventType maps a terminal status to its outbox event type.
func PaymentEventType(status PaymentStatus) string {
	switch status {
	case PaymentStatusSucceeded:
		return EventPaymentSucceeded
	case PaymentStatusFailed:
		return EventPaymentFailed
	default:
		return EventPaymentCancelled
	}
}
