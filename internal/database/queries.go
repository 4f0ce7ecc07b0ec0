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

const (
	// User queries
	queryGetUsers = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		ORDER BY created_at`

	queryInsertUser = `
		INSERT OR IGNORE INTO users (id, name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`

	queryGetUserById = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE id = ?`

	queryGetUserByEmail = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE email = ?`

	// Catalog queries
	queryUpsertCourse = `
		INSERT INTO courses (id, title, price, currency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			price = excluded.price,
			currency = excluded.currency,
			updated_at = excluded.updated_at`

	queryUpsertModule = `
		INSERT INTO modules (id, course_id, title, position)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			course_id = excluded.course_id,
			title = excluded.title,
			position = excluded.position`

	queryUpsertLesson = `
		INSERT INTO lessons (id, course_id, module_id, title, position, is_free, has_quiz, passing_score, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			course_id = excluded.course_id,
			module_id = excluded.module_id,
			title = excluded.title,
			position = excluded.position,
			is_free = excluded.is_free,
			has_quiz = excluded.has_quiz,
			passing_score = excluded.passing_score,
			duration_seconds = excluded.duration_seconds`

	queryUpsertCertificate = `
		INSERT INTO certificates (id, course_id, title, requirements, validity_days)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			course_id = excluded.course_id,
			title = excluded.title,
			requirements = excluded.requirements,
			validity_days = excluded.validity_days`

	queryGetCourse = `
		SELECT id, title, price, currency, created_at, updated_at
		FROM courses
		WHERE id = ?`

	queryListCourses = `
		SELECT id, title, price, currency, created_at, updated_at
		FROM courses
		ORDER BY title`

	lessonColumns = `id, course_id, module_id, title, position, is_free, has_quiz, passing_score, duration_seconds`

	queryGetLesson = `
		SELECT ` + lessonColumns + `
		FROM lessons
		WHERE id = ?`

	queryListModuleLessons = `
		SELECT ` + lessonColumns + `
		FROM lessons
		WHERE module_id = ?
		ORDER BY position, id`

	queryListCourseLessons = `
		SELECT l.id, l.course_id, l.module_id, l.title, l.position, l.is_free, l.has_quiz, l.passing_score, l.duration_seconds
		FROM lessons l
		JOIN modules m ON m.id = l.module_id
		WHERE l.course_id = ?
		ORDER BY m.position, l.position, l.id`

	queryGetCertificateByCourse = `
		SELECT id, course_id, title, requirements, validity_days
		FROM certificates
		WHERE course_id = ?`

	// Payment queries
	paymentColumns = `id, user_id, course_id, amount, currency, status, provider, method,
		provider_transaction_id, redirect_url, idempotency_key, raw_provider_payload,
		created_at, updated_at, processed_at`

	queryInsertPayment = `
		INSERT INTO payments (id, user_id, course_id, amount, currency, status, provider, method,
			idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?, ?)
		RETURNING ` + paymentColumns

	queryGetPayment = `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE id = ?`

	queryGetPaymentByIdempotencyKey = `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE idempotency_key = ?`

	queryGetPendingPayment = `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE user_id = ? AND course_id = ? AND status = 'pending'`

	queryGetPaymentByProviderTx = `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE provider_transaction_id = ?`

	queryAttachProviderHandle = `
		UPDATE payments
		SET provider_transaction_id = ?, redirect_url = ?, updated_at = ?
		WHERE id = ? AND status = 'pending' AND (provider_transaction_id IS NULL OR provider_transaction_id = ?)`

	// compare-and-swap: only a pending payment can transition
	queryTransitionPayment = `
		UPDATE payments
		SET status = ?, raw_provider_payload = ?, processed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`

	queryListPendingPayments = `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'pending' AND provider_transaction_id IS NOT NULL AND created_at <= ?
		ORDER BY created_at
		LIMIT ?`

	queryListSucceededWithoutEnrollment = `
		SELECT p.id, p.user_id, p.course_id, p.amount, p.currency, p.status, p.provider, p.method,
			p.provider_transaction_id, p.redirect_url, p.idempotency_key, p.raw_provider_payload,
			p.created_at, p.updated_at, p.processed_at
		FROM payments p
		LEFT JOIN enrollments e ON e.user_id = p.user_id AND e.course_id = p.course_id
		WHERE p.status = 'succeeded' AND e.id IS NULL
		ORDER BY p.processed_at
		LIMIT ?`

	// Provider event queries
	providerEventColumns = `id, provider, event_id, transaction_id, outcome, payload, signature_valid,
		received_at, processed_at, processing_error`

	queryInsertProviderEvent = `
		INSERT INTO provider_events (id, provider, event_id, transaction_id, outcome, payload, signature_valid, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, event_id) DO UPDATE SET
			transaction_id = excluded.transaction_id,
			outcome = excluded.outcome,
			payload = excluded.payload,
			signature_valid = 1,
			processing_error = ''
		WHERE excluded.signature_valid = 1 AND provider_events.signature_valid = 0`

	queryGetProviderEvent = `
		SELECT ` + providerEventColumns + `
		FROM provider_events
		WHERE provider = ? AND event_id = ?`

	queryMarkProviderEventProcessed = `
		UPDATE provider_events
		SET processed_at = ?, processing_error = ?
		WHERE id = ?`

	// Enrollment queries
	enrollmentColumns = `id, user_id, course_id, payment_id, source, enrolled_at`

	queryInsertEnrollment = `
		INSERT INTO enrollments (id, user_id, course_id, payment_id, source, enrolled_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, course_id) DO NOTHING`

	queryGetEnrollment = `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE user_id = ? AND course_id = ?`

	queryListEnrollments = `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE user_id = ?
		ORDER BY enrolled_at`

	// Progress queries
	lessonProgressColumns = `user_id, lesson_id, course_id, watch_percentage, time_spent_seconds,
		is_completed, completed_at, notes, created_at, updated_at`

	queryGetLessonProgress = `
		SELECT ` + lessonProgressColumns + `
		FROM lesson_progress
		WHERE user_id = ? AND lesson_id = ?`

	queryListLessonProgress = `
		SELECT lp.user_id, lp.lesson_id, lp.course_id, lp.watch_percentage, lp.time_spent_seconds,
			lp.is_completed, lp.completed_at, lp.notes, lp.created_at, lp.updated_at
		FROM lesson_progress lp
		JOIN lessons l ON l.id = lp.lesson_id
		JOIN modules m ON m.id = l.module_id
		WHERE lp.user_id = ? AND l.course_id = ?
		ORDER BY m.position, l.position, lp.lesson_id`

	queryUpsertLessonProgress = `
		INSERT INTO lesson_progress (user_id, lesson_id, course_id, watch_percentage, time_spent_seconds,
			is_completed, completed_at, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, lesson_id) DO UPDATE SET
			watch_percentage = excluded.watch_percentage,
			time_spent_seconds = excluded.time_spent_seconds,
			is_completed = excluded.is_completed,
			completed_at = excluded.completed_at,
			notes = excluded.notes,
			updated_at = excluded.updated_at`

	courseProgressColumns = `user_id, course_id, completed_lessons, total_lessons, progress_percentage,
		time_spent_seconds, completed_at, last_activity_at, updated_at`

	queryGetCourseProgress = `
		SELECT ` + courseProgressColumns + `
		FROM course_progress
		WHERE user_id = ? AND course_id = ?`

	queryInsertCourseProgress = `
		INSERT INTO course_progress (user_id, course_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, course_id) DO NOTHING`

	queryUpdateCourseProgress = `
		UPDATE course_progress
		SET completed_lessons = ?, total_lessons = ?, progress_percentage = ?, time_spent_seconds = ?,
			completed_at = ?, last_activity_at = ?, updated_at = ?
		WHERE user_id = ? AND course_id = ?`

	queryCountCourseLessons = `
		SELECT COUNT(*) FROM lessons WHERE course_id = ?`

	// aggregates only over lessons that still belong to the course
	queryAggregateLessonProgress = `
		SELECT COALESCE(SUM(CASE WHEN lp.is_completed = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(lp.time_spent_seconds), 0)
		FROM lesson_progress lp
		JOIN lessons l ON l.id = lp.lesson_id
		WHERE lp.user_id = ? AND l.course_id = ?`

	queryListDriftedCourseProgress = `
		SELECT ` + courseProgressColumns + `
		FROM course_progress cp
		WHERE cp.total_lessons <> (SELECT COUNT(*) FROM lessons l WHERE l.course_id = cp.course_id)
			OR cp.completed_lessons <> (
				SELECT COUNT(*)
				FROM lesson_progress lp
				JOIN lessons l ON l.id = lp.lesson_id
				WHERE lp.user_id = cp.user_id AND l.course_id = cp.course_id AND lp.is_completed = 1)
		LIMIT ?`

	queryGetStreak = `
		SELECT user_id, current_streak, longest_streak, last_active_date, updated_at
		FROM user_streaks
		WHERE user_id = ?`

	queryUpsertStreak = `
		INSERT INTO user_streaks (user_id, current_streak, longest_streak, last_active_date, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			last_active_date = excluded.last_active_date,
			updated_at = excluded.updated_at`

	queryInsertQuizAttempt = `
		INSERT INTO quiz_attempts (id, user_id, lesson_id, course_id, score, passed, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryListQuizAttempts = `
		SELECT id, user_id, lesson_id, course_id, score, passed, attempted_at
		FROM quiz_attempts
		WHERE user_id = ? AND course_id = ?
		ORDER BY attempted_at`

	queryUpsertPracticalAssessment = `
		INSERT INTO practical_assessments (user_id, course_id, passed, reviewer, reviewed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, course_id) DO UPDATE SET
			passed = excluded.passed,
			reviewer = excluded.reviewer,
			reviewed_at = excluded.reviewed_at`

	queryGetPracticalAssessment = `
		SELECT user_id, course_id, passed, reviewer, reviewed_at
		FROM practical_assessments
		WHERE user_id = ? AND course_id = ?`

	// Certificate queries
	userCertificateColumns = `id, user_id, certificate_id, course_id, certificate_code, status,
		issued_at, expires_at, verification_data`

	queryInsertUserCertificate = `
		INSERT INTO user_certificates (id, user_id, certificate_id, course_id, certificate_code, status,
			issued_at, expires_at, verification_data)
		VALUES (?, ?, ?, ?, ?, 'active', ?, ?, ?)
		RETURNING ` + userCertificateColumns

	queryGetUserCertificate = `
		SELECT ` + userCertificateColumns + `
		FROM user_certificates
		WHERE user_id = ? AND certificate_id = ?`

	queryGetUserCertificateByCode = `
		SELECT ` + userCertificateColumns + `
		FROM user_certificates
		WHERE certificate_code = ?`

	queryExpireCertificates = `
		UPDATE user_certificates
		SET status = 'expired'
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= ?`

	// Outbox queries
	queryInsertOutboxEvent = `
		INSERT INTO outbox_events (id, event_type, event_key, payload, status, created_at)
		VALUES (?, ?, ?, ?, 'pending', ?)`

	queryListPendingOutboxEvents = `
		SELECT id, event_type, event_key, payload, status, attempts, last_error, created_at, sent_at
		FROM outbox_events
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT ?`

	queryMarkOutboxEventSent = `
		UPDATE outbox_events
		SET status = 'sent', sent_at = ?, last_error = ''
		WHERE id = ?`

	queryMarkOutboxEventFailed = `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = ?
		WHERE id = ?`
)
