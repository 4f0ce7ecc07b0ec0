package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// CompletionThreshold is the watch percentage at which a lesson counts as watched.
const CompletionThreshold = 80.0

// User mirrors a learner profile owned by the identity system
type User struct {
	Id        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Course is the catalog entry a learner pays for
type Course struct {
	Id        string          `db:"id" json:"id"`
	Title     string          `db:"title" json:"title"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Currency  string          `db:"currency" json:"currency"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// IsFree reports whether the course can be enrolled in without a payment.
func (c Course) IsFree() bool {
	return !c.Price.IsPositive()
}

// Module groups lessons; gating is evaluated inside a module
type Module struct {
	Id       string `db:"id"`
	CourseId string `db:"course_id"`
	Title    string `db:"title"`
	Position int    `db:"position"`
}

// Lesson is a single video lesson
type Lesson struct {
	Id              string  `db:"id" json:"id"`
	CourseId        string  `db:"course_id" json:"course_id"`
	ModuleId        string  `db:"module_id" json:"module_id"`
	Title           string  `db:"title" json:"title"`
	Position        int     `db:"position" json:"position"`
	IsFree          bool    `db:"is_free" json:"is_free"`
	HasQuiz         bool    `db:"has_quiz" json:"has_quiz"`
	PassingScore    float64 `db:"passing_score" json:"passing_score"`
	DurationSeconds int64   `db:"duration_seconds" json:"duration_seconds"`
}

// PaymentStatus is the state of a purchase attempt
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s.IsTerminal()
}

// Payment represents one purchase attempt
type Payment struct {
	Id                    string          `db:"id" json:"id"`
	UserId                string          `db:"user_id" json:"user_id"`
	CourseId              string          `db:"course_id" json:"course_id"`
	Amount                decimal.Decimal `db:"amount" json:"amount"`
	Currency              string          `db:"currency" json:"currency"`
	Status                PaymentStatus   `db:"status" json:"status"`
	Provider              string          `db:"provider" json:"provider"`
	Method                string          `db:"method" json:"method"`
	ProviderTransactionId string          `db:"provider_transaction_id" json:"provider_transaction_id,omitempty"`
	RedirectURL           string          `db:"redirect_url" json:"redirect_url,omitempty"`
	IdempotencyKey        string          `db:"idempotency_key" json:"-"`
	RawProviderPayload    string          `db:"raw_provider_payload" json:"-"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
	ProcessedAt           *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// EnrollmentSource records how access to a course was granted
type EnrollmentSource string

const (
	EnrollmentSourcePayment EnrollmentSource = "payment"
	EnrollmentSourceFree    EnrollmentSource = "free"
	EnrollmentSourceGrant   EnrollmentSource = "grant"
)

// Enrollment is proof of access to a course. PaymentId is empty for free and granted access.
type Enrollment struct {
	Id         string           `db:"id" json:"id"`
	UserId     string           `db:"user_id" json:"user_id"`
	CourseId   string           `db:"course_id" json:"course_id"`
	PaymentId  string           `db:"payment_id" json:"payment_id,omitempty"`
	Source     EnrollmentSource `db:"source" json:"source"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
}

// CourseProgress is the per (user, course) aggregate derived from LessonProgress rows
type CourseProgress struct {
	UserId             string     `db:"user_id" json:"user_id"`
	CourseId           string     `db:"course_id" json:"course_id"`
	CompletedLessons   int        `db:"completed_lessons" json:"completed_lessons"`
	TotalLessons       int        `db:"total_lessons" json:"total_lessons"`
	ProgressPercentage float64    `db:"progress_percentage" json:"progress_percentage"`
	TimeSpentSeconds   int64      `db:"time_spent_seconds" json:"time_spent_seconds"`
	CompletedAt        *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	LastActivityAt     *time.Time `db:"last_activity_at" json:"last_activity_at,omitempty"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// IsComplete reports whether every lesson of the course is completed.
func (p CourseProgress) IsComplete() bool {
	return p.TotalLessons > 0 && p.CompletedLessons >= p.TotalLessons
}

// ProgressPercentage returns completed/total*100 rounded to two decimals.
func ProgressPercentage(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	pct := float64(completed) / float64(total) * 100
	return math.Round(pct*100) / 100
}

// LessonProgress is the per (user, lesson) watch state
type LessonProgress struct {
	UserId           string        `db:"user_id" json:"user_id"`
	LessonId         string        `db:"lesson_id" json:"lesson_id"`
	CourseId         string        `db:"course_id" json:"course_id"`
	WatchPercentage  float64       `db:"watch_percentage" json:"watch_percentage"`
	TimeSpentSeconds int64         `db:"time_spent_seconds" json:"time_spent_seconds"`
	IsCompleted      bool          `db:"is_completed" json:"is_completed"`
	CompletedAt      *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	Notes            string        `db:"notes" json:"notes,omitempty"`
	QuizAttempts     []QuizAttempt `json:"quiz_attempts,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// QuizAttempt is one scored attempt at a lesson quiz
type QuizAttempt struct {
	Id          string    `db:"id" json:"id"`
	UserId      string    `db:"user_id" json:"user_id"`
	LessonId    string    `db:"lesson_id" json:"lesson_id"`
	CourseId    string    `db:"course_id" json:"course_id"`
	Score       float64   `db:"score" json:"score"`
	Passed      bool      `db:"passed" json:"passed"`
	AttemptedAt time.Time `db:"attempted_at" json:"attempted_at"`
}

// PracticalAssessment is the reviewer verdict on a learner's practical work
type PracticalAssessment struct {
	UserId     string    `db:"user_id" json:"user_id"`
	CourseId   string    `db:"course_id" json:"course_id"`
	Passed     bool      `db:"passed" json:"passed"`
	Reviewer   string    `db:"reviewer" json:"reviewer,omitempty"`
	ReviewedAt time.Time `db:"reviewed_at" json:"reviewed_at"`
}

// Streak tracks consecutive UTC days with lesson activity
type Streak struct {
	UserId         string    `db:"user_id" json:"user_id"`
	CurrentStreak  int       `db:"current_streak" json:"current_streak"`
	LongestStreak  int       `db:"longest_streak" json:"longest_streak"`
	LastActiveDate string    `db:"last_active_date" json:"last_active_date"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

const streakDateLayout = "2006-01-02"

// Advance returns the streak after activity at the given instant.
func (s Streak) Advance(at time.Time) Streak {
	day := at.UTC().Format(streakDateLayout)
	next := s
	next.UpdatedAt = at.UTC()

	switch {
	case s.LastActiveDate == day:
		return next
	case s.LastActiveDate == at.UTC().AddDate(0, 0, -1).Format(streakDateLayout):
		next.CurrentStreak = s.CurrentStreak + 1
	default:
		next.CurrentStreak = 1
	}

	next.LastActiveDate = day
	if next.CurrentStreak > next.LongestStreak {
		next.LongestStreak = next.CurrentStreak
	}
	return next
}

// CertificateRequirements is the rule set attached to a course certificate.
// A nil CompleteAllLessons means the rule applies.
type CertificateRequirements struct {
	CompleteAllLessons  *bool    `json:"complete_all_lessons,omitempty" yaml:"complete_all_lessons"`
	MinimumQuizScore    *float64 `json:"minimum_quiz_score,omitempty" yaml:"minimum_quiz_score"`
	PracticalAssessment bool     `json:"practical_assessment,omitempty" yaml:"practical_assessment"`
}

// RequiresCompletion reports whether all lessons must be completed.
func (r CertificateRequirements) RequiresCompletion() bool {
	return r.CompleteAllLessons == nil || *r.CompleteAllLessons
}

// Certificate is the per-course certificate definition
type Certificate struct {
	Id           string                  `db:"id" json:"id"`
	CourseId     string                  `db:"course_id" json:"course_id"`
	Title        string                  `db:"title" json:"title"`
	Requirements CertificateRequirements `db:"requirements" json:"requirements"`
	ValidityDays int                     `db:"validity_days" json:"validity_days,omitempty"`
}

type CertificateStatus string

const (
	CertificateStatusActive  CertificateStatus = "active"
	CertificateStatusExpired CertificateStatus = "expired"
)

// VerificationData is frozen at issuance so later profile edits do not alter it
type VerificationData struct {
	RecipientName    string    `json:"recipient_name"`
	CourseTitle      string    `json:"course_title"`
	CertificateTitle string    `json:"certificate_title"`
	CompletionDate   time.Time `json:"completion_date"`
	IssuedAt         time.Time `json:"issued_at"`
}

// UserCertificate is an issued certificate instance
type UserCertificate struct {
	Id               string            `db:"id" json:"id"`
	UserId           string            `db:"user_id" json:"user_id"`
	CertificateId    string            `db:"certificate_id" json:"certificate_id"`
	CourseId         string            `db:"course_id" json:"course_id"`
	CertificateCode  string            `db:"certificate_code" json:"certificate_code"`
	Status           CertificateStatus `db:"status" json:"status"`
	IssuedAt         time.Time         `db:"issued_at" json:"issued_at"`
	ExpiresAt        *time.Time        `db:"expires_at" json:"expires_at,omitempty"`
	VerificationData VerificationData  `db:"verification_data" json:"verification_data"`
}

// EffectiveStatus folds a passed expiry into the stored status.
func (c UserCertificate) EffectiveStatus(now time.Time) CertificateStatus {
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return CertificateStatusExpired
	}
	return c.Status
}

// ProviderEvent is the audit record of one webhook delivery
type ProviderEvent struct {
	Id              string     `db:"id"`
	Provider        string     `db:"provider"`
	EventId         string     `db:"event_id"`
	TransactionId   string     `db:"transaction_id"`
	Outcome         string     `db:"outcome"`
	Payload         string     `db:"payload"`
	SignatureValid  bool       `db:"signature_valid"`
	ReceivedAt      time.Time  `db:"received_at"`
	ProcessedAt     *time.Time `db:"processed_at"`
	ProcessingError string     `db:"processing_error"`
}

type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
)

// OutboxEvent is a domain event waiting to be published
type OutboxEvent struct {
	Id        string       `db:"id"`
	EventType string       `db:"event_type"`
	Key       string       `db:"event_key"`
	Payload   []byte       `db:"payload"`
	Status    OutboxStatus `db:"status"`
	Attempts  int          `db:"attempts"`
	LastError string       `db:"last_error"`
	CreatedAt time.Time    `db:"created_at"`
	SentAt    *time.Time   `db:"sent_at"`
}
