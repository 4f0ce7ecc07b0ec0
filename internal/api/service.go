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

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"course-ledger-go/internal/certificate"
	"course-ledger-go/internal/enrollment"
	"course-ledger-go/internal/payments"
	"course-ledger-go/internal/progress"
	"course-ledger-go/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// Services holds the engine components the HTTP surface calls into
type Services struct {
	Store        store.LedgerStore
	Payments     *payments.Service
	Progress     *progress.Engine
	Certificates *certificate.Evaluator
	Enrollments  *enrollment.Materializer
}

// LedgerService serves the public HTTP API
type LedgerService struct {
	svc      Services
	validate *validator.Validate
}

func NewLedgerService(svc Services) *LedgerService {
	return &LedgerService{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.svc.Store.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Router builds the chi router for the versioned API and /health
func (s *LedgerService) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(withCaller)

	r.Get("/health", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/webhooks/{provider}", s.handleWebhook)
		r.Get("/certificates/{code}", s.verifyCertificate)
		r.Get("/lessons/{id}/access", s.lessonAccess)

		r.Group(func(r chi.Router) {
			r.Use(requireCaller)

			r.Route("/payments", func(r chi.Router) {
				r.Post("/intents", s.createIntent)
				r.Get("/{id}", s.paymentStatus)
				r.Post("/{id}/confirm", s.confirmPayment)
			})

			r.Route("/lessons/{id}", func(r chi.Router) {
				r.Put("/progress", s.recordProgress)
				r.Post("/complete", s.completeLesson)
				r.Post("/quiz-attempts", s.recordQuizAttempt)
			})

			r.Route("/courses/{id}", func(r chi.Router) {
				r.Get("/progress", s.courseProgress)
				r.Post("/enroll", s.enrollFree)
				r.Get("/certificate/eligibility", s.certificateEligibility)
				r.Post("/certificate/generate", s.generateCertificate)
				r.Put("/assessments/{userId}", s.recordAssessment)
			})

			r.Get("/me/streak", s.streak)
		})
	})

	return r
}

func (s *LedgerService) health(w http.ResponseWriter, r *http.Request) {
	if err := s.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
