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
	"errors"
	"io"
	"net/http"
	"time"

	"course-ledger-go/internal/apperrors"
	"course-ledger-go/internal/models"
	"course-ledger-go/internal/payments"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type createIntentRequest struct {
	CourseId string `json:"course_id" validate:"required,max=128"`
	Method   string `json:"method" validate:"required,max=64"`
}

type paymentResponse struct {
	PaymentId   string               `json:"payment_id"`
	CourseId    string               `json:"course_id"`
	Status      models.PaymentStatus `json:"status"`
	Provider    string               `json:"provider"`
	Amount      decimal.Decimal      `json:"amount"`
	Currency    string               `json:"currency"`
	RedirectURL string               `json:"redirect_url,omitempty"`
	ProcessedAt *time.Time           `json:"processed_at,omitempty"`
	Enrollment  *models.Enrollment   `json:"enrollment,omitempty"`
}

func newPaymentResponse(p *models.Payment) paymentResponse {
	return paymentResponse{
		PaymentId:   p.Id,
		CourseId:    p.CourseId,
		Status:      p.Status,
		Provider:    p.Provider,
		Amount:      p.Amount,
		Currency:    p.Currency,
		RedirectURL: p.RedirectURL,
		ProcessedAt: p.ProcessedAt,
	}
}

func (s *LedgerService) createIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.svc.Payments.CreateIntent(r.Context(), payments.IntentParams{
		UserId:         models.CallerFrom(r.Context()).UserId,
		CourseId:       req.CourseId,
		Method:         req.Method,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		// the existing or half-created intent travels with the error
		if result != nil {
			writeErrorWith(w, r, err, result)
			return
		}
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Reused {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (s *LedgerService) paymentStatus(w http.ResponseWriter, r *http.Request) {
	payment, err := s.svc.Payments.GetStatus(r.Context(), models.CallerFrom(r.Context()).UserId, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaymentResponse(payment))
}

func (s *LedgerService) confirmPayment(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Payments.Confirm(r.Context(), models.CallerFrom(r.Context()).UserId, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := newPaymentResponse(result.Payment)
	resp.Enrollment = result.Enrollment
	writeJSON(w, http.StatusOK, resp)
}

func (s *LedgerService) handleWebhook(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, apperrors.With(apperrors.ErrInvalidRequest, err))
		return
	}

	ack, err := s.svc.Payments.HandleWebhook(r.Context(), providerName, r.Header, body)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidSignature) {
			zap.L().Warn("Rejected webhook with invalid signature",
				zap.String("provider", providerName),
				zap.String("remote_addr", r.RemoteAddr))
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}
