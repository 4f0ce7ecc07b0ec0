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
	"net/http"
	"strings"

	"course-ledger-go/internal/models"

	"github.com/go-chi/chi/v5"
)

type assessmentRequest struct {
	Passed *bool `json:"passed" validate:"required"`
}

type enrollResponse struct {
	Enrollment *models.Enrollment `json:"enrollment"`
	Created    bool               `json:"created"`
}

type certificateResponse struct {
	Certificate *models.UserCertificate `json:"certificate"`
}

func (s *LedgerService) courseProgress(w http.ResponseWriter, r *http.Request) {
	cp, err := s.svc.Progress.GetCourseProgress(r.Context(), models.CallerFrom(r.Context()).UserId, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

func (s *LedgerService) enrollFree(w http.ResponseWriter, r *http.Request) {
	enrollment, created, err := s.svc.Enrollments.EnrollFree(r.Context(), models.CallerFrom(r.Context()).UserId, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, enrollResponse{Enrollment: enrollment, Created: created})
}

func (s *LedgerService) certificateEligibility(w http.ResponseWriter, r *http.Request) {
	verdict, err := s.svc.Certificates.Evaluate(r.Context(), models.CallerFrom(r.Context()).UserId, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (s *LedgerService) generateCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := s.svc.Certificates.GenerateCertificate(r.Context(), models.CallerFrom(r.Context()).UserId, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, certificateResponse{Certificate: cert})
}

// recordAssessment stores a reviewer verdict; the caller is recorded as reviewer
func (s *LedgerService) recordAssessment(w http.ResponseWriter, r *http.Request) {
	var req assessmentRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	assessment, err := s.svc.Certificates.RecordAssessment(r.Context(), models.PracticalAssessment{
		UserId:   chi.URLParam(r, "userId"),
		CourseId: chi.URLParam(r, "id"),
		Passed:   *req.Passed,
		Reviewer: models.CallerFrom(r.Context()).UserId,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (s *LedgerService) verifyCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := s.svc.Certificates.Verify(r.Context(), strings.TrimSpace(chi.URLParam(r, "code")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, certificateResponse{Certificate: cert})
}
