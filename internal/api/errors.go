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
	"encoding/json"
	"errors"
	"net/http"

	"course-ledger-go/internal/apperrors"
	"course-ledger-go/internal/models"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Verdict *models.Verdict `json:"verdict,omitempty"`
	Intent  any             `json:"intent,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func statusFor(err error) int {
	var notMet *apperrors.RequirementsNotMetError
	if errors.As(err, &notMet) {
		return http.StatusUnprocessableEntity
	}
	if errors.Is(err, apperrors.ErrProviderRejected) {
		return http.StatusBadGateway
	}

	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindUnauthorized:
		return http.StatusUnauthorized
	case apperrors.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a classified error. Internal causes are logged and
// never echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorWith(w, r, err, nil)
}

func writeErrorWith(w http.ResponseWriter, r *http.Request, err error, intent any) {
	status := statusFor(err)
	body := errorBody{Code: apperrors.CodeOf(err), Intent: intent}

	var classified *apperrors.Error
	if errors.As(err, &classified) {
		body.Message = classified.Message
	}

	var notMet *apperrors.RequirementsNotMetError
	if errors.As(err, &notMet) {
		body.Verdict = &notMet.Verdict
	}

	if status >= http.StatusInternalServerError {
		zap.L().Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", body.Code),
			zap.Error(err))
		if body.Message == "" {
			body.Message = "internal error"
		}
	} else {
		zap.L().Debug("Request rejected",
			zap.String("path", r.URL.Path),
			zap.String("code", body.Code),
			zap.Error(err))
	}

	writeJSON(w, status, errorResponse{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("Failed to encode response", zap.Error(err))
	}
}

// decode reads a JSON body into dst and runs its validation tags
func (s *LedgerService) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.With(apperrors.ErrInvalidRequest, err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return apperrors.With(apperrors.ErrInvalidRequest, err)
	}
	return nil
}
