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

	"course-ledger-go/internal/models"
	"course-ledger-go/internal/progress"

	"github.com/go-chi/chi/v5"
)

type watchProgressRequest struct {
	WatchPercentage *float64 `json:"watch_percentage" validate:"required"`
	TimeSpentDelta  int64    `json:"time_spent_delta" validate:"gte=0"`
	Notes           *string  `json:"notes,omitempty" validate:"omitempty,max=10000"`
}

type quizAttemptRequest struct {
	Score *float64 `json:"score" validate:"required"`
}

func (s *LedgerService) recordProgress(w http.ResponseWriter, r *http.Request) {
	var req watchProgressRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.svc.Progress.RecordWatchProgress(r.Context(), progress.WatchParams{
		UserId:          models.CallerFrom(r.Context()).UserId,
		LessonId:        chi.URLParam(r, "id"),
		WatchPercentage: *req.WatchPercentage,
		TimeSpentDelta:  req.TimeSpentDelta,
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *LedgerService) completeLesson(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Progress.MarkLessonComplete(r.Context(), models.CallerFrom(r.Context()).UserId, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *LedgerService) recordQuizAttempt(w http.ResponseWriter, r *http.Request) {
	var req quizAttemptRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	attempt, err := s.svc.Progress.RecordQuizAttempt(r.Context(), models.CallerFrom(r.Context()).UserId, chi.URLParam(r, "id"), *req.Score)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attempt)
}

// lessonAccess is public so the player can render lock state for anonymous visitors
func (s *LedgerService) lessonAccess(w http.ResponseWriter, r *http.Request) {
	decision, err := s.svc.Progress.CheckAccess(r.Context(), models.CallerFrom(r.Context()).UserId, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *LedgerService) streak(w http.ResponseWriter, r *http.Request) {
	streak, err := s.svc.Progress.GetStreak(r.Context(), models.CallerFrom(r.Context()).UserId)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, streak)
}
