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

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordProviderEvent stores a webhook delivery. The bool result is false
// when an event with the same id is already stored. A verified delivery
// replaces a stored unverified one and counts as new.
func (s *Service) RecordProviderEvent(ctx context.Context, params store.ProviderEventParams) (*models.ProviderEvent, bool, error) {
	received := params.ReceivedAt
	if received.IsZero() {
		received = time.Now().UTC()
	}
	eventId := params.EventId
	if eventId == "" {
		eventId = uuid.New().String()
	}

	result, err := s.db.ExecContext(ctx, queryInsertProviderEvent,
		uuid.New().String(), params.Provider, eventId, params.TransactionId, params.Outcome,
		params.Payload, params.SignatureValid, received.UTC())
	if err != nil {
		return nil, false, fmt.Errorf("unable to insert provider event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("unable to get rows affected: %w", err)
	}

	var ev models.ProviderEvent
	var processedAt sql.NullTime
	err = s.db.QueryRowContext(ctx, queryGetProviderEvent, params.Provider, eventId).Scan(
		&ev.Id, &ev.Provider, &ev.EventId, &ev.TransactionId, &ev.Outcome, &ev.Payload, &ev.SignatureValid,
		&ev.ReceivedAt, &processedAt, &ev.ProcessingError)
	if err != nil {
		return nil, false, fmt.Errorf("unable to read provider event: %w", err)
	}
	ev.ProcessedAt = timePtr(processedAt)

	if rowsAffected == 0 {
		zap.L().Info("Duplicate provider event delivery",
			zap.String("provider", params.Provider),
			zap.String("event_id", eventId))
	}
	return &ev, rowsAffected == 1, nil
}

func (s *Service) MarkProviderEventProcessed(ctx context.Context, id string, processingErr error) error {
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	if _, err := s.db.ExecContext(ctx, queryMarkProviderEventProcessed, time.Now().UTC(), msg, id); err != nil {
		return fmt.Errorf("unable to mark provider event %s processed: %w", id, err)
	}
	return nil
}
