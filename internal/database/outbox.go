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
	"encoding/json"
	"fmt"
	"time"

	"course-ledger-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// insertOutboxEvent records a domain event inside the caller's transaction
func insertOutboxEvent(ctx context.Context, tx *sql.Tx, eventType, key string, payload any, at time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	if _, err := tx.ExecContext(ctx, queryInsertOutboxEvent, uuid.New().String(), eventType, key, string(body), at.UTC()); err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}
	return nil
}

func (s *Service) ListPendingOutboxEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	rows, err := s.db.QueryContext(ctx, queryListPendingOutboxEvents, limit)
	if err != nil {
		return nil, fmt.Errorf("unable to query outbox events: %w", err)
	}
	defer closeRows(rows)

	var events []models.OutboxEvent
	for rows.Next() {
		var ev models.OutboxEvent
		var payload, status string
		var sentAt sql.NullTime
		if err := rows.Scan(&ev.Id, &ev.EventType, &ev.Key, &payload, &status, &ev.Attempts, &ev.LastError, &ev.CreatedAt, &sentAt); err != nil {
			return nil, fmt.Errorf("unable to scan outbox row: %w", err)
		}
		ev.Payload = []byte(payload)
		ev.Status = models.OutboxStatus(status)
		ev.SentAt = timePtr(sentAt)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox rows: %w", err)
	}
	return events, nil
}

func (s *Service) MarkOutboxEventSent(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, queryMarkOutboxEventSent, at.UTC(), id); err != nil {
		return fmt.Errorf("unable to mark outbox event %s sent: %w", id, err)
	}
	return nil
}

func (s *Service) MarkOutboxEventFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := s.db.ExecContext(ctx, queryMarkOutboxEventFailed, msg, id); err != nil {
		return fmt.Errorf("unable to mark outbox event %s failed: %w", id, err)
	}
	zap.L().Debug("Outbox event delivery failed", zap.String("event_id", id), zap.String("error", msg))
	return nil
}
