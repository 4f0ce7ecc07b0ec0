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

package outbox

import (
	"context"
	"fmt"
	"time"

	"course-ledger-go/internal/store"

	"go.uber.org/zap"
)

// PublisherConfig contains configuration for Publisher
type PublisherConfig struct {
	DbService    store.LedgerStore
	Producer     Producer
	Topic        string
	PollInterval time.Duration
	BatchSize    int
}

// Publisher drains pending outbox rows to the producer. Delivery is at
// least once: a crash between produce and mark re-sends the event.
type Publisher struct {
	dbService    store.LedgerStore
	producer     Producer
	topic        string
	pollInterval time.Duration
	batchSize    int

	stopChan chan struct{}
	doneChan chan struct{}
	now      func() time.Time
}

func NewPublisher(cfg PublisherConfig) *Publisher {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	return &Publisher{
		dbService:    cfg.DbService,
		producer:     cfg.Producer,
		topic:        cfg.Topic,
		pollInterval: cfg.PollInterval,
		batchSize:    batch,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
		now:          time.Now,
	}
}

// Start begins draining the outbox on the configured interval
func (p *Publisher) Start(ctx context.Context) error {
	if p.pollInterval <= 0 {
		return fmt.Errorf("outbox poll interval must be positive")
	}
	if p.topic == "" {
		return fmt.Errorf("outbox topic is required")
	}

	go p.run(ctx)

	zap.L().Info("Outbox publisher started",
		zap.String("topic", p.topic),
		zap.Duration("poll_interval", p.pollInterval))
	return nil
}

// Stop waits for the current batch and closes the producer
func (p *Publisher) Stop() {
	zap.L().Info("Stopping outbox publisher")
	close(p.stopChan)
	<-p.doneChan

	if err := p.producer.Close(); err != nil {
		zap.L().Warn("Failed to close producer", zap.Error(err))
	}
	zap.L().Info("Outbox publisher stopped")
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := p.PublishPending(ctx); err != nil {
				zap.L().Error("Failed to publish outbox events", zap.Error(err))
			}
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// PublishPending sends one batch in creation order and returns how many
// were delivered. It stops at the first failed delivery so events with the
// same key keep their order.
func (p *Publisher) PublishPending(ctx context.Context) (int, error) {
	events, err := p.dbService.ListPendingOutboxEvents(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list outbox events: %w", err)
	}

	sent := 0
	for _, ev := range events {
		headers := map[string]string{
			"event_id":   ev.Id,
			"event_type": ev.EventType,
		}
		if err := p.producer.Produce(ctx, p.topic, ev.Key, ev.Payload, headers); err != nil {
			if markErr := p.dbService.MarkOutboxEventFailed(ctx, ev.Id, err); markErr != nil {
				zap.L().Error("Failed to record outbox failure", zap.String("event_id", ev.Id), zap.Error(markErr))
			}
			zap.L().Warn("Outbox delivery failed",
				zap.String("event_id", ev.Id),
				zap.String("event_type", ev.EventType),
				zap.Int("attempts", ev.Attempts+1),
				zap.Error(err))
			return sent, nil
		}

		if err := p.dbService.MarkOutboxEventSent(ctx, ev.Id, p.now().UTC()); err != nil {
			return sent, err
		}
		sent++
	}

	if sent > 0 {
		zap.L().Debug("Published outbox events", zap.Int("count", sent))
	}
	return sent, nil
}
