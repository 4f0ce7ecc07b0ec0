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

package provider

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"course-ledger-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const SandboxName = "sandbox"

// Sandbox is an in-process provider for local development and tests.
// Transactions stay pending until Settle is called.
type Sandbox struct {
	mu           sync.RWMutex
	transactions map[string]models.PaymentStatus
	secret       string
	baseURL      string
	now          func() time.Time
}

func NewSandbox(secret, baseURL string) *Sandbox {
	return &Sandbox{
		transactions: make(map[string]models.PaymentStatus),
		secret:       secret,
		baseURL:      baseURL,
		now:          time.Now,
	}
}

func (s *Sandbox) Name() string { return SandboxName }

func (s *Sandbox) CreateIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	txId := "sbx_" + uuid.New().String()

	s.mu.Lock()
	s.transactions[txId] = models.PaymentStatusPending
	s.mu.Unlock()

	zap.L().Debug("Sandbox intent created", zap.String("transaction_id", txId), zap.String("reference", req.Reference))
	return &Intent{
		TransactionId: txId,
		RedirectURL:   fmt.Sprintf("%s/sandbox/checkout/%s", s.baseURL, txId),
	}, nil
}

func (s *Sandbox) GetStatus(_ context.Context, transactionId string) (*Status, error) {
	s.mu.RLock()
	outcome, ok := s.transactions[transactionId]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("sandbox transaction %s not found", transactionId)
	}
	return &Status{TransactionId: transactionId, Outcome: outcome, Payload: fmt.Sprintf(`{"status":%q}`, outcome)}, nil
}

// Settle fixes the outcome a later GetStatus reports.
func (s *Sandbox) Settle(transactionId string, outcome models.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[transactionId]; !ok {
		return fmt.Errorf("sandbox transaction %s not found", transactionId)
	}
	s.transactions[transactionId] = outcome
	return nil
}

// Sandbox webhooks use the same signing scheme as the card gateway.
func (s *Sandbox) VerifyWebhook(_ context.Context, header http.Header, body []byte) error {
	return VerifySignature(s.secret, header.Get(HeaderTimestamp), header.Get(HeaderSignature), body, s.now(), DefaultTolerance)
}

func (s *Sandbox) ParseWebhook(body []byte) (*WebhookEvent, error) {
	return parseIntentWebhook(body)
}
