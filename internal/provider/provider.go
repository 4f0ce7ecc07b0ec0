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
	"sort"
	"strings"

	"course-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// IntentRequest describes the purchase the provider should collect for.
// Reference is our payment id and doubles as the provider idempotency key.
type IntentRequest struct {
	Reference string
	UserId    string
	CourseId  string
	Title     string
	Amount    decimal.Decimal
	Currency  string
}

// Intent is the provider's handle for a purchase
type Intent struct {
	TransactionId string
	RedirectURL   string
	ClientSecret  string
}

// Status is a provider-reported outcome. Outcome is pending while the
// provider has not settled the transaction.
type Status struct {
	TransactionId string
	Outcome       models.PaymentStatus
	Payload       string
}

// WebhookEvent is a parsed provider notification. An empty Outcome means the
// event type carries no payment outcome and can be acknowledged and ignored.
type WebhookEvent struct {
	EventId       string
	EventType     string
	TransactionId string
	Outcome       models.PaymentStatus
	Payload       string
}

// Provider is an external payment processor
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	GetStatus(ctx context.Context, transactionId string) (*Status, error)
}

// WebhookHandler is implemented by providers that push notifications.
type WebhookHandler interface {
	VerifyWebhook(ctx context.Context, header http.Header, body []byte) error
	ParseWebhook(body []byte) (*WebhookEvent, error)
}

// Registry resolves providers by payment method and by name
type Registry struct {
	byMethod map[string]Provider
	byName   map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		byMethod: make(map[string]Provider),
		byName:   make(map[string]Provider),
	}
}

// Register binds p to each of the given payment methods.
func (r *Registry) Register(p Provider, methods ...string) {
	r.byName[p.Name()] = p
	for _, m := range methods {
		r.byMethod[strings.ToLower(m)] = p
	}
}

func (r *Registry) ForMethod(method string) (Provider, error) {
	p, ok := r.byMethod[strings.ToLower(method)]
	if !ok {
		return nil, fmt.Errorf("unsupported payment method %q", method)
	}
	return p, nil
}

func (r *Registry) ByName(name string) (Provider, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown payment provider %q", name)
	}
	return p, nil
}

// Webhooks returns the webhook handler registered under name.
func (r *Registry) Webhooks(name string) (WebhookHandler, error) {
	p, err := r.ByName(name)
	if err != nil {
		return nil, err
	}
	h, ok := p.(WebhookHandler)
	if !ok {
		return nil, fmt.Errorf("provider %q does not accept webhooks", name)
	}
	return h, nil
}

// Methods lists the registered payment methods in sorted order.
func (r *Registry) Methods() []string {
	methods := make([]string, 0, len(r.byMethod))
	for m := range r.byMethod {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}
