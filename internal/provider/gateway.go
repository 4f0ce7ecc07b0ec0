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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"course-ledger-go/internal/apperrors"
	"course-ledger-go/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const GatewayName = "gateway"

type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
}

// Gateway talks to a card processor exposing a payment-intents REST API
type Gateway struct {
	client *resty.Client
	cfg    GatewayConfig
	now    func() time.Time
}

type gatewayIntentRequest struct {
	Amount    string            `json:"amount"`
	Currency  string            `json:"currency"`
	Reference string            `json:"reference"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type gatewayIntent struct {
	Id           string `json:"id"`
	Status       string `json:"status"`
	RedirectURL  string `json:"redirect_url"`
	ClientSecret string `json:"client_secret"`
}

type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type gatewayWebhook struct {
	Id   string        `json:"id"`
	Type string        `json:"type"`
	Data gatewayIntent `json:"data"`
}

func NewGateway(cfg GatewayConfig, httpClient *http.Client) (*Gateway, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base url is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	client := resty.NewWithClient(httpClient).
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetError(&gatewayError{})
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &Gateway{client: client, cfg: cfg, now: time.Now}, nil
}

func (g *Gateway) Name() string { return GatewayName }

func (g *Gateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	var out gatewayIntent
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.Reference).
		SetBody(gatewayIntentRequest{
			Amount:    req.Amount.StringFixed(2),
			Currency:  req.Currency,
			Reference: req.Reference,
			Metadata:  map[string]string{"user_id": req.UserId, "course_id": req.CourseId},
		}).
		SetResult(&out).
		Post("/v1/payment_intents")
	if err := classifyGatewayResponse("create intent", resp, err); err != nil {
		return nil, err
	}
	if out.Id == "" {
		return nil, fmt.Errorf("gateway create intent: response missing id")
	}

	zap.L().Info("Gateway intent created",
		zap.String("intent_id", out.Id),
		zap.String("reference", req.Reference))
	return &Intent{TransactionId: out.Id, RedirectURL: out.RedirectURL, ClientSecret: out.ClientSecret}, nil
}

func (g *Gateway) GetStatus(ctx context.Context, transactionId string) (*Status, error) {
	var out gatewayIntent
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("id", transactionId).
		SetResult(&out).
		Get("/v1/payment_intents/{id}")
	if err := classifyGatewayResponse("get intent", resp, err); err != nil {
		return nil, err
	}

	return &Status{TransactionId: transactionId, Outcome: gatewayOutcome(out.Status), Payload: string(resp.Body())}, nil
}

func (g *Gateway) VerifyWebhook(_ context.Context, header http.Header, body []byte) error {
	return VerifySignature(g.cfg.WebhookSecret, header.Get(HeaderTimestamp), header.Get(HeaderSignature), body, g.now(), DefaultTolerance)
}

func (g *Gateway) ParseWebhook(body []byte) (*WebhookEvent, error) {
	return parseIntentWebhook(body)
}

func parseIntentWebhook(body []byte) (*WebhookEvent, error) {
	var wh gatewayWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("invalid gateway webhook payload: %w", err)
	}

	ev := &WebhookEvent{EventId: wh.Id, EventType: wh.Type, TransactionId: wh.Data.Id, Payload: string(body)}
	switch wh.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		ev.Outcome = gatewayOutcome(wh.Data.Status)
	}
	return ev, nil
}

func gatewayOutcome(status string) models.PaymentStatus {
	switch status {
	case "succeeded":
		return models.PaymentStatusSucceeded
	case "failed", "payment_failed":
		return models.PaymentStatusFailed
	case "canceled", "cancelled":
		return models.PaymentStatusCancelled
	default:
		return models.PaymentStatusPending
	}
}

// classifyGatewayResponse marks network failures, 5xx and 429 as retryable.
func classifyGatewayResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("gateway %s: %w", op, err)
		}
		return apperrors.With(apperrors.ErrProviderUnavailable, fmt.Errorf("gateway %s: %w", op, err))
	}
	if !resp.IsError() {
		return nil
	}

	msg := resp.Status()
	if e, ok := resp.Error().(*gatewayError); ok && e.Message != "" {
		msg = e.Message
	}
	code := resp.StatusCode()
	if code >= http.StatusInternalServerError || code == http.StatusTooManyRequests {
		return apperrors.Withf(apperrors.ErrProviderUnavailable, "gateway %s: %s (%d)", op, msg, code)
	}
	return apperrors.Withf(apperrors.ErrProviderRejected, "gateway %s: %s (%d)", op, msg, code)
}
