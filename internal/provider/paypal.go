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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"course-ledger-go/internal/apperrors"
	"course-ledger-go/internal/models"

	"github.com/plutov/paypal/v4"
	"go.uber.org/zap"
)

const PayPalName = "paypal"

// PayPal order statuses
const (
	orderApproved             = "APPROVED"
	orderVoided               = "VOIDED"
	orderCompleted            = "COMPLETED"
	orderDeclined             = "DECLINED"
	orderFailed               = "FAILED"
	captureDeclinedIssue      = "INSTRUMENT_DECLINED"
	captureAlreadyDoneIssue   = "ORDER_ALREADY_CAPTURED"
	webhookCaptureCompleted   = "PAYMENT.CAPTURE.COMPLETED"
	webhookCaptureDenied      = "PAYMENT.CAPTURE.DENIED"
	webhookCaptureDeclined    = "PAYMENT.CAPTURE.DECLINED"
	webhookOrderApproved      = "CHECKOUT.ORDER.APPROVED"
	webhookOrderVoided        = "CHECKOUT.ORDER.VOIDED"
	webhookVerificationPassed = "SUCCESS"
)

type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	APIBase      string
	WebhookID    string
	ReturnURL    string
	CancelURL    string
}

// PayPal collects payments through PayPal Checkout orders. The order id is
// the provider transaction id.
type PayPal struct {
	client *paypal.Client
	cfg    PayPalConfig
}

func NewPayPal(cfg PayPalConfig, httpClient *http.Client) (*PayPal, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("paypal client id and secret are required")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = paypal.APIBaseSandBox
	}

	client, err := paypal.NewClient(cfg.ClientID, cfg.ClientSecret, cfg.APIBase)
	if err != nil {
		return nil, fmt.Errorf("unable to create paypal client: %w", err)
	}
	if httpClient != nil {
		client.SetHTTPClient(httpClient)
	}

	zap.L().Info("PayPal provider initialized", zap.String("api_base", cfg.APIBase))
	return &PayPal{client: client, cfg: cfg}, nil
}

func (p *PayPal) Name() string { return PayPalName }

func (p *PayPal) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	units := []paypal.PurchaseUnitRequest{
		{
			ReferenceID: req.Reference,
			CustomID:    req.Reference,
			Description: req.Title,
			Amount: &paypal.PurchaseUnitAmount{
				Currency: strings.ToUpper(req.Currency),
				Value:    req.Amount.StringFixed(2),
			},
		},
	}
	appCtx := &paypal.ApplicationContext{
		ReturnURL: withReference(p.cfg.ReturnURL, req.Reference),
		CancelURL: withReference(p.cfg.CancelURL, req.Reference),
	}

	order, err := p.client.CreateOrder(ctx, "CAPTURE", units, nil, appCtx)
	if err != nil {
		return nil, classifyPayPalError("create order", err)
	}

	approval := approvalURL(order)
	if approval == "" {
		return nil, fmt.Errorf("paypal order %s has no approval link", order.ID)
	}

	zap.L().Info("PayPal order created",
		zap.String("order_id", order.ID),
		zap.String("reference", req.Reference))
	return &Intent{TransactionId: order.ID, RedirectURL: approval}, nil
}

// GetStatus reads the order and captures it once the buyer has approved.
func (p *PayPal) GetStatus(ctx context.Context, transactionId string) (*Status, error) {
	order, err := p.client.GetOrder(ctx, transactionId)
	if err != nil {
		return nil, classifyPayPalError("get order", err)
	}

	status := &Status{TransactionId: transactionId, Outcome: orderOutcome(order.Status), Payload: encodePayload(order)}
	if order.Status != orderApproved {
		return status, nil
	}

	capture, err := p.client.CaptureOrder(ctx, transactionId, paypal.CaptureOrderRequest{})
	if err != nil {
		switch {
		case hasIssue(err, captureDeclinedIssue):
			zap.L().Info("PayPal capture declined", zap.String("order_id", transactionId))
			status.Outcome = models.PaymentStatusFailed
			status.Payload = err.Error()
			return status, nil
		case hasIssue(err, captureAlreadyDoneIssue):
			status.Outcome = models.PaymentStatusSucceeded
			return status, nil
		}
		return nil, classifyPayPalError("capture order", err)
	}

	status.Outcome = orderOutcome(capture.Status)
	status.Payload = encodePayload(capture)
	zap.L().Info("PayPal order captured",
		zap.String("order_id", transactionId),
		zap.String("status", capture.Status))
	return status, nil
}

func (p *PayPal) VerifyWebhook(ctx context.Context, header http.Header, body []byte) error {
	if p.cfg.WebhookID == "" {
		return fmt.Errorf("%w: paypal webhook id not configured", ErrInvalidSignature)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", io.NopCloser(bytes.NewReader(body)))
	if err != nil {
		return err
	}
	req.Header = header.Clone()

	resp, err := p.client.VerifyWebhookSignature(ctx, req, p.cfg.WebhookID)
	if err != nil {
		return classifyPayPalError("verify webhook", err)
	}
	if resp.VerificationStatus != webhookVerificationPassed {
		return fmt.Errorf("%w: verification status %s", ErrInvalidSignature, resp.VerificationStatus)
	}
	return nil
}

type paypalWebhook struct {
	Id        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		Id                string `json:"id"`
		Status            string `json:"status"`
		SupplementaryData struct {
			RelatedIds struct {
				OrderId string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// ParseWebhook maps checkout and capture events onto payment outcomes. An
// approved order is reported as pending so the caller settles it via GetStatus.
func (p *PayPal) ParseWebhook(body []byte) (*WebhookEvent, error) {
	var wh paypalWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("invalid paypal webhook payload: %w", err)
	}

	ev := &WebhookEvent{EventId: wh.Id, EventType: wh.EventType, Payload: string(body)}
	switch wh.EventType {
	case webhookCaptureCompleted:
		ev.TransactionId = wh.Resource.SupplementaryData.RelatedIds.OrderId
		ev.Outcome = models.PaymentStatusSucceeded
	case webhookCaptureDenied, webhookCaptureDeclined:
		ev.TransactionId = wh.Resource.SupplementaryData.RelatedIds.OrderId
		ev.Outcome = models.PaymentStatusFailed
	case webhookOrderApproved:
		ev.TransactionId = wh.Resource.Id
		ev.Outcome = models.PaymentStatusPending
	case webhookOrderVoided:
		ev.TransactionId = wh.Resource.Id
		ev.Outcome = models.PaymentStatusCancelled
	}
	return ev, nil
}

func orderOutcome(status string) models.PaymentStatus {
	switch status {
	case orderCompleted:
		return models.PaymentStatusSucceeded
	case orderVoided:
		return models.PaymentStatusCancelled
	case orderDeclined, orderFailed:
		return models.PaymentStatusFailed
	default:
		// CREATED, SAVED, APPROVED, PAYER_ACTION_REQUIRED
		return models.PaymentStatusPending
	}
}

func approvalURL(order *paypal.Order) string {
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return link.Href
		}
	}
	return ""
}

func withReference(base, reference string) string {
	if base == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "payment_id=" + reference
}

func hasIssue(err error, issue string) bool {
	var apiErr *paypal.ErrorResponse
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, d := range apiErr.Details {
		if d.Issue == issue {
			return true
		}
	}
	return false
}

// classifyPayPalError marks network failures, 5xx and 429 as retryable.
func classifyPayPalError(op string, err error) error {
	var apiErr *paypal.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		code := apiErr.Response.StatusCode
		if code >= http.StatusInternalServerError || code == http.StatusTooManyRequests {
			return apperrors.Withf(apperrors.ErrProviderUnavailable, "paypal %s: %s (%d)", op, apiErr.Message, code)
		}
		return apperrors.Withf(apperrors.ErrProviderRejected, "paypal %s: %s (%d)", op, apiErr.Message, code)
	}
	return apperrors.With(apperrors.ErrProviderUnavailable, fmt.Errorf("paypal %s: %w", op, err))
}

func encodePayload(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
