package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"course-ledger-go/internal/models"
)

func newPayPalTestServer(t *testing.T, orderStatus string, captured *bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/v1/oauth2/token":
			_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
		case strings.HasSuffix(r.URL.Path, "/capture"):
			*captured = true
			_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"COMPLETED"}`))
		case strings.HasPrefix(r.URL.Path, "/v2/checkout/orders/"):
			_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"` + orderStatus + `"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestPayPalGetStatusCapturesApprovedOrders(t *testing.T) {
	tests := []struct {
		orderStatus string
		expected    models.PaymentStatus
		capture     bool
	}{
		{"CREATED", models.PaymentStatusPending, false},
		{"APPROVED", models.PaymentStatusSucceeded, true},
		{"COMPLETED", models.PaymentStatusSucceeded, false},
		{"VOIDED", models.PaymentStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.orderStatus, func(t *testing.T) {
			captured := false
			server := newPayPalTestServer(t, tt.orderStatus, &captured)
			defer server.Close()

			pp, err := NewPayPal(PayPalConfig{ClientID: "id", ClientSecret: "secret", APIBase: server.URL}, server.Client())
			if err != nil {
				t.Fatalf("Failed to create paypal provider: %v", err)
			}

			status, err := pp.GetStatus(context.Background(), "ORDER-1")
			if err != nil {
				t.Fatalf("Failed to get status: %v", err)
			}
			if status.Outcome != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, status.Outcome)
			}
			if captured != tt.capture {
				t.Errorf("Expected capture=%v, got %v", tt.capture, captured)
			}
		})
	}
}

func TestPayPalParseWebhook(t *testing.T) {
	pp := &PayPal{}

	tests := []struct {
		name     string
		body     string
		txId     string
		expected models.PaymentStatus
	}{
		{"capture completed", `{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1","supplementary_data":{"related_ids":{"order_id":"ORDER-1"}}}}`, "ORDER-1", models.PaymentStatusSucceeded},
		{"capture denied", `{"id":"WH-2","event_type":"PAYMENT.CAPTURE.DENIED","resource":{"id":"CAP-1","supplementary_data":{"related_ids":{"order_id":"ORDER-1"}}}}`, "ORDER-1", models.PaymentStatusFailed},
		{"order approved", `{"id":"WH-3","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"ORDER-1"}}`, "ORDER-1", models.PaymentStatusPending},
		{"order voided", `{"id":"WH-4","event_type":"CHECKOUT.ORDER.VOIDED","resource":{"id":"ORDER-1"}}`, "ORDER-1", models.PaymentStatusCancelled},
		{"unrelated", `{"id":"WH-5","event_type":"BILLING.PLAN.CREATED","resource":{"id":"P-1"}}`, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := pp.ParseWebhook([]byte(tt.body))
			if err != nil {
				t.Fatalf("Failed to parse: %v", err)
			}
			if ev.TransactionId != tt.txId || ev.Outcome != tt.expected {
				t.Errorf("Expected %s/%s, got %s/%s", tt.txId, tt.expected, ev.TransactionId, ev.Outcome)
			}
		})
	}

	if _, err := pp.ParseWebhook([]byte("not json")); err == nil {
		t.Errorf("Expected error for invalid payload")
	}
}

func TestWithReference(t *testing.T) {
	if got := withReference("https://app.example/return", "pay-1"); got != "https://app.example/return?payment_id=pay-1" {
		t.Errorf("Unexpected url %s", got)
	}
	if got := withReference("https://app.example/return?src=pp", "pay-1"); got != "https://app.example/return?src=pp&payment_id=pay-1" {
		t.Errorf("Unexpected url %s", got)
	}
	if got := withReference("", "pay-1"); got != "" {
		t.Errorf("Expected empty url, got %s", got)
	}
}
