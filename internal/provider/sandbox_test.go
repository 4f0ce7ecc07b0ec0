package provider

import (
	"context"
	"testing"

	"course-ledger-go/internal/models"
)

func TestSandboxLifecycle(t *testing.T) {
	sbx := NewSandbox("secret", "http://localhost:8080")
	ctx := context.Background()

	intent, err := sbx.CreateIntent(ctx, IntentRequest{Reference: "pay-1"})
	if err != nil {
		t.Fatalf("Failed to create intent: %v", err)
	}

	status, err := sbx.GetStatus(ctx, intent.TransactionId)
	if err != nil {
		t.Fatalf("Failed to get status: %v", err)
	}
	if status.Outcome != models.PaymentStatusPending {
		t.Errorf("Expected pending, got %s", status.Outcome)
	}

	if err := sbx.Settle(intent.TransactionId, models.PaymentStatusSucceeded); err != nil {
		t.Fatalf("Failed to settle: %v", err)
	}
	status, err = sbx.GetStatus(ctx, intent.TransactionId)
	if err != nil {
		t.Fatalf("Failed to get status: %v", err)
	}
	if status.Outcome != models.PaymentStatusSucceeded {
		t.Errorf("Expected succeeded, got %s", status.Outcome)
	}

	if err := sbx.Settle("unknown", models.PaymentStatusFailed); err == nil {
		t.Errorf("Expected error for unknown transaction")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	sbx := NewSandbox("secret", "")
	reg.Register(sbx, "card", "Sandbox")

	p, err := reg.ForMethod("CARD")
	if err != nil {
		t.Fatalf("Expected card to resolve, got %v", err)
	}
	if p.Name() != SandboxName {
		t.Errorf("Expected sandbox, got %s", p.Name())
	}

	if _, err := reg.ForMethod("crypto"); err == nil {
		t.Errorf("Expected error for unknown method")
	}

	if _, err := reg.Webhooks(SandboxName); err != nil {
		t.Errorf("Expected sandbox to accept webhooks, got %v", err)
	}

	methods := reg.Methods()
	if len(methods) != 2 || methods[0] != "card" || methods[1] != "sandbox" {
		t.Errorf("Expected [card sandbox], got %v", methods)
	}
}
