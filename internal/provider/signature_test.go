package provider

import (
	"errors"
	"testing"
	"time"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	now := time.Unix(1_700_000_000, 0)
	sig := Sign(secret, now.Unix(), body)

	tests := []struct {
		name      string
		secret    string
		timestamp string
		signature string
		body      []byte
		wantErr   bool
	}{
		{"valid", secret, "1700000000", sig, body, false},
		{"tampered body", secret, "1700000000", sig, []byte(`{"id":"evt_2"}`), true},
		{"wrong secret", "other", "1700000000", sig, body, true},
		{"stale timestamp", secret, "1699999000", Sign(secret, 1_699_999_000, body), body, true},
		{"bad timestamp", secret, "yesterday", sig, body, true},
		{"no secret", "", "1700000000", sig, body, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.secret, tt.timestamp, tt.signature, tt.body, now, DefaultTolerance)
			if tt.wantErr && !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("Expected ErrInvalidSignature, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}
