package gateway

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testSecret = "whsec_test"

func TestParseEventAcceptsValidSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":1000000,"currency":"xaf","status":"succeeded"}}}`)
	now := time.Unix(1_760_000_000, 0)

	event, err := ParseEvent(payload, Sign(testSecret, payload, now), testSecret, 5*time.Minute, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Kind() != EventSucceeded || event.IntentID() != "pi_1" || string(event.Raw) != string(payload) {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestParseEventRejections(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)
	now := time.Unix(1_760_000_000, 0)
	header := Sign(testSecret, payload, now)

	tests := []struct {
		name    string
		payload []byte
		header  string
		secret  string
		at      time.Time
	}{
		{"tampered payload", []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_2"}}}`), header, testSecret, now},
		{"wrong secret", payload, header, "other", now},
		{"stale timestamp", payload, header, testSecret, now.Add(10 * time.Minute)},
		{"missing header", payload, "", testSecret, now},
		{"no secret configured", payload, header, "", now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseEvent(tt.payload, tt.header, tt.secret, 5*time.Minute, tt.at); !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("expected invalid signature, got %v", err)
			}
		})
	}
}

func TestRefundEventReferencesIntent(t *testing.T) {
	payload := []byte(`{"id":"evt_9","type":"charge.refunded","data":{"object":{"id":"ch_1","payment_intent":"pi_7","amount_refunded":500}}}`)
	now := time.Unix(1_760_000_000, 0)
	event, err := ParseEvent(payload, Sign(testSecret, payload, now), testSecret, time.Minute, now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Kind() != EventRefunded || event.IntentID() != "pi_7" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestSimulatorLifecycle(t *testing.T) {
	sim := NewSimulator(false)
	ctx := context.Background()

	intent, err := sim.CreateIntent(ctx, CreateIntentRequest{Amount: 500, Currency: "XAF", Reference: "DEP-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if intent.Status != StatusPending || intent.ClientSecret == "" {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if _, err := sim.SetStatus(intent.ID, StatusSucceeded); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, _ := sim.RetrieveIntent(ctx, intent.ID)
	if got.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", got.Status)
	}
	if _, err := sim.RetrieveIntent(ctx, "pi_missing"); !errors.Is(err, ErrUnknownIntent) {
		t.Fatalf("expected unknown intent, got %v", err)
	}
}
