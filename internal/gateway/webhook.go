package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the webhook signature: "t=<unix>,v1=<hex hmac>".
const SignatureHeader = "Gateway-Signature"

// EventKind is the reconciler-facing classification of a webhook event.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventSucceeded
	EventFailed
	EventCanceled
	EventRefunded
)

var eventKinds = map[string]EventKind{
	"payment_intent.succeeded":      EventSucceeded,
	"payment_intent.payment_failed": EventFailed,
	"payment_intent.canceled":       EventCanceled,
	"charge.refunded":               EventRefunded,
}

// EventObject is the subset of the event's data object the reconciler reads. Intent
// events carry the intent id in ID; charge events reference it via PaymentIntent.
type EventObject struct {
	ID             string `json:"id"`
	PaymentIntent  string `json:"payment_intent,omitempty"`
	Amount         int64  `json:"amount"`
	AmountRefunded int64  `json:"amount_refunded,omitempty"`
	Currency       string `json:"currency"`
	Status         Status `json:"status"`
}

// Event is a verified webhook delivery.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object EventObject `json:"object"`
	} `json:"data"`
	Raw json.RawMessage `json:"-"`
}

// Kind classifies the event type.
func (e Event) Kind() EventKind {
	return eventKinds[e.Type]
}

// IntentID returns the payment intent the event refers to.
func (e Event) IntentID() string {
	if e.Data.Object.PaymentIntent != "" {
		return e.Data.Object.PaymentIntent
	}
	return e.Data.Object.ID
}

// Sign computes the signature header value for payload at t.
func Sign(secret string, payload []byte, t time.Time) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac(secret, ts, payload))
}

// ParseEvent authenticates payload against header and decodes it. Signatures older
// or newer than tolerance relative to now are rejected.
func ParseEvent(payload []byte, header, secret string, tolerance time.Duration, now time.Time) (Event, error) {
	if secret == "" {
		return Event{}, fmt.Errorf("webhook secret not configured: %w", ErrInvalidSignature)
	}
	ts, sigs := parseHeader(header)
	if ts == "" || len(sigs) == 0 {
		return Event{}, ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Event{}, ErrInvalidSignature
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(unix, 0))
		if age > tolerance || age < -tolerance {
			return Event{}, fmt.Errorf("signature timestamp outside tolerance: %w", ErrInvalidSignature)
		}
	}

	expected := mac(secret, ts, payload)
	valid := false
	for _, sig := range sigs {
		got, err := hex.DecodeString(sig)
		if err == nil && hmac.Equal(got, expected) {
			valid = true
			break
		}
	}
	if !valid {
		return Event{}, ErrInvalidSignature
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, fmt.Errorf("%v: %w", err, ErrMalformedEvent)
	}
	if event.IntentID() == "" {
		return Event{}, ErrMalformedEvent
	}
	event.Raw = append(json.RawMessage(nil), payload...)
	return event, nil
}

func parseHeader(header string) (string, []string) {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	return ts, sigs
}

func mac(secret, ts string, payload []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(ts))
	h.Write([]byte("."))
	h.Write(payload)
	return h.Sum(nil)
}
