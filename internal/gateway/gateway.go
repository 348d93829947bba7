// Package gateway talks to the external card payment gateway: intent creation, status
// retrieval and webhook authentication.
package gateway

import (
	"context"
	"encoding/json"

	"github.com/congo-pay/walletcore/internal/apperr"
)

// Status is the gateway's view of a payment intent.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

var (
	ErrUnavailable      = apperr.New(apperr.KindExternal, "GATEWAY_UNAVAILABLE", "payment gateway unavailable, retry later")
	ErrRejected         = apperr.New(apperr.KindValidation, "GATEWAY_REJECTED", "payment gateway rejected the request")
	ErrUnknownIntent    = apperr.New(apperr.KindNotFound, "INTENT_NOT_FOUND", "payment intent not found at gateway")
	ErrInvalidSignature = apperr.New(apperr.KindValidation, "INVALID_SIGNATURE", "webhook signature verification failed")
	ErrMalformedEvent   = apperr.New(apperr.KindValidation, "MALFORMED_EVENT", "webhook payload could not be parsed")
)

// CreateIntentRequest opens a payment intent. Amount is in minor units.
type CreateIntentRequest struct {
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Reference string            `json:"reference"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Intent is a payment intent as reported by the gateway. Raw keeps the exact payload
// for audit storage.
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       Status            `json:"status"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Raw          json.RawMessage   `json:"-"`
}

// Gateway is the contract the reconciler depends on.
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (Intent, error)
}
