package funding

import "github.com/shopspring/decimal"

// CreateIntentRequest captures a card deposit request.
type CreateIntentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// webhookAck is the fixed acknowledgement returned to the gateway.
type webhookAck struct {
	Received bool `json:"received"`
}
