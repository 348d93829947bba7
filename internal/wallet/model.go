package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/ledger"
)

// Balance is the read view of a user's wallet.
type Balance struct {
	UserID         string          `json:"user_id"`
	Currency       string          `json:"currency"`
	Amount         decimal.Decimal `json:"balance"`
	LastActivityAt time.Time       `json:"last_activity_at"`
	AsOf           time.Time       `json:"as_of"`
}

// Entry is one line of a user's transaction history.
type Entry struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Direction    string          `json:"direction"`
	Counterparty string          `json:"counterparty,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Fee          decimal.Decimal `json:"fee"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
}

func entryFor(userID string, t ledger.Transaction) Entry {
	e := Entry{
		ID:          t.ID,
		Kind:        string(t.Kind),
		Amount:      t.Amount,
		Fee:         t.Fee,
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt,
		ProcessedAt: t.ProcessedAt,
	}
	if t.DestinationUserID == userID {
		e.Direction = "in"
		e.Counterparty = t.SourceUserID
		e.Fee = decimal.Zero
	} else {
		e.Direction = "out"
		e.Counterparty = t.DestinationUserID
	}
	return e
}
