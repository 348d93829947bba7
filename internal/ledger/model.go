package ledger

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the business operation a transaction records.
type Kind string

const (
	KindDeposit              Kind = "deposit"
	KindWithdrawal           Kind = "withdrawal"
	KindTransfer             Kind = "transfer"
	KindInvestmentPurchase   Kind = "investment_purchase"
	KindInvestmentWithdrawal Kind = "investment_withdrawal"
	KindAgentCredit          Kind = "agent_credit"
	KindBillPayment          Kind = "bill_payment"
	KindRefund               Kind = "refund"
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further status change is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Wallet holds a user's single balance.
type Wallet struct {
	UserID         string
	Currency       string
	Balance        decimal.Decimal
	LastActivityAt time.Time
	CreatedAt      time.Time
}

// Transaction is the audit record of a money movement. Amount, Fee and the parties
// never change once the row exists; only Status (once) and annotations do.
type Transaction struct {
	ID                string
	Kind              Kind
	SourceUserID      string
	DestinationUserID string
	Amount            decimal.Decimal
	Fee               decimal.Decimal
	NetAmount         decimal.Decimal
	Status            Status
	Metadata          map[string]any
	GatewayPayload    json.RawMessage
	CreatedAt         time.Time
	ProcessedAt       *time.Time
}

// Draft is the input to RecordTransaction.
type Draft struct {
	Kind              Kind
	SourceUserID      string
	DestinationUserID string
	Amount            decimal.Decimal
	Fee               decimal.Decimal
	NetAmount         decimal.Decimal
	Status            Status
	Metadata          map[string]any
}

// IntentStatus mirrors the gateway's view of a payment intent.
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentSucceeded IntentStatus = "succeeded"
	IntentFailed    IntentStatus = "failed"
	IntentCanceled  IntentStatus = "canceled"
	IntentRefunded  IntentStatus = "refunded"
)

// PaymentIntent links a transaction to the gateway intent that funds it.
type PaymentIntent struct {
	IntentID      string
	TransactionID string
	UserID        string
	Amount        decimal.Decimal
	Currency      string
	Status        IntentStatus
	// RefundedTotal is the cumulative amount already debited back for this intent.
	RefundedTotal decimal.Decimal
	LastPayload   json.RawMessage
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InvestmentStatus is the lifecycle state of an investment.
type InvestmentStatus string

const (
	InvestmentActive    InvestmentStatus = "ACTIVE"
	InvestmentWithdrawn InvestmentStatus = "WITHDRAWN"
	InvestmentMatured   InvestmentStatus = "MATURED"
)

// Investment is a fixed-term placement. AnnualRate is locked at purchase.
type Investment struct {
	ID              string
	UserID          string
	ProductID       string
	Principal       decimal.Decimal
	AnnualRate      decimal.Decimal
	DurationMonths  int
	InsuranceFee    decimal.Decimal
	ExpectedReturn  decimal.Decimal
	Status          InvestmentStatus
	PurchasedAt     time.Time
	MaturesAt       time.Time
	ClosedAt        *time.Time
	Penalty         decimal.Decimal
	ForfeitedReturn decimal.Decimal
	AmountReturned  decimal.Decimal
	TransactionID   string
}
