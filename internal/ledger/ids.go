package ledger

import (
	"time"

	"github.com/oklog/ulid/v2"
)

var kindPrefixes = map[Kind]string{
	KindDeposit:              "DEP",
	KindWithdrawal:           "WDR",
	KindTransfer:             "TRF",
	KindInvestmentPurchase:   "INV",
	KindInvestmentWithdrawal: "IVW",
	KindAgentCredit:          "AGT",
	KindBillPayment:          "BIL",
	KindRefund:               "RFD",
}

// NewTransactionID returns a sortable identifier such as TRF-01J9Z3K8Q4M2X7V5N0B6C1D8E2.
func NewTransactionID(kind Kind, at time.Time) string {
	prefix, ok := kindPrefixes[kind]
	if !ok {
		prefix = "TXN"
	}
	return prefix + "-" + ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}
