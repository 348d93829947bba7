package investment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/money"
)

// EarlyWithdrawalPenaltyRate is the percentage of principal kept on early withdrawal.
var EarlyWithdrawalPenaltyRate = decimal.NewFromInt(10)

var twelveHundred = decimal.NewFromInt(1200)

// ExpectedReturn is simple interest: principal * annualRate * months / (100 * 12).
func ExpectedReturn(principal, annualRate decimal.Decimal, months int) decimal.Decimal {
	return money.Round(principal.Mul(annualRate).Mul(decimal.NewFromInt(int64(months))).Div(twelveHundred))
}

// InsuranceFee is the optional surcharge on principal.
func InsuranceFee(principal, rate decimal.Decimal) decimal.Decimal {
	return money.Percent(principal, rate)
}

// Penalty is charged against principal on early withdrawal.
func Penalty(principal decimal.Decimal) decimal.Decimal {
	return money.Percent(principal, EarlyWithdrawalPenaltyRate)
}

// MaturityDate adds the term to the purchase time.
func MaturityDate(purchasedAt time.Time, months int) time.Time {
	return purchasedAt.AddDate(0, months, 0)
}
