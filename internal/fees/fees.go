package fees

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/apperr"
	"github.com/congo-pay/walletcore/internal/money"
)

// Operation is the kind of money movement a fee is charged on.
type Operation string

const (
	OperationWithdrawal  Operation = "withdrawal"
	OperationTransfer    Operation = "transfer"
	OperationBillPayment Operation = "bill_payment"
)

// ErrUnknownOperation is returned for an operation name with no fee schedule.
var ErrUnknownOperation = apperr.New(apperr.KindValidation, "UNKNOWN_OPERATION", "unknown fee operation")

// ParseOperation validates an operation name from a request.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OperationWithdrawal, OperationTransfer, OperationBillPayment:
		return op, nil
	}
	return "", ErrUnknownOperation
}

// Tier is the verification level of the paying subject.
type Tier string

const (
	TierApproved   Tier = "approved"
	TierUnapproved Tier = "unapproved"
)

// ErrUnknownTier is returned for a tier name other than approved or unapproved.
var ErrUnknownTier = apperr.New(apperr.KindValidation, "UNKNOWN_TIER", "unknown fee tier")

// ParseTier validates a tier name from a pricing file.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierApproved, TierUnapproved:
		return t, nil
	}
	return "", ErrUnknownTier
}

// TierFor derives the fee tier from a KYC status.
func TierFor(kycApproved bool) Tier {
	if kycApproved {
		return TierApproved
	}
	return TierUnapproved
}

// Rule is a percentage rate clamped to [Floor, Ceiling]. A zero Ceiling is unbounded.
type Rule struct {
	Rate    decimal.Decimal
	Floor   decimal.Decimal
	Ceiling decimal.Decimal
}

// Config is the fee table keyed by operation then tier.
type Config struct {
	Rules map[Operation]map[Tier]Rule
}

func rule(rate, floor, ceiling string) Rule {
	return Rule{
		Rate:    decimal.RequireFromString(rate),
		Floor:   decimal.RequireFromString(floor),
		Ceiling: decimal.RequireFromString(ceiling),
	}
}

// DefaultConfig returns the production fee table.
func DefaultConfig() Config {
	return Config{Rules: map[Operation]map[Tier]Rule{
		OperationWithdrawal: {
			TierApproved:   rule("1.0", "100", "5000"),
			TierUnapproved: rule("1.5", "150", "7500"),
		},
		OperationTransfer: {
			TierApproved:   rule("0.5", "25", "2500"),
			TierUnapproved: rule("1.0", "50", "5000"),
		},
		OperationBillPayment: {
			TierApproved:   rule("0.5", "50", "1000"),
			TierUnapproved: rule("1.0", "100", "2000"),
		},
	}}
}

type pricingFile struct {
	Fees map[string]map[string]struct {
		Rate    string `toml:"rate"`
		Floor   string `toml:"floor"`
		Ceiling string `toml:"ceiling"`
	} `toml:"fees"`
}

// LoadFile overlays rules from a TOML pricing file on top of base. Rules not present
// in the file keep their base values. Unknown operations and tiers are rejected.
func LoadFile(path string, base Config) (Config, error) {
	var file pricingFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return Config{}, fmt.Errorf("decode pricing file: %w", err)
	}

	merged := Config{Rules: make(map[Operation]map[Tier]Rule, len(base.Rules))}
	for op, tiers := range base.Rules {
		merged.Rules[op] = make(map[Tier]Rule, len(tiers))
		for tier, r := range tiers {
			merged.Rules[op][tier] = r
		}
	}

	for name, tiers := range file.Fees {
		op, err := ParseOperation(name)
		if err != nil {
			return Config{}, fmt.Errorf("fees.%s: %w", name, err)
		}
		if merged.Rules[op] == nil {
			merged.Rules[op] = make(map[Tier]Rule)
		}
		for tierName, raw := range tiers {
			tier, err := ParseTier(tierName)
			if err != nil {
				return Config{}, fmt.Errorf("fees.%s.%s: %w", name, tierName, err)
			}
			r, err := parseRule(raw.Rate, raw.Floor, raw.Ceiling)
			if err != nil {
				return Config{}, fmt.Errorf("fees.%s.%s: %w", name, tierName, err)
			}
			merged.Rules[op][tier] = r
		}
	}
	return merged, nil
}

func parseRule(rate, floor, ceiling string) (Rule, error) {
	var r Rule
	var err error
	if r.Rate, err = parseOrZero(rate); err != nil {
		return Rule{}, fmt.Errorf("rate: %w", err)
	}
	if r.Floor, err = parseOrZero(floor); err != nil {
		return Rule{}, fmt.Errorf("floor: %w", err)
	}
	if r.Ceiling, err = parseOrZero(ceiling); err != nil {
		return Rule{}, fmt.Errorf("ceiling: %w", err)
	}
	if r.Rate.IsNegative() || r.Floor.IsNegative() || r.Ceiling.IsNegative() {
		return Rule{}, fmt.Errorf("values must not be negative")
	}
	if r.Ceiling.IsPositive() && r.Ceiling.LessThan(r.Floor) {
		return Rule{}, fmt.Errorf("ceiling below floor")
	}
	return r, nil
}

func parseOrZero(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// Policy computes fees from an injected table. It holds no mutable state.
type Policy struct {
	cfg Config
}

// NewPolicy builds a fee policy.
func NewPolicy(cfg Config) *Policy {
	return &Policy{cfg: cfg}
}

// Fee returns clamp(amount * rate(tier), floor, ceiling) rounded to minor units.
// Operations or tiers absent from the table are free.
func (p *Policy) Fee(op Operation, tier Tier, amount decimal.Decimal) decimal.Decimal {
	r, ok := p.cfg.Rules[op][tier]
	if !ok {
		return decimal.Zero
	}
	return money.Round(money.Clamp(money.Percent(amount, r.Rate), r.Floor, r.Ceiling))
}

// Quote is a fee preview shown before an operation executes.
type Quote struct {
	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`
	Total  decimal.Decimal `json:"total"`
}

// Quote previews the fee and the total debited for op.
func (p *Policy) Quote(op Operation, tier Tier, amount decimal.Decimal) Quote {
	fee := p.Fee(op, tier, amount)
	return Quote{Amount: amount, Fee: fee, Total: amount.Add(fee)}
}
