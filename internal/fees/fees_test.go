package fees

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPolicyFee(t *testing.T) {
	p := NewPolicy(DefaultConfig())

	tests := []struct {
		name   string
		op     Operation
		tier   Tier
		amount string
		want   string
	}{
		{"withdrawal approved rate", OperationWithdrawal, TierApproved, "20000", "200"},
		{"withdrawal approved floor", OperationWithdrawal, TierApproved, "500", "100"},
		{"withdrawal approved ceiling", OperationWithdrawal, TierApproved, "10000000", "5000"},
		{"withdrawal unapproved rate", OperationWithdrawal, TierUnapproved, "20000", "300"},
		{"transfer approved rounding", OperationTransfer, TierApproved, "10001.01", "50.01"},
		{"transfer unapproved floor", OperationTransfer, TierUnapproved, "100", "50"},
		{"bill payment approved", OperationBillPayment, TierApproved, "30000", "150"},
		{"unknown operation is free", Operation("airtime"), TierApproved, "30000", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Fee(tt.op, tt.tier, decimal.RequireFromString(tt.amount))
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("fee = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestQuoteMatchesFee(t *testing.T) {
	p := NewPolicy(DefaultConfig())
	amount := decimal.NewFromInt(12_345)
	q := p.Quote(OperationTransfer, TierApproved, amount)
	if !q.Fee.Equal(p.Fee(OperationTransfer, TierApproved, amount)) {
		t.Fatalf("quote fee diverges from policy fee")
	}
	if !q.Total.Equal(amount.Add(q.Fee)) {
		t.Fatalf("unexpected total %s", q.Total)
	}
}

func TestInjectedTableIsDeterministic(t *testing.T) {
	p := NewPolicy(Config{Rules: map[Operation]map[Tier]Rule{
		OperationTransfer: {TierApproved: {Rate: decimal.NewFromInt(2)}},
	}})
	if got := p.Fee(OperationTransfer, TierApproved, decimal.NewFromInt(1_000)); !got.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("fee = %s, want 20", got)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.toml")
	content := `
[fees.transfer.approved]
rate = "0.25"
floor = "10"
ceiling = "1000"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write pricing file: %v", err)
	}

	cfg, err := LoadFile(path, DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p := NewPolicy(cfg)
	if got := p.Fee(OperationTransfer, TierApproved, decimal.NewFromInt(20_000)); !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("overridden fee = %s, want 50", got)
	}
	if got := p.Fee(OperationWithdrawal, TierApproved, decimal.NewFromInt(20_000)); !got.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("default fee = %s, want 200", got)
	}
}

func TestLoadFileRejectsInvertedClamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.toml")
	content := `
[fees.withdrawal.approved]
rate = "1"
floor = "500"
ceiling = "100"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write pricing file: %v", err)
	}
	if _, err := LoadFile(path, DefaultConfig()); err == nil {
		t.Fatalf("expected error for ceiling below floor")
	}
}

func TestLoadFileRejectsUnknownNames(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    error
	}{
		{"misspelled operation", "[fees.transfers.approved]\nrate = \"0.5\"\n", ErrUnknownOperation},
		{"misspelled tier", "[fees.transfer.aproved]\nrate = \"0.5\"\n", ErrUnknownTier},
		{"extra tier", "[fees.withdrawal.premium]\nrate = \"0.1\"\n", ErrUnknownTier},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pricing.toml")
			if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
				t.Fatalf("write pricing file: %v", err)
			}
			if _, err := LoadFile(path, DefaultConfig()); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseOperation(t *testing.T) {
	if op, err := ParseOperation("transfer"); err != nil || op != OperationTransfer {
		t.Fatalf("ParseOperation(transfer) = %q, %v", op, err)
	}
	if _, err := ParseOperation("lottery"); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected unknown operation, got %v", err)
	}
}
