package investment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/logging"
	"github.com/congo-pay/walletcore/internal/otp"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	clock   *clock
	ledger  *ledger.Ledger
	gate    *otp.Gate
	catalog Catalog
	service *Service
}

func newFixture(t *testing.T, balance int64) *fixture {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	l := ledger.New(ledger.NewMemoryBackend(), ledger.WithClock(clk.Now))
	gate := otp.NewGate(otp.NewMemoryStore(), otp.DefaultConfig(), nil, logging.Discard(), otp.WithClock(clk.Now))
	catalog := NewMemoryCatalog(DefaultProducts()...)
	svc := NewService(l, catalog, gate, nil, "XAF", logging.Discard(), WithClock(clk.Now))

	ctx := context.Background()
	if _, err := l.OpenWallet(ctx, "u1", "XAF"); err != nil {
		t.Fatalf("open wallet: %v", err)
	}
	if balance > 0 {
		if _, err := l.CreditAtomic(ctx, "u1", decimal.NewFromInt(balance)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return &fixture{clock: clk, ledger: l, gate: gate, catalog: catalog, service: svc}
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	w, err := f.ledger.Wallet(context.Background(), "u1")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	return w.Balance
}

func (f *fixture) code(t *testing.T) string {
	t.Helper()
	issued, err := f.gate.Issue(context.Background(), "u1", otp.PurposeInvestment)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return issued.Code
}

func TestPurchaseLocksRateAndDebitsSurcharge(t *testing.T) {
	f := newFixture(t, 50_000)
	ctx := context.Background()

	q, err := f.service.Quote(ctx, "growth-12m", decimal.NewFromInt(10_000), true)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	receipt, err := f.service.Purchase(ctx, PurchaseInput{UserID: "u1", ProductID: "growth-12m", Amount: decimal.NewFromInt(10_000), Insured: true})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	inv := receipt.Investment
	if !inv.ExpectedReturn.Equal(q.ExpectedReturn) || !inv.InsuranceFee.Equal(q.InsuranceFee) || !inv.MaturesAt.Equal(q.MaturesAt) {
		t.Fatalf("purchase %+v differs from quote %+v", inv, q)
	}
	if !inv.ExpectedReturn.Equal(decimal.NewFromInt(900)) || !inv.InsuranceFee.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected amounts %+v", inv)
	}
	if got := f.balance(t); !got.Equal(decimal.NewFromInt(39_900)) {
		t.Fatalf("balance %s, want 39900", got)
	}

	rec, _ := f.ledger.Transaction(ctx, receipt.TransactionID)
	if rec.Kind != ledger.KindInvestmentPurchase || rec.Metadata["investment_id"] != inv.ID {
		t.Fatalf("unexpected record %+v", rec)
	}

	// A later rate change leaves the open investment untouched.
	products := DefaultProducts()
	products[1].AnnualRate = decimal.NewFromInt(20)
	f.service.catalog = NewMemoryCatalog(products...)
	stored, _ := f.ledger.Investment(ctx, inv.ID)
	if !stored.AnnualRate.Equal(decimal.NewFromInt(9)) || !stored.ExpectedReturn.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("rate change leaked into open investment: %+v", stored)
	}
}

func TestPurchaseValidation(t *testing.T) {
	f := newFixture(t, 1_000_000)
	ctx := context.Background()

	cases := []struct {
		name string
		in   PurchaseInput
		want error
	}{
		{"unknown product", PurchaseInput{UserID: "u1", ProductID: "nope", Amount: decimal.NewFromInt(10_000)}, ErrProductNotFound},
		{"below minimum", PurchaseInput{UserID: "u1", ProductID: "savings-6m", Amount: decimal.NewFromInt(100)}, ErrAmountOutOfRange},
		{"above maximum", PurchaseInput{UserID: "u1", ProductID: "savings-6m", Amount: decimal.NewFromInt(6_000_000)}, ErrAmountOutOfRange},
		{"insurance not offered", PurchaseInput{UserID: "u1", ProductID: "savings-6m", Amount: decimal.NewFromInt(10_000), Insured: true}, ErrInsuranceNotOffered},
		{"zero amount", PurchaseInput{UserID: "u1", ProductID: "savings-6m"}, ledger.ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.service.Purchase(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	poor := newFixture(t, 1_000)
	if _, err := poor.service.Purchase(ctx, PurchaseInput{UserID: "u1", ProductID: "savings-6m", Amount: decimal.NewFromInt(5_000)}); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if invs, _ := poor.service.List(ctx, "u1"); len(invs) != 0 {
		t.Fatalf("failed purchase left %d investments", len(invs))
	}
}

func TestEarlyWithdrawalKeepsPenalty(t *testing.T) {
	f := newFixture(t, 10_000)
	ctx := context.Background()
	receipt, err := f.service.Purchase(ctx, PurchaseInput{UserID: "u1", ProductID: "growth-12m", Amount: decimal.NewFromInt(10_000)})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	id := receipt.Investment.ID
	f.clock.Advance(30 * 24 * time.Hour)

	q, err := f.service.WithdrawalQuote(ctx, "u1", id)
	if err != nil {
		t.Fatalf("withdrawal quote: %v", err)
	}
	closed, err := f.service.EarlyWithdraw(ctx, "u1", id, f.code(t))
	if err != nil {
		t.Fatalf("early withdraw: %v", err)
	}

	inv := closed.Investment
	if !inv.AmountReturned.Equal(decimal.NewFromInt(9_000)) || !inv.Penalty.Equal(decimal.NewFromInt(1_000)) {
		t.Fatalf("unexpected settlement %+v", inv)
	}
	if !inv.ForfeitedReturn.Equal(inv.ExpectedReturn) || !inv.ForfeitedReturn.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("forfeited %s, expected return %s", inv.ForfeitedReturn, inv.ExpectedReturn)
	}
	if !q.AmountReturned.Equal(inv.AmountReturned) || !q.Penalty.Equal(inv.Penalty) {
		t.Fatalf("quote %+v differs from execution %+v", q, inv)
	}
	if inv.Status != ledger.InvestmentWithdrawn || inv.ClosedAt == nil {
		t.Fatalf("unexpected status %s", inv.Status)
	}
	if got := f.balance(t); !got.Equal(decimal.NewFromInt(9_000)) {
		t.Fatalf("balance %s, want 9000", got)
	}

	if _, err := f.service.EarlyWithdraw(ctx, "u1", id, f.code(t)); !errors.Is(err, ErrInvestmentNotActive) {
		t.Fatalf("second withdrawal must fail, got %v", err)
	}
	if _, err := f.service.WithdrawalQuote(ctx, "u2", id); !errors.Is(err, ledger.ErrInvestmentNotFound) {
		t.Fatalf("other users must not see the investment, got %v", err)
	}
}

func TestEarlyWithdrawalRequiresCode(t *testing.T) {
	f := newFixture(t, 10_000)
	ctx := context.Background()
	receipt, _ := f.service.Purchase(ctx, PurchaseInput{UserID: "u1", ProductID: "savings-6m", Amount: decimal.NewFromInt(10_000)})

	if _, err := f.service.EarlyWithdraw(ctx, "u1", receipt.Investment.ID, "123456"); !errors.Is(err, otp.ErrNotFound) {
		t.Fatalf("expected OTP failure, got %v", err)
	}
	stored, _ := f.ledger.Investment(ctx, receipt.Investment.ID)
	if stored.Status != ledger.InvestmentActive {
		t.Fatalf("investment closed without a verified code")
	}
}

func TestConcurrentEarlyWithdrawalsCloseOnce(t *testing.T) {
	f := newFixture(t, 10_000)
	ctx := context.Background()
	receipt, _ := f.service.Purchase(ctx, PurchaseInput{UserID: "u1", ProductID: "growth-12m", Amount: decimal.NewFromInt(10_000)})
	f.service.otp = approveAll{}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.service.EarlyWithdraw(ctx, "u1", receipt.Investment.ID, ""); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly one close, got %d", success)
	}
	if got := f.balance(t); !got.Equal(decimal.NewFromInt(9_000)) {
		t.Fatalf("balance %s, want 9000", got)
	}
}

type approveAll struct{}

func (approveAll) Verify(context.Context, string, otp.Purpose, string) error { return nil }

func TestMaturity(t *testing.T) {
	f := newFixture(t, 10_000)
	ctx := context.Background()
	receipt, _ := f.service.Purchase(ctx, PurchaseInput{UserID: "u1", ProductID: "savings-6m", Amount: decimal.NewFromInt(10_000)})
	id := receipt.Investment.ID

	if _, err := f.service.Mature(ctx, id); !errors.Is(err, ErrNotMatured) {
		t.Fatalf("expected not matured, got %v", err)
	}

	f.clock.Advance(200 * 24 * time.Hour)
	matured, err := f.service.Mature(ctx, id)
	if err != nil {
		t.Fatalf("mature: %v", err)
	}
	if matured.Investment.Status != ledger.InvestmentMatured || !matured.Investment.AmountReturned.Equal(decimal.NewFromInt(10_300)) {
		t.Fatalf("unexpected maturity %+v", matured.Investment)
	}
	if got := f.balance(t); !got.Equal(decimal.NewFromInt(10_300)) {
		t.Fatalf("balance %s, want 10300", got)
	}
	if _, err := f.service.Mature(ctx, id); !errors.Is(err, ErrInvestmentNotActive) {
		t.Fatalf("second maturity must fail, got %v", err)
	}
}

func TestEarlyWithdrawalAfterMaturityPaysInFull(t *testing.T) {
	f := newFixture(t, 10_000)
	ctx := context.Background()
	receipt, _ := f.service.Purchase(ctx, PurchaseInput{UserID: "u1", ProductID: "savings-6m", Amount: decimal.NewFromInt(10_000)})
	f.clock.Advance(200 * 24 * time.Hour)

	closed, err := f.service.EarlyWithdraw(ctx, "u1", receipt.Investment.ID, "")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if closed.Investment.Status != ledger.InvestmentMatured || !closed.Investment.Penalty.IsZero() {
		t.Fatalf("expected maturity payout, got %+v", closed.Investment)
	}
}

func TestLoadProducts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.toml")
	content := `
[[products]]
id = "bond-3m"
name = "Bond"
annual_rate = "4.5"
duration_months = 3
min_amount = "1000"

[[products]]
id = "legacy"
name = "Legacy"
annual_rate = "2"
duration_months = 12
inactive = true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	products, err := LoadProducts(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(products) != 2 || !products[0].AnnualRate.Equal(decimal.RequireFromString("4.5")) || products[1].Active {
		t.Fatalf("unexpected products %+v", products)
	}

	catalog := NewMemoryCatalog(products...)
	if _, err := catalog.Get(context.Background(), "legacy"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("inactive product must be hidden, got %v", err)
	}
	listed, _ := catalog.List(context.Background())
	if len(listed) != 1 || listed[0].ID != "bond-3m" {
		t.Fatalf("unexpected listing %+v", listed)
	}
}
