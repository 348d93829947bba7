package wallet

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/ledger"
)

func TestServiceOpenAndBalance(t *testing.T) {
	led := ledger.New(ledger.NewMemoryBackend())
	svc := NewService(led, "XAF")

	ctx := context.Background()
	ownerID := uuid.NewString()
	opened, err := svc.Open(ctx, ownerID)
	if err != nil {
		t.Fatalf("open wallet: %v", err)
	}
	if !opened.Amount.IsZero() || opened.Currency != "XAF" {
		t.Fatalf("unexpected new wallet %+v", opened)
	}

	if _, err := led.CreditAtomic(ctx, ownerID, decimal.NewFromInt(2_500)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	balance, err := svc.Balance(ctx, ownerID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Amount.Equal(decimal.NewFromInt(2_500)) {
		t.Fatalf("expected balance 2500, got %s", balance.Amount)
	}
}

func TestHistoryDirections(t *testing.T) {
	led := ledger.New(ledger.NewMemoryBackend())
	svc := NewService(led, "XAF")
	ctx := context.Background()
	svc.Open(ctx, "alice")
	svc.Open(ctx, "bob")

	_, err := led.RecordTransaction(ctx, ledger.Draft{
		Kind: ledger.KindTransfer, SourceUserID: "alice", DestinationUserID: "bob",
		Amount: decimal.NewFromInt(1_000), Fee: decimal.NewFromInt(25), NetAmount: decimal.NewFromInt(1_000),
		Status: ledger.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	out, _ := svc.History(ctx, "alice", 10)
	in, _ := svc.History(ctx, "bob", 10)
	if len(out) != 1 || out[0].Direction != "out" || !out[0].Fee.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("unexpected sender history %+v", out)
	}
	if len(in) != 1 || in[0].Direction != "in" || !in[0].Fee.IsZero() || in[0].Counterparty != "alice" {
		t.Fatalf("unexpected recipient history %+v", in)
	}
}
