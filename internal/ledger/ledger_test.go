package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func amt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newTestLedger(t *testing.T, users ...string) *Ledger {
	t.Helper()
	l := New(NewMemoryBackend())
	for _, u := range users {
		if _, err := l.OpenWallet(context.Background(), u, "XAF"); err != nil {
			t.Fatalf("open wallet %s: %v", u, err)
		}
	}
	return l
}

func balanceOf(t *testing.T, l *Ledger, user string) decimal.Decimal {
	t.Helper()
	w, err := l.Wallet(context.Background(), user)
	if err != nil {
		t.Fatalf("wallet %s: %v", user, err)
	}
	return w.Balance
}

func TestCreditAndDebit(t *testing.T) {
	l := newTestLedger(t, "u1")
	ctx := context.Background()

	if _, err := l.CreditAtomic(ctx, "u1", amt(10_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	w, err := l.DebitAtomic(ctx, "u1", amt(1_500))
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if !w.Balance.Equal(amt(8_500)) {
		t.Fatalf("expected 8500, got %s", w.Balance)
	}
	if w.LastActivityAt.IsZero() {
		t.Fatalf("expected last activity to be stamped")
	}
}

func TestDebitInsufficientLeavesBalance(t *testing.T) {
	l := newTestLedger(t, "u1")
	ctx := context.Background()
	l.CreditAtomic(ctx, "u1", amt(500))

	if _, err := l.DebitAtomic(ctx, "u1", amt(501)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if got := balanceOf(t, l, "u1"); !got.Equal(amt(500)) {
		t.Fatalf("balance changed to %s", got)
	}
}

func TestMutationsRejectInvalidAmounts(t *testing.T) {
	l := newTestLedger(t, "u1")
	ctx := context.Background()
	for _, a := range []decimal.Decimal{decimal.Zero, amt(-5), decimal.RequireFromString("0.001")} {
		if _, err := l.CreditAtomic(ctx, "u1", a); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("credit %s: expected invalid amount, got %v", a, err)
		}
	}
	if _, err := l.CreditAtomic(ctx, "ghost", amt(5)); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
}

func TestOpenWalletIsIdempotent(t *testing.T) {
	l := newTestLedger(t, "u1")
	ctx := context.Background()
	l.CreditAtomic(ctx, "u1", amt(100))

	w, err := l.OpenWallet(ctx, "u1", "XAF")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !w.Balance.Equal(amt(100)) {
		t.Fatalf("reopening must not reset the balance, got %s", w.Balance)
	}
}

func TestRecordValidatesParties(t *testing.T) {
	l := newTestLedger(t, "u1", "u2")
	ctx := context.Background()

	tests := []struct {
		name  string
		draft Draft
		want  error
	}{
		{"deposit with source", Draft{Kind: KindDeposit, SourceUserID: "u2", DestinationUserID: "u1", Amount: amt(1), Status: StatusCompleted}, ErrInvalidParties},
		{"withdrawal with destination", Draft{Kind: KindWithdrawal, SourceUserID: "u1", DestinationUserID: "u2", Amount: amt(1), Status: StatusPending}, ErrInvalidParties},
		{"transfer missing destination", Draft{Kind: KindTransfer, SourceUserID: "u1", Amount: amt(1), Status: StatusCompleted}, ErrInvalidParties},
		{"transfer to self", Draft{Kind: KindTransfer, SourceUserID: "u1", DestinationUserID: "u1", Amount: amt(1), Status: StatusCompleted}, ErrInvalidParties},
		{"terminal failure as initial", Draft{Kind: KindDeposit, DestinationUserID: "u1", Amount: amt(1), Status: StatusFailed}, ErrInvalidStatus},
		{"zero amount", Draft{Kind: KindDeposit, DestinationUserID: "u1", Amount: decimal.Zero, Status: StatusPending}, ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.RecordTransaction(ctx, tt.draft); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	rec, err := l.RecordTransaction(ctx, Draft{Kind: KindTransfer, SourceUserID: "u1", DestinationUserID: "u2",
		Amount: amt(10), Fee: amt(1), NetAmount: amt(10), Status: StatusCompleted})
	if err != nil {
		t.Fatalf("record transfer: %v", err)
	}
	if !strings.HasPrefix(rec.ID, "TRF-") {
		t.Fatalf("unexpected id %s", rec.ID)
	}
	if rec.ProcessedAt == nil {
		t.Fatalf("completed transactions carry a processed timestamp")
	}
}

func TestTransitionIsConditional(t *testing.T) {
	l := newTestLedger(t, "u1")
	ctx := context.Background()
	rec, err := l.RecordTransaction(ctx, Draft{Kind: KindDeposit, DestinationUserID: "u1", Amount: amt(50), NetAmount: amt(50), Status: StatusPending})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	changed, err := l.TransitionTerminal(ctx, rec.ID, StatusPending, StatusCompleted, []byte(`{"status":"succeeded"}`))
	if err != nil || !changed {
		t.Fatalf("first transition: changed=%v err=%v", changed, err)
	}
	changed, err = l.TransitionTerminal(ctx, rec.ID, StatusPending, StatusFailed, nil)
	if err != nil || changed {
		t.Fatalf("second transition must not apply: changed=%v err=%v", changed, err)
	}
	if _, err := l.TransitionTerminal(ctx, rec.ID, StatusCompleted, StatusPending, nil); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected invalid status for non-terminal target, got %v", err)
	}

	got, _ := l.Transaction(ctx, rec.ID)
	if got.Status != StatusCompleted || string(got.GatewayPayload) != `{"status":"succeeded"}` {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestConcurrentTransitionsExactlyOneWins(t *testing.T) {
	l := newTestLedger(t, "u1")
	ctx := context.Background()
	rec, _ := l.RecordTransaction(ctx, Draft{Kind: KindDeposit, DestinationUserID: "u1", Amount: amt(10_000), NetAmount: amt(10_000), Status: StatusPending})

	const workers = 16
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Atomic(ctx, func(tx *Tx) error {
				changed, err := tx.Transition(ctx, rec.ID, StatusPending, StatusCompleted, nil)
				if err != nil || !changed {
					return err
				}
				atomic.AddInt32(&wins, 1)
				_, err = tx.Credit(ctx, "u1", rec.Amount)
				return err
			})
			if err != nil {
				t.Errorf("atomic: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if got := balanceOf(t, l, "u1"); !got.Equal(amt(10_000)) {
		t.Fatalf("expected single credit, balance %s", got)
	}
}

func TestAtomicRollsBackEverything(t *testing.T) {
	l := newTestLedger(t, "sender", "recipient")
	ctx := context.Background()
	l.CreditAtomic(ctx, "sender", amt(1_000))

	injected := errors.New("injected failure")
	err := l.Atomic(ctx, func(tx *Tx) error {
		if _, err := tx.Debit(ctx, "sender", amt(400)); err != nil {
			return err
		}
		if _, err := tx.Credit(ctx, "recipient", amt(400)); err != nil {
			return err
		}
		if _, err := tx.Record(ctx, Draft{Kind: KindTransfer, SourceUserID: "sender", DestinationUserID: "recipient",
			Amount: amt(400), NetAmount: amt(400), Status: StatusCompleted}); err != nil {
			return err
		}
		return injected
	})
	if !errors.Is(err, injected) {
		t.Fatalf("expected injected error, got %v", err)
	}

	if got := balanceOf(t, l, "sender"); !got.Equal(amt(1_000)) {
		t.Fatalf("sender balance %s", got)
	}
	if got := balanceOf(t, l, "recipient"); !got.Equal(decimal.Zero) {
		t.Fatalf("recipient balance %s", got)
	}
	history, _ := l.History(ctx, "sender", 10)
	if len(history) != 0 {
		t.Fatalf("expected no transaction rows, got %d", len(history))
	}
}

func TestBalanceEqualsCommittedCreditsMinusDebits(t *testing.T) {
	l := newTestLedger(t, "u1")
	ctx := context.Background()

	var credited, debited int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := int64(i%7 + 1)
			if i%3 == 0 {
				if _, err := l.DebitAtomic(ctx, "u1", amt(a)); err == nil {
					mu.Lock()
					debited += a
					mu.Unlock()
				} else if !errors.Is(err, ErrInsufficientBalance) {
					t.Errorf("debit: %v", err)
				}
				return
			}
			if _, err := l.CreditAtomic(ctx, "u1", amt(a)); err != nil {
				t.Errorf("credit: %v", err)
				return
			}
			mu.Lock()
			credited += a
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	got := balanceOf(t, l, "u1")
	if !got.Equal(amt(credited - debited)) {
		t.Fatalf("balance %s != credits %d - debits %d", got, credited, debited)
	}
	if got.IsNegative() {
		t.Fatalf("balance went negative")
	}
}

func TestAnnotateKeepsAmounts(t *testing.T) {
	l := newTestLedger(t, "u1")
	ctx := context.Background()
	rec, _ := l.RecordTransaction(ctx, Draft{Kind: KindDeposit, DestinationUserID: "u1", Amount: amt(75), NetAmount: amt(75),
		Status: StatusCompleted, Metadata: map[string]any{"method": "card"}})

	err := l.Atomic(ctx, func(tx *Tx) error {
		return tx.Annotate(ctx, rec.ID, map[string]any{"refunded_by": "RFD-1"})
	})
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	got, _ := l.Transaction(ctx, rec.ID)
	if got.Metadata["refunded_by"] != "RFD-1" || got.Metadata["method"] != "card" {
		t.Fatalf("unexpected metadata %v", got.Metadata)
	}
	if !got.Amount.Equal(amt(75)) || got.Status != StatusCompleted {
		t.Fatalf("annotation changed the record: %+v", got)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	clock := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	l := New(NewMemoryBackend(), WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	ctx := context.Background()
	l.OpenWallet(ctx, "u1", "XAF")
	for i := 1; i <= 3; i++ {
		if _, err := l.RecordTransaction(ctx, Draft{Kind: KindDeposit, DestinationUserID: "u1", Amount: amt(int64(i)),
			NetAmount: amt(int64(i)), Status: StatusCompleted}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	history, err := l.History(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(history))
	}
	if !history[0].Amount.Equal(amt(3)) || !history[1].Amount.Equal(amt(2)) {
		t.Fatalf("expected newest first, got %s then %s", history[0].Amount, history[1].Amount)
	}
}
