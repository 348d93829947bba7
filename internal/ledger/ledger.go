package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/metrics"
	"github.com/congo-pay/walletcore/internal/money"
)

// Backend is the storage contract implemented by ledger backends (Postgres, in-memory).
// Backends store rows; every balance and lifecycle rule lives in Ledger and Tx.
type Backend interface {
	Begin(ctx context.Context) (StoreTx, error)

	GetWallet(ctx context.Context, userID string) (Wallet, error)
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
	GetIntent(ctx context.Context, intentID string) (PaymentIntent, error)
	GetInvestment(ctx context.Context, id string) (Investment, error)
	ListInvestments(ctx context.Context, userID string) ([]Investment, error)
}

// StoreTx is one storage-level transaction. Everything written through it commits or
// rolls back together.
type StoreTx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	InsertWallet(ctx context.Context, w Wallet) (Wallet, error)
	LockWallet(ctx context.Context, userID string) (Wallet, error)
	WriteBalance(ctx context.Context, userID string, balance decimal.Decimal, at time.Time) error

	InsertTransaction(ctx context.Context, t Transaction) error
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	CompareAndSetStatus(ctx context.Context, id string, from, to Status, payload json.RawMessage, at time.Time) (bool, error)
	MergeMetadata(ctx context.Context, id string, patch map[string]any) error
	CountPending(ctx context.Context, userID string, kind Kind) (int, error)

	InsertIntent(ctx context.Context, p PaymentIntent) error
	GetIntent(ctx context.Context, intentID string) (PaymentIntent, error)
	CompareAndSetIntentStatus(ctx context.Context, intentID string, from, to IntentStatus, payload json.RawMessage, at time.Time) (bool, error)
	RecordIntentPayload(ctx context.Context, intentID string, payload json.RawMessage, at time.Time) error
	RecordIntentRefund(ctx context.Context, intentID string, prevTotal, newTotal decimal.Decimal, to IntentStatus, payload json.RawMessage, at time.Time) (bool, error)

	InsertInvestment(ctx context.Context, inv Investment) error
	LockInvestment(ctx context.Context, id string) (Investment, error)
	CloseInvestment(ctx context.Context, inv Investment, from InvestmentStatus) (bool, error)
}

// Ledger is the only component allowed to change a wallet balance.
type Ledger struct {
	backend Backend
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// New builds a ledger over backend.
func New(backend Backend, opts ...Option) *Ledger {
	l := &Ledger{backend: backend, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Atomic runs fn inside one storage transaction. If fn returns an error nothing fn
// wrote is kept. fn must only touch storage through tx.
func (l *Ledger) Atomic(ctx context.Context, fn func(tx *Tx) error) error {
	st, err := l.backend.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	defer st.Rollback(ctx) // nolint:errcheck

	if err := fn(&Tx{st: st, now: l.now(), metrics: l.metrics}); err != nil {
		return err
	}
	if err := st.Commit(ctx); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}

// OpenWallet provisions a zero-balance wallet. Calling it again is a no-op.
func (l *Ledger) OpenWallet(ctx context.Context, userID, currency string) (Wallet, error) {
	var w Wallet
	err := l.Atomic(ctx, func(tx *Tx) error {
		var err error
		w, err = tx.OpenWallet(ctx, userID, currency)
		return err
	})
	return w, err
}

// CreditAtomic adds amount to the user's balance in its own unit of work.
func (l *Ledger) CreditAtomic(ctx context.Context, userID string, amount decimal.Decimal) (Wallet, error) {
	var w Wallet
	err := l.Atomic(ctx, func(tx *Tx) error {
		var err error
		w, err = tx.Credit(ctx, userID, amount)
		return err
	})
	return w, err
}

// DebitAtomic removes amount from the user's balance in its own unit of work.
func (l *Ledger) DebitAtomic(ctx context.Context, userID string, amount decimal.Decimal) (Wallet, error) {
	var w Wallet
	err := l.Atomic(ctx, func(tx *Tx) error {
		var err error
		w, err = tx.Debit(ctx, userID, amount)
		return err
	})
	return w, err
}

// RecordTransaction inserts a transaction row on its own. Use Tx.Record when the
// row must commit together with a balance mutation.
func (l *Ledger) RecordTransaction(ctx context.Context, draft Draft) (Transaction, error) {
	var t Transaction
	err := l.Atomic(ctx, func(tx *Tx) error {
		var err error
		t, err = tx.Record(ctx, draft)
		return err
	})
	return t, err
}

// TransitionTerminal conditionally moves a transaction from one status to a terminal
// one and reports whether a row changed.
func (l *Ledger) TransitionTerminal(ctx context.Context, id string, from, to Status, payload json.RawMessage) (bool, error) {
	var changed bool
	err := l.Atomic(ctx, func(tx *Tx) error {
		var err error
		changed, err = tx.Transition(ctx, id, from, to, payload)
		return err
	})
	return changed, err
}

// Wallet returns the user's wallet.
func (l *Ledger) Wallet(ctx context.Context, userID string) (Wallet, error) {
	return l.backend.GetWallet(ctx, userID)
}

// Transaction returns a transaction by identifier.
func (l *Ledger) Transaction(ctx context.Context, id string) (Transaction, error) {
	return l.backend.GetTransaction(ctx, id)
}

// History lists the user's transactions, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return l.backend.ListTransactions(ctx, userID, limit)
}

// Intent returns a payment intent record.
func (l *Ledger) Intent(ctx context.Context, intentID string) (PaymentIntent, error) {
	return l.backend.GetIntent(ctx, intentID)
}

// Investment returns an investment record.
func (l *Ledger) Investment(ctx context.Context, id string) (Investment, error) {
	return l.backend.GetInvestment(ctx, id)
}

// Investments lists the user's investments, newest first.
func (l *Ledger) Investments(ctx context.Context, userID string) ([]Investment, error) {
	return l.backend.ListInvestments(ctx, userID)
}

// Tx is the view of one unit of work handed to Atomic callbacks.
type Tx struct {
	st      StoreTx
	now     time.Time
	metrics *metrics.Metrics
}

// Now is the timestamp stamped on everything written in this unit of work.
func (t *Tx) Now() time.Time {
	return t.now
}

// OpenWallet provisions a wallet, returning the existing one if present.
func (t *Tx) OpenWallet(ctx context.Context, userID, currency string) (Wallet, error) {
	return t.st.InsertWallet(ctx, Wallet{
		UserID:         userID,
		Currency:       currency,
		Balance:        decimal.Zero,
		LastActivityAt: t.now,
		CreatedAt:      t.now,
	})
}

// Wallet re-reads the wallet and locks it until the unit of work ends.
func (t *Tx) Wallet(ctx context.Context, userID string) (Wallet, error) {
	return t.st.LockWallet(ctx, userID)
}

// LockWallets locks several wallets in ascending user id order, so two units of work
// touching the same pair always queue on the same row first.
func (t *Tx) LockWallets(ctx context.Context, userIDs ...string) error {
	ordered := slices.Clone(userIDs)
	slices.Sort(ordered)
	for _, id := range slices.Compact(ordered) {
		if _, err := t.st.LockWallet(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Credit re-reads the balance, adds amount and stamps last activity.
func (t *Tx) Credit(ctx context.Context, userID string, amount decimal.Decimal) (Wallet, error) {
	if !money.Positive(amount) {
		return Wallet{}, ErrInvalidAmount
	}
	w, err := t.st.LockWallet(ctx, userID)
	if err != nil {
		t.metrics.LedgerMutation("credit", "error")
		return Wallet{}, err
	}
	w.Balance = w.Balance.Add(amount)
	w.LastActivityAt = t.now
	if err := t.st.WriteBalance(ctx, userID, w.Balance, t.now); err != nil {
		t.metrics.LedgerMutation("credit", "error")
		return Wallet{}, fmt.Errorf("credit wallet %s: %w", userID, err)
	}
	t.metrics.LedgerMutation("credit", "ok")
	return w, nil
}

// Debit re-reads the balance, refuses to go below zero, subtracts amount and stamps
// last activity.
func (t *Tx) Debit(ctx context.Context, userID string, amount decimal.Decimal) (Wallet, error) {
	if !money.Positive(amount) {
		return Wallet{}, ErrInvalidAmount
	}
	w, err := t.st.LockWallet(ctx, userID)
	if err != nil {
		t.metrics.LedgerMutation("debit", "error")
		return Wallet{}, err
	}
	if w.Balance.LessThan(amount) {
		t.metrics.LedgerMutation("debit", "insufficient")
		return Wallet{}, ErrInsufficientBalance
	}
	w.Balance = w.Balance.Sub(amount)
	w.LastActivityAt = t.now
	if err := t.st.WriteBalance(ctx, userID, w.Balance, t.now); err != nil {
		t.metrics.LedgerMutation("debit", "error")
		return Wallet{}, fmt.Errorf("debit wallet %s: %w", userID, err)
	}
	t.metrics.LedgerMutation("debit", "ok")
	return w, nil
}

type parties struct {
	source      bool
	destination bool
}

var partyRules = map[Kind]parties{
	KindDeposit:              {source: false, destination: true},
	KindWithdrawal:           {source: true, destination: false},
	KindTransfer:             {source: true, destination: true},
	KindInvestmentPurchase:   {source: true, destination: false},
	KindInvestmentWithdrawal: {source: false, destination: true},
	KindAgentCredit:          {source: true, destination: true},
	KindBillPayment:          {source: true, destination: false},
	KindRefund:               {source: true, destination: false},
}

func validateDraft(d Draft) error {
	rule, ok := partyRules[d.Kind]
	if !ok {
		return fmt.Errorf("unknown kind %q: %w", d.Kind, ErrInvalidParties)
	}
	if (d.SourceUserID != "") != rule.source || (d.DestinationUserID != "") != rule.destination {
		return ErrInvalidParties
	}
	if rule.source && rule.destination && d.SourceUserID == d.DestinationUserID {
		return ErrInvalidParties
	}
	if !money.Positive(d.Amount) {
		return ErrInvalidAmount
	}
	if d.Fee.IsNegative() || d.NetAmount.IsNegative() {
		return ErrInvalidAmount
	}
	if d.Status != StatusPending && d.Status != StatusCompleted {
		return ErrInvalidStatus
	}
	return nil
}

// Record inserts a transaction in its initial status (PENDING or COMPLETED).
func (t *Tx) Record(ctx context.Context, d Draft) (Transaction, error) {
	if err := validateDraft(d); err != nil {
		return Transaction{}, err
	}
	rec := Transaction{
		ID:                NewTransactionID(d.Kind, t.now),
		Kind:              d.Kind,
		SourceUserID:      d.SourceUserID,
		DestinationUserID: d.DestinationUserID,
		Amount:            d.Amount,
		Fee:               d.Fee,
		NetAmount:         d.NetAmount,
		Status:            d.Status,
		Metadata:          cloneMetadata(d.Metadata),
		CreatedAt:         t.now,
	}
	if d.Status == StatusCompleted {
		processed := t.now
		rec.ProcessedAt = &processed
	}
	if err := t.st.InsertTransaction(ctx, rec); err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return rec, nil
}

// Transaction reads a transaction inside the unit of work.
func (t *Tx) Transaction(ctx context.Context, id string) (Transaction, error) {
	return t.st.GetTransaction(ctx, id)
}

// Transition is the conditional status update: it changes the row only if it is
// still in from, and reports whether it did. Concurrent callers racing on the same
// transaction see exactly one true.
func (t *Tx) Transition(ctx context.Context, id string, from, to Status, payload json.RawMessage) (bool, error) {
	if from.Terminal() || !to.Terminal() {
		return false, ErrInvalidStatus
	}
	changed, err := t.st.CompareAndSetStatus(ctx, id, from, to, payload, t.now)
	if err != nil {
		return false, fmt.Errorf("transition %s to %s: %w", id, to, err)
	}
	t.metrics.StatusTransition(string(to), changed)
	return changed, nil
}

// Annotate merges status-irrelevant metadata into an existing transaction.
func (t *Tx) Annotate(ctx context.Context, id string, patch map[string]any) error {
	return t.st.MergeMetadata(ctx, id, patch)
}

// HasPending reports whether the user already has a PENDING transaction of kind as source.
func (t *Tx) HasPending(ctx context.Context, userID string, kind Kind) (bool, error) {
	n, err := t.st.CountPending(ctx, userID, kind)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AttachIntent stores the payment intent record for a transaction.
func (t *Tx) AttachIntent(ctx context.Context, p PaymentIntent) error {
	p.CreatedAt = t.now
	p.UpdatedAt = t.now
	return t.st.InsertIntent(ctx, p)
}

// Intent reads a payment intent record inside the unit of work.
func (t *Tx) Intent(ctx context.Context, intentID string) (PaymentIntent, error) {
	return t.st.GetIntent(ctx, intentID)
}

// SwapIntentStatus conditionally moves an intent between statuses.
func (t *Tx) SwapIntentStatus(ctx context.Context, intentID string, from, to IntentStatus, payload json.RawMessage) (bool, error) {
	return t.st.CompareAndSetIntentStatus(ctx, intentID, from, to, payload, t.now)
}

// RaiseRefundedTotal moves a succeeded intent's refunded total from prev to next and
// sets its status to to. It reports false when the intent is no longer succeeded or
// its total has moved since it was read.
func (t *Tx) RaiseRefundedTotal(ctx context.Context, intentID string, prev, next decimal.Decimal, to IntentStatus, payload json.RawMessage) (bool, error) {
	return t.st.RecordIntentRefund(ctx, intentID, prev, next, to, payload, t.now)
}

// TouchIntent stores the gateway's latest raw payload without changing status.
func (t *Tx) TouchIntent(ctx context.Context, intentID string, payload json.RawMessage) error {
	return t.st.RecordIntentPayload(ctx, intentID, payload, t.now)
}

// AddInvestment stores a new investment record.
func (t *Tx) AddInvestment(ctx context.Context, inv Investment) error {
	return t.st.InsertInvestment(ctx, inv)
}

// Investment re-reads and locks an investment.
func (t *Tx) Investment(ctx context.Context, id string) (Investment, error) {
	return t.st.LockInvestment(ctx, id)
}

// CloseInvestment conditionally moves an investment out of from. A false result
// means another writer got there first.
func (t *Tx) CloseInvestment(ctx context.Context, inv Investment, from InvestmentStatus) error {
	changed, err := t.st.CloseInvestment(ctx, inv, from)
	if err != nil {
		return err
	}
	if !changed {
		return ErrStaleState
	}
	return nil
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// IsNotFound reports whether err is one of the ledger's not-found variants.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWalletNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrIntentNotFound) ||
		errors.Is(err, ErrInvestmentNotFound)
}
