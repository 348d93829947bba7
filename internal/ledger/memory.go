package ledger

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// memoryBackend keeps ledger state in maps. An open StoreTx holds the mutex for its
// whole life, so units of work are serialised and reads wait for them to finish.
type memoryBackend struct {
	mu           sync.Mutex
	wallets      map[string]Wallet
	transactions map[string]Transaction
	intents      map[string]PaymentIntent
	investments  map[string]Investment
}

// NewMemoryBackend creates a concurrency-safe in-memory backend useful for unit tests
// and local development.
func NewMemoryBackend() Backend {
	return &memoryBackend{
		wallets:      make(map[string]Wallet),
		transactions: make(map[string]Transaction),
		intents:      make(map[string]PaymentIntent),
		investments:  make(map[string]Investment),
	}
}

func (b *memoryBackend) Begin(_ context.Context) (StoreTx, error) {
	b.mu.Lock()
	return &memoryTx{b: b}, nil
}

func (b *memoryBackend) GetWallet(_ context.Context, userID string) (Wallet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.wallets[userID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (b *memoryBackend) GetTransaction(_ context.Context, id string) (Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.transactions[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return copyTransaction(t), nil
}

func (b *memoryBackend) ListTransactions(_ context.Context, userID string, limit int) ([]Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Transaction
	for _, t := range b.transactions {
		if t.SourceUserID == userID || t.DestinationUserID == userID {
			out = append(out, copyTransaction(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *memoryBackend) GetIntent(_ context.Context, intentID string) (PaymentIntent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.intents[intentID]
	if !ok {
		return PaymentIntent{}, ErrIntentNotFound
	}
	return p, nil
}

func (b *memoryBackend) GetInvestment(_ context.Context, id string) (Investment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inv, ok := b.investments[id]
	if !ok {
		return Investment{}, ErrInvestmentNotFound
	}
	return inv, nil
}

func (b *memoryBackend) ListInvestments(_ context.Context, userID string) ([]Investment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Investment
	for _, inv := range b.investments {
		if inv.UserID == userID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchasedAt.After(out[j].PurchasedAt) })
	return out, nil
}

// memoryTx records an undo step for every write and replays them in reverse on rollback.
type memoryTx struct {
	b    *memoryBackend
	undo []func()
	done bool
}

func (t *memoryTx) Commit(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.undo = nil
	t.b.mu.Unlock()
	return nil
}

func (t *memoryTx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
	t.undo = nil
	t.b.mu.Unlock()
	return nil
}

func (t *memoryTx) InsertWallet(_ context.Context, w Wallet) (Wallet, error) {
	if existing, ok := t.b.wallets[w.UserID]; ok {
		return existing, nil
	}
	t.b.wallets[w.UserID] = w
	t.undo = append(t.undo, func() { delete(t.b.wallets, w.UserID) })
	return w, nil
}

func (t *memoryTx) LockWallet(_ context.Context, userID string) (Wallet, error) {
	w, ok := t.b.wallets[userID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (t *memoryTx) WriteBalance(_ context.Context, userID string, balance decimal.Decimal, at time.Time) error {
	prev, ok := t.b.wallets[userID]
	if !ok {
		return ErrWalletNotFound
	}
	next := prev
	next.Balance = balance
	next.LastActivityAt = at
	t.b.wallets[userID] = next
	t.undo = append(t.undo, func() { t.b.wallets[userID] = prev })
	return nil
}

func (t *memoryTx) InsertTransaction(_ context.Context, rec Transaction) error {
	t.b.transactions[rec.ID] = copyTransaction(rec)
	t.undo = append(t.undo, func() { delete(t.b.transactions, rec.ID) })
	return nil
}

func (t *memoryTx) GetTransaction(_ context.Context, id string) (Transaction, error) {
	rec, ok := t.b.transactions[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return copyTransaction(rec), nil
}

func (t *memoryTx) CompareAndSetStatus(_ context.Context, id string, from, to Status, payload json.RawMessage, at time.Time) (bool, error) {
	prev, ok := t.b.transactions[id]
	if !ok || prev.Status != from {
		return false, nil
	}
	next := copyTransaction(prev)
	next.Status = to
	if payload != nil {
		next.GatewayPayload = append(json.RawMessage(nil), payload...)
	}
	processed := at
	next.ProcessedAt = &processed
	t.b.transactions[id] = next
	t.undo = append(t.undo, func() { t.b.transactions[id] = prev })
	return true, nil
}

func (t *memoryTx) MergeMetadata(_ context.Context, id string, patch map[string]any) error {
	prev, ok := t.b.transactions[id]
	if !ok {
		return ErrTransactionNotFound
	}
	next := copyTransaction(prev)
	for k, v := range patch {
		next.Metadata[k] = v
	}
	t.b.transactions[id] = next
	t.undo = append(t.undo, func() { t.b.transactions[id] = prev })
	return nil
}

func (t *memoryTx) CountPending(_ context.Context, userID string, kind Kind) (int, error) {
	n := 0
	for _, rec := range t.b.transactions {
		if rec.Kind == kind && rec.SourceUserID == userID && rec.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) InsertIntent(_ context.Context, p PaymentIntent) error {
	t.b.intents[p.IntentID] = p
	t.undo = append(t.undo, func() { delete(t.b.intents, p.IntentID) })
	return nil
}

func (t *memoryTx) GetIntent(_ context.Context, intentID string) (PaymentIntent, error) {
	p, ok := t.b.intents[intentID]
	if !ok {
		return PaymentIntent{}, ErrIntentNotFound
	}
	return p, nil
}

func (t *memoryTx) CompareAndSetIntentStatus(_ context.Context, intentID string, from, to IntentStatus, payload json.RawMessage, at time.Time) (bool, error) {
	prev, ok := t.b.intents[intentID]
	if !ok || prev.Status != from {
		return false, nil
	}
	next := prev
	next.Status = to
	if payload != nil {
		next.LastPayload = append(json.RawMessage(nil), payload...)
	}
	next.UpdatedAt = at
	t.b.intents[intentID] = next
	t.undo = append(t.undo, func() { t.b.intents[intentID] = prev })
	return true, nil
}

func (t *memoryTx) RecordIntentRefund(_ context.Context, intentID string, prevTotal, newTotal decimal.Decimal, to IntentStatus, payload json.RawMessage, at time.Time) (bool, error) {
	prev, ok := t.b.intents[intentID]
	if !ok || prev.Status != IntentSucceeded || !prev.RefundedTotal.Equal(prevTotal) {
		return false, nil
	}
	next := prev
	next.Status = to
	next.RefundedTotal = newTotal
	if payload != nil {
		next.LastPayload = append(json.RawMessage(nil), payload...)
	}
	next.UpdatedAt = at
	t.b.intents[intentID] = next
	t.undo = append(t.undo, func() { t.b.intents[intentID] = prev })
	return true, nil
}

func (t *memoryTx) RecordIntentPayload(_ context.Context, intentID string, payload json.RawMessage, at time.Time) error {
	prev, ok := t.b.intents[intentID]
	if !ok {
		return ErrIntentNotFound
	}
	next := prev
	next.LastPayload = append(json.RawMessage(nil), payload...)
	next.UpdatedAt = at
	t.b.intents[intentID] = next
	t.undo = append(t.undo, func() { t.b.intents[intentID] = prev })
	return nil
}

func (t *memoryTx) InsertInvestment(_ context.Context, inv Investment) error {
	t.b.investments[inv.ID] = inv
	t.undo = append(t.undo, func() { delete(t.b.investments, inv.ID) })
	return nil
}

func (t *memoryTx) LockInvestment(_ context.Context, id string) (Investment, error) {
	inv, ok := t.b.investments[id]
	if !ok {
		return Investment{}, ErrInvestmentNotFound
	}
	return inv, nil
}

func (t *memoryTx) CloseInvestment(_ context.Context, inv Investment, from InvestmentStatus) (bool, error) {
	prev, ok := t.b.investments[inv.ID]
	if !ok || prev.Status != from {
		return false, nil
	}
	t.b.investments[inv.ID] = inv
	t.undo = append(t.undo, func() { t.b.investments[inv.ID] = prev })
	return true, nil
}

func copyTransaction(t Transaction) Transaction {
	t.Metadata = cloneMetadata(t.Metadata)
	if t.GatewayPayload != nil {
		t.GatewayPayload = append(json.RawMessage(nil), t.GatewayPayload...)
	}
	if t.ProcessedAt != nil {
		processed := *t.ProcessedAt
		t.ProcessedAt = &processed
	}
	return t
}
