package wallet

import (
	"context"
	"time"

	"github.com/congo-pay/walletcore/internal/ledger"
)

// Service exposes wallet reads and provisioning backed by the ledger.
type Service struct {
	ledger   *ledger.Ledger
	currency string
}

// NewService builds a wallet service instance.
func NewService(l *ledger.Ledger, currency string) *Service {
	if currency == "" {
		currency = "XAF"
	}
	return &Service{ledger: l, currency: currency}
}

// Open provisions the user's wallet. Opening an existing wallet returns it unchanged.
func (s *Service) Open(ctx context.Context, userID string) (Balance, error) {
	w, err := s.ledger.OpenWallet(ctx, userID, s.currency)
	if err != nil {
		return Balance{}, err
	}
	return balanceOf(w), nil
}

// OpenFor provisions the wallet during registration.
func (s *Service) OpenFor(ctx context.Context, userID string) error {
	_, err := s.Open(ctx, userID)
	return err
}

// Balance returns the current balance for the user's wallet.
func (s *Service) Balance(ctx context.Context, userID string) (Balance, error) {
	w, err := s.ledger.Wallet(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	return balanceOf(w), nil
}

// History lists the user's transactions, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	txs, err := s.ledger.History(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(txs))
	for _, t := range txs {
		entries = append(entries, entryFor(userID, t))
	}
	return entries, nil
}

func balanceOf(w ledger.Wallet) Balance {
	return Balance{
		UserID:         w.UserID,
		Currency:       w.Currency,
		Amount:         w.Balance,
		LastActivityAt: w.LastActivityAt,
		AsOf:           time.Now().UTC(),
	}
}
