package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/fees"
	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/money"
	"github.com/congo-pay/walletcore/internal/notification"
	"github.com/congo-pay/walletcore/internal/otp"
)

// WithdrawInput requests a payout of Amount to an external destination.
type WithdrawInput struct {
	UserID      string
	Amount      decimal.Decimal
	Method      string
	Destination string
	OTPCode     string
}

// Withdraw debits amount plus fee immediately and records a PENDING withdrawal that
// the payout rail settles later. At most one withdrawal per user may be pending.
func (s *Service) Withdraw(ctx context.Context, in WithdrawInput) (Result, error) {
	if !money.Positive(in.Amount) {
		return Result{}, ledger.ErrInvalidAmount
	}
	method, destination := strings.TrimSpace(in.Method), strings.TrimSpace(in.Destination)
	if method == "" || destination == "" {
		return Result{}, ErrDestinationMissing
	}
	user, err := s.activeUser(ctx, in.UserID)
	if err != nil {
		return Result{}, err
	}
	if err := s.otp.Verify(ctx, in.UserID, otp.PurposeWithdrawal, in.OTPCode); err != nil {
		return Result{}, err
	}

	tier := fees.TierFor(user.KYCApproved())
	fee := s.fees.Fee(fees.OperationWithdrawal, tier, in.Amount)
	total := in.Amount.Add(fee)

	var (
		rec    ledger.Transaction
		wallet ledger.Wallet
	)
	err = s.ledger.Atomic(ctx, func(tx *ledger.Tx) error {
		// The wallet lock serializes concurrent withdrawals of one user, so the
		// pending check below cannot be raced.
		if _, err := tx.Wallet(ctx, in.UserID); err != nil {
			return err
		}
		pending, err := tx.HasPending(ctx, in.UserID, ledger.KindWithdrawal)
		if err != nil {
			return err
		}
		if pending {
			return ErrPendingWithdrawal
		}
		if wallet, err = tx.Debit(ctx, in.UserID, total); err != nil {
			return err
		}
		rec, err = tx.Record(ctx, ledger.Draft{
			Kind:         ledger.KindWithdrawal,
			SourceUserID: in.UserID,
			Amount:       in.Amount,
			Fee:          fee,
			NetAmount:    in.Amount,
			Status:       ledger.StatusPending,
			Metadata: map[string]any{
				"method":      method,
				"destination": destination,
				"fee_tier":    string(tier),
			},
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.InfoContext(ctx, "withdrawal requested",
		slog.String("transaction_id", rec.ID),
		slog.String("amount", in.Amount.StringFixed(money.Scale)),
		slog.String("fee", fee.StringFixed(money.Scale)))
	s.notify(notification.KindWithdrawal, in.UserID,
		fmt.Sprintf("Your withdrawal of %s %s is being processed", in.Amount.StringFixed(money.Scale), s.currency))
	return resultFor(rec, wallet.Balance), nil
}

// SettleWithdrawal applies the payout rail's confirmation. A failed payout re-credits
// amount plus fee. Settling an already settled withdrawal fails with STALE_STATE.
func (s *Service) SettleWithdrawal(ctx context.Context, transactionID string, succeeded bool, reference string) (Result, error) {
	to := ledger.StatusCompleted
	if !succeeded {
		to = ledger.StatusFailed
	}
	payload, err := json.Marshal(map[string]any{"payout_reference": reference, "succeeded": succeeded})
	if err != nil {
		return Result{}, err
	}

	var (
		rec    ledger.Transaction
		wallet ledger.Wallet
	)
	err = s.ledger.Atomic(ctx, func(tx *ledger.Tx) error {
		current, err := tx.Transaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if current.Kind != ledger.KindWithdrawal {
			return ErrNotWithdrawal
		}
		changed, err := tx.Transition(ctx, transactionID, ledger.StatusPending, to, payload)
		if err != nil {
			return err
		}
		if !changed {
			return ledger.ErrStaleState
		}
		if to == ledger.StatusFailed {
			if wallet, err = tx.Credit(ctx, current.SourceUserID, current.Amount.Add(current.Fee)); err != nil {
				return err
			}
		} else if wallet, err = tx.Wallet(ctx, current.SourceUserID); err != nil {
			return err
		}
		rec, err = tx.Transaction(ctx, transactionID)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.InfoContext(ctx, "withdrawal settled",
		slog.String("transaction_id", rec.ID),
		slog.String("status", string(rec.Status)),
		slog.String("payout_reference", reference))
	if rec.Status == ledger.StatusFailed {
		s.notify(notification.KindWithdrawal, rec.SourceUserID,
			fmt.Sprintf("Your withdrawal of %s %s failed and was refunded", rec.Amount.StringFixed(money.Scale), s.currency))
	}
	return resultFor(rec, wallet.Balance), nil
}
