package payments

import (
	"context"
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

// TransferInput moves Amount from the sender to a recipient given by id or phone.
type TransferInput struct {
	SenderID       string
	RecipientID    string
	RecipientPhone string
	Amount         decimal.Decimal
	Note           string
	OTPCode        string
}

// TransferResult adds the resolved recipient to the common result.
type TransferResult struct {
	Result
	RecipientID string `json:"recipient_id"`
}

// Transfer debits the sender amount plus fee and credits the recipient amount. Both
// changes and the COMPLETED record are one unit of work.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if !money.Positive(in.Amount) {
		return TransferResult{}, ledger.ErrInvalidAmount
	}
	sender, err := s.activeUser(ctx, in.SenderID)
	if err != nil {
		return TransferResult{}, err
	}
	recipient, err := s.resolve(ctx, in.RecipientID, in.RecipientPhone)
	if err != nil {
		return TransferResult{}, err
	}
	if recipient.ID == sender.ID {
		return TransferResult{}, ErrSelfTransfer
	}
	if err := s.otp.Verify(ctx, sender.ID, otp.PurposeTransfer, in.OTPCode); err != nil {
		return TransferResult{}, err
	}

	fee := s.fees.Fee(fees.OperationTransfer, fees.TierFor(sender.KYCApproved()), in.Amount)
	metadata := map[string]any{"recipient_phone": recipient.Phone}
	if note := strings.TrimSpace(in.Note); note != "" {
		metadata["note"] = note
	}

	var (
		rec    ledger.Transaction
		wallet ledger.Wallet
	)
	err = s.ledger.Atomic(ctx, func(tx *ledger.Tx) error {
		if err := tx.LockWallets(ctx, sender.ID, recipient.ID); err != nil {
			return err
		}
		var err error
		if wallet, err = tx.Debit(ctx, sender.ID, in.Amount.Add(fee)); err != nil {
			return err
		}
		if _, err = tx.Credit(ctx, recipient.ID, in.Amount); err != nil {
			return err
		}
		rec, err = tx.Record(ctx, ledger.Draft{
			Kind:              ledger.KindTransfer,
			SourceUserID:      sender.ID,
			DestinationUserID: recipient.ID,
			Amount:            in.Amount,
			Fee:               fee,
			NetAmount:         in.Amount,
			Status:            ledger.StatusCompleted,
			Metadata:          metadata,
		})
		return err
	})
	if err != nil {
		return TransferResult{}, err
	}

	s.logger.InfoContext(ctx, "transfer completed",
		slog.String("transaction_id", rec.ID),
		slog.String("amount", in.Amount.StringFixed(money.Scale)),
		slog.String("fee", fee.StringFixed(money.Scale)))
	amount := in.Amount.StringFixed(money.Scale)
	s.notify(notification.KindTransferSent, sender.ID,
		fmt.Sprintf("You sent %s %s to %s", amount, s.currency, recipient.Phone))
	s.notify(notification.KindTransferReceived, recipient.ID,
		fmt.Sprintf("You received %s %s from %s", amount, s.currency, sender.Phone))

	return TransferResult{Result: resultFor(rec, wallet.Balance), RecipientID: recipient.ID}, nil
}
