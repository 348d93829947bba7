package payments

import "github.com/congo-pay/walletcore/internal/apperr"

var (
	ErrSelfTransfer       = apperr.New(apperr.KindValidation, "CANNOT_TRANSFER_TO_SELF", "cannot transfer to yourself")
	ErrRecipientRequired  = apperr.New(apperr.KindValidation, "RECIPIENT_REQUIRED", "recipient phone or id is required")
	ErrRecipientNotFound  = apperr.New(apperr.KindNotFound, "RECIPIENT_NOT_FOUND", "recipient not found")
	ErrNotAnAgent         = apperr.New(apperr.KindPrecondition, "NOT_AN_AGENT", "only agents can perform cash deposits")
	ErrPendingWithdrawal  = apperr.New(apperr.KindConflict, "PENDING_WITHDRAWAL_EXISTS", "a withdrawal is already pending")
	ErrNotWithdrawal      = apperr.New(apperr.KindValidation, "NOT_A_WITHDRAWAL", "transaction is not a withdrawal")
	ErrDestinationMissing = apperr.New(apperr.KindValidation, "DESTINATION_REQUIRED", "payout method and destination are required")
)
