package ledger

import "github.com/congo-pay/walletcore/internal/apperr"

var (
	// ErrInsufficientBalance occurs when a debit exceeds the wallet balance.
	ErrInsufficientBalance = apperr.New(apperr.KindPrecondition, "INSUFFICIENT_BALANCE", "insufficient balance")

	// ErrWalletNotFound indicates no wallet exists for the user.
	ErrWalletNotFound = apperr.New(apperr.KindNotFound, "WALLET_NOT_FOUND", "wallet not found")

	ErrTransactionNotFound = apperr.New(apperr.KindNotFound, "TRANSACTION_NOT_FOUND", "transaction not found")
	ErrIntentNotFound      = apperr.New(apperr.KindNotFound, "INTENT_NOT_FOUND", "payment intent not found")
	ErrInvestmentNotFound  = apperr.New(apperr.KindNotFound, "INVESTMENT_NOT_FOUND", "investment not found")

	// ErrInvalidAmount rejects zero, negative or over-precise amounts.
	ErrInvalidAmount = apperr.New(apperr.KindValidation, "INVALID_AMOUNT", "amount must be positive with at most two decimals")

	// ErrInvalidParties rejects drafts whose source/destination do not fit the kind.
	ErrInvalidParties = apperr.New(apperr.KindValidation, "INVALID_PARTIES", "transaction parties do not match its kind")

	// ErrInvalidStatus rejects a status that is not allowed at that point of the lifecycle.
	ErrInvalidStatus = apperr.New(apperr.KindValidation, "INVALID_STATUS", "invalid transaction status")

	// ErrContention wraps a Postgres deadlock or serialization failure. The unit of
	// work rolled back as a whole and can be retried.
	ErrContention = apperr.New(apperr.KindExternal, "STORAGE_CONTENTION", "storage contention, retry the request")

	// ErrStaleState is returned by single-writer operations whose conditional update
	// matched no row.
	ErrStaleState = apperr.New(apperr.KindIntegrity, "STALE_STATE", "record changed concurrently")
)
