package funding

import "github.com/congo-pay/walletcore/internal/apperr"

var (
	ErrPaymentNotCompleted = apperr.New(apperr.KindPrecondition, "PAYMENT_NOT_COMPLETED", "payment has not completed yet")
	ErrPaymentFailed       = apperr.New(apperr.KindPrecondition, "PAYMENT_FAILED", "payment failed or was canceled")
)
