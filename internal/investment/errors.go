package investment

import "github.com/congo-pay/walletcore/internal/apperr"

var (
	ErrProductNotFound     = apperr.New(apperr.KindNotFound, "PRODUCT_NOT_FOUND", "investment product not found")
	ErrAmountOutOfRange    = apperr.New(apperr.KindValidation, "AMOUNT_OUT_OF_RANGE", "amount is outside the product limits")
	ErrInvestmentNotActive = apperr.New(apperr.KindPrecondition, "INVESTMENT_NOT_ACTIVE", "investment is not active")
	ErrNotMatured          = apperr.New(apperr.KindPrecondition, "NOT_MATURED", "investment has not reached maturity")
	ErrInsuranceNotOffered = apperr.New(apperr.KindValidation, "INSURANCE_NOT_OFFERED", "product does not offer insurance")
)
