package otp

import "github.com/congo-pay/walletcore/internal/apperr"

var (
	ErrNotFound          = apperr.New(apperr.KindPrecondition, "NOT_FOUND", "no active verification code")
	ErrAlreadyUsed       = apperr.New(apperr.KindConflict, "ALREADY_USED", "verification code already used")
	ErrExpired           = apperr.New(apperr.KindPrecondition, "EXPIRED", "verification code expired")
	ErrAttemptsExhausted = apperr.New(apperr.KindPrecondition, "ATTEMPTS_EXHAUSTED", "too many failed attempts, request a new code")
	ErrMismatch          = apperr.New(apperr.KindPrecondition, "MISMATCH", "verification code does not match")
	ErrRateLimited       = apperr.New(apperr.KindConflict, "RATE_LIMITED", "a code was sent recently, try again later")
	ErrInvalidPurpose    = apperr.New(apperr.KindValidation, "INVALID_PURPOSE", "unknown verification purpose")
)

// byCode maps store result strings back onto the sentinels.
var byCode = map[string]error{
	ErrNotFound.Code:          ErrNotFound,
	ErrAlreadyUsed.Code:       ErrAlreadyUsed,
	ErrExpired.Code:           ErrExpired,
	ErrAttemptsExhausted.Code: ErrAttemptsExhausted,
	ErrMismatch.Code:          ErrMismatch,
	ErrRateLimited.Code:       ErrRateLimited,
}
