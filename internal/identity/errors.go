package identity

import "github.com/congo-pay/walletcore/internal/apperr"

var (
	ErrUserNotFound     = apperr.New(apperr.KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrUserExists       = apperr.New(apperr.KindConflict, "USER_EXISTS", "phone number already registered")
	ErrWeakPIN          = apperr.New(apperr.KindValidation, "WEAK_PIN", "PIN must be at least 4 digits")
	ErrInvalidPhone     = apperr.New(apperr.KindValidation, "INVALID_PHONE", "phone number is required")
	ErrInvalidPIN       = apperr.New(apperr.KindPrecondition, "INVALID_CREDENTIALS", "invalid phone or PIN")
	ErrDeviceRequired   = apperr.New(apperr.KindPrecondition, "DEVICE_BINDING_REQUIRED", "device binding required")
	ErrDeviceMismatch   = apperr.New(apperr.KindPrecondition, "DEVICE_MISMATCH", "device mismatch")
	ErrAccountInactive  = apperr.New(apperr.KindPrecondition, "ACCOUNT_INACTIVE", "account is inactive")
	ErrInvalidKYCStatus = apperr.New(apperr.KindValidation, "INVALID_KYC_STATUS", "unknown KYC status")
)
