package identity

import "time"

const (
	RoleCustomer = "customer"
	RoleAgent    = "agent"
	RoleAdmin    = "admin"
)

const (
	KYCPending  = "pending"
	KYCApproved = "approved"
	KYCRejected = "rejected"
)

// User represents a registered wallet owner.
type User struct {
	ID           string
	Phone        string
	Role         string
	KYCStatus    string
	Active       bool
	PINHash      []byte
	DeviceID     string
	TokenVersion int
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// KYCApproved reports whether the user passed identity verification. Fees and limits
// depend on it.
func (u User) KYCApproved() bool {
	return u.KYCStatus == KYCApproved
}

// Credentials request structure.
type Credentials struct {
	Phone    string
	PIN      string
	DeviceID string
}
