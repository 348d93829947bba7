package payments

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/fees"
	"github.com/congo-pay/walletcore/internal/identity"
	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/money"
	"github.com/congo-pay/walletcore/internal/notification"
	"github.com/congo-pay/walletcore/internal/otp"
)

// Directory resolves users for recipient lookup and fee tiers.
type Directory interface {
	FindByID(ctx context.Context, id string) (identity.User, error)
	FindByPhone(ctx context.Context, phone string) (identity.User, error)
}

// Verifier checks a one-time code for a sensitive operation.
type Verifier interface {
	Verify(ctx context.Context, subject string, purpose otp.Purpose, code string) error
}

// Sender delivers best-effort notifications.
type Sender interface {
	Dispatch(message notification.Message)
}

// Service composes the OTP gate, fee policy and ledger into money-moving workflows.
// Every workflow runs its balance changes and records in one ledger unit of work.
type Service struct {
	ledger    *ledger.Ledger
	fees      *fees.Policy
	otp       Verifier
	directory Directory
	sender    Sender
	currency  string
	logger    *slog.Logger
}

// NewService constructs the orchestrators. sender may be nil.
func NewService(l *ledger.Ledger, policy *fees.Policy, verifier Verifier, directory Directory, sender Sender, currency string, logger *slog.Logger) *Service {
	return &Service{
		ledger:    l,
		fees:      policy,
		otp:       verifier,
		directory: directory,
		sender:    sender,
		currency:  currency,
		logger:    logger,
	}
}

// Result is returned by every orchestrator.
type Result struct {
	TransactionID string          `json:"transaction_id"`
	Kind          ledger.Kind     `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	Total         decimal.Decimal `json:"total"`
	Status        ledger.Status   `json:"status"`
	Balance       decimal.Decimal `json:"balance"`
}

func resultFor(rec ledger.Transaction, balance decimal.Decimal) Result {
	return Result{
		TransactionID: rec.ID,
		Kind:          rec.Kind,
		Amount:        rec.Amount,
		Fee:           rec.Fee,
		Total:         rec.Amount.Add(rec.Fee),
		Status:        rec.Status,
		Balance:       balance,
	}
}

// QuoteFee previews the fee userID would pay for op.
func (s *Service) QuoteFee(ctx context.Context, userID string, op fees.Operation, amount decimal.Decimal) (fees.Quote, error) {
	if !money.Positive(amount) {
		return fees.Quote{}, ledger.ErrInvalidAmount
	}
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return fees.Quote{}, err
	}
	return s.fees.Quote(op, fees.TierFor(user.KYCApproved()), amount), nil
}

func (s *Service) activeUser(ctx context.Context, userID string) (identity.User, error) {
	user, err := s.directory.FindByID(ctx, userID)
	if err != nil {
		return identity.User{}, err
	}
	if !user.Active {
		return identity.User{}, identity.ErrAccountInactive
	}
	return user, nil
}

// resolve finds a counterparty by id, or by phone when no id is given. Unknown and
// deactivated users are both reported as not found.
func (s *Service) resolve(ctx context.Context, id, phone string) (identity.User, error) {
	id, phone = strings.TrimSpace(id), strings.TrimSpace(phone)
	var (
		user identity.User
		err  error
	)
	switch {
	case id != "":
		user, err = s.directory.FindByID(ctx, id)
	case phone != "":
		user, err = s.directory.FindByPhone(ctx, phone)
	default:
		return identity.User{}, ErrRecipientRequired
	}
	if errors.Is(err, identity.ErrUserNotFound) {
		return identity.User{}, ErrRecipientNotFound
	}
	if err != nil {
		return identity.User{}, err
	}
	if !user.Active {
		return identity.User{}, ErrRecipientNotFound
	}
	return user, nil
}

func (s *Service) notify(kind, userID, body string) {
	if s.sender == nil {
		return
	}
	s.sender.Dispatch(notification.Message{Kind: kind, Destination: userID, Body: body})
}
