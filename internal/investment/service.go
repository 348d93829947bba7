package investment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/money"
	"github.com/congo-pay/walletcore/internal/notification"
	"github.com/congo-pay/walletcore/internal/otp"
)

// Verifier checks a one-time code.
type Verifier interface {
	Verify(ctx context.Context, subject string, purpose otp.Purpose, code string) error
}

// Sender delivers best-effort notifications.
type Sender interface {
	Dispatch(message notification.Message)
}

// Service sells products and closes investments. Every preview and execution path
// uses the formulas in returns.go.
type Service struct {
	ledger   *ledger.Ledger
	catalog  Catalog
	otp      Verifier
	sender   Sender
	currency string
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source used for previews.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs the investment service. sender may be nil.
func NewService(l *ledger.Ledger, catalog Catalog, verifier Verifier, sender Sender, currency string, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{ledger: l, catalog: catalog, otp: verifier, sender: sender, currency: currency, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PurchaseQuote previews a purchase.
type PurchaseQuote struct {
	ProductID      string          `json:"product_id"`
	Principal      decimal.Decimal `json:"principal"`
	AnnualRate     decimal.Decimal `json:"annual_rate"`
	DurationMonths int             `json:"duration_months"`
	InsuranceFee   decimal.Decimal `json:"insurance_fee"`
	Total          decimal.Decimal `json:"total"`
	ExpectedReturn decimal.Decimal `json:"expected_return"`
	MaturityValue  decimal.Decimal `json:"maturity_value"`
	MaturesAt      time.Time       `json:"matures_at"`
}

// WithdrawalQuote previews an early withdrawal.
type WithdrawalQuote struct {
	InvestmentID    string          `json:"investment_id"`
	Principal       decimal.Decimal `json:"principal"`
	Penalty         decimal.Decimal `json:"penalty"`
	ForfeitedReturn decimal.Decimal `json:"forfeited_return"`
	AmountReturned  decimal.Decimal `json:"amount_returned"`
}

// View is the client representation of an investment.
type View struct {
	ID              string                  `json:"id"`
	UserID          string                  `json:"user_id"`
	ProductID       string                  `json:"product_id"`
	Principal       decimal.Decimal         `json:"principal"`
	AnnualRate      decimal.Decimal         `json:"annual_rate"`
	DurationMonths  int                     `json:"duration_months"`
	InsuranceFee    decimal.Decimal         `json:"insurance_fee"`
	ExpectedReturn  decimal.Decimal         `json:"expected_return"`
	Status          ledger.InvestmentStatus `json:"status"`
	PurchasedAt     time.Time               `json:"purchased_at"`
	MaturesAt       time.Time               `json:"matures_at"`
	ClosedAt        *time.Time              `json:"closed_at,omitempty"`
	Penalty         decimal.Decimal         `json:"penalty"`
	ForfeitedReturn decimal.Decimal         `json:"forfeited_return"`
	AmountReturned  decimal.Decimal         `json:"amount_returned"`
}

func viewOf(inv ledger.Investment) View {
	return View{
		ID:              inv.ID,
		UserID:          inv.UserID,
		ProductID:       inv.ProductID,
		Principal:       inv.Principal,
		AnnualRate:      inv.AnnualRate,
		DurationMonths:  inv.DurationMonths,
		InsuranceFee:    inv.InsuranceFee,
		ExpectedReturn:  inv.ExpectedReturn,
		Status:          inv.Status,
		PurchasedAt:     inv.PurchasedAt,
		MaturesAt:       inv.MaturesAt,
		ClosedAt:        inv.ClosedAt,
		Penalty:         inv.Penalty,
		ForfeitedReturn: inv.ForfeitedReturn,
		AmountReturned:  inv.AmountReturned,
	}
}

// Receipt is returned by purchase and closing operations.
type Receipt struct {
	Investment    View            `json:"investment"`
	TransactionID string          `json:"transaction_id"`
	Balance       decimal.Decimal `json:"balance"`
}

// Products lists the active catalog.
func (s *Service) Products(ctx context.Context) ([]Product, error) {
	return s.catalog.List(ctx)
}

// Quote previews buying amount of productID.
func (s *Service) Quote(ctx context.Context, productID string, amount decimal.Decimal, insured bool) (PurchaseQuote, error) {
	product, err := s.catalog.Get(ctx, productID)
	if err != nil {
		return PurchaseQuote{}, err
	}
	return quote(product, amount, insured, s.now().UTC())
}

func quote(p Product, amount decimal.Decimal, insured bool, at time.Time) (PurchaseQuote, error) {
	if !money.Positive(amount) {
		return PurchaseQuote{}, ledger.ErrInvalidAmount
	}
	if !p.Accepts(amount) {
		return PurchaseQuote{}, ErrAmountOutOfRange
	}
	if insured && !p.Insured {
		return PurchaseQuote{}, ErrInsuranceNotOffered
	}
	insurance := decimal.Zero
	if insured {
		insurance = InsuranceFee(amount, p.InsuranceRate)
	}
	expected := ExpectedReturn(amount, p.AnnualRate, p.DurationMonths)
	return PurchaseQuote{
		ProductID:      p.ID,
		Principal:      amount,
		AnnualRate:     p.AnnualRate,
		DurationMonths: p.DurationMonths,
		InsuranceFee:   insurance,
		Total:          amount.Add(insurance),
		ExpectedReturn: expected,
		MaturityValue:  amount.Add(expected),
		MaturesAt:      MaturityDate(at, p.DurationMonths),
	}, nil
}

// PurchaseInput requests a new investment.
type PurchaseInput struct {
	UserID    string
	ProductID string
	Amount    decimal.Decimal
	Insured   bool
}

// Purchase debits principal plus any insurance surcharge and opens an investment at
// the product's current rate.
func (s *Service) Purchase(ctx context.Context, in PurchaseInput) (Receipt, error) {
	product, err := s.catalog.Get(ctx, in.ProductID)
	if err != nil {
		return Receipt{}, err
	}
	if _, err := quote(product, in.Amount, in.Insured, s.now().UTC()); err != nil {
		return Receipt{}, err
	}

	var receipt Receipt
	err = s.ledger.Atomic(ctx, func(tx *ledger.Tx) error {
		q, err := quote(product, in.Amount, in.Insured, tx.Now())
		if err != nil {
			return err
		}
		w, err := tx.Debit(ctx, in.UserID, q.Total)
		if err != nil {
			return err
		}
		inv := ledger.Investment{
			ID:             uuid.NewString(),
			UserID:         in.UserID,
			ProductID:      product.ID,
			Principal:      q.Principal,
			AnnualRate:     q.AnnualRate,
			DurationMonths: q.DurationMonths,
			InsuranceFee:   q.InsuranceFee,
			ExpectedReturn: q.ExpectedReturn,
			Status:         ledger.InvestmentActive,
			PurchasedAt:    tx.Now(),
			MaturesAt:      q.MaturesAt,
		}
		rec, err := tx.Record(ctx, ledger.Draft{
			Kind:         ledger.KindInvestmentPurchase,
			SourceUserID: in.UserID,
			Amount:       q.Principal,
			Fee:          q.InsuranceFee,
			NetAmount:    q.Principal,
			Status:       ledger.StatusCompleted,
			Metadata: map[string]any{
				"investment_id": inv.ID,
				"product_id":    product.ID,
				"annual_rate":   q.AnnualRate.String(),
			},
		})
		if err != nil {
			return err
		}
		inv.TransactionID = rec.ID
		if err := tx.AddInvestment(ctx, inv); err != nil {
			return err
		}
		receipt = Receipt{Investment: viewOf(inv), TransactionID: rec.ID, Balance: w.Balance}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	s.logger.InfoContext(ctx, "investment purchased",
		slog.String("investment_id", receipt.Investment.ID),
		slog.String("product_id", product.ID),
		slog.String("principal", in.Amount.StringFixed(money.Scale)))
	s.notify(in.UserID, fmt.Sprintf("Your investment of %s %s in %s is active",
		in.Amount.StringFixed(money.Scale), s.currency, product.Name))
	return receipt, nil
}

// List returns the user's investments, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]View, error) {
	invs, err := s.ledger.Investments(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]View, 0, len(invs))
	for _, inv := range invs {
		out = append(out, viewOf(inv))
	}
	return out, nil
}

// WithdrawalQuote previews closing an active investment early.
func (s *Service) WithdrawalQuote(ctx context.Context, userID, investmentID string) (WithdrawalQuote, error) {
	inv, err := s.owned(ctx, userID, investmentID)
	if err != nil {
		return WithdrawalQuote{}, err
	}
	if inv.Status != ledger.InvestmentActive {
		return WithdrawalQuote{}, ErrInvestmentNotActive
	}
	return withdrawalQuote(inv), nil
}

func withdrawalQuote(inv ledger.Investment) WithdrawalQuote {
	penalty := Penalty(inv.Principal)
	return WithdrawalQuote{
		InvestmentID:    inv.ID,
		Principal:       inv.Principal,
		Penalty:         penalty,
		ForfeitedReturn: inv.ExpectedReturn,
		AmountReturned:  inv.Principal.Sub(penalty),
	}
}

// EarlyWithdraw closes an ACTIVE investment before maturity: the penalty is kept,
// the whole expected return is forfeited and principal minus penalty is credited.
func (s *Service) EarlyWithdraw(ctx context.Context, userID, investmentID, code string) (Receipt, error) {
	inv, err := s.owned(ctx, userID, investmentID)
	if err != nil {
		return Receipt{}, err
	}
	if inv.Status != ledger.InvestmentActive {
		return Receipt{}, ErrInvestmentNotActive
	}
	if !s.now().Before(inv.MaturesAt) {
		return s.Mature(ctx, investmentID)
	}
	if err := s.otp.Verify(ctx, userID, otp.PurposeInvestment, code); err != nil {
		return Receipt{}, err
	}

	receipt, err := s.close(ctx, investmentID, func(inv *ledger.Investment, now time.Time) (string, error) {
		if inv.UserID != userID {
			return "", ledger.ErrInvestmentNotFound
		}
		q := withdrawalQuote(*inv)
		inv.Status = ledger.InvestmentWithdrawn
		inv.Penalty = q.Penalty
		inv.ForfeitedReturn = q.ForfeitedReturn
		inv.AmountReturned = q.AmountReturned
		return "early_withdrawal", nil
	})
	if err != nil {
		return Receipt{}, err
	}
	s.notify(userID, fmt.Sprintf("Your investment was withdrawn early, %s %s returned",
		receipt.Investment.AmountReturned.StringFixed(money.Scale), s.currency))
	return receipt, nil
}

// Mature pays out principal plus expected return once the maturity date has passed.
func (s *Service) Mature(ctx context.Context, investmentID string) (Receipt, error) {
	receipt, err := s.close(ctx, investmentID, func(inv *ledger.Investment, now time.Time) (string, error) {
		if now.Before(inv.MaturesAt) {
			return "", ErrNotMatured
		}
		inv.Status = ledger.InvestmentMatured
		inv.AmountReturned = inv.Principal.Add(inv.ExpectedReturn)
		return "maturity", nil
	})
	if err != nil {
		return Receipt{}, err
	}
	s.notify(receipt.Investment.UserID, fmt.Sprintf("Your investment matured, %s %s credited",
		receipt.Investment.AmountReturned.StringFixed(money.Scale), s.currency))
	return receipt, nil
}

// close runs settle on the locked investment and credits AmountReturned in the same
// unit of work. settle returns the reason stored on the credit record.
func (s *Service) close(ctx context.Context, investmentID string, settle func(inv *ledger.Investment, now time.Time) (string, error)) (Receipt, error) {
	var receipt Receipt
	err := s.ledger.Atomic(ctx, func(tx *ledger.Tx) error {
		inv, err := tx.Investment(ctx, investmentID)
		if err != nil {
			return err
		}
		if inv.Status != ledger.InvestmentActive {
			return ErrInvestmentNotActive
		}
		reason, err := settle(&inv, tx.Now())
		if err != nil {
			return err
		}
		closedAt := tx.Now()
		inv.ClosedAt = &closedAt

		w, err := tx.Credit(ctx, inv.UserID, inv.AmountReturned)
		if err != nil {
			return err
		}
		rec, err := tx.Record(ctx, ledger.Draft{
			Kind:              ledger.KindInvestmentWithdrawal,
			DestinationUserID: inv.UserID,
			Amount:            inv.Principal,
			Fee:               inv.Penalty,
			NetAmount:         inv.AmountReturned,
			Status:            ledger.StatusCompleted,
			Metadata: map[string]any{
				"investment_id":    inv.ID,
				"reason":           reason,
				"forfeited_return": inv.ForfeitedReturn.String(),
			},
		})
		if err != nil {
			return err
		}
		if err := tx.CloseInvestment(ctx, inv, ledger.InvestmentActive); err != nil {
			return err
		}
		receipt = Receipt{Investment: viewOf(inv), TransactionID: rec.ID, Balance: w.Balance}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	s.logger.InfoContext(ctx, "investment closed",
		slog.String("investment_id", investmentID),
		slog.String("status", string(receipt.Investment.Status)),
		slog.String("amount_returned", receipt.Investment.AmountReturned.StringFixed(money.Scale)))
	return receipt, nil
}

// owned reads an investment, hiding other users' investments.
func (s *Service) owned(ctx context.Context, userID, investmentID string) (ledger.Investment, error) {
	inv, err := s.ledger.Investment(ctx, investmentID)
	if err != nil {
		return ledger.Investment{}, err
	}
	if inv.UserID != userID {
		return ledger.Investment{}, ledger.ErrInvestmentNotFound
	}
	return inv, nil
}

func (s *Service) notify(userID, body string) {
	if s.sender == nil {
		return
	}
	s.sender.Dispatch(notification.Message{Kind: notification.KindInvestment, Destination: userID, Body: body})
}
