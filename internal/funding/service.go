package funding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/congo-pay/walletcore/internal/gateway"
	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/metrics"
	"github.com/congo-pay/walletcore/internal/money"
	"github.com/congo-pay/walletcore/internal/notification"
)

// Outcome describes what a reconciliation did.
type Outcome string

const (
	OutcomeCredited         Outcome = "credited"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeFailed           Outcome = "failed"
	OutcomeCanceled         Outcome = "canceled"
	OutcomeRefunded         Outcome = "refunded"
	OutcomeIgnored          Outcome = "ignored"
)

const (
	sourceWebhook = "webhook"
	sourcePoll    = "poll"
)

// Sender delivers best-effort notifications.
type Sender interface {
	Dispatch(message notification.Message)
}

// Service reconciles card deposits made through the payment gateway. Webhook and
// poll signals race freely; the conditional status transition decides which one
// credits the wallet.
type Service struct {
	ledger   *ledger.Ledger
	gateway  gateway.Gateway
	currency string
	sender   Sender
	logger   *slog.Logger
	metrics  *metrics.Metrics
	polls    singleflight.Group
}

// NewService builds the reconciler. sender may be nil.
func NewService(l *ledger.Ledger, gw gateway.Gateway, currency string, sender Sender, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{ledger: l, gateway: gw, currency: currency, sender: sender, logger: logger, metrics: m}
}

// Created is returned to the client, which completes the payment with ClientSecret.
type Created struct {
	TransactionID string          `json:"transaction_id"`
	IntentID      string          `json:"intent_id"`
	ClientSecret  string          `json:"client_secret"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        ledger.Status   `json:"status"`
}

// Result is the outcome of a reconciliation attempt.
type Result struct {
	TransactionID string          `json:"transaction_id"`
	IntentID      string          `json:"intent_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        ledger.Status   `json:"status"`
	Outcome       Outcome         `json:"outcome"`
}

// CreateIntent opens a gateway intent for amount and records a PENDING deposit that
// carries the intent identifier.
func (s *Service) CreateIntent(ctx context.Context, userID string, amount decimal.Decimal) (Created, error) {
	if !money.Positive(amount) {
		return Created{}, ledger.ErrInvalidAmount
	}
	if _, err := s.ledger.Wallet(ctx, userID); err != nil {
		return Created{}, err
	}

	reference := uuid.NewString()
	intent, err := s.gateway.CreateIntent(ctx, gateway.CreateIntentRequest{
		Amount:    money.ToMinor(amount),
		Currency:  s.currency,
		Reference: reference,
		Metadata:  map[string]string{"user_id": userID},
	})
	if err != nil {
		return Created{}, fmt.Errorf("create gateway intent: %w", err)
	}

	var rec ledger.Transaction
	err = s.ledger.Atomic(ctx, func(tx *ledger.Tx) error {
		var err error
		rec, err = tx.Record(ctx, ledger.Draft{
			Kind:              ledger.KindDeposit,
			DestinationUserID: userID,
			Amount:            amount,
			NetAmount:         amount,
			Status:            ledger.StatusPending,
			Metadata: map[string]any{
				"method":    "card",
				"intent_id": intent.ID,
				"reference": reference,
			},
		})
		if err != nil {
			return err
		}
		return tx.AttachIntent(ctx, ledger.PaymentIntent{
			IntentID:      intent.ID,
			TransactionID: rec.ID,
			UserID:        userID,
			Amount:        amount,
			Currency:      s.currency,
			Status:        ledger.IntentPending,
			LastPayload:   intent.Raw,
		})
	})
	if err != nil {
		// The gateway intent exists but nothing references it; a later webhook for
		// it is ignored.
		s.logger.ErrorContext(ctx, "gateway intent left without a transaction",
			slog.String("intent_id", intent.ID),
			slog.String("user_id", userID),
			slog.Any("error", err))
		return Created{}, err
	}

	s.logger.InfoContext(ctx, "payment intent created",
		slog.String("transaction_id", rec.ID),
		slog.String("intent_id", intent.ID),
		slog.String("amount", amount.StringFixed(money.Scale)))
	return Created{
		TransactionID: rec.ID,
		IntentID:      intent.ID,
		ClientSecret:  intent.ClientSecret,
		Amount:        amount,
		Currency:      s.currency,
		Status:        rec.Status,
	}, nil
}

// ReconcileFromWebhook applies a verified gateway event. Redelivered events are
// no-ops.
func (s *Service) ReconcileFromWebhook(ctx context.Context, event gateway.Event) (Result, error) {
	var (
		res Result
		err error
	)
	switch event.Kind() {
	case gateway.EventSucceeded:
		res, err = s.settle(ctx, event.IntentID(), gateway.StatusSucceeded, event.Raw)
	case gateway.EventFailed:
		res, err = s.settle(ctx, event.IntentID(), gateway.StatusFailed, event.Raw)
	case gateway.EventCanceled:
		res, err = s.settle(ctx, event.IntentID(), gateway.StatusCanceled, event.Raw)
	case gateway.EventRefunded:
		res, err = s.refund(ctx, event)
	default:
		s.logger.InfoContext(ctx, "ignoring webhook event", slog.String("event_id", event.ID), slog.String("type", event.Type))
		res = Result{IntentID: event.IntentID(), Outcome: OutcomeIgnored}
	}

	if errors.Is(err, ledger.ErrIntentNotFound) {
		s.logger.WarnContext(ctx, "webhook for unknown intent", slog.String("event_id", event.ID), slog.String("intent_id", event.IntentID()))
		res, err = Result{IntentID: event.IntentID(), Outcome: OutcomeIgnored}, nil
	}
	if err != nil {
		s.metrics.Reconciliation(sourceWebhook, "error")
		return Result{}, err
	}
	s.metrics.Reconciliation(sourceWebhook, string(res.Outcome))
	return res, nil
}

// ReconcileFromPoll asks the gateway for the intent's authoritative status and
// settles it. Concurrent polls of one intent share a single gateway request.
func (s *Service) ReconcileFromPoll(ctx context.Context, userID, intentID string) (Result, error) {
	p, err := s.ledger.Intent(ctx, intentID)
	if err != nil {
		return Result{}, err
	}
	if p.UserID != userID {
		return Result{}, ledger.ErrIntentNotFound
	}

	rec, err := s.ledger.Transaction(ctx, p.TransactionID)
	if err != nil {
		return Result{}, err
	}
	switch rec.Status {
	case ledger.StatusCompleted:
		s.metrics.Reconciliation(sourcePoll, string(OutcomeAlreadyProcessed))
		return resultFor(p, rec, OutcomeAlreadyProcessed), nil
	case ledger.StatusFailed, ledger.StatusCancelled:
		return resultFor(p, rec, OutcomeAlreadyProcessed), ErrPaymentFailed
	}

	v, err, _ := s.polls.Do(intentID, func() (interface{}, error) {
		return s.gateway.RetrieveIntent(context.WithoutCancel(ctx), intentID)
	})
	if err != nil {
		s.metrics.Reconciliation(sourcePoll, "error")
		return Result{}, fmt.Errorf("retrieve gateway intent: %w", err)
	}
	intent := v.(gateway.Intent)

	switch intent.Status {
	case gateway.StatusSucceeded:
		res, err := s.settle(ctx, intentID, intent.Status, intent.Raw)
		if err != nil {
			s.metrics.Reconciliation(sourcePoll, "error")
			return Result{}, err
		}
		s.metrics.Reconciliation(sourcePoll, string(res.Outcome))
		return res, nil
	case gateway.StatusFailed, gateway.StatusCanceled:
		res, err := s.settle(ctx, intentID, intent.Status, intent.Raw)
		if err != nil {
			return Result{}, err
		}
		s.metrics.Reconciliation(sourcePoll, string(res.Outcome))
		return res, ErrPaymentFailed
	default:
		err := s.ledger.Atomic(ctx, func(tx *ledger.Tx) error {
			return tx.TouchIntent(ctx, intentID, intent.Raw)
		})
		if err != nil {
			s.logger.WarnContext(ctx, "could not store gateway payload", slog.String("intent_id", intentID), slog.Any("error", err))
		}
		s.metrics.Reconciliation(sourcePoll, "pending")
		return resultFor(p, rec, OutcomeIgnored), ErrPaymentNotCompleted
	}
}

// settle performs the guarded transition for a terminal gateway status. On success
// the wallet is credited in the same unit of work, and only by the caller whose
// transition applied.
func (s *Service) settle(ctx context.Context, intentID string, status gateway.Status, payload json.RawMessage) (Result, error) {
	var (
		res      Result
		userID   string
		credited bool
	)
	err := s.ledger.Atomic(ctx, func(tx *ledger.Tx) error {
		p, err := tx.Intent(ctx, intentID)
		if err != nil {
			return err
		}
		userID = p.UserID

		to, intentTo, outcome := ledger.StatusCompleted, ledger.IntentSucceeded, OutcomeCredited
		switch status {
		case gateway.StatusFailed:
			to, intentTo, outcome = ledger.StatusFailed, ledger.IntentFailed, OutcomeFailed
		case gateway.StatusCanceled:
			to, intentTo, outcome = ledger.StatusCancelled, ledger.IntentCanceled, OutcomeCanceled
		}

		changed, err := tx.Transition(ctx, p.TransactionID, ledger.StatusPending, to, payload)
		if err != nil {
			return err
		}
		rec, err := tx.Transaction(ctx, p.TransactionID)
		if err != nil {
			return err
		}
		if !changed {
			res = resultFor(p, rec, OutcomeAlreadyProcessed)
			return nil
		}

		if to == ledger.StatusCompleted {
			if _, err := tx.Credit(ctx, p.UserID, rec.NetAmount); err != nil {
				return err
			}
			credited = true
		}
		if _, err := tx.SwapIntentStatus(ctx, intentID, ledger.IntentPending, intentTo, payload); err != nil {
			return err
		}
		res = resultFor(p, rec, outcome)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.InfoContext(ctx, "payment intent reconciled",
		slog.String("intent_id", intentID),
		slog.String("transaction_id", res.TransactionID),
		slog.String("outcome", string(res.Outcome)))
	if credited {
		s.notify(notification.KindDeposit, userID,
			fmt.Sprintf("Your wallet was credited with %s %s", res.Amount.StringFixed(money.Scale), s.currency))
	}
	return res, nil
}

// refund compensates a completed deposit: debit the user, record a refund row and
// annotate the original. The original's amounts are never touched.
//
// amount_refunded is cumulative. Each event debits only the part not yet refunded,
// and the intent moves to refunded once the whole net amount is back.
func (s *Service) refund(ctx context.Context, event gateway.Event) (Result, error) {
	intentID := event.IntentID()
	var (
		res    Result
		userID string
	)
	err := s.ledger.Atomic(ctx, func(tx *ledger.Tx) error {
		p, err := tx.Intent(ctx, intentID)
		if err != nil {
			return err
		}
		userID = p.UserID

		original, err := tx.Transaction(ctx, p.TransactionID)
		if err != nil {
			return err
		}
		if p.Status != ledger.IntentSucceeded {
			res = resultFor(p, original, OutcomeAlreadyProcessed)
			return nil
		}
		if original.Status != ledger.StatusCompleted {
			return fmt.Errorf("refund of %s transaction %s: %w", original.Status, original.ID, ledger.ErrInvalidStatus)
		}

		target := original.NetAmount
		if cumulative := money.FromMinor(event.Data.Object.AmountRefunded); cumulative.IsPositive() && cumulative.LessThan(target) {
			target = cumulative
		}
		amount := target.Sub(p.RefundedTotal)
		if !amount.IsPositive() {
			res = resultFor(p, original, OutcomeAlreadyProcessed)
			return nil
		}
		next := ledger.IntentSucceeded
		if target.Equal(original.NetAmount) {
			next = ledger.IntentRefunded
		}
		raised, err := tx.RaiseRefundedTotal(ctx, intentID, p.RefundedTotal, target, next, event.Raw)
		if err != nil {
			return err
		}
		if !raised {
			res = resultFor(p, original, OutcomeAlreadyProcessed)
			return nil
		}

		if _, err := tx.Debit(ctx, p.UserID, amount); err != nil {
			return err
		}
		refund, err := tx.Record(ctx, ledger.Draft{
			Kind:         ledger.KindRefund,
			SourceUserID: p.UserID,
			Amount:       amount,
			NetAmount:    amount,
			Status:       ledger.StatusCompleted,
			Metadata: map[string]any{
				"original_transaction_id": original.ID,
				"intent_id":               intentID,
				"event_id":                event.ID,
			},
		})
		if err != nil {
			return err
		}
		if err := tx.Annotate(ctx, original.ID, map[string]any{
			"refunded_by":    refund.ID,
			"refunded_at":    tx.Now(),
			"refunded_total": target.StringFixed(money.Scale),
		}); err != nil {
			return err
		}
		res = Result{TransactionID: refund.ID, IntentID: intentID, Amount: amount, Status: refund.Status, Outcome: OutcomeRefunded}
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			s.logger.ErrorContext(ctx, "refund exceeds wallet balance, manual recovery required",
				slog.String("intent_id", intentID), slog.String("event_id", event.ID))
		}
		return Result{}, err
	}

	if res.Outcome == OutcomeRefunded {
		s.notify(notification.KindRefund, userID,
			fmt.Sprintf("A card payment of %s %s was refunded", res.Amount.StringFixed(money.Scale), s.currency))
	}
	return res, nil
}

func (s *Service) notify(kind, userID, body string) {
	if s.sender == nil || userID == "" {
		return
	}
	s.sender.Dispatch(notification.Message{Kind: kind, Destination: userID, Body: body})
}

func resultFor(p ledger.PaymentIntent, rec ledger.Transaction, outcome Outcome) Result {
	return Result{
		TransactionID: rec.ID,
		IntentID:      p.IntentID,
		Amount:        rec.NetAmount,
		Status:        rec.Status,
		Outcome:       outcome,
	}
}
