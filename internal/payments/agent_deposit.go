package payments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/identity"
	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/money"
	"github.com/congo-pay/walletcore/internal/notification"
)

// AgentDepositInput is a cash-in performed by an agent on behalf of a customer.
type AgentDepositInput struct {
	AgentID        string
	AgentRole      string
	RecipientID    string
	RecipientPhone string
	Amount         decimal.Decimal
}

// AgentDepositResult carries both linked records. Balance is the agent's.
type AgentDepositResult struct {
	Result
	AgentCreditID string `json:"agent_credit_id"`
	RecipientID   string `json:"recipient_id"`
}

// DepositViaAgent moves float from the agent's wallet to the customer's. Both balance
// changes and both records commit together or not at all.
func (s *Service) DepositViaAgent(ctx context.Context, in AgentDepositInput) (AgentDepositResult, error) {
	if !money.Positive(in.Amount) {
		return AgentDepositResult{}, ledger.ErrInvalidAmount
	}
	if in.AgentRole != identity.RoleAgent {
		return AgentDepositResult{}, ErrNotAnAgent
	}
	if _, err := s.activeUser(ctx, in.AgentID); err != nil {
		return AgentDepositResult{}, err
	}
	customer, err := s.resolve(ctx, in.RecipientID, in.RecipientPhone)
	if err != nil {
		return AgentDepositResult{}, err
	}
	if customer.ID == in.AgentID {
		return AgentDepositResult{}, ErrSelfTransfer
	}

	var (
		deposit, credit ledger.Transaction
		agentWallet     ledger.Wallet
	)
	err = s.ledger.Atomic(ctx, func(tx *ledger.Tx) error {
		if err := tx.LockWallets(ctx, in.AgentID, customer.ID); err != nil {
			return err
		}
		var err error
		if agentWallet, err = tx.Debit(ctx, in.AgentID, in.Amount); err != nil {
			return err
		}
		if _, err = tx.Credit(ctx, customer.ID, in.Amount); err != nil {
			return err
		}
		deposit, err = tx.Record(ctx, ledger.Draft{
			Kind:              ledger.KindDeposit,
			DestinationUserID: customer.ID,
			Amount:            in.Amount,
			NetAmount:         in.Amount,
			Status:            ledger.StatusCompleted,
			Metadata:          map[string]any{"method": "agent", "agent_id": in.AgentID},
		})
		if err != nil {
			return err
		}
		credit, err = tx.Record(ctx, ledger.Draft{
			Kind:              ledger.KindAgentCredit,
			SourceUserID:      in.AgentID,
			DestinationUserID: customer.ID,
			Amount:            in.Amount,
			NetAmount:         in.Amount,
			Status:            ledger.StatusCompleted,
			Metadata:          map[string]any{"deposit_transaction_id": deposit.ID},
		})
		if err != nil {
			return err
		}
		return tx.Annotate(ctx, deposit.ID, map[string]any{"agent_credit_transaction_id": credit.ID})
	})
	if err != nil {
		return AgentDepositResult{}, err
	}

	s.logger.InfoContext(ctx, "agent deposit completed",
		slog.String("transaction_id", deposit.ID),
		slog.String("agent_credit_id", credit.ID),
		slog.String("amount", in.Amount.StringFixed(money.Scale)))
	s.notify(notification.KindDeposit, customer.ID,
		fmt.Sprintf("You received a cash deposit of %s %s", in.Amount.StringFixed(money.Scale), s.currency))

	return AgentDepositResult{
		Result:        resultFor(deposit, agentWallet.Balance),
		AgentCreditID: credit.ID,
		RecipientID:   customer.ID,
	}, nil
}
