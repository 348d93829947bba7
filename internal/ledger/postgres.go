package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresBackend persists ledger state in PostgreSQL. Row locks (FOR UPDATE) and
// status-guarded updates provide the concurrency guarantees; no in-process lock is used.
type PostgresBackend struct {
	db *pgxpool.Pool
}

// NewPostgresBackend constructs a Postgres-backed ledger backend.
func NewPostgresBackend(db *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	walletColumns      = `user_id::text, currency, balance, last_activity_at, created_at`
	transactionColumns = `id, kind, source_user_id::text, destination_user_id::text, amount, fee, net_amount,
        status, metadata, gateway_payload, created_at, processed_at`
	intentColumns     = `intent_id, transaction_id, user_id::text, amount, currency, status, refunded_total, last_payload, created_at, updated_at`
	investmentColumns = `id::text, user_id::text, product_id, principal, annual_rate, duration_months, insurance_fee,
        expected_return, status, purchased_at, matures_at, closed_at, penalty, forfeited_return, amount_returned, transaction_id`
)

// Begin opens a read-committed transaction.
func (b *PostgresBackend) Begin(ctx context.Context) (StoreTx, error) {
	tx, err := b.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &postgresTx{tx: tx}, nil
}

func (b *PostgresBackend) GetWallet(ctx context.Context, userID string) (Wallet, error) {
	return selectWallet(ctx, b.db, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
}

func (b *PostgresBackend) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	return selectTransaction(ctx, b.db, id)
}

func (b *PostgresBackend) ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	rows, err := b.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE source_user_id = $1 OR destination_user_id = $1
        ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) GetIntent(ctx context.Context, intentID string) (PaymentIntent, error) {
	return selectIntent(ctx, b.db, `SELECT `+intentColumns+` FROM payment_intents WHERE intent_id = $1`, intentID)
}

func (b *PostgresBackend) GetInvestment(ctx context.Context, id string) (Investment, error) {
	return selectInvestment(ctx, b.db, `SELECT `+investmentColumns+` FROM investments WHERE id = $1`, id)
}

func (b *PostgresBackend) ListInvestments(ctx context.Context, userID string) ([]Investment, error) {
	rows, err := b.db.Query(ctx, `SELECT `+investmentColumns+` FROM investments
        WHERE user_id = $1 ORDER BY purchased_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return contention(t.tx.Commit(ctx))
}

// contention tags deadlock_detected and serialization_failure as ErrContention.
func contention(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40P01" || pgErr.Code == "40001") {
		return fmt.Errorf("%w: %s", ErrContention, pgErr.Message)
	}
	return err
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func (t *postgresTx) InsertWallet(ctx context.Context, w Wallet) (Wallet, error) {
	if _, err := t.tx.Exec(ctx, `INSERT INTO wallets (user_id, currency, balance, last_activity_at, created_at)
        VALUES ($1, $2, $3, $4, $5) ON CONFLICT (user_id) DO NOTHING`,
		w.UserID, w.Currency, w.Balance, w.LastActivityAt, w.CreatedAt); err != nil {
		return Wallet{}, err
	}
	return selectWallet(ctx, t.tx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, w.UserID)
}

func (t *postgresTx) LockWallet(ctx context.Context, userID string) (Wallet, error) {
	w, err := selectWallet(ctx, t.tx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	return w, contention(err)
}

func (t *postgresTx) WriteBalance(ctx context.Context, userID string, balance decimal.Decimal, at time.Time) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE wallets SET balance = $2, last_activity_at = $3 WHERE user_id = $1`, userID, balance, at)
	if err != nil {
		return contention(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (t *postgresTx) InsertTransaction(ctx context.Context, rec Transaction) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO transactions (id, kind, source_user_id, destination_user_id, amount, fee,
        net_amount, status, metadata, created_at, processed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, string(rec.Kind), nullable(rec.SourceUserID), nullable(rec.DestinationUserID),
		rec.Amount, rec.Fee, rec.NetAmount, string(rec.Status), rec.Metadata, rec.CreatedAt, rec.ProcessedAt)
	return err
}

func (t *postgresTx) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	return selectTransaction(ctx, t.tx, id)
}

func (t *postgresTx) CompareAndSetStatus(ctx context.Context, id string, from, to Status, payload json.RawMessage, at time.Time) (bool, error) {
	cmd, err := t.tx.Exec(ctx, `UPDATE transactions
        SET status = $3, gateway_payload = COALESCE($4::jsonb, gateway_payload), processed_at = $5
        WHERE id = $1 AND status = $2`, id, string(from), string(to), rawJSON(payload), at)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (t *postgresTx) MergeMetadata(ctx context.Context, id string, patch map[string]any) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE transactions SET metadata = metadata || $2::jsonb WHERE id = $1`, id, patch)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (t *postgresTx) CountPending(ctx context.Context, userID string, kind Kind) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM transactions
        WHERE source_user_id = $1 AND kind = $2 AND status = $3`, userID, string(kind), string(StatusPending)).Scan(&n)
	return n, err
}

func (t *postgresTx) InsertIntent(ctx context.Context, p PaymentIntent) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO payment_intents (intent_id, transaction_id, user_id, amount, currency, status,
        last_payload, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.IntentID, p.TransactionID, p.UserID, p.Amount, p.Currency, string(p.Status), rawJSON(p.LastPayload), p.CreatedAt, p.UpdatedAt)
	return err
}

func (t *postgresTx) GetIntent(ctx context.Context, intentID string) (PaymentIntent, error) {
	return selectIntent(ctx, t.tx, `SELECT `+intentColumns+` FROM payment_intents WHERE intent_id = $1`, intentID)
}

func (t *postgresTx) CompareAndSetIntentStatus(ctx context.Context, intentID string, from, to IntentStatus, payload json.RawMessage, at time.Time) (bool, error) {
	cmd, err := t.tx.Exec(ctx, `UPDATE payment_intents
        SET status = $3, last_payload = COALESCE($4::jsonb, last_payload), updated_at = $5
        WHERE intent_id = $1 AND status = $2`, intentID, string(from), string(to), rawJSON(payload), at)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (t *postgresTx) RecordIntentRefund(ctx context.Context, intentID string, prevTotal, newTotal decimal.Decimal, to IntentStatus, payload json.RawMessage, at time.Time) (bool, error) {
	cmd, err := t.tx.Exec(ctx, `UPDATE payment_intents
        SET status = $4, refunded_total = $3, last_payload = COALESCE($5::jsonb, last_payload), updated_at = $6
        WHERE intent_id = $1 AND status = 'succeeded' AND refunded_total = $2`,
		intentID, prevTotal, newTotal, string(to), rawJSON(payload), at)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (t *postgresTx) RecordIntentPayload(ctx context.Context, intentID string, payload json.RawMessage, at time.Time) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE payment_intents SET last_payload = $2::jsonb, updated_at = $3 WHERE intent_id = $1`,
		intentID, rawJSON(payload), at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrIntentNotFound
	}
	return nil
}

func (t *postgresTx) InsertInvestment(ctx context.Context, inv Investment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO investments (id, user_id, product_id, principal, annual_rate, duration_months,
        insurance_fee, expected_return, status, purchased_at, matures_at, penalty, forfeited_return, amount_returned, transaction_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		inv.ID, inv.UserID, inv.ProductID, inv.Principal, inv.AnnualRate, inv.DurationMonths, inv.InsuranceFee,
		inv.ExpectedReturn, string(inv.Status), inv.PurchasedAt, inv.MaturesAt, inv.Penalty, inv.ForfeitedReturn,
		inv.AmountReturned, inv.TransactionID)
	return err
}

func (t *postgresTx) LockInvestment(ctx context.Context, id string) (Investment, error) {
	return selectInvestment(ctx, t.tx, `SELECT `+investmentColumns+` FROM investments WHERE id = $1 FOR UPDATE`, id)
}

func (t *postgresTx) CloseInvestment(ctx context.Context, inv Investment, from InvestmentStatus) (bool, error) {
	cmd, err := t.tx.Exec(ctx, `UPDATE investments
        SET status = $3, closed_at = $4, penalty = $5, forfeited_return = $6, amount_returned = $7
        WHERE id = $1 AND status = $2`,
		inv.ID, string(from), string(inv.Status), inv.ClosedAt, inv.Penalty, inv.ForfeitedReturn, inv.AmountReturned)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func selectWallet(ctx context.Context, q querier, query string, userID string) (Wallet, error) {
	var w Wallet
	err := q.QueryRow(ctx, query, userID).Scan(&w.UserID, &w.Currency, &w.Balance, &w.LastActivityAt, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	return w, nil
}

func selectTransaction(ctx context.Context, q querier, id string) (Transaction, error) {
	t, err := scanTransaction(q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	return t, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t        Transaction
		kind     string
		status   string
		source   *string
		dest     *string
		metadata map[string]any
		payload  []byte
	)
	if err := row.Scan(&t.ID, &kind, &source, &dest, &t.Amount, &t.Fee, &t.NetAmount, &status, &metadata, &payload,
		&t.CreatedAt, &t.ProcessedAt); err != nil {
		return Transaction{}, err
	}
	t.Kind = Kind(kind)
	t.Status = Status(status)
	if source != nil {
		t.SourceUserID = *source
	}
	if dest != nil {
		t.DestinationUserID = *dest
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	t.Metadata = metadata
	if len(payload) > 0 {
		t.GatewayPayload = json.RawMessage(payload)
	}
	return t, nil
}

func selectIntent(ctx context.Context, q querier, query, intentID string) (PaymentIntent, error) {
	var (
		p       PaymentIntent
		status  string
		payload []byte
	)
	err := q.QueryRow(ctx, query, intentID).Scan(&p.IntentID, &p.TransactionID, &p.UserID, &p.Amount, &p.Currency,
		&status, &p.RefundedTotal, &payload, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaymentIntent{}, ErrIntentNotFound
		}
		return PaymentIntent{}, err
	}
	p.Status = IntentStatus(status)
	if len(payload) > 0 {
		p.LastPayload = json.RawMessage(payload)
	}
	return p, nil
}

func selectInvestment(ctx context.Context, q querier, query, id string) (Investment, error) {
	inv, err := scanInvestment(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Investment{}, ErrInvestmentNotFound
		}
		return Investment{}, err
	}
	return inv, nil
}

func scanInvestment(row pgx.Row) (Investment, error) {
	var (
		inv    Investment
		status string
	)
	if err := row.Scan(&inv.ID, &inv.UserID, &inv.ProductID, &inv.Principal, &inv.AnnualRate, &inv.DurationMonths,
		&inv.InsuranceFee, &inv.ExpectedReturn, &status, &inv.PurchasedAt, &inv.MaturesAt, &inv.ClosedAt, &inv.Penalty,
		&inv.ForfeitedReturn, &inv.AmountReturned, &inv.TransactionID); err != nil {
		return Investment{}, err
	}
	inv.Status = InvestmentStatus(status)
	return inv, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func rawJSON(payload json.RawMessage) *string {
	if len(payload) == 0 {
		return nil
	}
	s := string(payload)
	return &s
}
