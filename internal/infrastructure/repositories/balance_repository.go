package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/invest-portal/portal_service/internal/domain/entities"
)

const pqUniqueViolation = "23505"

// BalanceRepository is the investor balance ledger. Debits run in a single
// database transaction with a row lock on the balance and a uniquely
// referenced ledger entry, which makes each withdrawal debit atomic and
// idempotent.
type BalanceRepository struct {
	db *sqlx.DB
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *sqlx.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// GetBalance returns the investor's available balance
func (r *BalanceRepository) GetBalance(ctx context.Context, investorID uuid.UUID) (decimal.Decimal, error) {
	var available decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`SELECT available FROM investor_balances WHERE investor_id = $1`, investorID).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, entities.ErrBalanceNotFound
	}
	return available, err
}

// DebitForWithdrawal debits the withdrawal amount and writes the matching
// ledger transaction. The transaction reference is the withdrawal id and is
// unique, so a repeated call for the same withdrawal rolls back and reports
// entities.ErrDuplicateDebit instead of double-debiting.
func (r *BalanceRepository) DebitForWithdrawal(ctx context.Context, w *entities.WithdrawalRequest) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var available decimal.Decimal
	err = tx.QueryRowContext(ctx,
		`SELECT available FROM investor_balances WHERE investor_id = $1 FOR UPDATE`,
		w.InvestorID).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.ErrBalanceNotFound
	}
	if err != nil {
		return err
	}

	if available.LessThan(w.Amount) {
		return fmt.Errorf("%w: have %s, need %s",
			entities.ErrInsufficientFundsAtApproval, available.String(), w.Amount.String())
	}

	reference := w.ID.String()
	destination := "bank account"
	if w.Type == entities.WithdrawalTypeCrypto {
		destination = "crypto wallet"
	}
	metadata := entities.TransactionMetadata{
		"withdrawal_id":    w.ID.String(),
		"destination_type": string(w.Type),
		"platform_fee":     w.PlatformFee.String(),
		"net_amount":       w.NetAmount.String(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, investor_id, type, amount, currency, description, status, reference, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
		uuid.New(), w.InvestorID, entities.TransactionTypeWithdrawal, w.Amount, w.Currency,
		fmt.Sprintf("Withdrawal to %s", destination), entities.TransactionStatusCompleted,
		reference, metadata)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return entities.ErrDuplicateDebit
		}
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE investor_balances SET available = available - $2, updated_at = now()
		WHERE investor_id = $1`, w.InvestorID, w.Amount)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Credit adds funds back to the investor's balance with a matching ledger
// entry. Used for explicit, operator-initiated reversals; the unique
// reference prevents crediting the same reversal twice.
func (r *BalanceRepository) Credit(ctx context.Context, investorID uuid.UUID, amount decimal.Decimal, reference, description string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("credit amount must be positive")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, investor_id, type, amount, currency, description, status, reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'USD', $5, $6, $7, now(), now())`,
		uuid.New(), investorID, entities.TransactionTypeDeposit, amount,
		description, entities.TransactionStatusCompleted, reference)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return entities.ErrDuplicateDebit
		}
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO investor_balances (investor_id, available, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (investor_id) DO UPDATE
		SET available = investor_balances.available + EXCLUDED.available, updated_at = now()`,
		investorID, amount)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetTransactions returns an investor's ledger entries, newest first
func (r *BalanceRepository) GetTransactions(ctx context.Context, investorID uuid.UUID, limit, offset int) ([]*entities.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `
		SELECT id, investor_id, type, amount, currency, description, status, reference, metadata, created_at, updated_at
		FROM transactions
		WHERE investor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	var txs []*entities.Transaction
	if err := r.db.SelectContext(ctx, &txs, query, investorID, limit, offset); err != nil {
		return nil, err
	}
	return txs, nil
}
