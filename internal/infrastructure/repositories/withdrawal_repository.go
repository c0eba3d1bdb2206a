package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/invest-portal/portal_service/internal/domain/entities"
)

// WithdrawalRepository handles withdrawal request persistence
type WithdrawalRepository struct {
	db *sqlx.DB
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

const withdrawalColumns = `
	id, investor_id, amount, platform_fee, net_amount, fee_percentage,
	currency, type, destination, status, progress, processed_by, reason,
	notes, transaction_hash, hash_attached_at, hash_attached_by,
	settlement_generated, settlement_generated_at, created_at, updated_at,
	approved_at, processed_at`

// Create inserts a new withdrawal request
func (r *WithdrawalRepository) Create(ctx context.Context, w *entities.WithdrawalRequest) error {
	query := `
		INSERT INTO withdrawal_requests (
			id, investor_id, amount, platform_fee, net_amount, fee_percentage,
			currency, type, destination, status, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.ExecContext(ctx, query,
		w.ID, w.InvestorID, w.Amount, w.PlatformFee, w.NetAmount, w.FeePercentage,
		w.Currency, w.Type, w.Destination, w.Status, w.Progress, w.CreatedAt, w.UpdatedAt)
	return err
}

// GetByID returns a withdrawal by id. Stored statuses are normalised to the
// canonical enum on the way out.
func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1`
	w := &entities.WithdrawalRequest{}
	if err := r.db.GetContext(ctx, w, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrWithdrawalNotFound
		}
		return nil, err
	}
	if err := normalizeStatus(w); err != nil {
		return nil, err
	}
	return w, nil
}

// GetByInvestorID returns an investor's withdrawals, newest first
func (r *WithdrawalRepository) GetByInvestorID(ctx context.Context, investorID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `SELECT ` + withdrawalColumns + `
		FROM withdrawal_requests
		WHERE investor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	var withdrawals []*entities.WithdrawalRequest
	if err := r.db.SelectContext(ctx, &withdrawals, query, investorID, limit, offset); err != nil {
		return nil, err
	}
	for _, w := range withdrawals {
		if err := normalizeStatus(w); err != nil {
			return nil, err
		}
	}
	return withdrawals, nil
}

// MarkApproved transitions pending -> approved. The WHERE clause doubles as
// the concurrency guard: a request that is no longer pending is untouched.
func (r *WithdrawalRepository) MarkApproved(ctx context.Context, id uuid.UUID, approverID string) error {
	query := `
		UPDATE withdrawal_requests
		SET status = $2, progress = $3, processed_by = $4,
		    approved_at = now(), updated_at = now()
		WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query,
		id, entities.WithdrawalStatusApproved,
		entities.WithdrawalStatusApproved.StoredProgress(),
		approverID, entities.WithdrawalStatusPending)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: withdrawal %s is not pending", entities.ErrInvalidStatusTransition, id)
	}
	return nil
}

// UpdateStatus performs a guarded status transition and derives the stored
// progress and timestamps from the target status
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.WithdrawalStatus, actor *string, notes *string) error {
	query := `
		UPDATE withdrawal_requests
		SET status = $3,
		    progress = $4,
		    processed_by = COALESCE($5, processed_by),
		    notes = COALESCE($6, notes),
		    reason = CASE WHEN $7 THEN COALESCE($6, reason) ELSE reason END,
		    processed_at = CASE WHEN $3 IN ('processing', 'sent_to_blockchain') THEN now() ELSE processed_at END,
		    updated_at = now()
		WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query,
		id, from, to, to.StoredProgress(), actor, notes, to.IsRejectionFamily())
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: withdrawal %s is no longer %s", entities.ErrInvalidStatusTransition, id, from)
	}
	return nil
}

// SetTransactionHash records the on-chain hash, once
func (r *WithdrawalRepository) SetTransactionHash(ctx context.Context, id uuid.UUID, hash, actor string) error {
	query := `
		UPDATE withdrawal_requests
		SET transaction_hash = $2, hash_attached_at = now(), hash_attached_by = $3, updated_at = now()
		WHERE id = $1 AND transaction_hash IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, hash, actor)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: transaction hash already attached to %s", entities.ErrInvalidStatusTransition, id)
	}
	return nil
}

// MarkSettlementGenerated flips the settlement flag and records the document
// in one transaction. Returns true if the document already existed.
func (r *WithdrawalRepository) MarkSettlementGenerated(ctx context.Context, id uuid.UUID, messageReference string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE withdrawal_requests
		SET settlement_generated = TRUE, settlement_generated_at = now(), updated_at = now()
		WHERE id = $1 AND settlement_generated = FALSE`, id)
	if err != nil {
		return false, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return true, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO settlement_documents (id, withdrawal_id, document_type, message_reference, generated_at)
		VALUES ($1, $2, 'MT103', $3, now())`, uuid.New(), id, messageReference)
	if err != nil {
		return false, err
	}

	return false, tx.Commit()
}

// GetStalePending returns pending withdrawals older than the given age
func (r *WithdrawalRepository) GetStalePending(ctx context.Context, olderThan time.Duration) ([]*entities.WithdrawalRequest, error) {
	cutoff := time.Now().Add(-olderThan)
	query := `SELECT ` + withdrawalColumns + `
		FROM withdrawal_requests
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC`

	var withdrawals []*entities.WithdrawalRequest
	if err := r.db.SelectContext(ctx, &withdrawals, query, entities.WithdrawalStatusPending, cutoff); err != nil {
		return nil, err
	}
	for _, w := range withdrawals {
		if err := normalizeStatus(w); err != nil {
			return nil, err
		}
	}
	return withdrawals, nil
}

func normalizeStatus(w *entities.WithdrawalRequest) error {
	status, err := entities.NormalizeWithdrawalStatus(string(w.Status))
	if err != nil {
		return fmt.Errorf("withdrawal %s: %w", w.ID, err)
	}
	w.Status = status
	return nil
}
