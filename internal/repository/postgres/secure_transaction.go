package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/repository"
)

const secureTransactionColumns = `id, transaction_id, buyer_id, store_id, status, level, purchase_date,
	protection_start_date, protection_end_date, last_activity_date, warranties, risk_score, risk_factors,
	created_at, updated_at`

type secureTransactionRepo struct {
	db *sql.DB
}

// NewSecureTransactionRepository stores ledger rows in secure_transactions and
// their history in the events table, in one database transaction per save.
func NewSecureTransactionRepository(db *sql.DB) repository.SecureTransactionRepository {
	return &secureTransactionRepo{db: db}
}

func (r *secureTransactionRepo) GetByTransaction(ctx context.Context, transactionID string) (*entity.SecureTransaction, error) {
	var st entity.SecureTransaction
	err := r.db.QueryRowContext(ctx, `SELECT `+secureTransactionColumns+` FROM secure_transactions WHERE transaction_id = $1`, transactionID).
		Scan(&st.ID, &st.TransactionID, &st.BuyerID, &st.StoreID, &st.Status, &st.Level, &st.PurchaseDate,
			&st.ProtectionStartDate, &st.ProtectionEndDate, &st.LastActivityDate, pq.Array(&st.Warranties),
			&st.RiskScore, pq.Array(&st.RiskFactors), &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("secure transaction for transaction", transactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get secure transaction for %s: %w", transactionID, err)
	}

	records, err := loadEvents(ctx, r.db, st.ID)
	if err != nil {
		return nil, err
	}
	if err := st.Rehydrate(records); err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *secureTransactionRepo) Create(ctx context.Context, st *entity.SecureTransaction) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO secure_transactions (`+secureTransactionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			st.ID, st.TransactionID, st.BuyerID, st.StoreID, st.Status, st.Level, st.PurchaseDate,
			st.ProtectionStartDate, st.ProtectionEndDate, st.LastActivityDate, pq.Array(nonNil(st.Warranties)),
			st.RiskScore, pq.Array(nonNil(st.RiskFactors)), st.CreatedAt, st.UpdatedAt)
		if err != nil {
			if _, ok := isUniqueViolation(err); ok {
				return apperror.Conflict("transaction " + st.TransactionID + " already has a secure transaction")
			}
			return fmt.Errorf("failed to insert secure transaction: %w", err)
		}
		return appendEvents(ctx, tx, st.ID, entity.StreamSecureTransaction, 0, protectionEvents(st), time.Now().UTC())
	}, st)
}

func (r *secureTransactionRepo) Save(ctx context.Context, st *entity.SecureTransaction) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		// Appending first takes the version check before the row is touched.
		if err := appendEvents(ctx, tx, st.ID, entity.StreamSecureTransaction, st.Version, protectionEvents(st), time.Now().UTC()); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE secure_transactions
			SET status = $2, level = $3, protection_end_date = $4, last_activity_date = $5, warranties = $6,
				risk_score = $7, risk_factors = $8, updated_at = $9
			WHERE id = $1`,
			st.ID, st.Status, st.Level, st.ProtectionEndDate, st.LastActivityDate, pq.Array(nonNil(st.Warranties)),
			st.RiskScore, pq.Array(nonNil(st.RiskFactors)), st.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update secure transaction %s: %w", st.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return apperror.NotFound("secure transaction", st.ID)
		}
		return nil
	}, st)
}

func (r *secureTransactionRepo) inTx(ctx context.Context, fn func(*sql.Tx) error, st *entity.SecureTransaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	st.MarkCommitted()
	return nil
}
