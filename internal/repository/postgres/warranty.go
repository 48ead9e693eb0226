package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/repository"
)

const warrantyColumns = `id, kind, status, level, buyer_id, store_id, transaction_id, product_id, description,
	transaction_amount, coverage_amount, coverage_percentage, max_coverage_amount, cost, currency, is_included,
	terms, activation_date, expiration_date, last_renewal_date, cancelled_at, cancel_reason, created_at, updated_at`

type warrantyRepo struct {
	db *sql.DB
}

// NewWarrantyRepository creates a WarrantyRepository backed by Postgres.
func NewWarrantyRepository(db *sql.DB) repository.WarrantyRepository {
	return &warrantyRepo{db: db}
}

func (r *warrantyRepo) Create(ctx context.Context, w *entity.Warranty) error {
	terms, err := json.Marshal(w.Terms)
	if err != nil {
		return fmt.Errorf("failed to marshal warranty terms: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO warranties (`+warrantyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		w.ID, w.Kind, w.Status, w.Level, w.BuyerID, w.StoreID, w.TransactionID, w.ProductID, w.Description,
		w.TransactionAmount, w.CoverageAmount, w.CoveragePercentage, w.MaxCoverageAmount, w.Cost, w.Currency, w.IsIncluded,
		terms, w.ActivationDate, w.ExpirationDate, w.LastRenewalDate, w.CancelledAt, w.CancelReason, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		if constraint, ok := isUniqueViolation(err); ok {
			if constraint == "warranties_live_line_idx" {
				return apperror.Conflict("transaction already has a live warranty", "transaction "+w.TransactionID)
			}
			return apperror.Conflict("warranty " + w.ID + " already exists")
		}
		return fmt.Errorf("failed to insert warranty: %w", err)
	}
	return nil
}

func scanWarranty(row scanner) (*entity.Warranty, error) {
	var (
		w     entity.Warranty
		terms []byte
	)
	err := row.Scan(&w.ID, &w.Kind, &w.Status, &w.Level, &w.BuyerID, &w.StoreID, &w.TransactionID, &w.ProductID,
		&w.Description, &w.TransactionAmount, &w.CoverageAmount, &w.CoveragePercentage, &w.MaxCoverageAmount,
		&w.Cost, &w.Currency, &w.IsIncluded, &terms, &w.ActivationDate, &w.ExpirationDate, &w.LastRenewalDate,
		&w.CancelledAt, &w.CancelReason, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(terms, &w.Terms); err != nil {
		return nil, fmt.Errorf("failed to decode terms of warranty %s: %w", w.ID, err)
	}
	return &w, nil
}

func (r *warrantyRepo) Get(ctx context.Context, id string) (*entity.Warranty, error) {
	w, err := scanWarranty(r.db.QueryRowContext(ctx, `SELECT `+warrantyColumns+` FROM warranties WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("warranty", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get warranty %s: %w", id, err)
	}
	return w, nil
}

func (r *warrantyRepo) Update(ctx context.Context, w *entity.Warranty) error {
	res, err := r.db.ExecContext(ctx, `UPDATE warranties
		SET status = $2, activation_date = $3, expiration_date = $4, last_renewal_date = $5,
			cancelled_at = $6, cancel_reason = $7, updated_at = $8
		WHERE id = $1`,
		w.ID, w.Status, w.ActivationDate, w.ExpirationDate, w.LastRenewalDate, w.CancelledAt, w.CancelReason, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update warranty %s: %w", w.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound("warranty", w.ID)
	}
	return nil
}

func (r *warrantyRepo) FindLive(ctx context.Context, transactionID, productID string) (*entity.Warranty, error) {
	w, err := scanWarranty(r.db.QueryRowContext(ctx, `SELECT `+warrantyColumns+` FROM warranties
		WHERE transaction_id = $1 AND product_id = $2 AND status IN ('pending', 'active')
		LIMIT 1`, transactionID, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up live warranty for %s: %w", transactionID, err)
	}
	return w, nil
}

func (r *warrantyRepo) ListByTransaction(ctx context.Context, transactionID string) ([]entity.Warranty, error) {
	return r.list(ctx, `WHERE transaction_id = $1 ORDER BY created_at ASC, id ASC`, transactionID)
}

func (r *warrantyRepo) ListByBuyer(ctx context.Context, buyerID string) ([]entity.Warranty, error) {
	return r.list(ctx, `WHERE buyer_id = $1 ORDER BY created_at ASC, id ASC`, buyerID)
}

func (r *warrantyRepo) ListExpiring(ctx context.Context, now time.Time, limit int) ([]entity.Warranty, error) {
	if limit <= 0 {
		return r.list(ctx, `WHERE status = 'active' AND expiration_date <= $1 ORDER BY expiration_date ASC`, now)
	}
	return r.list(ctx, `WHERE status = 'active' AND expiration_date <= $1 ORDER BY expiration_date ASC LIMIT $2`, now, limit)
}

func (r *warrantyRepo) list(ctx context.Context, where string, args ...any) ([]entity.Warranty, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+warrantyColumns+` FROM warranties `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list warranties: %w", err)
	}
	defer rows.Close()

	out := []entity.Warranty{}
	for rows.Next() {
		w, err := scanWarranty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan warranty: %w", err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating warranty rows: %w", err)
	}
	return out, nil
}
