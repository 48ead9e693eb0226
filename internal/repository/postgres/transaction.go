package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/repository"
)

const transactionColumns = `id, buyer_id, store_id, items, subtotal, tax_amount, commission_amount, warranty_total, total,
	currency, status, payment_status, payment_method, shipping_address, protection_enabled, protection_level,
	coverage_amount, created_at, updated_at, completed_at, cancelled_at`

type transactionRepo struct {
	db *sql.DB
}

// NewTransactionRepository creates a TransactionRepository backed by Postgres.
func NewTransactionRepository(db *sql.DB) repository.TransactionRepository {
	return &transactionRepo{db: db}
}

func (r *transactionRepo) Create(ctx context.Context, t *entity.Transaction, requests []entity.IssuanceRequest) error {
	items, err := json.Marshal(t.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %w", err)
	}
	shipping, err := json.Marshal(t.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		t.ID, t.BuyerID, t.StoreID, items, t.Subtotal, t.TaxAmount, t.CommissionAmount, t.WarrantyTotal, t.Total,
		t.Currency, t.Status, t.PaymentStatus, t.PaymentMethod, shipping, t.ProtectionEnabled, t.ProtectionLevel,
		t.CoverageAmount, t.CreatedAt, t.UpdatedAt, t.CompletedAt, t.CancelledAt)
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return apperror.Conflict("transaction " + t.ID + " already exists")
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	for _, req := range requests {
		if err := insertIssuanceRequest(ctx, tx, req); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanTransaction(row scanner) (*entity.Transaction, error) {
	var (
		t        entity.Transaction
		items    []byte
		shipping []byte
	)
	err := row.Scan(&t.ID, &t.BuyerID, &t.StoreID, &items, &t.Subtotal, &t.TaxAmount, &t.CommissionAmount,
		&t.WarrantyTotal, &t.Total, &t.Currency, &t.Status, &t.PaymentStatus, &t.PaymentMethod, &shipping,
		&t.ProtectionEnabled, &t.ProtectionLevel, &t.CoverageAmount, &t.CreatedAt, &t.UpdatedAt,
		&t.CompletedAt, &t.CancelledAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &t.Items); err != nil {
		return nil, fmt.Errorf("failed to decode line items of %s: %w", t.ID, err)
	}
	if err := json.Unmarshal(shipping, &t.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to decode shipping address of %s: %w", t.ID, err)
	}
	return &t, nil
}

func (r *transactionRepo) Get(ctx context.Context, id string) (*entity.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return t, nil
}

func (r *transactionRepo) Update(ctx context.Context, t *entity.Transaction) error {
	items, err := json.Marshal(t.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE transactions
		SET items = $2, status = $3, payment_status = $4, updated_at = $5, completed_at = $6, cancelled_at = $7
		WHERE id = $1`,
		t.ID, items, t.Status, t.PaymentStatus, t.UpdatedAt, t.CompletedAt, t.CancelledAt)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", t.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound("transaction", t.ID)
	}
	return nil
}

func (r *transactionRepo) ListByBuyer(ctx context.Context, buyerID string) ([]entity.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE buyer_id = $1 ORDER BY created_at ASC, id ASC`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for buyer %s: %w", buyerID, err)
	}
	defer rows.Close()

	out := []entity.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return out, nil
}
