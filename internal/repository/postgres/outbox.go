package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/repository"
)

const issuanceColumns = `id, transaction_id, buyer_id, store_id, product_id, kind, level, amount, status, attempts,
	last_error, warranty_id, next_attempt_at, created_at, processed_at`

type outboxRepo struct {
	db *sql.DB
}

// NewIssuanceOutbox creates an IssuanceOutbox on the warranty_issuance_requests table.
func NewIssuanceOutbox(db *sql.DB) repository.IssuanceOutbox {
	return &outboxRepo{db: db}
}

func insertIssuanceRequest(ctx context.Context, tx *sql.Tx, req entity.IssuanceRequest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO warranty_issuance_requests (`+issuanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		req.ID, req.TransactionID, req.BuyerID, req.StoreID, req.ProductID, req.Kind, req.Level, req.Amount,
		req.Status, req.Attempts, req.LastError, req.WarrantyID, req.NextAttemptAt, req.CreatedAt, req.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to insert issuance request for %s: %w", req.ProductID, err)
	}
	return nil
}

func scanIssuance(row scanner) (entity.IssuanceRequest, error) {
	var req entity.IssuanceRequest
	err := row.Scan(&req.ID, &req.TransactionID, &req.BuyerID, &req.StoreID, &req.ProductID, &req.Kind, &req.Level,
		&req.Amount, &req.Status, &req.Attempts, &req.LastError, &req.WarrantyID, &req.NextAttemptAt, &req.CreatedAt,
		&req.ProcessedAt)
	return req, err
}

// ClaimPending leases due requests with FOR UPDATE SKIP LOCKED so concurrent
// relays never pick up the same row.
func (r *outboxRepo) ClaimPending(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]entity.IssuanceRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+issuanceColumns+` FROM warranty_issuance_requests
		WHERE status = 'pending' AND next_attempt_at <= $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending issuance requests: %w", err)
	}
	var (
		claimed []entity.IssuanceRequest
		ids     []string
	)
	for rows.Next() {
		req, err := scanIssuance(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan issuance request: %w", err)
		}
		req.Attempts++
		req.NextAttemptAt = now.Add(lease)
		claimed = append(claimed, req)
		ids = append(ids, req.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating issuance rows: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE warranty_issuance_requests
		SET attempts = attempts + 1, next_attempt_at = $2
		WHERE id = ANY($1)`, pq.Array(ids), now.Add(lease)); err != nil {
		return nil, fmt.Errorf("failed to lease issuance requests: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return claimed, nil
}

func (r *outboxRepo) exec(ctx context.Context, id, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update issuance request %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound("issuance request", id)
	}
	return nil
}

func (r *outboxRepo) MarkIssued(ctx context.Context, id, warrantyID string, now time.Time) error {
	return r.exec(ctx, id, `UPDATE warranty_issuance_requests
		SET status = 'issued', warranty_id = $2, last_error = '', processed_at = $3 WHERE id = $1`, warrantyID, now)
}

func (r *outboxRepo) Reschedule(ctx context.Context, id, lastErr string, next time.Time) error {
	return r.exec(ctx, id, `UPDATE warranty_issuance_requests
		SET last_error = $2, next_attempt_at = $3 WHERE id = $1`, lastErr, next)
}

func (r *outboxRepo) MarkFailed(ctx context.Context, id, lastErr string, now time.Time) error {
	return r.exec(ctx, id, `UPDATE warranty_issuance_requests
		SET status = 'failed', last_error = $2, processed_at = $3 WHERE id = $1`, lastErr, now)
}

func (r *outboxRepo) ListByTransaction(ctx context.Context, transactionID string) ([]entity.IssuanceRequest, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+issuanceColumns+` FROM warranty_issuance_requests
		WHERE transaction_id = $1 ORDER BY created_at ASC, id ASC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list issuance requests for %s: %w", transactionID, err)
	}
	defer rows.Close()

	out := []entity.IssuanceRequest{}
	for rows.Next() {
		req, err := scanIssuance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issuance request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issuance rows: %w", err)
	}
	return out, nil
}
