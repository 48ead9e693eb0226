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

const claimColumns = `id, claim_number, warranty_id, transaction_id, buyer_id, store_id, type, status, priority,
	details, claimed_amount, approved_amount, refund_amount, currency, evidence, resolution, communications,
	assigned_to, assigned_at, filed_at, deadline_date, last_updated, resolved_at`

type claimRepo struct {
	db *sql.DB
}

// NewClaimRepository creates a ClaimRepository backed by Postgres.
func NewClaimRepository(db *sql.DB) repository.ClaimRepository {
	return &claimRepo{db: db}
}

type claimDocuments struct {
	details, evidence, resolution, communications []byte
}

func encodeClaim(c *entity.Claim) (claimDocuments, error) {
	var (
		docs claimDocuments
		err  error
	)
	if docs.details, err = json.Marshal(c.Details); err != nil {
		return docs, fmt.Errorf("failed to marshal claim details: %w", err)
	}
	evidence := c.Evidence
	if evidence == nil {
		evidence = []entity.Evidence{}
	}
	if docs.evidence, err = json.Marshal(evidence); err != nil {
		return docs, fmt.Errorf("failed to marshal claim evidence: %w", err)
	}
	if docs.resolution, err = json.Marshal(c.Resolution); err != nil {
		return docs, fmt.Errorf("failed to marshal claim resolution: %w", err)
	}
	comms := c.Communications
	if comms == nil {
		comms = []entity.Communication{}
	}
	if docs.communications, err = json.Marshal(comms); err != nil {
		return docs, fmt.Errorf("failed to marshal claim communications: %w", err)
	}
	return docs, nil
}

func (r *claimRepo) Create(ctx context.Context, c *entity.Claim) error {
	docs, err := encodeClaim(c)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO claims (`+claimColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		c.ID, c.ClaimNumber, c.WarrantyID, c.TransactionID, c.BuyerID, c.StoreID, c.Type, c.Status, c.Priority,
		docs.details, c.ClaimedAmount, c.ApprovedAmount, c.RefundAmount, c.Currency, docs.evidence, docs.resolution,
		docs.communications, c.AssignedTo, c.AssignedAt, c.FiledAt, c.DeadlineDate, c.LastUpdated, c.ResolvedAt)
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return apperror.Conflict("claim number " + c.ClaimNumber + " already issued")
		}
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

func scanClaim(row scanner) (*entity.Claim, error) {
	var (
		c    entity.Claim
		docs claimDocuments
	)
	err := row.Scan(&c.ID, &c.ClaimNumber, &c.WarrantyID, &c.TransactionID, &c.BuyerID, &c.StoreID, &c.Type,
		&c.Status, &c.Priority, &docs.details, &c.ClaimedAmount, &c.ApprovedAmount, &c.RefundAmount, &c.Currency,
		&docs.evidence, &docs.resolution, &docs.communications, &c.AssignedTo, &c.AssignedAt, &c.FiledAt,
		&c.DeadlineDate, &c.LastUpdated, &c.ResolvedAt)
	if err != nil {
		return nil, err
	}
	for _, d := range []struct {
		raw  []byte
		into any
	}{
		{docs.details, &c.Details},
		{docs.evidence, &c.Evidence},
		{docs.resolution, &c.Resolution},
		{docs.communications, &c.Communications},
	} {
		if err := json.Unmarshal(d.raw, d.into); err != nil {
			return nil, fmt.Errorf("failed to decode claim %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func (r *claimRepo) Get(ctx context.Context, id string) (*entity.Claim, error) {
	c, err := scanClaim(r.db.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("claim", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim %s: %w", id, err)
	}
	return c, nil
}

func (r *claimRepo) GetByNumber(ctx context.Context, number string) (*entity.Claim, error) {
	c, err := scanClaim(r.db.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE claim_number = $1`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("claim", number)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim %s: %w", number, err)
	}
	return c, nil
}

func (r *claimRepo) Update(ctx context.Context, c *entity.Claim) error {
	docs, err := encodeClaim(c)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE claims
		SET type = $2, status = $3, priority = $4, details = $5, claimed_amount = $6, approved_amount = $7,
			refund_amount = $8, evidence = $9, resolution = $10, communications = $11, assigned_to = $12,
			assigned_at = $13, deadline_date = $14, last_updated = $15, resolved_at = $16
		WHERE id = $1`,
		c.ID, c.Type, c.Status, c.Priority, docs.details, c.ClaimedAmount, c.ApprovedAmount, c.RefundAmount,
		docs.evidence, docs.resolution, docs.communications, c.AssignedTo, c.AssignedAt, c.DeadlineDate,
		c.LastUpdated, c.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to update claim %s: %w", c.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound("claim", c.ID)
	}
	return nil
}

func (r *claimRepo) ListByWarranty(ctx context.Context, warrantyID string) ([]entity.Claim, error) {
	return r.list(ctx, `WHERE warranty_id = $1 ORDER BY filed_at ASC, claim_number ASC`, warrantyID)
}

func (r *claimRepo) ListByBuyer(ctx context.Context, buyerID string) ([]entity.Claim, error) {
	return r.list(ctx, `WHERE buyer_id = $1 ORDER BY filed_at ASC, claim_number ASC`, buyerID)
}

func (r *claimRepo) list(ctx context.Context, where string, args ...any) ([]entity.Claim, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+claimColumns+` FROM claims `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	out := []entity.Claim{}
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claim rows: %w", err)
	}
	return out, nil
}
