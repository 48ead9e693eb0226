package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/clock"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/observability"
	"github.com/egannguyen/autoparts-marketplace/internal/repository"
	"github.com/egannguyen/autoparts-marketplace/internal/service"
)

// RelayResult counts what one pass of the relay did.
type RelayResult struct {
	Issued  int
	Retried int
	Failed  int
}

// IssuanceRelay drains the issuance outbox, creating the bundled warranty
// for each protected line of a transaction.
type IssuanceRelay struct {
	outbox       repository.IssuanceOutbox
	transactions repository.TransactionRepository
	warranties   *service.WarrantyService
	clock        clock.Clock
	metrics      *observability.Metrics
	log          *zap.Logger
	cfg          RelayConfig
}

func NewIssuanceRelay(
	outbox repository.IssuanceOutbox,
	transactions repository.TransactionRepository,
	warranties *service.WarrantyService,
	clk clock.Clock,
	metrics *observability.Metrics,
	log *zap.Logger,
	cfg RelayConfig,
) *IssuanceRelay {
	return &IssuanceRelay{
		outbox:       outbox,
		transactions: transactions,
		warranties:   warranties,
		clock:        clk,
		metrics:      metrics,
		log:          log.Named("worker.issuance"),
		cfg:          cfg.withDefaults(),
	}
}

func (r *IssuanceRelay) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("issuance relay run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce leases one batch of due requests and processes it.
func (r *IssuanceRelay) RunOnce(ctx context.Context) (RelayResult, error) {
	var res RelayResult
	batch, err := r.outbox.ClaimPending(ctx, r.clock.Now(), r.cfg.Lease, r.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("failed to claim issuance requests: %w", err)
	}
	for _, req := range batch {
		if err := r.process(ctx, req, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// process returns an error only when the outbox itself cannot be updated.
func (r *IssuanceRelay) process(ctx context.Context, req entity.IssuanceRequest, res *RelayResult) error {
	log := r.log.With(
		zap.String("request_id", req.ID),
		zap.String("transaction_id", req.TransactionID),
		zap.String("product_id", req.ProductID),
		zap.Int("attempt", req.Attempts),
	)

	tx, err := r.transactions.Get(ctx, req.TransactionID)
	switch {
	case apperror.IsKind(err, apperror.KindNotFound):
		return r.fail(ctx, req, "transaction no longer exists", log, res)
	case err != nil:
		return r.retry(ctx, req, err, log, res)
	case tx.Status == entity.TransactionCancelled || tx.Status == entity.TransactionFailed:
		return r.fail(ctx, req, "transaction "+string(tx.Status), log, res)
	}

	out, err := r.warranties.Create(ctx, service.WarrantyRequest{
		Kind:              req.Kind,
		BuyerID:           req.BuyerID,
		StoreID:           req.StoreID,
		TransactionID:     req.TransactionID,
		ProductID:         req.ProductID,
		TransactionAmount: req.Amount,
		Level:             req.Level,
		IsIncluded:        true,
		Description:       "bundled with transaction " + req.TransactionID,
	})
	if err == nil {
		if reason, gone := r.withdrawn(ctx, req, out.Warranty.ID, log); gone {
			return r.fail(ctx, req, reason, log, res)
		}
		return r.issued(ctx, req, out.Warranty.ID, log, res)
	}

	if apperror.IsKind(err, apperror.KindConflict) {
		live, ferr := r.warranties.FindLive(ctx, req.TransactionID, req.ProductID)
		if ferr == nil && live != nil {
			log.Info("warranty already issued for line", zap.String("warranty_id", live.ID))
			return r.issued(ctx, req, live.ID, log, res)
		}
	}
	if apperror.IsKind(err, apperror.KindValidation) {
		return r.fail(ctx, req, err.Error(), log, res)
	}
	return r.retry(ctx, req, err, log, res)
}

// withdrawn re-reads the transaction after issuing and cancels the new
// warranty if the order was cancelled or failed in the meantime.
func (r *IssuanceRelay) withdrawn(ctx context.Context, req entity.IssuanceRequest, warrantyID string, log *zap.Logger) (string, bool) {
	tx, err := r.transactions.Get(ctx, req.TransactionID)
	if err != nil {
		log.Warn("failed to re-read transaction after issuing", zap.String("warranty_id", warrantyID), zap.Error(err))
		return "", false
	}
	if tx.Status != entity.TransactionCancelled && tx.Status != entity.TransactionFailed {
		return "", false
	}
	reason := "transaction " + string(tx.Status)
	_, err = r.warranties.Cancel(ctx, warrantyID, reason)
	if err != nil && !apperror.IsKind(err, apperror.KindIllegalTransition) {
		log.Error("failed to cancel warranty of withdrawn transaction", zap.String("warranty_id", warrantyID), zap.Error(err))
	}
	return reason, true
}

func (r *IssuanceRelay) issued(ctx context.Context, req entity.IssuanceRequest, warrantyID string, log *zap.Logger, res *RelayResult) error {
	if err := r.outbox.MarkIssued(ctx, req.ID, warrantyID, r.clock.Now()); err != nil {
		return fmt.Errorf("failed to mark issuance request %s issued: %w", req.ID, err)
	}
	log.Debug("bundled warranty issued", zap.String("warranty_id", warrantyID))
	res.Issued++
	return nil
}

func (r *IssuanceRelay) retry(ctx context.Context, req entity.IssuanceRequest, cause error, log *zap.Logger, res *RelayResult) error {
	if req.Attempts >= r.cfg.MaxAttempts {
		return r.fail(ctx, req, cause.Error(), log, res)
	}
	next := r.clock.Now().Add(r.cfg.RetryBackoff * time.Duration(req.Attempts))
	if err := r.outbox.Reschedule(ctx, req.ID, cause.Error(), next); err != nil {
		return fmt.Errorf("failed to reschedule issuance request %s: %w", req.ID, errors.Join(err, cause))
	}
	log.Warn("warranty issuance failed, will retry", zap.Time("next_attempt_at", next), zap.Error(cause))
	r.metrics.IssuanceFailed(ctx, false)
	res.Retried++
	return nil
}

func (r *IssuanceRelay) fail(ctx context.Context, req entity.IssuanceRequest, reason string, log *zap.Logger, res *RelayResult) error {
	if err := r.outbox.MarkFailed(ctx, req.ID, reason, r.clock.Now()); err != nil {
		return fmt.Errorf("failed to mark issuance request %s failed: %w", req.ID, err)
	}
	log.Error("warranty issuance abandoned", zap.String("reason", reason))
	r.metrics.IssuanceFailed(ctx, true)
	res.Failed++
	return nil
}
