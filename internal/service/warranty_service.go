package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/clock"
	"github.com/egannguyen/autoparts-marketplace/internal/coverage"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/lock"
	"github.com/egannguyen/autoparts-marketplace/internal/messaging"
	"github.com/egannguyen/autoparts-marketplace/internal/observability"
	"github.com/egannguyen/autoparts-marketplace/internal/repository"
)

const defaultSweepBatch = 500

// WarrantyOptions tunes the lock guarding live-warranty uniqueness.
type WarrantyOptions struct {
	LockTTL  time.Duration
	LockWait time.Duration
}

func DefaultWarrantyOptions() WarrantyOptions {
	return WarrantyOptions{LockTTL: 10 * time.Second, LockWait: 2 * time.Second}
}

// WarrantyRequest is the input to ValidateCreation and Create.
type WarrantyRequest struct {
	Kind              entity.WarrantyKind    `json:"kind"`
	BuyerID           string                 `json:"buyer_id"`
	StoreID           string                 `json:"store_id"`
	TransactionID     string                 `json:"transaction_id,omitempty"`
	ProductID         string                 `json:"product_id,omitempty"`
	TransactionAmount decimal.Decimal        `json:"transaction_amount"`
	Level             entity.ProtectionLevel `json:"level"`
	IsIncluded        bool                   `json:"is_included"`
	Description       string                 `json:"description,omitempty"`
}

func (r WarrantyRequest) withDefaults() WarrantyRequest {
	if r.Kind == "" {
		r.Kind = entity.KindPurchaseProtection
	}
	if r.Level == "" {
		r.Level = entity.LevelBasic
	}
	return r
}

// WarrantyValidation is the dry-run answer shown before committing.
type WarrantyValidation struct {
	Valid    bool           `json:"valid"`
	Errors   []string       `json:"errors,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Quote    coverage.Quote `json:"quote"`

	live *entity.Warranty
}

// WarrantyResult is a created warranty plus its quote and any warnings.
type WarrantyResult struct {
	Warranty *entity.Warranty `json:"warranty"`
	Quote    coverage.Quote   `json:"quote"`
	Warnings []string         `json:"warnings,omitempty"`
}

// SweepResult lists the warranties one sweep expired.
type SweepResult struct {
	Expired []string `json:"expired"`
	Failed  int      `json:"failed"`
}

// WarrantyService runs the warranty lifecycle.
type WarrantyService struct {
	warranties repository.WarrantyRepository
	directory  repository.Directory
	ledger     *LedgerService
	locker     lock.Locker
	publisher  messaging.Publisher
	clock      clock.Clock
	metrics    *observability.Metrics
	log        *zap.Logger
	opts       WarrantyOptions
}

func NewWarrantyService(
	warranties repository.WarrantyRepository,
	directory repository.Directory,
	ledger *LedgerService,
	locker lock.Locker,
	publisher messaging.Publisher,
	clk clock.Clock,
	metrics *observability.Metrics,
	log *zap.Logger,
	opts WarrantyOptions,
) *WarrantyService {
	return &WarrantyService{
		warranties: warranties,
		directory:  directory,
		ledger:     ledger,
		locker:     locker,
		publisher:  publisher,
		clock:      clk,
		metrics:    metrics,
		log:        log.Named("warranty"),
		opts:       opts,
	}
}

// ValidateCreation checks a request without writing anything. Infrastructure
// failures are returned as errors; everything else lands in the result.
func (s *WarrantyService) ValidateCreation(ctx context.Context, req WarrantyRequest) (*WarrantyValidation, error) {
	req = req.withDefaults()
	v := &WarrantyValidation{}

	if !req.Kind.Valid() {
		v.Errors = append(v.Errors, fmt.Sprintf("unknown warranty kind %q", req.Kind))
	}
	if !req.Level.Valid() {
		v.Errors = append(v.Errors, fmt.Sprintf("unknown protection level %q", req.Level))
	}
	if err := requireParty(ctx, "buyer", req.BuyerID, s.directory.BuyerExists, &v.Errors); err != nil {
		return nil, err
	}
	if err := requireParty(ctx, "store", req.StoreID, s.directory.StoreExists, &v.Errors); err != nil {
		return nil, err
	}

	if !req.TransactionAmount.IsPositive() {
		v.Errors = append(v.Errors, "transaction amount must be positive")
	} else if limit := coverage.Cap(req.Level); req.TransactionAmount.GreaterThan(limit) {
		v.Warnings = append(v.Warnings, fmt.Sprintf("transaction amount %s exceeds the %s coverage cap of %s; coverage is capped",
			req.TransactionAmount.StringFixed(2), req.Level, limit.StringFixed(2)))
	}

	if req.TransactionID != "" {
		live, err := s.warranties.FindLive(ctx, req.TransactionID, req.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to check live warranties for transaction %s: %w", req.TransactionID, err)
		}
		if live != nil {
			v.live = live
			v.Errors = append(v.Errors, fmt.Sprintf("transaction %s already has %s warranty %s", req.TransactionID, live.Status, live.ID))
		}
	}

	v.Quote = coverage.QuoteFor(req.TransactionAmount, req.Kind, req.Level, req.IsIncluded)
	v.Valid = len(v.Errors) == 0
	return v, nil
}

// Create validates and stores a pending warranty, then binds it to the
// transaction's ledger. A ledger failure is reported as a warning.
func (s *WarrantyService) Create(ctx context.Context, req WarrantyRequest) (*WarrantyResult, error) {
	req = req.withDefaults()

	if req.TransactionID != "" {
		key := "warranty:live:" + req.TransactionID + ":" + req.ProductID
		unlock, err := lock.Acquire(ctx, s.locker, key, s.opts.LockTTL, s.opts.LockWait)
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, apperror.Conflict("another warranty is being issued for this transaction", "transaction "+req.TransactionID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to lock transaction %s: %w", req.TransactionID, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("failed to release warranty lock", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	v, err := s.ValidateCreation(ctx, req)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		if v.live != nil && len(v.Errors) == 1 {
			return nil, apperror.Conflict("transaction already has a live warranty", v.Errors...)
		}
		return nil, apperror.Validation("warranty validation failed", v.Errors...)
	}

	now := s.clock.Now()
	w := &entity.Warranty{
		ID:                 uuid.NewString(),
		Kind:               req.Kind,
		Status:             entity.WarrantyPending,
		Level:              req.Level,
		BuyerID:            req.BuyerID,
		StoreID:            req.StoreID,
		TransactionID:      req.TransactionID,
		ProductID:          req.ProductID,
		Description:        req.Description,
		TransactionAmount:  req.TransactionAmount,
		CoverageAmount:     v.Quote.Coverage.Amount,
		CoveragePercentage: v.Quote.Coverage.Percentage,
		MaxCoverageAmount:  v.Quote.Coverage.Cap,
		Cost:               v.Quote.Cost,
		Currency:           entity.DefaultCurrency,
		IsIncluded:         req.IsIncluded,
		Terms:              v.Quote.Terms,
		ExpirationDate:     now.AddDate(0, 0, v.Quote.DurationDays),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.warranties.Create(ctx, w); err != nil {
		return nil, err
	}
	s.log.Info("warranty issued",
		zap.String("warranty_id", w.ID),
		zap.String("transaction_id", w.TransactionID),
		zap.String("level", string(w.Level)),
		zap.Bool("included", w.IsIncluded),
	)
	s.metrics.WarrantyIssued(ctx, string(w.Level), w.IsIncluded)

	result := &WarrantyResult{Warranty: w, Quote: v.Quote, Warnings: v.Warnings}
	if w.TransactionID != "" {
		if _, err := s.ledger.CreateOrAttach(ctx, w); err != nil {
			s.log.Error("failed to attach warranty to secure transaction",
				zap.String("warranty_id", w.ID),
				zap.String("transaction_id", w.TransactionID),
				zap.Error(err),
			)
			result.Warnings = append(result.Warnings, "warranty issued but the secure transaction could not be updated")
		}
	}

	publish(ctx, s.publisher, s.log, messaging.TopicWarrantyIssued, w.ID, entity.WarrantyIssued{
		WarrantyID:     w.ID,
		TransactionID:  w.TransactionID,
		Kind:           w.Kind,
		Level:          w.Level,
		CoverageAmount: w.CoverageAmount,
		IssuedAt:       now,
	})
	return result, nil
}

// Activate moves a pending warranty to active.
func (s *WarrantyService) Activate(ctx context.Context, id string) (*entity.Warranty, error) {
	w, err := s.warranties.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if w.Status != entity.WarrantyPending || !w.Transition(entity.WarrantyActive, now) {
		return nil, apperror.IllegalTransition("warranty", id, w.Status, "activate")
	}
	w.ActivationDate = &now
	if err := s.warranties.Update(ctx, w); err != nil {
		return nil, err
	}
	s.log.Info("warranty activated", zap.String("warranty_id", w.ID))

	publish(ctx, s.publisher, s.log, messaging.TopicWarrantyActivated, w.ID, entity.WarrantyActivated{
		WarrantyID:    w.ID,
		TransactionID: w.TransactionID,
		ActivatedAt:   now,
	})
	return w, nil
}

// Extend pushes the expiration of an active warranty out by days.
func (s *WarrantyService) Extend(ctx context.Context, id string, days int) (*entity.Warranty, error) {
	if days <= 0 {
		return nil, apperror.Validation("extension days must be positive", fmt.Sprintf("got %d", days))
	}
	w, err := s.warranties.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != entity.WarrantyActive {
		return nil, apperror.IllegalTransition("warranty", id, w.Status, "extend")
	}
	now := s.clock.Now()
	w.ExpirationDate = w.ExpirationDate.AddDate(0, 0, days)
	w.LastRenewalDate = &now
	w.UpdatedAt = now
	if err := s.warranties.Update(ctx, w); err != nil {
		return nil, err
	}
	s.log.Info("warranty extended",
		zap.String("warranty_id", w.ID),
		zap.Int("days", days),
		zap.Time("expiration_date", w.ExpirationDate),
	)
	return w, nil
}

// Cancel ends a pending or active warranty and detaches it from its ledger.
func (s *WarrantyService) Cancel(ctx context.Context, id, reason string) (*entity.Warranty, error) {
	w, err := s.warranties.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	from := w.Status
	if !w.Transition(entity.WarrantyCancelled, now) {
		return nil, apperror.IllegalTransition("warranty", id, from, "cancel")
	}
	w.CancelledAt = &now
	w.CancelReason = reason
	if err := s.warranties.Update(ctx, w); err != nil {
		return nil, err
	}
	s.log.Info("warranty cancelled", zap.String("warranty_id", w.ID), zap.String("reason", reason))

	if w.TransactionID != "" {
		if _, err := s.ledger.Detach(ctx, w.TransactionID, w.ID, "cancelled"); err != nil && !apperror.IsKind(err, apperror.KindNotFound) {
			s.log.Warn("failed to detach cancelled warranty from secure transaction",
				zap.String("warranty_id", w.ID),
				zap.String("transaction_id", w.TransactionID),
				zap.Error(err),
			)
		}
	}
	return w, nil
}

// MarkResolved closes an active warranty after an upheld claim.
func (s *WarrantyService) MarkResolved(ctx context.Context, id string) (*entity.Warranty, error) {
	w, err := s.warranties.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := w.Status
	if !w.Transition(entity.WarrantyResolved, s.clock.Now()) {
		return nil, apperror.IllegalTransition("warranty", id, from, "resolve")
	}
	if err := s.warranties.Update(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// CheckClaimEligibility reports whether an active warranty's terms cover ct.
func (s *WarrantyService) CheckClaimEligibility(ctx context.Context, id string, ct entity.ClaimType) (bool, error) {
	w, err := s.warranties.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return eligible(w, ct), nil
}

func eligible(w *entity.Warranty, ct entity.ClaimType) bool {
	return w.Status == entity.WarrantyActive && w.Terms.Covers(ct)
}

// SweepExpired flips every active warranty past its expiration to expired,
// batch by batch until none are left.
func (s *WarrantyService) SweepExpired(ctx context.Context, batchSize int) (*SweepResult, error) {
	if batchSize <= 0 {
		batchSize = defaultSweepBatch
	}
	result := &SweepResult{Expired: []string{}}
	for {
		now := s.clock.Now()
		batch, err := s.warranties.ListExpiring(ctx, now, batchSize)
		if err != nil {
			return result, fmt.Errorf("failed to list expiring warranties: %w", err)
		}

		expired := 0
		for i := range batch {
			w := &batch[i]
			if !w.Transition(entity.WarrantyExpired, now) {
				continue
			}
			if err := s.warranties.Update(ctx, w); err != nil {
				s.log.Error("failed to expire warranty", zap.String("warranty_id", w.ID), zap.Error(err))
				result.Failed++
				continue
			}
			expired++
			result.Expired = append(result.Expired, w.ID)
			publish(ctx, s.publisher, s.log, messaging.TopicWarrantyExpired, w.ID, entity.WarrantyExpiredEvent{
				WarrantyID:     w.ID,
				TransactionID:  w.TransactionID,
				ExpirationDate: w.ExpirationDate,
				ExpiredAt:      now,
			})
		}

		if len(batch) < batchSize || expired == 0 {
			break
		}
	}

	s.metrics.WarrantiesExpired(ctx, len(result.Expired))
	if len(result.Expired) > 0 || result.Failed > 0 {
		s.log.Info("expiration sweep finished",
			zap.Int("expired", len(result.Expired)),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (s *WarrantyService) Get(ctx context.Context, id string) (*entity.Warranty, error) {
	return s.warranties.Get(ctx, id)
}

// FindLive returns the pending or active warranty of a transaction line, or nil.
func (s *WarrantyService) FindLive(ctx context.Context, transactionID, productID string) (*entity.Warranty, error) {
	return s.warranties.FindLive(ctx, transactionID, productID)
}

func (s *WarrantyService) ListByBuyer(ctx context.Context, buyerID string) ([]entity.Warranty, error) {
	return s.warranties.ListByBuyer(ctx, buyerID)
}

func (s *WarrantyService) ListByTransaction(ctx context.Context, transactionID string) ([]entity.Warranty, error) {
	return s.warranties.ListByTransaction(ctx, transactionID)
}

// AvailableCoverage is what a claim filed now could draw on.
func (s *WarrantyService) AvailableCoverage(ctx context.Context, id string) (decimal.Decimal, error) {
	w, err := s.warranties.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return w.AvailableCoverage(), nil
}
