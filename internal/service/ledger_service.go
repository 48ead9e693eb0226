package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/clock"
	"github.com/egannguyen/autoparts-marketplace/internal/coverage"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/repository"
)

const ledgerSaveAttempts = 3

const (
	riskHighValue        = "high_value"
	riskExtendedCoverage = "extended_coverage"
)

// LedgerService maintains the SecureTransaction bound to each protected purchase.
// Writes are optimistic: a version conflict reloads the row and replays the change.
type LedgerService struct {
	repo   repository.SecureTransactionRepository
	events repository.EventStore
	clock  clock.Clock
	log    *zap.Logger
}

func NewLedgerService(repo repository.SecureTransactionRepository, events repository.EventStore, clk clock.Clock, log *zap.Logger) *LedgerService {
	return &LedgerService{
		repo:   repo,
		events: events,
		clock:  clk,
		log:    log.Named("ledger"),
	}
}

// GetByTransaction returns the ledger row and its full event history.
func (s *LedgerService) GetByTransaction(ctx context.Context, transactionID string) (*entity.SecureTransaction, error) {
	return s.repo.GetByTransaction(ctx, transactionID)
}

// HistoryEntry is one stored ledger event with its stream version.
type HistoryEntry struct {
	Version    int             `json:"version"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// History returns the raw event stream of a transaction's ledger in version order.
func (s *LedgerService) History(ctx context.Context, transactionID string) ([]HistoryEntry, error) {
	st, err := s.repo.GetByTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	records, err := s.events.LoadEvents(ctx, st.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger history: %w", err)
	}
	out := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, HistoryEntry{
			Version:    rec.Version,
			EventType:  rec.EventType,
			Payload:    json.RawMessage(rec.Payload),
			RecordedAt: rec.CreatedAt,
		})
	}
	return out, nil
}

// CreateOrAttach opens the ledger for the warranty's transaction, or attaches
// the warranty to the existing one. Attaching the same warranty twice is a no-op.
func (s *LedgerService) CreateOrAttach(ctx context.Context, w *entity.Warranty) (*entity.SecureTransaction, error) {
	if w.TransactionID == "" {
		return nil, apperror.Validation("warranty " + w.ID + " is not bound to a transaction")
	}

	var out *entity.SecureTransaction
	err := s.retry(ctx, w.TransactionID, func() error {
		now := s.clock.Now()
		st, err := s.repo.GetByTransaction(ctx, w.TransactionID)
		if apperror.IsKind(err, apperror.KindNotFound) {
			st = s.open(w, now)
			if err := s.repo.Create(ctx, st); err != nil {
				return err
			}
			s.log.Info("secure transaction opened",
				zap.String("transaction_id", st.TransactionID),
				zap.String("warranty_id", w.ID),
				zap.Int("risk_score", st.RiskScore),
			)
			out = st
			return nil
		}
		if err != nil {
			return err
		}

		if !st.AttachWarranty(w.ID, now) {
			out = st
			return nil
		}
		amount := w.CoverageAmount
		st.AddEvent(entity.EventWarrantyAttached, fmt.Sprintf("warranty %s attached", w.ID), &amount,
			map[string]string{"warranty_id": w.ID, "product_id": w.ProductID}, now)
		if end := now.AddDate(0, 0, coverage.Duration(w.Kind, w.Level)); end.After(st.ProtectionEndDate) {
			st.ProtectionEndDate = end
		}
		if err := s.repo.Save(ctx, st); err != nil {
			return err
		}
		out = st
		return nil
	})
	return out, err
}

func (s *LedgerService) open(w *entity.Warranty, now time.Time) *entity.SecureTransaction {
	end := now.AddDate(0, 0, coverage.Duration(w.Kind, w.Level))
	st := entity.NewSecureTransaction(uuid.NewString(), w.TransactionID, w.BuyerID, w.StoreID, w.Level, now, end)
	st.AttachWarranty(w.ID, now)

	amount := w.CoverageAmount
	st.AddEvent(entity.EventProtectionActivated, "purchase protection activated", &amount,
		map[string]string{"warranty_id": w.ID, "level": string(w.Level)}, now)

	if score, factors := AssessRisk(w.TransactionAmount, w.Level); score > 0 {
		st.SetRisk(score, factors)
		st.AddEvent(entity.EventRiskAssessed, fmt.Sprintf("risk score %d", st.RiskScore), nil,
			map[string]string{"factors": strings.Join(factors, ",")}, now)
	}
	return st
}

// AssessRisk scores a purchase from its amount and protection level, 0..100.
func AssessRisk(amount decimal.Decimal, level entity.ProtectionLevel) (int, []string) {
	score := 0
	factors := []string{}
	if amount.GreaterThan(HighValueThreshold) {
		score += 40
		factors = append(factors, riskHighValue)
	}
	if level == entity.LevelExtended {
		score += 10
		factors = append(factors, riskExtendedCoverage)
	}
	return min(score, 100), factors
}

// Detach removes a warranty from the ledger, recording why.
func (s *LedgerService) Detach(ctx context.Context, transactionID, warrantyID, reason string) (*entity.SecureTransaction, error) {
	return s.mutate(ctx, transactionID, func(st *entity.SecureTransaction, now time.Time) bool {
		if !st.DetachWarranty(warrantyID, now) {
			return false
		}
		st.AddEvent(entity.EventWarrantyDetached, fmt.Sprintf("warranty %s detached", warrantyID), nil,
			map[string]string{"warranty_id": warrantyID, "reason": reason}, now)
		return true
	})
}

// RecordEvent appends a free-form entry to the history.
func (s *LedgerService) RecordEvent(ctx context.Context, transactionID, eventType, description string, amount *decimal.Decimal, metadata map[string]string) (*entity.SecureTransaction, error) {
	if strings.TrimSpace(eventType) == "" {
		return nil, apperror.Validation("event type is required")
	}
	return s.mutate(ctx, transactionID, func(st *entity.SecureTransaction, now time.Time) bool {
		st.AddEvent(eventType, description, amount, metadata, now)
		return true
	})
}

// MarkClaimed records a filed claim and moves the protection to claimed.
func (s *LedgerService) MarkClaimed(ctx context.Context, c *entity.Claim) (*entity.SecureTransaction, error) {
	return s.mutate(ctx, c.TransactionID, func(st *entity.SecureTransaction, now time.Time) bool {
		s.setStatus(st, entity.ProtectionClaimed, now)
		amount := c.ClaimedAmount
		st.AddEvent(entity.EventClaimFiled, fmt.Sprintf("claim %s filed", c.ClaimNumber), &amount, map[string]string{
			"claim_id":     c.ID,
			"claim_number": c.ClaimNumber,
			"claim_type":   string(c.Type),
		}, now)
		return true
	})
}

// CloseClaim records the end of a claim. An upheld claim resolves the
// protection; otherwise a claimed ledger returns to protected once no other
// claim on the transaction is open.
func (s *LedgerService) CloseClaim(ctx context.Context, c *entity.Claim, upheld, othersOpen bool) (*entity.SecureTransaction, error) {
	return s.mutate(ctx, c.TransactionID, func(st *entity.SecureTransaction, now time.Time) bool {
		if upheld {
			s.setStatus(st, entity.ProtectionResolved, now)
		} else if st.Status == entity.ProtectionClaimed && !othersOpen {
			s.setStatus(st, entity.ProtectionProtected, now)
		}
		amount := c.RefundAmount
		st.AddEvent(entity.EventClaimResolved, fmt.Sprintf("claim %s closed as %s", c.ClaimNumber, c.Status), &amount, map[string]string{
			"claim_id":     c.ID,
			"claim_number": c.ClaimNumber,
			"outcome":      string(c.Status),
		}, now)
		return true
	})
}

// RecordExpiry detaches an expired warranty. The protection itself expires
// once no warranty is left. Replaying the same expiry changes nothing.
func (s *LedgerService) RecordExpiry(ctx context.Context, transactionID, warrantyID string, expiredAt time.Time) (*entity.SecureTransaction, error) {
	return s.mutate(ctx, transactionID, func(st *entity.SecureTransaction, now time.Time) bool {
		if !st.DetachWarranty(warrantyID, now) {
			return false
		}
		st.AddEvent(entity.EventWarrantyExpired, fmt.Sprintf("warranty %s expired", warrantyID), nil, map[string]string{
			"warranty_id": warrantyID,
			"expired_at":  expiredAt.UTC().Format(time.RFC3339),
		}, now)
		if st.ActiveWarrantyCount() == 0 {
			s.setStatus(st, entity.ProtectionExpired, now)
		}
		return true
	})
}

func (s *LedgerService) setStatus(st *entity.SecureTransaction, next entity.ProtectionStatus, now time.Time) {
	from := st.Status
	if from == next || !st.SetStatus(next, now) {
		return
	}
	st.AddEvent(entity.EventStatusChanged, fmt.Sprintf("protection %s -> %s", from, next), nil,
		map[string]string{"from": string(from), "to": string(next)}, now)
}

// mutate loads the ledger, applies fn and saves when fn reports a change.
func (s *LedgerService) mutate(ctx context.Context, transactionID string, fn func(*entity.SecureTransaction, time.Time) bool) (*entity.SecureTransaction, error) {
	var out *entity.SecureTransaction
	err := s.retry(ctx, transactionID, func() error {
		st, err := s.repo.GetByTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if fn(st, s.clock.Now()) {
			if err := s.repo.Save(ctx, st); err != nil {
				return err
			}
		}
		out = st
		return nil
	})
	return out, err
}

func (s *LedgerService) retry(ctx context.Context, transactionID string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= ledgerSaveAttempts; attempt++ {
		if err = fn(); !apperror.IsKind(err, apperror.KindConflict) {
			return err
		}
		s.log.Debug("ledger write conflicted, retrying",
			zap.String("transaction_id", transactionID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}
