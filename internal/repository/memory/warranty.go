package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
)

type warrantyRepo struct{ s *Store }

// liveLocked returns the live warranty for a transaction line. Caller holds the lock.
func (r *warrantyRepo) liveLocked(transactionID, productID string) (entity.Warranty, bool) {
	for _, w := range r.s.warranties {
		if w.TransactionID == transactionID && w.ProductID == productID && w.Status.Live() {
			return w, true
		}
	}
	return entity.Warranty{}, false
}

func (r *warrantyRepo) Create(_ context.Context, w *entity.Warranty) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.warranties[w.ID]; ok {
		return apperror.Conflict("warranty " + w.ID + " already exists")
	}
	if w.TransactionID != "" && w.Status.Live() {
		if existing, ok := r.liveLocked(w.TransactionID, w.ProductID); ok {
			return apperror.Conflict("transaction already has a live warranty", "warranty "+existing.ID)
		}
	}
	r.s.warranties[w.ID] = *w
	return nil
}

func (r *warrantyRepo) Get(_ context.Context, id string) (*entity.Warranty, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	w, ok := r.s.warranties[id]
	if !ok {
		return nil, apperror.NotFound("warranty", id)
	}
	return &w, nil
}

func (r *warrantyRepo) Update(_ context.Context, w *entity.Warranty) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.warranties[w.ID]; !ok {
		return apperror.NotFound("warranty", w.ID)
	}
	r.s.warranties[w.ID] = *w
	return nil
}

func (r *warrantyRepo) FindLive(_ context.Context, transactionID, productID string) (*entity.Warranty, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	w, ok := r.liveLocked(transactionID, productID)
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r *warrantyRepo) ListByTransaction(_ context.Context, transactionID string) ([]entity.Warranty, error) {
	return r.filter(func(w entity.Warranty) bool { return w.TransactionID == transactionID }), nil
}

func (r *warrantyRepo) ListByBuyer(_ context.Context, buyerID string) ([]entity.Warranty, error) {
	return r.filter(func(w entity.Warranty) bool { return w.BuyerID == buyerID }), nil
}

func (r *warrantyRepo) ListExpiring(_ context.Context, now time.Time, limit int) ([]entity.Warranty, error) {
	out := r.filter(func(w entity.Warranty) bool {
		return w.Status == entity.WarrantyActive && !w.ExpirationDate.After(now)
	})
	slices.SortStableFunc(out, func(a, b entity.Warranty) int {
		return a.ExpirationDate.Compare(b.ExpirationDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *warrantyRepo) filter(keep func(entity.Warranty) bool) []entity.Warranty {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []entity.Warranty{}
	for _, w := range r.s.warranties {
		if keep(w) {
			out = append(out, w)
		}
	}
	slices.SortFunc(out, func(a, b entity.Warranty) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
