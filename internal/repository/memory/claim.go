package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
)

type claimRepo struct{ s *Store }

func (r *claimRepo) Create(_ context.Context, c *entity.Claim) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.claims[c.ID]; ok {
		return apperror.Conflict("claim " + c.ID + " already exists")
	}
	for _, existing := range r.s.claims {
		if existing.ClaimNumber == c.ClaimNumber {
			return apperror.Conflict("claim number " + c.ClaimNumber + " already issued")
		}
	}
	r.s.claims[c.ID] = cloneClaim(*c)
	return nil
}

func (r *claimRepo) Get(_ context.Context, id string) (*entity.Claim, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.claims[id]
	if !ok {
		return nil, apperror.NotFound("claim", id)
	}
	c = cloneClaim(c)
	return &c, nil
}

func (r *claimRepo) GetByNumber(_ context.Context, number string) (*entity.Claim, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, c := range r.s.claims {
		if c.ClaimNumber == number {
			c = cloneClaim(c)
			return &c, nil
		}
	}
	return nil, apperror.NotFound("claim", number)
}

func (r *claimRepo) Update(_ context.Context, c *entity.Claim) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.claims[c.ID]; !ok {
		return apperror.NotFound("claim", c.ID)
	}
	r.s.claims[c.ID] = cloneClaim(*c)
	return nil
}

func (r *claimRepo) ListByWarranty(_ context.Context, warrantyID string) ([]entity.Claim, error) {
	return r.filter(func(c entity.Claim) bool { return c.WarrantyID == warrantyID }), nil
}

func (r *claimRepo) ListByBuyer(_ context.Context, buyerID string) ([]entity.Claim, error) {
	return r.filter(func(c entity.Claim) bool { return c.BuyerID == buyerID }), nil
}

func (r *claimRepo) filter(keep func(entity.Claim) bool) []entity.Claim {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []entity.Claim{}
	for _, c := range r.s.claims {
		if keep(c) {
			out = append(out, cloneClaim(c))
		}
	}
	slices.SortFunc(out, func(a, b entity.Claim) int {
		if c := a.FiledAt.Compare(b.FiledAt); c != 0 {
			return c
		}
		return strings.Compare(a.ClaimNumber, b.ClaimNumber)
	})
	return out
}
