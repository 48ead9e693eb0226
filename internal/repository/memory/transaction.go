package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
)

type transactionRepo struct{ s *Store }

func (r *transactionRepo) Create(_ context.Context, tx *entity.Transaction, requests []entity.IssuanceRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.transactions[tx.ID]; ok {
		return apperror.Conflict("transaction " + tx.ID + " already exists")
	}
	for _, req := range requests {
		if _, ok := r.s.issuance[req.ID]; ok {
			return apperror.Conflict("issuance request " + req.ID + " already exists")
		}
	}
	r.s.transactions[tx.ID] = cloneTransaction(*tx)
	for _, req := range requests {
		r.s.issuance[req.ID] = req
	}
	return nil
}

func (r *transactionRepo) Get(_ context.Context, id string) (*entity.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.transactions[id]
	if !ok {
		return nil, apperror.NotFound("transaction", id)
	}
	t = cloneTransaction(t)
	return &t, nil
}

func (r *transactionRepo) Update(_ context.Context, tx *entity.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.transactions[tx.ID]; !ok {
		return apperror.NotFound("transaction", tx.ID)
	}
	r.s.transactions[tx.ID] = cloneTransaction(*tx)
	return nil
}

func (r *transactionRepo) ListByBuyer(_ context.Context, buyerID string) ([]entity.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []entity.Transaction{}
	for _, t := range r.s.transactions {
		if t.BuyerID == buyerID {
			out = append(out, cloneTransaction(t))
		}
	}
	slices.SortFunc(out, func(a, b entity.Transaction) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}
