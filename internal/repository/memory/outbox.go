package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
)

type outboxRepo struct{ s *Store }

func (r *outboxRepo) ClaimPending(_ context.Context, now time.Time, lease time.Duration, limit int) ([]entity.IssuanceRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	due := []entity.IssuanceRequest{}
	for _, req := range r.s.issuance {
		if req.Status == entity.IssuancePending && !req.NextAttemptAt.After(now) {
			due = append(due, req)
		}
	}
	slices.SortFunc(due, func(a, b entity.IssuanceRequest) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		due[i].Attempts++
		due[i].NextAttemptAt = now.Add(lease)
		r.s.issuance[due[i].ID] = due[i]
	}
	return due, nil
}

func (r *outboxRepo) update(id string, apply func(*entity.IssuanceRequest)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.issuance[id]
	if !ok {
		return apperror.NotFound("issuance request", id)
	}
	apply(&req)
	r.s.issuance[id] = req
	return nil
}

func (r *outboxRepo) MarkIssued(_ context.Context, id, warrantyID string, now time.Time) error {
	return r.update(id, func(req *entity.IssuanceRequest) {
		req.Status = entity.IssuanceIssued
		req.WarrantyID = warrantyID
		req.LastError = ""
		req.ProcessedAt = &now
	})
}

func (r *outboxRepo) Reschedule(_ context.Context, id, lastErr string, next time.Time) error {
	return r.update(id, func(req *entity.IssuanceRequest) {
		req.LastError = lastErr
		req.NextAttemptAt = next
	})
}

func (r *outboxRepo) MarkFailed(_ context.Context, id, lastErr string, now time.Time) error {
	return r.update(id, func(req *entity.IssuanceRequest) {
		req.Status = entity.IssuanceFailed
		req.LastError = lastErr
		req.ProcessedAt = &now
	})
}

func (r *outboxRepo) ListByTransaction(_ context.Context, transactionID string) ([]entity.IssuanceRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []entity.IssuanceRequest{}
	for _, req := range r.s.issuance {
		if req.TransactionID == transactionID {
			out = append(out, req)
		}
	}
	slices.SortFunc(out, func(a, b entity.IssuanceRequest) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}
