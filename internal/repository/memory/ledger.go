package memory

import (
	"context"
	"slices"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
)

type ledgerRepo struct{ s *Store }

func (r *ledgerRepo) GetByTransaction(_ context.Context, transactionID string) (*entity.SecureTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	row, ok := r.s.ledgers[transactionID]
	if !ok {
		return nil, apperror.NotFound("secure transaction for transaction", transactionID)
	}
	st := cloneLedger(row)
	if err := st.Rehydrate(slices.Clone(r.s.events[st.ID])); err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *ledgerRepo) Create(_ context.Context, st *entity.SecureTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.ledgers[st.TransactionID]; ok {
		return apperror.Conflict("transaction " + st.TransactionID + " already has a secure transaction")
	}
	if err := r.s.appendEventsLocked(st.ID, entity.StreamSecureTransaction, 0, protectionEvents(st), r.s.clock.Now()); err != nil {
		return err
	}
	r.s.ledgers[st.TransactionID] = cloneLedger(*st)
	st.MarkCommitted()
	return nil
}

func (r *ledgerRepo) Save(_ context.Context, st *entity.SecureTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.ledgers[st.TransactionID]; !ok {
		return apperror.NotFound("secure transaction for transaction", st.TransactionID)
	}
	if err := r.s.appendEventsLocked(st.ID, entity.StreamSecureTransaction, st.Version, protectionEvents(st), r.s.clock.Now()); err != nil {
		return err
	}
	r.s.ledgers[st.TransactionID] = cloneLedger(*st)
	st.MarkCommitted()
	return nil
}
