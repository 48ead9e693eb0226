// Package memory keeps every collection in process behind one mutex. It
// honours the same uniqueness rules as the postgres schema and is what the
// service tests and the single-node "memory" storage driver run on.
package memory

import (
	"slices"
	"sync"

	"github.com/egannguyen/autoparts-marketplace/internal/clock"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/repository"
)

type Store struct {
	mu           sync.RWMutex
	transactions map[string]entity.Transaction
	warranties   map[string]entity.Warranty
	ledgers      map[string]entity.SecureTransaction // keyed by transaction id
	claims       map[string]entity.Claim
	issuance     map[string]entity.IssuanceRequest
	events       map[string][]entity.EventStoreRecord
	clock        clock.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock stamps stored events with c instead of the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		transactions: make(map[string]entity.Transaction),
		warranties:   make(map[string]entity.Warranty),
		ledgers:      make(map[string]entity.SecureTransaction),
		claims:       make(map[string]entity.Claim),
		issuance:     make(map[string]entity.IssuanceRequest),
		events:       make(map[string][]entity.EventStoreRecord),
		clock:        clock.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Transactions() repository.TransactionRepository { return &transactionRepo{s} }

func (s *Store) Warranties() repository.WarrantyRepository { return &warrantyRepo{s} }

func (s *Store) Ledgers() repository.SecureTransactionRepository { return &ledgerRepo{s} }

func (s *Store) Claims() repository.ClaimRepository { return &claimRepo{s} }

func (s *Store) Outbox() repository.IssuanceOutbox { return &outboxRepo{s} }

func (s *Store) EventStore() repository.EventStore { return &eventStore{s} }

func cloneTransaction(t entity.Transaction) entity.Transaction {
	t.Items = slices.Clone(t.Items)
	for i, item := range t.Items {
		if item.Protection != nil {
			p := *item.Protection
			t.Items[i].Protection = &p
		}
	}
	return t
}

func cloneClaim(c entity.Claim) entity.Claim {
	c.Evidence = slices.Clone(c.Evidence)
	c.Communications = slices.Clone(c.Communications)
	return c
}

func cloneLedger(st entity.SecureTransaction) entity.SecureTransaction {
	st.Warranties = slices.Clone(st.Warranties)
	st.RiskFactors = slices.Clone(st.RiskFactors)
	st.Events = nil
	return st
}
