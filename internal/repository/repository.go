package repository

import (
	"context"
	"time"

	"github.com/egannguyen/autoparts-marketplace/internal/entity"
)

// AnyVersion disables the optimistic concurrency check in EventStore.SaveEvents.
const AnyVersion = -1

// TransactionRepository handles persistence for purchase orders.
type TransactionRepository interface {
	// Create stores the transaction together with its warranty issuance requests.
	// Either both land or neither does.
	Create(ctx context.Context, tx *entity.Transaction, requests []entity.IssuanceRequest) error
	Get(ctx context.Context, id string) (*entity.Transaction, error)
	Update(ctx context.Context, tx *entity.Transaction) error
	ListByBuyer(ctx context.Context, buyerID string) ([]entity.Transaction, error)
}

// WarrantyRepository handles persistence for warranties.
type WarrantyRepository interface {
	// Create fails with a conflict when a live warranty already exists for the
	// same transaction and product.
	Create(ctx context.Context, w *entity.Warranty) error
	Get(ctx context.Context, id string) (*entity.Warranty, error)
	Update(ctx context.Context, w *entity.Warranty) error
	// FindLive returns the pending or active warranty for a transaction line, or nil.
	FindLive(ctx context.Context, transactionID, productID string) (*entity.Warranty, error)
	ListByTransaction(ctx context.Context, transactionID string) ([]entity.Warranty, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]entity.Warranty, error)
	// ListExpiring returns active warranties whose expiration date is at or before now.
	ListExpiring(ctx context.Context, now time.Time, limit int) ([]entity.Warranty, error)
}

// SecureTransactionRepository persists ledger rows. The event history lives in the EventStore.
type SecureTransactionRepository interface {
	GetByTransaction(ctx context.Context, transactionID string) (*entity.SecureTransaction, error)
	// Create inserts a new ledger row and its initial events. Conflict if the
	// transaction already has one.
	Create(ctx context.Context, st *entity.SecureTransaction) error
	// Save updates the row and appends uncommitted events, checking st.Version.
	Save(ctx context.Context, st *entity.SecureTransaction) error
}

// ClaimRepository handles persistence for claims.
type ClaimRepository interface {
	Create(ctx context.Context, c *entity.Claim) error
	Get(ctx context.Context, id string) (*entity.Claim, error)
	GetByNumber(ctx context.Context, number string) (*entity.Claim, error)
	Update(ctx context.Context, c *entity.Claim) error
	ListByWarranty(ctx context.Context, warrantyID string) ([]entity.Claim, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]entity.Claim, error)
}

// IssuanceOutbox is the work queue of warranties still to be issued for a transaction.
type IssuanceOutbox interface {
	// ClaimPending leases up to limit due requests, bumping their attempt count
	// and pushing next_attempt_at out by lease so concurrent relays skip them.
	ClaimPending(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]entity.IssuanceRequest, error)
	MarkIssued(ctx context.Context, id, warrantyID string, now time.Time) error
	Reschedule(ctx context.Context, id, lastErr string, next time.Time) error
	MarkFailed(ctx context.Context, id, lastErr string, now time.Time) error
	ListByTransaction(ctx context.Context, transactionID string) ([]entity.IssuanceRequest, error)
}

// Directory answers existence checks for buyers and stores owned by other services.
type Directory interface {
	BuyerExists(ctx context.Context, id string) (bool, error)
	StoreExists(ctx context.Context, id string) (bool, error)
}

// EventStore handles appending and loading events for an aggregate stream.
type EventStore interface {
	SaveEvents(ctx context.Context, streamID string, streamType string, expectedVersion int, events []entity.Event) error
	LoadEvents(ctx context.Context, streamID string) ([]entity.EventStoreRecord, error)
}
