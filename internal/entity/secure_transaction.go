package entity

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// StreamSecureTransaction is the event store stream type for ledger histories.
const StreamSecureTransaction = "secure_transaction"

// Ledger event types.
const (
	EventProtectionActivated = "protection_activated"
	EventWarrantyAttached    = "warranty_attached"
	EventWarrantyDetached    = "warranty_detached"
	EventWarrantyExpired     = "warranty_expired"
	EventClaimFiled          = "claim_filed"
	EventClaimResolved       = "claim_resolved"
	EventStatusChanged       = "status_changed"
	EventRiskAssessed        = "risk_assessed"
)

// ProtectionEvent is one entry of a secured transaction's append-only history.
type ProtectionEvent struct {
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Amount      *decimal.Decimal  `json:"amount,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

func (e ProtectionEvent) EventType() string { return e.Type }

// SecureTransaction binds one Transaction to the warranties issued against it.
type SecureTransaction struct {
	ID                  string            `json:"id"`
	TransactionID       string            `json:"transaction_id"`
	BuyerID             string            `json:"buyer_id"`
	StoreID             string            `json:"store_id"`
	Status              ProtectionStatus  `json:"status"`
	Level               ProtectionLevel   `json:"level"`
	PurchaseDate        time.Time         `json:"purchase_date"`
	ProtectionStartDate time.Time         `json:"protection_start_date"`
	ProtectionEndDate   time.Time         `json:"protection_end_date"`
	LastActivityDate    time.Time         `json:"last_activity_date"`
	Warranties          []string          `json:"warranties"`
	Events              []ProtectionEvent `json:"events"`
	RiskScore           int               `json:"risk_score"`
	RiskFactors         []string          `json:"risk_factors"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`

	// Version is the number of events already persisted in the event store.
	Version     int               `json:"-"`
	uncommitted []ProtectionEvent
}

// NewSecureTransaction opens a protected ledger row for a transaction.
func NewSecureTransaction(id, transactionID, buyerID, storeID string, level ProtectionLevel, now, end time.Time) *SecureTransaction {
	return &SecureTransaction{
		ID:                  id,
		TransactionID:       transactionID,
		BuyerID:             buyerID,
		StoreID:             storeID,
		Status:              ProtectionProtected,
		Level:               level,
		PurchaseDate:        now,
		ProtectionStartDate: now,
		ProtectionEndDate:   end,
		LastActivityDate:    now,
		Warranties:          []string{},
		RiskFactors:         []string{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// ActiveWarrantyCount is derived from the warranty list on every read.
func (s *SecureTransaction) ActiveWarrantyCount() int {
	return len(s.Warranties)
}

// AttachWarranty adds a warranty reference. Attaching the same id twice is a no-op.
func (s *SecureTransaction) AttachWarranty(warrantyID string, now time.Time) bool {
	if slices.Contains(s.Warranties, warrantyID) {
		return false
	}
	s.Warranties = append(s.Warranties, warrantyID)
	s.UpdatedAt = now
	return true
}

// DetachWarranty removes a warranty reference.
func (s *SecureTransaction) DetachWarranty(warrantyID string, now time.Time) bool {
	idx := slices.Index(s.Warranties, warrantyID)
	if idx < 0 {
		return false
	}
	s.Warranties = slices.Delete(s.Warranties, idx, idx+1)
	s.UpdatedAt = now
	return true
}

// AddEvent appends to the history and stamps the last activity date.
func (s *SecureTransaction) AddEvent(eventType, description string, amount *decimal.Decimal, metadata map[string]string, now time.Time) {
	e := ProtectionEvent{
		Type:        eventType,
		Description: description,
		Amount:      amount,
		Metadata:    metadata,
		OccurredAt:  now,
	}
	s.Events = append(s.Events, e)
	s.uncommitted = append(s.uncommitted, e)
	s.LastActivityDate = now
	s.UpdatedAt = now
}

// SetStatus moves the protection status if the allow-list permits it.
func (s *SecureTransaction) SetStatus(next ProtectionStatus, now time.Time) bool {
	if !s.Status.CanTransitionTo(next) {
		return false
	}
	s.Status = next
	s.UpdatedAt = now
	return true
}

// SetRisk stores a risk assessment; the score is clamped to 0..100.
func (s *SecureTransaction) SetRisk(score int, factors []string) {
	s.RiskScore = min(max(score, 0), 100)
	s.RiskFactors = append([]string{}, factors...)
}

// IsProtected holds iff status is protected and the window has not closed.
func (s *SecureTransaction) IsProtected(now time.Time) bool {
	return s.Status == ProtectionProtected && !now.After(s.ProtectionEndDate)
}

// CanFileClaim additionally requires at least one attached warranty.
func (s *SecureTransaction) CanFileClaim(now time.Time) bool {
	return s.IsProtected(now) && s.ActiveWarrantyCount() > 0
}

// Uncommitted returns events appended since the last successful save.
func (s *SecureTransaction) Uncommitted() []ProtectionEvent {
	return s.uncommitted
}

// MarkCommitted records that the uncommitted events were persisted.
func (s *SecureTransaction) MarkCommitted() {
	s.Version += len(s.uncommitted)
	s.uncommitted = nil
}

// Rehydrate rebuilds the event history from stored records.
func (s *SecureTransaction) Rehydrate(records []EventStoreRecord) error {
	s.Events = make([]ProtectionEvent, 0, len(records))
	for _, rec := range records {
		var e ProtectionEvent
		if err := json.Unmarshal(rec.Payload, &e); err != nil {
			return fmt.Errorf("failed to decode ledger event %s: %w", rec.EventType, err)
		}
		s.Events = append(s.Events, e)
		s.Version = rec.Version
	}
	s.uncommitted = nil
	return nil
}

// MarshalJSON adds the derived warranty count to the serialized form.
func (s SecureTransaction) MarshalJSON() ([]byte, error) {
	type plain SecureTransaction
	return json.Marshal(struct {
		plain
		ActiveWarrantyCount int `json:"active_warranty_count"`
	}{plain(s), s.ActiveWarrantyCount()})
}
