package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventStoreRecord represents an event stored in the database.
type EventStoreRecord struct {
	ID         string    `json:"id"`
	StreamID   string    `json:"stream_id"`
	StreamType string    `json:"stream_type"`
	Version    int       `json:"version"`
	EventType  string    `json:"event_type"`
	Payload    []byte    `json:"payload"`
	CreatedAt  time.Time `json:"created_at"`
}

// Event represents a domain event.
type Event interface {
	EventType() string
}

// --- Integration events published to the message broker ---

// TransactionCreated is emitted once an order and its issuance requests are stored.
type TransactionCreated struct {
	TransactionID     string          `json:"transaction_id"`
	BuyerID           string          `json:"buyer_id"`
	StoreID           string          `json:"store_id"`
	Total             decimal.Decimal `json:"total"`
	ProtectionEnabled bool            `json:"protection_enabled"`
	IssuanceRequests  int             `json:"issuance_requests"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (e TransactionCreated) EventType() string { return "TransactionCreated" }

// WarrantyIssued is emitted when a warranty row is created.
type WarrantyIssued struct {
	WarrantyID     string          `json:"warranty_id"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	Kind           WarrantyKind    `json:"kind"`
	Level          ProtectionLevel `json:"level"`
	CoverageAmount decimal.Decimal `json:"coverage_amount"`
	IssuedAt       time.Time       `json:"issued_at"`
}

func (e WarrantyIssued) EventType() string { return "WarrantyIssued" }

// WarrantyActivated is emitted when a warranty moves to active.
type WarrantyActivated struct {
	WarrantyID    string    `json:"warranty_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	ActivatedAt   time.Time `json:"activated_at"`
}

func (e WarrantyActivated) EventType() string { return "WarrantyActivated" }

// WarrantyExpiredEvent is emitted by the expiration sweep.
type WarrantyExpiredEvent struct {
	WarrantyID     string    `json:"warranty_id"`
	TransactionID  string    `json:"transaction_id,omitempty"`
	ExpirationDate time.Time `json:"expiration_date"`
	ExpiredAt      time.Time `json:"expired_at"`
}

func (e WarrantyExpiredEvent) EventType() string { return "WarrantyExpired" }

// ClaimFiled is emitted when a claim is accepted for intake.
type ClaimFiled struct {
	ClaimID       string          `json:"claim_id"`
	ClaimNumber   string          `json:"claim_number"`
	WarrantyID    string          `json:"warranty_id"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Type          ClaimType       `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	FiledAt       time.Time       `json:"filed_at"`
}

func (e ClaimFiled) EventType() string { return "ClaimFiled" }

// ClaimStatusChanged is emitted on every claim status transition.
type ClaimStatusChanged struct {
	ClaimID   string      `json:"claim_id"`
	From      ClaimStatus `json:"from"`
	To        ClaimStatus `json:"to"`
	ChangedAt time.Time   `json:"changed_at"`
}

func (e ClaimStatusChanged) EventType() string { return "ClaimStatusChanged" }
