package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineProtection is the optional per-item protection selection.
type LineProtection struct {
	Enabled bool            `json:"enabled"`
	Kind    WarrantyKind    `json:"kind,omitempty"`
	Cost    decimal.Decimal `json:"cost"`
}

// LineItem is an ordered product line within a transaction.
type LineItem struct {
	ProductID  string          `json:"product_id"`
	Name       string          `json:"name,omitempty"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	LineTotal  decimal.Decimal `json:"line_total"`
	Protection *LineProtection `json:"protection,omitempty"`
}

// Protected reports whether the line is selected for warranty issuance.
func (i LineItem) Protected() bool {
	return i.Protection != nil && i.Protection.Enabled
}

// ShippingAddress is where the order ships.
type ShippingAddress struct {
	Recipient  string `json:"recipient"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// Transaction is a purchase order.
type Transaction struct {
	ID                string            `json:"id"`
	BuyerID           string            `json:"buyer_id"`
	StoreID           string            `json:"store_id"`
	Items             []LineItem        `json:"items"`
	Subtotal          decimal.Decimal   `json:"subtotal"`
	TaxAmount         decimal.Decimal   `json:"tax_amount"`
	CommissionAmount  decimal.Decimal   `json:"commission_amount"`
	WarrantyTotal     decimal.Decimal   `json:"warranty_total"`
	Total             decimal.Decimal   `json:"total"`
	Currency          string            `json:"currency"`
	Status            TransactionStatus `json:"status"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	PaymentMethod     string            `json:"payment_method"`
	ShippingAddress   ShippingAddress   `json:"shipping_address"`
	ProtectionEnabled bool              `json:"protection_enabled"`
	ProtectionLevel   ProtectionLevel   `json:"protection_level,omitempty"`
	CoverageAmount    decimal.Decimal   `json:"coverage_amount"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	CancelledAt       *time.Time        `json:"cancelled_at,omitempty"`
}

// Balanced checks total == subtotal + tax + commission + warranty total.
func (t *Transaction) Balanced() bool {
	return t.Total.Equal(t.Subtotal.Add(t.TaxAmount).Add(t.CommissionAmount).Add(t.WarrantyTotal))
}

// ApplyStatus moves the transaction to next, stamping completion and cancellation times.
// Re-applying the current status is accepted so payment status can be updated on its own.
func (t *Transaction) ApplyStatus(next TransactionStatus, now time.Time) bool {
	if next != t.Status && !t.Status.CanTransitionTo(next) {
		return false
	}
	if next != t.Status {
		switch next {
		case TransactionCompleted:
			t.CompletedAt = &now
		case TransactionCancelled:
			t.CancelledAt = &now
		}
	}
	t.Status = next
	t.UpdatedAt = now
	return true
}

// IssuanceStatus is the state of a queued warranty issuance.
type IssuanceStatus string

const (
	IssuancePending IssuanceStatus = "pending"
	IssuanceIssued  IssuanceStatus = "issued"
	IssuanceFailed  IssuanceStatus = "failed"
)

// IssuanceRequest is an outbox work item asking for a bundled warranty on one line item.
type IssuanceRequest struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	BuyerID       string          `json:"buyer_id"`
	StoreID       string          `json:"store_id"`
	ProductID     string          `json:"product_id"`
	Kind          WarrantyKind    `json:"kind"`
	Level         ProtectionLevel `json:"level"`
	Amount        decimal.Decimal `json:"amount"`
	Status        IssuanceStatus  `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error,omitempty"`
	WarrantyID    string          `json:"warranty_id,omitempty"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	CreatedAt     time.Time       `json:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
}
