package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// WarrantyKind is the product of protection a warranty sells.
type WarrantyKind string

const (
	KindPurchaseProtection WarrantyKind = "purchase_protection"
	KindReturnGuarantee    WarrantyKind = "return_guarantee"
	KindClaimProtection    WarrantyKind = "claim_protection"
)

// Valid reports whether k is a known warranty kind.
func (k WarrantyKind) Valid() bool {
	switch k {
	case KindPurchaseProtection, KindReturnGuarantee, KindClaimProtection:
		return true
	}
	return false
}

// ProtectionLevel drives the rate, cap and duration tables.
type ProtectionLevel string

const (
	LevelBasic    ProtectionLevel = "basic"
	LevelPremium  ProtectionLevel = "premium"
	LevelExtended ProtectionLevel = "extended"
)

// Valid reports whether l is a known protection level.
func (l ProtectionLevel) Valid() bool {
	switch l {
	case LevelBasic, LevelPremium, LevelExtended:
		return true
	}
	return false
}

// DefaultCurrency is the only currency tag the engine emits.
const DefaultCurrency = "USD"

// WarrantyTerms is the declarative coverage document attached to a warranty.
type WarrantyTerms struct {
	CoversDefectiveProducts bool `json:"covers_defective_products"`
	CoversNonDelivery       bool `json:"covers_non_delivery"`
	CoversNotAsDescribed    bool `json:"covers_not_as_described"`
	CoversLateDelivery      bool `json:"covers_late_delivery"`
	ReturnWindowDays        int  `json:"return_window_days"`
	ClaimWindowDays         int  `json:"claim_window_days"`
}

// Covers reports whether the terms permit a claim of type ct.
// Types without a matching flag are never covered.
func (t WarrantyTerms) Covers(ct ClaimType) bool {
	switch ct {
	case ClaimDefective:
		return t.CoversDefectiveProducts
	case ClaimNonDelivery:
		return t.CoversNonDelivery
	case ClaimNotAsDescribed:
		return t.CoversNotAsDescribed
	case ClaimLateDelivery:
		return t.CoversLateDelivery
	default:
		return false
	}
}

// Warranty is a single protection contract.
type Warranty struct {
	ID                 string          `json:"id"`
	Kind               WarrantyKind    `json:"kind"`
	Status             WarrantyStatus  `json:"status"`
	Level              ProtectionLevel `json:"level"`
	BuyerID            string          `json:"buyer_id"`
	StoreID            string          `json:"store_id"`
	TransactionID      string          `json:"transaction_id,omitempty"`
	ProductID          string          `json:"product_id,omitempty"`
	Description        string          `json:"description,omitempty"`
	TransactionAmount  decimal.Decimal `json:"transaction_amount"`
	CoverageAmount     decimal.Decimal `json:"coverage_amount"`
	CoveragePercentage decimal.Decimal `json:"coverage_percentage"`
	MaxCoverageAmount  decimal.Decimal `json:"max_coverage_amount"`
	Cost               decimal.Decimal `json:"cost"`
	Currency           string          `json:"currency"`
	IsIncluded         bool            `json:"is_included"`
	Terms              WarrantyTerms   `json:"terms"`
	ActivationDate     *time.Time      `json:"activation_date,omitempty"`
	ExpirationDate     time.Time       `json:"expiration_date"`
	LastRenewalDate    *time.Time      `json:"last_renewal_date,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason       string          `json:"cancel_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// IsActive holds iff the warranty is active and not past its expiration.
func (w *Warranty) IsActive(now time.Time) bool {
	return w.Status == WarrantyActive && !now.After(w.ExpirationDate)
}

// AvailableCoverage is what a claim filed now may draw on.
func (w *Warranty) AvailableCoverage() decimal.Decimal {
	if w.Status != WarrantyActive {
		return decimal.Zero
	}
	return decimal.Min(w.CoverageAmount, w.MaxCoverageAmount)
}

// Transition moves the warranty to next if the allow-list permits it.
func (w *Warranty) Transition(next WarrantyStatus, now time.Time) bool {
	if !w.Status.CanTransitionTo(next) {
		return false
	}
	w.Status = next
	w.UpdatedAt = now
	return true
}
