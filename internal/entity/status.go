package entity

import "slices"

// TransactionStatus is the lifecycle state of a purchase order.
type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionProcessing TransactionStatus = "processing"
	TransactionCompleted  TransactionStatus = "completed"
	TransactionCancelled  TransactionStatus = "cancelled"
	TransactionFailed     TransactionStatus = "failed"
	TransactionRefunded   TransactionStatus = "refunded"
)

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionPending:    {TransactionProcessing, TransactionCompleted, TransactionCancelled, TransactionFailed},
	TransactionProcessing: {TransactionCompleted, TransactionCancelled, TransactionFailed},
	TransactionCompleted:  {TransactionRefunded},
}

// Valid reports whether s is a known transaction status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionPending, TransactionProcessing, TransactionCompleted,
		TransactionCancelled, TransactionFailed, TransactionRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether the allow-list permits moving from s to next.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return slices.Contains(transactionTransitions[s], next)
}

// Cancellable reports whether an order in status s may still be cancelled.
func (s TransactionStatus) Cancellable() bool {
	return s == TransactionPending || s == TransactionProcessing
}

// PaymentStatus tracks settlement of a transaction.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// WarrantyStatus is the lifecycle state of a warranty.
type WarrantyStatus string

const (
	WarrantyPending   WarrantyStatus = "pending"
	WarrantyActive    WarrantyStatus = "active"
	WarrantyExpired   WarrantyStatus = "expired"
	WarrantyCancelled WarrantyStatus = "cancelled"
	WarrantyResolved  WarrantyStatus = "resolved"
)

var warrantyTransitions = map[WarrantyStatus][]WarrantyStatus{
	WarrantyPending: {WarrantyActive, WarrantyCancelled},
	WarrantyActive:  {WarrantyExpired, WarrantyResolved, WarrantyCancelled},
}

// CanTransitionTo reports whether the allow-list permits moving from s to next.
func (s WarrantyStatus) CanTransitionTo(next WarrantyStatus) bool {
	return slices.Contains(warrantyTransitions[s], next)
}

// Live reports whether the warranty still counts against the one-per-line uniqueness rule.
func (s WarrantyStatus) Live() bool {
	return s == WarrantyPending || s == WarrantyActive
}

// ProtectionStatus is the state of a secured transaction.
type ProtectionStatus string

const (
	ProtectionProtected ProtectionStatus = "protected"
	ProtectionAtRisk    ProtectionStatus = "at_risk"
	ProtectionClaimed   ProtectionStatus = "claimed"
	ProtectionExpired   ProtectionStatus = "expired"
	ProtectionResolved  ProtectionStatus = "resolved"
)

var protectionTransitions = map[ProtectionStatus][]ProtectionStatus{
	ProtectionProtected: {ProtectionAtRisk, ProtectionClaimed, ProtectionExpired, ProtectionResolved},
	ProtectionAtRisk:    {ProtectionProtected, ProtectionClaimed, ProtectionExpired},
	ProtectionClaimed:   {ProtectionProtected, ProtectionResolved},
}

// CanTransitionTo reports whether the allow-list permits moving from s to next.
func (s ProtectionStatus) CanTransitionTo(next ProtectionStatus) bool {
	return slices.Contains(protectionTransitions[s], next)
}

// ClaimStatus is the lifecycle state of a claim.
type ClaimStatus string

const (
	ClaimPending          ClaimStatus = "pending"
	ClaimUnderReview      ClaimStatus = "under_review"
	ClaimEvidenceRequired ClaimStatus = "evidence_required"
	ClaimApproved         ClaimStatus = "approved"
	ClaimRejected         ClaimStatus = "rejected"
	ClaimResolved         ClaimStatus = "resolved"
	ClaimCancelled        ClaimStatus = "cancelled"
)

var claimTransitions = map[ClaimStatus][]ClaimStatus{
	ClaimPending:          {ClaimUnderReview, ClaimCancelled},
	ClaimUnderReview:      {ClaimEvidenceRequired, ClaimApproved, ClaimRejected},
	ClaimEvidenceRequired: {ClaimUnderReview, ClaimApproved, ClaimRejected},
	ClaimApproved:         {ClaimResolved},
	ClaimRejected:         {ClaimResolved},
}

// Valid reports whether s is a known claim status.
func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimPending, ClaimUnderReview, ClaimEvidenceRequired, ClaimApproved,
		ClaimRejected, ClaimResolved, ClaimCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the allow-list permits moving from s to next.
func (s ClaimStatus) CanTransitionTo(next ClaimStatus) bool {
	return slices.Contains(claimTransitions[s], next)
}

// Terminal reports whether no further transitions leave s.
func (s ClaimStatus) Terminal() bool {
	return s == ClaimResolved || s == ClaimCancelled
}
