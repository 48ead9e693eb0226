package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClaimType is the problem category of a claim.
type ClaimType string

const (
	ClaimDefective      ClaimType = "defective"
	ClaimNonDelivery    ClaimType = "non_delivery"
	ClaimNotAsDescribed ClaimType = "not_as_described"
	ClaimLateDelivery   ClaimType = "late_delivery"
	ClaimOther          ClaimType = "other"
)

// Valid reports whether t is one of the five claim categories.
func (t ClaimType) Valid() bool {
	switch t {
	case ClaimDefective, ClaimNonDelivery, ClaimNotAsDescribed, ClaimLateDelivery, ClaimOther:
		return true
	}
	return false
}

type ClaimPriority string

const (
	PriorityLow    ClaimPriority = "low"
	PriorityMedium ClaimPriority = "medium"
	PriorityHigh   ClaimPriority = "high"
	PriorityUrgent ClaimPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p ClaimPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityMinor, SeverityModerate, SeverityMajor, SeverityCritical:
		return true
	}
	return false
}

// ResolutionMethod is how a claim is settled.
type ResolutionMethod string

const (
	ResolutionRefund      ResolutionMethod = "refund"
	ResolutionReplacement ResolutionMethod = "replacement"
	ResolutionRepair      ResolutionMethod = "repair"
	ResolutionStoreCredit ResolutionMethod = "store_credit"
	ResolutionNone        ResolutionMethod = "none"
)

func (m ResolutionMethod) Valid() bool {
	switch m {
	case ResolutionRefund, ResolutionReplacement, ResolutionRepair, ResolutionStoreCredit, ResolutionNone:
		return true
	}
	return false
}

type ResolutionStatus string

const (
	ResolutionPending    ResolutionStatus = "pending"
	ResolutionInProgress ResolutionStatus = "in_progress"
	ResolutionCompleted  ResolutionStatus = "completed"
)

// ProblemDetails describes what went wrong with the purchase.
type ProblemDetails struct {
	IssueType          string           `json:"issue_type"`
	Description        string           `json:"description"`
	Severity           Severity         `json:"severity"`
	Impact             string           `json:"impact,omitempty"`
	ExpectedResolution ResolutionMethod `json:"expected_resolution,omitempty"`
}

type EvidenceKind string

const (
	EvidencePhoto    EvidenceKind = "photo"
	EvidenceVideo    EvidenceKind = "video"
	EvidenceDocument EvidenceKind = "document"
	EvidenceReceipt  EvidenceKind = "receipt"
	EvidenceTracking EvidenceKind = "tracking"
	EvidenceOther    EvidenceKind = "other"
)

func (k EvidenceKind) Valid() bool {
	switch k {
	case EvidencePhoto, EvidenceVideo, EvidenceDocument, EvidenceReceipt, EvidenceTracking, EvidenceOther:
		return true
	}
	return false
}

// Evidence is a typed attachment supporting a claim.
type Evidence struct {
	ID          string            `json:"id"`
	Kind        EvidenceKind      `json:"kind"`
	URL         string            `json:"url"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	SubmittedBy string            `json:"submitted_by,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

type SenderRole string

const (
	SenderBuyer   SenderRole = "buyer"
	SenderStore   SenderRole = "store"
	SenderSupport SenderRole = "support"
	SenderSystem  SenderRole = "system"
)

func (r SenderRole) Valid() bool {
	switch r {
	case SenderBuyer, SenderStore, SenderSupport, SenderSystem:
		return true
	}
	return false
}

// Communication is one message in a claim's conversation log.
type Communication struct {
	ID          string     `json:"id"`
	SenderRole  SenderRole `json:"sender_role"`
	SenderID    string     `json:"sender_id,omitempty"`
	Message     string     `json:"message"`
	Attachments []string   `json:"attachments,omitempty"`
	Internal    bool       `json:"internal"`
	SentAt      time.Time  `json:"sent_at"`
}

// Resolution records how and whether the claim was settled.
type Resolution struct {
	Method     ResolutionMethod `json:"method,omitempty"`
	Status     ResolutionStatus `json:"status"`
	Notes      string           `json:"notes,omitempty"`
	ResolvedBy string           `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
}

// Claim is a dispute filed against a warranty.
type Claim struct {
	ID             string          `json:"id"`
	ClaimNumber    string          `json:"claim_number"`
	WarrantyID     string          `json:"warranty_id"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	BuyerID        string          `json:"buyer_id"`
	StoreID        string          `json:"store_id"`
	Type           ClaimType       `json:"type"`
	Status         ClaimStatus     `json:"status"`
	Priority       ClaimPriority   `json:"priority"`
	Details        ProblemDetails  `json:"details"`
	ClaimedAmount  decimal.Decimal `json:"claimed_amount"`
	ApprovedAmount decimal.Decimal `json:"approved_amount"`
	RefundAmount   decimal.Decimal `json:"refund_amount"`
	Currency       string          `json:"currency"`
	Evidence       []Evidence      `json:"evidence"`
	Resolution     Resolution      `json:"resolution"`
	Communications []Communication `json:"communications"`
	AssignedTo     string          `json:"assigned_to,omitempty"`
	AssignedAt     *time.Time      `json:"assigned_at,omitempty"`
	FiledAt        time.Time       `json:"filed_at"`
	DeadlineDate   *time.Time      `json:"deadline_date,omitempty"`
	LastUpdated    time.Time       `json:"last_updated"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

// AddEvidence appends an attachment.
func (c *Claim) AddEvidence(e Evidence, now time.Time) {
	if e.SubmittedAt.IsZero() {
		e.SubmittedAt = now
	}
	c.Evidence = append(c.Evidence, e)
	c.LastUpdated = now
}

// AddCommunication appends a message to the conversation log.
func (c *Claim) AddCommunication(m Communication, now time.Time) {
	if m.SentAt.IsZero() {
		m.SentAt = now
	}
	c.Communications = append(c.Communications, m)
	c.LastUpdated = now
}

// Transition moves the claim to next if the allow-list permits it.
func (c *Claim) Transition(next ClaimStatus, now time.Time) bool {
	if !c.Status.CanTransitionTo(next) {
		return false
	}
	c.Status = next
	c.LastUpdated = now
	if next == ClaimResolved {
		c.ResolvedAt = &now
	}
	return true
}

// TimeElapsed is the number of whole days since filing.
func (c *Claim) TimeElapsed(now time.Time) int {
	if now.Before(c.FiledAt) {
		return 0
	}
	return int(now.Sub(c.FiledAt) / (24 * time.Hour))
}

// IsWithinDeadline is true when no deadline is set or it has not passed.
func (c *Claim) IsWithinDeadline(now time.Time) bool {
	if c.DeadlineDate == nil {
		return true
	}
	return !now.After(*c.DeadlineDate)
}
