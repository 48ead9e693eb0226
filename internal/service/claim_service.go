package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/clock"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/messaging"
	"github.com/egannguyen/autoparts-marketplace/internal/observability"
	"github.com/egannguyen/autoparts-marketplace/internal/repository"
)

const claimNumberAttempts = 3

var urgentClaimAmount = decimal.NewFromInt(1000)

type ClaimOptions struct {
	DeadlineDays int
}

func DefaultClaimOptions() ClaimOptions {
	return ClaimOptions{DeadlineDays: 15}
}

type EvidenceRequest struct {
	Kind        entity.EvidenceKind `json:"kind"`
	URL         string              `json:"url"`
	Description string              `json:"description,omitempty"`
	Metadata    map[string]string   `json:"metadata,omitempty"`
	SubmittedBy string              `json:"submitted_by,omitempty"`
}

// ClaimRequest is the intake form for a new claim.
type ClaimRequest struct {
	WarrantyID string                `json:"warranty_id"`
	BuyerID    string                `json:"buyer_id,omitempty"`
	Type       entity.ClaimType      `json:"type"`
	Amount     decimal.Decimal       `json:"amount"`
	Priority   entity.ClaimPriority  `json:"priority,omitempty"`
	Details    entity.ProblemDetails `json:"details"`
	Evidence   []EvidenceRequest     `json:"evidence,omitempty"`
}

// ClaimUpdate carries the fields a pending claim may still change. Nil means unchanged.
type ClaimUpdate struct {
	Type     *entity.ClaimType      `json:"type,omitempty"`
	Amount   *decimal.Decimal       `json:"amount,omitempty"`
	Priority *entity.ClaimPriority  `json:"priority,omitempty"`
	Details  *entity.ProblemDetails `json:"details,omitempty"`
}

type CommunicationRequest struct {
	SenderRole  entity.SenderRole `json:"sender_role"`
	SenderID    string            `json:"sender_id,omitempty"`
	Message     string            `json:"message"`
	Attachments []string          `json:"attachments,omitempty"`
	Internal    bool              `json:"internal"`
}

// ResolutionRequest settles an approved or rejected claim.
type ResolutionRequest struct {
	Method       entity.ResolutionMethod `json:"method,omitempty"`
	RefundAmount *decimal.Decimal        `json:"refund_amount,omitempty"`
	Notes        string                  `json:"notes,omitempty"`
	ResolvedBy   string                  `json:"resolved_by,omitempty"`
}

// ClaimView adds the derived deadline fields to a claim.
type ClaimView struct {
	*entity.Claim
	TimeElapsedDays int  `json:"time_elapsed_days"`
	WithinDeadline  bool `json:"within_deadline"`
}

// ClaimService runs claim intake, review and resolution.
type ClaimService struct {
	claims     repository.ClaimRepository
	warranties *WarrantyService
	ledger     *LedgerService
	publisher  messaging.Publisher
	node       *snowflake.Node
	clock      clock.Clock
	metrics    *observability.Metrics
	log        *zap.Logger
	opts       ClaimOptions
}

func NewClaimService(
	claims repository.ClaimRepository,
	warranties *WarrantyService,
	ledger *LedgerService,
	publisher messaging.Publisher,
	node *snowflake.Node,
	clk clock.Clock,
	metrics *observability.Metrics,
	log *zap.Logger,
	opts ClaimOptions,
) *ClaimService {
	if opts.DeadlineDays <= 0 {
		opts.DeadlineDays = DefaultClaimOptions().DeadlineDays
	}
	return &ClaimService{
		claims:     claims,
		warranties: warranties,
		ledger:     ledger,
		publisher:  publisher,
		node:       node,
		clock:      clk,
		metrics:    metrics,
		log:        log.Named("claim"),
		opts:       opts,
	}
}

// nextNumber is CLM-<snowflake base36>-<random suffix>.
func (s *ClaimService) nextNumber() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return strings.ToUpper("CLM-" + s.node.Generate().Base36() + "-" + suffix)
}

func validateEvidence(prefix string, e EvidenceRequest) []string {
	var errs []string
	if strings.TrimSpace(e.URL) == "" {
		errs = append(errs, prefix+"url is required")
	}
	if e.Kind != "" && !e.Kind.Valid() {
		errs = append(errs, fmt.Sprintf("%sunknown evidence kind %q", prefix, e.Kind))
	}
	return errs
}

func newEvidence(e EvidenceRequest, now time.Time) entity.Evidence {
	kind := e.Kind
	if kind == "" {
		kind = entity.EvidenceOther
	}
	return entity.Evidence{
		ID:          uuid.NewString(),
		Kind:        kind,
		URL:         e.URL,
		Description: e.Description,
		Metadata:    e.Metadata,
		SubmittedBy: e.SubmittedBy,
		SubmittedAt: now,
	}
}

func systemMessage(message string, internal bool) entity.Communication {
	return entity.Communication{
		ID:         uuid.NewString(),
		SenderRole: entity.SenderSystem,
		Message:    message,
		Internal:   internal,
	}
}

// File opens a claim against an active warranty whose terms cover the claim type.
func (s *ClaimService) File(ctx context.Context, req ClaimRequest) (*entity.Claim, error) {
	var errs []string
	if req.WarrantyID == "" {
		errs = append(errs, "warranty id is required")
	}
	if !req.Type.Valid() {
		errs = append(errs, fmt.Sprintf("unknown claim type %q", req.Type))
	}
	if !req.Amount.IsPositive() {
		errs = append(errs, "claimed amount must be positive")
	}
	if strings.TrimSpace(req.Details.Description) == "" {
		errs = append(errs, "problem description is required")
	}
	if req.Details.Severity != "" && !req.Details.Severity.Valid() {
		errs = append(errs, fmt.Sprintf("unknown severity %q", req.Details.Severity))
	}
	if req.Priority != "" && !req.Priority.Valid() {
		errs = append(errs, fmt.Sprintf("unknown priority %q", req.Priority))
	}
	for i, e := range req.Evidence {
		errs = append(errs, validateEvidence(fmt.Sprintf("evidence %d: ", i), e)...)
	}
	if len(errs) > 0 {
		return nil, apperror.Validation("claim validation failed", errs...)
	}

	w, err := s.warranties.Get(ctx, req.WarrantyID)
	if err != nil {
		return nil, err
	}
	if req.BuyerID != "" && req.BuyerID != w.BuyerID {
		return nil, apperror.Validation("claim must be filed by the warranty holder", "buyer "+req.BuyerID)
	}
	now := s.clock.Now()
	if !w.IsActive(now) {
		return nil, apperror.Ineligible(fmt.Sprintf("warranty %s is not active", w.ID))
	}
	if !eligible(w, req.Type) {
		return nil, apperror.Ineligible(fmt.Sprintf("claim type %s is not covered by warranty %s", req.Type, w.ID))
	}
	if available := w.AvailableCoverage(); req.Amount.GreaterThan(available) {
		return nil, apperror.Validation("claimed amount exceeds available coverage",
			fmt.Sprintf("claimed %s, available %s", req.Amount.StringFixed(2), available.StringFixed(2)))
	}

	priority := req.Priority
	if priority == "" {
		priority = entity.PriorityMedium
		if req.Amount.GreaterThanOrEqual(urgentClaimAmount) {
			priority = entity.PriorityUrgent
		}
	}
	deadline := now.AddDate(0, 0, s.opts.DeadlineDays)
	c := &entity.Claim{
		ID:             uuid.NewString(),
		WarrantyID:     w.ID,
		TransactionID:  w.TransactionID,
		BuyerID:        w.BuyerID,
		StoreID:        w.StoreID,
		Type:           req.Type,
		Status:         entity.ClaimPending,
		Priority:       priority,
		Details:        req.Details,
		ClaimedAmount:  req.Amount,
		ApprovedAmount: decimal.Zero,
		RefundAmount:   decimal.Zero,
		Currency:       w.Currency,
		Evidence:       []entity.Evidence{},
		Resolution:     entity.Resolution{Status: entity.ResolutionPending},
		Communications: []entity.Communication{},
		FiledAt:        now,
		DeadlineDate:   &deadline,
		LastUpdated:    now,
	}
	for _, e := range req.Evidence {
		c.AddEvidence(newEvidence(e, now), now)
	}

	for attempt := 1; ; attempt++ {
		c.ClaimNumber = s.nextNumber()
		c.Communications = c.Communications[:0]
		c.AddCommunication(systemMessage(fmt.Sprintf("Claim %s filed: %s claim for %s %s",
			c.ClaimNumber, c.Type, c.ClaimedAmount.StringFixed(2), c.Currency), false), now)
		err = s.claims.Create(ctx, c)
		if err == nil {
			break
		}
		if !apperror.IsKind(err, apperror.KindConflict) || attempt == claimNumberAttempts {
			return nil, err
		}
	}
	s.log.Info("claim filed",
		zap.String("claim_id", c.ID),
		zap.String("claim_number", c.ClaimNumber),
		zap.String("warranty_id", c.WarrantyID),
		zap.String("type", string(c.Type)),
	)
	s.metrics.ClaimFiled(ctx, string(c.Type))

	if c.TransactionID != "" {
		if _, err := s.ledger.MarkClaimed(ctx, c); err != nil {
			s.log.Warn("failed to record claim on secure transaction", zap.String("claim_id", c.ID), zap.Error(err))
		}
	}
	publish(ctx, s.publisher, s.log, messaging.TopicClaimFiled, c.ID, entity.ClaimFiled{
		ClaimID:       c.ID,
		ClaimNumber:   c.ClaimNumber,
		WarrantyID:    c.WarrantyID,
		TransactionID: c.TransactionID,
		Type:          c.Type,
		Amount:        c.ClaimedAmount,
		FiledAt:       now,
	})
	return c, nil
}

// Update edits a claim that is still pending.
func (s *ClaimService) Update(ctx context.Context, id string, upd ClaimUpdate) (*entity.Claim, error) {
	c, err := s.claims.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != entity.ClaimPending {
		return nil, apperror.IllegalTransition("claim", id, c.Status, "update")
	}

	var errs []string
	if upd.Type != nil && !upd.Type.Valid() {
		errs = append(errs, fmt.Sprintf("unknown claim type %q", *upd.Type))
	}
	if upd.Amount != nil && !upd.Amount.IsPositive() {
		errs = append(errs, "claimed amount must be positive")
	}
	if upd.Priority != nil && !upd.Priority.Valid() {
		errs = append(errs, fmt.Sprintf("unknown priority %q", *upd.Priority))
	}
	if upd.Details != nil && strings.TrimSpace(upd.Details.Description) == "" {
		errs = append(errs, "problem description is required")
	}
	if len(errs) > 0 {
		return nil, apperror.Validation("claim validation failed", errs...)
	}

	if upd.Type != nil || upd.Amount != nil {
		w, err := s.warranties.Get(ctx, c.WarrantyID)
		if err != nil {
			return nil, err
		}
		if upd.Type != nil && !eligible(w, *upd.Type) {
			return nil, apperror.Ineligible(fmt.Sprintf("claim type %s is not covered by warranty %s", *upd.Type, w.ID))
		}
		if available := w.AvailableCoverage(); upd.Amount != nil && upd.Amount.GreaterThan(available) {
			return nil, apperror.Validation("claimed amount exceeds available coverage",
				fmt.Sprintf("claimed %s, available %s", upd.Amount.StringFixed(2), available.StringFixed(2)))
		}
	}

	if upd.Type != nil {
		c.Type = *upd.Type
	}
	if upd.Amount != nil {
		c.ClaimedAmount = *upd.Amount
	}
	if upd.Priority != nil {
		c.Priority = *upd.Priority
	}
	if upd.Details != nil {
		c.Details = *upd.Details
	}
	c.LastUpdated = s.clock.Now()
	if err := s.claims.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddEvidence appends an attachment to an open claim.
func (s *ClaimService) AddEvidence(ctx context.Context, id string, req EvidenceRequest) (*entity.Claim, error) {
	if errs := validateEvidence("", req); len(errs) > 0 {
		return nil, apperror.Validation("evidence validation failed", errs...)
	}
	c, err := s.claims.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return nil, apperror.IllegalTransition("claim", id, c.Status, "add evidence to")
	}
	now := s.clock.Now()
	c.AddEvidence(newEvidence(req, now), now)
	if err := s.claims.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddCommunication appends a message to the claim's conversation.
func (s *ClaimService) AddCommunication(ctx context.Context, id string, req CommunicationRequest) (*entity.Claim, error) {
	var errs []string
	if strings.TrimSpace(req.Message) == "" {
		errs = append(errs, "message is required")
	}
	if !req.SenderRole.Valid() {
		errs = append(errs, fmt.Sprintf("unknown sender role %q", req.SenderRole))
	}
	if len(errs) > 0 {
		return nil, apperror.Validation("communication validation failed", errs...)
	}
	c, err := s.claims.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	c.AddCommunication(entity.Communication{
		ID:          uuid.NewString(),
		SenderRole:  req.SenderRole,
		SenderID:    req.SenderID,
		Message:     req.Message,
		Attachments: req.Attachments,
		Internal:    req.Internal,
	}, now)
	if err := s.claims.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Assign hands an open claim to a support agent.
func (s *ClaimService) Assign(ctx context.Context, id, agentID string) (*entity.Claim, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, apperror.Validation("agent id is required")
	}
	c, err := s.claims.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return nil, apperror.IllegalTransition("claim", id, c.Status, "assign")
	}
	now := s.clock.Now()
	c.AssignedTo = agentID
	c.AssignedAt = &now
	c.AddCommunication(systemMessage("Assigned to "+agentID, true), now)
	if err := s.claims.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateStatus moves a claim along its allow-list. Approval, rejection,
// resolution and cancellation go through their dedicated operations.
func (s *ClaimService) UpdateStatus(ctx context.Context, id string, next entity.ClaimStatus, notes string) (*entity.Claim, error) {
	switch next {
	case entity.ClaimApproved:
		return s.Approve(ctx, id, nil, notes)
	case entity.ClaimRejected:
		return s.Reject(ctx, id, notes)
	case entity.ClaimResolved:
		return s.Resolve(ctx, id, ResolutionRequest{Notes: notes})
	case entity.ClaimCancelled:
		return s.Cancel(ctx, id, notes)
	}
	if !next.Valid() {
		return nil, apperror.Validation("unknown claim status", string(next))
	}
	c, _, err := s.transition(ctx, id, next, notes, "move to "+string(next), nil)
	return c, err
}

// Approve accepts a claim under review. amount defaults to the claimed amount.
func (s *ClaimService) Approve(ctx context.Context, id string, amount *decimal.Decimal, notes string) (*entity.Claim, error) {
	c, _, err := s.transition(ctx, id, entity.ClaimApproved, notes, "approve", func(c *entity.Claim, _ time.Time) error {
		approved := c.ClaimedAmount
		if amount != nil {
			if !amount.IsPositive() || amount.GreaterThan(c.ClaimedAmount) {
				return apperror.Validation("approved amount must be positive and at most the claimed amount",
					fmt.Sprintf("approved %s, claimed %s", amount.StringFixed(2), c.ClaimedAmount.StringFixed(2)))
			}
			approved = *amount
		}
		c.ApprovedAmount = approved
		c.Resolution.Status = entity.ResolutionInProgress
		return nil
	})
	return c, err
}

func (s *ClaimService) Reject(ctx context.Context, id, notes string) (*entity.Claim, error) {
	c, _, err := s.transition(ctx, id, entity.ClaimRejected, notes, "reject", func(c *entity.Claim, _ time.Time) error {
		c.ApprovedAmount = decimal.Zero
		c.Resolution.Status = entity.ResolutionInProgress
		c.Resolution.Method = entity.ResolutionNone
		return nil
	})
	return c, err
}

// Resolve settles an approved or rejected claim. Settling an approved claim
// resolves the warranty and the secure transaction.
func (s *ClaimService) Resolve(ctx context.Context, id string, req ResolutionRequest) (*entity.Claim, error) {
	if req.Method != "" && !req.Method.Valid() {
		return nil, apperror.Validation("unknown resolution method", string(req.Method))
	}
	c, from, err := s.transition(ctx, id, entity.ClaimResolved, req.Notes, "resolve", func(c *entity.Claim, now time.Time) error {
		method := req.Method
		refund := decimal.Zero
		if c.Status == entity.ClaimApproved {
			if method == "" {
				method = entity.ResolutionRefund
			}
			if method == entity.ResolutionNone {
				return apperror.Validation("an approved claim needs a resolution method")
			}
			if method == entity.ResolutionRefund {
				refund = c.ApprovedAmount
			}
			if req.RefundAmount != nil {
				if req.RefundAmount.IsNegative() || req.RefundAmount.GreaterThan(c.ApprovedAmount) {
					return apperror.Validation("refund amount must be between zero and the approved amount",
						fmt.Sprintf("refund %s, approved %s", req.RefundAmount.StringFixed(2), c.ApprovedAmount.StringFixed(2)))
				}
				refund = *req.RefundAmount
			}
		} else {
			if method == "" {
				method = entity.ResolutionNone
			}
			if method != entity.ResolutionNone || (req.RefundAmount != nil && !req.RefundAmount.IsZero()) {
				return apperror.Validation("a rejected claim cannot be settled with a payout")
			}
		}
		c.RefundAmount = refund
		c.Resolution = entity.Resolution{
			Method:     method,
			Status:     entity.ResolutionCompleted,
			Notes:      req.Notes,
			ResolvedBy: req.ResolvedBy,
			ResolvedAt: &now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	upheld := from == entity.ClaimApproved
	if upheld {
		if _, err := s.warranties.MarkResolved(ctx, c.WarrantyID); err != nil {
			s.log.Warn("failed to resolve warranty after claim",
				zap.String("claim_id", c.ID),
				zap.String("warranty_id", c.WarrantyID),
				zap.Error(err),
			)
		}
	}
	s.closeOnLedger(ctx, c, upheld)
	return c, nil
}

// Cancel withdraws a claim that is still pending.
func (s *ClaimService) Cancel(ctx context.Context, id, reason string) (*entity.Claim, error) {
	c, _, err := s.transition(ctx, id, entity.ClaimCancelled, reason, "cancel", func(c *entity.Claim, _ time.Time) error {
		c.Resolution.Method = entity.ResolutionNone
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.closeOnLedger(ctx, c, false)
	return c, nil
}

func (s *ClaimService) closeOnLedger(ctx context.Context, c *entity.Claim, upheld bool) {
	if c.TransactionID == "" {
		return
	}
	othersOpen, err := s.hasOpenClaims(ctx, c.TransactionID, c.ID)
	if err != nil {
		s.log.Warn("failed to look up open claims, keeping protection claimed",
			zap.String("claim_id", c.ID), zap.Error(err))
		othersOpen = true
	}
	if _, err := s.ledger.CloseClaim(ctx, c, upheld, othersOpen); err != nil {
		s.log.Warn("failed to record claim outcome on secure transaction", zap.String("claim_id", c.ID), zap.Error(err))
	}
}

// hasOpenClaims reports whether any claim other than exceptID is still open
// against a warranty of the transaction.
func (s *ClaimService) hasOpenClaims(ctx context.Context, transactionID, exceptID string) (bool, error) {
	warranties, err := s.warranties.ListByTransaction(ctx, transactionID)
	if err != nil {
		return false, err
	}
	for _, w := range warranties {
		claims, err := s.claims.ListByWarranty(ctx, w.ID)
		if err != nil {
			return false, err
		}
		for _, other := range claims {
			if other.ID != exceptID && !other.Status.Terminal() {
				return true, nil
			}
		}
	}
	return false, nil
}

// transition loads the claim, checks the allow-list, applies mutate, moves
// the status and records a system message. It returns the previous status.
func (s *ClaimService) transition(
	ctx context.Context,
	id string,
	next entity.ClaimStatus,
	notes, action string,
	mutate func(*entity.Claim, time.Time) error,
) (*entity.Claim, entity.ClaimStatus, error) {
	c, err := s.claims.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	from := c.Status
	if !from.CanTransitionTo(next) {
		return nil, from, apperror.IllegalTransition("claim", id, from, action)
	}
	now := s.clock.Now()
	if mutate != nil {
		if err := mutate(c, now); err != nil {
			return nil, from, err
		}
	}
	c.Transition(next, now)

	msg := fmt.Sprintf("Status changed from %s to %s", from, next)
	if notes != "" {
		msg += ": " + notes
	}
	c.AddCommunication(systemMessage(msg, false), now)
	if err := s.claims.Update(ctx, c); err != nil {
		return nil, from, err
	}

	s.log.Info("claim status changed",
		zap.String("claim_id", c.ID),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
	)
	s.metrics.ClaimTransitioned(ctx, string(next))
	publish(ctx, s.publisher, s.log, messaging.TopicClaimStatusChanged, c.ID, entity.ClaimStatusChanged{
		ClaimID:   c.ID,
		From:      from,
		To:        next,
		ChangedAt: now,
	})
	return c, from, nil
}

func (s *ClaimService) Get(ctx context.Context, id string) (*entity.Claim, error) {
	return s.claims.Get(ctx, id)
}

func (s *ClaimService) GetByNumber(ctx context.Context, number string) (*entity.Claim, error) {
	return s.claims.GetByNumber(ctx, number)
}

func (s *ClaimService) ListByWarranty(ctx context.Context, warrantyID string) ([]entity.Claim, error) {
	return s.claims.ListByWarranty(ctx, warrantyID)
}

func (s *ClaimService) ListByBuyer(ctx context.Context, buyerID string) ([]entity.Claim, error) {
	return s.claims.ListByBuyer(ctx, buyerID)
}

// View computes the deadline fields as of now.
func (s *ClaimService) View(c *entity.Claim) ClaimView {
	now := s.clock.Now()
	return ClaimView{
		Claim:           c,
		TimeElapsedDays: c.TimeElapsed(now),
		WithinDeadline:  c.IsWithinDeadline(now),
	}
}
