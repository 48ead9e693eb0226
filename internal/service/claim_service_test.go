package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/messaging"
	"github.com/egannguyen/autoparts-marketplace/internal/service"
)

func claimRequest(warrantyID string, ct entity.ClaimType, amount string) service.ClaimRequest {
	return service.ClaimRequest{
		WarrantyID: warrantyID,
		Type:       ct,
		Amount:     dec(amount),
		Details: entity.ProblemDetails{
			IssueType:   "product",
			Description: "caliper arrived cracked",
			Severity:    entity.SeverityMajor,
		},
	}
}

// protectedLine returns an active warranty bound to transaction tx-1.
func protectedLine(t *testing.T, h *harness, level entity.ProtectionLevel, amount int64) *entity.Warranty {
	t.Helper()
	req := warrantyRequest(level, amount)
	req.TransactionID, req.ProductID = "tx-1", "caliper"
	return h.activeWarranty(t, req)
}

func TestClaimFile_LateDeliveryNotCoveredByBasic(t *testing.T) {
	h := newHarness(t)
	w := protectedLine(t, h, entity.LevelBasic, 500)

	_, err := h.claims.File(context.Background(), claimRequest(w.ID, entity.ClaimLateDelivery, "100"))
	require.Error(t, err)
	assert.Equal(t, apperror.KindIneligible, apperror.KindOf(err))

	claims, err := h.claims.ListByWarranty(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestClaimFile_Intake(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := protectedLine(t, h, entity.LevelBasic, 500)
	req := claimRequest(w.ID, entity.ClaimDefective, "450")
	req.Evidence = []service.EvidenceRequest{{Kind: entity.EvidencePhoto, URL: "https://img.example/1.jpg"}}

	c, err := h.claims.File(ctx, req)
	require.NoError(t, err)

	assert.Regexp(t, `^CLM-[0-9A-Z]+-[0-9A-F]{4}$`, c.ClaimNumber)
	assert.Equal(t, entity.ClaimPending, c.Status)
	assert.Equal(t, entity.PriorityMedium, c.Priority)
	assert.Equal(t, "tx-1", c.TransactionID)
	assert.Equal(t, "buyer-1", c.BuyerID)
	require.NotNil(t, c.DeadlineDate)
	assert.Equal(t, start.AddDate(0, 0, 15), *c.DeadlineDate)
	require.Len(t, c.Evidence, 1)
	assert.NotEmpty(t, c.Evidence[0].ID)
	require.Len(t, c.Communications, 1)
	assert.Equal(t, entity.SenderSystem, c.Communications[0].SenderRole)
	assert.Contains(t, c.Communications[0].Message, c.ClaimNumber)

	byNumber, err := h.claims.GetByNumber(ctx, c.ClaimNumber)
	require.NoError(t, err)
	assert.Equal(t, c.ID, byNumber.ID)

	st, err := h.ledger.GetByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ProtectionClaimed, st.Status)
	assert.Equal(t, entity.EventClaimFiled, st.Events[len(st.Events)-1].Type)

	assert.Contains(t, h.pub.topics(), messaging.TopicClaimFiled)
}

func TestClaimFile_LargeClaimsAreUrgent(t *testing.T) {
	h := newHarness(t)
	w := h.activeWarranty(t, warrantyRequest(entity.LevelPremium, 2000))

	c, err := h.claims.File(context.Background(), claimRequest(w.ID, entity.ClaimNonDelivery, "1500"))
	require.NoError(t, err)
	assert.Equal(t, entity.PriorityUrgent, c.Priority)
	assert.Empty(t, c.TransactionID)
}

func TestClaimFile_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	active := h.activeWarranty(t, warrantyRequest(entity.LevelBasic, 2000))
	pending, err := h.warranties.Create(ctx, warrantyRequest(entity.LevelBasic, 300))
	require.NoError(t, err)

	tests := []struct {
		name string
		req  service.ClaimRequest
		kind apperror.Kind
	}{
		{"above available coverage", claimRequest(active.ID, entity.ClaimDefective, "1000.01"), apperror.KindValidation},
		{"non-positive amount", claimRequest(active.ID, entity.ClaimDefective, "0"), apperror.KindValidation},
		{"unknown type", claimRequest(active.ID, entity.ClaimType("theft"), "10"), apperror.KindValidation},
		{"other is never covered", claimRequest(active.ID, entity.ClaimOther, "10"), apperror.KindIneligible},
		{"pending warranty", claimRequest(pending.Warranty.ID, entity.ClaimDefective, "10"), apperror.KindIneligible},
		{"missing warranty", claimRequest("missing", entity.ClaimDefective, "10"), apperror.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.claims.File(ctx, tt.req)
			assert.Equal(t, tt.kind, apperror.KindOf(err))
		})
	}

	other := claimRequest(active.ID, entity.ClaimDefective, "10")
	other.BuyerID = "buyer-2"
	_, err = h.claims.File(ctx, other)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestClaimFile_WarrantyPastExpirationIsIneligible(t *testing.T) {
	h := newHarness(t)
	w := h.activeWarranty(t, warrantyRequest(entity.LevelBasic, 300))
	h.clock.Advance(31 * 24 * time.Hour)

	_, err := h.claims.File(context.Background(), claimRequest(w.ID, entity.ClaimDefective, "10"))
	assert.Equal(t, apperror.KindIneligible, apperror.KindOf(err))
}

func TestClaimUpdate_OnlyWhilePending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.activeWarranty(t, warrantyRequest(entity.LevelBasic, 300))
	c, err := h.claims.File(ctx, claimRequest(w.ID, entity.ClaimDefective, "100"))
	require.NoError(t, err)

	amount := dec("120")
	updated, err := h.claims.Update(ctx, c.ID, service.ClaimUpdate{Amount: &amount})
	require.NoError(t, err)
	assert.True(t, updated.ClaimedAmount.Equal(amount))

	late := entity.ClaimLateDelivery
	_, err = h.claims.Update(ctx, c.ID, service.ClaimUpdate{Type: &late})
	assert.Equal(t, apperror.KindIneligible, apperror.KindOf(err))

	_, err = h.claims.UpdateStatus(ctx, c.ID, entity.ClaimUnderReview, "")
	require.NoError(t, err)

	_, err = h.claims.Update(ctx, c.ID, service.ClaimUpdate{Amount: &amount})
	assert.Equal(t, apperror.KindIllegalTransition, apperror.KindOf(err))
}

func TestClaimLifecycle_ApprovedClaimResolvesWarrantyAndLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := protectedLine(t, h, entity.LevelBasic, 500)
	c, err := h.claims.File(ctx, claimRequest(w.ID, entity.ClaimDefective, "400"))
	require.NoError(t, err)

	_, err = h.claims.Approve(ctx, c.ID, nil, "")
	assert.Equal(t, apperror.KindIllegalTransition, apperror.KindOf(err))

	_, err = h.claims.Assign(ctx, c.ID, "agent-7")
	require.NoError(t, err)
	_, err = h.claims.UpdateStatus(ctx, c.ID, entity.ClaimUnderReview, "picked up")
	require.NoError(t, err)

	tooMuch := dec("401")
	_, err = h.claims.Approve(ctx, c.ID, &tooMuch, "")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	partial := dec("300")
	approved, err := h.claims.Approve(ctx, c.ID, &partial, "photos confirm damage")
	require.NoError(t, err)
	assert.Equal(t, entity.ClaimApproved, approved.Status)
	assert.True(t, approved.ApprovedAmount.Equal(partial))

	h.clock.Advance(2 * 24 * time.Hour)
	resolved, err := h.claims.Resolve(ctx, c.ID, service.ResolutionRequest{ResolvedBy: "agent-7"})
	require.NoError(t, err)
	assert.Equal(t, entity.ClaimResolved, resolved.Status)
	assert.Equal(t, entity.ResolutionRefund, resolved.Resolution.Method)
	assert.Equal(t, entity.ResolutionCompleted, resolved.Resolution.Status)
	assert.True(t, resolved.RefundAmount.Equal(partial))
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, h.clock.Now(), *resolved.ResolvedAt)

	// intake, assignment, then one message per status change
	assert.Len(t, resolved.Communications, 5)
	assert.Equal(t, "agent-7", resolved.AssignedTo)

	stored, err := h.warranties.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.WarrantyResolved, stored.Status)

	st, err := h.ledger.GetByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ProtectionResolved, st.Status)
	assert.Equal(t, entity.EventClaimResolved, st.Events[len(st.Events)-1].Type)

	_, err = h.claims.AddEvidence(ctx, c.ID, service.EvidenceRequest{URL: "https://img.example/late.jpg"})
	assert.Equal(t, apperror.KindIllegalTransition, apperror.KindOf(err))
}

func TestClaimLifecycle_RejectedClaimRestoresProtection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := protectedLine(t, h, entity.LevelBasic, 500)
	c, err := h.claims.File(ctx, claimRequest(w.ID, entity.ClaimDefective, "400"))
	require.NoError(t, err)

	_, err = h.claims.UpdateStatus(ctx, c.ID, entity.ClaimUnderReview, "")
	require.NoError(t, err)
	_, err = h.claims.UpdateStatus(ctx, c.ID, entity.ClaimEvidenceRequired, "need photos")
	require.NoError(t, err)
	_, err = h.claims.AddEvidence(ctx, c.ID, service.EvidenceRequest{Kind: entity.EvidencePhoto, URL: "https://img.example/2.jpg"})
	require.NoError(t, err)
	_, err = h.claims.UpdateStatus(ctx, c.ID, entity.ClaimRejected, "wear and tear")
	require.NoError(t, err)

	refund := dec("10")
	_, err = h.claims.Resolve(ctx, c.ID, service.ResolutionRequest{RefundAmount: &refund})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	resolved, err := h.claims.UpdateStatus(ctx, c.ID, entity.ClaimResolved, "closed")
	require.NoError(t, err)
	assert.Equal(t, entity.ResolutionNone, resolved.Resolution.Method)
	assert.True(t, resolved.RefundAmount.IsZero())

	stored, err := h.warranties.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.WarrantyActive, stored.Status)

	st, err := h.ledger.GetByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ProtectionProtected, st.Status)
}

func TestClaimCancel_OnlyFromPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := protectedLine(t, h, entity.LevelBasic, 500)

	first, err := h.claims.File(ctx, claimRequest(w.ID, entity.ClaimDefective, "50"))
	require.NoError(t, err)
	cancelled, err := h.claims.Cancel(ctx, first.ID, "found the part")
	require.NoError(t, err)
	assert.Equal(t, entity.ClaimCancelled, cancelled.Status)

	st, err := h.ledger.GetByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ProtectionProtected, st.Status)

	second, err := h.claims.File(ctx, claimRequest(w.ID, entity.ClaimNonDelivery, "50"))
	require.NoError(t, err)
	_, err = h.claims.UpdateStatus(ctx, second.ID, entity.ClaimUnderReview, "")
	require.NoError(t, err)
	_, err = h.claims.Cancel(ctx, second.ID, "")
	assert.Equal(t, apperror.KindIllegalTransition, apperror.KindOf(err))

	mine, err := h.claims.ListByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestClaimCancel_LedgerStaysClaimedWhileAnotherClaimIsOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := protectedLine(t, h, entity.LevelBasic, 500)

	first, err := h.claims.File(ctx, claimRequest(w.ID, entity.ClaimDefective, "50"))
	require.NoError(t, err)
	second, err := h.claims.File(ctx, claimRequest(w.ID, entity.ClaimNonDelivery, "80"))
	require.NoError(t, err)

	_, err = h.claims.Cancel(ctx, first.ID, "duplicate")
	require.NoError(t, err)
	st, err := h.ledger.GetByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ProtectionClaimed, st.Status)
	assert.False(t, st.IsProtected(h.clock.Now()))

	_, err = h.claims.Cancel(ctx, second.ID, "resolved with seller")
	require.NoError(t, err)
	st, err = h.ledger.GetByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ProtectionProtected, st.Status)
}

func TestClaimCommunicationAndDeadline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.activeWarranty(t, warrantyRequest(entity.LevelBasic, 300))
	c, err := h.claims.File(ctx, claimRequest(w.ID, entity.ClaimDefective, "100"))
	require.NoError(t, err)

	_, err = h.claims.AddCommunication(ctx, c.ID, service.CommunicationRequest{SenderRole: entity.SenderBuyer, Message: ""})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	h.clock.Advance(3*24*time.Hour + time.Hour)
	c, err = h.claims.AddCommunication(ctx, c.ID, service.CommunicationRequest{
		SenderRole: entity.SenderStore,
		SenderID:   "store-1",
		Message:    "replacement shipped",
	})
	require.NoError(t, err)
	assert.Len(t, c.Communications, 2)
	assert.Equal(t, h.clock.Now(), c.LastUpdated)

	view := h.claims.View(c)
	assert.Equal(t, 3, view.TimeElapsedDays)
	assert.True(t, view.WithinDeadline)

	h.clock.Advance(12 * 24 * time.Hour)
	view = h.claims.View(c)
	assert.False(t, view.WithinDeadline)
}
