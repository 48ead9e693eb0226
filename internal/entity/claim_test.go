package entity_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/egannguyen/autoparts-marketplace/internal/entity"
)

func TestClaim_DeadlineAndElapsed(t *testing.T) {
	filed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	c := &entity.Claim{Status: entity.ClaimPending, FiledAt: filed}

	assert.True(t, c.IsWithinDeadline(filed.AddDate(1, 0, 0)), "no deadline set")
	assert.Equal(t, 0, c.TimeElapsed(filed.Add(23*time.Hour)))
	assert.Equal(t, 3, c.TimeElapsed(filed.Add(72*time.Hour+time.Minute)))

	deadline := filed.AddDate(0, 0, 15)
	c.DeadlineDate = &deadline
	assert.True(t, c.IsWithinDeadline(deadline))
	assert.False(t, c.IsWithinDeadline(deadline.Add(time.Second)))
}

func TestClaim_AppendsStampLastUpdated(t *testing.T) {
	filed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	c := &entity.Claim{Status: entity.ClaimPending, FiledAt: filed, LastUpdated: filed}

	later := filed.Add(2 * time.Hour)
	c.AddEvidence(entity.Evidence{ID: "e-1", Kind: entity.EvidencePhoto, URL: "https://cdn.example/p.jpg"}, later)
	assert.Equal(t, later, c.LastUpdated)
	assert.Equal(t, later, c.Evidence[0].SubmittedAt)

	latest := later.Add(time.Hour)
	c.AddCommunication(entity.Communication{SenderRole: entity.SenderStore, Message: "shipping a replacement"}, latest)
	assert.Equal(t, latest, c.LastUpdated)
	assert.Len(t, c.Communications, 1)
}

func TestClaim_TransitionStampsResolution(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	c := &entity.Claim{Status: entity.ClaimApproved, ClaimedAmount: decimal.NewFromInt(10)}

	assert.False(t, c.Transition(entity.ClaimPending, now))
	assert.True(t, c.Transition(entity.ClaimResolved, now))
	if assert.NotNil(t, c.ResolvedAt) {
		assert.Equal(t, now, *c.ResolvedAt)
	}
}

func TestWarrantyTerms_Covers(t *testing.T) {
	terms := entity.WarrantyTerms{CoversDefectiveProducts: true, CoversNonDelivery: true, CoversNotAsDescribed: true}
	assert.True(t, terms.Covers(entity.ClaimDefective))
	assert.True(t, terms.Covers(entity.ClaimNonDelivery))
	assert.True(t, terms.Covers(entity.ClaimNotAsDescribed))
	assert.False(t, terms.Covers(entity.ClaimLateDelivery))
	assert.False(t, terms.Covers(entity.ClaimOther))
	assert.False(t, terms.Covers(entity.ClaimType("water_damage")))
}
