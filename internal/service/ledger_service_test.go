package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/service"
)

func boundWarranty(id, txID string, level entity.ProtectionLevel, amount string) *entity.Warranty {
	return &entity.Warranty{
		ID:                id,
		Kind:              entity.KindPurchaseProtection,
		Level:             level,
		BuyerID:           "buyer-1",
		StoreID:           "store-1",
		TransactionID:     txID,
		TransactionAmount: dec(amount),
		CoverageAmount:    dec(amount),
	}
}

func TestAssessRisk(t *testing.T) {
	tests := []struct {
		amount  string
		level   entity.ProtectionLevel
		score   int
		factors []string
	}{
		{"500", entity.LevelBasic, 0, []string{}},
		{"10000", entity.LevelPremium, 0, []string{}},
		{"10000.01", entity.LevelBasic, 40, []string{"high_value"}},
		{"20000", entity.LevelExtended, 50, []string{"high_value", "extended_coverage"}},
	}
	for _, tt := range tests {
		score, factors := service.AssessRisk(decimal.RequireFromString(tt.amount), tt.level)
		assert.Equal(t, tt.score, score, tt.amount)
		assert.Equal(t, tt.factors, factors, tt.amount)
	}
}

func TestLedger_CreateOrAttachIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := boundWarranty("w-1", "tx-1", entity.LevelExtended, "12000")

	st, err := h.ledger.CreateOrAttach(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 50, st.RiskScore)
	assert.Equal(t, start.AddDate(0, 0, 90), st.ProtectionEndDate)

	again, err := h.ledger.CreateOrAttach(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, []string{"w-1"}, again.Warranties)

	stored, err := h.ledger.GetByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, stored.Events, 2)
	assert.Equal(t, entity.EventRiskAssessed, stored.Events[1].Type)
	assert.Equal(t, 2, stored.Version)

	_, err = h.ledger.CreateOrAttach(ctx, boundWarranty("w-2", "", entity.LevelBasic, "10"))
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestLedger_ConcurrentAttachesAllLand(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.ledger.CreateOrAttach(ctx, boundWarranty("w-0", "tx-1", entity.LevelBasic, "10"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"w-1", "w-2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.ledger.CreateOrAttach(ctx, boundWarranty(id, "tx-1", entity.LevelBasic, "10"))
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	st, err := h.ledger.GetByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"w-0", "w-1", "w-2"}, st.Warranties)
	assert.Equal(t, len(st.Warranties), st.ActiveWarrantyCount())
}

func TestLedger_RecordExpiryDetachesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.ledger.CreateOrAttach(ctx, boundWarranty("w-1", "tx-1", entity.LevelBasic, "10"))
	require.NoError(t, err)
	_, err = h.ledger.CreateOrAttach(ctx, boundWarranty("w-2", "tx-1", entity.LevelBasic, "10"))
	require.NoError(t, err)

	at := start.Add(time.Hour)
	st, err := h.ledger.RecordExpiry(ctx, "tx-1", "w-1", at)
	require.NoError(t, err)
	assert.Equal(t, entity.ProtectionProtected, st.Status)

	_, err = h.ledger.RecordExpiry(ctx, "tx-1", "w-1", at)
	require.NoError(t, err)

	st, err = h.ledger.RecordExpiry(ctx, "tx-1", "w-2", at)
	require.NoError(t, err)
	assert.Equal(t, entity.ProtectionExpired, st.Status)
	assert.Zero(t, st.ActiveWarrantyCount())

	stored, err := h.ledger.GetByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	expired := 0
	for _, e := range stored.Events {
		if e.Type == entity.EventWarrantyExpired {
			expired++
		}
	}
	assert.Equal(t, 2, expired)
	assert.Equal(t, entity.EventStatusChanged, stored.Events[len(stored.Events)-1].Type)
}

func TestLedger_RecordEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.ledger.CreateOrAttach(ctx, boundWarranty("w-1", "tx-1", entity.LevelBasic, "10"))
	require.NoError(t, err)

	amount := dec("5")
	st, err := h.ledger.RecordEvent(ctx, "tx-1", "shipment_delayed", "carrier reported a delay", &amount, map[string]string{"carrier": "dhl"})
	require.NoError(t, err)
	assert.Equal(t, "shipment_delayed", st.Events[len(st.Events)-1].Type)

	_, err = h.ledger.RecordEvent(ctx, "tx-1", " ", "", nil, nil)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = h.ledger.RecordEvent(ctx, "tx-404", "x", "", nil, nil)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestLedger_HistoryFollowsStreamVersions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.ledger.CreateOrAttach(ctx, boundWarranty("w-1", "tx-1", entity.LevelBasic, "300"))
	require.NoError(t, err)
	_, err = h.ledger.CreateOrAttach(ctx, boundWarranty("w-2", "tx-1", entity.LevelBasic, "200"))
	require.NoError(t, err)

	history, err := h.ledger.History(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	for i, entry := range history {
		assert.Equal(t, i+1, entry.Version)
		assert.NotEmpty(t, entry.Payload)
	}
	assert.Equal(t, start, history[0].RecordedAt)

	h.clock.Advance(time.Hour)
	_, err = h.ledger.CreateOrAttach(ctx, boundWarranty("w-3", "tx-1", entity.LevelBasic, "100"))
	require.NoError(t, err)
	history, err = h.ledger.History(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), history[len(history)-1].RecordedAt)
	assert.Equal(t, entity.EventProtectionActivated, history[0].EventType)
	assert.Equal(t, entity.EventWarrantyAttached, history[1].EventType)

	_, err = h.ledger.History(ctx, "tx-missing")
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}
