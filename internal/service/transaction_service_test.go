package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/messaging"
	"github.com/egannguyen/autoparts-marketplace/internal/service"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func checkout(items ...service.LineItemRequest) service.TransactionRequest {
	return service.TransactionRequest{
		BuyerID: "buyer-1",
		StoreID: "store-1",
		Items:   items,
		ShippingAddress: entity.ShippingAddress{
			Recipient:  "Ana Ruiz",
			Street:     "Av. Reforma 100",
			City:       "CDMX",
			PostalCode: "06600",
			Country:    "MX",
		},
		PaymentMethod: "card",
	}
}

func line(product string, qty int, price string) service.LineItemRequest {
	return service.LineItemRequest{ProductID: product, Quantity: qty, UnitPrice: dec(price)}
}

func TestTransactionCreate_PremiumProtectionTotals(t *testing.T) {
	h := newHarness(t)
	req := checkout(line("brake-pads", 2, "100"))
	req.ProtectionEnabled = true
	req.ProtectionLevel = entity.LevelPremium

	res, err := h.transactions.Create(context.Background(), req)
	require.NoError(t, err)

	tx := res.Transaction
	assert.True(t, tx.Subtotal.Equal(dec("200")), tx.Subtotal.String())
	assert.True(t, tx.TaxAmount.Equal(dec("32")), tx.TaxAmount.String())
	assert.True(t, tx.CommissionAmount.Equal(dec("10")), tx.CommissionAmount.String())
	assert.True(t, tx.WarrantyTotal.Equal(dec("16")), tx.WarrantyTotal.String())
	assert.True(t, tx.Total.Equal(dec("258")), tx.Total.String())
	assert.True(t, tx.CoverageAmount.Equal(dec("200")))
	assert.True(t, tx.Balanced())
	assert.Equal(t, entity.TransactionPending, tx.Status)
	assert.Equal(t, entity.PaymentPending, tx.PaymentStatus)
	assert.Empty(t, res.Warnings)

	require.NotNil(t, tx.Items[0].Protection)
	assert.True(t, tx.Items[0].Protection.Cost.Equal(dec("16")))
	assert.Equal(t, entity.KindPurchaseProtection, tx.Items[0].Protection.Kind)

	require.Len(t, res.IssuanceRequests, 1)
	issue := res.IssuanceRequests[0]
	assert.Equal(t, tx.ID, issue.TransactionID)
	assert.Equal(t, "brake-pads", issue.ProductID)
	assert.Equal(t, entity.LevelPremium, issue.Level)
	assert.True(t, issue.Amount.Equal(dec("200")))
	assert.Equal(t, entity.IssuancePending, issue.Status)

	queued, err := h.transactions.Issuances(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Len(t, queued, 1)

	// warranties are issued by the relay, not inline
	ws, err := h.warranties.ListByTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Empty(t, ws)
	assert.Equal(t, []string{messaging.TopicTransactionCreated}, h.pub.topics())
}

func TestTransactionCreate_WithoutProtection(t *testing.T) {
	h := newHarness(t)

	res, err := h.transactions.Create(context.Background(), checkout(line("rotor", 1, "200")))
	require.NoError(t, err)
	assert.True(t, res.Transaction.WarrantyTotal.IsZero())
	assert.True(t, res.Transaction.Total.Equal(dec("242")))
	assert.Empty(t, res.IssuanceRequests)
	assert.Empty(t, res.Transaction.ProtectionLevel)
}

func TestTransactionCreate_LineOptOut(t *testing.T) {
	h := newHarness(t)
	optOut := line("wiper", 1, "20")
	optOut.Protection = &service.LineProtectionRequest{Enabled: false}
	returns := line("alternator", 1, "300")
	returns.Protection = &service.LineProtectionRequest{Enabled: true, Kind: entity.KindReturnGuarantee}
	req := checkout(returns, optOut)
	req.ProtectionEnabled = true

	res, err := h.transactions.Create(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, res.IssuanceRequests, 1)
	assert.Equal(t, "alternator", res.IssuanceRequests[0].ProductID)
	assert.Equal(t, entity.KindReturnGuarantee, res.IssuanceRequests[0].Kind)
	assert.Equal(t, entity.LevelBasic, res.IssuanceRequests[0].Level)
	assert.True(t, res.Transaction.WarrantyTotal.Equal(dec("15")))
	assert.False(t, res.Transaction.Items[1].Protected())
}

func TestTransactionCreate_HighValueWarning(t *testing.T) {
	h := newHarness(t)

	res, err := h.transactions.Create(context.Background(), checkout(line("engine", 1, "9000")))
	require.NoError(t, err)
	assert.True(t, res.Transaction.Total.Equal(dec("10890")))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "high-value")
}

func TestTransactionCreate_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*service.TransactionRequest)
		details int
	}{
		{"no items", func(r *service.TransactionRequest) { r.Items = nil }, 1},
		{"unknown buyer", func(r *service.TransactionRequest) { r.BuyerID = "ghost" }, 1},
		{"missing payment and city", func(r *service.TransactionRequest) {
			r.PaymentMethod = ""
			r.ShippingAddress.City = ""
		}, 2},
		{"bad quantity and price", func(r *service.TransactionRequest) {
			r.Items = []service.LineItemRequest{line("x", 0, "0")}
		}, 2},
		{"product protected twice", func(r *service.TransactionRequest) {
			r.ProtectionEnabled = true
			r.Items = []service.LineItemRequest{line("x", 1, "5"), line("x", 2, "5")}
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := checkout(line("rotor", 1, "50"))
			tt.mutate(&req)
			_, err := h.transactions.Create(ctx, req)
			require.Error(t, err)
			var appErr *apperror.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperror.KindValidation, appErr.Kind)
			assert.Len(t, appErr.Details, tt.details)
		})
	}

	txs, err := h.transactions.ListByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestTransactionUpdateStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.transactions.Create(ctx, checkout(line("rotor", 1, "50")))
	require.NoError(t, err)
	id := res.Transaction.ID

	paid := entity.PaymentPaid
	tx, err := h.transactions.UpdateStatus(ctx, id, entity.TransactionPending, &paid)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentPaid, tx.PaymentStatus)

	tx, err = h.transactions.UpdateStatus(ctx, id, entity.TransactionCompleted, nil)
	require.NoError(t, err)
	require.NotNil(t, tx.CompletedAt)
	assert.Equal(t, start, *tx.CompletedAt)

	_, err = h.transactions.UpdateStatus(ctx, id, entity.TransactionPending, nil)
	assert.Equal(t, apperror.KindIllegalTransition, apperror.KindOf(err))

	_, err = h.transactions.UpdateStatus(ctx, id, entity.TransactionStatus("shipped"), nil)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = h.transactions.UpdateStatus(ctx, "missing", entity.TransactionCompleted, nil)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestTransactionCancel_CancelsLiveWarranties(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.transactions.Create(ctx, checkout(line("rotor", 1, "50")))
	require.NoError(t, err)
	tx := res.Transaction

	req := warrantyRequest(entity.LevelBasic, 50)
	req.TransactionID, req.ProductID = tx.ID, "rotor"
	w := h.activeWarranty(t, req)

	cancelled, err := h.transactions.Cancel(ctx, tx.ID, "out of stock")
	require.NoError(t, err)
	assert.Equal(t, entity.TransactionCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	stored, err := h.warranties.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.WarrantyCancelled, stored.Status)
	assert.Equal(t, "out of stock", stored.CancelReason)

	_, err = h.transactions.Cancel(ctx, tx.ID, "")
	assert.Equal(t, apperror.KindIllegalTransition, apperror.KindOf(err))
}

func TestTransactionCancel_NotAfterCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.transactions.Create(ctx, checkout(line("rotor", 1, "50")))
	require.NoError(t, err)
	_, err = h.transactions.UpdateStatus(ctx, res.Transaction.ID, entity.TransactionCompleted, nil)
	require.NoError(t, err)

	_, err = h.transactions.Cancel(ctx, res.Transaction.ID, "")
	assert.Equal(t, apperror.KindIllegalTransition, apperror.KindOf(err))
}
