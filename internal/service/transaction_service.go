package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/clock"
	"github.com/egannguyen/autoparts-marketplace/internal/coverage"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/messaging"
	"github.com/egannguyen/autoparts-marketplace/internal/observability"
	"github.com/egannguyen/autoparts-marketplace/internal/repository"
)

var (
	TaxRate        = decimal.RequireFromString("0.16")
	CommissionRate = decimal.RequireFromString("0.05")
)

// LineProtectionRequest opts a single line in or out of protection.
type LineProtectionRequest struct {
	Enabled bool                `json:"enabled"`
	Kind    entity.WarrantyKind `json:"kind,omitempty"`
}

type LineItemRequest struct {
	ProductID  string                 `json:"product_id"`
	Name       string                 `json:"name,omitempty"`
	Quantity   int                    `json:"quantity"`
	UnitPrice  decimal.Decimal        `json:"unit_price"`
	Protection *LineProtectionRequest `json:"protection,omitempty"`
}

// TransactionRequest is a checkout submission.
type TransactionRequest struct {
	BuyerID           string                 `json:"buyer_id"`
	StoreID           string                 `json:"store_id"`
	Items             []LineItemRequest      `json:"items"`
	ShippingAddress   entity.ShippingAddress `json:"shipping_address"`
	PaymentMethod     string                 `json:"payment_method"`
	ProtectionEnabled bool                   `json:"protection_enabled"`
	ProtectionLevel   entity.ProtectionLevel `json:"protection_level,omitempty"`
}

// TransactionResult is the stored order, its queued issuance work and warnings.
type TransactionResult struct {
	Transaction      *entity.Transaction      `json:"transaction"`
	IssuanceRequests []entity.IssuanceRequest `json:"issuance_requests"`
	Warnings         []string                 `json:"warnings,omitempty"`
}

// TransactionService runs checkout and the order lifecycle.
type TransactionService struct {
	transactions repository.TransactionRepository
	outbox       repository.IssuanceOutbox
	directory    repository.Directory
	warranties   *WarrantyService
	publisher    messaging.Publisher
	clock        clock.Clock
	metrics      *observability.Metrics
	log          *zap.Logger
}

func NewTransactionService(
	transactions repository.TransactionRepository,
	outbox repository.IssuanceOutbox,
	directory repository.Directory,
	warranties *WarrantyService,
	publisher messaging.Publisher,
	clk clock.Clock,
	metrics *observability.Metrics,
	log *zap.Logger,
) *TransactionService {
	return &TransactionService{
		transactions: transactions,
		outbox:       outbox,
		directory:    directory,
		warranties:   warranties,
		publisher:    publisher,
		clock:        clk,
		metrics:      metrics,
		log:          log.Named("transaction"),
	}
}

func (s *TransactionService) validate(ctx context.Context, req TransactionRequest) ([]string, error) {
	var errs []string
	if err := requireParty(ctx, "buyer", req.BuyerID, s.directory.BuyerExists, &errs); err != nil {
		return nil, err
	}
	if err := requireParty(ctx, "store", req.StoreID, s.directory.StoreExists, &errs); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		errs = append(errs, "payment method is required")
	}

	addr := req.ShippingAddress
	for _, f := range []struct{ name, value string }{
		{"recipient", addr.Recipient},
		{"street", addr.Street},
		{"city", addr.City},
		{"postal code", addr.PostalCode},
		{"country", addr.Country},
	} {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, "shipping "+f.name+" is required")
		}
	}

	if req.ProtectionEnabled && req.ProtectionLevel != "" && !req.ProtectionLevel.Valid() {
		errs = append(errs, fmt.Sprintf("unknown protection level %q", req.ProtectionLevel))
	}
	if len(req.Items) == 0 {
		errs = append(errs, "at least one line item is required")
	}
	protected := make(map[string]bool)
	for i, item := range req.Items {
		if item.ProductID == "" {
			errs = append(errs, fmt.Sprintf("item %d: product id is required", i))
		}
		if item.Quantity <= 0 {
			errs = append(errs, fmt.Sprintf("item %d: quantity must be positive", i))
		}
		if !item.UnitPrice.IsPositive() {
			errs = append(errs, fmt.Sprintf("item %d: unit price must be positive", i))
		}
		if item.Protection != nil && item.Protection.Kind != "" && !item.Protection.Kind.Valid() {
			errs = append(errs, fmt.Sprintf("item %d: unknown warranty kind %q", i, item.Protection.Kind))
		}
		if req.ProtectionEnabled && lineEligible(item) && item.ProductID != "" {
			if protected[item.ProductID] {
				errs = append(errs, fmt.Sprintf("item %d: product %s is already protected on another line", i, item.ProductID))
			}
			protected[item.ProductID] = true
		}
	}
	return errs, nil
}

// lineEligible is true unless the line explicitly opts out.
func lineEligible(item LineItemRequest) bool {
	return item.Protection == nil || item.Protection.Enabled
}

// Create prices and stores a pending order together with one issuance request
// per protected line. Warranties are issued later by the issuance relay.
func (s *TransactionService) Create(ctx context.Context, req TransactionRequest) (*TransactionResult, error) {
	errs, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, apperror.Validation("transaction validation failed", errs...)
	}

	level := req.ProtectionLevel
	if level == "" {
		level = entity.LevelBasic
	}
	now := s.clock.Now()
	tx := &entity.Transaction{
		ID:                uuid.NewString(),
		BuyerID:           req.BuyerID,
		StoreID:           req.StoreID,
		Items:             make([]entity.LineItem, 0, len(req.Items)),
		Currency:          entity.DefaultCurrency,
		Status:            entity.TransactionPending,
		PaymentStatus:     entity.PaymentPending,
		PaymentMethod:     req.PaymentMethod,
		ShippingAddress:   req.ShippingAddress,
		ProtectionEnabled: req.ProtectionEnabled,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.ProtectionEnabled {
		tx.ProtectionLevel = level
	}

	subtotal, warrantyTotal, covered := decimal.Zero, decimal.Zero, decimal.Zero
	requests := []entity.IssuanceRequest{}
	for _, in := range req.Items {
		line := entity.LineItem{
			ProductID: in.ProductID,
			Name:      in.Name,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			LineTotal: round2(in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))),
		}
		subtotal = subtotal.Add(line.LineTotal)

		if !req.ProtectionEnabled || !lineEligible(in) {
			if in.Protection != nil {
				line.Protection = &entity.LineProtection{Enabled: false, Kind: in.Protection.Kind, Cost: decimal.Zero}
			}
			tx.Items = append(tx.Items, line)
			continue
		}

		kind := entity.KindPurchaseProtection
		if in.Protection != nil && in.Protection.Kind != "" {
			kind = in.Protection.Kind
		}
		cost := coverage.Cost(line.LineTotal, level, false)
		line.Protection = &entity.LineProtection{Enabled: true, Kind: kind, Cost: cost}
		warrantyTotal = warrantyTotal.Add(cost)
		covered = covered.Add(coverage.Coverage(line.LineTotal, level).Amount)
		tx.Items = append(tx.Items, line)

		requests = append(requests, entity.IssuanceRequest{
			ID:            uuid.NewString(),
			TransactionID: tx.ID,
			BuyerID:       tx.BuyerID,
			StoreID:       tx.StoreID,
			ProductID:     line.ProductID,
			Kind:          kind,
			Level:         level,
			Amount:        line.LineTotal,
			Status:        entity.IssuancePending,
			NextAttemptAt: now,
			CreatedAt:     now,
		})
	}

	tx.Subtotal = subtotal
	tx.TaxAmount = round2(subtotal.Mul(TaxRate))
	tx.CommissionAmount = round2(subtotal.Mul(CommissionRate))
	tx.WarrantyTotal = warrantyTotal
	tx.CoverageAmount = covered
	tx.Total = tx.Subtotal.Add(tx.TaxAmount).Add(tx.CommissionAmount).Add(tx.WarrantyTotal)

	var warnings []string
	if tx.Total.GreaterThan(HighValueThreshold) {
		warnings = append(warnings, fmt.Sprintf("high-value transaction: total %s exceeds %s", tx.Total.StringFixed(2), HighValueThreshold.StringFixed(2)))
	}

	if err := s.transactions.Create(ctx, tx, requests); err != nil {
		return nil, fmt.Errorf("failed to store transaction: %w", err)
	}
	s.log.Info("transaction created",
		zap.String("transaction_id", tx.ID),
		zap.String("buyer_id", tx.BuyerID),
		zap.String("total", tx.Total.StringFixed(2)),
		zap.Int("issuance_requests", len(requests)),
	)
	s.metrics.TransactionCreated(ctx, tx.ProtectionEnabled)

	publish(ctx, s.publisher, s.log, messaging.TopicTransactionCreated, tx.ID, entity.TransactionCreated{
		TransactionID:     tx.ID,
		BuyerID:           tx.BuyerID,
		StoreID:           tx.StoreID,
		Total:             tx.Total,
		ProtectionEnabled: tx.ProtectionEnabled,
		IssuanceRequests:  len(requests),
		CreatedAt:         now,
	})
	return &TransactionResult{Transaction: tx, IssuanceRequests: requests, Warnings: warnings}, nil
}

func (s *TransactionService) Get(ctx context.Context, id string) (*entity.Transaction, error) {
	return s.transactions.Get(ctx, id)
}

func (s *TransactionService) ListByBuyer(ctx context.Context, buyerID string) ([]entity.Transaction, error) {
	return s.transactions.ListByBuyer(ctx, buyerID)
}

// Issuances lists the warranty issuance requests queued for a transaction.
func (s *TransactionService) Issuances(ctx context.Context, id string) ([]entity.IssuanceRequest, error) {
	if _, err := s.transactions.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.outbox.ListByTransaction(ctx, id)
}

// UpdateStatus moves the order along its allow-list and optionally records a
// payment status. Moving to cancelled cancels the live warranties too.
func (s *TransactionService) UpdateStatus(ctx context.Context, id string, status entity.TransactionStatus, payment *entity.PaymentStatus) (*entity.Transaction, error) {
	if !status.Valid() {
		return nil, apperror.Validation("unknown transaction status", string(status))
	}
	if payment != nil && !payment.Valid() {
		return nil, apperror.Validation("unknown payment status", string(*payment))
	}
	tx, err := s.transactions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := tx.Status
	if !tx.ApplyStatus(status, s.clock.Now()) {
		return nil, apperror.IllegalTransition("transaction", id, from, "move to "+string(status))
	}
	if payment != nil {
		tx.PaymentStatus = *payment
	}
	if err := s.transactions.Update(ctx, tx); err != nil {
		return nil, err
	}
	s.log.Info("transaction status updated",
		zap.String("transaction_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
	)
	if from != entity.TransactionCancelled && status == entity.TransactionCancelled {
		s.cancelWarranties(ctx, tx.ID, "transaction cancelled")
	}
	return tx, nil
}

// Cancel is legal while the order is pending or processing.
func (s *TransactionService) Cancel(ctx context.Context, id, reason string) (*entity.Transaction, error) {
	tx, err := s.transactions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tx.Status.Cancellable() {
		return nil, apperror.IllegalTransition("transaction", id, tx.Status, "cancel")
	}
	tx.ApplyStatus(entity.TransactionCancelled, s.clock.Now())
	if err := s.transactions.Update(ctx, tx); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "transaction cancelled"
	}
	s.log.Info("transaction cancelled", zap.String("transaction_id", id), zap.String("reason", reason))
	s.cancelWarranties(ctx, tx.ID, reason)
	return tx, nil
}

func (s *TransactionService) cancelWarranties(ctx context.Context, transactionID, reason string) {
	warranties, err := s.warranties.ListByTransaction(ctx, transactionID)
	if err != nil {
		s.log.Error("failed to list warranties of cancelled transaction", zap.String("transaction_id", transactionID), zap.Error(err))
		return
	}
	for _, w := range warranties {
		if !w.Status.Live() {
			continue
		}
		if _, err := s.warranties.Cancel(ctx, w.ID, reason); err != nil {
			s.log.Warn("failed to cancel warranty of cancelled transaction",
				zap.String("transaction_id", transactionID),
				zap.String("warranty_id", w.ID),
				zap.Error(err),
			)
		}
	}
}
