package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/egannguyen/autoparts-marketplace/internal/clock"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/lock"
	"github.com/egannguyen/autoparts-marketplace/internal/observability"
	"github.com/egannguyen/autoparts-marketplace/internal/repository/memory"
	"github.com/egannguyen/autoparts-marketplace/internal/service"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type published struct {
	topic string
	key   string
	event any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, key: key, event: event})
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

type harness struct {
	store        *memory.Store
	dir          *memory.Directory
	clock        *clock.Fixed
	pub          *recordingPublisher
	ledger       *service.LedgerService
	warranties   *service.WarrantyService
	transactions *service.TransactionService
	claims       *service.ClaimService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h := &harness{
		dir:   memory.NewDirectory(false),
		clock: clock.NewFixed(start),
		pub:   &recordingPublisher{},
	}
	h.store = memory.NewStore(memory.WithClock(h.clock))
	h.dir.AddBuyer("buyer-1", "buyer-2")
	h.dir.AddStore("store-1")

	log := zap.NewNop()
	metrics := observability.NopMetrics()
	h.ledger = service.NewLedgerService(h.store.Ledgers(), h.store.EventStore(), h.clock, log)
	h.warranties = service.NewWarrantyService(h.store.Warranties(), h.dir, h.ledger, lock.NewMemory(),
		h.pub, h.clock, metrics, log, service.DefaultWarrantyOptions())
	h.transactions = service.NewTransactionService(h.store.Transactions(), h.store.Outbox(), h.dir,
		h.warranties, h.pub, h.clock, metrics, log)
	h.claims = service.NewClaimService(h.store.Claims(), h.warranties, h.ledger, h.pub, node,
		h.clock, metrics, log, service.DefaultClaimOptions())
	return h
}

func warrantyRequest(level entity.ProtectionLevel, amount int64) service.WarrantyRequest {
	return service.WarrantyRequest{
		Kind:              entity.KindPurchaseProtection,
		BuyerID:           "buyer-1",
		StoreID:           "store-1",
		TransactionAmount: decimal.NewFromInt(amount),
		Level:             level,
	}
}

// activeWarranty creates and activates a warranty, optionally bound to a transaction line.
func (h *harness) activeWarranty(t *testing.T, req service.WarrantyRequest) *entity.Warranty {
	t.Helper()
	res, err := h.warranties.Create(context.Background(), req)
	require.NoError(t, err)
	w, err := h.warranties.Activate(context.Background(), res.Warranty.ID)
	require.NoError(t, err)
	return w
}
