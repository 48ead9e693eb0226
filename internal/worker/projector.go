package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/messaging"
	"github.com/egannguyen/autoparts-marketplace/internal/service"
)

// LedgerProjector folds warranty expirations into the secured-transaction ledger.
type LedgerProjector struct {
	subscriber messaging.Subscriber
	ledger     *service.LedgerService
	log        *zap.Logger
	cfg        ProjectorConfig
}

func NewLedgerProjector(subscriber messaging.Subscriber, ledger *service.LedgerService, log *zap.Logger, cfg ProjectorConfig) *LedgerProjector {
	if cfg.GroupID == "" {
		cfg = DefaultProjectorConfig()
	}
	return &LedgerProjector{
		subscriber: subscriber,
		ledger:     ledger,
		log:        log.Named("worker.ledger"),
		cfg:        cfg,
	}
}

// Run consumes until ctx is cancelled.
func (p *LedgerProjector) Run(ctx context.Context) {
	p.log.Info("starting ledger projector", zap.String("topic", messaging.TopicWarrantyExpired))
	p.subscriber.Consume(ctx, messaging.TopicWarrantyExpired, p.cfg.GroupID, p.Handle)
}

// Handle applies one warranty expiry payload. Redelivery is harmless.
func (p *LedgerProjector) Handle(ctx context.Context, payload []byte) error {
	var evt entity.WarrantyExpiredEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("failed to decode warranty expired event: %w", err)
	}
	if evt.TransactionID == "" {
		return nil
	}

	_, err := p.ledger.RecordExpiry(ctx, evt.TransactionID, evt.WarrantyID, evt.ExpiredAt)
	if apperror.IsKind(err, apperror.KindNotFound) {
		p.log.Debug("no secure transaction for expired warranty",
			zap.String("warranty_id", evt.WarrantyID),
			zap.String("transaction_id", evt.TransactionID),
		)
		return nil
	}
	return err
}
