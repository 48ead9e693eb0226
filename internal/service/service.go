// Package service holds the lifecycle managers of the protection engine:
// warranties, the secured-transaction ledger, checkout transactions and claims.
package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/messaging"
)

// HighValueThreshold is the order total above which checkout warns and the
// ledger flags the purchase as high value.
var HighValueThreshold = decimal.NewFromInt(10000)

// publish sends an integration event. Broker failures never fail the caller.
func publish(ctx context.Context, p messaging.Publisher, log *zap.Logger, topic, key string, event entity.Event) {
	if p == nil {
		return
	}
	if err := p.PublishEvent(ctx, topic, key, event); err != nil {
		log.Warn("failed to publish event",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
	}
}

// requireParty appends a validation message when id is empty or unknown.
func requireParty(ctx context.Context, role, id string, exists func(context.Context, string) (bool, error), errs *[]string) error {
	if id == "" {
		*errs = append(*errs, role+" id is required")
		return nil
	}
	ok, err := exists(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to look up %s %s: %w", role, id, err)
	}
	if !ok {
		*errs = append(*errs, fmt.Sprintf("%s %s does not exist", role, id))
	}
	return nil
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
