package messaging

import "context"

// Topics carrying integration events.
const (
	TopicTransactionCreated = "transactions.created"
	TopicWarrantyIssued     = "warranties.issued"
	TopicWarrantyActivated  = "warranties.activated"
	TopicWarrantyExpired    = "warranties.expired"
	TopicClaimFiled         = "claims.filed"
	TopicClaimStatusChanged = "claims.status_changed"
)

// Publisher defines an interface for publishing events to a message broker.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, key string, event any) error
}

// Subscriber defines an interface for subscribing to a message topic.
// Consume blocks until ctx is cancelled.
type Subscriber interface {
	Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error)
}
