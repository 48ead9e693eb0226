// Package inproc is a single-process message bus on Watermill's Go channel
// Pub/Sub. It backs the messaging ports when no Kafka brokers are configured.
package inproc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/egannguyen/autoparts-marketplace/internal/messaging"
)

const keyMetadata = "partition_key"

type Bus struct {
	pubsub *gochannel.GoChannel
	log    *zap.Logger
}

var (
	_ messaging.Publisher  = (*Bus)(nil)
	_ messaging.Subscriber = (*Bus)(nil)
)

// NewBus creates a bus. A persistent bus replays earlier messages to late
// subscribers and keeps them in memory for its whole lifetime.
func NewBus(log *zap.Logger, persistent bool) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
			Persistent:          persistent,
		}, watermill.NopLogger{}),
		log: log.Named("inproc"),
	}
}

func (b *Bus) PublishEvent(_ context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(keyMetadata, key)
	return b.pubsub.Publish(topic, msg)
}

// Consume delivers every message on topic to handler. Go channel subscribers
// all receive every message, so groupID only labels the logs.
func (b *Bus) Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error) {
	messages, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		b.log.Error("failed to subscribe", zap.String("topic", topic), zap.Error(err))
		return
	}

	for msg := range messages {
		if err := handler(ctx, msg.Payload); err != nil {
			b.log.Error("error handling message",
				zap.String("topic", topic),
				zap.String("group", groupID),
				zap.String("message_uuid", msg.UUID),
				zap.Error(err))
		}
		msg.Ack()
	}
	b.log.Info("consumer shutting down", zap.String("topic", topic), zap.String("group", groupID))
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}
