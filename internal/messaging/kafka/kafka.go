package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	kafkaGo "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/egannguyen/autoparts-marketplace/internal/messaging"
)

// Broker publishes and consumes JSON events on Kafka. Writers are created
// lazily per topic and reused.
type Broker struct {
	brokers []string
	log     *zap.Logger

	mu      sync.Mutex
	writers map[string]*kafkaGo.Writer
}

var (
	_ messaging.Publisher  = (*Broker)(nil)
	_ messaging.Subscriber = (*Broker)(nil)
)

// NewKafkaBroker creates a new Kafka publisher and subscriber.
func NewKafkaBroker(brokers []string, log *zap.Logger) *Broker {
	return &Broker{
		brokers: brokers,
		log:     log.Named("kafka"),
		writers: make(map[string]*kafkaGo.Writer),
	}
}

func (k *Broker) writer(topic string) *kafkaGo.Writer {
	k.mu.Lock()
	defer k.mu.Unlock()

	w, ok := k.writers[topic]
	if !ok {
		w = &kafkaGo.Writer{
			Addr:                   kafkaGo.TCP(k.brokers...),
			Topic:                  topic,
			Balancer:               &kafkaGo.LeastBytes{},
			AllowAutoTopicCreation: true,
		}
		k.writers[topic] = w
	}
	return w
}

func (k *Broker) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return k.writer(topic).WriteMessages(ctx, kafkaGo.Message{
		Key:   []byte(key),
		Value: payload,
	})
}

func (k *Broker) Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error) {
	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers: k.brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				k.log.Info("consumer shutting down", zap.String("topic", topic))
				return
			}
			k.log.Error("error reading message", zap.String("topic", topic), zap.Error(err))
			continue
		}

		if err := handler(ctx, msg.Value); err != nil {
			k.log.Error("error handling message", zap.String("topic", topic), zap.Error(err))
		}
	}
}

// Close flushes and closes every writer.
func (k *Broker) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var firstErr error
	for topic, w := range k.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close writer for %s: %w", topic, err)
		}
		delete(k.writers, topic)
	}
	return firstErr
}
