package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-widget/internal/observability"
)

// KafkaPublisher produces lookup events as JSON records keyed by city.
// Publish is asynchronous; delivery failures are logged and counted.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *zap.Logger
}

// NewKafkaPublisher connects a producer to brokers. No network I/O happens
// until the first record is produced.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: create producer: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("kafka publisher initialized", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return &KafkaPublisher{client: client, topic: topic, logger: logger}, nil
}

// Publish enqueues ev. The error only reports encoding failures.
func (p *KafkaPublisher) Publish(ctx context.Context, ev LookupEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		observability.EventsPublishedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("kafka: encode event: %w", err)
	}
	record := &kgo.Record{Topic: p.topic, Key: []byte(ev.City), Value: value}
	p.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			observability.EventsPublishedTotal.WithLabelValues("error").Inc()
			p.logger.Warn("kafka publish failed", zap.String("topic", r.Topic), zap.ByteString("key", r.Key), zap.Error(err))
			return
		}
		observability.EventsPublishedTotal.WithLabelValues("success").Inc()
	})
	return nil
}

// Flush waits for buffered records to be delivered.
func (p *KafkaPublisher) Flush(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("kafka: flush: %w", err)
	}
	return nil
}

// Close releases the client. Records still buffered are failed, so call
// Flush first during shutdown.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}
