package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher delivers envelopes to a Kafka topic. Envelope kinds may
// be mapped to dedicated topics; everything else lands on the default
// topic. Acks from all replicas are required before Publish returns.
type KafkaPublisher struct {
	writer       *kafka.Writer
	defaultTopic string
	topicByKind  map[string]string
}

// NewKafkaPublisher creates a publisher for the given brokers and default
// topic. topicByKind may be nil.
func NewKafkaPublisher(brokers []string, defaultTopic string, topicByKind map[string]string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if defaultTopic == "" {
		return nil, fmt.Errorf("kafka publisher requires a default topic")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		defaultTopic: defaultTopic,
		topicByKind:  topicByKind,
	}, nil
}

// Publish writes one envelope. The message key is the envelope key so
// events about the same object land on the same partition.
func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	topic := p.defaultTopic
	if mapped, ok := p.topicByKind[env.Kind]; ok && mapped != "" {
		topic = mapped
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(env.Key),
		Value: value,
		Time:  time.Now().UTC(),
	})
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
