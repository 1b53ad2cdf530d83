package publish

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/thermal-monitor/internal/config"
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each sample as a JSON message keyed by host.
type KafkaPublisher struct {
	writer kafkaMessageWriter
	topic  string
}

// NewKafkaPublisher builds a writer for cfg.Topic on cfg.Brokers.
func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w, topic: cfg.Topic}, nil
}

func (k *KafkaPublisher) Name() string { return "kafka" }

func (k *KafkaPublisher) Publish(ctx context.Context, s Sample) error {
	value, err := s.encode()
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(s.Host), Value: value}); err != nil {
		return fmt.Errorf("kafka write to %s: %w", k.topic, err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
