// Package events announces finished and failed generation runs on Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
)

const (
	TypeGenerated = "presentation.generated"
	TypeFailed    = "presentation.failed"
)

// Event describes one pipeline run.
type Event struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id,omitempty"`
	Topic      string    `json:"topic"`
	Title      string    `json:"title,omitempty"`
	Path       string    `json:"path,omitempty"`
	Chars      int       `json:"chars,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher sends run events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// KafkaConfig holds Kafka producer configuration.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher writes events as JSON with a synchronous producer, keyed by
// topic so runs for the same topic stay ordered within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	verbose  bool
	logger   *log.Logger
}

func NewKafkaPublisher(cfg KafkaConfig, verbose bool, logger *log.Logger) (*KafkaPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, cfg.Topic, verbose, logger), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer. logger may be nil.
func NewKafkaPublisherWithProducer(p sarama.SyncProducer, topic string, verbose bool, logger *log.Logger) *KafkaPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &KafkaPublisher{producer: p, topic: topic, verbose: verbose, logger: logger}
}

func (k *KafkaPublisher) infof(format string, args ...any) {
	if !k.verbose {
		return
	}
	k.logger.Printf("[events] "+format, args...)
}

func (k *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(e.Topic),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	k.infof("%s for %q -> %s[%d]@%d", e.Type, e.Topic, k.topic, partition, offset)
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
