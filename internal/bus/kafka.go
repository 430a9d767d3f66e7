package bus

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/synheart/synheart-monitor/internal/models"
)

// DefaultKafkaTopic receives every alert, keyed by patient id
const DefaultKafkaTopic = "monitor.alerts"

type kafkaProducer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// KafkaSink publishes alerts to one topic. Keying by patient keeps each
// patient's alerts ordered within a partition.
type KafkaSink struct {
	producer kafkaProducer
	topic    string
	orgID    string
}

// ConnectKafka creates a producer for brokers (comma separated)
func ConnectKafka(brokers, topic, orgID string) (*KafkaSink, error) {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"client.id":         "synheart-monitor",
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &KafkaSink{producer: p, topic: topic, orgID: orgID}, nil
}

// PublishAlert implements monitor.AlertSink. It waits for the broker's delivery report.
func (s *KafkaSink) PublishAlert(ctx context.Context, patientID string, alert models.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeAlert(s.orgID, patientID, alert)
	if err != nil {
		return err
	}

	delivery := make(chan kafka.Event, 1)
	topic := s.topic
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(patientID),
		Value:          data,
	}
	if err := s.producer.Produce(msg, delivery); err != nil {
		return fmt.Errorf("failed to publish alert to Kafka: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-delivery:
		switch e := ev.(type) {
		case *kafka.Message:
			if e.TopicPartition.Error != nil {
				return fmt.Errorf("kafka delivery failed: %w", e.TopicPartition.Error)
			}
		case kafka.Error:
			return fmt.Errorf("kafka delivery failed: %w", e)
		}
		return nil
	}
}

// Close flushes queued messages and closes the producer
func (s *KafkaSink) Close() error {
	s.producer.Flush(2000)
	s.producer.Close()
	return nil
}
