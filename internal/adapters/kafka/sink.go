package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/jobwatch/internal/config"
	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
)

// EventSchemaVersion is sent in the schema_version header of every message
const EventSchemaVersion = 1

const defaultWriteTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink publishes alert lifecycle events to a Kafka topic. Messages are keyed
// by alert id so every event for one alert lands on the same partition.
type Sink struct {
	writer messageWriter
	topic  string
	logger *logrus.Logger
}

// NewSink creates a synchronous, at-least-once producer for cfg.Topic
func NewSink(cfg *config.KafkaConfig, logger *logrus.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	logger.WithFields(logrus.Fields{
		"brokers":       cfg.Brokers,
		"topic":         cfg.Topic,
		"write_timeout": writeTimeout,
	}).Info("Kafka alert event sink configured")

	return newSink(writer, cfg.Topic, logger), nil
}

func newSink(writer messageWriter, topic string, logger *logrus.Logger) *Sink {
	return &Sink{writer: writer, topic: topic, logger: logger}
}

// Name identifies the sink in dispatcher logs and metrics
func (s *Sink) Name() string {
	return "kafka"
}

// Record writes one event and waits for the leader's ack
func (s *Sink) Record(ctx context.Context, event alerts.Event) error {
	msg, err := encodeMessage(event)
	if err != nil {
		return err
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"alert_id": event.Alert.ID,
			"action":   event.Action,
			"topic":    s.topic,
		}).Error("Failed to write alert event to Kafka")
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"alert_id": event.Alert.ID,
		"action":   event.Action,
	}).Debug("Published alert event")

	return nil
}

// Close flushes and closes the writer
func (s *Sink) Close() error {
	s.logger.WithField("topic", s.topic).Info("Closing Kafka alert event sink")
	return s.writer.Close()
}

func encodeMessage(event alerts.Event) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal alert event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(event.Alert.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "schema_version", Value: []byte(strconv.Itoa(EventSchemaVersion))},
			{Key: "action", Value: []byte(event.Action)},
			{Key: "rule_id", Value: []byte(event.Alert.RuleID)},
			{Key: "severity", Value: []byte(event.Alert.Severity)},
		},
		Time: event.Timestamp,
	}, nil
}
