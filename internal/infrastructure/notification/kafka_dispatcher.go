package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	appsales "github.com/retail/ledger/internal/application/sales"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Kafka message headers set on every notification
const (
	HeaderKind     = "notification-kind"
	HeaderTenantID = "tenant-id"
)

// messageWriter is the part of kafka.Writer the dispatcher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds the Kafka dispatcher settings
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaDispatcher publishes notifications as JSON to a single topic, keyed by
// customer so one customer's notifications stay ordered on one partition
type KafkaDispatcher struct {
	writer       messageWriter
	topic        string
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewKafkaDispatcher creates a dispatcher writing to the given brokers
func NewKafkaDispatcher(cfg KafkaConfig, logger *zap.Logger) (*KafkaDispatcher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka dispatcher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka dispatcher requires a topic")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
	}
	return newKafkaDispatcher(writer, cfg.Topic, cfg.WriteTimeout, logger), nil
}

func newKafkaDispatcher(writer messageWriter, topic string, writeTimeout time.Duration, logger *zap.Logger) *KafkaDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaDispatcher{
		writer:       writer,
		topic:        topic,
		writeTimeout: writeTimeout,
		logger:       logger.Named("kafka_notifications"),
	}
}

// Dispatch writes one notification
func (d *KafkaDispatcher) Dispatch(ctx context.Context, n appsales.Notification) error {
	msg, err := encode(n)
	if err != nil {
		return err
	}

	if d.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.writeTimeout)
		defer cancel()
	}

	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish notification %s to %s: %w", n.ID, d.topic, err)
	}

	d.logger.Debug("Notification published",
		zap.String("notification_id", n.ID.String()),
		zap.String("kind", n.Kind),
		zap.String("topic", d.topic),
	)
	return nil
}

// Close flushes pending writes and closes the writer
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

func encode(n appsales.Notification) (kafka.Message, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode notification: %w", err)
	}
	return kafka.Message{
		Key:   []byte(n.CustomerID.String()),
		Value: payload,
		Time:  n.OccurredAt.UTC(),
		Headers: []kafka.Header{
			{Key: HeaderKind, Value: []byte(n.Kind)},
			{Key: HeaderTenantID, Value: []byte(n.TenantID.String())},
		},
	}, nil
}
