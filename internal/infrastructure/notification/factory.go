package notification

import (
	appsales "github.com/retail/ledger/internal/application/sales"
	"github.com/retail/ledger/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewDispatcher picks the Kafka dispatcher when Kafka is enabled, the log
// dispatcher otherwise
func NewDispatcher(cfg config.KafkaConfig, logger *zap.Logger) (appsales.NotificationDispatcher, error) {
	if !cfg.Enabled {
		logger.Info("Kafka disabled, notifications go to the log")
		return NewLogDispatcher(logger), nil
	}
	return NewKafkaDispatcher(KafkaConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.NotificationTopic,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)
}
