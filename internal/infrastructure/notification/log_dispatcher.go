package notification

import (
	"context"

	appsales "github.com/retail/ledger/internal/application/sales"
	"go.uber.org/zap"
)

// LogDispatcher writes notifications to the log. It is used when no broker is
// configured.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a new LogDispatcher
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.Named("notifications")}
}

// Dispatch logs the notification
func (d *LogDispatcher) Dispatch(_ context.Context, n appsales.Notification) error {
	d.logger.Info(n.Message,
		zap.String("notification_id", n.ID.String()),
		zap.String("kind", n.Kind),
		zap.String("tenant_id", n.TenantID.String()),
		zap.String("customer_id", n.CustomerID.String()),
		zap.String("invoice_id", n.InvoiceID.String()),
		zap.String("amount", n.Amount.String()),
		zap.Any("attributes", n.Attributes),
	)
	return nil
}

// Close is a no-op
func (d *LogDispatcher) Close() error {
	return nil
}
