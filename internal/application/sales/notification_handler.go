package sales

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/sales"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// NotificationHandler turns ledger events into customer notifications.
// Dispatch failures are logged and swallowed so notification outages never block
// payment collection.
type NotificationHandler struct {
	dispatcher NotificationDispatcher
	printer    *message.Printer
	logger     *zap.Logger
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(dispatcher NotificationDispatcher, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		dispatcher: dispatcher,
		printer:    message.NewPrinter(language.English),
		logger:     logger,
	}
}

// SetLanguage switches the locale used to format amounts in messages
func (h *NotificationHandler) SetLanguage(tag language.Tag) {
	h.printer = message.NewPrinter(tag)
}

// formatAmount renders a money amount with grouping and two decimals, e.g. 1,250.00
func (h *NotificationHandler) formatAmount(d decimal.Decimal) string {
	return h.printer.Sprint(number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2)))
}

// EventTypes returns the event types this handler is interested in
func (h *NotificationHandler) EventTypes() []string {
	return []string{
		sales.EventTypePaymentRecorded,
		sales.EventTypeInstallmentOverdue,
		sales.EventTypeInvoicePaid,
	}
}

// Handle builds the notification for event and dispatches it
func (h *NotificationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	n, ok := h.notificationFor(event)
	if !ok {
		h.logger.Warn("no notification for event",
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()),
		)
		return nil
	}

	if err := h.dispatcher.Dispatch(ctx, n); err != nil {
		h.logger.Error("failed to dispatch notification",
			zap.String("kind", n.Kind),
			zap.String("invoice_id", n.InvoiceID.String()),
			zap.String("customer_id", n.CustomerID.String()),
			zap.Error(err),
		)
		return nil
	}

	h.logger.Debug("notification dispatched",
		zap.String("kind", n.Kind),
		zap.String("notification_id", n.ID.String()),
	)
	return nil
}

func (h *NotificationHandler) notificationFor(event shared.DomainEvent) (Notification, bool) {
	n := Notification{
		// reuse the event id so downstream consumers can deduplicate
		ID:         event.EventID(),
		TenantID:   event.TenantID(),
		OccurredAt: event.OccurredAt(),
	}

	switch e := event.(type) {
	case *sales.PaymentRecordedEvent:
		n.Kind = NotificationPaymentReceived
		n.CustomerID = e.CustomerID
		n.InvoiceID = e.InvoiceID
		n.InvoiceNumber = e.InvoiceNumber
		n.Amount = e.Amount
		n.Message = fmt.Sprintf("Payment of %s received for invoice %s. Remaining balance: %s.",
			h.formatAmount(e.Amount), e.InvoiceNumber, h.formatAmount(e.RemainingAmount))
		n.Attributes = map[string]string{
			"payment_id":     e.PaymentID.String(),
			"method":         string(e.Method),
			"invoice_status": string(e.InvoiceStatus),
		}
	case *sales.InstallmentOverdueEvent:
		n.Kind = NotificationInstallmentOverdue
		n.CustomerID = e.CustomerID
		n.InvoiceID = e.InvoiceID
		n.InvoiceNumber = e.InvoiceNumber
		n.Amount = e.Outstanding
		n.Message = fmt.Sprintf("Installment %d of invoice %s was due on %s and is overdue. Outstanding: %s.",
			e.InstallmentNumber, e.InvoiceNumber, e.DueDate.Format("2006-01-02"), h.formatAmount(e.Outstanding))
		n.Attributes = map[string]string{
			"installment_number": fmt.Sprintf("%d", e.InstallmentNumber),
		}
	case *sales.InvoicePaidEvent:
		n.Kind = NotificationInvoicePaid
		n.CustomerID = e.CustomerID
		n.InvoiceID = e.InvoiceID
		n.Amount = e.TotalAmount
		n.Message = fmt.Sprintf("Invoice fully paid. Total: %s.", h.formatAmount(e.TotalAmount))
	default:
		return Notification{}, false
	}

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return n, true
}
