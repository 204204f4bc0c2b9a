package event

import (
	"github.com/retail/ledger/internal/domain/sales"
)

// RegisterLedgerEvents registers the invoice events that travel through the outbox
func RegisterLedgerEvents(serializer *EventSerializer) {
	serializer.Register(sales.EventTypeInvoiceCreated, &sales.InvoiceCreatedEvent{})
	serializer.Register(sales.EventTypePaymentRecorded, &sales.PaymentRecordedEvent{})
	serializer.Register(sales.EventTypeInvoicePaid, &sales.InvoicePaidEvent{})
	serializer.Register(sales.EventTypeInvoiceCancelled, &sales.InvoiceCancelledEvent{})
	serializer.Register(sales.EventTypeInstallmentOverdue, &sales.InstallmentOverdueEvent{})
}

// NewLedgerEventSerializer returns a serializer with every ledger event registered
func NewLedgerEventSerializer() *EventSerializer {
	serializer := NewEventSerializer()
	RegisterLedgerEvents(serializer)
	return serializer
}
