package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type constants
const (
	EventTypeInvoiceCreated     = "InvoiceCreated"
	EventTypePaymentRecorded    = "PaymentRecorded"
	EventTypeInvoicePaid        = "InvoicePaid"
	EventTypeInvoiceCancelled   = "InvoiceCancelled"
	EventTypeInstallmentOverdue = "InstallmentOverdue"
)

// AggregateTypeInvoice is the aggregate type name used in events
const AggregateTypeInvoice = "Invoice"

// InvoiceCreatedEvent is raised when a sale is invoiced
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice, at time.Time) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCreated, AggregateTypeInvoice, inv.ID, inv.TenantID, at),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		CustomerID:      inv.CustomerID,
		PaymentMethod:   inv.PaymentMethod,
		TotalAmount:     inv.TotalAmount,
		PaidAmount:      inv.PaidAmount,
	}
}

// PaymentRecordedEvent is the fact the credit engine learns payment behavior from.
// DaysLate is measured against the installment that took the largest share of the payment.
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	InvoiceID       uuid.UUID       `json:"invoice_id"`
	InvoiceNumber   string          `json:"invoice_number"`
	CustomerID      uuid.UUID       `json:"customer_id"`
	PaymentID       uuid.UUID       `json:"payment_id"`
	Amount          decimal.Decimal `json:"amount"`
	Method          PaymentChannel  `json:"method"`
	DaysLate        int             `json:"days_late"`
	RecordedBy      uuid.UUID       `json:"recorded_by"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	InvoiceStatus   InvoiceStatus   `json:"invoice_status"`
}

// NewPaymentRecordedEvent creates a new PaymentRecordedEvent
func NewPaymentRecordedEvent(inv *Invoice, payment PaymentRecord, daysLate int) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentRecorded, AggregateTypeInvoice, inv.ID, inv.TenantID, payment.Date),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		CustomerID:      inv.CustomerID,
		PaymentID:       payment.ID,
		Amount:          payment.Amount,
		Method:          payment.Method,
		DaysLate:        daysLate,
		RecordedBy:      payment.RecordedBy,
		RemainingAmount: inv.RemainingAmount,
		InvoiceStatus:   inv.Status,
	}
}

// InvoicePaidEvent is raised when the invoice is fully settled
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaidAt      time.Time       `json:"paid_at"`
}

// NewInvoicePaidEvent creates a new InvoicePaidEvent
func NewInvoicePaidEvent(inv *Invoice, at time.Time) *InvoicePaidEvent {
	return &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePaid, AggregateTypeInvoice, inv.ID, inv.TenantID, at),
		InvoiceID:       inv.ID,
		CustomerID:      inv.CustomerID,
		TotalAmount:     inv.TotalAmount,
		PaidAt:          at,
	}
}

// InvoiceCancelledEvent is raised when an unpaid invoice is cancelled.
// RemainingAmount is what the customer no longer owes.
type InvoiceCancelledEvent struct {
	shared.BaseDomainEvent
	InvoiceID       uuid.UUID       `json:"invoice_id"`
	CustomerID      uuid.UUID       `json:"customer_id"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Items           InvoiceItems    `json:"items"`
	Reason          string          `json:"reason"`
}

// NewInvoiceCancelledEvent creates a new InvoiceCancelledEvent
func NewInvoiceCancelledEvent(inv *Invoice, remaining decimal.Decimal, at time.Time) *InvoiceCancelledEvent {
	return &InvoiceCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCancelled, AggregateTypeInvoice, inv.ID, inv.TenantID, at),
		InvoiceID:       inv.ID,
		CustomerID:      inv.CustomerID,
		PaymentMethod:   inv.PaymentMethod,
		PaidAmount:      inv.PaidAmount,
		RemainingAmount: remaining,
		Items:           inv.Items,
		Reason:          inv.CancelReason,
	}
}

// InstallmentOverdueEvent is raised when an installment passes its due date unpaid
type InstallmentOverdueEvent struct {
	shared.BaseDomainEvent
	InvoiceID         uuid.UUID       `json:"invoice_id"`
	InvoiceNumber     string          `json:"invoice_number"`
	CustomerID        uuid.UUID       `json:"customer_id"`
	InstallmentNumber int             `json:"installment_number"`
	DueDate           time.Time       `json:"due_date"`
	Outstanding       decimal.Decimal `json:"outstanding"`
}

// NewInstallmentOverdueEvent creates a new InstallmentOverdueEvent
func NewInstallmentOverdueEvent(inv *Invoice, inst Installment, at time.Time) *InstallmentOverdueEvent {
	return &InstallmentOverdueEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeInstallmentOverdue, AggregateTypeInvoice, inv.ID, inv.TenantID, at),
		InvoiceID:         inv.ID,
		InvoiceNumber:     inv.InvoiceNumber,
		CustomerID:        inv.CustomerID,
		InstallmentNumber: inst.Number,
		DueDate:           inst.DueDate,
		Outstanding:       inst.Outstanding(),
	}
}
