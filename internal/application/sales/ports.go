package sales

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductInfo is the catalog view of a product at the time of sale
type ProductInfo struct {
	ID    uuid.UUID
	Code  string
	Name  string
	Price decimal.Decimal
	Stock decimal.Decimal
}

// StockLine is a quantity of one product taken from or returned to stock
type StockLine struct {
	ProductID uuid.UUID
	Quantity  decimal.Decimal
}

// ProductCatalog is the product lookup and stock keeper invoices are priced against.
// DecrementStock is all-or-nothing: when any line lacks stock nothing is taken and
// an INSUFFICIENT_STOCK business rule error is returned.
type ProductCatalog interface {
	GetProducts(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ProductInfo, error)
	DecrementStock(ctx context.Context, tenantID uuid.UUID, lines []StockLine) error
	RestoreStock(ctx context.Context, tenantID uuid.UUID, lines []StockLine) error
}

// Notification kinds
const (
	NotificationPaymentReceived    = "PAYMENT_RECEIVED"
	NotificationInstallmentOverdue = "INSTALLMENT_OVERDUE"
	NotificationInvoicePaid        = "INVOICE_PAID"
)

// Notification is a customer-facing message produced by ledger activity
type Notification struct {
	ID            uuid.UUID         `json:"id"`
	Kind          string            `json:"kind"`
	TenantID      uuid.UUID         `json:"tenant_id"`
	CustomerID    uuid.UUID         `json:"customer_id"`
	InvoiceID     uuid.UUID         `json:"invoice_id"`
	InvoiceNumber string            `json:"invoice_number,omitempty"`
	Amount        decimal.Decimal   `json:"amount"`
	Message       string            `json:"message"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// NotificationDispatcher delivers notifications. Delivery is fire-and-forget:
// callers log a failure and carry on.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
	Close() error
}

// ReceiptArchive stores the final copy of settled and cancelled invoices.
// Put overwrites an existing object with the same key.
type ReceiptArchive interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}
