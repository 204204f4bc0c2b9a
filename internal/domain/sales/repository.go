package sales

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/shared"
)

// InvoiceFilter narrows invoice listings
type InvoiceFilter struct {
	shared.Filter
	CustomerID *uuid.UUID
	Status     *InvoiceStatus
}

// InvoiceRepository persists invoices
type InvoiceRepository interface {
	// FindByIDForTenant loads an invoice, returning a NotFound error if it does not exist
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)

	// FindForTenant lists invoices matching the filter
	FindForTenant(ctx context.Context, tenantID uuid.UUID, filter InvoiceFilter) ([]Invoice, int64, error)

	// FindOpenWithInstallmentsDueBefore returns open installment invoices of any tenant
	// that have an unpaid installment due before the given instant
	FindOpenWithInstallmentsDueBefore(ctx context.Context, before time.Time, limit int) ([]Invoice, error)

	// ExistsByNumber checks if an invoice number is already taken in the tenant
	ExistsByNumber(ctx context.Context, tenantID uuid.UUID, number string) (bool, error)

	// Save inserts a new invoice
	Save(ctx context.Context, invoice *Invoice) error

	// SaveWithLock updates an invoice only if nobody else wrote it since it was read.
	// Returns a Conflict error otherwise.
	SaveWithLock(ctx context.Context, invoice *Invoice) error
}
