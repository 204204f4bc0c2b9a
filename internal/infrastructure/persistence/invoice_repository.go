package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/sales"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/retail/ledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

var (
	errInvoiceNotFound = shared.NewNotFoundError("INVOICE_NOT_FOUND", "Invoice not found")
	errInvoiceConflict = shared.NewConflictError("INVOICE_CONCURRENT_MODIFICATION", "The invoice has been modified by another request")
)

var openInvoiceStatuses = []sales.InvoiceStatus{
	sales.InvoiceStatusPending,
	sales.InvoiceStatusPartiallyPaid,
	sales.InvoiceStatusOverdue,
}

// GormInvoiceRepository implements sales.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// SetOutboxEventSaver makes Save and SaveWithLock write the invoice's pending
// domain events to the outbox in the same transaction as the invoice row
func (r *GormInvoiceRepository) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	r.outboxSaver = saver
}

// withOutbox runs write on its own when no outbox is configured, otherwise in a
// transaction that also stores the invoice's events
func (r *GormInvoiceRepository) withOutbox(ctx context.Context, invoice *sales.Invoice, write func(db *gorm.DB) error) error {
	if r.outboxSaver == nil {
		return write(r.db.WithContext(ctx))
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := write(tx); err != nil {
			return err
		}
		events := invoice.GetDomainEvents()
		if len(events) == 0 {
			return nil
		}
		return r.outboxSaver.SaveEvents(ctx, tx, events...)
	})
}

// FindByIDForTenant finds an invoice by ID within a tenant
func (r *GormInvoiceRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*sales.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInvoiceNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindForTenant lists invoices of a tenant, newest first unless the filter says otherwise
func (r *GormInvoiceRepository) FindForTenant(ctx context.Context, tenantID uuid.UUID, filter sales.InvoiceFilter) ([]sales.Invoice, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).Scopes(tenantScope(tenantID))
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.InvoiceModel
	if err := query.Scopes(pageScope(filter.Filter, InvoiceSortFields, "created_at")).Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	invoices := make([]sales.Invoice, len(rows))
	for i := range rows {
		invoices[i] = *rows[i].ToDomain()
	}
	return invoices, total, nil
}

// FindOpenWithInstallmentsDueBefore returns open invoices of every tenant whose
// earliest watchable installment is due before the cutoff, oldest first
func (r *GormInvoiceRepository) FindOpenWithInstallmentsDueBefore(ctx context.Context, before time.Time, limit int) ([]sales.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND overdue_check_at IS NOT NULL AND overdue_check_at < ?", openInvoiceStatuses, before).
		Order("overdue_check_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	invoices := make([]sales.Invoice, len(rows))
	for i := range rows {
		invoices[i] = *rows[i].ToDomain()
	}
	return invoices, nil
}

// ExistsByNumber checks if an invoice number is already taken in the tenant
func (r *GormInvoiceRepository) ExistsByNumber(ctx context.Context, tenantID uuid.UUID, number string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Scopes(tenantScope(tenantID)).
		Where("invoice_number = ?", number).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save inserts a new invoice
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *sales.Invoice) error {
	err := r.withOutbox(ctx, invoice, func(db *gorm.DB) error {
		return db.Create(models.InvoiceModelFromDomain(invoice)).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("INVOICE_NUMBER_TAKEN",
				fmt.Sprintf("Invoice number %s already exists", invoice.InvoiceNumber))
		}
		return err
	}
	return nil
}

// SaveWithLock writes a mutated invoice only if the stored row is still at the
// version the invoice was loaded with. Domain mutations bump Version once, so the
// expected stored version is Version-1.
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, invoice *sales.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	expected := invoice.Version - 1

	return r.withOutbox(ctx, invoice, func(db *gorm.DB) error {
		result := db.Model(&models.InvoiceModel{}).
			Where("id = ? AND tenant_id = ? AND version = ?", invoice.ID, invoice.TenantID, expected).
			Updates(map[string]any{
				"subtotal":           model.Subtotal,
				"discount":           model.Discount,
				"total_amount":       model.TotalAmount,
				"paid_amount":        model.PaidAmount,
				"remaining_amount":   model.RemainingAmount,
				"unallocated_amount": model.UnallocatedAmount,
				"installments":       model.Installments,
				"payments":           model.Payments,
				"status":             model.Status,
				"overdue_check_at":   model.OverdueCheckAt,
				"paid_at":            model.PaidAt,
				"cancelled_at":       model.CancelledAt,
				"cancel_reason":      model.CancelReason,
				"version":            model.Version,
				"updated_at":         model.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 1 {
			return nil
		}

		var count int64
		if err := db.Model(&models.InvoiceModel{}).
			Scopes(tenantScope(invoice.TenantID)).
			Where("id = ?", invoice.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errInvoiceNotFound
		}
		return errInvoiceConflict
	})
}
