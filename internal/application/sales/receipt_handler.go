package sales

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/sales"
	"github.com/retail/ledger/internal/domain/shared"
	"go.uber.org/zap"
)

// Receipt is the archived document of a closed invoice
type Receipt struct {
	EventID    uuid.UUID       `json:"event_id"`
	EventType  string          `json:"event_type"`
	ArchivedAt time.Time       `json:"archived_at"`
	Invoice    InvoiceResponse `json:"invoice"`
}

// ReceiptArchiveHandler writes a receipt to the archive when an invoice is paid or cancelled.
// Unlike notifications, archive failures are returned so the event is retried.
type ReceiptArchiveHandler struct {
	invoices sales.InvoiceRepository
	archive  ReceiptArchive
	prefix   string
	logger   *zap.Logger
}

// NewReceiptArchiveHandler creates a new ReceiptArchiveHandler.
// Receipts are stored under prefix/{tenant}/{invoice number}.json.
func NewReceiptArchiveHandler(invoices sales.InvoiceRepository, archive ReceiptArchive, prefix string, logger *zap.Logger) *ReceiptArchiveHandler {
	return &ReceiptArchiveHandler{
		invoices: invoices,
		archive:  archive,
		prefix:   prefix,
		logger:   logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *ReceiptArchiveHandler) EventTypes() []string {
	return []string{
		sales.EventTypeInvoicePaid,
		sales.EventTypeInvoiceCancelled,
	}
}

// Handle archives the invoice the event refers to
func (h *ReceiptArchiveHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	inv, err := h.invoices.FindByIDForTenant(ctx, event.TenantID(), event.AggregateID())
	if err != nil {
		return fmt.Errorf("load invoice for receipt: %w", err)
	}

	body, err := json.Marshal(Receipt{
		EventID:    event.EventID(),
		EventType:  event.EventType(),
		ArchivedAt: event.OccurredAt(),
		Invoice:    ToInvoiceResponse(inv),
	})
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}

	key := ReceiptKey(h.prefix, inv.TenantID, inv.InvoiceNumber)
	if err := h.archive.Put(ctx, key, body, "application/json"); err != nil {
		return fmt.Errorf("archive receipt %s: %w", key, err)
	}

	h.logger.Info("receipt archived",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("status", string(inv.Status)),
		zap.String("key", key),
	)
	return nil
}

// ReceiptKey is the archive key of an invoice receipt
func ReceiptKey(prefix string, tenantID uuid.UUID, invoiceNumber string) string {
	return path.Join(prefix, tenantID.String(), invoiceNumber+".json")
}
