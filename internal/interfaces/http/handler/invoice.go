package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	salesapp "github.com/retail/ledger/internal/application/sales"
	"github.com/retail/ledger/internal/interfaces/http/middleware"
)

// InvoiceService is the part of the invoice application service the handler uses
type InvoiceService interface {
	Create(ctx context.Context, tenantID, actorID uuid.UUID, req salesapp.CreateInvoiceRequest) (*salesapp.InvoiceResponse, error)
	GetByID(ctx context.Context, tenantID, invoiceID uuid.UUID) (*salesapp.InvoiceResponse, error)
	List(ctx context.Context, tenantID uuid.UUID, filter salesapp.InvoiceListFilter) ([]salesapp.InvoiceListResponse, int64, error)
	RecordPayment(ctx context.Context, tenantID, invoiceID, actorID uuid.UUID, req salesapp.RecordPaymentRequest) (*salesapp.PaymentResultResponse, error)
	PayAllRemaining(ctx context.Context, tenantID, invoiceID, actorID uuid.UUID) (*salesapp.PaymentResultResponse, error)
	Cancel(ctx context.Context, tenantID, invoiceID, actorID uuid.UUID, req salesapp.CancelInvoiceRequest) (*salesapp.InvoiceResponse, error)
}

// InvoiceHandler handles invoice and payment endpoints
type InvoiceHandler struct {
	BaseHandler
	invoiceService InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoiceService InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

// RegisterRoutes mounts the invoice routes on rg
func (h *InvoiceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	invoices := rg.Group("/invoices")
	invoices.POST("", h.Create)
	invoices.GET("", h.List)
	invoices.GET("/:id", h.GetByID)
	invoices.POST("/:id/payments", h.RecordPayment)
	invoices.POST("/:id/pay-all", h.PayAll)
	invoices.POST("/:id/cancel", h.Cancel)
}

// Create issues a new invoice. Credit sales pass the sales authorization gate first.
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req salesapp.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(c, err)
		return
	}

	invoice, err := h.invoiceService.Create(c.Request.Context(), middleware.GetTenantID(c), middleware.GetActorID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, invoice)
}

// GetByID returns one invoice with its schedule and payments
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	invoice, err := h.invoiceService.GetByID(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// List returns a page of invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	var filter salesapp.InvoiceListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		middleware.HandleBindError(c, err)
		return
	}

	invoices, total, err := h.invoiceService.List(c.Request.Context(), middleware.GetTenantID(c), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, pageSize := pageOrDefault(filter.Page, filter.PageSize)
	h.SuccessWithMeta(c, invoices, total, page, pageSize)
}

// RecordPayment records a payment and allocates it oldest installment first
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req salesapp.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(c, err)
		return
	}

	result, err := h.invoiceService.RecordPayment(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetActorID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// PayAll settles whatever is still owed on the invoice
func (h *InvoiceHandler) PayAll(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.invoiceService.PayAllRemaining(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetActorID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Cancel cancels an invoice and returns its stock
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req salesapp.CancelInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(c, err)
		return
	}

	invoice, err := h.invoiceService.Cancel(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetActorID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}
