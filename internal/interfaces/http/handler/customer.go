package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	partnerapp "github.com/retail/ledger/internal/application/partner"
	"github.com/retail/ledger/internal/interfaces/http/middleware"
)

// CustomerService is the part of the customer application service the handler uses
type CustomerService interface {
	Create(ctx context.Context, tenantID uuid.UUID, req partnerapp.CreateCustomerRequest) (*partnerapp.CustomerResponse, error)
	GetByID(ctx context.Context, tenantID, customerID uuid.UUID) (*partnerapp.CustomerResponse, error)
	GetCreditProfile(ctx context.Context, tenantID, customerID uuid.UUID) (*partnerapp.CreditProfileResponse, error)
	SetSalesBlock(ctx context.Context, tenantID, customerID uuid.UUID, req partnerapp.SetSalesBlockRequest) (*partnerapp.CustomerResponse, error)
	SetCreditLimit(ctx context.Context, tenantID, customerID uuid.UUID, req partnerapp.SetCreditLimitRequest) (*partnerapp.CustomerResponse, error)
	List(ctx context.Context, tenantID uuid.UUID, filter partnerapp.CustomerListFilter) ([]partnerapp.CustomerListResponse, int64, error)
}

// CustomerHandler handles customer and credit endpoints
type CustomerHandler struct {
	BaseHandler
	customerService CustomerService
}

// NewCustomerHandler creates a new CustomerHandler
func NewCustomerHandler(customerService CustomerService) *CustomerHandler {
	return &CustomerHandler{customerService: customerService}
}

// RegisterRoutes mounts the customer routes on rg
func (h *CustomerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	customers := rg.Group("/customers")
	customers.POST("", h.Create)
	customers.GET("", h.List)
	customers.GET("/:id", h.GetByID)
	customers.GET("/:id/credit-profile", h.GetCreditProfile)
	customers.PUT("/:id/sales-block", h.SetSalesBlock)
	customers.PUT("/:id/credit-limit", h.SetCreditLimit)
}

// Create creates a new customer
func (h *CustomerHandler) Create(c *gin.Context) {
	var req partnerapp.CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(c, err)
		return
	}

	customer, err := h.customerService.Create(c.Request.Context(), middleware.GetTenantID(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, customer)
}

// GetByID returns one customer
func (h *CustomerHandler) GetByID(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	customer, err := h.customerService.GetByID(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, customer)
}

// List returns a page of customers
func (h *CustomerHandler) List(c *gin.Context) {
	var filter partnerapp.CustomerListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		middleware.HandleBindError(c, err)
		return
	}

	customers, total, err := h.customerService.List(c.Request.Context(), middleware.GetTenantID(c), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, pageSize := pageOrDefault(filter.Page, filter.PageSize)
	h.SuccessWithMeta(c, customers, total, page, pageSize)
}

// GetCreditProfile returns the customer's credit standing
func (h *CustomerHandler) GetCreditProfile(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	profile, err := h.customerService.GetCreditProfile(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, profile)
}

// SetSalesBlock blocks or unblocks credit sales to the customer
func (h *CustomerHandler) SetSalesBlock(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req partnerapp.SetSalesBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(c, err)
		return
	}

	customer, err := h.customerService.SetSalesBlock(c.Request.Context(), middleware.GetTenantID(c), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, customer)
}

// SetCreditLimit sets the hard credit ceiling
func (h *CustomerHandler) SetCreditLimit(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req partnerapp.SetCreditLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(c, err)
		return
	}

	customer, err := h.customerService.SetCreditLimit(c.Request.Context(), middleware.GetTenantID(c), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, customer)
}
