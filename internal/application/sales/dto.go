package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/sales"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ==================== Invoice DTOs ====================

// CreateInvoiceRequest represents a request to invoice a sale
type CreateInvoiceRequest struct {
	CustomerID    uuid.UUID                 `json:"customer_id" binding:"required"`
	InvoiceNumber string                    `json:"invoice_number" binding:"omitempty,max=50"`
	Items         []CreateInvoiceItemInput  `json:"items" binding:"required,min=1,dive"`
	Discount      *decimal.Decimal          `json:"discount"`
	PaymentMethod string                    `json:"payment_method" binding:"required,oneof=CASH DEFERRED INSTALLMENT"`
	Installment   *InstallmentConfigRequest `json:"installment"`
}

// CreateInvoiceItemInput is one line of the sale. The unit price comes from the catalog.
type CreateInvoiceItemInput struct {
	ProductID uuid.UUID       `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// InstallmentConfigRequest carries the financing terms of an installment sale
type InstallmentConfigRequest struct {
	NumberOfInstallments int             `json:"number_of_installments" binding:"required,min=1,max=60"`
	Frequency            string          `json:"frequency" binding:"required,oneof=WEEKLY BIWEEKLY MONTHLY QUARTERLY"`
	DownPayment          decimal.Decimal `json:"down_payment"`
	StartDate            *time.Time      `json:"start_date"`
}

// RecordPaymentRequest represents a payment received on an invoice
type RecordPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" binding:"omitempty,oneof=CASH BANK_TRANSFER CARD MOBILE_MONEY CHEQUE"`
	Reference string          `json:"reference" binding:"max=100"`
}

// CancelInvoiceRequest represents a request to cancel an unpaid invoice
type CancelInvoiceRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

// InvoiceListFilter represents filter options for the invoice list
type InvoiceListFilter struct {
	CustomerID *uuid.UUID `form:"customer_id"`
	Status     string     `form:"status" binding:"omitempty,oneof=PENDING PARTIALLY_PAID PAID OVERDUE CANCELLED"`
	Page       int        `form:"page" binding:"min=0"`
	PageSize   int        `form:"page_size" binding:"min=0,max=100"`
	OrderBy    string     `form:"order_by"`
	OrderDir   string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// InvoiceItemResponse represents an invoice line in API responses
type InvoiceItemResponse struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// InstallmentResponse represents a scheduled installment in API responses
type InstallmentResponse struct {
	Number      int             `json:"number"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     time.Time       `json:"due_date"`
	Status      string          `json:"status"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	Outstanding decimal.Decimal `json:"outstanding"`
	PaidDate    *time.Time      `json:"paid_date,omitempty"`
}

// PaymentRecordResponse represents a logged payment in API responses
type PaymentRecordResponse struct {
	ID         uuid.UUID       `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Date       time.Time       `json:"date"`
	Method     string          `json:"method"`
	Reference  string          `json:"reference,omitempty"`
	RecordedBy uuid.UUID       `json:"recorded_by"`
}

// InstallmentConfigResponse echoes the financing terms
type InstallmentConfigResponse struct {
	NumberOfInstallments int             `json:"number_of_installments"`
	Frequency            string          `json:"frequency"`
	DownPayment          decimal.Decimal `json:"down_payment"`
	StartDate            time.Time       `json:"start_date"`
}

// InvoiceResponse represents an invoice with its full ledger
type InvoiceResponse struct {
	ID                uuid.UUID                  `json:"id"`
	TenantID          uuid.UUID                  `json:"tenant_id"`
	InvoiceNumber     string                     `json:"invoice_number"`
	CustomerID        uuid.UUID                  `json:"customer_id"`
	Items             []InvoiceItemResponse      `json:"items"`
	Subtotal          decimal.Decimal            `json:"subtotal"`
	Discount          decimal.Decimal            `json:"discount"`
	TotalAmount       decimal.Decimal            `json:"total_amount"`
	PaidAmount        decimal.Decimal            `json:"paid_amount"`
	RemainingAmount   decimal.Decimal            `json:"remaining_amount"`
	UnallocatedAmount decimal.Decimal            `json:"unallocated_amount"`
	PaymentMethod     string                     `json:"payment_method"`
	InstallmentConfig *InstallmentConfigResponse `json:"installment_config,omitempty"`
	Installments      []InstallmentResponse      `json:"installments"`
	Payments          []PaymentRecordResponse    `json:"payments"`
	Status            string                     `json:"status"`
	PaidAt            *time.Time                 `json:"paid_at,omitempty"`
	CancelledAt       *time.Time                 `json:"cancelled_at,omitempty"`
	CancelReason      string                     `json:"cancel_reason,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
	Version           int                        `json:"version"`
}

// InvoiceListResponse represents an invoice in list views, without the ledger detail
type InvoiceListResponse struct {
	ID              uuid.UUID       `json:"id"`
	InvoiceNumber   string          `json:"invoice_number"`
	CustomerID      uuid.UUID       `json:"customer_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	PaymentMethod   string          `json:"payment_method"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

// AllocationResponse is the share of a payment applied to one installment
type AllocationResponse struct {
	InstallmentNumber int             `json:"installment_number"`
	Amount            decimal.Decimal `json:"amount"`
}

// PaymentResultResponse is returned after a payment was applied
type PaymentResultResponse struct {
	Payment     PaymentRecordResponse `json:"payment"`
	Allocations []AllocationResponse  `json:"allocations"`
	Unallocated decimal.Decimal       `json:"unallocated"`
	DaysLate    int                   `json:"days_late"`
	Invoice     InvoiceResponse       `json:"invoice"`
}

// OverdueSweepResult summarizes one run of MarkOverdueInvoices
type OverdueSweepResult struct {
	Scanned             int `json:"scanned"`
	InvoicesUpdated     int `json:"invoices_updated"`
	InstallmentsOverdue int `json:"installments_overdue"`
	Conflicts           int `json:"conflicts"`
	Failed              int `json:"failed"`
}

// ToInvoiceResponse converts a domain Invoice to InvoiceResponse
func ToInvoiceResponse(inv *sales.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:                inv.ID,
		TenantID:          inv.TenantID,
		InvoiceNumber:     inv.InvoiceNumber,
		CustomerID:        inv.CustomerID,
		Subtotal:          inv.Subtotal,
		Discount:          inv.Discount,
		TotalAmount:       inv.TotalAmount,
		PaidAmount:        inv.PaidAmount,
		RemainingAmount:   inv.RemainingAmount,
		UnallocatedAmount: inv.UnallocatedAmount,
		PaymentMethod:     string(inv.PaymentMethod),
		Status:            string(inv.Status),
		PaidAt:            inv.PaidAt,
		CancelledAt:       inv.CancelledAt,
		CancelReason:      inv.CancelReason,
		CreatedAt:         inv.CreatedAt,
		UpdatedAt:         inv.UpdatedAt,
		Version:           inv.Version,
	}

	resp.Items = lo.Map(inv.Items, func(item sales.InvoiceItem, _ int) InvoiceItemResponse {
		return InvoiceItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
		}
	})
	resp.Installments = lo.Map(inv.Installments, func(inst sales.Installment, _ int) InstallmentResponse {
		return InstallmentResponse{
			Number:      inst.Number,
			Amount:      inst.Amount,
			DueDate:     inst.DueDate,
			Status:      string(inst.Status),
			PaidAmount:  inst.PaidAmount,
			Outstanding: inst.Outstanding(),
			PaidDate:    inst.PaidDate,
		}
	})
	resp.Payments = lo.Map(inv.Payments, func(p sales.PaymentRecord, _ int) PaymentRecordResponse {
		return toPaymentRecordResponse(p)
	})

	if cfg := inv.InstallmentConfig; cfg != nil {
		resp.InstallmentConfig = &InstallmentConfigResponse{
			NumberOfInstallments: cfg.NumberOfInstallments,
			Frequency:            string(cfg.Frequency),
			DownPayment:          cfg.DownPayment,
			StartDate:            cfg.StartDate,
		}
	}

	return resp
}

// ToInvoiceListResponses converts invoices to list responses
func ToInvoiceListResponses(invoices []sales.Invoice) []InvoiceListResponse {
	return lo.Map(invoices, func(inv sales.Invoice, _ int) InvoiceListResponse {
		return InvoiceListResponse{
			ID:              inv.ID,
			InvoiceNumber:   inv.InvoiceNumber,
			CustomerID:      inv.CustomerID,
			TotalAmount:     inv.TotalAmount,
			PaidAmount:      inv.PaidAmount,
			RemainingAmount: inv.RemainingAmount,
			PaymentMethod:   string(inv.PaymentMethod),
			Status:          string(inv.Status),
			CreatedAt:       inv.CreatedAt,
		}
	})
}

// ToPaymentResultResponse combines the allocation outcome with the updated invoice
func ToPaymentResultResponse(inv *sales.Invoice, alloc *sales.PaymentAllocation) PaymentResultResponse {
	return PaymentResultResponse{
		Payment: toPaymentRecordResponse(alloc.Payment),
		Allocations: lo.Map(alloc.Allocations, func(a sales.InstallmentAllocation, _ int) AllocationResponse {
			return AllocationResponse{InstallmentNumber: a.InstallmentNumber, Amount: a.Amount}
		}),
		Unallocated: alloc.Unallocated,
		DaysLate:    alloc.DaysLate,
		Invoice:     ToInvoiceResponse(inv),
	}
}

func toPaymentRecordResponse(p sales.PaymentRecord) PaymentRecordResponse {
	return PaymentRecordResponse{
		ID:         p.ID,
		Amount:     p.Amount,
		Date:       p.Date,
		Method:     string(p.Method),
		Reference:  p.Reference,
		RecordedBy: p.RecordedBy,
	}
}
