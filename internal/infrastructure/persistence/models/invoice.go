package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/sales"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
// Items, installments and the payment log live in JSONB columns of the same row so
// one version-checked UPDATE writes the whole ledger.
type InvoiceModel struct {
	TenantAggregateModel
	InvoiceNumber     string                   `gorm:"type:varchar(50);not null;index"`
	CustomerID        uuid.UUID                `gorm:"type:uuid;not null;index"`
	Items             sales.InvoiceItems       `gorm:"type:jsonb;not null"`
	Subtotal          decimal.Decimal          `gorm:"type:decimal(18,4);not null;default:0"`
	Discount          decimal.Decimal          `gorm:"type:decimal(18,4);not null;default:0"`
	TotalAmount       decimal.Decimal          `gorm:"type:decimal(18,4);not null;default:0"`
	PaidAmount        decimal.Decimal          `gorm:"type:decimal(18,4);not null;default:0"`
	RemainingAmount   decimal.Decimal          `gorm:"type:decimal(18,4);not null;default:0"`
	UnallocatedAmount decimal.Decimal          `gorm:"type:decimal(18,4);not null;default:0"`
	PaymentMethod     sales.PaymentMethod      `gorm:"type:varchar(20);not null"`
	InstallmentConfig *sales.InstallmentConfig `gorm:"type:jsonb"`
	Installments      sales.Installments       `gorm:"type:jsonb;not null"`
	Payments          sales.PaymentRecords     `gorm:"type:jsonb;not null"`
	Status            sales.InvoiceStatus      `gorm:"type:varchar(20);not null;index"`
	OverdueCheckAt    *time.Time               `gorm:"index"`
	PaidAt            *time.Time
	CancelledAt       *time.Time
	CancelReason      string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice.
func (m *InvoiceModel) ToDomain() *sales.Invoice {
	inv := &sales.Invoice{
		TenantAggregateRoot: m.ToTenantAggregateRoot(),
		InvoiceNumber:       m.InvoiceNumber,
		CustomerID:          m.CustomerID,
		Items:               m.Items,
		Subtotal:            m.Subtotal,
		Discount:            m.Discount,
		TotalAmount:         m.TotalAmount,
		PaidAmount:          m.PaidAmount,
		RemainingAmount:     m.RemainingAmount,
		UnallocatedAmount:   m.UnallocatedAmount,
		PaymentMethod:       m.PaymentMethod,
		InstallmentConfig:   m.InstallmentConfig,
		Installments:        m.Installments,
		Payments:            m.Payments,
		Status:              m.Status,
		PaidAt:              m.PaidAt,
		CancelledAt:         m.CancelledAt,
		CancelReason:        m.CancelReason,
	}
	if inv.Items == nil {
		inv.Items = sales.InvoiceItems{}
	}
	if inv.Installments == nil {
		inv.Installments = sales.Installments{}
	}
	if inv.Payments == nil {
		inv.Payments = sales.PaymentRecords{}
	}
	return inv
}

// FromDomain populates the persistence model from a domain Invoice.
func (m *InvoiceModel) FromDomain(inv *sales.Invoice) {
	m.FromDomainTenantAggregateRoot(inv.TenantAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.CustomerID = inv.CustomerID
	m.Items = inv.Items
	m.Subtotal = inv.Subtotal
	m.Discount = inv.Discount
	m.TotalAmount = inv.TotalAmount
	m.PaidAmount = inv.PaidAmount
	m.RemainingAmount = inv.RemainingAmount
	m.UnallocatedAmount = inv.UnallocatedAmount
	m.PaymentMethod = inv.PaymentMethod
	m.InstallmentConfig = inv.InstallmentConfig
	m.Installments = inv.Installments
	m.Payments = inv.Payments
	m.Status = inv.Status
	m.OverdueCheckAt = inv.OverdueCheckDate()
	m.PaidAt = inv.PaidAt
	m.CancelledAt = inv.CancelledAt
	m.CancelReason = inv.CancelReason
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *sales.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}
