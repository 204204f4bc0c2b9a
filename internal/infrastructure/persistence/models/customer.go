package models

import (
	"time"

	"github.com/retail/ledger/internal/domain/partner"
	"github.com/shopspring/decimal"
)

// CustomerModel is the persistence model for the Customer aggregate root.
// Financials, payment behavior and the credit assessment are flattened into
// columns so reports can filter on them.
type CustomerModel struct {
	TenantAggregateModel
	Code               string               `gorm:"type:varchar(50);not null;index"`
	Name               string               `gorm:"type:varchar(200);not null"`
	Phone              string               `gorm:"type:varchar(50)"`
	Email              string               `gorm:"type:varchar(200)"`
	Tier               partner.CustomerTier `gorm:"type:varchar(20);not null;default:'normal'"`
	TotalPurchases     decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	TotalPaid          decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	OutstandingBalance decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	CreditLimit        decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	InvoiceCount       int                  `gorm:"not null;default:0"`
	OnTimePayments     int                  `gorm:"not null;default:0"`
	LatePayments       int                  `gorm:"not null;default:0"`
	TotalPayments      int                  `gorm:"not null;default:0"`
	AvgDaysLate        int                  `gorm:"not null;default:0"`
	CurrentStreak      int                  `gorm:"not null;default:0"`
	LongestStreak      int                  `gorm:"not null;default:0"`
	CreditScore        int                  `gorm:"not null"`
	RiskLevel          partner.RiskLevel    `gorm:"type:varchar(20);not null;default:'low';index"`
	MaxInstallments    int                  `gorm:"not null"`
	AllowDeferred      bool                 `gorm:"not null"`
	AllowInstallments  bool                 `gorm:"not null"`
	LastAssessment     *time.Time
	SalesBlocked       bool   `gorm:"not null;default:false"`
	SalesBlockedReason string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the persistence model to a domain Customer.
func (m *CustomerModel) ToDomain() *partner.Customer {
	return &partner.Customer{
		TenantAggregateRoot: m.ToTenantAggregateRoot(),
		Code:                m.Code,
		Name:                m.Name,
		Phone:               m.Phone,
		Email:               m.Email,
		Tier:                m.Tier,
		Financials: partner.Financials{
			TotalPurchases:     m.TotalPurchases,
			TotalPaid:          m.TotalPaid,
			OutstandingBalance: m.OutstandingBalance,
			CreditLimit:        m.CreditLimit,
			InvoiceCount:       m.InvoiceCount,
		},
		PaymentBehavior: partner.PaymentBehavior{
			OnTimePayments: m.OnTimePayments,
			LatePayments:   m.LatePayments,
			TotalPayments:  m.TotalPayments,
			AvgDaysLate:    m.AvgDaysLate,
			CurrentStreak:  m.CurrentStreak,
			LongestStreak:  m.LongestStreak,
		},
		CreditEngine: partner.CreditEngine{
			Score:             m.CreditScore,
			RiskLevel:         m.RiskLevel,
			MaxInstallments:   m.MaxInstallments,
			AllowDeferred:     m.AllowDeferred,
			AllowInstallments: m.AllowInstallments,
			LastAssessment:    m.LastAssessment,
		},
		SalesBlocked:       m.SalesBlocked,
		SalesBlockedReason: m.SalesBlockedReason,
	}
}

// FromDomain populates the persistence model from a domain Customer.
func (m *CustomerModel) FromDomain(c *partner.Customer) {
	m.FromDomainTenantAggregateRoot(c.TenantAggregateRoot)
	m.Code = c.Code
	m.Name = c.Name
	m.Phone = c.Phone
	m.Email = c.Email
	m.Tier = c.Tier
	m.TotalPurchases = c.Financials.TotalPurchases
	m.TotalPaid = c.Financials.TotalPaid
	m.OutstandingBalance = c.Financials.OutstandingBalance
	m.CreditLimit = c.Financials.CreditLimit
	m.InvoiceCount = c.Financials.InvoiceCount
	m.OnTimePayments = c.PaymentBehavior.OnTimePayments
	m.LatePayments = c.PaymentBehavior.LatePayments
	m.TotalPayments = c.PaymentBehavior.TotalPayments
	m.AvgDaysLate = c.PaymentBehavior.AvgDaysLate
	m.CurrentStreak = c.PaymentBehavior.CurrentStreak
	m.LongestStreak = c.PaymentBehavior.LongestStreak
	m.CreditScore = c.CreditEngine.Score
	m.RiskLevel = c.CreditEngine.RiskLevel
	m.MaxInstallments = c.CreditEngine.MaxInstallments
	m.AllowDeferred = c.CreditEngine.AllowDeferred
	m.AllowInstallments = c.CreditEngine.AllowInstallments
	m.LastAssessment = c.CreditEngine.LastAssessment
	m.SalesBlocked = c.SalesBlocked
	m.SalesBlockedReason = c.SalesBlockedReason
}

// CustomerModelFromDomain creates a new persistence model from a domain Customer.
func CustomerModelFromDomain(c *partner.Customer) *CustomerModel {
	m := &CustomerModel{}
	m.FromDomain(c)
	return m
}
