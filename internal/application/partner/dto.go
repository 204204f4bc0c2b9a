package partner

import (
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/partner"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// CreateCustomerRequest represents a request to create a new customer
type CreateCustomerRequest struct {
	Code        string           `json:"code" binding:"required,min=1,max=50"`
	Name        string           `json:"name" binding:"required,min=1,max=200"`
	Phone       string           `json:"phone" binding:"max=50"`
	Email       string           `json:"email" binding:"omitempty,email,max=200"`
	Tier        string           `json:"tier" binding:"omitempty,oneof=normal silver gold platinum vip"`
	CreditLimit *decimal.Decimal `json:"credit_limit"`
}

// SetSalesBlockRequest blocks or unblocks credit sales for a customer
type SetSalesBlockRequest struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason" binding:"max=500"`
}

// SetCreditLimitRequest sets the hard credit ceiling. Zero removes it.
type SetCreditLimitRequest struct {
	CreditLimit decimal.Decimal `json:"credit_limit"`
}

// CustomerListFilter represents filter options for the customer list
type CustomerListFilter struct {
	RiskLevel    string `form:"risk_level" binding:"omitempty,oneof=low medium high blocked"`
	SalesBlocked *bool  `form:"sales_blocked"`
	Page         int    `form:"page" binding:"omitempty,min=1"`
	PageSize     int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy      string `form:"order_by"`
	OrderDir     string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// FinancialsResponse is the customer's running purchase and payment totals
type FinancialsResponse struct {
	TotalPurchases     decimal.Decimal `json:"total_purchases"`
	TotalPaid          decimal.Decimal `json:"total_paid"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	InvoiceCount       int             `json:"invoice_count"`
}

// PaymentBehaviorResponse is the payment history the score is computed from
type PaymentBehaviorResponse struct {
	OnTimePayments int             `json:"on_time_payments"`
	LatePayments   int             `json:"late_payments"`
	TotalPayments  int             `json:"total_payments"`
	AvgDaysLate    int             `json:"avg_days_late"`
	CurrentStreak  int             `json:"current_streak"`
	LongestStreak  int             `json:"longest_streak"`
	LateRatio      decimal.Decimal `json:"late_ratio"`
}

// CustomerResponse represents a customer in API responses
type CustomerResponse struct {
	ID                 uuid.UUID          `json:"id"`
	TenantID           uuid.UUID          `json:"tenant_id"`
	Code               string             `json:"code"`
	Name               string             `json:"name"`
	Phone              string             `json:"phone,omitempty"`
	Email              string             `json:"email,omitempty"`
	Tier               string             `json:"tier"`
	CreditScore        int                `json:"credit_score"`
	RiskLevel          string             `json:"risk_level"`
	SalesBlocked       bool               `json:"sales_blocked"`
	SalesBlockedReason string             `json:"sales_blocked_reason,omitempty"`
	Financials         FinancialsResponse `json:"financials"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	Version            int                `json:"version"`
}

// CreditProfileResponse is the credit standing a clerk sees before a credit sale
type CreditProfileResponse struct {
	CustomerID        uuid.UUID               `json:"customer_id"`
	Score             int                     `json:"score"`
	RiskLevel         string                  `json:"risk_level"`
	MaxInstallments   int                     `json:"max_installments"`
	AllowDeferred     bool                    `json:"allow_deferred"`
	AllowInstallments bool                    `json:"allow_installments"`
	RecommendedLimit  decimal.Decimal         `json:"recommended_limit"`
	AvailableCredit   decimal.Decimal         `json:"available_credit"`
	CanSellOnCredit   bool                    `json:"can_sell_on_credit"`
	SalesBlocked      bool                    `json:"sales_blocked"`
	LastAssessment    *time.Time              `json:"last_assessment,omitempty"`
	PaymentBehavior   PaymentBehaviorResponse `json:"payment_behavior"`
	Financials        FinancialsResponse      `json:"financials"`
}

// CustomerListResponse represents a customer in list responses
type CustomerListResponse struct {
	ID                 uuid.UUID       `json:"id"`
	Code               string          `json:"code"`
	Name               string          `json:"name"`
	Tier               string          `json:"tier"`
	CreditScore        int             `json:"credit_score"`
	RiskLevel          string          `json:"risk_level"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	CanBuyOnCredit     bool            `json:"can_buy_on_credit"`
	CreatedAt          time.Time       `json:"created_at"`
}

func toFinancialsResponse(f partner.Financials) FinancialsResponse {
	return FinancialsResponse{
		TotalPurchases:     f.TotalPurchases,
		TotalPaid:          f.TotalPaid,
		OutstandingBalance: f.OutstandingBalance,
		CreditLimit:        f.CreditLimit,
		InvoiceCount:       f.InvoiceCount,
	}
}

// ToCustomerResponse converts a domain Customer to CustomerResponse
func ToCustomerResponse(c *partner.Customer) CustomerResponse {
	return CustomerResponse{
		ID:                 c.ID,
		TenantID:           c.TenantID,
		Code:               c.Code,
		Name:               c.Name,
		Phone:              c.Phone,
		Email:              c.Email,
		Tier:               string(c.Tier),
		CreditScore:        c.CreditEngine.Score,
		RiskLevel:          string(c.CreditEngine.RiskLevel),
		SalesBlocked:       c.SalesBlocked,
		SalesBlockedReason: c.SalesBlockedReason,
		Financials:         toFinancialsResponse(c.Financials),
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
		Version:            c.Version,
	}
}

// ToCustomerListResponses converts customers to list responses
func ToCustomerListResponses(customers []partner.Customer) []CustomerListResponse {
	return lo.Map(customers, func(c partner.Customer, _ int) CustomerListResponse {
		return CustomerListResponse{
			ID:                 c.ID,
			Code:               c.Code,
			Name:               c.Name,
			Tier:               string(c.Tier),
			CreditScore:        c.CreditEngine.Score,
			RiskLevel:          string(c.CreditEngine.RiskLevel),
			OutstandingBalance: c.Financials.OutstandingBalance,
			CanBuyOnCredit:     c.CanBuyOnCredit(),
			CreatedAt:          c.CreatedAt,
		}
	})
}

// ToCreditProfileResponse combines the stored assessment with the gate's live view
func ToCreditProfileResponse(c *partner.Customer, gate *partner.SalesAuthorizationGate) CreditProfileResponse {
	limit := gate.RecommendedLimit(c)
	b := c.PaymentBehavior
	return CreditProfileResponse{
		CustomerID:        c.ID,
		Score:             c.CreditEngine.Score,
		RiskLevel:         string(c.CreditEngine.RiskLevel),
		MaxInstallments:   c.CreditEngine.MaxInstallments,
		AllowDeferred:     c.CreditEngine.AllowDeferred,
		AllowInstallments: c.CreditEngine.AllowInstallments,
		RecommendedLimit:  limit,
		AvailableCredit:   decimal.Max(decimal.Zero, limit.Sub(c.Financials.OutstandingBalance)),
		CanSellOnCredit:   gate.CanSellOnCredit(c),
		SalesBlocked:      c.SalesBlocked,
		LastAssessment:    c.CreditEngine.LastAssessment,
		PaymentBehavior: PaymentBehaviorResponse{
			OnTimePayments: b.OnTimePayments,
			LatePayments:   b.LatePayments,
			TotalPayments:  b.TotalPayments,
			AvgDaysLate:    b.AvgDaysLate,
			CurrentStreak:  b.CurrentStreak,
			LongestStreak:  b.LongestStreak,
			LateRatio:      b.LateRatio().Round(4),
		},
		Financials: toFinancialsResponse(c.Financials),
	}
}
