package partner

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SaleMethod is the settlement the clerk asks for on a new sale
type SaleMethod string

const (
	SaleMethodCash        SaleMethod = "CASH"
	SaleMethodDeferred    SaleMethod = "DEFERRED"
	SaleMethodInstallment SaleMethod = "INSTALLMENT"
)

// SaleRequest is a prospective credit sale
type SaleRequest struct {
	Method                SaleMethod
	RequestedInstallments int
}

// AuthorizationDecision is the gate's answer for one sale request
type AuthorizationDecision struct {
	Allowed          bool            `json:"allowed"`
	Reason           string          `json:"reason,omitempty"`
	MaxInstallments  int             `json:"max_installments"`
	RecommendedLimit decimal.Decimal `json:"recommended_limit"`
	RiskLevel        RiskLevel       `json:"risk_level"`
	RiskNote         string          `json:"risk_note,omitempty"`
}

// Denial reasons
const (
	ReasonCreditLimitExceeded   = "credit limit exceeded"
	ReasonRiskBlocked           = "customer credit risk is blocked"
	ReasonDeferredNotAllowed    = "deferred payment not allowed for current risk level"
	ReasonInstallmentNotAllowed = "installment sales not allowed for current risk level"
	ReasonSalesBlockedFallback  = "sales blocked for this customer"
)

// SalesAuthorizationGate decides whether a customer may buy on credit
type SalesAuthorizationGate struct {
	// MinRecommendedLimit is the floor of the derived limit, so a customer without
	// purchase history can still open a first credit sale
	MinRecommendedLimit decimal.Decimal
}

// NewSalesAuthorizationGate creates a gate with the given limit floor
func NewSalesAuthorizationGate(minRecommendedLimit decimal.Decimal) *SalesAuthorizationGate {
	if minRecommendedLimit.IsNegative() {
		minRecommendedLimit = decimal.Zero
	}
	return &SalesAuthorizationGate{MinRecommendedLimit: minRecommendedLimit}
}

var half = decimal.NewFromFloat(0.5)

// RecommendedLimit derives how much outstanding credit the customer can carry:
//
//	averagePurchase * tierMultiplier * score/100 * (1 - 0.5*lateRatio)
//
// raised to MinRecommendedLimit and capped by an explicit CreditLimit when one is set.
func (g *SalesAuthorizationGate) RecommendedLimit(c *Customer) decimal.Decimal {
	limit := c.Financials.AveragePurchase().
		Mul(c.Tier.CreditMultiplier()).
		Mul(decimal.NewFromInt(int64(c.CreditEngine.Score))).
		Div(decimal.NewFromInt(100)).
		Mul(decimal.NewFromInt(1).Sub(half.Mul(c.PaymentBehavior.LateRatio())))

	limit = decimal.Max(limit, g.MinRecommendedLimit)
	if c.Financials.CreditLimit.IsPositive() {
		limit = decimal.Min(limit, c.Financials.CreditLimit)
	}
	return limit.Round(2)
}

// Authorize checks a prospective sale against the customer's credit profile.
// Cash sales are always allowed.
func (g *SalesAuthorizationGate) Authorize(c *Customer, req SaleRequest) AuthorizationDecision {
	engine := c.CreditEngine
	decision := AuthorizationDecision{
		MaxInstallments:  engine.MaxInstallments,
		RecommendedLimit: g.RecommendedLimit(c),
		RiskLevel:        engine.RiskLevel,
	}

	if req.Method == SaleMethodCash {
		decision.Allowed = true
		return decision
	}

	if c.SalesBlocked {
		decision.Reason = c.SalesBlockedReason
		if decision.Reason == "" {
			decision.Reason = ReasonSalesBlockedFallback
		}
		return decision
	}
	if c.Financials.OutstandingBalance.GreaterThan(decision.RecommendedLimit) {
		decision.Reason = ReasonCreditLimitExceeded
		return decision
	}
	if engine.RiskLevel == RiskLevelBlocked {
		decision.Reason = ReasonRiskBlocked
		return decision
	}
	if req.Method == SaleMethodDeferred && !engine.AllowDeferred {
		decision.Reason = ReasonDeferredNotAllowed
		return decision
	}
	if req.Method == SaleMethodInstallment && !engine.AllowInstallments {
		decision.Reason = ReasonInstallmentNotAllowed
		return decision
	}

	decision.Allowed = true
	switch engine.RiskLevel {
	case RiskLevelMedium, RiskLevelHigh:
		decision.RiskNote = fmt.Sprintf("customer is %s risk (score %d); monitor collections closely", engine.RiskLevel, engine.Score)
	}
	return decision
}

// CanSellOnCredit reports whether any credit sale would currently pass the gate
func (g *SalesAuthorizationGate) CanSellOnCredit(c *Customer) bool {
	if g.Authorize(c, SaleRequest{Method: SaleMethodInstallment, RequestedInstallments: 1}).Allowed {
		return true
	}
	return g.Authorize(c, SaleRequest{Method: SaleMethodDeferred}).Allowed
}
