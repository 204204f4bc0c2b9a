package partner

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel is the credit band a score falls into
type RiskLevel string

const (
	RiskLevelLow     RiskLevel = "low"
	RiskLevelMedium  RiskLevel = "medium"
	RiskLevelHigh    RiskLevel = "high"
	RiskLevelBlocked RiskLevel = "blocked"
)

// IsValid checks if the risk level is known
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelBlocked:
		return true
	}
	return false
}

// Score bounds and band thresholds
const (
	MaxCreditScore = 100
	MinCreditScore = 0

	LowRiskThreshold    = 70
	MediumRiskThreshold = 50
	HighRiskThreshold   = 30
)

// PaymentBehavior holds the counters the score is computed from
type PaymentBehavior struct {
	OnTimePayments int `json:"on_time_payments"`
	LatePayments   int `json:"late_payments"`
	TotalPayments  int `json:"total_payments"`
	AvgDaysLate    int `json:"avg_days_late"`
	CurrentStreak  int `json:"current_streak"`
	LongestStreak  int `json:"longest_streak"`
}

// Record folds one payment into the counters. daysLate <= 0 counts as on time.
func (b *PaymentBehavior) Record(daysLate int) {
	b.TotalPayments++
	if daysLate <= 0 {
		b.OnTimePayments++
		b.CurrentStreak++
		if b.CurrentStreak > b.LongestStreak {
			b.LongestStreak = b.CurrentStreak
		}
		return
	}

	b.LatePayments++
	b.CurrentStreak = 0
	// rolling average over late payments only
	sum := decimal.NewFromInt(int64(b.AvgDaysLate) * int64(b.LatePayments-1)).Add(decimal.NewFromInt(int64(daysLate)))
	b.AvgDaysLate = int(sum.Div(decimal.NewFromInt(int64(b.LatePayments))).Round(0).IntPart())
}

// LateRatio returns latePayments/totalPayments, zero without history
func (b PaymentBehavior) LateRatio() decimal.Decimal {
	if b.TotalPayments == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(b.LatePayments)).Div(decimal.NewFromInt(int64(b.TotalPayments)))
}

// Financials is the customer's running purchase and payment totals
type Financials struct {
	TotalPurchases     decimal.Decimal `json:"total_purchases"`
	TotalPaid          decimal.Decimal `json:"total_paid"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	InvoiceCount       int             `json:"invoice_count"`
}

// recomputeOutstanding keeps OutstandingBalance = max(0, purchases - paid)
func (f *Financials) recomputeOutstanding() {
	f.OutstandingBalance = decimal.Max(decimal.Zero, f.TotalPurchases.Sub(f.TotalPaid))
}

// Utilization returns outstanding/creditLimit; ok is false when no limit is set
func (f Financials) Utilization() (ratio decimal.Decimal, ok bool) {
	if !f.CreditLimit.IsPositive() {
		return decimal.Zero, false
	}
	return f.OutstandingBalance.Div(f.CreditLimit), true
}

// AveragePurchase returns the mean invoice value, zero without history
func (f Financials) AveragePurchase() decimal.Decimal {
	if f.InvoiceCount <= 0 {
		return decimal.Zero
	}
	return f.TotalPurchases.Div(decimal.NewFromInt(int64(f.InvoiceCount)))
}

// CreditEngine is the last credit assessment of a customer
type CreditEngine struct {
	Score             int        `json:"score"`
	RiskLevel         RiskLevel  `json:"risk_level"`
	MaxInstallments   int        `json:"max_installments"`
	AllowDeferred     bool       `json:"allow_deferred"`
	AllowInstallments bool       `json:"allow_installments"`
	LastAssessment    *time.Time `json:"last_assessment,omitempty"`
}

var (
	fortyPoints = decimal.NewFromInt(40)
	one         = decimal.NewFromInt(1)
)

// CalculateCreditScore scores payment reliability from 0 (worst) to 100 (best).
//
//	late ratio        -round(lateShare * 40)
//	late frequency    -min(late*3, 20)           when more than 3 late payments
//	utilization       >100% -20, >80% -15, >50% -8
//	average lateness  >30d -10, >14d -6, >7d -3
//	on-time streak    >=5 +5, >=3 +3
func CalculateCreditScore(b PaymentBehavior, f Financials) int {
	score := MaxCreditScore

	if b.TotalPayments > 0 {
		onTime := decimal.NewFromInt(int64(b.OnTimePayments)).Div(decimal.NewFromInt(int64(b.TotalPayments)))
		penalty := one.Sub(onTime).Mul(fortyPoints).Round(0)
		score -= int(penalty.IntPart())
	}

	if b.LatePayments > 3 {
		score -= min(b.LatePayments*3, 20)
	}

	if ratio, ok := f.Utilization(); ok {
		switch {
		case ratio.GreaterThan(decimal.NewFromInt(1)):
			score -= 20
		case ratio.GreaterThan(decimal.NewFromFloat(0.8)):
			score -= 15
		case ratio.GreaterThan(decimal.NewFromFloat(0.5)):
			score -= 8
		}
	}

	switch {
	case b.AvgDaysLate > 30:
		score -= 10
	case b.AvgDaysLate > 14:
		score -= 6
	case b.AvgDaysLate > 7:
		score -= 3
	}

	switch {
	case b.CurrentStreak >= 5:
		score += 5
	case b.CurrentStreak >= 3:
		score += 3
	}

	return max(MinCreditScore, min(MaxCreditScore, score))
}

// RiskProfileForScore maps a score to its band and the credit terms the band allows.
// A lower score never yields looser terms than a higher one.
func RiskProfileForScore(score int) CreditEngine {
	score = max(MinCreditScore, min(MaxCreditScore, score))
	switch {
	case score >= LowRiskThreshold:
		return CreditEngine{Score: score, RiskLevel: RiskLevelLow, MaxInstallments: 12, AllowDeferred: true, AllowInstallments: true}
	case score >= MediumRiskThreshold:
		return CreditEngine{Score: score, RiskLevel: RiskLevelMedium, MaxInstallments: 6, AllowDeferred: true, AllowInstallments: true}
	case score >= HighRiskThreshold:
		return CreditEngine{Score: score, RiskLevel: RiskLevelHigh, MaxInstallments: 3, AllowDeferred: false, AllowInstallments: true}
	default:
		return CreditEngine{Score: score, RiskLevel: RiskLevelBlocked, MaxInstallments: 0, AllowDeferred: false, AllowInstallments: false}
	}
}
