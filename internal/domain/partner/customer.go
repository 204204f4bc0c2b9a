package partner

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

var (
	validPhone = regexp.MustCompile(`^[\d\s\-\(\)\+]+$`)
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// Customer represents a customer in the partner context.
// It is the aggregate root for the customer's financials, payment behavior and credit
// assessment; every invoice of the customer feeds it through domain events.
type Customer struct {
	shared.TenantAggregateRoot
	Code               string
	Name               string
	Phone              string
	Email              string
	Tier               CustomerTier
	Financials         Financials
	PaymentBehavior    PaymentBehavior
	CreditEngine       CreditEngine
	SalesBlocked       bool
	SalesBlockedReason string
}

// NewCustomer creates a new customer with an initial credit assessment
func NewCustomer(tenantID uuid.UUID, code, name string, now time.Time) (*Customer, error) {
	if err := validateCustomerCode(code); err != nil {
		return nil, err
	}
	if err := validateCustomerName(name); err != nil {
		return nil, err
	}

	customer := &Customer{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID, now),
		Code:                strings.ToUpper(code),
		Name:                name,
		Tier:                CustomerTierNormal,
		Financials: Financials{
			TotalPurchases:     decimal.Zero,
			TotalPaid:          decimal.Zero,
			OutstandingBalance: decimal.Zero,
			CreditLimit:        decimal.Zero,
		},
	}
	customer.assess(now)

	customer.AddDomainEvent(NewCustomerCreatedEvent(customer, now))

	return customer, nil
}

// SetContact sets the customer's contact information
func (c *Customer) SetContact(phone, email string, now time.Time) error {
	if phone != "" {
		if err := validatePhone(phone); err != nil {
			return err
		}
	}
	if email != "" {
		if err := validateEmail(email); err != nil {
			return err
		}
	}

	c.Phone = phone
	c.Email = email
	c.Touch(now)
	c.IncrementVersion()

	return nil
}

// SetTier sets the loyalty tier, which scales the recommended credit limit
func (c *Customer) SetTier(tier CustomerTier, now time.Time) error {
	if !tier.IsValid() {
		return shared.NewValidationError("INVALID_TIER", "Invalid customer tier")
	}

	c.Tier = tier
	c.Touch(now)
	c.IncrementVersion()

	return nil
}

// SetCreditLimit sets the hard credit ceiling. Zero means no ceiling configured.
func (c *Customer) SetCreditLimit(limit decimal.Decimal, now time.Time) error {
	if limit.IsNegative() {
		return shared.NewValidationError("INVALID_CREDIT_LIMIT", "Credit limit cannot be negative")
	}

	oldLimit := c.Financials.CreditLimit
	c.Financials.CreditLimit = limit
	c.assess(now)
	c.Touch(now)
	c.IncrementVersion()

	c.AddDomainEvent(NewCustomerCreditLimitChangedEvent(c, oldLimit, limit, now))

	return nil
}

// BlockSales forbids any credit sale regardless of the computed score
func (c *Customer) BlockSales(reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return shared.NewValidationError("INVALID_REASON", "A reason is required to block sales")
	}

	c.SalesBlocked = true
	c.SalesBlockedReason = reason
	c.Touch(now)
	c.IncrementVersion()

	c.AddDomainEvent(NewCustomerSalesBlockChangedEvent(c, now))

	return nil
}

// UnblockSales lifts a manual sales block
func (c *Customer) UnblockSales(now time.Time) {
	if !c.SalesBlocked {
		return
	}

	c.SalesBlocked = false
	c.SalesBlockedReason = ""
	c.Touch(now)
	c.IncrementVersion()

	c.AddDomainEvent(NewCustomerSalesBlockChangedEvent(c, now))
}

// RecordPurchase books a new invoice against the customer. paidUpFront is the part
// settled at the counter (cash sales, down payments).
func (c *Customer) RecordPurchase(total, paidUpFront decimal.Decimal, now time.Time) error {
	if total.LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError("INVALID_AMOUNT", "Purchase total must be positive")
	}
	if paidUpFront.IsNegative() || paidUpFront.GreaterThan(total) {
		return shared.NewValidationError("INVALID_AMOUNT", "Up-front payment must be between zero and the purchase total")
	}

	c.Financials.TotalPurchases = c.Financials.TotalPurchases.Add(total)
	c.Financials.TotalPaid = c.Financials.TotalPaid.Add(paidUpFront)
	c.Financials.InvoiceCount++
	c.Financials.recomputeOutstanding()
	c.assess(now)
	c.Touch(now)
	c.IncrementVersion()

	return nil
}

// ReversePurchase removes the unpaid part of a cancelled invoice from the purchases.
// voided is true when nothing had been paid, in which case the invoice no longer
// counts towards the purchase history at all.
func (c *Customer) ReversePurchase(remaining decimal.Decimal, voided bool, now time.Time) error {
	if remaining.IsNegative() {
		return shared.NewValidationError("INVALID_AMOUNT", "Reversed amount cannot be negative")
	}

	c.Financials.TotalPurchases = decimal.Max(decimal.Zero, c.Financials.TotalPurchases.Sub(remaining))
	if voided && c.Financials.InvoiceCount > 0 {
		c.Financials.InvoiceCount--
	}
	c.Financials.recomputeOutstanding()
	c.assess(now)
	c.Touch(now)
	c.IncrementVersion()

	return nil
}

// RecordPaymentBehavior books a payment received on one of the customer's invoices,
// updates the behavior counters and re-scores the customer.
func (c *Customer) RecordPaymentBehavior(amount decimal.Decimal, daysLate int, now time.Time) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}

	c.Financials.TotalPaid = c.Financials.TotalPaid.Add(amount)
	c.PaymentBehavior.Record(daysLate)
	c.Financials.recomputeOutstanding()
	c.assess(now)
	c.Touch(now)
	c.IncrementVersion()

	return nil
}

// RecalculateCreditScore re-runs the assessment without changing any counter
func (c *Customer) RecalculateCreditScore(now time.Time) {
	c.assess(now)
	c.Touch(now)
	c.IncrementVersion()
}

// CanBuyOnCredit is the quick check used by listings; the gate gives the full answer
func (c *Customer) CanBuyOnCredit() bool {
	return !c.SalesBlocked && c.CreditEngine.RiskLevel != RiskLevelBlocked
}

func (c *Customer) assess(now time.Time) {
	previous := c.CreditEngine
	next := RiskProfileForScore(CalculateCreditScore(c.PaymentBehavior, c.Financials))
	assessedAt := now
	next.LastAssessment = &assessedAt
	c.CreditEngine = next

	if previous.RiskLevel != "" && (previous.Score != next.Score || previous.RiskLevel != next.RiskLevel) {
		c.AddDomainEvent(NewCustomerCreditAssessedEvent(c, previous, now))
	}
}

// Validation functions

func validateCustomerCode(code string) error {
	if code == "" {
		return shared.NewValidationError("INVALID_CODE", "Customer code cannot be empty")
	}
	if len(code) > 50 {
		return shared.NewValidationError("INVALID_CODE", "Customer code cannot exceed 50 characters")
	}
	for _, r := range code {
		if !((r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-') {
			return shared.NewValidationError("INVALID_CODE", "Customer code can only contain letters, numbers, underscores, and hyphens")
		}
	}
	return nil
}

func validateCustomerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return shared.NewValidationError("INVALID_NAME", "Customer name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewValidationError("INVALID_NAME", "Customer name cannot exceed 200 characters")
	}
	return nil
}

func validatePhone(phone string) error {
	if len(phone) > 50 {
		return shared.NewValidationError("INVALID_PHONE", "Phone number cannot exceed 50 characters")
	}
	if !validPhone.MatchString(phone) {
		return shared.NewValidationError("INVALID_PHONE", "Invalid phone number format")
	}
	return nil
}

func validateEmail(email string) error {
	if len(email) > 200 {
		return shared.NewValidationError("INVALID_EMAIL", "Email cannot exceed 200 characters")
	}
	if !emailRegex.MatchString(email) {
		return shared.NewValidationError("INVALID_EMAIL", "Invalid email format")
	}
	return nil
}
