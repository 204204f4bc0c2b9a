package partner

import (
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeCustomer = "Customer"

// Event type constants
const (
	EventTypeCustomerCreated            = "CustomerCreated"
	EventTypeCustomerCreditAssessed     = "CustomerCreditAssessed"
	EventTypeCustomerCreditLimitChanged = "CustomerCreditLimitChanged"
	EventTypeCustomerSalesBlockChanged  = "CustomerSalesBlockChanged"
)

// CustomerCreatedEvent is published when a new customer is created
type CustomerCreatedEvent struct {
	shared.BaseDomainEvent
	CustomerID uuid.UUID `json:"customer_id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
}

// NewCustomerCreatedEvent creates a new CustomerCreatedEvent
func NewCustomerCreatedEvent(customer *Customer, at time.Time) *CustomerCreatedEvent {
	return &CustomerCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCustomerCreated, AggregateTypeCustomer, customer.ID, customer.TenantID, at),
		CustomerID:      customer.ID,
		Code:            customer.Code,
		Name:            customer.Name,
	}
}

// CustomerCreditAssessedEvent is published when the score or the risk band moves
type CustomerCreditAssessedEvent struct {
	shared.BaseDomainEvent
	CustomerID        uuid.UUID `json:"customer_id"`
	PreviousScore     int       `json:"previous_score"`
	Score             int       `json:"score"`
	PreviousRiskLevel RiskLevel `json:"previous_risk_level"`
	RiskLevel         RiskLevel `json:"risk_level"`
}

// NewCustomerCreditAssessedEvent creates a new CustomerCreditAssessedEvent
func NewCustomerCreditAssessedEvent(customer *Customer, previous CreditEngine, at time.Time) *CustomerCreditAssessedEvent {
	return &CustomerCreditAssessedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeCustomerCreditAssessed, AggregateTypeCustomer, customer.ID, customer.TenantID, at),
		CustomerID:        customer.ID,
		PreviousScore:     previous.Score,
		Score:             customer.CreditEngine.Score,
		PreviousRiskLevel: previous.RiskLevel,
		RiskLevel:         customer.CreditEngine.RiskLevel,
	}
}

// CustomerCreditLimitChangedEvent is published when the credit ceiling changes
type CustomerCreditLimitChangedEvent struct {
	shared.BaseDomainEvent
	CustomerID uuid.UUID       `json:"customer_id"`
	OldLimit   decimal.Decimal `json:"old_limit"`
	NewLimit   decimal.Decimal `json:"new_limit"`
}

// NewCustomerCreditLimitChangedEvent creates a new CustomerCreditLimitChangedEvent
func NewCustomerCreditLimitChangedEvent(customer *Customer, oldLimit, newLimit decimal.Decimal, at time.Time) *CustomerCreditLimitChangedEvent {
	return &CustomerCreditLimitChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCustomerCreditLimitChanged, AggregateTypeCustomer, customer.ID, customer.TenantID, at),
		CustomerID:      customer.ID,
		OldLimit:        oldLimit,
		NewLimit:        newLimit,
	}
}

// CustomerSalesBlockChangedEvent is published when a manual sales block is set or lifted
type CustomerSalesBlockChangedEvent struct {
	shared.BaseDomainEvent
	CustomerID uuid.UUID `json:"customer_id"`
	Blocked    bool      `json:"blocked"`
	Reason     string    `json:"reason,omitempty"`
}

// NewCustomerSalesBlockChangedEvent creates a new CustomerSalesBlockChangedEvent
func NewCustomerSalesBlockChangedEvent(customer *Customer, at time.Time) *CustomerSalesBlockChangedEvent {
	return &CustomerSalesBlockChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCustomerSalesBlockChanged, AggregateTypeCustomer, customer.ID, customer.TenantID, at),
		CustomerID:      customer.ID,
		Blocked:         customer.SalesBlocked,
		Reason:          customer.SalesBlockedReason,
	}
}
