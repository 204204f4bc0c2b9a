package partner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/partner"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/retail/ledger/internal/infrastructure/logger"
	"github.com/retail/ledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const serviceName = "CustomerService"

// CustomerService handles customers and their credit standing
type CustomerService struct {
	customerRepo   partner.CustomerRepository
	gate           *partner.SalesAuthorizationGate
	eventPublisher shared.EventPublisher
	retry          shared.RetryPolicy
	logger         *zap.Logger
	now            func() time.Time
}

// CustomerServiceOption is a functional option for configuring CustomerService
type CustomerServiceOption func(*CustomerService)

// WithRetryPolicy overrides how conflicting customer writes are retried
func WithRetryPolicy(p shared.RetryPolicy) CustomerServiceOption {
	return func(s *CustomerService) {
		s.retry = p
	}
}

// WithClock sets the time source, mainly for tests
func WithClock(now func() time.Time) CustomerServiceOption {
	return func(s *CustomerService) {
		s.now = now
	}
}

// NewCustomerService creates a new CustomerService
func NewCustomerService(
	customerRepo partner.CustomerRepository,
	gate *partner.SalesAuthorizationGate,
	logger *zap.Logger,
	opts ...CustomerServiceOption,
) *CustomerService {
	s := &CustomerService{
		customerRepo: customerRepo,
		gate:         gate,
		retry:        shared.DefaultRetryPolicy(),
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEventPublisher sets the event publisher for cross-context integration
func (s *CustomerService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *CustomerService) clock() time.Time {
	return s.now().UTC()
}

// Create creates a new customer
func (s *CustomerService) Create(ctx context.Context, tenantID uuid.UUID, req CreateCustomerRequest) (*CustomerResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "Create",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID),
	)
	defer span.End()

	exists, err := s.customerRepo.ExistsByCode(ctx, tenantID, strings.ToUpper(req.Code))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to check customer code: %w", err)
	}
	if exists {
		return nil, shared.NewConflictError("CUSTOMER_CODE_TAKEN", fmt.Sprintf("Customer code %s already exists", req.Code))
	}

	now := s.clock()
	customer, err := partner.NewCustomer(tenantID, req.Code, req.Name, now)
	if err != nil {
		return nil, err
	}
	if req.Phone != "" || req.Email != "" {
		if err := customer.SetContact(req.Phone, req.Email, now); err != nil {
			return nil, err
		}
	}
	if req.Tier != "" {
		if err := customer.SetTier(partner.CustomerTier(strings.ToLower(req.Tier)), now); err != nil {
			return nil, err
		}
	}
	if req.CreditLimit != nil && !req.CreditLimit.IsZero() {
		if err := customer.SetCreditLimit(*req.CreditLimit, now); err != nil {
			return nil, err
		}
	}

	if err := s.customerRepo.Save(ctx, customer); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.publishEvents(ctx, customer)

	telemetry.SetAttributes(span, telemetry.SpanAttrCustomerID, customer.ID)
	logger.L(ctx, s.logger).Info("customer created",
		zap.String("customer_id", customer.ID.String()),
		zap.String("code", customer.Code),
	)

	response := ToCustomerResponse(customer)
	return &response, nil
}

// GetByID retrieves a customer by ID
func (s *CustomerService) GetByID(ctx context.Context, tenantID, customerID uuid.UUID) (*CustomerResponse, error) {
	customer, err := s.customerRepo.FindByIDForTenant(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	response := ToCustomerResponse(customer)
	return &response, nil
}

// GetCreditProfile returns the customer's score, risk band, installment cap,
// recommended limit and whether a credit sale would currently pass the gate
func (s *CustomerService) GetCreditProfile(ctx context.Context, tenantID, customerID uuid.UUID) (*CreditProfileResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "GetCreditProfile",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID),
		telemetry.WithAttribute(telemetry.SpanAttrCustomerID, customerID),
	)
	defer span.End()

	customer, err := s.customerRepo.FindByIDForTenant(ctx, tenantID, customerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	profile := ToCreditProfileResponse(customer, s.gate)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCreditScore, profile.Score,
		telemetry.SpanAttrRiskLevel, profile.RiskLevel,
	)
	return &profile, nil
}

// SetSalesBlock blocks or unblocks credit sales. A block needs a reason.
func (s *CustomerService) SetSalesBlock(ctx context.Context, tenantID, customerID uuid.UUID, req SetSalesBlockRequest) (*CustomerResponse, error) {
	customer, err := s.mutate(ctx, tenantID, customerID, "customer.sales_block", func(c *partner.Customer, now time.Time) error {
		if req.Blocked {
			return c.BlockSales(req.Reason, now)
		}
		c.UnblockSales(now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.L(ctx, s.logger).Info("customer sales block changed",
		zap.String("customer_id", customerID.String()),
		zap.Bool("blocked", customer.SalesBlocked),
		zap.String("reason", customer.SalesBlockedReason),
	)
	response := ToCustomerResponse(customer)
	return &response, nil
}

// SetCreditLimit sets the hard credit ceiling and re-assesses the customer
func (s *CustomerService) SetCreditLimit(ctx context.Context, tenantID, customerID uuid.UUID, req SetCreditLimitRequest) (*CustomerResponse, error) {
	customer, err := s.mutate(ctx, tenantID, customerID, "customer.credit_limit", func(c *partner.Customer, now time.Time) error {
		return c.SetCreditLimit(req.CreditLimit, now)
	})
	if err != nil {
		return nil, err
	}

	response := ToCustomerResponse(customer)
	return &response, nil
}

// List retrieves a paginated list of customers
func (s *CustomerService) List(ctx context.Context, tenantID uuid.UUID, filter CustomerListFilter) ([]CustomerListResponse, int64, error) {
	domainFilter := shared.DefaultFilter()
	if filter.Page > 0 {
		domainFilter.Page = filter.Page
	}
	if filter.PageSize > 0 {
		domainFilter.PageSize = filter.PageSize
	}
	if filter.OrderBy != "" {
		domainFilter.OrderBy = filter.OrderBy
	}
	if filter.OrderDir != "" {
		domainFilter.OrderDir = filter.OrderDir
	}
	if filter.RiskLevel != "" {
		level := partner.RiskLevel(strings.ToLower(filter.RiskLevel))
		if !level.IsValid() {
			return nil, 0, shared.NewValidationError("INVALID_RISK_LEVEL", fmt.Sprintf("Unknown risk level: %s", filter.RiskLevel))
		}
		domainFilter.Filters["risk_level"] = string(level)
	}
	if filter.SalesBlocked != nil {
		domainFilter.Filters["sales_blocked"] = *filter.SalesBlocked
	}

	customers, total, err := s.customerRepo.FindAllForTenant(ctx, tenantID, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	return ToCustomerListResponses(customers), total, nil
}

// mutate reloads the customer, applies fn and writes it back with the version
// check, retrying on conflicts. A no-op fn skips the write.
func (s *CustomerService) mutate(ctx context.Context, tenantID, customerID uuid.UUID, operation string, fn func(*partner.Customer, time.Time) error) (*partner.Customer, error) {
	var customer *partner.Customer
	err := s.retry.RetryOnConflict(ctx, func(int) error {
		loaded, err := s.customerRepo.FindByIDForTenant(ctx, tenantID, customerID)
		if err != nil {
			return err
		}
		loadedVersion := loaded.Version
		if err := fn(loaded, s.clock()); err != nil {
			return err
		}
		if loaded.Version == loadedVersion {
			// nothing changed, so there is nothing to write
			customer = loaded
			return nil
		}
		if err := s.customerRepo.SaveWithLock(ctx, loaded); err != nil {
			return err
		}
		customer = loaded
		return nil
	}, func(attempt int, err error) {
		logger.L(ctx, s.logger).Debug("retrying after concurrent modification",
			zap.String("operation", operation),
			zap.String("customer_id", customerID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvents(ctx, customer)
	return customer, nil
}

func (s *CustomerService) publishEvents(ctx context.Context, customer *partner.Customer) {
	events := customer.GetDomainEvents()
	customer.ClearDomainEvents()
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		logger.L(ctx, s.logger).Error("failed to publish customer events",
			zap.String("customer_id", customer.ID.String()),
			zap.Error(err),
		)
	}
}
