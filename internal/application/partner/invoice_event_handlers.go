package partner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/partner"
	"github.com/retail/ledger/internal/domain/sales"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/retail/ledger/internal/infrastructure/logger"
	"github.com/retail/ledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// customerUpdater applies one invoice event to the customer row with the
// version-checked retry loop. Concurrent payments on different invoices of the same
// customer serialize here.
type customerUpdater struct {
	customerRepo   partner.CustomerRepository
	eventPublisher shared.EventPublisher
	metrics        *telemetry.LedgerMetrics
	retry          shared.RetryPolicy
	logger         *zap.Logger
	now            func() time.Time
}

func newCustomerUpdater(repo partner.CustomerRepository, logger *zap.Logger) customerUpdater {
	return customerUpdater{
		customerRepo: repo,
		retry:        shared.DefaultRetryPolicy(),
		logger:       logger,
		now:          time.Now,
	}
}

// SetRetryPolicy overrides how often a conflicting customer update is retried
func (u *customerUpdater) SetRetryPolicy(p shared.RetryPolicy) {
	u.retry = p
}

func (u *customerUpdater) update(ctx context.Context, tenantID, customerID uuid.UUID, operation string, fn func(*partner.Customer, time.Time) error) (*partner.Customer, error) {
	var customer *partner.Customer
	err := u.retry.RetryOnConflict(ctx, func(int) error {
		loaded, err := u.customerRepo.FindByIDForTenant(ctx, tenantID, customerID)
		if err != nil {
			return err
		}
		loadedVersion := loaded.Version
		if err := fn(loaded, u.now().UTC()); err != nil {
			return err
		}
		if loaded.Version == loadedVersion {
			customer = loaded
			return nil
		}
		if err := u.customerRepo.SaveWithLock(ctx, loaded); err != nil {
			return err
		}
		customer = loaded
		return nil
	}, func(attempt int, err error) {
		u.metrics.RecordConflictRetry(ctx, operation)
		logger.L(ctx, u.logger).Debug("retrying customer update after concurrent modification",
			zap.String("operation", operation),
			zap.String("customer_id", customerID.String()),
			zap.Int("attempt", attempt),
		)
	})
	if err != nil {
		return nil, err
	}

	events := customer.GetDomainEvents()
	customer.ClearDomainEvents()
	if u.eventPublisher != nil && len(events) > 0 {
		if err := u.eventPublisher.Publish(ctx, events...); err != nil {
			logger.L(ctx, u.logger).Error("failed to publish customer events",
				zap.String("customer_id", customer.ID.String()),
				zap.Error(err),
			)
		}
	}
	return customer, nil
}

func unexpectedEvent(expected string, event shared.DomainEvent) error {
	return fmt.Errorf("unexpected event type: expected %s, got %s", expected, event.EventType())
}

// PaymentRecordedHandler feeds every payment into the customer's credit engine:
// total paid, on-time/late counters and a fresh score
type PaymentRecordedHandler struct {
	customerUpdater
}

// NewPaymentRecordedHandler creates a new PaymentRecordedHandler
func NewPaymentRecordedHandler(customerRepo partner.CustomerRepository, logger *zap.Logger) *PaymentRecordedHandler {
	return &PaymentRecordedHandler{customerUpdater: newCustomerUpdater(customerRepo, logger)}
}

// SetEventPublisher sets the publisher for the customer's own events
func (h *PaymentRecordedHandler) SetEventPublisher(publisher shared.EventPublisher) {
	h.eventPublisher = publisher
}

// SetLedgerMetrics sets the metrics recorder
func (h *PaymentRecordedHandler) SetLedgerMetrics(metrics *telemetry.LedgerMetrics) {
	h.metrics = metrics
}

// EventTypes returns the event types this handler is interested in
func (h *PaymentRecordedHandler) EventTypes() []string {
	return []string{sales.EventTypePaymentRecorded}
}

// Handle processes a PaymentRecordedEvent
func (h *PaymentRecordedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*sales.PaymentRecordedEvent)
	if !ok {
		return unexpectedEvent(sales.EventTypePaymentRecorded, event)
	}

	customer, err := h.update(ctx, e.TenantID(), e.CustomerID, "customer.payment", func(c *partner.Customer, now time.Time) error {
		return c.RecordPaymentBehavior(e.Amount, e.DaysLate, now)
	})
	if err != nil {
		logger.L(ctx, h.logger).Error("failed to apply payment to customer",
			zap.String("customer_id", e.CustomerID.String()),
			zap.String("invoice_id", e.InvoiceID.String()),
			zap.String("payment_id", e.PaymentID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to apply payment to customer: %w", err)
	}

	h.metrics.RecordCreditScore(ctx, customer.CreditEngine.Score, string(customer.CreditEngine.RiskLevel))
	logger.L(ctx, h.logger).Info("customer credit re-assessed",
		zap.String("customer_id", customer.ID.String()),
		zap.String("payment_id", e.PaymentID.String()),
		zap.Int("days_late", e.DaysLate),
		zap.Int("credit_score", customer.CreditEngine.Score),
		zap.String("risk_level", string(customer.CreditEngine.RiskLevel)),
	)
	return nil
}

// InvoiceCreatedHandler books new invoices into the customer's purchase history
type InvoiceCreatedHandler struct {
	customerUpdater
}

// NewInvoiceCreatedHandler creates a new InvoiceCreatedHandler
func NewInvoiceCreatedHandler(customerRepo partner.CustomerRepository, logger *zap.Logger) *InvoiceCreatedHandler {
	return &InvoiceCreatedHandler{customerUpdater: newCustomerUpdater(customerRepo, logger)}
}

// SetEventPublisher sets the publisher for the customer's own events
func (h *InvoiceCreatedHandler) SetEventPublisher(publisher shared.EventPublisher) {
	h.eventPublisher = publisher
}

// EventTypes returns the event types this handler is interested in
func (h *InvoiceCreatedHandler) EventTypes() []string {
	return []string{sales.EventTypeInvoiceCreated}
}

// Handle processes an InvoiceCreatedEvent
func (h *InvoiceCreatedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*sales.InvoiceCreatedEvent)
	if !ok {
		return unexpectedEvent(sales.EventTypeInvoiceCreated, event)
	}

	customer, err := h.update(ctx, e.TenantID(), e.CustomerID, "customer.purchase", func(c *partner.Customer, now time.Time) error {
		return c.RecordPurchase(e.TotalAmount, e.PaidAmount, now)
	})
	if err != nil {
		return fmt.Errorf("failed to book purchase for customer %s: %w", e.CustomerID, err)
	}

	logger.L(ctx, h.logger).Debug("purchase booked",
		zap.String("customer_id", customer.ID.String()),
		zap.String("invoice_number", e.InvoiceNumber),
		zap.String("outstanding_balance", customer.Financials.OutstandingBalance.String()),
	)
	return nil
}

// InvoiceCancelledHandler takes the unpaid part of a cancelled invoice off the
// customer's purchases
type InvoiceCancelledHandler struct {
	customerUpdater
}

// NewInvoiceCancelledHandler creates a new InvoiceCancelledHandler
func NewInvoiceCancelledHandler(customerRepo partner.CustomerRepository, logger *zap.Logger) *InvoiceCancelledHandler {
	return &InvoiceCancelledHandler{customerUpdater: newCustomerUpdater(customerRepo, logger)}
}

// SetEventPublisher sets the publisher for the customer's own events
func (h *InvoiceCancelledHandler) SetEventPublisher(publisher shared.EventPublisher) {
	h.eventPublisher = publisher
}

// EventTypes returns the event types this handler is interested in
func (h *InvoiceCancelledHandler) EventTypes() []string {
	return []string{sales.EventTypeInvoiceCancelled}
}

// Handle processes an InvoiceCancelledEvent
func (h *InvoiceCancelledHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*sales.InvoiceCancelledEvent)
	if !ok {
		return unexpectedEvent(sales.EventTypeInvoiceCancelled, event)
	}

	voided := e.PaidAmount.IsZero()
	customer, err := h.update(ctx, e.TenantID(), e.CustomerID, "customer.cancellation", func(c *partner.Customer, now time.Time) error {
		return c.ReversePurchase(e.RemainingAmount, voided, now)
	})
	if err != nil {
		return fmt.Errorf("failed to reverse purchase for customer %s: %w", e.CustomerID, err)
	}

	logger.L(ctx, h.logger).Info("cancelled invoice reversed on customer",
		zap.String("customer_id", customer.ID.String()),
		zap.String("invoice_id", e.InvoiceID.String()),
		zap.String("reversed", e.RemainingAmount.String()),
		zap.Bool("voided", voided),
	)
	return nil
}
