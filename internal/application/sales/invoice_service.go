package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/partner"
	"github.com/retail/ledger/internal/domain/sales"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/retail/ledger/internal/infrastructure/logger"
	"github.com/retail/ledger/internal/infrastructure/telemetry"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const serviceName = "InvoiceService"

// InvoiceServiceConfig holds the ledger settings the service applies
type InvoiceServiceConfig struct {
	OverpaymentPolicy sales.OverpaymentPolicy
	MinorUnitScale    int32
	Retry             shared.RetryPolicy
	// SweepBatch is how many invoices MarkOverdueInvoices loads per round
	SweepBatch int
}

// DefaultInvoiceServiceConfig returns the default ledger settings
func DefaultInvoiceServiceConfig() InvoiceServiceConfig {
	return InvoiceServiceConfig{
		OverpaymentPolicy: sales.OverpaymentReject,
		MinorUnitScale:    sales.DefaultMinorUnitScale,
		Retry:             shared.DefaultRetryPolicy(),
		SweepBatch:        200,
	}
}

// InvoiceService handles invoicing and payment collection
type InvoiceService struct {
	invoiceRepo    sales.InvoiceRepository
	customerRepo   partner.CustomerRepository
	catalog        ProductCatalog
	gate           *partner.SalesAuthorizationGate
	eventPublisher shared.EventPublisher
	metrics        *telemetry.LedgerMetrics
	logger         *zap.Logger
	config         InvoiceServiceConfig
	now            func() time.Time
}

// InvoiceServiceOption is a functional option for configuring InvoiceService
type InvoiceServiceOption func(*InvoiceService)

// WithConfig overrides the default ledger settings
func WithConfig(cfg InvoiceServiceConfig) InvoiceServiceOption {
	return func(s *InvoiceService) {
		if !cfg.OverpaymentPolicy.IsValid() {
			cfg.OverpaymentPolicy = sales.OverpaymentReject
		}
		if cfg.SweepBatch <= 0 {
			cfg.SweepBatch = 200
		}
		s.config = cfg
	}
}

// WithClock sets the time source, mainly for tests
func WithClock(now func() time.Time) InvoiceServiceOption {
	return func(s *InvoiceService) {
		s.now = now
	}
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	invoiceRepo sales.InvoiceRepository,
	customerRepo partner.CustomerRepository,
	catalog ProductCatalog,
	gate *partner.SalesAuthorizationGate,
	logger *zap.Logger,
	opts ...InvoiceServiceOption,
) *InvoiceService {
	s := &InvoiceService{
		invoiceRepo:  invoiceRepo,
		customerRepo: customerRepo,
		catalog:      catalog,
		gate:         gate,
		logger:       logger,
		config:       DefaultInvoiceServiceConfig(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEventPublisher sets the event publisher for cross-context integration
func (s *InvoiceService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetLedgerMetrics sets the metrics recorder
func (s *InvoiceService) SetLedgerMetrics(metrics *telemetry.LedgerMetrics) {
	s.metrics = metrics
}

func (s *InvoiceService) clock() time.Time {
	return s.now().UTC()
}

// Create invoices a sale. Prices come from the catalog, credit sales must pass the
// sales authorization gate, and stock is taken before the invoice is stored.
func (s *InvoiceService) Create(ctx context.Context, tenantID, actorID uuid.UUID, req CreateInvoiceRequest) (resp *InvoiceResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "Create",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID),
		telemetry.WithAttribute(telemetry.SpanAttrCustomerID, req.CustomerID),
		telemetry.WithAttribute(telemetry.SpanAttrPaymentMethod, req.PaymentMethod),
	)
	defer span.End()
	started := time.Now()
	defer func() {
		s.metrics.RecordDuration(ctx, "invoice.create", time.Since(started))
		telemetry.RecordError(span, err)
	}()

	now := s.clock()
	method := sales.PaymentMethod(strings.ToUpper(req.PaymentMethod))
	if !method.IsValid() {
		return nil, shared.NewValidationError("INVALID_PAYMENT_METHOD", fmt.Sprintf("Unsupported payment method: %s", req.PaymentMethod))
	}
	if len(req.Items) == 0 {
		return nil, shared.NewValidationError("NO_ITEMS", "Invoice must have at least one item")
	}

	customer, err := s.customerRepo.FindByIDForTenant(ctx, tenantID, req.CustomerID)
	if err != nil {
		return nil, err
	}

	items, err := s.priceItems(ctx, tenantID, req.Items)
	if err != nil {
		return nil, err
	}

	number, err := s.resolveInvoiceNumber(ctx, tenantID, req.InvoiceNumber, now)
	if err != nil {
		return nil, err
	}

	var installment *sales.InstallmentConfig
	if req.Installment != nil {
		installment = &sales.InstallmentConfig{
			NumberOfInstallments: req.Installment.NumberOfInstallments,
			Frequency:            sales.Frequency(strings.ToUpper(req.Installment.Frequency)),
			DownPayment:          req.Installment.DownPayment,
		}
		if req.Installment.StartDate != nil {
			installment.StartDate = req.Installment.StartDate.UTC()
		}
	}

	invoice, err := sales.NewInvoice(sales.NewInvoiceParams{
		TenantID:       tenantID,
		CustomerID:     customer.ID,
		CreatedBy:      actorID,
		InvoiceNumber:  number,
		Items:          items,
		Discount:       lo.FromPtrOr(req.Discount, decimal.Zero),
		PaymentMethod:  method,
		Installment:    installment,
		MinorUnitScale: s.config.MinorUnitScale,
		Now:            now,
	})
	if err != nil {
		return nil, err
	}

	if method.IsCredit() {
		if err := s.authorize(ctx, customer, invoice); err != nil {
			return nil, err
		}
	}

	lines := stockLines(invoice.Items)
	if err := s.catalog.DecrementStock(ctx, tenantID, lines); err != nil {
		return nil, err
	}

	if err := s.invoiceRepo.Save(ctx, invoice); err != nil {
		if restoreErr := s.catalog.RestoreStock(ctx, tenantID, lines); restoreErr != nil {
			logger.L(ctx, s.logger).Error("failed to restore stock after invoice save failure",
				zap.String("invoice_number", invoice.InvoiceNumber),
				zap.Error(restoreErr),
			)
		}
		return nil, err
	}

	s.publishEvents(ctx, invoice)
	s.metrics.RecordInvoiceCreated(ctx, tenantID.String(), string(method))
	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, invoice.ID,
		telemetry.SpanAttrInvoiceNumber, invoice.InvoiceNumber,
		telemetry.SpanAttrAmount, invoice.TotalAmount,
		telemetry.SpanAttrInstallments, len(invoice.Installments),
	)
	logger.L(ctx, s.logger).Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("customer_id", customer.ID.String()),
		zap.String("payment_method", string(method)),
		zap.String("total_amount", invoice.TotalAmount.String()),
	)

	response := ToInvoiceResponse(invoice)
	return &response, nil
}

// RecordPayment applies a payment to an invoice. Concurrent writers on the same
// invoice are serialized by the version check; a stale attempt reloads and retries.
func (s *InvoiceService) RecordPayment(ctx context.Context, tenantID, invoiceID, actorID uuid.UUID, req RecordPaymentRequest) (resp *PaymentResultResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "RecordPayment",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID),
		telemetry.WithAttribute(telemetry.SpanAttrInvoiceID, invoiceID),
		telemetry.WithAttribute(telemetry.SpanAttrAmount, req.Amount),
	)
	defer span.End()
	started := time.Now()
	defer func() {
		s.metrics.RecordDuration(ctx, "invoice.record_payment", time.Since(started))
		telemetry.RecordError(span, err)
	}()

	input := sales.PaymentInput{
		Amount:     req.Amount,
		Method:     sales.PaymentChannel(strings.ToUpper(req.Method)),
		Reference:  req.Reference,
		RecordedBy: actorID,
	}
	return s.applyPayment(ctx, tenantID, invoiceID, "invoice.record_payment", func(inv *sales.Invoice, now time.Time) (*sales.PaymentAllocation, error) {
		return inv.RecordPayment(input, now, s.config.OverpaymentPolicy)
	})
}

// PayAllRemaining settles the remaining balance of an invoice in cash
func (s *InvoiceService) PayAllRemaining(ctx context.Context, tenantID, invoiceID, actorID uuid.UUID) (resp *PaymentResultResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "PayAllRemaining",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID),
		telemetry.WithAttribute(telemetry.SpanAttrInvoiceID, invoiceID),
	)
	defer span.End()
	started := time.Now()
	defer func() {
		s.metrics.RecordDuration(ctx, "invoice.pay_all", time.Since(started))
		telemetry.RecordError(span, err)
	}()

	return s.applyPayment(ctx, tenantID, invoiceID, "invoice.pay_all", func(inv *sales.Invoice, now time.Time) (*sales.PaymentAllocation, error) {
		return inv.PayAllRemaining(actorID, now)
	})
}

func (s *InvoiceService) applyPayment(
	ctx context.Context,
	tenantID, invoiceID uuid.UUID,
	operation string,
	pay func(inv *sales.Invoice, now time.Time) (*sales.PaymentAllocation, error),
) (*PaymentResultResponse, error) {
	var (
		invoice    *sales.Invoice
		allocation *sales.PaymentAllocation
	)

	err := s.config.Retry.RetryOnConflict(ctx, func(int) error {
		inv, err := s.invoiceRepo.FindByIDForTenant(ctx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		alloc, err := pay(inv, s.clock())
		if err != nil {
			return err
		}
		if err := s.invoiceRepo.SaveWithLock(ctx, inv); err != nil {
			return err
		}
		invoice, allocation = inv, alloc
		return nil
	}, s.onConflict(ctx, operation, invoiceID))
	if err != nil {
		return nil, err
	}

	s.publishEvents(ctx, invoice)
	overpaid := allocation.Unallocated.IsPositive()
	s.metrics.RecordPayment(ctx, tenantID.String(), string(invoice.Status), allocation.Payment.Amount.InexactFloat64(), overpaid)

	logger.L(ctx, s.logger).Info("payment recorded",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("payment_id", allocation.Payment.ID.String()),
		zap.String("amount", allocation.Payment.Amount.String()),
		zap.String("remaining_amount", invoice.RemainingAmount.String()),
		zap.String("status", string(invoice.Status)),
		zap.Int("days_late", allocation.DaysLate),
	)

	response := ToPaymentResultResponse(invoice, allocation)
	return &response, nil
}

// Cancel voids an unpaid invoice and returns its goods to stock
func (s *InvoiceService) Cancel(ctx context.Context, tenantID, invoiceID, actorID uuid.UUID, req CancelInvoiceRequest) (resp *InvoiceResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "Cancel",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID),
		telemetry.WithAttribute(telemetry.SpanAttrInvoiceID, invoiceID),
	)
	defer span.End()
	defer func() { telemetry.RecordError(span, err) }()

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, shared.NewValidationError("INVALID_REASON", "A cancellation reason is required")
	}

	var invoice *sales.Invoice
	err = s.config.Retry.RetryOnConflict(ctx, func(int) error {
		inv, err := s.invoiceRepo.FindByIDForTenant(ctx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		if err := inv.Cancel(reason, s.clock()); err != nil {
			return err
		}
		if err := s.invoiceRepo.SaveWithLock(ctx, inv); err != nil {
			return err
		}
		invoice = inv
		return nil
	}, s.onConflict(ctx, "invoice.cancel", invoiceID))
	if err != nil {
		return nil, err
	}

	if restoreErr := s.catalog.RestoreStock(ctx, tenantID, stockLines(invoice.Items)); restoreErr != nil {
		logger.L(ctx, s.logger).Error("failed to restore stock for cancelled invoice",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(restoreErr),
		)
	}

	s.publishEvents(ctx, invoice)
	s.metrics.RecordInvoiceCancelled(ctx, tenantID.String())
	logger.L(ctx, s.logger).Info("invoice cancelled",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("cancelled_by", actorID.String()),
		zap.String("reason", reason),
	)

	response := ToInvoiceResponse(invoice)
	return &response, nil
}

// GetByID retrieves an invoice with its ledger, as seen now: installments that fell
// due since the last write are reported overdue even before the sweep persists it.
func (s *InvoiceService) GetByID(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceResponse, error) {
	invoice, err := s.invoiceRepo.FindByIDForTenant(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	invoice.RecomputeState(s.clock())

	response := ToInvoiceResponse(invoice)
	return &response, nil
}

// List retrieves a paginated list of invoices
func (s *InvoiceService) List(ctx context.Context, tenantID uuid.UUID, filter InvoiceListFilter) ([]InvoiceListResponse, int64, error) {
	domainFilter := sales.InvoiceFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
		},
		CustomerID: filter.CustomerID,
	}

	// Set defaults
	if domainFilter.Page == 0 {
		domainFilter.Page = 1
	}
	if domainFilter.PageSize == 0 {
		domainFilter.PageSize = 20
	}
	if domainFilter.OrderBy == "" {
		domainFilter.OrderBy = "created_at"
	}
	if domainFilter.OrderDir == "" {
		domainFilter.OrderDir = "desc"
	}
	if filter.Status != "" {
		status := sales.InvoiceStatus(strings.ToUpper(filter.Status))
		if !status.IsValid() {
			return nil, 0, shared.NewValidationError("INVALID_STATUS", fmt.Sprintf("Unknown invoice status: %s", filter.Status))
		}
		domainFilter.Status = &status
	}

	invoices, total, err := s.invoiceRepo.FindForTenant(ctx, tenantID, domainFilter)
	if err != nil {
		return nil, 0, err
	}

	return ToInvoiceListResponses(invoices), total, nil
}

// MarkOverdueInvoices runs the state machine over every open invoice of every tenant
// that has an installment past due, persisting the overdue flips and publishing their
// events. It processes batches until none is left or a round makes no progress.
func (s *InvoiceService) MarkOverdueInvoices(ctx context.Context, now time.Time) (result OverdueSweepResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "MarkOverdueInvoices")
	defer span.End()
	defer func() {
		telemetry.SetAttributes(span, telemetry.SpanAttrOverdueTouched, result.InvoicesUpdated)
		telemetry.RecordError(span, err)
	}()

	now = now.UTC()
	cutoff := sales.OverdueCutoff(now)
	limit := s.config.SweepBatch

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		batch, err := s.invoiceRepo.FindOpenWithInstallmentsDueBefore(ctx, cutoff, limit)
		if err != nil {
			return result, fmt.Errorf("failed to load invoices for overdue sweep: %w", err)
		}
		result.Scanned += len(batch)

		progress := 0
		for i := range batch {
			flipped, err := s.refreshOverdue(ctx, &batch[i], now)
			switch {
			case err == nil:
				if flipped > 0 {
					progress++
					result.InvoicesUpdated++
					result.InstallmentsOverdue += flipped
				}
			case shared.IsConflict(err):
				result.Conflicts++
			default:
				result.Failed++
				logger.L(ctx, s.logger).Warn("overdue refresh failed",
					zap.String("invoice_id", batch[i].ID.String()),
					zap.String("tenant_id", batch[i].TenantID.String()),
					zap.Error(err),
				)
			}
		}

		if len(batch) < limit || progress == 0 {
			break
		}
	}

	s.metrics.RecordOverdue(ctx, result.InstallmentsOverdue)
	return result, nil
}

// refreshOverdue flips due installments of one invoice, reloading it on conflict.
// It returns the number of installments that turned overdue.
func (s *InvoiceService) refreshOverdue(ctx context.Context, loaded *sales.Invoice, now time.Time) (int, error) {
	flipped := 0
	var invoice *sales.Invoice
	err := s.config.Retry.RetryOnConflict(ctx, func(attempt int) error {
		inv := loaded
		if attempt > 0 {
			reloaded, err := s.invoiceRepo.FindByIDForTenant(ctx, loaded.TenantID, loaded.ID)
			if err != nil {
				return err
			}
			inv = reloaded
		}
		inv.ClearDomainEvents()
		if !inv.RefreshOverdue(now) {
			invoice, flipped = nil, 0
			return nil
		}
		if err := s.invoiceRepo.SaveWithLock(ctx, inv); err != nil {
			return err
		}
		invoice = inv
		flipped = len(lo.Filter(inv.GetDomainEvents(), func(e shared.DomainEvent, _ int) bool {
			return e.EventType() == sales.EventTypeInstallmentOverdue
		}))
		return nil
	}, s.onConflict(ctx, "invoice.overdue_sweep", loaded.ID))
	if err != nil {
		return 0, err
	}
	if invoice != nil {
		s.publishEvents(ctx, invoice)
	}
	return flipped, nil
}

func (s *InvoiceService) authorize(ctx context.Context, customer *partner.Customer, invoice *sales.Invoice) error {
	req := partner.SaleRequest{Method: partner.SaleMethod(invoice.PaymentMethod)}
	if invoice.InstallmentConfig != nil {
		req.RequestedInstallments = invoice.InstallmentConfig.NumberOfInstallments
	}

	decision := s.gate.Authorize(customer, req)
	s.metrics.RecordGateDecision(ctx, decision.Allowed, decision.Reason)
	if !decision.Allowed {
		logger.L(ctx, s.logger).Info("credit sale denied",
			zap.String("customer_id", customer.ID.String()),
			zap.String("payment_method", string(invoice.PaymentMethod)),
			zap.String("reason", decision.Reason),
			zap.Int("credit_score", customer.CreditEngine.Score),
		)
		return shared.NewBusinessRuleError("SALE_NOT_AUTHORIZED", decision.Reason)
	}
	if req.Method == partner.SaleMethodInstallment && req.RequestedInstallments > decision.MaxInstallments {
		return shared.NewBusinessRuleError("INSTALLMENTS_EXCEED_LIMIT",
			fmt.Sprintf("Requested %d installments, customer is limited to %d", req.RequestedInstallments, decision.MaxInstallments))
	}
	return nil
}

// priceItems looks every product up in the catalog and prices the lines from it
func (s *InvoiceService) priceItems(ctx context.Context, tenantID uuid.UUID, inputs []CreateInvoiceItemInput) ([]sales.InvoiceItem, error) {
	ids := lo.Uniq(lo.Map(inputs, func(in CreateInvoiceItemInput, _ int) uuid.UUID { return in.ProductID }))
	products, err := s.catalog.GetProducts(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	items := make([]sales.InvoiceItem, 0, len(inputs))
	for _, in := range inputs {
		product, ok := products[in.ProductID]
		if !ok {
			return nil, shared.NewNotFoundError("PRODUCT_NOT_FOUND", fmt.Sprintf("Product %s not found", in.ProductID))
		}
		items = append(items, sales.InvoiceItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    in.Quantity,
			UnitPrice:   product.Price,
		})
	}
	return items, nil
}

func (s *InvoiceService) resolveInvoiceNumber(ctx context.Context, tenantID uuid.UUID, requested string, now time.Time) (string, error) {
	number := strings.TrimSpace(requested)
	if number == "" {
		return GenerateInvoiceNumber(now), nil
	}
	exists, err := s.invoiceRepo.ExistsByNumber(ctx, tenantID, number)
	if err != nil {
		return "", err
	}
	if exists {
		return "", shared.NewConflictError("INVOICE_NUMBER_TAKEN", fmt.Sprintf("Invoice number %s is already used", number))
	}
	return number, nil
}

// GenerateInvoiceNumber returns a number of the form INV-20240131-1A2B3C4D
func GenerateInvoiceNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s", now.Format("20060102"), suffix)
}

func (s *InvoiceService) onConflict(ctx context.Context, operation string, invoiceID uuid.UUID) func(int, error) {
	return func(attempt int, err error) {
		s.metrics.RecordConflictRetry(ctx, operation)
		logger.L(ctx, s.logger).Debug("retrying after concurrent modification",
			zap.String("operation", operation),
			zap.String("invoice_id", invoiceID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

// publishEvents hands the invoice's events to the publisher after the write committed.
// A failing handler does not undo the write; when the publisher is the outbox
// processor the failed events are delivered again later.
func (s *InvoiceService) publishEvents(ctx context.Context, invoice *sales.Invoice) {
	events := invoice.GetDomainEvents()
	invoice.ClearDomainEvents()
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		logger.L(ctx, s.logger).Error("failed to publish invoice events",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Int("event_count", len(events)),
			zap.Error(err),
		)
	}
}

// stockLines merges invoice lines per product
func stockLines(items sales.InvoiceItems) []StockLine {
	grouped := lo.GroupBy(items, func(item sales.InvoiceItem) uuid.UUID { return item.ProductID })
	lines := make([]StockLine, 0, len(grouped))
	for _, item := range items {
		group, ok := grouped[item.ProductID]
		if !ok {
			continue
		}
		qty := lo.Reduce(group, func(acc decimal.Decimal, it sales.InvoiceItem, _ int) decimal.Decimal {
			return acc.Add(it.Quantity)
		}, decimal.Zero)
		lines = append(lines, StockLine{ProductID: item.ProductID, Quantity: qty})
		delete(grouped, item.ProductID)
	}
	return lines
}
