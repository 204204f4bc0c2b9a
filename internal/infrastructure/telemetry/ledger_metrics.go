package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LedgerMetrics groups the instruments recorded by the ledger services.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	invoicesCreated     *Counter
	invoicesCancelled   *Counter
	paymentsRecorded    *Counter
	paymentAmount       *Histogram
	overpayments        *Counter
	conflictRetries     *Counter
	overdueInstallments *Counter
	creditScore         *Histogram
	gateDecisions       *Counter
	operationDuration   *Histogram
}

// NewLedgerMetrics registers all ledger instruments on meter.
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	m := &LedgerMetrics{}
	var err error

	if m.invoicesCreated, err = NewCounter(meter, "ledger_invoices_created_total",
		"Invoices created by payment method", "{invoice}"); err != nil {
		return nil, err
	}
	if m.invoicesCancelled, err = NewCounter(meter, "ledger_invoices_cancelled_total",
		"Invoices cancelled", "{invoice}"); err != nil {
		return nil, err
	}
	if m.paymentsRecorded, err = NewCounter(meter, "ledger_payments_recorded_total",
		"Payments applied to invoices", "{payment}"); err != nil {
		return nil, err
	}
	if m.paymentAmount, err = NewHistogram(meter, HistogramOpts{
		Name:        "ledger_payment_amount",
		Description: "Distribution of applied payment amounts",
		Unit:        "{currency}",
		Boundaries:  AmountBuckets,
	}); err != nil {
		return nil, err
	}
	if m.overpayments, err = NewCounter(meter, "ledger_overpayments_total",
		"Payments exceeding the remaining balance", "{payment}"); err != nil {
		return nil, err
	}
	if m.conflictRetries, err = NewCounter(meter, "ledger_conflict_retries_total",
		"Optimistic lock conflicts that were retried", "{retry}"); err != nil {
		return nil, err
	}
	if m.overdueInstallments, err = NewCounter(meter, "ledger_overdue_installments_total",
		"Installments transitioned to overdue", "{installment}"); err != nil {
		return nil, err
	}
	if m.creditScore, err = NewHistogram(meter, HistogramOpts{
		Name:        "ledger_credit_score",
		Description: "Credit scores produced by reassessment",
		Unit:        "{score}",
		Boundaries:  ScoreBuckets,
	}); err != nil {
		return nil, err
	}
	if m.gateDecisions, err = NewCounter(meter, "ledger_sales_gate_decisions_total",
		"Sales authorization decisions", "{decision}"); err != nil {
		return nil, err
	}
	if m.operationDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "ledger_operation_duration_seconds",
		Description: "Duration of ledger service operations",
		Unit:        "s",
		Boundaries:  DurationBuckets,
	}); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *LedgerMetrics) RecordInvoiceCreated(ctx context.Context, tenantID, method string) {
	if m == nil {
		return
	}
	m.invoicesCreated.Inc(ctx, AttrTenantID.String(tenantID), AttrPaymentMethod.String(method))
}

func (m *LedgerMetrics) RecordInvoiceCancelled(ctx context.Context, tenantID string) {
	if m == nil {
		return
	}
	m.invoicesCancelled.Inc(ctx, AttrTenantID.String(tenantID))
}

// RecordPayment counts an applied payment. status is the invoice status after it.
func (m *LedgerMetrics) RecordPayment(ctx context.Context, tenantID, status string, amount float64, overpaid bool) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrTenantID.String(tenantID), AttrInvoiceStatus.String(status)}
	m.paymentsRecorded.Inc(ctx, attrs...)
	m.paymentAmount.Record(ctx, amount, AttrTenantID.String(tenantID))
	if overpaid {
		m.overpayments.Inc(ctx, AttrTenantID.String(tenantID))
	}
}

func (m *LedgerMetrics) RecordConflictRetry(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.conflictRetries.Inc(ctx, AttrOperation.String(operation))
}

func (m *LedgerMetrics) RecordOverdue(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.overdueInstallments.Add(ctx, int64(count))
}

func (m *LedgerMetrics) RecordCreditScore(ctx context.Context, score int, riskLevel string) {
	if m == nil {
		return
	}
	m.creditScore.Record(ctx, float64(score), AttrRiskLevel.String(riskLevel))
}

// RecordGateDecision counts an authorization outcome. reason is empty when allowed.
func (m *LedgerMetrics) RecordGateDecision(ctx context.Context, allowed bool, reason string) {
	if m == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	m.gateDecisions.Inc(ctx, AttrDecision.String(decision), AttrReason.String(reason))
}

func (m *LedgerMetrics) RecordDuration(ctx context.Context, operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.operationDuration.RecordDuration(ctx, d, AttrOperation.String(operation))
}
