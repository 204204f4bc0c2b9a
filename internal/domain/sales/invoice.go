package sales

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Invoice is the aggregate root of a single sale and owns its payment ledger.
//
// The ledger is PaidAmount, Payments and Installments[].PaidAmount. All three are
// mutated together inside RecordPayment and must always reconcile:
//
//	PaidAmount == Payments.Total()
//	PaidAmount == DownPayment + Installments.TotalPaid() + UnallocatedAmount  (installment sales)
type Invoice struct {
	shared.TenantAggregateRoot
	InvoiceNumber     string             `json:"invoice_number"`
	CustomerID        uuid.UUID          `json:"customer_id"`
	Items             InvoiceItems       `json:"items"`
	Subtotal          decimal.Decimal    `json:"subtotal"`
	Discount          decimal.Decimal    `json:"discount"`
	TotalAmount       decimal.Decimal    `json:"total_amount"`
	PaidAmount        decimal.Decimal    `json:"paid_amount"`
	RemainingAmount   decimal.Decimal    `json:"remaining_amount"`
	UnallocatedAmount decimal.Decimal    `json:"unallocated_amount"`
	PaymentMethod     PaymentMethod      `json:"payment_method"`
	InstallmentConfig *InstallmentConfig `json:"installment_config,omitempty"`
	Installments      Installments       `json:"installments"`
	Payments          PaymentRecords     `json:"payments"`
	Status            InvoiceStatus      `json:"status"`
	PaidAt            *time.Time         `json:"paid_at,omitempty"`
	CancelledAt       *time.Time         `json:"cancelled_at,omitempty"`
	CancelReason      string             `json:"cancel_reason,omitempty"`
}

// NewInvoiceParams carries everything needed to open an invoice
type NewInvoiceParams struct {
	TenantID      uuid.UUID
	CustomerID    uuid.UUID
	CreatedBy     uuid.UUID
	InvoiceNumber string
	Items         []InvoiceItem
	Discount      decimal.Decimal
	PaymentMethod PaymentMethod
	Installment   *InstallmentConfig
	// MinorUnitScale is the number of decimals money is rounded to. Zero keeps whole
	// currency units; a negative value falls back to DefaultMinorUnitScale.
	MinorUnitScale int32
	Now            time.Time
}

// PaymentInput describes a payment handed over by the customer
type PaymentInput struct {
	Amount     decimal.Decimal
	Method     PaymentChannel
	Reference  string
	RecordedBy uuid.UUID
}

// InstallmentAllocation is the share of a payment applied to one installment
type InstallmentAllocation struct {
	InstallmentNumber int             `json:"installment_number"`
	Amount            decimal.Decimal `json:"amount"`
}

// PaymentAllocation is the outcome of RecordPayment
type PaymentAllocation struct {
	Payment     PaymentRecord           `json:"payment"`
	Allocations []InstallmentAllocation `json:"allocations"`
	Unallocated decimal.Decimal         `json:"unallocated"`
	DaysLate    int                     `json:"days_late"`
}

// NewInvoice creates an invoice for a sale.
// Cash sales are settled in full at the counter. Installment sales capture the down
// payment as the first payment of the log and get their schedule generated here.
func NewInvoice(p NewInvoiceParams) (*Invoice, error) {
	if p.CustomerID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if p.InvoiceNumber == "" {
		return nil, shared.NewValidationError("INVALID_INVOICE_NUMBER", "Invoice number cannot be empty")
	}
	if len(p.Items) == 0 {
		return nil, shared.NewValidationError("NO_ITEMS", "Invoice must have at least one item")
	}
	if !p.PaymentMethod.IsValid() {
		return nil, shared.NewValidationError("INVALID_PAYMENT_METHOD", fmt.Sprintf("Unsupported payment method: %s", p.PaymentMethod))
	}
	if p.Discount.IsNegative() {
		return nil, shared.NewValidationError("INVALID_DISCOUNT", "Discount cannot be negative")
	}
	if p.PaymentMethod == PaymentMethodInstallment && p.Installment == nil {
		return nil, shared.NewValidationError("MISSING_INSTALLMENT_CONFIG", "Installment sales require installment parameters")
	}
	if p.PaymentMethod != PaymentMethodInstallment && p.Installment != nil {
		return nil, shared.NewValidationError("UNEXPECTED_INSTALLMENT_CONFIG", "Installment parameters are only valid for installment sales")
	}
	scale := p.MinorUnitScale
	if scale < 0 {
		scale = DefaultMinorUnitScale
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	items := make(InvoiceItems, 0, len(p.Items))
	for i, item := range p.Items {
		if item.ProductID == uuid.Nil {
			return nil, shared.NewValidationError("INVALID_PRODUCT", fmt.Sprintf("Item %d has no product", i+1))
		}
		if item.Quantity.LessThanOrEqual(decimal.Zero) {
			return nil, shared.NewValidationError("INVALID_QUANTITY", fmt.Sprintf("Item %d quantity must be positive", i+1))
		}
		if item.UnitPrice.IsNegative() {
			return nil, shared.NewValidationError("INVALID_UNIT_PRICE", fmt.Sprintf("Item %d unit price cannot be negative", i+1))
		}
		item.LineTotal = item.Quantity.Mul(item.UnitPrice).Round(scale)
		items = append(items, item)
	}

	subtotal := items.Subtotal()
	if p.Discount.GreaterThan(subtotal) {
		return nil, shared.NewValidationError("INVALID_DISCOUNT", "Discount cannot exceed the subtotal")
	}
	total := subtotal.Sub(p.Discount)
	if total.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Invoice total must be positive")
	}

	inv := &Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRootWithCreator(p.TenantID, p.CreatedBy, now),
		InvoiceNumber:       p.InvoiceNumber,
		CustomerID:          p.CustomerID,
		Items:               items,
		Subtotal:            subtotal,
		Discount:            p.Discount,
		TotalAmount:         total,
		PaidAmount:          decimal.Zero,
		UnallocatedAmount:   decimal.Zero,
		PaymentMethod:       p.PaymentMethod,
		Installments:        Installments{},
		Payments:            PaymentRecords{},
		Status:              InvoiceStatusPending,
	}

	switch p.PaymentMethod {
	case PaymentMethodInstallment:
		cfg := *p.Installment
		if cfg.DownPayment.IsNegative() {
			return nil, shared.NewValidationError("INVALID_DOWN_PAYMENT", "Down payment cannot be negative")
		}
		if cfg.StartDate.IsZero() {
			cfg.StartDate = now
		}
		schedule, err := GenerateInstallmentSchedule(total, cfg.DownPayment, cfg.NumberOfInstallments, cfg.Frequency, cfg.StartDate, scale)
		if err != nil {
			return nil, err
		}
		inv.InstallmentConfig = &cfg
		inv.Installments = schedule
		if cfg.DownPayment.IsPositive() {
			inv.appendPayment(cfg.DownPayment, PaymentChannelCash, "down payment", p.CreatedBy, now)
		}
	case PaymentMethodCash:
		inv.appendPayment(total, PaymentChannelCash, "cash sale", p.CreatedBy, now)
	}

	inv.RecomputeState(now)
	inv.ClearDomainEvents()
	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv, now))

	return inv, nil
}

// RecordPayment applies a payment to the ledger and its installments in due-date order.
// Validation happens before any field is touched, so a rejected payment leaves the
// invoice exactly as it was.
func (inv *Invoice) RecordPayment(in PaymentInput, now time.Time, policy OverpaymentPolicy) (*PaymentAllocation, error) {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if in.Method == "" {
		in.Method = PaymentChannelCash
	}
	if !in.Method.IsValid() {
		return nil, shared.NewValidationError("INVALID_PAYMENT_CHANNEL", fmt.Sprintf("Unsupported payment method: %s", in.Method))
	}
	if inv.Status == InvoiceStatusCancelled {
		return nil, shared.NewBusinessRuleError("INVOICE_CANCELLED", "Cannot record a payment on a cancelled invoice")
	}
	if in.Amount.GreaterThan(inv.RemainingAmount) && policy != OverpaymentAllow {
		return nil, shared.NewBusinessRuleError("PAYMENT_EXCEEDS_REMAINING",
			fmt.Sprintf("Payment amount %s exceeds remaining balance %s", in.Amount.StringFixed(2), inv.RemainingAmount.StringFixed(2)))
	}

	payment := inv.appendPayment(in.Amount, in.Method, in.Reference, in.RecordedBy, now)
	allocations, principal := inv.allocate(in.Amount, now)

	allocated := decimal.Zero
	for _, a := range allocations {
		allocated = allocated.Add(a.Amount)
	}
	unallocated := decimal.Zero
	if len(inv.Installments) > 0 {
		unallocated = in.Amount.Sub(allocated)
	} else if inv.PaidAmount.GreaterThan(inv.TotalAmount) {
		unallocated = decimal.Min(in.Amount, inv.PaidAmount.Sub(inv.TotalAmount))
	}
	inv.UnallocatedAmount = inv.UnallocatedAmount.Add(unallocated)

	wasPaid := inv.Status == InvoiceStatusPaid
	inv.RecomputeState(now)

	daysLate := 0
	if principal != nil {
		daysLate = principal.DaysLate(now)
	}

	inv.Touch(now)
	inv.IncrementVersion()
	inv.AddDomainEvent(NewPaymentRecordedEvent(inv, payment, daysLate))
	if !wasPaid && inv.Status == InvoiceStatusPaid {
		inv.AddDomainEvent(NewInvoicePaidEvent(inv, now))
	}

	return &PaymentAllocation{
		Payment:     payment,
		Allocations: allocations,
		Unallocated: unallocated,
		DaysLate:    daysLate,
	}, nil
}

// PayAllRemaining settles the whole remaining balance in cash
func (inv *Invoice) PayAllRemaining(actor uuid.UUID, now time.Time) (*PaymentAllocation, error) {
	if inv.Status == InvoiceStatusCancelled {
		return nil, shared.NewBusinessRuleError("INVOICE_CANCELLED", "Cannot record a payment on a cancelled invoice")
	}
	if !inv.RemainingAmount.IsPositive() {
		return nil, shared.NewBusinessRuleError("INVOICE_ALREADY_SETTLED", "Invoice has no remaining balance")
	}
	return inv.RecordPayment(PaymentInput{
		Amount:     inv.RemainingAmount,
		Method:     PaymentChannelCash,
		Reference:  "full settlement",
		RecordedBy: actor,
	}, now, OverpaymentReject)
}

// Cancel voids an invoice that is not yet paid. Cancellation is terminal.
// Payments already recorded stay in the log.
func (inv *Invoice) Cancel(reason string, now time.Time) error {
	if inv.Status == InvoiceStatusCancelled {
		return shared.NewBusinessRuleError("INVOICE_CANCELLED", "Invoice is already cancelled")
	}
	if inv.Status == InvoiceStatusPaid {
		return shared.NewBusinessRuleError("INVOICE_PAID", "Cannot cancel a paid invoice")
	}

	remaining := inv.RemainingAmount
	inv.Status = InvoiceStatusCancelled
	inv.CancelledAt = &now
	inv.CancelReason = reason
	inv.Touch(now)
	inv.IncrementVersion()
	inv.AddDomainEvent(NewInvoiceCancelledEvent(inv, remaining, now))
	return nil
}

// RefreshOverdue runs the state machine at now and reports whether anything changed.
// Used by the overdue sweep, which has no payment to trigger a recompute.
func (inv *Invoice) RefreshOverdue(now time.Time) bool {
	before := inv.Status
	flipped := inv.RecomputeState(now)
	if len(flipped) == 0 && before == inv.Status {
		return false
	}
	inv.Touch(now)
	inv.IncrementVersion()
	return true
}

// RecomputeState derives RemainingAmount, installment overdue flags and the invoice
// status from the ledger and the due dates as seen at now. It is idempotent: running
// it twice with the same ledger and instant yields the same state. It returns the
// installments that turned overdue in this run.
func (inv *Invoice) RecomputeState(now time.Time) []Installment {
	inv.Subtotal = inv.Items.Subtotal()
	inv.TotalAmount = inv.Subtotal.Sub(inv.Discount)
	inv.RemainingAmount = decimal.Max(decimal.Zero, inv.TotalAmount.Sub(inv.PaidAmount))

	if inv.Status == InvoiceStatusCancelled {
		return nil
	}

	settled := inv.PaidAmount.GreaterThanOrEqual(inv.TotalAmount)
	var flipped []Installment
	hasOverdue := false
	for i := range inv.Installments {
		inst := &inv.Installments[i]
		if inst.Status == InstallmentStatusPaid {
			continue
		}
		if settled || inst.PaidAmount.GreaterThanOrEqual(inst.Amount) {
			inst.Status = InstallmentStatusPaid
			if inst.PaidDate == nil {
				paidAt := now
				inst.PaidDate = &paidAt
			}
			continue
		}
		if (inst.Status == InstallmentStatusPending || inst.Status == InstallmentStatusPartiallyPaid) &&
			daysBetween(inst.DueDate, now) > 0 {
			inst.Status = InstallmentStatusOverdue
			flipped = append(flipped, *inst)
			inv.AddDomainEvent(NewInstallmentOverdueEvent(inv, *inst, now))
		}
		if inst.Status == InstallmentStatusOverdue {
			hasOverdue = true
		}
	}

	switch {
	case settled:
		inv.RemainingAmount = decimal.Zero
		if inv.Status != InvoiceStatusPaid {
			paidAt := now
			inv.PaidAt = &paidAt
		}
		inv.Status = InvoiceStatusPaid
	case hasOverdue:
		inv.Status = InvoiceStatusOverdue
	case inv.PaidAmount.IsPositive():
		inv.Status = InvoiceStatusPartiallyPaid
	default:
		inv.Status = InvoiceStatusPending
	}
	return flipped
}

// CheckLedger verifies that the ledger totals reconcile
func (inv *Invoice) CheckLedger() error {
	logged := inv.Payments.Total()
	if !inv.PaidAmount.Equal(logged) {
		return fmt.Errorf("paid amount %s does not match payment log total %s", inv.PaidAmount, logged)
	}
	expectedRemaining := decimal.Max(decimal.Zero, inv.TotalAmount.Sub(inv.PaidAmount))
	if !inv.RemainingAmount.Equal(expectedRemaining) {
		return fmt.Errorf("remaining amount %s, expected %s", inv.RemainingAmount, expectedRemaining)
	}
	if inv.InstallmentConfig == nil {
		return nil
	}
	financed := inv.TotalAmount.Sub(inv.InstallmentConfig.DownPayment)
	if scheduled := inv.Installments.TotalAmount(); !scheduled.Equal(financed) {
		return fmt.Errorf("installments sum to %s, financed amount is %s", scheduled, financed)
	}
	allocated := inv.InstallmentConfig.DownPayment.Add(inv.Installments.TotalPaid()).Add(inv.UnallocatedAmount)
	if !inv.PaidAmount.Equal(allocated) {
		return fmt.Errorf("paid amount %s does not match allocated total %s", inv.PaidAmount, allocated)
	}
	return nil
}

// IsCancelled returns true if the invoice was cancelled
func (inv *Invoice) IsCancelled() bool {
	return inv.Status == InvoiceStatusCancelled
}

// IsPaid returns true if the invoice is fully settled
func (inv *Invoice) IsPaid() bool {
	return inv.Status == InvoiceStatusPaid
}

// NextDueInstallment returns the earliest installment that still has money owed
func (inv *Invoice) NextDueInstallment() *Installment {
	for _, idx := range inv.installmentOrder() {
		if !inv.Installments[idx].IsPaid() {
			inst := inv.Installments[idx]
			return &inst
		}
	}
	return nil
}

// OverdueCheckDate is the earliest due date of an installment that can still turn
// overdue, or nil when none can. Repositories index it for the overdue sweep.
func (inv *Invoice) OverdueCheckDate() *time.Time {
	if !inv.Status.IsOpen() {
		return nil
	}
	var earliest *time.Time
	for i := range inv.Installments {
		inst := inv.Installments[i]
		if inst.Status != InstallmentStatusPending && inst.Status != InstallmentStatusPartiallyPaid {
			continue
		}
		if earliest == nil || inst.DueDate.Before(*earliest) {
			due := inst.DueDate
			earliest = &due
		}
	}
	return earliest
}

func (inv *Invoice) appendPayment(amount decimal.Decimal, method PaymentChannel, reference string, actor uuid.UUID, now time.Time) PaymentRecord {
	rec := PaymentRecord{
		ID:         uuid.New(),
		Amount:     amount,
		Date:       now,
		Method:     method,
		Reference:  reference,
		RecordedBy: actor,
	}
	inv.Payments = append(inv.Payments, rec)
	inv.PaidAmount = inv.PaidAmount.Add(amount)
	return rec
}

// allocate spreads amount over unpaid installments, earliest due first. It returns the
// per-installment shares and the installment that took the largest one.
func (inv *Invoice) allocate(amount decimal.Decimal, now time.Time) ([]InstallmentAllocation, *Installment) {
	remainder := amount
	var allocations []InstallmentAllocation
	var principal *Installment
	largest := decimal.Zero

	for _, idx := range inv.installmentOrder() {
		if !remainder.IsPositive() {
			break
		}
		inst := &inv.Installments[idx]
		if inst.IsPaid() {
			continue
		}
		share := decimal.Min(remainder, inst.Outstanding())
		if !share.IsPositive() {
			continue
		}
		inst.PaidAmount = inst.PaidAmount.Add(share)
		remainder = remainder.Sub(share)
		if inst.PaidAmount.GreaterThanOrEqual(inst.Amount) {
			inst.Status = InstallmentStatusPaid
			paidAt := now
			inst.PaidDate = &paidAt
		} else if inst.Status != InstallmentStatusOverdue {
			// a partial payment does not cure an overdue installment
			inst.Status = InstallmentStatusPartiallyPaid
		}
		allocations = append(allocations, InstallmentAllocation{InstallmentNumber: inst.Number, Amount: share})
		if share.GreaterThan(largest) {
			largest = share
			snapshot := *inst
			principal = &snapshot
		}
	}
	return allocations, principal
}

// installmentOrder returns installment indexes sorted by due date, then number
func (inv *Invoice) installmentOrder() []int {
	order := make([]int, len(inv.Installments))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := inv.Installments[order[a]], inv.Installments[order[b]]
		if !ia.DueDate.Equal(ib.DueDate) {
			return ia.DueDate.Before(ib.DueDate)
		}
		return ia.Number < ib.Number
	})
	return order
}
