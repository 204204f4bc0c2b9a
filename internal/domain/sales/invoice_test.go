package sales

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testTenantID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	testActorID  = uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	saleDate     = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
)

func assertDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	var de *shared.DomainError
	require.True(t, errors.As(err, &de), "expected DomainError, got %T: %v", err, err)
	assert.Equal(t, code, de.Code)
}

func singleItem(price string) []InvoiceItem {
	return []InvoiceItem{{
		ProductID:   uuid.New(),
		ProductName: "Sofa",
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   d(price),
	}}
}

func newDeferredInvoice(t *testing.T, total string) *Invoice {
	t.Helper()
	inv, err := NewInvoice(NewInvoiceParams{
		TenantID:       testTenantID,
		CustomerID:     uuid.New(),
		CreatedBy:      testActorID,
		InvoiceNumber:  "INV-0001",
		Items:          singleItem(total),
		PaymentMethod:  PaymentMethodDeferred,
		Now:            saleDate,
		MinorUnitScale: DefaultMinorUnitScale,
	})
	require.NoError(t, err)
	return inv
}

func newInstallmentInvoice(t *testing.T, total, down string, n int) *Invoice {
	t.Helper()
	inv, err := NewInvoice(NewInvoiceParams{
		TenantID:      testTenantID,
		CustomerID:    uuid.New(),
		CreatedBy:     testActorID,
		InvoiceNumber: "INV-0002",
		Items:         singleItem(total),
		PaymentMethod: PaymentMethodInstallment,
		Installment: &InstallmentConfig{
			NumberOfInstallments: n,
			Frequency:            FrequencyMonthly,
			DownPayment:          d(down),
			StartDate:            saleDate,
		},
		Now:            saleDate,
		MinorUnitScale: DefaultMinorUnitScale,
	})
	require.NoError(t, err)
	return inv
}

func pay(amount string) PaymentInput {
	return PaymentInput{Amount: d(amount), Method: PaymentChannelCash, RecordedBy: testActorID}
}

func eventsOfType(inv *Invoice, eventType string) []shared.DomainEvent {
	var out []shared.DomainEvent
	for _, e := range inv.GetDomainEvents() {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// ==================== Creation ====================

func TestNewInvoice(t *testing.T) {
	t.Run("computes totals from items and discount", func(t *testing.T) {
		inv, err := NewInvoice(NewInvoiceParams{
			TenantID:      testTenantID,
			CustomerID:    uuid.New(),
			InvoiceNumber: "INV-1",
			Items: []InvoiceItem{
				{ProductID: uuid.New(), Quantity: d("2"), UnitPrice: d("150.50"), LineTotal: d("9999")},
				{ProductID: uuid.New(), Quantity: d("3"), UnitPrice: d("10")},
			},
			Discount:       d("11"),
			PaymentMethod:  PaymentMethodDeferred,
			Now:            saleDate,
			MinorUnitScale: DefaultMinorUnitScale,
		})

		require.NoError(t, err)
		assert.True(t, inv.Items[0].LineTotal.Equal(d("301")), "line total is recomputed, not trusted")
		assert.True(t, inv.Subtotal.Equal(d("331")))
		assert.True(t, inv.TotalAmount.Equal(d("320")))
		assert.True(t, inv.RemainingAmount.Equal(d("320")))
		assert.Equal(t, InvoiceStatusPending, inv.Status)
		assert.Equal(t, 1, inv.Version)
		require.Len(t, inv.GetDomainEvents(), 1)
		assert.Equal(t, EventTypeInvoiceCreated, inv.GetDomainEvents()[0].EventType())
	})

	t.Run("cash sale is settled at creation", func(t *testing.T) {
		inv, err := NewInvoice(NewInvoiceParams{
			TenantID:       testTenantID,
			CustomerID:     uuid.New(),
			InvoiceNumber:  "INV-2",
			Items:          singleItem("45"),
			PaymentMethod:  PaymentMethodCash,
			Now:            saleDate,
			MinorUnitScale: DefaultMinorUnitScale,
		})

		require.NoError(t, err)
		assert.Equal(t, InvoiceStatusPaid, inv.Status)
		assert.True(t, inv.RemainingAmount.IsZero())
		require.Len(t, inv.Payments, 1)
		assert.NoError(t, inv.CheckLedger())
	})

	t.Run("installment sale captures down payment", func(t *testing.T) {
		inv := newInstallmentInvoice(t, "900", "100", 3)

		assert.Equal(t, InvoiceStatusPartiallyPaid, inv.Status)
		assert.True(t, inv.PaidAmount.Equal(d("100")))
		assert.True(t, inv.RemainingAmount.Equal(d("800")))
		require.Len(t, inv.Payments, 1)
		assert.Equal(t, "down payment", inv.Payments[0].Reference)
		assert.NoError(t, inv.CheckLedger())
	})

	t.Run("installment sale without down payment starts pending", func(t *testing.T) {
		inv := newInstallmentInvoice(t, "600", "0", 6)

		assert.Equal(t, InvoiceStatusPending, inv.Status)
		assert.Empty(t, inv.Payments)
		assert.Len(t, inv.Installments, 6)
	})

	t.Run("whole-unit currency keeps installments integral", func(t *testing.T) {
		inv, err := NewInvoice(NewInvoiceParams{
			TenantID:      testTenantID,
			CustomerID:    uuid.New(),
			InvoiceNumber: "INV-4",
			Items:         singleItem("900"),
			PaymentMethod: PaymentMethodInstallment,
			Installment: &InstallmentConfig{
				NumberOfInstallments: 3,
				Frequency:            FrequencyMonthly,
				DownPayment:          d("100"),
				StartDate:            saleDate,
			},
			Now:            saleDate,
			MinorUnitScale: 0,
		})

		require.NoError(t, err)
		require.Len(t, inv.Installments, 3)
		assert.True(t, inv.Installments[0].Amount.Equal(d("266")))
		assert.True(t, inv.Installments[1].Amount.Equal(d("266")))
		assert.True(t, inv.Installments[2].Amount.Equal(d("268")))
		assert.True(t, inv.Installments.TotalAmount().Equal(d("800")))
	})

	t.Run("negative scale falls back to cents", func(t *testing.T) {
		inv, err := NewInvoice(NewInvoiceParams{
			TenantID:      testTenantID,
			CustomerID:    uuid.New(),
			InvoiceNumber: "INV-5",
			Items:         singleItem("900"),
			PaymentMethod: PaymentMethodInstallment,
			Installment: &InstallmentConfig{
				NumberOfInstallments: 3,
				Frequency:            FrequencyMonthly,
				DownPayment:          d("100"),
				StartDate:            saleDate,
			},
			Now:            saleDate,
			MinorUnitScale: -1,
		})

		require.NoError(t, err)
		assert.True(t, inv.Installments[0].Amount.Equal(d("266.66")))
		assert.True(t, inv.Installments[2].Amount.Equal(d("266.68")))
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		base := func() NewInvoiceParams {
			return NewInvoiceParams{
				TenantID:       testTenantID,
				CustomerID:     uuid.New(),
				InvoiceNumber:  "INV-3",
				Items:          singleItem("100"),
				PaymentMethod:  PaymentMethodDeferred,
				Now:            saleDate,
				MinorUnitScale: DefaultMinorUnitScale,
			}
		}
		tests := []struct {
			name   string
			mutate func(p *NewInvoiceParams)
			code   string
		}{
			{"missing customer", func(p *NewInvoiceParams) { p.CustomerID = uuid.Nil }, "INVALID_CUSTOMER"},
			{"no items", func(p *NewInvoiceParams) { p.Items = nil }, "NO_ITEMS"},
			{"zero quantity", func(p *NewInvoiceParams) { p.Items[0].Quantity = decimal.Zero }, "INVALID_QUANTITY"},
			{"negative discount", func(p *NewInvoiceParams) { p.Discount = d("-1") }, "INVALID_DISCOUNT"},
			{"discount above subtotal", func(p *NewInvoiceParams) { p.Discount = d("101") }, "INVALID_DISCOUNT"},
			{"discount equal to subtotal", func(p *NewInvoiceParams) { p.Discount = d("100") }, "INVALID_AMOUNT"},
			{"unknown method", func(p *NewInvoiceParams) { p.PaymentMethod = "BARTER" }, "INVALID_PAYMENT_METHOD"},
			{"installment without config", func(p *NewInvoiceParams) { p.PaymentMethod = PaymentMethodInstallment }, "MISSING_INSTALLMENT_CONFIG"},
			{"config on deferred sale", func(p *NewInvoiceParams) {
				p.Installment = &InstallmentConfig{NumberOfInstallments: 2, Frequency: FrequencyMonthly}
			}, "UNEXPECTED_INSTALLMENT_CONFIG"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p := base()
				tt.mutate(&p)
				inv, err := NewInvoice(p)
				assert.Nil(t, inv)
				require.Error(t, err)
				assert.True(t, shared.IsValidation(err))
				assertDomainCode(t, err, tt.code)
			})
		}
	})
}

// ==================== Payment allocation ====================

func TestInvoice_PayAllRemaining_DeferredSale(t *testing.T) {
	inv := newDeferredInvoice(t, "2000")

	alloc, err := inv.PayAllRemaining(testActorID, saleDate.AddDate(0, 0, 3))

	require.NoError(t, err)
	assert.True(t, alloc.Payment.Amount.Equal(d("2000")))
	assert.Equal(t, "full settlement", alloc.Payment.Reference)
	assert.Equal(t, 0, alloc.DaysLate)
	assert.True(t, inv.RemainingAmount.IsZero())
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	assert.NotNil(t, inv.PaidAt)
	assert.Len(t, eventsOfType(inv, EventTypePaymentRecorded), 1)
	assert.Len(t, eventsOfType(inv, EventTypeInvoicePaid), 1)

	_, err = inv.PayAllRemaining(testActorID, saleDate.AddDate(0, 0, 4))
	assertDomainCode(t, err, "INVOICE_ALREADY_SETTLED")
}

func TestInvoice_InstallmentScheduleOnCreation(t *testing.T) {
	inv := newInstallmentInvoice(t, "900", "100", 3)

	require.Len(t, inv.Installments, 3)
	assert.True(t, inv.Installments.TotalAmount().Equal(d("800")))
	for i := 1; i < len(inv.Installments); i++ {
		assert.Equal(t, inv.Installments[i-1].DueDate.AddDate(0, 1, 0), inv.Installments[i].DueDate)
	}
}

func TestInvoice_RecordPayment_PartialFirstInstallment(t *testing.T) {
	inv := newInstallmentInvoice(t, "900", "100", 3)
	paidBefore := inv.PaidAmount

	alloc, err := inv.RecordPayment(pay("150"), saleDate.AddDate(0, 0, 10), OverpaymentReject)

	require.NoError(t, err)
	assert.Equal(t, InstallmentStatusPartiallyPaid, inv.Installments[0].Status)
	assert.True(t, inv.Installments[0].PaidAmount.Equal(d("150")))
	assert.Equal(t, InstallmentStatusPending, inv.Installments[1].Status)
	assert.True(t, inv.PaidAmount.Sub(paidBefore).Equal(d("150")))
	assert.Equal(t, InvoiceStatusPartiallyPaid, inv.Status)
	require.Len(t, alloc.Allocations, 1)
	assert.Equal(t, 1, alloc.Allocations[0].InstallmentNumber)
	assert.NoError(t, inv.CheckLedger())
}

func TestInvoice_RecordPayment_SpansInstallmentsInDueOrder(t *testing.T) {
	inv := newInstallmentInvoice(t, "900", "0", 3) // 300 each
	now := saleDate.AddDate(0, 0, 5)

	alloc, err := inv.RecordPayment(pay("450"), now, OverpaymentReject)

	require.NoError(t, err)
	require.Len(t, alloc.Allocations, 2)
	assert.Equal(t, InstallmentStatusPaid, inv.Installments[0].Status)
	require.NotNil(t, inv.Installments[0].PaidDate)
	assert.True(t, inv.Installments[0].PaidDate.Equal(now))
	assert.Equal(t, InstallmentStatusPartiallyPaid, inv.Installments[1].Status)
	assert.True(t, inv.Installments[1].PaidAmount.Equal(d("150")))
	assert.True(t, inv.Installments[2].PaidAmount.IsZero())

	_, err = inv.RecordPayment(pay("450"), now, OverpaymentReject)
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	for _, inst := range inv.Installments {
		assert.Equal(t, InstallmentStatusPaid, inst.Status)
	}
	assert.NoError(t, inv.CheckLedger())
}

func TestInvoice_RecordPayment_DaysLate(t *testing.T) {
	inv := newInstallmentInvoice(t, "900", "0", 3)
	firstDue := inv.Installments[0].DueDate

	t.Run("late against the installment that took the largest share", func(t *testing.T) {
		inv.ClearDomainEvents()
		alloc, err := inv.RecordPayment(pay("310"), firstDue.AddDate(0, 0, 12), OverpaymentReject)

		require.NoError(t, err)
		assert.Equal(t, 12, alloc.DaysLate)
		events := eventsOfType(inv, EventTypePaymentRecorded)
		require.Len(t, events, 1)
		recorded := events[0].(*PaymentRecordedEvent)
		assert.Equal(t, 12, recorded.DaysLate)
		assert.Equal(t, inv.CustomerID, recorded.CustomerID)
		assert.True(t, recorded.Amount.Equal(d("310")))
	})

	t.Run("early payment is never late", func(t *testing.T) {
		inv2 := newInstallmentInvoice(t, "900", "0", 3)
		alloc, err := inv2.RecordPayment(pay("100"), saleDate, OverpaymentReject)

		require.NoError(t, err)
		assert.Equal(t, 0, alloc.DaysLate)
	})

	t.Run("non installment invoices report zero", func(t *testing.T) {
		inv3 := newDeferredInvoice(t, "500")
		alloc, err := inv3.RecordPayment(pay("100"), saleDate.AddDate(1, 0, 0), OverpaymentReject)

		require.NoError(t, err)
		assert.Equal(t, 0, alloc.DaysLate)
	})
}

func TestInvoice_RecordPayment_Rejections(t *testing.T) {
	t.Run("non positive amount leaves invoice untouched", func(t *testing.T) {
		inv := newInstallmentInvoice(t, "900", "100", 3)
		version := inv.Version
		paid := inv.PaidAmount

		for _, amount := range []string{"0", "-5"} {
			_, err := inv.RecordPayment(pay(amount), saleDate, OverpaymentReject)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
		}
		assert.Equal(t, version, inv.Version)
		assert.True(t, inv.PaidAmount.Equal(paid))
		assert.Len(t, inv.Payments, 1)
	})

	t.Run("cancelled invoice rejects payments", func(t *testing.T) {
		inv := newDeferredInvoice(t, "100")
		require.NoError(t, inv.Cancel("customer changed mind", saleDate))

		_, err := inv.RecordPayment(pay("10"), saleDate, OverpaymentReject)

		require.Error(t, err)
		assert.True(t, shared.IsBusinessRule(err))
		assertDomainCode(t, err, "INVOICE_CANCELLED")
		assert.Empty(t, inv.Payments)
	})

	t.Run("overpayment rejected by default policy", func(t *testing.T) {
		inv := newDeferredInvoice(t, "100")

		_, err := inv.RecordPayment(pay("100.01"), saleDate, OverpaymentReject)

		require.Error(t, err)
		assertDomainCode(t, err, "PAYMENT_EXCEEDS_REMAINING")
		assert.True(t, inv.PaidAmount.IsZero())
	})

	t.Run("overpayment kept as unallocated credit when allowed", func(t *testing.T) {
		inv := newInstallmentInvoice(t, "300", "0", 3)

		alloc, err := inv.RecordPayment(pay("350"), saleDate, OverpaymentAllow)

		require.NoError(t, err)
		assert.True(t, alloc.Unallocated.Equal(d("50")))
		assert.True(t, inv.UnallocatedAmount.Equal(d("50")))
		assert.True(t, inv.PaidAmount.Equal(d("350")))
		assert.True(t, inv.RemainingAmount.IsZero())
		assert.Equal(t, InvoiceStatusPaid, inv.Status)
		assert.NoError(t, inv.CheckLedger())
	})

	t.Run("unknown payment channel", func(t *testing.T) {
		inv := newDeferredInvoice(t, "100")
		in := pay("10")
		in.Method = "GOLD_BARS"

		_, err := inv.RecordPayment(in, saleDate, OverpaymentReject)

		assertDomainCode(t, err, "INVALID_PAYMENT_CHANNEL")
	})
}

// ==================== State machine ====================

func TestInvoice_RecomputeState_Overdue(t *testing.T) {
	t.Run("pending installment past due becomes overdue", func(t *testing.T) {
		inv := newInstallmentInvoice(t, "900", "100", 3)
		inv.ClearDomainEvents()
		afterFirstDue := inv.Installments[0].DueDate.AddDate(0, 0, 1)

		flipped := inv.RecomputeState(afterFirstDue)

		require.Len(t, flipped, 1)
		assert.Equal(t, 1, flipped[0].Number)
		assert.Equal(t, InstallmentStatusOverdue, inv.Installments[0].Status)
		assert.Equal(t, InstallmentStatusPending, inv.Installments[1].Status)
		assert.Equal(t, InvoiceStatusOverdue, inv.Status)
		assert.Len(t, eventsOfType(inv, EventTypeInstallmentOverdue), 1)
	})

	t.Run("due date itself is not overdue", func(t *testing.T) {
		inv := newInstallmentInvoice(t, "900", "100", 3)

		flipped := inv.RecomputeState(inv.Installments[0].DueDate.Add(10 * time.Hour))

		assert.Empty(t, flipped)
		assert.Equal(t, InvoiceStatusPartiallyPaid, inv.Status)
	})

	t.Run("recompute is idempotent", func(t *testing.T) {
		inv := newInstallmentInvoice(t, "900", "100", 3)
		later := inv.Installments[1].DueDate.AddDate(0, 0, 2)

		first := inv.RecomputeState(later)
		snapshot := append(Installments(nil), inv.Installments...)
		status := inv.Status
		second := inv.RecomputeState(later)

		assert.Len(t, first, 2)
		assert.Empty(t, second)
		assert.Equal(t, status, inv.Status)
		assert.Equal(t, snapshot, inv.Installments)
	})

	t.Run("paid invoice never turns overdue", func(t *testing.T) {
		inv := newInstallmentInvoice(t, "900", "100", 3)
		_, err := inv.PayAllRemaining(testActorID, saleDate)
		require.NoError(t, err)

		flipped := inv.RecomputeState(saleDate.AddDate(2, 0, 0))

		assert.Empty(t, flipped)
		assert.Equal(t, InvoiceStatusPaid, inv.Status)
	})

	t.Run("partial payment on overdue installment keeps it overdue", func(t *testing.T) {
		inv := newInstallmentInvoice(t, "900", "0", 3)
		late := inv.Installments[0].DueDate.AddDate(0, 0, 5)
		inv.RecomputeState(late)
		inv.ClearDomainEvents()

		_, err := inv.RecordPayment(pay("100"), late, OverpaymentReject)

		require.NoError(t, err)
		assert.Equal(t, InstallmentStatusOverdue, inv.Installments[0].Status)
		assert.Equal(t, InvoiceStatusOverdue, inv.Status)
		assert.Empty(t, eventsOfType(inv, EventTypeInstallmentOverdue))
	})

	t.Run("settling the overdue installment clears invoice overdue", func(t *testing.T) {
		inv := newInstallmentInvoice(t, "900", "0", 3)
		late := inv.Installments[0].DueDate.AddDate(0, 0, 5)
		inv.RecomputeState(late)

		_, err := inv.RecordPayment(pay("300"), late, OverpaymentReject)

		require.NoError(t, err)
		assert.Equal(t, InstallmentStatusPaid, inv.Installments[0].Status)
		assert.Equal(t, InvoiceStatusPartiallyPaid, inv.Status)
	})

	t.Run("refresh overdue bumps version only on change", func(t *testing.T) {
		inv := newInstallmentInvoice(t, "900", "0", 3)
		version := inv.Version

		assert.False(t, inv.RefreshOverdue(saleDate))
		assert.Equal(t, version, inv.Version)
		assert.True(t, inv.RefreshOverdue(inv.Installments[0].DueDate.AddDate(0, 0, 1)))
		assert.Equal(t, version+1, inv.Version)
	})
}

func TestInvoice_Cancel(t *testing.T) {
	t.Run("cancels partially paid invoice", func(t *testing.T) {
		inv := newInstallmentInvoice(t, "900", "100", 3)
		inv.ClearDomainEvents()

		require.NoError(t, inv.Cancel("returned goods", saleDate))

		assert.Equal(t, InvoiceStatusCancelled, inv.Status)
		assert.NotNil(t, inv.CancelledAt)
		events := eventsOfType(inv, EventTypeInvoiceCancelled)
		require.Len(t, events, 1)
		assert.True(t, events[0].(*InvoiceCancelledEvent).RemainingAmount.Equal(d("800")))
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		inv := newDeferredInvoice(t, "100")
		require.NoError(t, inv.Cancel("", saleDate))

		assertDomainCode(t, inv.Cancel("again", saleDate), "INVOICE_CANCELLED")
		assert.Empty(t, inv.RecomputeState(saleDate.AddDate(1, 0, 0)))
		assert.Equal(t, InvoiceStatusCancelled, inv.Status)
	})

	t.Run("paid invoice cannot be cancelled", func(t *testing.T) {
		inv := newDeferredInvoice(t, "100")
		_, err := inv.PayAllRemaining(testActorID, saleDate)
		require.NoError(t, err)

		assertDomainCode(t, inv.Cancel("too late", saleDate), "INVOICE_PAID")
	})
}

// ==================== Ledger properties ====================

func TestInvoice_LedgerReconcilesUnderRandomPayments(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		n := 1 + rng.Intn(12)
		total := decimal.NewFromInt(int64(100 + rng.Intn(100000))).Div(decimal.NewFromInt(100))
		down := total.Mul(decimal.NewFromInt(int64(rng.Intn(50)))).Div(decimal.NewFromInt(100)).RoundFloor(2)
		inv := newInstallmentInvoice(t, total.String(), down.String(), n)
		require.NoError(t, inv.CheckLedger())

		now := saleDate
		previous := make([]decimal.Decimal, len(inv.Installments))
		for i, inst := range inv.Installments {
			previous[i] = inst.PaidAmount
		}

		for inv.RemainingAmount.IsPositive() {
			now = now.AddDate(0, 0, rng.Intn(40))
			cents := inv.RemainingAmount.Mul(decimal.NewFromInt(100)).IntPart()
			amount := decimal.NewFromInt(1 + rng.Int63n(cents)).Div(decimal.NewFromInt(100))

			_, err := inv.RecordPayment(PaymentInput{Amount: amount, Method: PaymentChannelBankTransfer, RecordedBy: testActorID}, now, OverpaymentReject)
			require.NoError(t, err)
			require.NoError(t, inv.CheckLedger())
			assert.True(t, inv.RemainingAmount.Equal(decimal.Max(decimal.Zero, inv.TotalAmount.Sub(inv.PaidAmount))))

			for i, inst := range inv.Installments {
				assert.True(t, inst.PaidAmount.GreaterThanOrEqual(previous[i]), "installment paid amount decreased")
				assert.True(t, inst.PaidAmount.LessThanOrEqual(inst.Amount))
				previous[i] = inst.PaidAmount
			}
		}

		assert.Equal(t, InvoiceStatusPaid, inv.Status)
		assert.True(t, inv.PaidAmount.Equal(inv.TotalAmount))
	}
}

func TestInvoice_OverdueCheckDate(t *testing.T) {
	t.Run("deferred sale has nothing to watch", func(t *testing.T) {
		inv := newDeferredInvoice(t, "500")

		assert.Nil(t, inv.OverdueCheckDate())
	})

	t.Run("moves past installments once they turn overdue", func(t *testing.T) {
		inv := newInstallmentInvoice(t, "900", "0", 3)
		require.NotNil(t, inv.OverdueCheckDate())
		assert.Equal(t, inv.Installments[0].DueDate, *inv.OverdueCheckDate())

		inv.RecomputeState(inv.Installments[0].DueDate.AddDate(0, 0, 1))

		require.NotNil(t, inv.OverdueCheckDate())
		assert.Equal(t, inv.Installments[1].DueDate, *inv.OverdueCheckDate())
	})

	t.Run("cancelled invoice has nothing to watch", func(t *testing.T) {
		inv := newInstallmentInvoice(t, "900", "0", 3)
		require.NoError(t, inv.Cancel("customer returned goods", saleDate))

		assert.Nil(t, inv.OverdueCheckDate())
	})
}

func TestOverdueCutoff(t *testing.T) {
	now := time.Date(2024, 3, 5, 18, 45, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), OverdueCutoff(now))
}
