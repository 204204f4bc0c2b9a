package sales

// InvoiceStatus represents the status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusPending       InvoiceStatus = "PENDING"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusOverdue       InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled     InvoiceStatus = "CANCELLED"
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusPartiallyPaid, InvoiceStatusPaid,
		InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true for states no payment can leave
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// IsOpen returns true while money is still expected on the invoice
func (s InvoiceStatus) IsOpen() bool {
	return s == InvoiceStatusPending || s == InvoiceStatusPartiallyPaid || s == InvoiceStatusOverdue
}

// InstallmentStatus represents the status of a single installment
type InstallmentStatus string

const (
	InstallmentStatusPending       InstallmentStatus = "PENDING"
	InstallmentStatusPartiallyPaid InstallmentStatus = "PARTIALLY_PAID"
	InstallmentStatusPaid          InstallmentStatus = "PAID"
	InstallmentStatusOverdue       InstallmentStatus = "OVERDUE"
)

// IsValid checks if the installment status is valid
func (s InstallmentStatus) IsValid() bool {
	switch s {
	case InstallmentStatusPending, InstallmentStatusPartiallyPaid,
		InstallmentStatusPaid, InstallmentStatusOverdue:
		return true
	}
	return false
}

// PaymentMethod is how the sale is settled: immediately, later, or over a schedule
type PaymentMethod string

const (
	PaymentMethodCash        PaymentMethod = "CASH"
	PaymentMethodDeferred    PaymentMethod = "DEFERRED"
	PaymentMethodInstallment PaymentMethod = "INSTALLMENT"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodDeferred, PaymentMethodInstallment:
		return true
	}
	return false
}

// IsCredit returns true when the sale extends credit to the customer
func (m PaymentMethod) IsCredit() bool {
	return m == PaymentMethodDeferred || m == PaymentMethodInstallment
}

// PaymentChannel is how a recorded payment was handed over
type PaymentChannel string

const (
	PaymentChannelCash         PaymentChannel = "CASH"
	PaymentChannelBankTransfer PaymentChannel = "BANK_TRANSFER"
	PaymentChannelCard         PaymentChannel = "CARD"
	PaymentChannelMobileMoney  PaymentChannel = "MOBILE_MONEY"
	PaymentChannelCheque       PaymentChannel = "CHEQUE"
)

// IsValid checks if the payment channel is valid
func (c PaymentChannel) IsValid() bool {
	switch c {
	case PaymentChannelCash, PaymentChannelBankTransfer, PaymentChannelCard,
		PaymentChannelMobileMoney, PaymentChannelCheque:
		return true
	}
	return false
}

// OverpaymentPolicy decides what happens when a payment exceeds the remaining balance
type OverpaymentPolicy string

const (
	// OverpaymentReject refuses the payment with a business rule error
	OverpaymentReject OverpaymentPolicy = "reject"
	// OverpaymentAllow accepts the payment and keeps the excess as unallocated credit
	OverpaymentAllow OverpaymentPolicy = "allow"
)

// IsValid checks if the policy is known
func (p OverpaymentPolicy) IsValid() bool {
	return p == OverpaymentReject || p == OverpaymentAllow
}
