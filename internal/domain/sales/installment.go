package sales

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/retail/ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// DefaultMinorUnitScale is the number of decimals of the smallest currency unit
const DefaultMinorUnitScale int32 = 2

// Frequency is the spacing between two installment due dates
type Frequency string

const (
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyBiweekly  Frequency = "BIWEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
)

// IsValid checks if the frequency is supported
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	}
	return false
}

// DueDate returns the due date of the k-th installment (1-indexed) counted from start
func (f Frequency) DueDate(start time.Time, k int) time.Time {
	switch f {
	case FrequencyWeekly:
		return start.AddDate(0, 0, 7*k)
	case FrequencyBiweekly:
		return start.AddDate(0, 0, 14*k)
	case FrequencyQuarterly:
		return addMonths(start, 3*k)
	default:
		return addMonths(start, k)
	}
}

// InstallmentConfig holds the financing terms of an installment sale
type InstallmentConfig struct {
	NumberOfInstallments int             `json:"number_of_installments"`
	Frequency            Frequency       `json:"frequency"`
	DownPayment          decimal.Decimal `json:"down_payment"`
	StartDate            time.Time       `json:"start_date"`
}

// Value implements driver.Valuer for JSONB storage
func (c InstallmentConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JSONB storage
func (c *InstallmentConfig) Scan(value interface{}) error {
	bytes, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan InstallmentConfig: %w", err)
	}
	if len(bytes) == 0 {
		*c = InstallmentConfig{}
		return nil
	}
	return json.Unmarshal(bytes, c)
}

// Installment is one scheduled partial payment of the financed balance.
// It is owned by the invoice and never referenced from outside it.
type Installment struct {
	Number     int               `json:"number"`
	Amount     decimal.Decimal   `json:"amount"`
	DueDate    time.Time         `json:"due_date"`
	Status     InstallmentStatus `json:"status"`
	PaidAmount decimal.Decimal   `json:"paid_amount"`
	PaidDate   *time.Time        `json:"paid_date,omitempty"`
}

// Outstanding returns what is still owed on the installment
func (i Installment) Outstanding() decimal.Decimal {
	out := i.Amount.Sub(i.PaidAmount)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// IsPaid returns true once the installment is fully covered
func (i Installment) IsPaid() bool {
	return i.Status == InstallmentStatusPaid
}

// DaysLate returns how many days past due the installment is at the given instant
func (i Installment) DaysLate(now time.Time) int {
	days := daysBetween(i.DueDate, now)
	if days < 0 {
		return 0
	}
	return days
}

// Installments is a slice of Installment that implements GORM Scanner/Valuer for JSONB storage
type Installments []Installment

// Value implements driver.Valuer interface for GORM to store as JSONB
func (s Installments) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (s *Installments) Scan(value interface{}) error {
	bytes, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan Installments: %w", err)
	}
	if len(bytes) == 0 {
		*s = Installments{}
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// TotalAmount sums the scheduled amounts
func (s Installments) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, inst := range s {
		total = total.Add(inst.Amount)
	}
	return total
}

// TotalPaid sums the amounts already allocated to installments
func (s Installments) TotalPaid() decimal.Decimal {
	total := decimal.Zero
	for _, inst := range s {
		total = total.Add(inst.PaidAmount)
	}
	return total
}

// GenerateInstallmentSchedule splits the financed part of total into n due-dated installments.
//
// financed = total - downPayment. The first n-1 installments get floor(financed/n) at the
// given minor-unit scale and the last one absorbs the remainder, so the amounts always sum
// to financed exactly. Installment k falls due at start + k*frequency.
func GenerateInstallmentSchedule(
	total, downPayment decimal.Decimal,
	n int,
	frequency Frequency,
	start time.Time,
	scale int32,
) (Installments, error) {
	if total.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Financed total must be positive")
	}
	if downPayment.IsNegative() {
		return nil, shared.NewValidationError("INVALID_DOWN_PAYMENT", "Down payment cannot be negative")
	}
	if downPayment.GreaterThanOrEqual(total) {
		return nil, shared.NewValidationError("INVALID_DOWN_PAYMENT", "Down payment must be less than the total amount")
	}
	if n < 1 {
		return nil, shared.NewValidationError("INVALID_INSTALLMENT_COUNT", "Number of installments must be at least 1")
	}
	if !frequency.IsValid() {
		return nil, shared.NewValidationError("INVALID_FREQUENCY", fmt.Sprintf("Unsupported installment frequency: %s", frequency))
	}
	if start.IsZero() {
		return nil, shared.NewValidationError("INVALID_START_DATE", "Installment start date is required")
	}
	if scale < 0 {
		scale = DefaultMinorUnitScale
	}

	financed := total.Sub(downPayment)
	base := financed.Div(decimal.NewFromInt(int64(n))).RoundFloor(scale)
	last := financed.Sub(base.Mul(decimal.NewFromInt(int64(n - 1))))

	schedule := make(Installments, n)
	for k := 1; k <= n; k++ {
		amount := base
		if k == n {
			amount = last
		}
		schedule[k-1] = Installment{
			Number:     k,
			Amount:     amount,
			DueDate:    frequency.DueDate(start, k),
			Status:     InstallmentStatusPending,
			PaidAmount: decimal.Zero,
		}
	}
	return schedule, nil
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("unsupported type")
	}
}
