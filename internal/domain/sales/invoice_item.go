package sales

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceItem is a priced line of the sale
type InvoiceItem struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// InvoiceItems is a slice of InvoiceItem stored as JSONB
type InvoiceItems []InvoiceItem

// Value implements driver.Valuer interface for GORM to store as JSONB
func (s InvoiceItems) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (s *InvoiceItems) Scan(value interface{}) error {
	bytes, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan InvoiceItems: %w", err)
	}
	if len(bytes) == 0 {
		*s = InvoiceItems{}
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Subtotal sums the line totals
func (s InvoiceItems) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s {
		total = total.Add(item.LineTotal)
	}
	return total
}

// PaymentRecord is one accepted payment. Records are append-only and never edited.
type PaymentRecord struct {
	ID         uuid.UUID       `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Date       time.Time       `json:"date"`
	Method     PaymentChannel  `json:"method"`
	Reference  string          `json:"reference,omitempty"`
	RecordedBy uuid.UUID       `json:"recorded_by"`
}

// PaymentRecords is the invoice's payment log stored as JSONB
type PaymentRecords []PaymentRecord

// Value implements driver.Valuer interface for GORM to store as JSONB
func (p PaymentRecords) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (p *PaymentRecords) Scan(value interface{}) error {
	bytes, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan PaymentRecords: %w", err)
	}
	if len(bytes) == 0 {
		*p = PaymentRecords{}
		return nil
	}
	return json.Unmarshal(bytes, p)
}

// Total sums every recorded payment
func (p PaymentRecords) Total() decimal.Decimal {
	total := decimal.Zero
	for _, rec := range p {
		total = total.Add(rec.Amount)
	}
	return total
}
