package persistence

import (
	"strings"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/shared"
	"gorm.io/gorm"
)

const maxPageSize = 100

// tenantScope restricts a query to one tenant's rows
func tenantScope(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

// pageScope applies a whitelisted ORDER BY and LIMIT/OFFSET from the filter
func pageScope(filter shared.Filter, allowedFields map[string]bool, defaultField string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		field := ValidateSortField(filter.OrderBy, allowedFields, defaultField)
		db = db.Order(field + " " + ValidateSortOrder(filter.OrderDir))

		size := filter.PageSize
		if size <= 0 {
			size = shared.DefaultFilter().PageSize
		}
		size = min(size, maxPageSize)
		page := max(filter.Page, 1)
		return db.Offset((page - 1) * size).Limit(size)
	}
}

// ValidateSortOrder normalizes the sort order to ASC or DESC, defaulting to DESC
func ValidateSortOrder(orderDir string) string {
	if strings.ToUpper(strings.TrimSpace(orderDir)) == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField when whitelisted and defaultField otherwise
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// InvoiceSortFields contains allowed sort fields for invoices
var InvoiceSortFields = map[string]bool{
	"created_at":       true,
	"updated_at":       true,
	"invoice_number":   true,
	"total_amount":     true,
	"remaining_amount": true,
	"status":           true,
	"overdue_check_at": true,
}

// CustomerSortFields contains allowed sort fields for customers
var CustomerSortFields = map[string]bool{
	"created_at":          true,
	"updated_at":          true,
	"code":                true,
	"name":                true,
	"outstanding_balance": true,
	"credit_score":        true,
	"total_purchases":     true,
}
