package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/partner"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/retail/ledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

var (
	errCustomerNotFound = shared.NewNotFoundError("CUSTOMER_NOT_FOUND", "Customer not found")
	errCustomerConflict = shared.NewConflictError("CUSTOMER_CONCURRENT_MODIFICATION", "The customer has been modified by another request")
)

// GormCustomerRepository implements partner.CustomerRepository using GORM
type GormCustomerRepository struct {
	db *gorm.DB
}

// NewGormCustomerRepository creates a new GormCustomerRepository
func NewGormCustomerRepository(db *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: db}
}

// FindByIDForTenant finds a customer by ID within a tenant
func (r *GormCustomerRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*partner.Customer, error) {
	var model models.CustomerModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errCustomerNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant lists customers of a tenant.
// Supported filter keys: "risk_level" and "sales_blocked".
func (r *GormCustomerRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]partner.Customer, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.CustomerModel{}).Scopes(tenantScope(tenantID))
	if level, ok := filter.Filters["risk_level"]; ok {
		query = query.Where("risk_level = ?", level)
	}
	if blocked, ok := filter.Filters["sales_blocked"]; ok {
		query = query.Where("sales_blocked = ?", blocked)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.CustomerModel
	if err := query.Scopes(pageScope(filter, CustomerSortFields, "created_at")).Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	customers := make([]partner.Customer, len(rows))
	for i := range rows {
		customers[i] = *rows[i].ToDomain()
	}
	return customers, total, nil
}

// ExistsByCode checks if a customer code is already used in the tenant
func (r *GormCustomerRepository) ExistsByCode(ctx context.Context, tenantID uuid.UUID, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.CustomerModel{}).
		Scopes(tenantScope(tenantID)).
		Where("code = ?", code).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save inserts a new customer
func (r *GormCustomerRepository) Save(ctx context.Context, customer *partner.Customer) error {
	if err := r.db.WithContext(ctx).Create(models.CustomerModelFromDomain(customer)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("CUSTOMER_CODE_TAKEN",
				fmt.Sprintf("Customer code %s already exists", customer.Code))
		}
		return err
	}
	return nil
}

// SaveWithLock writes a mutated customer if the stored version is still Version-1
func (r *GormCustomerRepository) SaveWithLock(ctx context.Context, customer *partner.Customer) error {
	m := models.CustomerModelFromDomain(customer)

	result := r.db.WithContext(ctx).Model(&models.CustomerModel{}).
		Where("id = ? AND tenant_id = ? AND version = ?", customer.ID, customer.TenantID, customer.Version-1).
		Updates(map[string]any{
			"name":                 m.Name,
			"phone":                m.Phone,
			"email":                m.Email,
			"tier":                 m.Tier,
			"total_purchases":      m.TotalPurchases,
			"total_paid":           m.TotalPaid,
			"outstanding_balance":  m.OutstandingBalance,
			"credit_limit":         m.CreditLimit,
			"invoice_count":        m.InvoiceCount,
			"on_time_payments":     m.OnTimePayments,
			"late_payments":        m.LatePayments,
			"total_payments":       m.TotalPayments,
			"avg_days_late":        m.AvgDaysLate,
			"current_streak":       m.CurrentStreak,
			"longest_streak":       m.LongestStreak,
			"credit_score":         m.CreditScore,
			"risk_level":           m.RiskLevel,
			"max_installments":     m.MaxInstallments,
			"allow_deferred":       m.AllowDeferred,
			"allow_installments":   m.AllowInstallments,
			"last_assessment":      m.LastAssessment,
			"sales_blocked":        m.SalesBlocked,
			"sales_blocked_reason": m.SalesBlockedReason,
			"version":              m.Version,
			"updated_at":           m.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.CustomerModel{}).
		Scopes(tenantScope(customer.TenantID)).
		Where("id = ?", customer.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return errCustomerNotFound
	}
	return errCustomerConflict
}
