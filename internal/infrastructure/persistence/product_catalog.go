package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	appsales "github.com/retail/ledger/internal/application/sales"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/retail/ledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormProductCatalog implements sales.ProductCatalog on the products table
type GormProductCatalog struct {
	db *gorm.DB
}

// NewGormProductCatalog creates a new GormProductCatalog
func NewGormProductCatalog(db *gorm.DB) *GormProductCatalog {
	return &GormProductCatalog{db: db}
}

// GetProducts loads the active products of a tenant by ID. Unknown or inactive
// IDs are simply absent from the result.
func (c *GormProductCatalog) GetProducts(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]appsales.ProductInfo, error) {
	result := make(map[uuid.UUID]appsales.ProductInfo, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var rows []models.ProductModel
	if err := c.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("id IN ? AND status = ?", ids, models.ProductStatusActive).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	for _, row := range rows {
		result[row.ID] = appsales.ProductInfo{
			ID:    row.ID,
			Code:  row.Code,
			Name:  row.Name,
			Price: row.SellingPrice,
			Stock: row.Stock,
		}
	}
	return result, nil
}

// DecrementStock takes every line out of stock or none of them.
// Each line is a conditional update so concurrent sales cannot drive stock negative.
func (c *GormProductCatalog) DecrementStock(ctx context.Context, tenantID uuid.UUID, lines []appsales.StockLine) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, line := range lines {
			result := tx.Model(&models.ProductModel{}).
				Scopes(tenantScope(tenantID)).
				Where("id = ? AND stock >= ?", line.ProductID, line.Quantity).
				Update("stock", gorm.Expr("stock - ?", line.Quantity))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return shared.NewBusinessRuleError(shared.ErrInsufficientStock.Code,
					fmt.Sprintf("Insufficient stock for product %s", line.ProductID))
			}
		}
		return nil
	})
}

// RestoreStock puts the lines back, e.g. after a cancelled invoice
func (c *GormProductCatalog) RestoreStock(ctx context.Context, tenantID uuid.UUID, lines []appsales.StockLine) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, line := range lines {
			if err := tx.Model(&models.ProductModel{}).
				Scopes(tenantScope(tenantID)).
				Where("id = ?", line.ProductID).
				Update("stock", gorm.Expr("stock + ?", line.Quantity)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
