package models

import (
	"github.com/shopspring/decimal"
)

// ProductStatusActive marks a product that can be sold
const ProductStatusActive = "active"

// ProductModel is the sellable catalog row the ledger prices items from.
type ProductModel struct {
	TenantAggregateModel
	Code         string          `gorm:"type:varchar(50);not null;index"`
	Name         string          `gorm:"type:varchar(200);not null"`
	SellingPrice decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Stock        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Status       string          `gorm:"type:varchar(20);not null;default:'active'"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}
