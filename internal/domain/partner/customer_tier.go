package partner

import "github.com/shopspring/decimal"

// CustomerTier represents the customer's loyalty grade
type CustomerTier string

const (
	CustomerTierNormal   CustomerTier = "normal"
	CustomerTierSilver   CustomerTier = "silver"
	CustomerTierGold     CustomerTier = "gold"
	CustomerTierPlatinum CustomerTier = "platinum"
	CustomerTierVIP      CustomerTier = "vip"
)

// IsValid checks if the tier is known
func (t CustomerTier) IsValid() bool {
	switch t {
	case CustomerTierNormal, CustomerTierSilver, CustomerTierGold, CustomerTierPlatinum, CustomerTierVIP:
		return true
	}
	return false
}

// CreditMultiplier is how many average purchases of credit the tier may carry
func (t CustomerTier) CreditMultiplier() decimal.Decimal {
	switch t {
	case CustomerTierSilver:
		return decimal.NewFromInt(3)
	case CustomerTierGold:
		return decimal.NewFromInt(4)
	case CustomerTierPlatinum:
		return decimal.NewFromInt(5)
	case CustomerTierVIP:
		return decimal.NewFromInt(6)
	default:
		return decimal.NewFromInt(2)
	}
}
