package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Product is the catalog entry as served by GET /products/{id}.
type Product struct {
	ID            ID                  `json:"id"`
	Name          string              `json:"name"`
	Description   string              `json:"description,omitempty"`
	ImageURL      string              `json:"image1,omitempty"`
	MonthlyAmount decimal.NullDecimal `json:"amountMonth"`
	YearlyAmount  decimal.NullDecimal `json:"amountYear"`
	Active        bool                `json:"active"`
}

// PriceFor returns the product price for a billing period, if one is set.
func (p Product) PriceFor(period BillingPeriod) (decimal.Decimal, bool) {
	var amount decimal.NullDecimal
	switch period {
	case Monthly:
		amount = p.MonthlyAmount
	case Yearly:
		amount = p.YearlyAmount
	default:
		return decimal.Zero, false
	}
	if !amount.Valid {
		return decimal.Zero, false
	}
	return amount.Decimal, true
}

// Image returns the product image, falling back to the placeholder.
func (p Product) Image() string {
	if strings.TrimSpace(p.ImageURL) == "" {
		return PlaceholderImageURL
	}
	return p.ImageURL
}
