package cart

import (
	"fmt"
	"strings"

	"storefront/internal/domain"
)

func newLine(product domain.Product, period domain.BillingPeriod) (domain.CartLine, error) {
	if strings.TrimSpace(string(product.ID)) == "" {
		return domain.CartLine{}, &domain.ValidationError{Field: "productId", Reason: "required"}
	}
	if strings.TrimSpace(product.Name) == "" {
		return domain.CartLine{}, &domain.ValidationError{Field: "displayName", Reason: "required"}
	}
	if !period.Valid() {
		return domain.CartLine{}, &domain.ValidationError{Field: "billingPeriod", Reason: fmt.Sprintf("unsupported value %q", period)}
	}
	if !product.Active {
		return domain.CartLine{}, &domain.ValidationError{Field: "productId", Reason: "product is not available"}
	}
	price, ok := product.PriceFor(period)
	if !ok {
		return domain.CartLine{}, &domain.ValidationError{Field: "unitPrice", Reason: fmt.Sprintf("no %s price", period)}
	}
	return domain.CartLine{
		ProductID:     product.ID,
		BillingPeriod: period,
		UnitPrice:     price,
		Quantity:      1,
		DisplayName:   product.Name,
		ImageURL:      product.Image(),
	}, nil
}

func findLine(lines []domain.CartLine, productID domain.ID, period domain.BillingPeriod) int {
	for i := range lines {
		if lines[i].Matches(productID, period) {
			return i
		}
	}
	return -1
}

// addLine increments the line matching line's product and period, or
// appends line.
func addLine(lines []domain.CartLine, line domain.CartLine) []domain.CartLine {
	if idx := findLine(lines, line.ProductID, line.BillingPeriod); idx >= 0 {
		lines[idx].Quantity += line.Quantity
		return lines
	}
	return append(lines, line)
}

func removeLine(lines []domain.CartLine, idx int) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines)-1)
	out = append(out, lines[:idx]...)
	return append(out, lines[idx+1:]...)
}

// normalizeLines drops lines that cannot exist in a cart and folds lines
// sharing a product and period into the first of them.
func normalizeLines(lines []domain.CartLine) (out []domain.CartLine, dropped int) {
	for _, line := range lines {
		if line.ProductID == "" || !line.BillingPeriod.Valid() || line.Quantity < 1 {
			dropped++
			continue
		}
		out = addLine(out, line)
	}
	return out, dropped
}
