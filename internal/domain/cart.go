package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PlaceholderImageURL is shown for lines whose product carries no image.
const PlaceholderImageURL = "https://via.placeholder.com/100x100?text=No+Image"

// ID is an opaque identifier issued by the storefront API. The API emits
// both numeric and string identifiers, so JSON numbers decode as well.
type ID string

func (id ID) String() string {
	return string(id)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// BillingPeriod is the subscription period a line is billed for.
type BillingPeriod string

const (
	Monthly BillingPeriod = "month"
	Yearly  BillingPeriod = "year"
)

// Valid reports whether p is one of the supported periods.
func (p BillingPeriod) Valid() bool {
	return p == Monthly || p == Yearly
}

// ParseBillingPeriod accepts the wire values plus the spelled-out names.
func ParseBillingPeriod(s string) (BillingPeriod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "month", "monthly":
		return Monthly, nil
	case "year", "yearly":
		return Yearly, nil
	default:
		return "", &ValidationError{Field: "billingPeriod", Reason: fmt.Sprintf("unsupported value %q", s)}
	}
}

// CartLine is one product and billing period entry in a cart.
type CartLine struct {
	ProductID     ID              `json:"productId"`
	BillingPeriod BillingPeriod   `json:"billingPeriod"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	Quantity      int             `json:"quantity"`
	DisplayName   string          `json:"displayName"`
	ImageURL      string          `json:"imageUrl"`
	ServerLineID  ID              `json:"serverLineId,omitempty"`
}

// Matches reports whether the line holds the given product and period.
func (l CartLine) Matches(productID ID, period BillingPeriod) bool {
	return l.ProductID == productID && l.BillingPeriod == period
}

// LineTotal is the unit price multiplied by the quantity.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// TotalQuantity sums the quantity of every line.
func TotalQuantity(lines []CartLine) int {
	total := 0
	for _, l := range lines {
		total += l.Quantity
	}
	return total
}

// Subtotal sums unit price times quantity over every line.
func Subtotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal())
	}
	return total
}
