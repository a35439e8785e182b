package httpserver

import (
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	cartsvc "storefront/internal/service/cart"
)

// cartView is the cart as the storefront UI renders it. Amounts are decimal
// strings with two fraction digits.
type cartView struct {
	Lines          []lineView `json:"lines"`
	IsOpen         bool       `json:"isOpen"`
	Mode           string     `json:"mode"`
	Error          string     `json:"error,omitempty"`
	TotalItemCount int        `json:"totalItemCount"`
	Subtotal       string     `json:"subtotal"`
	Tax            string     `json:"tax"`
	Shipping       string     `json:"shipping"`
	Total          string     `json:"total"`
}

type lineView struct {
	ProductID     string `json:"productId"`
	BillingPeriod string `json:"billingPeriod"`
	DisplayName   string `json:"displayName"`
	ImageURL      string `json:"imageUrl"`
	UnitPrice     string `json:"unitPrice"`
	Quantity      int    `json:"quantity"`
	LineTotal     string `json:"lineTotal"`
	ServerLineID  string `json:"serverLineId,omitempty"`
	// Pending marks an optimistic line the server has not confirmed yet.
	Pending bool `json:"pending,omitempty"`
}

type userView struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

func toCartView(st cartsvc.State) cartView {
	lines := make([]lineView, 0, len(st.Lines))
	for _, line := range st.Lines {
		image := line.ImageURL
		if image == "" {
			image = domain.PlaceholderImageURL
		}
		name := line.DisplayName
		if name == "" {
			name = string(line.ProductID)
		}
		lines = append(lines, lineView{
			ProductID:     string(line.ProductID),
			BillingPeriod: string(line.BillingPeriod),
			DisplayName:   name,
			ImageURL:      image,
			UnitPrice:     money(line.UnitPrice),
			Quantity:      line.Quantity,
			LineTotal:     money(line.LineTotal()),
			ServerLineID:  string(line.ServerLineID),
			Pending:       st.Mode == cartsvc.ServerBacked && line.ServerLineID == "",
		})
	}
	return cartView{
		Lines:          lines,
		IsOpen:         st.IsOpen,
		Mode:           string(st.Mode),
		Error:          st.Error,
		TotalItemCount: st.TotalItemCount,
		Subtotal:       money(st.Subtotal),
		Tax:            money(st.Tax),
		Shipping:       money(st.Shipping),
		Total:          money(st.Total),
	}
}

func toUserView(u *domain.User) *userView {
	if u == nil {
		return nil
	}
	return &userView{
		ID:        string(u.ID),
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Roles:     u.Roles,
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
