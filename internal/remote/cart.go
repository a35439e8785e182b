package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

// ServerLine is one line of the authoritative server cart.
type ServerLine struct {
	ProductID     domain.ID            `json:"productId"`
	BillingPeriod domain.BillingPeriod `json:"billingPeriod"`
	Quantity      int                  `json:"quantity"`
	UnitPrice     decimal.Decimal      `json:"unitPrice"`
	ServerLineID  domain.ID            `json:"serverLineId"`
}

// ServerCart is the body of GET /cart.
type ServerCart struct {
	Lines []ServerLine `json:"lines"`
}

type cartEnvelope struct {
	Lines *[]ServerLine `json:"lines"`
}

type addItemRequest struct {
	ProductID     domain.ID            `json:"productId"`
	BillingPeriod domain.BillingPeriod `json:"billingPeriod"`
}

type removeItemRequest struct {
	ProductID domain.ID `json:"productId"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// GetCart fetches the signed-in user's cart. The body must carry a "lines"
// array whose entries name a known billing period, a positive quantity and
// both identifiers; anything else is a decoding error.
func (c *Client) GetCart(ctx context.Context) (*ServerCart, error) {
	var env cartEnvelope
	err := c.do(ctx, request{
		op:            "get cart",
		method:        http.MethodGet,
		path:          "/cart",
		authenticated: true,
	}, &env)
	if err != nil {
		return nil, err
	}
	if env.Lines == nil {
		return nil, fmt.Errorf("get cart: %w: missing lines", domain.ErrDecode)
	}
	for i, line := range *env.Lines {
		switch {
		case line.ProductID == "":
			return nil, fmt.Errorf("get cart: %w: line %d has no productId", domain.ErrDecode, i)
		case line.ServerLineID == "":
			return nil, fmt.Errorf("get cart: %w: line %d has no serverLineId", domain.ErrDecode, i)
		case !line.BillingPeriod.Valid():
			return nil, fmt.Errorf("get cart: %w: line %d has billingPeriod %q", domain.ErrDecode, i, line.BillingPeriod)
		case line.Quantity < 1:
			return nil, fmt.Errorf("get cart: %w: line %d has quantity %d", domain.ErrDecode, i, line.Quantity)
		}
	}
	return &ServerCart{Lines: *env.Lines}, nil
}

// AddItem adds one unit of a product to the server cart.
func (c *Client) AddItem(ctx context.Context, productID domain.ID, period domain.BillingPeriod) error {
	return c.do(ctx, request{
		op:            "add cart item",
		method:        http.MethodPost,
		path:          "/cart/add",
		body:          addItemRequest{ProductID: productID, BillingPeriod: period},
		authenticated: true,
	}, nil)
}

// RemoveItem drops a product from the server cart.
func (c *Client) RemoveItem(ctx context.Context, productID domain.ID) error {
	return c.do(ctx, request{
		op:            "remove cart item",
		method:        http.MethodDelete,
		path:          "/cart/remove",
		body:          removeItemRequest{ProductID: productID},
		authenticated: true,
	}, nil)
}

// UpdateItemQuantity sets the quantity of a server cart line.
func (c *Client) UpdateItemQuantity(ctx context.Context, serverLineID domain.ID, quantity int) error {
	return c.do(ctx, request{
		op:            "update cart item",
		method:        http.MethodPatch,
		path:          "/cart_items/" + url.PathEscape(serverLineID.String()),
		body:          updateQuantityRequest{Quantity: quantity},
		contentType:   contentTypeMergePatch,
		authenticated: true,
	}, nil)
}
