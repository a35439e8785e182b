package remote

import (
	"context"
	"net/http"
	"net/url"

	"storefront/internal/domain"
)

// GetProduct fetches catalog metadata. The catalog is public, so no
// credential is sent.
func (c *Client) GetProduct(ctx context.Context, id domain.ID) (*domain.Product, error) {
	if id == "" {
		return nil, &domain.ValidationError{Field: "productId", Reason: "required"}
	}
	var p domain.Product
	err := c.do(ctx, request{
		op:     "get product",
		method: http.MethodGet,
		path:   "/products/" + url.PathEscape(id.String()),
	}, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
