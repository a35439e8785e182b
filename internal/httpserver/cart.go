package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	cartsvc "storefront/internal/service/cart"
)

type addItemRequest struct {
	ProductID     domain.ID `json:"productId"`
	BillingPeriod string    `json:"billingPeriod"`
}

type updateItemRequest struct {
	BillingPeriod string `json:"billingPeriod"`
	Quantity      *int   `json:"quantity"`
}

type visibilityRequest struct {
	Open *bool `json:"open"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

func getCartHandler(c *gin.Context) {
	sess := currentSession(c)
	c.JSON(http.StatusOK, toCartView(sess.Cart.Snapshot()))
}

func addItemHandler(products cartsvc.ProductLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := currentSession(c)
		var req addItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid body")
			return
		}
		if strings.TrimSpace(string(req.ProductID)) == "" {
			badRequest(c, "productId required")
			return
		}
		period, err := domain.ParseBillingPeriod(req.BillingPeriod)
		if err != nil {
			writeCartError(c, sess, err)
			return
		}
		product, err := products.Get(c.Request.Context(), req.ProductID)
		if err != nil {
			writeCartError(c, sess, err)
			return
		}
		if err := sess.Cart.AddItem(c.Request.Context(), *product, period); err != nil {
			writeCartError(c, sess, err)
			return
		}
		c.JSON(http.StatusOK, toCartView(sess.Cart.Snapshot()))
	}
}

func updateItemHandler(c *gin.Context) {
	sess := currentSession(c)
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	if req.Quantity == nil {
		badRequest(c, "quantity required")
		return
	}
	period, err := domain.ParseBillingPeriod(req.BillingPeriod)
	if err != nil {
		writeCartError(c, sess, err)
		return
	}
	productID := domain.ID(c.Param("productId"))
	if err := sess.Cart.UpdateQuantity(c.Request.Context(), productID, period, *req.Quantity); err != nil {
		writeCartError(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, toCartView(sess.Cart.Snapshot()))
}

// removeItemHandler takes one unit off a line.
func removeItemHandler(c *gin.Context) {
	sess := currentSession(c)
	period, err := domain.ParseBillingPeriod(c.Query("billingPeriod"))
	if err != nil {
		writeCartError(c, sess, err)
		return
	}
	productID := domain.ID(c.Param("productId"))
	if err := sess.Cart.RemoveItem(c.Request.Context(), productID, period); err != nil {
		writeCartError(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, toCartView(sess.Cart.Snapshot()))
}

func clearCartHandler(c *gin.Context) {
	sess := currentSession(c)
	sess.Cart.ClearCart()
	c.JSON(http.StatusOK, toCartView(sess.Cart.Snapshot()))
}

func visibilityHandler(c *gin.Context) {
	sess := currentSession(c)
	var req visibilityRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid body")
			return
		}
	}
	sess.Cart.ToggleVisibility(req.Open)
	c.JSON(http.StatusOK, toCartView(sess.Cart.Snapshot()))
}

func refreshHandler(c *gin.Context) {
	sess := currentSession(c)
	if err := sess.Cart.Refresh(c.Request.Context()); err != nil {
		writeCartError(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, toCartView(sess.Cart.Snapshot()))
}

func checkoutHandler(c *gin.Context) {
	sess := currentSession(c)
	url, err := sess.Cart.Checkout(c.Request.Context())
	if err != nil {
		writeCartError(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, checkoutResponse{URL: url})
}
