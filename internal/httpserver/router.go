package httpserver

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"storefront/internal/metrics"
	cartsvc "storefront/internal/service/cart"
	"storefront/internal/service/session"
)

// SessionOpener resolves the browser session named by the session cookie.
type SessionOpener interface {
	Open(ctx context.Context, id string) (*session.Session, bool, error)
}

// Pinger reports whether profile storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Sessions      SessionOpener
	Products      cartsvc.ProductLookup
	Storage       Pinger
	CORSOrigins   []string
	SecureCookies bool
	// RateLimitRPS and RateLimitBurst bound mutating requests per session.
	// A zero rate disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, deps Deps) (*gin.Engine, error) {
	if deps.Sessions == nil {
		return nil, errors.New("session registry required")
	}
	if deps.Products == nil {
		return nil, errors.New("product lookup required")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery(), metrics.GinMiddleware())
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
			AllowHeaders:     []string{"Origin", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.Storage))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/", sessionMiddleware(deps.Sessions, deps.SecureCookies, logger))
	api.GET("/cart", getCartHandler)
	api.GET("/auth/me", meHandler)

	mutating := api.Group("/")
	if deps.RateLimitRPS > 0 {
		mutating.Use(newRateLimiter(deps.RateLimitRPS, deps.RateLimitBurst, logger).handler())
	}
	mutating.POST("/cart/items", addItemHandler(deps.Products))
	mutating.PATCH("/cart/items/:productId", updateItemHandler)
	mutating.DELETE("/cart/items/:productId", removeItemHandler)
	mutating.DELETE("/cart", clearCartHandler)
	mutating.POST("/cart/visibility", visibilityHandler)
	mutating.POST("/cart/refresh", refreshHandler)
	mutating.POST("/checkout", checkoutHandler)
	mutating.POST("/auth/login", loginHandler)
	mutating.POST("/auth/logout", logoutHandler)

	return router, nil
}
