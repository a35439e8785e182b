package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	"storefront/internal/service/session"
)

type errorResponse struct {
	Error string    `json:"error"`
	Cart  *cartView `json:"cart,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRemoteRejected), errors.Is(err, domain.ErrDecode):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrNetwork):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	var remoteErr *domain.RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Message()
	}
	return err.Error()
}

// writeCartError answers with the mapped status and the cart as it stands,
// optimistic changes included.
func writeCartError(c *gin.Context, sess *session.Session, err error) {
	view := toCartView(sess.Cart.Snapshot())
	c.JSON(statusFor(err), errorResponse{Error: errorMessage(err), Cart: &view})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}
