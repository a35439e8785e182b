package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User *userView `json:"user"`
	Cart cartView  `json:"cart"`
}

func loginHandler(c *gin.Context) {
	sess := currentSession(c)
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	err := sess.Auth.Login(c.Request.Context(), domain.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		c.JSON(statusFor(err), errorResponse{Error: errorMessage(err)})
		return
	}
	c.JSON(http.StatusOK, sessionResponse{
		User: toUserView(sess.Auth.User()),
		Cart: toCartView(sess.Cart.Snapshot()),
	})
}

func logoutHandler(c *gin.Context) {
	sess := currentSession(c)
	sess.Auth.Logout(c.Request.Context())
	c.JSON(http.StatusOK, sessionResponse{Cart: toCartView(sess.Cart.Snapshot())})
}

func meHandler(c *gin.Context) {
	sess := currentSession(c)
	if !sess.Auth.IsAuthenticated() {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "not signed in"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserView(sess.Auth.User())})
}
