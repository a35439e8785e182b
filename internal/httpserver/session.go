package httpserver

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/service/session"
)

const (
	sessionCookie = "storefront_session"
	sessionCtxKey = "browserSession"
)

func sessionMiddleware(sessions SessionOpener, secure bool, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(sessionCookie)
		sess, created, err := sessions.Open(c.Request.Context(), id)
		if err != nil {
			logger.Printf("http: open session error=%v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
			return
		}
		if created {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(sessionCookie, sess.ID, 0, "/", "", secure, true)
		}
		c.Set(sessionCtxKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionCtxKey).(*session.Session)
}
