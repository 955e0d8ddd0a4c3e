package session

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	sessionIDContextKey = "session_id"
	csrfTokenContextKey = "csrf_token"
)

// Middleware resolves the session cookie, starting a new session when the
// cookie is missing or unknown (for example after a restart). It also makes
// sure the browser holds a CSRF cookie.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var sessionID int64
		if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
			if se, err := s.Resolve(ctx, token); err == nil {
				sessionID = se.ID
			}
		}
		if sessionID == 0 {
			se, err := s.Create(ctx)
			if err != nil {
				log.WithError(err).Error("create session failed")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
				return
			}
			sessionID = se.ID
			s.setCookie(c, s.cookieName, se.Token, true)
		}

		csrfToken, err := c.Cookie(s.csrfCookieName)
		if err != nil || csrfToken == "" {
			csrfToken = s.NewCSRFToken()
			s.setCookie(c, s.csrfCookieName, csrfToken, false)
		}

		c.Set(sessionIDContextKey, sessionID)
		c.Set(csrfTokenContextKey, csrfToken)
		c.Next()
	}
}

// SessionIDFromContext retrieves the session id stored by the middleware.
func SessionIDFromContext(c *gin.Context) (int64, bool) {
	val, ok := c.Get(sessionIDContextKey)
	if !ok {
		return 0, false
	}
	id, ok := val.(int64)
	return id, ok && id > 0
}

// CSRFTokenFromContext returns the token the page must echo in the CSRF header.
func CSRFTokenFromContext(c *gin.Context) string {
	return c.GetString(csrfTokenContextKey)
}

// setCookie issues a browser-session cookie (no Max-Age); the CSRF cookie is
// readable from JavaScript.
func (s *Service) setCookie(c *gin.Context, name, value string, httpOnly bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, 0, "/", "", s.secureCookies, httpOnly)
}
