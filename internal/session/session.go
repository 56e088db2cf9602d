// Package session implements the Session component: the browser session
// cookie carrying the bearer JWT, and the cookie-to-Authorization-header
// bridge, per spec §4.I. Grounded on gin's c.SetCookie/c.Cookie, which the
// teacher's API-only design never needed but the spec's browser flows do.
package session

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bouncerhq/bouncer/internal/resolver"
)

// CookieName is the session cookie name, per spec §6.
const CookieName = resolver.DefaultCookieName

// Config controls the cookie attributes that vary with mode, per spec
// §4.I.
type Config struct {
	Secure bool
}

// Set writes the session cookie carrying token. domain is blank in OAuth
// mode, or the tenant's configured cookie-domain in interceptor mode.
func Set(c *gin.Context, cfg Config, token, domain string, maxAgeSeconds int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(CookieName, token, maxAgeSeconds, "/", domain, cfg.Secure, true)
}

// Clear sets an equivalent cookie with expiry in the past and content
// "invalid", per spec §4.I.
func Clear(c *gin.Context, cfg Config, domain string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(CookieName, "invalid", -1, "/", domain, cfg.Secure, true)
}

// CopyToAuthHeader is a gin middleware copying the session cookie's value
// into the request's Authorization: Bearer header if that header is
// absent, per spec §4.I.
func CopyToAuthHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			if cookie, err := c.Cookie(CookieName); err == nil && cookie != "" && !strings.EqualFold(cookie, "invalid") {
				c.Request.Header.Set("Authorization", "Bearer "+cookie)
			}
		}
		c.Next()
	}
}
