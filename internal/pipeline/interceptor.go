package pipeline

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/bouncerhq/bouncer/internal/resolver"
)

// Interceptor implements GET/POST /interceptor, the forward-auth endpoint a
// reverse proxy calls for every upstream request, per spec §4.G.
func (p *Pipeline) Interceptor(c *gin.Context) {
	rc, _ := resolver.FromGinContext(c)
	if rc == nil || rc.Tenant == nil {
		c.Status(http.StatusForbidden)
		return
	}

	if rc.HasValidPayload() {
		if tenantClaim, _ := rc.ValidPayload["tenant"].(string); tenantClaim == rc.Tenant.Name {
			token := bearerFromCookieOrHeader(c)
			c.Header("Authorization", "Bearer "+token)
			c.Header("X-User-Ident", rc.Subject)
			if p.Metrics != nil {
				p.Metrics.InterceptorSuccess.WithLabelValues(rc.Tenant.Name).Inc()
			}
			c.Status(http.StatusOK)
			return
		}
	}

	if p.Metrics != nil {
		p.Metrics.InterceptorFailure.WithLabelValues(rc.Tenant.Name).Inc()
	}

	loginDomain := rc.Tenant.Interceptor.LoginDomain
	location := rc.Scheme + "://" + loginDomain + "/login?for=" + url.QueryEscape(rc.ServiceURL)
	c.Header("Location", location)
	c.Status(http.StatusUnauthorized)
}

// bearerFromCookieOrHeader returns the raw token resolver.Middleware
// already verified, preferring the Authorization header since
// session.CopyToAuthHeader runs before resolver.Middleware in the gin
// chain and will have already bridged the cookie there.
func bearerFromCookieOrHeader(c *gin.Context) string {
	const prefix = "Bearer "
	auth := c.GetHeader("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
