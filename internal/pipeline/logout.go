package pipeline

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bouncerhq/bouncer/internal/resolver"
	"github.com/bouncerhq/bouncer/internal/session"
	"github.com/bouncerhq/bouncer/internal/templates"
)

// LogoutFinalizeDelayMillis is how long the transient GET /logout page
// waits before navigating to /logout/finalize, per spec §4.G ("auto-
// navigates to /logout/finalize after ~2 s").
var LogoutFinalizeDelayMillis = DefaultLogoutFinalizeDelayMillis

// Logout implements GET /logout: a transient page giving the browser time
// to flush cookies before the real logout happens.
func (p *Pipeline) Logout(c *gin.Context) {
	location := c.Query("location")
	if location == "" {
		location = "/"
	}
	rc, _ := resolver.FromGinContext(c)
	slug := ""
	if rc != nil && rc.Tenant != nil {
		slug = rc.Tenant.Name
	}
	templates.RenderOrFallback(c, p.Templates, slug, "logout", http.StatusOK, map[string]any{
		"location": location,
		"delayMs":  LogoutFinalizeDelayMillis,
	})
}

// LogoutFinalize implements POST /logout and GET /logout/finalize: it kills
// the session cookie and wipes every CodeStore session for the resolved
// subject, per spec §4.G.
func (p *Pipeline) LogoutFinalize(c *gin.Context) {
	rc, _ := resolver.FromGinContext(c)

	domain := ""
	var tenantName, subject string
	if rc != nil {
		subject = rc.Subject
		if rc.Tenant != nil {
			tenantName = rc.Tenant.Name
			if rc.Mode == resolver.ModeInterceptor {
				domain = rc.Tenant.Interceptor.CookieDomain
			}
		}
	}
	session.Clear(c, p.Config.Session, domain)

	if subject != "" {
		p.Codes.Wipe(c.Request.Context(), tenantName, subject)
	}

	if p.Metrics != nil && tenantName != "" {
		p.Metrics.Logout.WithLabelValues(tenantName).Inc()
	}

	location := c.Query("location")
	if location == "" {
		location = c.PostForm("location")
	}
	if location == "" {
		location = "/"
	}
	c.Redirect(http.StatusSeeOther, location)
}
