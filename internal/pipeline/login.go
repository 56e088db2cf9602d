package pipeline

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/bouncerhq/bouncer/internal/codestore"
	"github.com/bouncerhq/bouncer/internal/entity"
	"github.com/bouncerhq/bouncer/internal/resolver"
	"github.com/bouncerhq/bouncer/internal/scripthost"
	"github.com/bouncerhq/bouncer/internal/session"
	"github.com/bouncerhq/bouncer/internal/templates"
	"github.com/bouncerhq/bouncer/pkg/apierror"
)

// loginValidate validates the bound loginForm before the credentials ever
// reach ScriptHost, grounded on the teacher's h.validate.Struct(req) gate
// in internal/auth/api.go, adapted from JSON request bodies to a form post.
var loginValidate = validator.New()

// loginForm is POST /login's form body, per spec §4.G.
type loginForm struct {
	Username string `form:"username" binding:"required" validate:"required"`
	Password string `form:"password" binding:"required" validate:"required"`
	Location string `form:"location"`
}

// Login implements POST /login per spec §4.G.
func (p *Pipeline) Login(c *gin.Context) {
	rc, _ := resolver.FromGinContext(c)
	if rc == nil || rc.Tenant == nil {
		apierror.Render(c, apierror.New(apierror.NotFound, apierror.ReasonNoClient))
		return
	}
	tenant := rc.Tenant

	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		p.loginFailed(c, tenant, apierror.ReasonInvalidCreds)
		return
	}
	if err := loginValidate.Struct(form); err != nil {
		p.loginFailed(c, tenant, apierror.ReasonInvalidCreds)
		return
	}
	username := form.Username
	password := form.Password
	location := form.Location

	if p.Metrics != nil {
		p.Metrics.LoginAttempts.WithLabelValues(tenant.Name).Inc()
	}

	if validation, err := p.Scripts.Run(c.Request.Context(), tenant, ClassUserValidationProvider, map[string]any{"username": username}); err == nil {
		if valid, ok := validation.Prop("isValid"); ok && !truthyBool(valid) {
			p.loginFailed(c, tenant, apierror.ReasonInvalidUsername)
			return
		}
	} else if !classUndeclared(err) {
		p.loginFailed(c, tenant, apierror.ReasonInvalidUsername)
		return
	}

	result, err := p.Scripts.Run(c.Request.Context(), tenant, ClassUserLoginProvider, map[string]any{"username": username, "password": password})
	switch {
	case err != nil && classUndeclared(err):
		if !p.Config.AllowAnonymousLogin {
			p.loginFailed(c, tenant, apierror.ReasonNoLoginProvider)
			return
		}
		result = nil
	case err != nil:
		p.loginFailed(c, tenant, apierror.ReasonInvalidCreds)
		return
	case !result.Decision():
		p.loginFailed(c, tenant, apierror.ReasonInvalidCreds)
		return
	}

	payload := codestore.Payload{Subject: username, Tenant: tenant.Name}
	if result != nil {
		if profile, ok := result.Prop("userProfile"); ok {
			if m, ok := profile.(map[string]any); ok {
				payload.Profile = m
			}
		}
		if role, ok := result.StringProp("role"); ok {
			payload.Role = role
		}
		if subject, ok := result.Subject(); ok {
			payload.Subject = subject
		}
	}
	payload.Responsibility = responsibilityHash(rc.ResponsibleDomain)

	algorithm := signingAlgorithm(rc.Mode)
	claims := buildClaims(payload, time.Duration(p.tokenExpirationSeconds())*time.Second, p.clock())
	token, _, err := p.Signer.Sign(claims, algorithm)
	if err != nil {
		apierror.Render(c, apierror.Wrap(apierror.Internal, apierror.ReasonInternal, err))
		return
	}

	domain := ""
	if rc.Mode == resolver.ModeInterceptor {
		domain = tenant.Interceptor.CookieDomain
	}
	session.Set(c, p.Config.Session, token, domain, p.tokenExpirationSeconds())

	loginID, err := randomToken()
	if err != nil {
		apierror.Render(c, apierror.Wrap(apierror.Internal, apierror.ReasonInternal, err))
		return
	}
	if err := p.Codes.Push(c.Request.Context(), codestore.LoginSession{
		LoginID:    loginID,
		TTLSeconds: codestore.DefaultLoginTTLSeconds,
		CreatedAt:  p.clock(),
	}); err != nil {
		apierror.Render(c, apierror.Wrap(apierror.Internal, apierror.ReasonInternal, err))
		return
	}

	if p.Metrics != nil {
		p.Metrics.LoginSuccess.WithLabelValues(tenant.Name).Inc()
		p.Metrics.TokenStored.WithLabelValues(tenant.Name).Inc()
	}

	redirectTo := location
	if redirectTo == "" {
		redirectTo = "/"
	}
	sep := "?"
	if containsQuery(redirectTo) {
		sep = "&"
	}
	c.Redirect(http.StatusSeeOther, redirectTo+sep+"loginid="+loginID)
}

// loginFailed records the failure metric and re-renders the login page
// with a 401 status and the given error reason, per spec §4.G.2-5.
func (p *Pipeline) loginFailed(c *gin.Context, tenant *entity.Tenant, reason string) {
	if p.Metrics != nil {
		p.Metrics.LoginFailure.WithLabelValues(tenant.Name).Inc()
	}
	templates.RenderOrFallback(c, p.Templates, tenant.Name, "login", http.StatusUnauthorized, map[string]any{
		"tenant": tenant.Name,
		"reason": reason,
	})
}

func (p *Pipeline) tokenExpirationSeconds() int {
	if p.Config.TokenExpirationSeconds > 0 {
		return p.Config.TokenExpirationSeconds
	}
	return DefaultTokenExpirationSeconds
}

func containsQuery(u string) bool {
	for _, r := range u {
		if r == '?' {
			return true
		}
	}
	return false
}

// classUndeclared reports whether err is the ScriptHost ParserError a
// tenant's scripts raise when the requested class isn't defined by any of
// them, distinguishing "provider absent" from "provider ran and declined".
func classUndeclared(err error) bool {
	he, ok := err.(*scripthost.HostError)
	return ok && he.Kind == scripthost.ErrParser && strings.HasSuffix(he.Message, "is not declared")
}

func truthyBool(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
