package pipeline

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bouncerhq/bouncer/internal/codestore"
	"github.com/bouncerhq/bouncer/internal/entity"
	"github.com/bouncerhq/bouncer/internal/resolver"
	"github.com/bouncerhq/bouncer/internal/templates"
	"github.com/bouncerhq/bouncer/pkg/apierror"
)

// Authorize implements GET /authorize, spec §4.G's
// Unauthenticated -> LoginRequired -> Authenticated -> CodeIssued state
// machine.
func (p *Pipeline) Authorize(c *gin.Context) {
	rc, _ := resolver.FromGinContext(c)
	if rc == nil || rc.Tenant == nil {
		apierror.Render(c, apierror.New(apierror.NotFound, apierror.ReasonNoClient))
		return
	}
	if rc.Client == nil {
		apierror.Render(c, apierror.New(apierror.BadRequest, apierror.ReasonNoClient))
		return
	}

	method := codestore.PKCEMethod(c.DefaultQuery("code_challenge_method", string(codestore.PKCENone)))
	challenge := c.Query("code_challenge")
	if method == codestore.PKCES256 && challenge == "" {
		apierror.Render(c, apierror.New(apierror.BadRequest, apierror.ReasonInternal))
		return
	}

	reentry := false
	loginID := c.Query("loginid")
	if loginID != "" {
		ok, err := p.Codes.Pull(c.Request.Context(), loginID)
		if err != nil {
			apierror.Render(c, apierror.Wrap(apierror.DependencyUnavailable, apierror.ReasonInternal, err))
			return
		}
		if !ok {
			apierror.Render(c, apierror.New(apierror.BadRequest, apierror.ReasonBadLoginID))
			return
		}
		reentry = true
	}

	if !reentry && len(rc.Client.Referrers) > 0 {
		if rc.Referer == "" {
			apierror.Render(c, apierror.New(apierror.BadRequest, apierror.ReasonWrongReferer))
			return
		}
		if err := resolver.CheckedReferer(rc.Client, rc.Referer); err != nil {
			p.denyClient(rc.Tenant.Name, rc.Client.ID, apierror.ReasonWrongReferer)
			apierror.Render(c, apierror.New(apierror.Forbidden, apierror.ReasonForbidden))
			return
		}
	}

	hasPayload := rc.HasValidPayload()
	if !rc.Tenant.SilentLogin && !reentry {
		hasPayload = false
	}

	if !hasPayload {
		p.renderLogin(c, rc.Tenant, rc.URI, "")
		return
	}

	if rc.ValidPayload["tenant"] != rc.Tenant.Name {
		apierror.Render(c, apierror.New(apierror.Forbidden, apierror.ReasonForbidden))
		return
	}
	if rc.Client.PKCEOnly && method != codestore.PKCES256 {
		p.denyClient(rc.Tenant.Name, rc.Client.ID, "pkce required")
		apierror.Render(c, apierror.New(apierror.Forbidden, apierror.ReasonForbidden))
		return
	}
	if secret := c.Query("client_secret"); rc.Client.Secret != "" && secret != "" {
		if !rc.Client.CheckSecret(secret) {
			p.denyClient(rc.Tenant.Name, rc.Client.ID, "client secret mismatch")
			apierror.Render(c, apierror.New(apierror.Forbidden, apierror.ReasonForbidden))
			return
		}
	}

	redirectURI := c.Query("redirect_uri")
	redirect, err := resolver.CheckedRedirect(rc.Client, redirectURI)
	if err != nil {
		apierror.Render(c, apierror.New(apierror.BadRequest, apierror.ReasonRedirectMismatch))
		return
	}

	scopes := intersectScopes(parseScopes(c.Query("scope")), rc.Client.Scopes)

	code, err := randomToken()
	if err != nil {
		apierror.Render(c, apierror.Wrap(apierror.Internal, apierror.ReasonInternal, err))
		return
	}

	session := codestore.Session{
		Kind:          codestore.KindCode,
		Code:          code,
		State:         c.Query("state"),
		Scopes:        scopes,
		Payload:       payloadFromClaims(rc.Tenant.Name, rc.ValidPayload),
		Redirect:      redirect,
		PKCEChallenge: challenge,
		PKCEMethod:    method,
		TTLSeconds:    p.authCodeTTL(),
		CreatedAt:     p.clock(),
	}

	if err := p.Codes.Put(c.Request.Context(), session); err != nil {
		apierror.Render(c, apierror.Wrap(apierror.Conflict, apierror.ReasonCodeTaken, err))
		return
	}

	if p.Metrics != nil {
		p.Metrics.AuthorizeAttempts.WithLabelValues(rc.Tenant.Name).Inc()
		p.Metrics.OAuthSuccess.WithLabelValues(rc.Tenant.Name).Inc()
	}

	location := redirect
	if strings.Contains(location, "?") {
		location += "&"
	} else {
		location += "?"
	}
	location += "code=" + code + "&state=" + session.State
	c.Redirect(http.StatusSeeOther, location)
}

func (p *Pipeline) authCodeTTL() int {
	if p.Config.AuthCodeTTLSeconds > 0 {
		return p.Config.AuthCodeTTLSeconds
	}
	return DefaultAuthCodeTTLSeconds
}

func (p *Pipeline) renderLogin(c *gin.Context, tenant *entity.Tenant, location, reason string) {
	templates.RenderOrFallback(c, p.Templates, tenant.Name, "login", http.StatusUnauthorized, map[string]any{
		"location": location,
		"tenant":   tenant.Name,
		"reason":   reason,
	})
}

// payloadFromClaims lifts the resolved token claims into the codestore
// Payload shape a new AuthSession carries forward.
func payloadFromClaims(tenant string, claims map[string]any) codestore.Payload {
	payload := codestore.Payload{Tenant: tenant}
	if claims == nil {
		return payload
	}
	if sub, ok := claims["sub"].(string); ok {
		payload.Subject = sub
	}
	if role, ok := claims["role"].(string); ok {
		payload.Role = role
	}
	if user, ok := claims["user"].(string); ok {
		payload.User = user
	}
	if profile, ok := claims["profile"].(map[string]any); ok {
		payload.Profile = profile
	}
	if resp, ok := claims["responsibility"].(string); ok {
		payload.Responsibility = resp
	}
	return payload
}
