package pipeline

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bouncerhq/bouncer/internal/codestore"
	"github.com/bouncerhq/bouncer/internal/entity"
	"github.com/bouncerhq/bouncer/internal/resolver"
	"github.com/bouncerhq/bouncer/pkg/apierror"
)

// Token implements POST /token, demultiplexing on grant_type per spec
// §4.G.
func (p *Pipeline) Token(c *gin.Context) {
	rc, _ := resolver.FromGinContext(c)
	if rc == nil || rc.Tenant == nil {
		apierror.Render(c, apierror.New(apierror.NotFound, apierror.ReasonNoClient))
		return
	}

	switch c.PostForm("grant_type") {
	case entity.GrantAuthorizationCode:
		p.tokenAuthorizationCode(c, rc)
	case entity.GrantRefreshToken:
		p.tokenRefresh(c, rc)
	case entity.GrantPassword:
		p.tokenPassword(c, rc)
	case entity.GrantClientCredentials:
		p.tokenClientCredentials(c, rc)
	default:
		p.oauthFailure(c, rc)
		apierror.Render(c, apierror.New(apierror.BadRequest, apierror.ReasonInvalidGrant))
	}
}

func (p *Pipeline) oauthFailure(c *gin.Context, rc *resolver.RequestContext) {
	if p.Metrics != nil && rc.Tenant != nil {
		p.Metrics.OAuthFailure.WithLabelValues(rc.Tenant.Name).Inc()
	}
}

func (p *Pipeline) oauthSuccess(rc *resolver.RequestContext) {
	if p.Metrics != nil && rc.Tenant != nil {
		p.Metrics.OAuthSuccess.WithLabelValues(rc.Tenant.Name).Inc()
	}
}

func (p *Pipeline) tokenAuthorizationCode(c *gin.Context, rc *resolver.RequestContext) {
	code := c.PostForm("code")
	session, ok, err := p.Codes.Get(c.Request.Context(), codestore.KindCode, code, true)
	if err != nil {
		p.oauthFailure(c, rc)
		apierror.Render(c, apierror.Wrap(apierror.DependencyUnavailable, apierror.ReasonInternal, err))
		return
	}
	if !ok {
		p.oauthFailure(c, rc)
		apierror.Render(c, apierror.New(apierror.Unauthorized, apierror.ReasonInvalidGrant))
		return
	}

	if rc.Client == nil || rc.Client.TenantName != session.Payload.Tenant {
		p.oauthFailure(c, rc)
		apierror.Render(c, apierror.New(apierror.BadRequest, apierror.ReasonInvalidClient))
		return
	}
	if _, err := resolver.CheckedRedirect(rc.Client, session.Redirect); err != nil {
		p.oauthFailure(c, rc)
		apierror.Render(c, apierror.New(apierror.BadRequest, apierror.ReasonRedirectMismatch))
		return
	}
	if secret := c.PostForm("client_secret"); rc.Client.Secret != "" {
		if !rc.Client.CheckSecret(secret) {
			p.oauthFailure(c, rc)
			apierror.Render(c, apierror.New(apierror.Unauthorized, apierror.ReasonInvalidClient))
			return
		}
	}

	if session.PKCEMethod != codestore.PKCENone && session.PKCEMethod != "" {
		verifier := c.PostForm("code_verifier")
		if !verifyPKCE(session.PKCEMethod, session.PKCEChallenge, verifier) {
			p.oauthFailure(c, rc)
			apierror.Render(c, apierror.New(apierror.BadRequest, apierror.ReasonInvalidGrant))
			return
		}
	}

	now := p.clock()
	claims := buildClaims(session.Payload, time.Duration(p.tokenExpirationSeconds())*time.Second, now)
	access, _, err := p.Signer.Sign(claims, signingAlgorithm(rc.Mode))
	if err != nil {
		p.oauthFailure(c, rc)
		apierror.Render(c, apierror.Wrap(apierror.Internal, apierror.ReasonInternal, err))
		return
	}

	refreshValue, err := randomToken()
	if err != nil {
		p.oauthFailure(c, rc)
		apierror.Render(c, apierror.Wrap(apierror.Internal, apierror.ReasonInternal, err))
		return
	}
	refreshSession := codestore.Session{
		Kind:       codestore.KindRefresh,
		Code:       refreshValue,
		Scopes:     session.Scopes,
		Payload:    session.Payload,
		TTLSeconds: p.refreshTTL(),
		CreatedAt:  now,
	}
	if err := p.Codes.Put(c.Request.Context(), refreshSession); err != nil {
		p.oauthFailure(c, rc)
		apierror.Render(c, apierror.Wrap(apierror.Internal, apierror.ReasonInternal, err))
		return
	}

	p.oauthSuccess(rc)
	if p.Metrics != nil {
		p.Metrics.TokenStored.WithLabelValues(rc.Tenant.Name).Inc()
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    p.tokenExpirationSeconds(),
		RefreshToken: refreshValue,
		Scope:        joinScopes(session.Scopes),
	})
}

func (p *Pipeline) tokenRefresh(c *gin.Context, rc *resolver.RequestContext) {
	token := c.PostForm("refresh_token")
	session, ok, err := p.Codes.Get(c.Request.Context(), codestore.KindRefresh, token, p.Config.RemoveRefreshTokenOnUse)
	if err != nil {
		p.oauthFailure(c, rc)
		apierror.Render(c, apierror.Wrap(apierror.DependencyUnavailable, apierror.ReasonInternal, err))
		return
	}
	if !ok {
		p.oauthFailure(c, rc)
		apierror.Render(c, apierror.New(apierror.Unauthorized, apierror.ReasonInvalidGrant))
		return
	}

	claims := buildClaims(session.Payload, time.Duration(p.tokenExpirationSeconds())*time.Second, p.clock())
	access, _, err := p.Signer.Sign(claims, signingAlgorithm(rc.Mode))
	if err != nil {
		p.oauthFailure(c, rc)
		apierror.Render(c, apierror.Wrap(apierror.Internal, apierror.ReasonInternal, err))
		return
	}

	p.oauthSuccess(rc)
	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   p.tokenExpirationSeconds(),
		Scope:       joinScopes(session.Scopes),
	})
}

func (p *Pipeline) tokenPassword(c *gin.Context, rc *resolver.RequestContext) {
	tenant := rc.Tenant
	username := c.PostForm("username")
	password := c.PostForm("password")

	result, err := p.Scripts.Run(c.Request.Context(), tenant, ClassUserLoginProvider, map[string]any{"username": username, "password": password})
	if err != nil || !result.Decision() {
		p.oauthFailure(c, rc)
		apierror.Render(c, apierror.New(apierror.Forbidden, apierror.ReasonForbidden))
		return
	}

	payload := codestore.Payload{Subject: username, Tenant: tenant.Name}
	if role, ok := result.StringProp("role"); ok {
		payload.Role = role
	}
	if subject, ok := result.Subject(); ok {
		payload.Subject = subject
	}
	payload.Responsibility = responsibilityHash(rc.ResponsibleDomain)

	claims := buildClaims(payload, time.Duration(p.tokenExpirationSeconds())*time.Second, p.clock())
	access, _, err := p.Signer.Sign(claims, signingAlgorithm(rc.Mode))
	if err != nil {
		p.oauthFailure(c, rc)
		apierror.Render(c, apierror.Wrap(apierror.Internal, apierror.ReasonInternal, err))
		return
	}

	p.oauthSuccess(rc)
	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   p.tokenExpirationSeconds(),
	})
}

func (p *Pipeline) tokenClientCredentials(c *gin.Context, rc *resolver.RequestContext) {
	if rc.Client == nil {
		p.oauthFailure(c, rc)
		apierror.Render(c, apierror.New(apierror.BadRequest, apierror.ReasonNoClient))
		return
	}
	secret := c.PostForm("client_secret")
	if !rc.Client.CheckSecret(secret) || rc.Client.Secret == "" {
		p.oauthFailure(c, rc)
		apierror.Render(c, apierror.New(apierror.Unauthorized, apierror.ReasonInvalidClient))
		return
	}
	if !rc.Client.SupportsGrant(entity.GrantClientCredentials) {
		p.oauthFailure(c, rc)
		p.denyClient(rc.Client.TenantName, rc.Client.ID, "grant not supported")
		apierror.Render(c, apierror.New(apierror.Forbidden, apierror.ReasonForbidden))
		return
	}

	payload := codestore.Payload{Subject: rc.Client.ID, Tenant: rc.Client.TenantName}
	claims := buildClaims(payload, time.Duration(p.tokenExpirationSeconds())*time.Second, p.clock())
	access, _, err := p.Signer.Sign(claims, signingAlgorithm(rc.Mode))
	if err != nil {
		p.oauthFailure(c, rc)
		apierror.Render(c, apierror.Wrap(apierror.Internal, apierror.ReasonInternal, err))
		return
	}

	p.oauthSuccess(rc)
	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   p.tokenExpirationSeconds(),
		Scope:       joinScopes(rc.Client.Scopes),
	})
}

func (p *Pipeline) refreshTTL() int {
	if p.Config.RefreshTTLSeconds > 0 {
		return p.Config.RefreshTTLSeconds
	}
	return DefaultRefreshTTLSeconds
}

// TokenInfo implements GET /token/info, returning the resolved payload as
// a UserInfo-shaped JSON body.
func (p *Pipeline) TokenInfo(c *gin.Context) {
	rc, _ := resolver.FromGinContext(c)
	if rc == nil || !rc.HasValidPayload() {
		apierror.Render(c, apierror.New(apierror.Unauthorized, apierror.ReasonInvalidGrant))
		return
	}
	c.JSON(http.StatusOK, map[string]any(rc.ValidPayload))
}
