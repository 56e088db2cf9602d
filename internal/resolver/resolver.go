// Package resolver implements the ClientResolver component: a gin
// middleware constructing a per-request RequestContext from the request's
// host, body/query, and bearer/cookie token, generalizing the teacher's
// pkg/middleware/tenant.go header-based tenant extraction into full
// host/body/query resolution, token extraction, and redirect/referrer
// validation per spec §4.F.
package resolver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bouncerhq/bouncer/internal/entity"
	"github.com/bouncerhq/bouncer/internal/signer"
)

// Mode distinguishes the two operating modes a request may resolve to.
type Mode string

const (
	ModeOAuth       Mode = "oauth"
	ModeInterceptor Mode = "interceptor"
)

// DefaultCookieName is the session cookie carrying the bearer JWT, per
// spec §6.
const DefaultCookieName = "uitsmijter-sso"

// Config configures host/mode/cookie resolution, grounded on the teacher's
// TenantConfig in pkg/middleware/tenant.go.
type Config struct {
	// Secure controls the scheme fallback when X-Forwarded-Proto is
	// absent: "https" if true, else "http".
	Secure bool

	// ModeHeader is the request header whose value "interceptor" selects
	// interceptor mode; defaults to "X-Uitsmijter-Mode".
	ModeHeader string

	// CookieName is the session cookie name; defaults to
	// DefaultCookieName.
	CookieName string

	// DefaultHost is used when neither X-Forwarded-Host nor Host is
	// present and no tenant host can be inferred.
	DefaultHost string
}

const contextKey = "bouncer.request_context"

// Middleware resolves a RequestContext for every request, consults store
// for tenant/client lookups, and verifies any bearer/cookie token via s.
func Middleware(store *entity.Store, s *signer.Signer, cfg Config) gin.HandlerFunc {
	if cfg.ModeHeader == "" {
		cfg.ModeHeader = "X-Uitsmijter-Mode"
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	return func(c *gin.Context) {
		rc := &RequestContext{}

		rc.Scheme = resolveScheme(c, cfg)
		rc.Host = resolveHost(c, store, cfg)
		rc.URI = c.Request.URL.RequestURI()
		rc.ServiceURL = rc.Scheme + "://" + rc.Host + rc.URI

		if strings.EqualFold(c.GetHeader(cfg.ModeHeader), "interceptor") {
			rc.Mode = ModeInterceptor
		} else {
			rc.Mode = ModeOAuth
		}
		rc.ResponsibleDomain = rc.Host
		rc.Referer = c.GetHeader("Referer")

		if tenant, ok := store.TenantByHost(rc.Host); ok {
			rc.Tenant = tenant
		}

		if clientID := resolveClientID(c); clientID != "" {
			if client, ok := store.Client(clientID); ok {
				rc.Client = client
			}
		}

		resolvePayload(c, s, cfg, rc)

		c.Set(contextKey, rc)
		c.Next()
	}
}

func resolveScheme(c *gin.Context, cfg Config) string {
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if cfg.Secure {
		return "https"
	}
	return "http"
}

func resolveHost(c *gin.Context, store *entity.Store, cfg Config) string {
	if h := c.GetHeader("X-Forwarded-Host"); h != "" {
		return h
	}
	if c.Request.Host != "" {
		return c.Request.Host
	}
	for _, t := range store.Tenants() {
		if len(t.Hosts) > 0 {
			return t.Hosts[0]
		}
	}
	return cfg.DefaultHost
}

// resolveClientID reads client_id from the body first (JSON or form), then
// the query string, per spec §4.F.
func resolveClientID(c *gin.Context) string {
	if c.Request.Method == http.MethodPost {
		ct := c.GetHeader("Content-Type")
		switch {
		case strings.Contains(ct, "application/json"):
			body, err := c.GetRawData()
			if err == nil && len(body) > 0 {
				// restore the body for downstream handlers (c.ShouldBind,
				// c.PostForm) regardless of whether client_id was found here
				c.Request.Body = io.NopCloser(bytes.NewReader(body))
				var payload map[string]any
				if json.Unmarshal(body, &payload) == nil {
					if v, ok := payload["client_id"].(string); ok && v != "" {
						return v
					}
				}
			}
		default:
			if v := c.PostForm("client_id"); v != "" {
				return v
			}
		}
	}
	return c.Query("client_id")
}

// resolvePayload extracts and verifies the bearer token, from the
// Authorization header first, then the session cookie, per spec §4.F.
func resolvePayload(c *gin.Context, s *signer.Signer, cfg Config, rc *RequestContext) {
	token := bearerToken(c)
	if token == "" {
		if cookie, err := c.Cookie(cfg.CookieName); err == nil {
			token = cookie
		}
	}
	if token == "" {
		return
	}

	claims, err := s.Verify(token)
	if err != nil {
		return
	}

	if rc.Tenant != nil {
		if tenantClaim, _ := claims["tenant"].(string); tenantClaim != rc.Tenant.Name {
			return
		}
	}

	rc.ValidPayload = claims
	rc.Expired = isExpired(claims)
	if sub, ok := claims["sub"].(string); ok {
		rc.Subject = sub
	}
}

func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

func isExpired(claims jwt.MapClaims) bool {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}

// FromGinContext retrieves the RequestContext published by Middleware.
func FromGinContext(c *gin.Context) (*RequestContext, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil, false
	}
	rc, ok := v.(*RequestContext)
	return rc, ok
}
