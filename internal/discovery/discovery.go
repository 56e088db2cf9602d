// Package discovery implements the Discovery component:
// /.well-known/openid-configuration and /.well-known/jwks.json, grounded on
// the teacher's JWKS() method in internal/auth/service.go and spec §4.H's
// field list.
package discovery

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/bouncerhq/bouncer/internal/entity"
	"github.com/bouncerhq/bouncer/internal/resolver"
	"github.com/bouncerhq/bouncer/internal/signer"
	"github.com/bouncerhq/bouncer/pkg/apierror"
)

// Document is the OpenID discovery document per spec §4.H.
type Document struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint"`
	JWKSURI                          string   `json:"jwks_uri"`
	ScopesSupported                  []string `json:"scopes_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	CodeChallengeMethodsSupported    []string `json:"code_challenge_methods_supported"`
	OpPolicyURI                      string   `json:"op_policy_uri,omitempty"`
	ServiceDocumentation             string   `json:"service_documentation,omitempty"`
}

// Handlers bundles the two discovery endpoints and the per-tenant 1h TTL
// cache of discovery documents. The JWKS response is not cached; it is
// built from the signer's key set on every request.
type Handlers struct {
	Store  *entity.Store
	Signer *signer.Signer
	cache  *cache
}

// New constructs discovery Handlers backed by store and signer.
func New(store *entity.Store, s *signer.Signer) *Handlers {
	return &Handlers{Store: store, Signer: s, cache: newCache()}
}

// OpenIDConfiguration serves GET /.well-known/openid-configuration.
func (h *Handlers) OpenIDConfiguration(c *gin.Context) {
	rc, _ := resolver.FromGinContext(c)
	if rc == nil || rc.Tenant == nil {
		apierror.Render(c, apierror.New(apierror.BadRequest, apierror.ReasonNoClient))
		return
	}

	doc := h.cache.getOrBuild(rc.Tenant.Name, func() Document {
		return h.buildDocument(rc)
	})
	c.JSON(http.StatusOK, doc)
}

func (h *Handlers) buildDocument(rc *resolver.RequestContext) Document {
	issuer := rc.Scheme + "://" + rc.Host

	scopes := map[string]struct{}{"openid": {}, "profile": {}, "email": {}}
	grants := map[string]struct{}{
		entity.GrantAuthorizationCode: {},
		entity.GrantRefreshToken:      {},
	}
	for _, cl := range h.Store.Clients(rc.Tenant.Name) {
		for _, s := range cl.Scopes {
			scopes[s] = struct{}{}
		}
		for _, g := range cl.EffectiveGrantTypes() {
			grants[g] = struct{}{}
		}
	}

	doc := Document{
		Issuer:                           issuer,
		AuthorizationEndpoint:            issuer + "/authorize",
		TokenEndpoint:                    issuer + "/token",
		UserinfoEndpoint:                 issuer + "/token/info",
		JWKSURI:                          issuer + "/.well-known/jwks.json",
		ScopesSupported:                  sortedKeys(scopes),
		GrantTypesSupported:              sortedKeys(grants),
		ResponseTypesSupported:           []string{"code"},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
		CodeChallengeMethodsSupported:    []string{"S256", "plain"},
		OpPolicyURI:                      rc.Tenant.Informations.Privacy,
		ServiceDocumentation:             rc.Tenant.Informations.Imprint,
	}
	return doc
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// JWKS serves GET /.well-known/jwks.json.
func (h *Handlers) JWKS(c *gin.Context) {
	// ActiveSigningKey lazily generates a key if the set is empty, per
	// spec §4.H ("auto-generates an active key if none exists").
	if _, err := h.Signer.ActiveSigningKey(); err != nil {
		apierror.Render(c, apierror.Wrap(apierror.Internal, apierror.ReasonInternal, err))
		return
	}
	c.JSON(http.StatusOK, h.Signer.PublicKeySet())
}
