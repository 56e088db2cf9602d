// Package entity holds the in-memory registry of Tenants and Clients: the
// EntityStore component. Tenants and Clients are created and mutated only by
// an internal/loader Source; every other package holds references by name or
// id and re-resolves them through the Store.
package entity

import "time"

// Tenant is a unit of isolation: a name, a set of hosts it answers on, and
// the provider scripts/templates/interceptor config scoped to it.
type Tenant struct {
	Name string

	// Hosts is an ordered list of literal domains or wildcard patterns
	// ("*.x.y"). A host belongs to at most one tenant across the store.
	Hosts []string

	Interceptor InterceptorConfig

	// SilentLogin defaults to true: a valid existing session satisfies
	// /authorize without a fresh form submission.
	SilentLogin bool

	// ProviderScripts is an ordered multiset of verbatim script sources.
	ProviderScripts []string

	Templates *TemplateSource

	Informations TenantInformations

	// Ref identifies the declarative source document this tenant was
	// built from (file path, or control-plane UUID+revision). Used by
	// the loader for idempotent replace/delete and never interpreted
	// here.
	Ref string
}

// InterceptorConfig configures forward-auth (interceptor) mode for a tenant.
type InterceptorConfig struct {
	Enabled      bool
	CookieDomain string
	LoginDomain  string
}

// TemplateSource points TemplateLoader at an object-store location holding a
// tenant's index/login/logout/error templates.
type TemplateSource struct {
	Bucket string
	Prefix string
}

// TenantInformations carries optional informational links surfaced in
// discovery and rendered templates.
type TenantInformations struct {
	Imprint  string
	Privacy  string
	Register string
}

// Client is an OAuth client registered to exactly one tenant.
type Client struct {
	ID         string
	TenantName string

	// RedirectURLPatterns are anchored regular expressions a candidate
	// redirect_uri must fully match.
	RedirectURLPatterns []string

	// GrantTypes defaults to {authorization_code, refresh_token} when
	// empty.
	GrantTypes []string

	// Scopes, when non-empty, is a whitelist every granted scope set is
	// intersected against.
	Scopes []string

	// Referrers are anchored regexes validated against the Referer
	// header when no loginid is present on /authorize.
	Referrers []string

	// Secret, if set, is bcrypt-hashed at rest and required on /token.
	Secret string

	PKCEOnly bool

	Ref string
}

const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantPassword          = "password"
	GrantClientCredentials = "client_credentials"
)

// DefaultGrantTypes returns the grant types a Client supports when it
// declares none explicitly.
func DefaultGrantTypes() []string {
	return []string{GrantAuthorizationCode, GrantRefreshToken}
}

// EffectiveGrantTypes returns c.GrantTypes, or DefaultGrantTypes() if empty.
func (c *Client) EffectiveGrantTypes() []string {
	if len(c.GrantTypes) == 0 {
		return DefaultGrantTypes()
	}
	return c.GrantTypes
}

// SupportsGrant reports whether c declares (or defaults to) grant.
func (c *Client) SupportsGrant(grant string) bool {
	for _, g := range c.EffectiveGrantTypes() {
		if g == grant {
			return true
		}
	}
	return false
}

// Kind distinguishes the entity types the loader and change hooks deal in.
type Kind string

const (
	KindTenant Kind = "tenant"
	KindClient Kind = "client"
)

// Action distinguishes the mutation a change hook observed.
type Action string

const (
	ActionAdded   Action = "added"
	ActionRemoved Action = "removed"
)

// Event is published to OnChange subscribers after a mutation is visible in
// the store.
type Event struct {
	Kind   Kind
	Action Action
	// Name is the tenant name or client id the event concerns.
	Name string
	At   time.Time
}
