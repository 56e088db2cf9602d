package resolver

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/bouncerhq/bouncer/internal/entity"
)

// RequestContext is attached early to every request, per spec §3: scheme,
// host, resolved tenant/client, and the decoded bearer/cookie payload if
// any was present and verifiable.
type RequestContext struct {
	Scheme            string
	Host              string
	URI               string
	Mode              Mode
	ResponsibleDomain string
	Referer           string
	ServiceURL        string

	Tenant *entity.Tenant
	Client *entity.Client

	Subject      string
	ValidPayload jwt.MapClaims
	Expired      bool
}

// HasValidPayload reports whether a structurally valid, non-expired token
// was resolved for this request.
func (rc *RequestContext) HasValidPayload() bool {
	return rc.ValidPayload != nil && !rc.Expired
}
