package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bouncerhq/bouncer/internal/codestore"
	"github.com/bouncerhq/bouncer/internal/resolver"
	"github.com/bouncerhq/bouncer/internal/signer"
)

// signingAlgorithm picks HS256 for OAuth mode and RS256 for interceptor
// mode, per spec §4.G.7 ("HS256 in OAuth mode, RS256 in interceptor mode —
// see §5").
func signingAlgorithm(mode resolver.Mode) signer.Algorithm {
	if mode == resolver.ModeInterceptor {
		return signer.RS256
	}
	return signer.HS256
}

// buildClaims assembles the access-token payload per spec §4.G.7.
func buildClaims(payload codestore.Payload, expiresIn time.Duration, now time.Time) jwt.MapClaims {
	claims := jwt.MapClaims{
		"sub":    payload.Subject,
		"exp":    now.Add(expiresIn).Unix(),
		"iat":    now.Unix(),
		"tenant": payload.Tenant,
	}
	if payload.Role != "" {
		claims["role"] = payload.Role
	}
	if payload.User != "" {
		claims["user"] = payload.User
	}
	if payload.Profile != nil {
		claims["profile"] = payload.Profile
	}
	if payload.Responsibility != "" {
		claims["responsibility"] = payload.Responsibility
	}
	return claims
}

// responsibilityHash computes the responsibility claim from the resolved
// responsible_domain, per spec §4.G.6 ("compute the responsibility hash
// from responsible_domain").
func responsibilityHash(responsibleDomain string) string {
	sum := sha256.Sum256([]byte(responsibleDomain))
	return hex.EncodeToString(sum[:])
}

// TokenResponse is the POST /token success body, per spec §6.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}
