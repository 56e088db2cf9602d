package pipeline

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/bouncerhq/bouncer/internal/codestore"
)

// randomToken returns a cryptographically random value from the
// unreserved alphabet, ≥32 chars, per spec §3's Code definition, grounded
// on the teacher's generateAuthorizationCode/generateRefreshToken
// (crypto/rand + base64.RawURLEncoding).
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// verifyPKCE checks verifier against the stored challenge/method on a code
// session, per spec §4.G's POST /token authorization_code branch and §8
// scenario B/testable-property 6, grounded on the teacher's
// verifyCodeChallenge (sha256 + constant-time compare).
func verifyPKCE(method codestore.PKCEMethod, challenge, verifier string) bool {
	switch method {
	case codestore.PKCENone, "":
		return true
	case codestore.PKCEPlain:
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	case codestore.PKCES256:
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
	default:
		return false
	}
}
