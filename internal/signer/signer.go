// Package signer implements the Signer component: HS256 signing with a
// process-wide symmetric secret, and rotating RS256 signing with a JWKS
// export, grounded on the teacher's internal/auth/service.go key-generation
// and JWT-minting code, generalized into a standalone, mutex-guarded type.
package signer

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jose "gopkg.in/go-jose/go-jose.v2"
)

// Algorithm selects which of the two signing schemes a token uses.
type Algorithm string

const (
	HS256 Algorithm = "HS256"
	RS256 Algorithm = "RS256"
)

var (
	// ErrNoActiveKey is the key-lookup error Verify meets when an RS256
	// token references a kid the signer no longer holds; Verify reports it
	// to its caller as ErrInvalidToken.
	ErrNoActiveKey = errors.New("signer: no such signing key")
	// ErrInvalidToken covers every verification failure: malformed,
	// wrong algorithm, bad signature, or unknown kid. Per §7, all of
	// these recover to "anonymous" for the caller.
	ErrInvalidToken = errors.New("signer: invalid token")
)

type rsaKey struct {
	kid        string
	priv       *rsa.PrivateKey
	pub        *rsa.PublicKey
	createdAt  time.Time
	active     bool
}

// Signer holds the process-wide HMAC secret and the rotating RSA key set
// behind a single mutex, per spec §5 "Signer uses a mutex over its key set".
type Signer struct {
	mu         sync.RWMutex
	hmacSecret []byte
	keys       map[string]*rsaKey
	active     string

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// New returns a Signer using hmacSecret for HS256. If hmacSecret is empty, a
// fresh random 32-byte secret is generated — matching spec §4.A ("from
// environment, or freshly random at startup").
func New(hmacSecret []byte) (*Signer, error) {
	if len(hmacSecret) == 0 {
		hmacSecret = make([]byte, 32)
		if _, err := rand.Read(hmacSecret); err != nil {
			return nil, fmt.Errorf("generate hmac secret: %w", err)
		}
	}
	return &Signer{
		hmacSecret: hmacSecret,
		keys:       make(map[string]*rsaKey),
		now:        time.Now,
	}, nil
}

// Sign mints a token from claims using algorithm. HS256 tokens carry no kid
// in the header; RS256 tokens do, and sign lazily generates the first key if
// the set is empty.
func (s *Signer) Sign(claims jwt.MapClaims, algorithm Algorithm) (token string, kid string, err error) {
	switch algorithm {
	case HS256:
		t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := t.SignedString(s.hmacSecret)
		if err != nil {
			return "", "", fmt.Errorf("sign HS256: %w", err)
		}
		return signed, "", nil

	case RS256:
		key, err := s.ActiveSigningKey()
		if err != nil {
			return "", "", fmt.Errorf("sign RS256: %w", err)
		}
		t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		t.Header["kid"] = key.kid
		signed, err := t.SignedString(key.priv)
		if err != nil {
			return "", "", fmt.Errorf("sign RS256: %w", err)
		}
		return signed, key.kid, nil

	default:
		return "", "", fmt.Errorf("sign: unsupported algorithm %q", algorithm)
	}
}

// Verify parses and validates token, returning its claims. Any failure
// (malformed, wrong algorithm, bad signature, expired-but-structurally-
// invalid, unknown kid) is reported as ErrInvalidToken; callers treat the
// request as anonymous per §7, except that an expired-but-valid token is
// returned with claims intact so the caller can distinguish "expired" from
// "invalid" (RequestContext.expired, per §4.F).
func (s *Signer) Verify(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "RS256"}))

	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		switch t.Method.Alg() {
		case "HS256":
			return s.hmacSecret, nil
		case "RS256":
			kid, _ := t.Header["kid"].(string)
			s.mu.RLock()
			k, ok := s.keys[kid]
			s.mu.RUnlock()
			if !ok {
				return nil, ErrNoActiveKey
			}
			return k.pub, nil
		default:
			return nil, fmt.Errorf("unexpected alg %q", t.Method.Alg())
		}
	})

	if err != nil {
		// jwt/v5 reports expiry via errors.Is(err, jwt.ErrTokenExpired);
		// the claims are still populated in that case and useful to the
		// caller for computing RequestContext.expired.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return claims, nil
		}
		return nil, ErrInvalidToken
	}
	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ActiveSigningKey returns the current active RSA key, lazily generating one
// (RSA-2048, kid = today's UTC date) if the set is empty.
func (s *Signer) ActiveSigningKey() (*rsaKey, error) {
	s.mu.RLock()
	if s.active != "" {
		k := s.keys[s.active]
		s.mu.RUnlock()
		return k, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check under the write lock: another goroutine may have raced us.
	if s.active != "" {
		return s.keys[s.active], nil
	}
	return s.generateAndActivateLocked(s.now().UTC())
}

func (s *Signer) generateAndActivateLocked(at time.Time) (*rsaKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	kid := uniqueKidLocked(s.keys, at.Format("2006-01-02"))
	k := &rsaKey{kid: kid, priv: priv, pub: &priv.PublicKey, createdAt: at, active: true}
	for _, other := range s.keys {
		other.active = false
	}
	s.keys[kid] = k
	s.active = kid
	return k, nil
}

// uniqueKidLocked resolves the Open Question on same-day rotation: if base
// is already taken, it appends "-2", "-3", ... until a free kid is found.
func uniqueKidLocked(existing map[string]*rsaKey, base string) string {
	if _, taken := existing[base]; !taken {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if _, taken := existing[candidate]; !taken {
			return candidate
		}
	}
}

// Rotate forces generation of a new active RSA key dated now, deactivating
// all others, and returns its kid.
func (s *Signer) Rotate(now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, err := s.generateAndActivateLocked(now.UTC())
	if err != nil {
		return "", err
	}
	return k.kid, nil
}

// GC removes inactive keys created strictly before cutoff. The active key is
// never removed, even if it predates cutoff. Returns the number removed.
func (s *Signer) GC(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for kid, k := range s.keys {
		if k.active {
			continue
		}
		if k.createdAt.Before(cutoff) {
			delete(s.keys, kid)
			n++
		}
	}
	return n
}

// PublicKeySet returns the JWKS document for every RSA key currently held
// (active and retained-inactive), so recently rotated-out keys remain
// verifiable for tokens minted under them until GC'd.
func (s *Signer) PublicKeySet() jose.JSONWebKeySet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := jose.JSONWebKeySet{}
	for kid, k := range s.keys {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       k.pub,
			KeyID:     kid,
			Algorithm: string(RS256),
			Use:       "sig",
		})
	}
	return set
}

// KeyID returns the rsaKey's identifier; exported for callers that only
// hold the key via ActiveSigningKey.
func (k *rsaKey) KeyID() string { return k.kid }
