// Package middleware carries the teacher's standalone gin middlewares,
// generalized from a single-tenant API gateway to this server's
// multi-tenant login/token surface.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterEntry pairs a per-key limiter with the last time it was touched,
// replacing the teacher's size-triggered full-map reset with idle
// eviction, since a multi-tenant deployment's key space (tenant host + IP)
// churns on a different shape than a single IP space.
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter buckets requests by an arbitrary string key — "tenant
// host|IP" in front of /authorize, /login and /token — so one tenant's brute-force
// attempt can't exhaust another tenant's request budget.
type KeyedRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	r       rate.Limit
	b       int
	idleTTL time.Duration
}

// NewKeyedRateLimiter creates a limiter allowing r events/sec with burst b
// per key, evicting keys idle longer than idleTTL (default 10 minutes).
func NewKeyedRateLimiter(r rate.Limit, b int, idleTTL time.Duration) *KeyedRateLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	k := &KeyedRateLimiter{
		entries: make(map[string]*limiterEntry),
		r:       r,
		b:       b,
		idleTTL: idleTTL,
	}
	go k.janitor()
	return k
}

func (k *KeyedRateLimiter) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for now := range ticker.C {
		k.mu.Lock()
		for key, e := range k.entries {
			if now.Sub(e.lastSeen) > k.idleTTL {
				delete(k.entries, key)
			}
		}
		k.mu.Unlock()
	}
}

// Allow reports whether a request for key may proceed, creating that key's
// token bucket on first use.
func (k *KeyedRateLimiter) Allow(key string) bool {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(k.r, k.b)}
		k.entries[key] = e
	}
	e.lastSeen = time.Now()
	k.mu.Unlock()
	return e.limiter.Allow()
}

// Gin returns a middleware that rejects requests once key(c) exceeds the
// configured rate with 429 Too Many Requests.
func (k *KeyedRateLimiter) Gin(key func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !k.Allow(key(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
			})
			return
		}
		c.Next()
	}
}

// TenantAndIPKey buckets by the resolved tenant host plus the caller's IP,
// so the limiter sees "tenant:acme attacker" and "tenant:other-tenant
// attacker" as independent budgets.
func TenantAndIPKey(c *gin.Context) string {
	host := c.Request.Host
	if fwd := c.GetHeader("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return host + "|" + c.ClientIP()
}
