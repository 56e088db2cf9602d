package entity

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// wildcardEntry pairs a compiled wildcard host pattern with the tenant that
// declared it, per §4.F's "*.a.b" matching rule.
type wildcardEntry struct {
	pattern *regexp.Regexp
	tenant  string
	raw     string
}

// Store is the process-wide, mutex-synchronized registry of Tenants and
// Clients. It is the single writer; readers observe a point-in-time
// snapshot taken under RLock.
type Store struct {
	mu sync.RWMutex

	tenants map[string]*Tenant
	clients map[string]*Client // keyed by lower-cased client id

	hostIndex map[string]string // literal host -> tenant name
	wildcards []wildcardEntry

	hooks []func(Event)
}

// NewStore returns an empty Store ready for use.
func NewStore() *Store {
	return &Store{
		tenants:   make(map[string]*Tenant),
		clients:   make(map[string]*Client),
		hostIndex: make(map[string]string),
	}
}

// OnChange registers a hook invoked, in registration order, after every
// mutation is visible in the store.
func (s *Store) OnChange(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// fire runs every hook with the store's lock released, so a hook may read
// the store; the caller holds the write lock and gets it back on return.
func (s *Store) fire(ev Event) {
	ev.At = time.Now().UTC()
	hooks := s.hooks
	s.mu.Unlock()
	defer s.mu.Lock()
	for _, h := range hooks {
		h(ev)
	}
}

// ErrHostCollision is returned by InsertTenant when one of the tenant's
// hosts already belongs to another tenant. The insert is rejected whole.
type ErrHostCollision struct {
	Host         string
	OwnedBy      string
	AttemptingBy string
}

func (e *ErrHostCollision) Error() string {
	return fmt.Sprintf("host %q already belongs to tenant %q (rejected insert for %q)", e.Host, e.OwnedBy, e.AttemptingBy)
}

func isWildcardHost(h string) bool {
	return strings.HasPrefix(h, "*.")
}

func compileWildcard(pattern string) (*regexp.Regexp, error) {
	parts := strings.SplitN(pattern, "*", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("not a wildcard pattern: %q", pattern)
	}
	expr := "^" + regexp.QuoteMeta(parts[0]) + "[A-Za-z0-9_-]+" + regexp.QuoteMeta(parts[1]) + "$"
	return regexp.Compile(expr)
}

// hostOwner reports which tenant (if any) currently owns host, checking the
// literal index first, then wildcard patterns in declaration order.
func (s *Store) hostOwner(host string) (string, bool) {
	if t, ok := s.hostIndex[host]; ok {
		return t, true
	}
	for _, w := range s.wildcards {
		if w.pattern.MatchString(host) {
			return w.tenant, true
		}
	}
	return "", false
}

// InsertTenant validates that none of t's hosts collide with an existing
// tenant before mutating anything: the insert is all-or-nothing. Replacing
// an existing tenant of the same name first logically removes it so its own
// hosts don't collide with themselves.
func (s *Store) InsertTenant(t *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, had := s.tenants[t.Name]

	for _, h := range t.Hosts {
		owner, ok := s.hostOwner(h)
		if ok && owner != t.Name {
			return &ErrHostCollision{Host: h, OwnedBy: owner, AttemptingBy: t.Name}
		}
	}
	// Cross-check the new tenant's own host list for wildcard overlaps
	// it would introduce against itself (e.g. duplicate patterns are
	// harmless; nothing further to validate here since hostOwner already
	// excludes self).
	_ = existing

	if had {
		s.unindexTenantHosts(existing)
	}

	s.tenants[t.Name] = t
	s.indexTenantHosts(t)

	action := ActionAdded
	if had {
		action = ActionAdded // replace is still surfaced as an add per loader semantics
	}
	s.fire(Event{Kind: KindTenant, Action: action, Name: t.Name})
	return nil
}

func (s *Store) indexTenantHosts(t *Tenant) {
	for _, h := range t.Hosts {
		if isWildcardHost(h) {
			re, err := compileWildcard(h)
			if err != nil {
				continue
			}
			s.wildcards = append(s.wildcards, wildcardEntry{pattern: re, tenant: t.Name, raw: h})
			continue
		}
		s.hostIndex[h] = t.Name
	}
}

func (s *Store) unindexTenantHosts(t *Tenant) {
	for _, h := range t.Hosts {
		if isWildcardHost(h) {
			continue
		}
		delete(s.hostIndex, h)
	}
	filtered := s.wildcards[:0]
	for _, w := range s.wildcards {
		if w.tenant != t.Name {
			filtered = append(filtered, w)
		}
	}
	s.wildcards = filtered
}

// RemoveTenant deletes t by name. Its clients are left in place, orphaned
// (dangling TenantName) — removal never cascades.
func (s *Store) RemoveTenant(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[name]
	if !ok {
		return false
	}
	s.unindexTenantHosts(t)
	delete(s.tenants, name)
	s.fire(Event{Kind: KindTenant, Action: ActionRemoved, Name: name})
	return true
}

// Tenant looks up a tenant by name.
func (s *Store) Tenant(name string) (*Tenant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[name]
	return t, ok
}

// TenantByHost resolves a host to its owning tenant, exact match preferred
// over wildcard.
func (s *Store) TenantByHost(host string) (*Tenant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.hostOwner(host)
	if !ok {
		return nil, false
	}
	t, ok := s.tenants[name]
	return t, ok
}

// Tenants returns a snapshot slice of every tenant currently registered.
func (s *Store) Tenants() []*Tenant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	return out
}

// InsertClient adds or replaces a client. Client secrets are bcrypt-hashed
// at rest before storage unless looksHashed reports the secret has
// already been hashed (the loader always passes plaintext from the
// declarative document).
func (s *Store) InsertClient(c *Client) error {
	if c.Secret != "" && !looksHashed(c.Secret) {
		hashed, err := bcrypt.GenerateFromPassword([]byte(c.Secret), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash client secret: %w", err)
		}
		c.Secret = string(hashed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[strings.ToLower(c.ID)] = c
	s.fire(Event{Kind: KindClient, Action: ActionAdded, Name: c.ID})
	return nil
}

func looksHashed(secret string) bool {
	return strings.HasPrefix(secret, "$2a$") || strings.HasPrefix(secret, "$2b$") || strings.HasPrefix(secret, "$2y$")
}

// RemoveClient deletes a client by id (case-insensitive).
func (s *Store) RemoveClient(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(id)
	if _, ok := s.clients[key]; !ok {
		return false
	}
	delete(s.clients, key)
	s.fire(Event{Kind: KindClient, Action: ActionRemoved, Name: id})
	return true
}

// Client looks up a client by id, case-insensitive.
func (s *Store) Client(id string) (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[strings.ToLower(id)]
	return c, ok
}

// Clients returns a snapshot slice of every client currently registered,
// optionally filtered by tenant name when tenantName is non-empty.
func (s *Store) Clients(tenantName string) []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		if tenantName != "" && c.TenantName != tenantName {
			continue
		}
		out = append(out, c)
	}
	return out
}

// CheckSecret reports whether plaintext matches the client's stored secret.
// A client with no configured secret always matches (secret check is
// optional per §4.G.6).
func (c *Client) CheckSecret(plaintext string) bool {
	if c.Secret == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(c.Secret), []byte(plaintext)) == nil
}

// Counts returns the live tenant and client counts, used by EventRecorder's
// tenants_count/clients_count gauges.
func (s *Store) Counts() (tenants, clients int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tenants), len(s.clients)
}
