// Package memory implements codestore.Store with an in-process map guarded
// by a mutex and a periodic sweep goroutine, generalizing the teacher's
// sync.Mutex+map pattern in internal/auth/login_attempt_store.go from a
// SQL-backed lockout tracker to an in-memory TTL session map.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bouncerhq/bouncer/internal/codestore"
)

type codeKey struct {
	kind  codestore.Kind
	value string
}

// DefaultSweepInterval is how often the background goroutine scans for
// expired sessions, per spec §4.E ("default every 5 s").
const DefaultSweepInterval = 5 * time.Second

// Store is the in-memory CodeStore backend.
type Store struct {
	mu sync.Mutex

	sessions map[codeKey]codestore.Session
	logins   map[string]codestore.LoginSession

	now func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// New constructs a Store and starts its background sweep goroutine at
// interval. Call Close to stop the goroutine.
func New(interval time.Duration) *Store {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s := &Store{
		sessions: make(map[codeKey]codestore.Session),
		logins:   make(map[string]codestore.LoginSession),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go s.sweepLoop(interval)
	return s
}

// Close stops the background sweep goroutine.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, k)
		}
	}
	for id, l := range s.logins {
		if l.Expired(now) {
			delete(s.logins, id)
		}
	}
}

func (s *Store) Put(_ context.Context, session codestore.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now()
	}
	key := codeKey{kind: session.Kind, value: session.Code}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[key]; ok && !existing.Expired(s.now()) {
		return codestore.ErrCodeTaken
	}
	s.sessions[key] = session
	return nil
}

func (s *Store) Get(_ context.Context, kind codestore.Kind, value string, remove bool) (codestore.Session, bool, error) {
	key := codeKey{kind: kind, value: value}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return codestore.Session{}, false, nil
	}
	if sess.Expired(s.now()) {
		delete(s.sessions, key)
		return codestore.Session{}, false, nil
	}
	if remove {
		delete(s.sessions, key)
	}
	return sess, true, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions), nil
}

func (s *Store) Delete(_ context.Context, kind codestore.Kind, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, codeKey{kind: kind, value: value})
	return nil
}

func (s *Store) Wipe(_ context.Context, tenant, subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, sess := range s.sessions {
		if sess.Payload.Tenant == tenant && sess.Payload.Subject == subject {
			delete(s.sessions, k)
		}
	}
}

func (s *Store) Push(_ context.Context, login codestore.LoginSession) error {
	if login.CreatedAt.IsZero() {
		login.CreatedAt = s.now()
	}
	if login.TTLSeconds == 0 {
		login.TTLSeconds = codestore.DefaultLoginTTLSeconds
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins[login.LoginID] = login
	return nil
}

func (s *Store) Pull(_ context.Context, loginID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logins[loginID]
	if !ok {
		return false, nil
	}
	delete(s.logins, loginID)
	if l.Expired(s.now()) {
		return false, nil
	}
	return true, nil
}

func (s *Store) Healthy(context.Context) bool { return true }
