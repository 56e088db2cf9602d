// Package redisstore implements codestore.Store against Redis (or any
// Redis-wire-compatible external KV), enrichment from the stacklok-toolhive
// manifest's redis/go-redis/v9 usage, replacing the teacher's Postgres-
// backed session stores — nothing in this spec's data model is relational
// (see DESIGN.md).
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bouncerhq/bouncer/internal/codestore"
)

// DefaultOperationTimeout bounds every single Redis round trip, per spec §5
// ("external-KV default 5 s per operation").
const DefaultOperationTimeout = 5 * time.Second

// Store is the Redis-backed CodeStore backend.
type Store struct {
	client *redis.Client

	// opTimeout bounds individual Redis calls; Wipe's background scan is
	// exempt (it runs detached from any one request's deadline).
	opTimeout time.Duration
}

// Config configures the Redis connection, grounded on the JWT_SECRET-
// adjacent REDIS_HOST/REDIS_PASSWORD environment variables from spec §6.
type Config struct {
	Host     string
	Password string
	DB       int
}

// New dials a Redis client per cfg.
func New(cfg Config) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Host,
		Password: cfg.Password,
		DB:       cfg.DB,
	}))
}

// NewWithClient wraps an already-constructed redis.Client, letting tests
// point a Store at a miniredis instance without going through Config.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, opTimeout: DefaultOperationTimeout}
}

func sessionKey(kind codestore.Kind, value string) string {
	return fmt.Sprintf("%s~%s", kind, value)
}

const loginKeyPrefix = "login~"

func loginKey(id string) string {
	return loginKeyPrefix + id
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// Put stores session under "<kind>~<value>" via SET NX, then issues an
// EXPIRE for ttl_seconds immediately after, per spec §4.E.
func (s *Store) Put(ctx context.Context, session codestore.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	blob, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redisstore: marshal session: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	key := sessionKey(session.Kind, session.Code)
	ok, err := s.client.SetNX(ctx, key, blob, 0).Result()
	if err != nil {
		return fmt.Errorf("redisstore: SETNX: %w", err)
	}
	if !ok {
		return codestore.ErrCodeTaken
	}
	if session.TTLSeconds > 0 {
		if err := s.client.Expire(ctx, key, time.Duration(session.TTLSeconds)*time.Second).Err(); err != nil {
			return fmt.Errorf("redisstore: EXPIRE: %w", err)
		}
	}
	return nil
}

// Get fetches (kind, value), optionally removing it atomically via GETDEL.
func (s *Store) Get(ctx context.Context, kind codestore.Kind, value string, remove bool) (codestore.Session, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	key := sessionKey(kind, value)
	var blob string
	var err error
	if remove {
		blob, err = s.client.GetDel(ctx, key).Result()
	} else {
		blob, err = s.client.Get(ctx, key).Result()
	}
	if err == redis.Nil {
		return codestore.Session{}, false, nil
	}
	if err != nil {
		return codestore.Session{}, false, fmt.Errorf("redisstore: GET: %w", err)
	}
	var sess codestore.Session
	if err := json.Unmarshal([]byte(blob), &sess); err != nil {
		return codestore.Session{}, false, fmt.Errorf("redisstore: unmarshal session: %w", err)
	}
	return sess, true, nil
}

// Count scans the keyspace for live session keys. This is an O(n) admin/
// diagnostic operation, not used on any request hot path.
func (s *Store) Count(ctx context.Context) (int, error) {
	n := 0
	it := s.client.Scan(ctx, 0, string(codestore.KindCode)+"~*", 0).Iterator()
	for it.Next(ctx) {
		n++
	}
	if err := it.Err(); err != nil {
		return 0, err
	}
	it2 := s.client.Scan(ctx, 0, string(codestore.KindRefresh)+"~*", 0).Iterator()
	for it2.Next(ctx) {
		n++
	}
	return n, it2.Err()
}

// Delete removes (kind, value) unconditionally.
func (s *Store) Delete(ctx context.Context, kind codestore.Kind, value string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Del(ctx, sessionKey(kind, value)).Err()
}

// Wipe launches a detached background task that SCANs the keyspace and
// pipelines DELs for every session whose decoded payload matches (tenant,
// subject), per spec §4.E ("performed on a background task so the caller
// does not block").
func (s *Store) Wipe(ctx context.Context, tenant, subject string) {
	go s.wipe(context.WithoutCancel(ctx), tenant, subject)
}

func (s *Store) wipe(ctx context.Context, tenant, subject string) {
	for _, prefix := range []string{string(codestore.KindCode), string(codestore.KindRefresh)} {
		it := s.client.Scan(ctx, 0, prefix+"~*", 100).Iterator()
		var toDelete []string
		for it.Next(ctx) {
			key := it.Val()
			blob, err := s.client.Get(ctx, key).Result()
			if err != nil {
				continue
			}
			var sess codestore.Session
			if err := json.Unmarshal([]byte(blob), &sess); err != nil {
				continue
			}
			if sess.Payload.Tenant == tenant && sess.Payload.Subject == subject {
				toDelete = append(toDelete, key)
			}
		}
		if len(toDelete) == 0 {
			continue
		}
		pipe := s.client.Pipeline()
		for _, key := range toDelete {
			pipe.Del(ctx, key)
		}
		_, _ = pipe.Exec(ctx)
	}
}

// Push stores a LoginSession under "login~<id>" with its TTL.
func (s *Store) Push(ctx context.Context, login codestore.LoginSession) error {
	if login.CreatedAt.IsZero() {
		login.CreatedAt = time.Now()
	}
	if login.TTLSeconds == 0 {
		login.TTLSeconds = codestore.DefaultLoginTTLSeconds
	}
	blob, err := json.Marshal(login)
	if err != nil {
		return fmt.Errorf("redisstore: marshal login session: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Set(ctx, loginKey(login.LoginID), blob, time.Duration(login.TTLSeconds)*time.Second).Err()
}

// Pull atomically consumes a login id via GETDEL: exactly-once per spec.
func (s *Store) Pull(ctx context.Context, loginID string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	blob, err := s.client.GetDel(ctx, loginKey(loginID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redisstore: GETDEL: %w", err)
	}
	var l codestore.LoginSession
	if err := json.Unmarshal([]byte(blob), &l); err != nil {
		return false, fmt.Errorf("redisstore: unmarshal login session: %w", err)
	}
	return true, nil
}

// Healthy pings the Redis connection.
func (s *Store) Healthy(ctx context.Context) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Ping(ctx).Err() == nil
}
