// Package codestore implements the CodeStore component: a TTL-indexed map
// of authorization-code/refresh-token sessions and single-use login
// sessions, with pluggable backends (codestore/memory, codestore/
// redisstore) sharing the contract declared here.
package codestore

import (
	"context"
	"errors"
	"time"
)

// Kind distinguishes the two AuthSession flavors sharing one keyspace.
type Kind string

const (
	KindCode    Kind = "code"
	KindRefresh Kind = "refresh"
)

// PKCEMethod is the challenge method carried by a code session.
type PKCEMethod string

const (
	PKCENone  PKCEMethod = "none"
	PKCEPlain PKCEMethod = "plain"
	PKCES256  PKCEMethod = "S256"
)

// Payload is the subject/tenant/role/profile claim set a session will mint
// into a token at exchange time.
type Payload struct {
	Subject      string
	Tenant       string
	Role         string
	User         string
	Profile      map[string]any
	Responsibility string
}

// Session is an AuthSession per spec §3: an in-flight or completed
// authorization record.
type Session struct {
	Kind          Kind
	Code          string
	State         string
	Scopes        []string
	Payload       Payload
	Redirect      string
	PKCEChallenge string
	PKCEMethod    PKCEMethod
	TTLSeconds    int
	CreatedAt     time.Time
}

// Expired reports whether s is unreachable at instant now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.CreatedAt.Add(time.Duration(s.TTLSeconds) * time.Second))
}

// ErrCodeTaken is returned by Put when (kind, value) already exists.
var ErrCodeTaken = errors.New("codestore: code already taken")

// Store is the contract shared by every CodeStore backend, per spec §4.E.
type Store interface {
	// Put inserts session, failing with ErrCodeTaken if (kind, code)
	// already exists.
	Put(ctx context.Context, session Session) error

	// Get atomically fetches the session for (kind, value), optionally
	// removing it in the same operation. Returns (Session{}, false) if
	// expired or absent.
	Get(ctx context.Context, kind Kind, value string, remove bool) (Session, bool, error)

	// Count returns the number of live sessions.
	Count(ctx context.Context) (int, error)

	// Delete removes (kind, value) unconditionally.
	Delete(ctx context.Context, kind Kind, value string) error

	// Wipe revokes every session whose payload matches (tenant, subject).
	Wipe(ctx context.Context, tenant, subject string)

	// Push inserts a single-use LoginSession.
	Push(ctx context.Context, login LoginSession) error

	// Pull atomically consumes a login id: returns true and removes it
	// iff present; every subsequent call for the same id returns false.
	Pull(ctx context.Context, loginID string) (bool, error)

	// Healthy reports whether the backend is currently reachable.
	Healthy(ctx context.Context) bool
}

// LoginSession bridges a successful /login and the ensuing /authorize call.
type LoginSession struct {
	LoginID    string
	TTLSeconds int
	CreatedAt  time.Time
}

// DefaultLoginTTLSeconds is the default LoginSession lifetime per spec §3.
const DefaultLoginTTLSeconds = 120

// Expired reports whether l is unreachable at instant now.
func (l LoginSession) Expired(now time.Time) bool {
	return !now.Before(l.CreatedAt.Add(time.Duration(l.TTLSeconds) * time.Second))
}
