package templates_test

import (
	"context"
	"testing"

	"github.com/bouncerhq/bouncer/internal/templates"
	"github.com/bouncerhq/bouncer/internal/templates/fsstore"
)

func TestResolveFallsBackToTenantIndex(t *testing.T) {
	store := fsstore.New(t.TempDir())
	if err := store.Put("acme/index", []byte("acme index")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	l := templates.New(store)

	data, key, err := l.Resolve(context.Background(), "acme", "login")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if key != "acme/index" || string(data) != "acme index" {
		t.Fatalf("got (%q, %q)", key, data)
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	store := fsstore.New(t.TempDir())
	if err := store.Put("default/login", []byte("default login")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	l := templates.New(store)

	data, key, err := l.Resolve(context.Background(), "acme", "login")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if key != "default/login" || string(data) != "default login" {
		t.Fatalf("got (%q, %q)", key, data)
	}
}

func TestResolvePrefersTenantSpecificPage(t *testing.T) {
	store := fsstore.New(t.TempDir())
	_ = store.Put("default/login", []byte("default login"))
	_ = store.Put("acme/login", []byte("acme login"))
	l := templates.New(store)

	data, key, err := l.Resolve(context.Background(), "acme", "login")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if key != "acme/login" || string(data) != "acme login" {
		t.Fatalf("got (%q, %q)", key, data)
	}
}

func TestResolveNoCandidateReturnsError(t *testing.T) {
	store := fsstore.New(t.TempDir())
	l := templates.New(store)

	if _, _, err := l.Resolve(context.Background(), "acme", "login"); err == nil {
		t.Fatal("expected error when no candidate exists")
	}
}
