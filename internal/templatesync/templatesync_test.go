package templatesync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bouncerhq/bouncer/internal/entity"
	"github.com/bouncerhq/bouncer/internal/templates/fsstore"
)

func TestHandleEventIgnoresClientEvents(t *testing.T) {
	dest := fsstore.New(t.TempDir())
	s := New(nil, dest, nil)
	store := entity.NewStore()

	// Must not panic despite a nil *s3.Client: client events return before
	// anything touches s.Client.
	s.HandleEvent(context.Background(), entity.Event{Kind: entity.KindClient, Action: entity.ActionAdded, Name: "c1"}, store)
}

func TestHandleEventAddedWithoutTemplatesIsNoop(t *testing.T) {
	root := t.TempDir()
	dest := fsstore.New(root)
	s := New(nil, dest, nil)
	store := entity.NewStore()
	if err := store.InsertTenant(&entity.Tenant{Name: "acme", Hosts: []string{"acme.example.com"}}); err != nil {
		t.Fatalf("InsertTenant: %v", err)
	}

	s.HandleEvent(context.Background(), entity.Event{Kind: entity.KindTenant, Action: entity.ActionAdded, Name: "acme"}, store)

	if _, err := os.Stat(filepath.Join(root, "acme")); !os.IsNotExist(err) {
		t.Fatalf("expected no cache directory for a tenant without Templates, stat err = %v", err)
	}
}

func TestHandleEventRemovedDeletesCache(t *testing.T) {
	root := t.TempDir()
	dest := fsstore.New(root)
	if err := dest.Put("acme/login", []byte("<html>hi</html>")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s := New(nil, dest, nil)
	store := entity.NewStore()

	s.HandleEvent(context.Background(), entity.Event{Kind: entity.KindTenant, Action: entity.ActionRemoved, Name: "acme"}, store)

	if _, err := os.Stat(filepath.Join(root, "acme")); !os.IsNotExist(err) {
		t.Fatalf("expected cache directory removed, stat err = %v", err)
	}
}
