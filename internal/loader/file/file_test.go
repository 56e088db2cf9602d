package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bouncerhq/bouncer/internal/loader"
)

func TestInitialScanEmitsExistingDocuments(t *testing.T) {
	root := t.TempDir()
	mustWriteTenant(t, root, "acme.yml", "acme", "app.acme.example")

	src, err := New(root, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer src.Close()

	select {
	case ev := <-src.Events():
		if ev.Kind != loader.KindTenant || ev.Op != loader.OpAdded {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial scan event")
	}
}

func TestWatchEmitsOnWrite(t *testing.T) {
	root := t.TempDir()
	src, err := New(root, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer src.Close()

	mustWriteTenant(t, root, "beta.yml", "beta", "app.beta.example")

	select {
	case ev := <-src.Events():
		if ev.Kind != loader.KindTenant {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watch event")
	}
}

func mustWriteTenant(t *testing.T, root, name, tenantName, host string) {
	t.Helper()
	dir := filepath.Join(root, "Tenants")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := "metadata:\n  name: " + tenantName + "\nspec:\n  hosts:\n    - " + host + "\n"
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
