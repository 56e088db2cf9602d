package fsstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/bouncerhq/bouncer/internal/templates"
)

func TestPutThenGetRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Put("acme/login", []byte("<html>hi</html>")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rc, err := s.Get(context.Background(), "acme/login")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "<html>hi</html>" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Get(context.Background(), "acme/missing")
	if !errors.Is(err, templates.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
