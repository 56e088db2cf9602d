// Package fsstore implements templates.Source over a local directory tree,
// used for the teacher's default "file" deployment mode before any
// object-store tenant override is configured.
package fsstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/bouncerhq/bouncer/internal/templates"
)

// Store reads "<root>/<key>.html" files.
type Store struct {
	root string
}

// New returns a Store rooted at root.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	path := filepath.Join(s.root, filepath.FromSlash(key)+".html")
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, templates.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Put atomically writes data to "<root>/<key>.html" via a temp-file-then-
// rename, so a concurrent Get never observes a partially written file.
func (s *Store) Put(key string, data []byte) error {
	path := filepath.Join(s.root, filepath.FromSlash(key)+".html")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// RemoveTenant deletes "<root>/<slug>" and everything under it, used when a
// tenant is removed from the EntityStore so its cached pages don't outlive
// the tenant.
func (s *Store) RemoveTenant(slug string) error {
	return os.RemoveAll(filepath.Join(s.root, filepath.FromSlash(slug)))
}
