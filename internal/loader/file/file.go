// Package file implements a loader.Source watching a directory tree of YAML
// Tenant/Client documents, grounded on the teacher's config-reload pattern
// (fsnotify.NewWatcher, debounced reload) generalized from a single config
// file to a directory of declarative documents per spec §4.C.
package file

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/bouncerhq/bouncer/internal/loader"
)

// Source watches <root>/Tenants and <root>/Clients for *.yml/*.yaml files.
type Source struct {
	root    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	events  chan loader.Event
	done    chan struct{}
}

// New creates a Source rooted at root and performs an initial full scan
// before returning, so the first Events() read observes the directory's
// current contents.
func New(root string, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	s := &Source{
		root:    root,
		logger:  logger,
		watcher: w,
		events:  make(chan loader.Event, 64),
		done:    make(chan struct{}),
	}

	for _, sub := range []string{"Tenants", "Clients"} {
		dir := filepath.Join(root, sub)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			w.Close()
			return nil, err
		}
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, err
		}
	}

	s.scan()
	go s.watch()
	return s, nil
}

func (s *Source) Events() <-chan loader.Event { return s.events }

func (s *Source) Close() error {
	close(s.done)
	return s.watcher.Close()
}

func (s *Source) scan() {
	for _, sub := range []string{"Tenants", "Clients"} {
		dir := filepath.Join(s.root, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !isYAML(e.Name()) {
				continue
			}
			s.emit(filepath.Join(dir, e.Name()), loader.OpAdded)
		}
	}
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml")
}

func (s *Source) kindForPath(path string) loader.Kind {
	if strings.Contains(filepath.ToSlash(path), "/Tenants/") {
		return loader.KindTenant
	}
	return loader.KindClient
}

func (s *Source) watch() {
	// debounce rapid successive writes (editors often write+rename)
	var debounce *time.Timer
	pending := make(map[string]fsnotify.Op)

	flush := func() {
		for path, op := range pending {
			if op&fsnotify.Remove != 0 || op&fsnotify.Rename != 0 {
				s.emitDelete(path)
				continue
			}
			s.emit(path, loader.OpModified)
		}
		pending = make(map[string]fsnotify.Op)
	}

	for {
		select {
		case <-s.done:
			if debounce != nil {
				debounce.Stop()
			}
			close(s.events)
			return

		case ev, ok := <-s.watcher.Events:
			if !ok {
				continue
			}
			if !isYAML(ev.Name) {
				continue
			}
			pending[ev.Name] |= ev.Op
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, flush)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				continue
			}
			s.logger.Error("file watch error", zap.Error(err))
		}
	}
}

func (s *Source) emit(path string, op loader.Op) {
	raw, err := os.ReadFile(path)
	if err != nil {
		s.logger.Error("read declarative document", zap.Error(err), zap.String("path", path))
		return
	}
	s.events <- loader.Event{
		Ref:  loader.Ref{Origin: "file", Path: absPath(path)},
		Kind: s.kindForPath(path),
		Op:   op,
		Raw:  raw,
	}
}

func (s *Source) emitDelete(path string) {
	s.events <- loader.Event{
		Ref:  loader.Ref{Origin: "file", Path: absPath(path)},
		Kind: s.kindForPath(path),
		Op:   loader.OpDeleted,
	}
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
