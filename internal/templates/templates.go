// Package templates implements the TemplateLoader component: resolving a
// tenant's HTML page templates (index/login/logout/error) through a
// fallback chain, per spec §4.J. Grounded on the teleport-plugins staging
// package's s3.Client wiring, generalized here to a small io.ReadCloser
// Source interface with fsstore and s3store implementations.
package templates

import (
	"context"
	"errors"
	"html/template"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrNotFound is returned by a Source when key does not exist.
var ErrNotFound = errors.New("templates: not found")

// Source fetches a single named object (bucket/prefix resolution is the
// Source implementation's concern; callers pass a fully-qualified key).
type Source interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Loader resolves (tenant, page) to rendered bytes through the fallback
// chain defined by spec §4.J: "<slug>/<page>" -> "<slug>/index" ->
// "default/<page>" -> "default/index".
type Loader struct {
	Source Source
}

// New constructs a Loader reading through src.
func New(src Source) *Loader {
	return &Loader{Source: src}
}

// Resolve returns the template bytes for (slug, page), walking the
// fallback chain and returning the first candidate that exists.
func (l *Loader) Resolve(ctx context.Context, slug, page string) ([]byte, string, error) {
	candidates := []string{
		slug + "/" + page,
		slug + "/index",
		"default/" + page,
		"default/index",
	}

	var lastErr error
	for _, key := range candidates {
		rc, err := l.Source.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				lastErr = err
				continue
			}
			return nil, "", err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, "", err
		}
		return data, key, nil
	}
	return nil, "", lastErr
}

// Render resolves (slug, page) through l and writes the parsed template,
// executed against data, as the response body with status, per spec
// §4.G/§4.J's HTML rendering of login/logout/error pages. slug is "default"
// when no tenant is resolved (e.g. a request to an unknown host).
func Render(c *gin.Context, l *Loader, slug, page string, status int, data map[string]any) error {
	if slug == "" {
		slug = "default"
	}
	body, key, err := l.Resolve(c.Request.Context(), slug, page)
	if err != nil {
		return err
	}
	tmpl, err := template.New(key).Parse(string(body))
	if err != nil {
		return err
	}
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	return tmpl.Execute(c.Writer, data)
}

// RenderOrFallback calls Render and, if it fails for any reason (template
// store unreachable, no candidate found), falls back to a minimal inline
// body so a login failure never surfaces as a blank or crashed response.
func RenderOrFallback(c *gin.Context, l *Loader, slug, page string, status int, data map[string]any) {
	if l != nil {
		if err := Render(c, l, slug, page, status, data); err == nil {
			return
		}
	}
	c.Status(status)
	c.Header("Content-Type", "text/plain; charset=utf-8")
	_, _ = c.Writer.Write([]byte(http.StatusText(status)))
}
