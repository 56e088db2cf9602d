// Package templatesync drives the TemplateLoader's reaction to EntityStore
// tenant mutations, per spec §4.J/§2: on a tenant addition whose Templates
// descriptor is non-nil, fetch that tenant's index/login/logout/error pages
// from its own bucket/prefix and cache them locally; on tenant removal,
// delete the cached slug directory. Kept out of internal/templates itself
// to avoid that package's import cycle with both internal/templates/fsstore
// and internal/templates/s3store.
package templatesync

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/bouncerhq/bouncer/internal/entity"
	"github.com/bouncerhq/bouncer/internal/templates"
	"github.com/bouncerhq/bouncer/internal/templates/fsstore"
	"github.com/bouncerhq/bouncer/internal/templates/s3store"
)

// pages is every page TemplateLoader's fallback chain resolves, per spec
// §4.J.
var pages = []string{"index", "login", "logout", "error"}

// Syncer fetches a tenant's object-store-hosted templates into a local
// fsstore.Store whenever EntityStore reports a tenant addition or removal.
// It only makes sense while the primary serving mode is local (ViewRoot
// rather than a single shared S3_TEMPLATE_BUCKET): a tenant's Templates
// field is a per-tenant override, not an alternative to the server-wide
// source.
type Syncer struct {
	Client *s3.Client
	Dest   *fsstore.Store
	Logger *zap.Logger
}

// New constructs a Syncer writing into dest using client to read tenant
// override buckets.
func New(client *s3.Client, dest *fsstore.Store, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{Client: client, Dest: dest, Logger: logger}
}

// HandleEvent is registered via entity.Store.OnChange and reacts to
// KindTenant events; KindClient events are not its concern.
func (s *Syncer) HandleEvent(ctx context.Context, ev entity.Event, store *entity.Store) {
	if ev.Kind != entity.KindTenant {
		return
	}
	switch ev.Action {
	case entity.ActionAdded:
		s.syncAdded(ctx, ev.Name, store)
	case entity.ActionRemoved:
		if err := s.Dest.RemoveTenant(ev.Name); err != nil {
			s.Logger.Warn("remove cached tenant templates", zap.String("tenant", ev.Name), zap.Error(err))
		}
	}
}

func (s *Syncer) syncAdded(ctx context.Context, name string, store *entity.Store) {
	tenant, ok := store.Tenant(name)
	if !ok || tenant.Templates == nil {
		return
	}
	src := s3store.New(s.Client, tenant.Templates.Bucket, tenant.Templates.Prefix)
	for _, page := range pages {
		rc, err := src.Get(ctx, page)
		if err != nil {
			if errors.Is(err, templates.ErrNotFound) {
				continue
			}
			s.Logger.Warn("fetch tenant template", zap.String("tenant", name), zap.String("page", page), zap.Error(err))
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			s.Logger.Warn("read tenant template", zap.String("tenant", name), zap.String("page", page), zap.Error(err))
			continue
		}
		if err := s.Dest.Put(fmt.Sprintf("%s/%s", name, page), data); err != nil {
			s.Logger.Warn("cache tenant template", zap.String("tenant", name), zap.String("page", page), zap.Error(err))
		}
	}
}
