// Package loader implements the EntityLoader component: it consumes
// declarative Tenant/Client documents from a Source (loader/file or
// loader/controlplane), applies them to an entity.Store, and retries
// orphaned clients whenever a tenant arrives, per spec §4.C.
package loader

import (
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/bouncerhq/bouncer/internal/entity"
)

// Op is the mutation a Source event carries.
type Op string

const (
	OpAdded    Op = "added"
	OpModified Op = "modified"
	OpDeleted  Op = "deleted"
)

// Kind distinguishes the two declarative document kinds.
type Kind string

const (
	KindTenant Kind = "Tenant"
	KindClient Kind = "Client"
)

// Ref identifies the declarative document an Event concerns, per spec
// §4.C's reference-equality rule: file references compare by absolute
// path; control-plane references compare by UUID plus an optional
// revision. File and control-plane references are never equal to each
// other — Origin disambiguates them.
type Ref struct {
	Origin   string // "file" or "controlplane"
	Path     string // absolute path, file sources only
	UID      string // control-plane UID, controlplane sources only
	Revision string // control-plane resourceVersion, optional
}

// Equal implements spec §4.C's reference-equality rule.
func (r Ref) Equal(other Ref) bool {
	if r.Origin != other.Origin {
		return false
	}
	if r.Origin == "file" {
		return r.Path == other.Path
	}
	if r.UID != other.UID {
		return false
	}
	if r.Revision == "" || other.Revision == "" {
		return true
	}
	return r.Revision == other.Revision
}

// Event is emitted by a Source for every observed change.
type Event struct {
	Ref  Ref
	Kind Kind
	Op   Op
	Raw  []byte
}

// Source is implemented by loader/file.Source and
// loader/controlplane.Source.
type Source interface {
	Events() <-chan Event
	// Close stops the source's background watch.
	Close() error
}

// TenantDoc is the declarative Tenant document shape, decoded from YAML
// (files) or equivalent JSON (control-plane), per spec §6.
type TenantDoc struct {
	Metadata struct {
		Name string `yaml:"name" json:"name"`
	} `yaml:"metadata" json:"metadata"`
	Spec struct {
		Hosts           []string `yaml:"hosts" json:"hosts"`
		Interceptor     struct {
			Enabled      bool   `yaml:"enabled" json:"enabled"`
			CookieDomain string `yaml:"cookie_domain" json:"cookie_domain"`
			LoginDomain  string `yaml:"login_domain" json:"login_domain"`
		} `yaml:"interceptor" json:"interceptor"`
		SilentLogin     *bool    `yaml:"silent_login" json:"silent_login"`
		ProviderScripts []string `yaml:"provider_scripts" json:"provider_scripts"`
		Templates       *struct {
			Bucket string `yaml:"bucket" json:"bucket"`
			Prefix string `yaml:"prefix" json:"prefix"`
		} `yaml:"templates" json:"templates"`
		Informations struct {
			Imprint  string `yaml:"imprint" json:"imprint"`
			Privacy  string `yaml:"privacy" json:"privacy"`
			Register string `yaml:"register" json:"register"`
		} `yaml:"informations" json:"informations"`
	} `yaml:"spec" json:"spec"`
}

// ClientDoc is the declarative Client document shape.
type ClientDoc struct {
	Metadata struct {
		Name string `yaml:"name" json:"name"`
	} `yaml:"metadata" json:"metadata"`
	Spec struct {
		ID                  string   `yaml:"id" json:"id"`
		TenantName          string   `yaml:"tenant_name" json:"tenant_name"`
		RedirectURLPatterns []string `yaml:"redirect_url_patterns" json:"redirect_url_patterns"`
		GrantTypes          []string `yaml:"grant_types" json:"grant_types"`
		Scopes              []string `yaml:"scopes" json:"scopes"`
		Referrers           []string `yaml:"referrers" json:"referrers"`
		Secret              string   `yaml:"secret" json:"secret"`
		PKCEOnly            bool     `yaml:"pkce_only" json:"pkce_only"`
	} `yaml:"spec" json:"spec"`
}

func (d TenantDoc) toTenant(ref Ref) *entity.Tenant {
	t := &entity.Tenant{
		Name:            d.Metadata.Name,
		Hosts:           d.Spec.Hosts,
		SilentLogin:     true,
		ProviderScripts: d.Spec.ProviderScripts,
		Ref:             ref.key(),
	}
	if d.Spec.SilentLogin != nil {
		t.SilentLogin = *d.Spec.SilentLogin
	}
	t.Interceptor = entity.InterceptorConfig{
		Enabled:      d.Spec.Interceptor.Enabled,
		CookieDomain: d.Spec.Interceptor.CookieDomain,
		LoginDomain:  d.Spec.Interceptor.LoginDomain,
	}
	if d.Spec.Templates != nil {
		t.Templates = &entity.TemplateSource{Bucket: d.Spec.Templates.Bucket, Prefix: d.Spec.Templates.Prefix}
	}
	t.Informations = entity.TenantInformations{
		Imprint:  d.Spec.Informations.Imprint,
		Privacy:  d.Spec.Informations.Privacy,
		Register: d.Spec.Informations.Register,
	}
	return t
}

func (d ClientDoc) toClient(ref Ref) *entity.Client {
	return &entity.Client{
		ID:                  d.Spec.ID,
		TenantName:          d.Spec.TenantName,
		RedirectURLPatterns: d.Spec.RedirectURLPatterns,
		GrantTypes:          d.Spec.GrantTypes,
		Scopes:              d.Spec.Scopes,
		Referrers:           d.Spec.Referrers,
		Secret:              d.Spec.Secret,
		PKCEOnly:            d.Spec.PKCEOnly,
		Ref:                 ref.key(),
	}
}

func (r Ref) key() string {
	if r.Origin == "file" {
		return "file:" + r.Path
	}
	return "cp:" + r.UID
}

// Loader consumes Events from a single Source and applies them to Store.
type Loader struct {
	Store  *entity.Store
	Logger *zap.Logger

	mu      sync.Mutex
	refs    map[string]Ref            // entity name -> originating ref, for dedup/delete
	pending map[string][]pendingClient // tenant name -> clients waiting for that tenant
}

type pendingClient struct {
	ref Ref
	doc ClientDoc
}

// New constructs a Loader writing into store.
func New(store *entity.Store, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		Store:   store,
		Logger:  logger,
		refs:    make(map[string]Ref),
		pending: make(map[string][]pendingClient),
	}
}

// Run consumes src.Events() until the channel closes.
func (l *Loader) Run(src Source) {
	for ev := range src.Events() {
		l.apply(ev)
	}
}

func (l *Loader) apply(ev Event) {
	switch ev.Op {
	case OpDeleted:
		l.delete(ev)
	default:
		l.upsert(ev)
	}
}

func (l *Loader) upsert(ev Event) {
	switch ev.Kind {
	case KindTenant:
		var doc TenantDoc
		if err := yaml.Unmarshal(ev.Raw, &doc); err != nil {
			l.Logger.Error("malformed tenant document, keeping previous version", zap.Error(err), zap.String("ref", ev.Ref.key()))
			return
		}
		tenant := doc.toTenant(ev.Ref)
		if err := l.Store.InsertTenant(tenant); err != nil {
			l.Logger.Error("tenant rejected", zap.Error(err), zap.String("tenant", tenant.Name))
			return
		}
		l.mu.Lock()
		l.refs[tenant.Name] = ev.Ref
		waiting := l.pending[tenant.Name]
		delete(l.pending, tenant.Name)
		l.mu.Unlock()

		for _, p := range waiting {
			client := p.doc.toClient(p.ref)
			if err := l.Store.InsertClient(client); err != nil {
				l.Logger.Error("pending client rejected", zap.Error(err), zap.String("client", client.ID))
				continue
			}
			l.mu.Lock()
			l.refs[client.ID] = p.ref
			l.mu.Unlock()
		}

	case KindClient:
		var doc ClientDoc
		if err := yaml.Unmarshal(ev.Raw, &doc); err != nil {
			l.Logger.Error("malformed client document, keeping previous version", zap.Error(err), zap.String("ref", ev.Ref.key()))
			return
		}
		if _, ok := l.Store.Tenant(doc.Spec.TenantName); !ok {
			l.mu.Lock()
			l.pending[doc.Spec.TenantName] = append(l.pending[doc.Spec.TenantName], pendingClient{ref: ev.Ref, doc: doc})
			l.mu.Unlock()
			return
		}
		client := doc.toClient(ev.Ref)
		if err := l.Store.InsertClient(client); err != nil {
			l.Logger.Error("client rejected", zap.Error(err), zap.String("client", client.ID))
			return
		}
		l.mu.Lock()
		l.refs[client.ID] = ev.Ref
		l.mu.Unlock()
	}
}

func (l *Loader) delete(ev Event) {
	switch ev.Kind {
	case KindTenant:
		for name, ref := range l.snapshotRefs() {
			if ref.Equal(ev.Ref) {
				l.Store.RemoveTenant(name)
				l.mu.Lock()
				delete(l.refs, name)
				l.mu.Unlock()
			}
		}
	case KindClient:
		for id, ref := range l.snapshotRefs() {
			if ref.Equal(ev.Ref) {
				l.Store.RemoveClient(id)
				l.mu.Lock()
				delete(l.refs, id)
				l.mu.Unlock()
			}
		}
	}
}

func (l *Loader) snapshotRefs() map[string]Ref {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Ref, len(l.refs))
	for k, v := range l.refs {
		out[k] = v
	}
	return out
}
