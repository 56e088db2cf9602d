// Package metrics implements the EventRecorder component: named Prometheus
// counters plus per-client denial counters and a control-plane status
// back-reporting callback, generalizing the teacher's
// pkg/observability/metrics.go NewMetrics() (two generic HTTP counters)
// into the named counters spec §4.K enumerates.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bouncerhq/bouncer/internal/entity"
)

// Prefix is the metric name prefix, per spec §6 ("<app>_<metric>").
const Prefix = "bouncer"

// Status summarizes a client's health for control-plane back-reporting,
// keyed by the same client id string the EntityStore uses.
type Status struct {
	Ref     string
	Healthy bool
	Message string
}

// Recorder wraps the named counters/histograms enumerated in spec §4.K.
type Recorder struct {
	LoginAttempts       *prometheus.CounterVec
	LoginSuccess        *prometheus.CounterVec
	LoginFailure        *prometheus.CounterVec
	Logout              *prometheus.CounterVec
	InterceptorSuccess  *prometheus.CounterVec
	InterceptorFailure  *prometheus.CounterVec
	AuthorizeAttempts   *prometheus.CounterVec
	OAuthSuccess        *prometheus.CounterVec
	OAuthFailure        *prometheus.CounterVec
	TokenStored         *prometheus.CounterVec
	TenantsCount        prometheus.Gauge
	ClientsCount        prometheus.Gauge

	// ClientDenials counts denials per client id, surfaced in
	// control-plane status per the supplemented feature in SPEC_FULL.md
	// §6, grounded on the teacher's internal/governance/webhook_api.go
	// status-reporting shape.
	ClientDenials *prometheus.CounterVec

	onStatus func(string, Status)
}

// New registers every counter/gauge against reg (typically
// prometheus.DefaultRegisterer) and returns the Recorder.
func New(reg prometheus.Registerer) *Recorder {
	tenantLabels := []string{"tenant"}
	clientLabels := []string{"tenant", "client"}

	r := &Recorder{
		LoginAttempts:      newCounterVec(reg, "login_attempts", "Login attempts observed.", tenantLabels),
		LoginSuccess:       newCounterVec(reg, "login_success", "Successful logins.", tenantLabels),
		LoginFailure:       newCounterVec(reg, "login_failure", "Failed logins.", tenantLabels),
		Logout:             newCounterVec(reg, "logout", "Logouts observed.", tenantLabels),
		InterceptorSuccess: newCounterVec(reg, "interceptor_success", "Interceptor checks that passed.", tenantLabels),
		InterceptorFailure: newCounterVec(reg, "interceptor_failure", "Interceptor checks that failed.", tenantLabels),
		AuthorizeAttempts:  newCounterVec(reg, "authorize_attempts", "Authorize attempts observed.", tenantLabels),
		OAuthSuccess:       newCounterVec(reg, "oauth_success", "Successful OAuth exchanges.", tenantLabels),
		OAuthFailure:       newCounterVec(reg, "oauth_failure", "Failed OAuth exchanges.", tenantLabels),
		TokenStored:        newCounterVec(reg, "token_stored", "Tokens stored in the code store.", tenantLabels),
		ClientDenials:      newCounterVec(reg, "client_denials", "Per-client denial count.", clientLabels),
		TenantsCount: newGauge(reg, "tenants_count", "Live tenant count."),
		ClientsCount: newGauge(reg, "clients_count", "Live client count."),
	}
	return r
}

func newCounterVec(reg prometheus.Registerer, name, help string, labels []string) *prometheus.CounterVec {
	v := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Prefix,
		Name:      name,
		Help:      help,
	}, labels)
	if reg != nil {
		reg.MustRegister(v)
	}
	return v
}

func newGauge(reg prometheus.Registerer, name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Prefix,
		Name:      name,
		Help:      help,
	})
	if reg != nil {
		reg.MustRegister(g)
	}
	return g
}

// OnStatus registers the back-reporting callback invoked by DenyClient.
func (r *Recorder) OnStatus(fn func(clientID string, status Status)) {
	r.onStatus = fn
}

// DenyClient increments the per-client denial counter and invokes the
// registered status callback, if any.
func (r *Recorder) DenyClient(tenant, clientID, reason string) {
	r.ClientDenials.WithLabelValues(tenant, clientID).Inc()
	if r.onStatus != nil {
		r.onStatus(clientID, Status{Ref: clientID, Healthy: false, Message: reason})
	}
}

// SyncEntityCounts updates TenantsCount/ClientsCount from store, meant to
// be called from store.OnChange.
func (r *Recorder) SyncEntityCounts(store *entity.Store) {
	tenants, clients := store.Counts()
	r.TenantsCount.Set(float64(tenants))
	r.ClientsCount.Set(float64(clients))
}
