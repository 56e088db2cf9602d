// Package controlplane implements a loader.Source backed by Kubernetes
// Tenant/Client custom resources, watched via a dynamic informer. Grounded
// on the codespace-operator example's schema.GroupVersionResource +
// k8s.io/client-go/dynamic wiring, generalized from a typed controller-runtime
// client to the raw dynamic informer the loader's Source contract needs.
package controlplane

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/tools/cache"

	"github.com/bouncerhq/bouncer/internal/loader"
)

// Group/Version used by the Tenant and Client custom resources.
const (
	Group   = "bouncer.bouncerhq.io"
	Version = "v1"
)

var (
	tenantGVR = schema.GroupVersionResource{Group: Group, Version: Version, Resource: "tenants"}
	clientGVR = schema.GroupVersionResource{Group: Group, Version: Version, Resource: "clients"}
)

// Source watches Tenant and Client custom resources across all namespaces
// (namespace "" meaning cluster-scoped, or the configured namespace when
// scoped per spec §4.C's Namespace config).
type Source struct {
	events chan loader.Event
	stop   chan struct{}
	logger *zap.Logger

	dyn       dynamic.Interface
	namespace string
}

// New starts informers for both resources against dyn, scoped to namespace
// ("" for all namespaces).
func New(dyn dynamic.Interface, namespace string, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Source{
		events:    make(chan loader.Event, 128),
		stop:      make(chan struct{}),
		logger:    logger,
		dyn:       dyn,
		namespace: namespace,
	}

	var factory dynamicinformer.DynamicSharedInformerFactory
	if namespace == "" {
		factory = dynamicinformer.NewDynamicSharedInformerFactory(dyn, 10*time.Minute)
	} else {
		factory = dynamicinformer.NewFilteredDynamicSharedInformerFactory(dyn, 10*time.Minute, namespace, nil)
	}

	s.watch(factory.ForResource(tenantGVR).Informer(), loader.KindTenant)
	s.watch(factory.ForResource(clientGVR).Informer(), loader.KindClient)

	factory.Start(s.stop)
	factory.WaitForCacheSync(s.stop)

	return s, nil
}

func (s *Source) watch(informer cache.SharedIndexInformer, kind loader.Kind) {
	informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) {
			s.emit(obj, kind, loader.OpAdded)
		},
		UpdateFunc: func(_, newObj any) {
			s.emit(newObj, kind, loader.OpModified)
		},
		DeleteFunc: func(obj any) {
			u, ok := obj.(*unstructured.Unstructured)
			if !ok {
				if tomb, ok := obj.(cache.DeletedFinalStateUnknown); ok {
					u, ok = tomb.Obj.(*unstructured.Unstructured)
					if !ok {
						return
					}
				} else {
					return
				}
			}
			s.events <- loader.Event{Ref: refOf(u), Kind: kind, Op: loader.OpDeleted}
		},
	})
}

func (s *Source) emit(obj any, kind loader.Kind, op loader.Op) {
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		return
	}
	raw, err := json.Marshal(toDoc(u))
	if err != nil {
		s.logger.Error("marshal custom resource", zap.Error(err))
		return
	}
	s.events <- loader.Event{Ref: refOf(u), Kind: kind, Op: op, Raw: raw}
}

func refOf(u *unstructured.Unstructured) loader.Ref {
	return loader.Ref{
		Origin:   "controlplane",
		UID:      string(u.GetUID()),
		Revision: u.GetResourceVersion(),
	}
}

// toDoc reshapes the unstructured custom resource into the {metadata,spec}
// JSON document that loader.TenantDoc/loader.ClientDoc expect, so the same
// decode path the file.Source uses (minus YAML vs JSON) applies here too.
func toDoc(u *unstructured.Unstructured) map[string]any {
	meta, _, _ := unstructured.NestedMap(u.Object, "metadata")
	spec, _, _ := unstructured.NestedMap(u.Object, "spec")
	return map[string]any{
		"metadata": map[string]any{"name": metav1NameOf(meta, u)},
		"spec":     spec,
	}
}

func metav1NameOf(meta map[string]any, u *unstructured.Unstructured) string {
	if meta != nil {
		if name, ok := meta["name"].(string); ok && name != "" {
			return name
		}
	}
	return u.GetName()
}

func (s *Source) Events() <-chan loader.Event { return s.events }

func (s *Source) Close() error {
	close(s.stop)
	return nil
}

// clientStatusPatch is the status sub-resource document UpdateClientStatus
// merge-patches onto a Client custom resource, per spec §4.K(b)'s
// "back-reporting tenant/client state".
type clientStatusPatch struct {
	Status struct {
		Healthy bool   `json:"healthy"`
		Message string `json:"message"`
	} `json:"status"`
}

// UpdateClientStatus merge-patches the status sub-resource of the Client
// custom resource named name, reporting EventRecorder's view of that
// client's health back to the control plane.
func (s *Source) UpdateClientStatus(ctx context.Context, name string, healthy bool, message string) error {
	var patch clientStatusPatch
	patch.Status.Healthy = healthy
	patch.Status.Message = message
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}

	_, err = s.dyn.Resource(clientGVR).Namespace(s.namespace).Patch(
		ctx, name, types.MergePatchType, raw, metav1.PatchOptions{}, "status")
	return err
}
