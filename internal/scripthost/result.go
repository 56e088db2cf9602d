package scripthost

import (
	"github.com/dop251/goja"
)

// Result is the outcome of a successful sandbox run: the constructed class
// instance plus every value accumulated via commit().
type Result struct {
	instance *goja.Object
	commits  []commitEntry
}

// Decision interprets the first committed primary value as a truthy/falsy
// decision, per spec §4.D ("the first committed primary value is
// interpreted as a truthy/falsy decision by the caller").
func (r *Result) Decision() bool {
	if len(r.commits) == 0 {
		return false
	}
	return truthy(r.commits[0].primary)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case int64:
		return x != 0
	case int:
		return x != 0
	default:
		return true
	}
}

// Values returns every committed primary value, in commit order.
func (r *Result) Values() []any {
	out := make([]any, len(r.commits))
	for i, c := range r.commits {
		out[i] = c.primary
	}
	return out
}

// Subject scans the committed extras for the first object carrying a
// non-empty "subject" field, overriding the default subject claim per spec
// §4.D.
func (r *Result) Subject() (string, bool) {
	for _, c := range r.commits {
		obj, ok := c.extra.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := obj["subject"].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// ProposedScopes scans the committed extras for the first object carrying a
// non-empty space-separated "scopes" field, per spec §4.D. The caller must
// still intersect these against the client's scope whitelist.
func (r *Result) ProposedScopes() ([]string, bool) {
	for _, c := range r.commits {
		obj, ok := c.extra.(map[string]any)
		if !ok {
			continue
		}
		s, ok := obj["scopes"].(string)
		if !ok || s == "" {
			continue
		}
		return splitScopes(s), true
	}
	return nil, false
}

func splitScopes(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

// Prop reads a typed property off the instantiated class instance, per
// spec §4.D's "subsequent property reads r.<prop>".
func (r *Result) Prop(name string) (any, bool) {
	if r.instance == nil {
		return nil, false
	}
	v := r.instance.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	return v.Export(), true
}

// StringProp is Prop narrowed to strings, the common case for instance
// properties like role.
func (r *Result) StringProp(name string) (string, bool) {
	v, ok := r.Prop(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
