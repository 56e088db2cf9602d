package pipeline

import "strings"

// parseScopes splits a space-separated scope string, per OAuth convention.
func parseScopes(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Fields(s)
}

// joinScopes renders a scope set back to the space-separated wire format.
func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// intersectScopes returns requested ∩ whitelist, preserving requested's
// order. An empty whitelist means "no restriction" per spec §3's Client
// "optional scopes (whitelist)".
func intersectScopes(requested, whitelist []string) []string {
	if len(whitelist) == 0 {
		return requested
	}
	allowed := make(map[string]bool, len(whitelist))
	for _, s := range whitelist {
		allowed[s] = true
	}
	out := make([]string, 0, len(requested))
	for _, s := range requested {
		if allowed[s] {
			out = append(out, s)
		}
	}
	return out
}
