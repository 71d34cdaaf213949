// Package settings resolves per-school configuration values.
//
// Resolution order: school override, then deployment override, then
// built-in default. Unknown keys resolve to the empty string rather
// than an error so callers can treat every setting as optional.
package settings

// Built-in defaults. Every supported key appears here.
var builtin = map[string]string{
	"warning_window_days": "7",
	"dashboard_path":      "/admin/dashboard",
	"pricing_path":        "/pricing",
	"currency":            "NGN",
	"session_label":       "2025/2026",
}

// Resolver answers setting lookups against the three layers.
type Resolver struct {
	deployment map[string]string
}

// NewResolver creates a resolver with deployment-level overrides,
// which sit between built-in defaults and per-school values. A nil map
// is fine.
func NewResolver(deployment map[string]string) *Resolver {
	return &Resolver{deployment: deployment}
}

// Resolve returns the value of key for a school, given the school's
// stored overrides.
func (r *Resolver) Resolve(key string, school map[string]string) string {
	if v, ok := school[key]; ok && v != "" {
		return v
	}
	if v, ok := r.deployment[key]; ok && v != "" {
		return v
	}
	return builtin[key]
}

// Known reports whether key is a supported setting.
func Known(key string) bool {
	_, ok := builtin[key]
	return ok
}

// Keys returns every supported setting key.
func Keys() []string {
	out := make([]string, 0, len(builtin))
	for k := range builtin {
		out = append(out, k)
	}
	return out
}
