// file: internal/source/registry.go
// version: 1.1.0
// guid: 9d2c4e6f-8a1b-4c3d-b5e7-f0a2c4e6d8b1

package source

import (
	"fmt"
	"log"
)

// Registry is the process-wide source table. It is populated once at startup
// and read-only afterwards, so lookups need no locking. Registration order is
// stable and doubles as the final ranking tie-break.
type Registry struct {
	byName  map[string]Source
	ordered []Source
	sealed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Source)}
}

// Register adds a source. Duplicate names and post-seal registration are
// programmer errors.
func (r *Registry) Register(s Source) error {
	if r.sealed {
		return fmt.Errorf("registry sealed, cannot register %q", s.Name())
	}
	if s.Name() == "" {
		return fmt.Errorf("source has empty name")
	}
	if _, exists := r.byName[s.Name()]; exists {
		return fmt.Errorf("duplicate source name %q", s.Name())
	}
	r.byName[s.Name()] = s
	r.ordered = append(r.ordered, s)
	status := "enabled"
	if !s.Enabled() {
		status = "disabled"
	}
	log.Printf("[INFO] Source registered: %s [%s] — %s", s.Label(), s.Name(), status)
	return nil
}

// MustRegister registers or panics. Used from the startup wiring only.
func (r *Registry) MustRegister(s Source) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Seal marks registration complete. After Seal the registry is immutable.
func (r *Registry) Seal() {
	r.sealed = true
}

// Get returns a source by name, or nil.
func (r *Registry) Get(name string) Source {
	return r.byName[name]
}

// All returns sources in registration order.
func (r *Registry) All() []Source {
	return r.ordered
}

// Searchable returns enabled sources serving the category, in registration
// order.
func (r *Registry) Searchable(cat Category) []Source {
	var out []Source
	for _, s := range r.ordered {
		if s.Enabled() && ServesCategory(s, cat) {
			out = append(out, s)
		}
	}
	return out
}

// OrderIndex returns the registration position of a source name, used as the
// deterministic ranking tie-break. Unknown names sort last.
func (r *Registry) OrderIndex(name string) int {
	for i, s := range r.ordered {
		if s.Name() == name {
			return i
		}
	}
	return len(r.ordered)
}

// Metadata returns the UI-facing description of every source.
func (r *Registry) Metadata() map[string]SourceMetadata {
	out := make(map[string]SourceMetadata, len(r.ordered))
	for _, s := range r.ordered {
		out[s.Name()] = SourceMetadata{
			Label:        s.Label(),
			Color:        s.Color(),
			Kind:         s.Kind(),
			Categories:   s.Categories(),
			Enabled:      s.Enabled(),
			ConfigFields: s.ConfigFields(),
		}
	}
	return out
}

// SourceMetadata is the JSON shape of one registry entry.
type SourceMetadata struct {
	Label        string        `json:"label"`
	Color        string        `json:"color"`
	Kind         Kind          `json:"kind"`
	Categories   []Category    `json:"categories"`
	Enabled      bool          `json:"enabled"`
	ConfigFields []ConfigField `json:"config_fields"`
	Health       *HealthInfo   `json:"health,omitempty"`
}
