// Package mlops tracks model versions, experiment runs, and prediction
// monitoring on local JSON files. It gives the heuristic models the same
// promote/rollback and drift-watch workflow a trained model would get,
// without an external ML platform.
package mlops

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"heater-fleet/pkg/prediction"
)

// ModelVersion records one promoted configuration of a model type.
type ModelVersion struct {
	Type       prediction.PredictionType `json:"type"`
	Version    string                    `json:"version"`
	ConfigHash string                    `json:"config_hash,omitempty"`
	PromotedAt time.Time                 `json:"promoted_at"`
	Notes      string                    `json:"notes,omitempty"`
}

// Registry is a JSON-file model registry. The file holds the currently
// promoted version per model type.
type Registry struct {
	mu       sync.Mutex
	path     string
	versions map[prediction.PredictionType]ModelVersion
}

// OpenRegistry loads (or creates) the registry file.
func OpenRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, versions: map[prediction.PredictionType]ModelVersion{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read model registry: %w", err)
	}
	var list []ModelVersion
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode model registry: %w", err)
	}
	for _, v := range list {
		r.versions[v.Type] = v
	}
	return r, nil
}

// Promote records a new active version for a model type and persists the
// registry.
func (r *Registry) Promote(v ModelVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.PromotedAt.IsZero() {
		v.PromotedAt = time.Now()
	}
	r.versions[v.Type] = v
	return r.save()
}

// Active returns the promoted version for a model type.
func (r *Registry) Active(t prediction.PredictionType) (ModelVersion, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[t]
	return v, ok
}

// List returns all promoted versions.
func (r *Registry) List() []ModelVersion {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ModelVersion, 0, len(r.versions))
	for _, v := range r.versions {
		out = append(out, v)
	}
	return out
}

func (r *Registry) save() error {
	list := make([]ModelVersion, 0, len(r.versions))
	for _, v := range r.versions {
		list = append(list, v)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model registry: %w", err)
	}
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create registry directory: %w", err)
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write model registry: %w", err)
	}
	return os.Rename(tmp, r.path)
}
