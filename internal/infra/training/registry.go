package training

import (
	"log"
	"sort"
	"sync"

	"github.com/sentrymesh/sentry/internal/domain"
)

// Registry is the version store for trained models. One version per
// model may be active at a time; the active pointer is swapped only by
// the training orchestrator.
type Registry struct {
	mu       sync.RWMutex
	versions map[string][]domain.ModelVersion
	active   map[string]string // model name → active version ID
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		versions: make(map[string][]domain.ModelVersion),
		active:   make(map[string]string),
	}
}

// NextVersion returns the version number the next registration will get.
func (r *Registry) NextVersion(model string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.versions[model]) + 1
}

// Register records a new model version.
func (r *Registry) Register(v domain.ModelVersion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[v.ModelName] = append(r.versions[v.ModelName], v)
	log.Printf("[training] registered %s v%d", v.ModelName, v.Version)
}

// PromoteToActive marks a version active and deactivates its siblings.
func (r *Registry) PromoteToActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for model, versions := range r.versions {
		for i := range versions {
			if versions[i].ID != id {
				continue
			}
			for j := range versions {
				versions[j].Active = false
			}
			versions[i].Active = true
			r.active[model] = id
			log.Printf("[training] promoted %s to active", id)
			return true
		}
	}
	return false
}

// RollbackToPrevious reverts a model to its next-newest version. Returns
// ErrModelNotFound when no older version exists.
func (r *Registry) RollbackToPrevious(model string) (domain.ModelVersion, error) {
	r.mu.Lock()
	versions := append([]domain.ModelVersion(nil), r.versions[model]...)
	r.mu.Unlock()

	if len(versions) < 2 {
		return domain.ModelVersion{}, domain.ErrModelNotFound
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version > versions[j].Version })
	previous := versions[1]
	r.PromoteToActive(previous.ID)
	return previous, nil
}

// Active returns a model's active version.
func (r *Registry) Active(model string) (domain.ModelVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.active[model]
	if !ok {
		return domain.ModelVersion{}, false
	}
	for _, v := range r.versions[model] {
		if v.ID == id {
			return v, true
		}
	}
	return domain.ModelVersion{}, false
}

// Versions returns all registered versions of a model, oldest first.
func (r *Registry) Versions(model string) []domain.ModelVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ModelVersion, len(r.versions[model]))
	copy(out, r.versions[model])
	return out
}

// Models returns the registered model names, sorted.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.versions))
	for name := range r.versions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
