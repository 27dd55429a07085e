package incident

import (
	"sync"

	"github.com/miradorstack/secops-investigator/internal/models"
)

// Registry tracks the investigation most recently started through an Investigator.
// Each Investigator owns its own Registry; there is no package-level current incident.
type Registry struct {
	mu      sync.RWMutex
	current *Manager
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Set replaces the current investigation.
func (r *Registry) Set(m *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = m
}

// Manager returns the current manager, if any.
func (r *Registry) Manager() (*Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.current != nil
}

// Current returns a snapshot of the current incident context.
func (r *Registry) Current() (*models.IncidentContext, bool) {
	m, ok := r.Manager()
	if !ok {
		return nil, false
	}
	return m.Snapshot(), true
}

// Clear forgets the current investigation.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
}
