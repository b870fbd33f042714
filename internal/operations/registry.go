package operations

import (
	"fmt"
	"strings"
	"sync"
)

// Registry holds the registered steps and answers dependency queries
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
	order []string
}

// NewRegistry creates an empty step registry
func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]Step)}
}

// Register adds a step. Step IDs must be unique.
func (r *Registry) Register(step Step) error {
	if step == nil {
		return fmt.Errorf("cannot register nil step")
	}
	if step.ID() == "" {
		return fmt.Errorf("cannot register step with empty ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.steps[step.ID()]; exists {
		return fmt.Errorf("step %q already registered", step.ID())
	}
	r.steps[step.ID()] = step
	r.order = append(r.order, step.ID())
	return nil
}

// Get returns the step with the given ID
func (r *Registry) Get(id string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	step, exists := r.steps[id]
	if !exists {
		return nil, fmt.Errorf("step %q not registered", id)
	}
	return step, nil
}

// Has reports whether a step with the given ID is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.steps[id]
	return exists
}

// List returns all steps in registration order
func (r *Registry) List() []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()
	steps := make([]Step, 0, len(r.order))
	for _, id := range r.order {
		steps = append(steps, r.steps[id])
	}
	return steps
}

// ListIDs returns all step IDs in registration order
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Count returns the number of registered steps
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}

// ValidateDependencies checks that every declared dependency is registered
func (r *Registry) ValidateDependencies() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		for _, dep := range r.steps[id].GetDependencies() {
			if _, exists := r.steps[dep]; !exists {
				return fmt.Errorf("step %q depends on unregistered step %q", id, dep)
			}
		}
	}
	return nil
}

// GetDependencyOrder returns the step IDs topologically sorted so every
// step comes after its dependencies. Ties resolve in registration order,
// keeping the execution order stable across runs.
func (r *Registry) GetDependencyOrder() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inDegree := make(map[string]int, len(r.steps))
	dependents := make(map[string][]string, len(r.steps))
	for _, id := range r.order {
		for _, dep := range r.steps[id].GetDependencies() {
			if _, exists := r.steps[dep]; !exists {
				return nil, fmt.Errorf("step %q depends on unregistered step %q", id, dep)
			}
			dependents[dep] = append(dependents[dep], id)
			inDegree[id]++
		}
	}

	sorted := make([]string, 0, len(r.order))
	emitted := make(map[string]bool, len(r.order))
	for len(sorted) < len(r.order) {
		progressed := false
		for _, id := range r.order {
			if emitted[id] || inDegree[id] != 0 {
				continue
			}
			emitted[id] = true
			sorted = append(sorted, id)
			for _, next := range dependents[id] {
				inDegree[next]--
			}
			progressed = true
			break
		}
		if !progressed {
			var cyclic []string
			for _, id := range r.order {
				if !emitted[id] {
					cyclic = append(cyclic, id)
				}
			}
			return nil, fmt.Errorf("dependency cycle involving steps: %s", strings.Join(cyclic, ", "))
		}
	}
	return sorted, nil
}
