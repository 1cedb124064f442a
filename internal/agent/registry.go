package agent

import (
	"sync"
)

// Registry tracks live analysts by key so corrections can reach them.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	analysts map[string]*Analyst
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, analysts: make(map[string]*Analyst)}
}

// GetOrCreate returns the analyst for a candidate, creating it on first use.
// A closed analyst is replaced.
func (r *Registry) GetOrCreate(requestID, repoURL string) *Analyst {
	key := AnalystKey(requestID, repoURL)

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.analysts[key]; ok && !a.ch.Closed() {
		return a
	}
	a := newAnalyst(requestID, repoURL, r.deps)
	r.analysts[key] = a
	return a
}

func (r *Registry) Get(key string) (*Analyst, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.analysts[key]
	return a, ok
}

// ForRequest lists the analysts registered for a request.
func (r *Registry) ForRequest(requestID string) []*Analyst {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Analyst
	for _, a := range r.analysts {
		if a.requestID == requestID {
			out = append(out, a)
		}
	}
	return out
}

// Remove closes and forgets one analyst.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	a, ok := r.analysts[key]
	delete(r.analysts, key)
	r.mu.Unlock()
	if ok {
		a.ch.Close()
	}
}

// CloseRequest closes and forgets every analyst of a request.
func (r *Registry) CloseRequest(requestID string) {
	r.mu.Lock()
	var closing []*Analyst
	for key, a := range r.analysts {
		if a.requestID == requestID {
			closing = append(closing, a)
			delete(r.analysts, key)
		}
	}
	r.mu.Unlock()
	for _, a := range closing {
		a.ch.Close()
	}
}

// Len reports how many analysts are registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.analysts)
}
