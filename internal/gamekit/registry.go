package gamekit

import (
	"errors"
	"sort"
	"sync"
)

var ErrUnknownGameType = errors.New("unknown game type")

// Registry maps integer game-type ids to their rules plugin. Registration
// happens once at startup; lookups afterwards are read-only.
type Registry struct {
	mu    sync.RWMutex
	rules map[int]Rules
}

func NewRegistry() *Registry {
	return &Registry{rules: make(map[int]Rules)}
}

func (r *Registry) Register(g Rules) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.rules[g.ID()]; dup {
		return errors.New("game type already registered")
	}
	r.rules[g.ID()] = g
	return nil
}

func (r *Registry) Get(id int) (Rules, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.rules[id]
	if !ok {
		return nil, ErrUnknownGameType
	}
	return g, nil
}

// List returns all registered plugins ordered by id.
func (r *Registry) List() []Rules {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rules, 0, len(r.rules))
	for _, g := range r.rules {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
