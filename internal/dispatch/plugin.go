package dispatch

import (
	"context"
	"fmt"
	"sync"
)

// Plugin is an on-demand guest invoked when neither local nor remote
// routing resolves a target (spec.md §4.9 step 3).
type Plugin interface {
	// Invoke instantiates a fresh guest and runs its entry point with
	// payload, returning the guest's reply.
	Invoke(ctx context.Context, method string, payload []byte) ([]byte, error)
}

// PluginRegistry looks up registered plugins by name.
type PluginRegistry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewPluginRegistry creates an empty PluginRegistry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{plugins: make(map[string]Plugin)}
}

// Register adds or replaces the plugin registered under name.
func (r *PluginRegistry) Register(name string, p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[name] = p
}

func (r *PluginRegistry) get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

func (r *PluginRegistry) dispatch(ctx context.Context, target, method string, payload []byte) ([]byte, bool, error) {
	p, ok := r.get(target)
	if !ok {
		return nil, false, nil
	}
	out, err := p.Invoke(ctx, method, payload)
	if err != nil {
		return nil, true, fmt.Errorf("dispatch: plugin %q: %w", target, err)
	}
	return out, true, nil
}
