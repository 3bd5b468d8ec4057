package dispatch

import (
	"context"
	"fmt"
)

// Router is the dispatch router (C9): Call resolves target in three
// steps, local mailbox, remote node, on-demand plugin, the first match
// winning (spec.md §4.9).
type Router struct {
	local   *LocalRouter
	remote  *RemoteRouter // nil disables remote routing
	plugins *PluginRegistry
}

// New constructs a Router. remote may be nil if this node doesn't
// participate in a mesh; plugins may be nil if no plugins are registered.
func New(local *LocalRouter, remote *RemoteRouter, plugins *PluginRegistry) *Router {
	if local == nil {
		local = NewLocalRouter()
	}
	return &Router{local: local, remote: remote, plugins: plugins}
}

// Local returns the router's LocalRouter, for callers that need to
// register a mailbox.
func (r *Router) Local() *LocalRouter { return r.local }

// Plugins returns the router's PluginRegistry, or nil if none is
// configured.
func (r *Router) Plugins() *PluginRegistry { return r.plugins }

// Call resolves target and invokes method with payload, trying local,
// then remote, then plugin routing in order (spec.md §4.9, §6 mesh.call
// capability). An unresolved target fails with a diagnostic message.
func (r *Router) Call(ctx context.Context, target, method string, payload []byte) ([]byte, error) {
	if out, ok, err := r.local.dispatch(ctx, target, method, payload); ok {
		return out, err
	}

	if r.remote != nil {
		if out, ok, err := r.remote.dispatch(ctx, target, method, payload); ok {
			return out, err
		}
	}

	if r.plugins != nil {
		if out, ok, err := r.plugins.dispatch(ctx, target, method, payload); ok {
			return out, err
		}
	}

	return nil, fmt.Errorf(
		"dispatch: target %q not found; tried local, remote (node_id/component), and plugin routing", target,
	)
}
