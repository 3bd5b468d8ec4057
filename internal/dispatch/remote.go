package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// callProcedure is the connect-RPC procedure every Brio node exposes for
// mesh dispatch. There's exactly one RPC in this protocol (the envelope
// below carries the real method name), so it's declared once here rather
// than generated from a .proto file.
const callProcedure = "/brio.dispatch.v1.DispatchService/Call"

// NodeResolver maps a mesh node id to the base URL of its connect-RPC
// listener. Callers typically back this with a static config map or a
// service-discovery client.
type NodeResolver interface {
	BaseURL(nodeID string) (string, bool)
}

// StaticResolver is the simplest NodeResolver: a fixed id-to-URL map.
type StaticResolver map[string]string

func (s StaticResolver) BaseURL(nodeID string) (string, bool) {
	url, ok := s[nodeID]
	return url, ok
}

// remoteEnvelope is the wire payload exchanged over the Call RPC, carried
// inside a wrapperspb.BytesValue so the protocol needs no generated
// message types of its own.
type remoteEnvelope struct {
	Component string `json:"component"`
	Method    string `json:"method"`
	Payload   []byte `json:"payload"`
}

type remoteReply struct {
	Payload []byte `json:"payload"`
	Err     string `json:"err,omitempty"`
}

// RemoteRouter forwards dispatch calls to other nodes over connect-RPC,
// reusing one client per node_id (spec.md §4.9 step 2, §5 "Remote
// connection pool | Read-preferring lock; one-shot connect under write
// lock").
type RemoteRouter struct {
	httpClient *http.Client
	resolver   NodeResolver

	mu    sync.RWMutex
	conns map[string]*connect.Client[wrapperspb.BytesValue, wrapperspb.BytesValue]
}

// NewRemoteRouter builds a RemoteRouter. httpClient may be nil, in which
// case http.DefaultClient is used.
func NewRemoteRouter(httpClient *http.Client, resolver NodeResolver) *RemoteRouter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RemoteRouter{
		httpClient: httpClient,
		resolver:   resolver,
		conns:      make(map[string]*connect.Client[wrapperspb.BytesValue, wrapperspb.BytesValue]),
	}
}

// splitRemoteTarget parses "node_id/component" addressing (spec.md §4.9
// step 2).
func splitRemoteTarget(target string) (nodeID, component string, ok bool) {
	nodeID, component, ok = strings.Cut(target, "/")
	if !ok || nodeID == "" || component == "" {
		return "", "", false
	}
	return nodeID, component, true
}

func (r *RemoteRouter) clientFor(nodeID string) (*connect.Client[wrapperspb.BytesValue, wrapperspb.BytesValue], error) {
	r.mu.RLock()
	c, ok := r.conns[nodeID]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	baseURL, ok := r.resolver.BaseURL(nodeID)
	if !ok {
		return nil, fmt.Errorf("dispatch: no known route to node %q", nodeID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[nodeID]; ok {
		return c, nil
	}
	c = connect.NewClient[wrapperspb.BytesValue, wrapperspb.BytesValue](r.httpClient, baseURL+callProcedure)
	r.conns[nodeID] = c
	return c, nil
}

// dispatch forwards payload to component on nodeID and returns its reply
// (spec.md §4.9 step 2). ok is false only when target didn't parse as
// remote addressing; any error past that point is a genuine dispatch
// failure.
func (r *RemoteRouter) dispatch(ctx context.Context, target, method string, payload []byte) (out []byte, ok bool, err error) {
	nodeID, component, ok := splitRemoteTarget(target)
	if !ok {
		return nil, false, nil
	}

	client, err := r.clientFor(nodeID)
	if err != nil {
		return nil, true, err
	}

	body, err := json.Marshal(remoteEnvelope{Component: component, Method: method, Payload: payload})
	if err != nil {
		return nil, true, fmt.Errorf("dispatch: encode remote envelope: %w", err)
	}

	resp, err := client.CallUnary(ctx, connect.NewRequest(&wrapperspb.BytesValue{Value: body}))
	if err != nil {
		return nil, true, fmt.Errorf("dispatch: call node %q: %w", nodeID, err)
	}

	var reply remoteReply
	if err := json.Unmarshal(resp.Msg.GetValue(), &reply); err != nil {
		return nil, true, fmt.Errorf("dispatch: decode reply from node %q: %w", nodeID, err)
	}
	if reply.Err != "" {
		return nil, true, fmt.Errorf("dispatch: node %q component %q: %s", nodeID, component, reply.Err)
	}
	return reply.Payload, true, nil
}
