// Package dispatch implements the dispatch router (C9): it resolves a
// target string to a local mailbox, a remote node over connect-RPC, or an
// on-demand plugin, trying each in that order (spec.md §4.9).
package dispatch

import (
	"context"
	"fmt"
	"sync"
)

// Message is one call delivered to a registered local mailbox. The
// receiving goroutine must send exactly one Reply on Reply.
type Message struct {
	Method  string
	Payload []byte
	Reply   chan<- Reply
}

// Reply is a local mailbox's response to a Message.
type Reply struct {
	Payload []byte
	Err     error
}

// LocalRouter holds the in-process routing map: target name to mailbox
// channel. Registration is rare and calls are frequent, so lookups take a
// read lock (spec.md §5 "Agent routing map | Read-preferring lock").
type LocalRouter struct {
	mu        sync.RWMutex
	mailboxes map[string]chan<- Message
}

// NewLocalRouter creates an empty LocalRouter.
func NewLocalRouter() *LocalRouter {
	return &LocalRouter{mailboxes: make(map[string]chan<- Message)}
}

// Register associates target with a mailbox channel. The owner of mailbox
// is expected to range over it (or otherwise receive) for the lifetime of
// the registration and reply on every Message it pulls off.
func (r *LocalRouter) Register(target string, mailbox chan<- Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mailboxes[target] = mailbox
}

// Unregister removes target's mailbox, if any.
func (r *LocalRouter) Unregister(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mailboxes, target)
}

func (r *LocalRouter) lookup(target string) (chan<- Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mailbox, ok := r.mailboxes[target]
	return mailbox, ok
}

// dispatch delivers payload to target's mailbox and awaits its reply,
// honoring ctx cancellation on both the send and the receive (spec.md §4.9
// step 1, grounded on the mesh_call's oneshot-reply pattern).
func (r *LocalRouter) dispatch(ctx context.Context, target, method string, payload []byte) ([]byte, bool, error) {
	mailbox, ok := r.lookup(target)
	if !ok {
		return nil, false, nil
	}

	reply := make(chan Reply, 1)
	select {
	case mailbox <- Message{Method: method, Payload: payload, Reply: reply}:
	case <-ctx.Done():
		return nil, true, fmt.Errorf("dispatch: send to %q: %w", target, ctx.Err())
	}

	select {
	case r := <-reply:
		return r.Payload, true, r.Err
	case <-ctx.Done():
		return nil, true, fmt.Errorf("dispatch: await reply from %q: %w", target, ctx.Err())
	}
}
