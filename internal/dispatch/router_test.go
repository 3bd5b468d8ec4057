package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalRouter_DispatchRoundTrip(t *testing.T) {
	local := NewLocalRouter()
	mailbox := make(chan Message, 1)
	local.Register("agent-1", mailbox)

	go func() {
		msg := <-mailbox
		msg.Reply <- Reply{Payload: []byte("pong:" + msg.Method)}
	}()

	r := New(local, nil, nil)
	out, err := r.Call(context.Background(), "agent-1", "ping", []byte("hi"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(out) != "pong:ping" {
		t.Errorf("out = %q, want %q", out, "pong:ping")
	}
}

func TestLocalRouter_PropagatesHandlerError(t *testing.T) {
	local := NewLocalRouter()
	mailbox := make(chan Message, 1)
	local.Register("agent-1", mailbox)

	go func() {
		msg := <-mailbox
		msg.Reply <- Reply{Err: errors.New("boom")}
	}()

	r := New(local, nil, nil)
	_, err := r.Call(context.Background(), "agent-1", "ping", nil)
	if err == nil {
		t.Fatal("expected an error from the mailbox handler")
	}
}

func TestRouter_FallsThroughToPlugin(t *testing.T) {
	plugins := NewPluginRegistry()
	plugins.Register("plugin-1", pluginFunc(func(_ context.Context, method string, payload []byte) ([]byte, error) {
		return []byte("plugin saw " + method), nil
	}))

	r := New(nil, nil, plugins)
	out, err := r.Call(context.Background(), "plugin-1", "run", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(out) != "plugin saw run" {
		t.Errorf("out = %q", out)
	}
}

func TestRouter_UnknownTargetFails(t *testing.T) {
	r := New(nil, nil, nil)
	_, err := r.Call(context.Background(), "nobody", "run", nil)
	if err == nil {
		t.Fatal("expected an error for an unresolved target")
	}
}

func TestLocalRouter_ContextCancelledWhileAwaitingReply(t *testing.T) {
	local := NewLocalRouter()
	mailbox := make(chan Message, 1)
	local.Register("agent-1", mailbox)
	// Nobody ever drains the mailbox or replies.

	r := New(local, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Call(ctx, "agent-1", "ping", nil)
	if err == nil {
		t.Fatal("expected a context deadline error")
	}
}

type pluginFunc func(ctx context.Context, method string, payload []byte) ([]byte, error)

func (f pluginFunc) Invoke(ctx context.Context, method string, payload []byte) ([]byte, error) {
	return f(ctx, method, payload)
}
