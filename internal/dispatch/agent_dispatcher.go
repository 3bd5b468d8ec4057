package dispatch

import (
	"context"
	"encoding/json"

	"github.com/brioproj/brio/internal/domain"
	"github.com/brioproj/brio/internal/executor"
)

// agentEnvelope is the JSON convention an agent's reply payload follows so
// AgentDispatcher can recover the Accepted | Completed | AgentBusy outcome
// spec.md §4.7 expects from C9 (raw dispatch only carries opaque bytes).
// An agent reply that isn't this envelope is treated as Completed with the
// raw bytes as output, so simple agents need not know about outcomes at
// all.
type agentEnvelope struct {
	Outcome string `json:"outcome"` // "accepted" | "completed" | "busy"; empty means "completed"
	Output  string `json:"output"`
}

// AgentMethod is the dispatch method name used for agent execution calls.
const AgentMethod = "execute"

// AgentDispatcher adapts a Router to the executor.Dispatcher contract,
// turning a branch's agent assignments into C9 Call invocations.
type AgentDispatcher struct {
	router *Router
}

// NewAgentDispatcher wraps router for use as an executor.Dispatcher.
func NewAgentDispatcher(router *Router) *AgentDispatcher {
	return &AgentDispatcher{router: router}
}

var _ executor.Dispatcher = (*AgentDispatcher)(nil)

// Dispatch implements executor.Dispatcher (spec.md §4.7: "Dispatching
// delegates to C9 which returns Accepted | Completed(output) | AgentBusy").
func (d *AgentDispatcher) Dispatch(ctx context.Context, agentID domain.AgentId, payload string) (executor.DispatchResult, error) {
	out, err := d.router.Call(ctx, agentID.String(), AgentMethod, []byte(payload))
	if err != nil {
		return executor.DispatchResult{}, err
	}

	var env agentEnvelope
	if err := json.Unmarshal(out, &env); err != nil || (env.Outcome == "" && env.Output == "") {
		return executor.DispatchResult{Outcome: executor.Completed, Output: string(out)}, nil
	}

	switch env.Outcome {
	case "", "completed":
		return executor.DispatchResult{Outcome: executor.Completed, Output: env.Output}, nil
	case "accepted":
		return executor.DispatchResult{Outcome: executor.Accepted, Output: env.Output}, nil
	case "busy":
		return executor.DispatchResult{Outcome: executor.AgentBusy}, nil
	default:
		return executor.DispatchResult{Outcome: executor.Completed, Output: env.Output}, nil
	}
}
