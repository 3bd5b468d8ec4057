package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brioproj/brio/internal/domain"
)

type fakeDispatcher struct {
	mu          sync.Mutex
	inflight    int
	maxInflight int
	delay       time.Duration
	outcomeFor  func(agentID domain.AgentId) (DispatchResult, error)
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, agentID domain.AgentId, payload string) (DispatchResult, error) {
	f.mu.Lock()
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return DispatchResult{}, ctx.Err()
		}
	}

	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()

	if f.outcomeFor != nil {
		return f.outcomeFor(agentID)
	}
	return DispatchResult{Outcome: Completed, Output: "ok"}, nil
}

type countingProgress struct {
	mu      sync.Mutex
	reports [][2]int
}

func (p *countingProgress) UpdateProgress(branchID domain.BranchId, completed, total int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, [2]int{completed, total})
	return nil
}

func assignments(n int) []domain.AgentAssignment {
	out := make([]domain.AgentAssignment, n)
	for i := range out {
		out[i] = domain.AgentAssignment{AgentID: domain.AgentId(fmt.Sprintf("agent-%d", i)), Priority: uint8(n - i)}
	}
	return out
}

func TestRun_Sequential_CollectsAllResults(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	progress := &countingProgress{}
	e := New(dispatcher, progress)

	config := domain.BranchConfig{
		Name:              "b",
		Agents:            assignments(3),
		ExecutionStrategy: domain.Sequential(),
		MergeStrategy:     domain.DefaultMergeStrategy,
	}

	results, err := e.Run(context.Background(), domain.NewBranchId(), config)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for _, r := range results {
		if !r.Success {
			t.Errorf("result %+v should be successful", r)
		}
	}
	if len(progress.reports) == 0 {
		t.Error("expected at least one progress report")
	}
}

func TestRun_Sequential_StopsOnAgentBusy(t *testing.T) {
	var calls int32
	dispatcher := &fakeDispatcher{
		outcomeFor: func(agentID domain.AgentId) (DispatchResult, error) {
			n := atomic.AddInt32(&calls, 1)
			if n == 2 {
				return DispatchResult{Outcome: AgentBusy}, nil
			}
			return DispatchResult{Outcome: Completed, Output: "ok"}, nil
		},
	}
	e := New(dispatcher, nil)

	config := domain.BranchConfig{
		Name:              "b",
		Agents:            assignments(3),
		ExecutionStrategy: domain.Sequential(),
		MergeStrategy:     domain.DefaultMergeStrategy,
	}

	results, err := e.Run(context.Background(), domain.NewBranchId(), config)
	if err == nil {
		t.Fatal("expected an error from the busy agent")
	}
	if len(results) != 1 {
		t.Errorf("len(results) = %d, want 1 (only the first agent succeeded before the busy one)", len(results))
	}
}

func TestRun_Parallel_RespectsConcurrencyCap(t *testing.T) {
	dispatcher := &fakeDispatcher{delay: 20 * time.Millisecond}
	e := New(dispatcher, nil)

	config := domain.BranchConfig{
		Name:              "b",
		Agents:            assignments(4),
		ExecutionStrategy: domain.ParallelStrategy(2),
		MergeStrategy:     domain.DefaultMergeStrategy,
	}

	results, err := e.Run(context.Background(), domain.NewBranchId(), config)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("len(results) = %d, want 4", len(results))
	}
	if dispatcher.maxInflight > 2 {
		t.Errorf("maxInflight = %d, want <= 2", dispatcher.maxInflight)
	}
}

func TestRun_DeadlineExceeded_SurfacesTimeoutError(t *testing.T) {
	dispatcher := &fakeDispatcher{delay: 50 * time.Millisecond}
	e := New(dispatcher, nil)

	config := domain.BranchConfig{
		Name:              "b",
		Agents:            assignments(1),
		ExecutionStrategy: domain.Sequential(),
		MergeStrategy:     domain.DefaultMergeStrategy,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := e.Run(ctx, domain.NewBranchId(), config)
	if _, ok := err.(*domain.TimeoutError); !ok {
		t.Errorf("err = %T, want *domain.TimeoutError", err)
	}
}
