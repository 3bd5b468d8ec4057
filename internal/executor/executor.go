// Package executor implements the branch executor (C7): given a branch's
// AgentAssignments, it dispatches each one through a Dispatcher and
// collects an AgentResult, either sequentially or under a bounded
// concurrency limit.
package executor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/brioproj/brio/internal/domain"
)

// DispatchOutcome mirrors C9's three-way dispatch result (spec.md §4.9).
type DispatchOutcome int

const (
	Accepted DispatchOutcome = iota
	Completed
	AgentBusy
)

// DispatchResult is what a Dispatcher returns for one agent invocation.
type DispatchResult struct {
	Outcome DispatchOutcome
	Output  string
}

// Dispatcher delegates an agent invocation to C9. Implementations must be
// safe for concurrent use by the parallel strategy.
type Dispatcher interface {
	Dispatch(ctx context.Context, agentID domain.AgentId, payload string) (DispatchResult, error)
}

// ProgressReporter receives progress updates as agents complete. Reports
// are idempotent and never change branch status (spec.md §4.6).
type ProgressReporter interface {
	UpdateProgress(branchID domain.BranchId, completed, total int) error
}

// NoopProgress discards progress reports; useful for tests and callers
// that don't need live progress.
type NoopProgress struct{}

func (NoopProgress) UpdateProgress(domain.BranchId, int, int) error { return nil }

// Executor runs a branch's AgentAssignments to completion.
type Executor struct {
	dispatcher Dispatcher
	progress   ProgressReporter
}

// New constructs an Executor. progress may be nil, in which case progress
// reports are discarded.
func New(dispatcher Dispatcher, progress ProgressReporter) *Executor {
	if progress == nil {
		progress = NoopProgress{}
	}
	return &Executor{dispatcher: dispatcher, progress: progress}
}

// Run executes config's agent assignments against branchID in priority
// order (spec.md §4.7). It honors ctx cancellation and the deadline set on
// ctx (the caller is expected to have wrapped ctx with the branch's
// timeout via context.WithTimeout): a deadline exceeded surfaces as
// *domain.TimeoutError.
func (e *Executor) Run(ctx context.Context, branchID domain.BranchId, config domain.BranchConfig) ([]domain.AgentResult, error) {
	assignments := config.SortedAgents()
	var (
		results []domain.AgentResult
		err     error
	)
	if config.ExecutionStrategy.Parallel {
		results, err = e.runParallel(ctx, branchID, assignments, config.ExecutionStrategy.MaxConcurrent)
	} else {
		results, err = e.runSequential(ctx, branchID, assignments)
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return results, &domain.TimeoutError{BranchID: branchID.String()}
		}
		return results, err
	}
	return results, nil
}

func (e *Executor) runSequential(ctx context.Context, branchID domain.BranchId, assignments []domain.AgentAssignment) ([]domain.AgentResult, error) {
	total := len(assignments)
	results := make([]domain.AgentResult, 0, total)
	for i, assignment := range assignments {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if err := e.progress.UpdateProgress(branchID, i, total); err != nil {
			return results, fmt.Errorf("executor: update progress: %w", err)
		}
		result, err := e.dispatchOne(ctx, branchID, assignment)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	_ = e.progress.UpdateProgress(branchID, total, total)
	return results, nil
}

func (e *Executor) runParallel(ctx context.Context, branchID domain.BranchId, assignments []domain.AgentAssignment, maxConcurrent int) ([]domain.AgentResult, error) {
	total := len(assignments)
	results := make([]domain.AgentResult, total)
	errs := make([]error, total)

	sem := semaphore.NewWeighted(int64(maxConcurrent))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{}, total)
	var completed int

	for i, assignment := range assignments {
		if err := sem.Acquire(runCtx, 1); err != nil {
			errs[i] = err
			done <- struct{}{}
			continue
		}
		go func(idx int, a domain.AgentAssignment) {
			defer sem.Release(1)
			defer func() { done <- struct{}{} }()

			result, err := e.dispatchOne(runCtx, branchID, a)
			results[idx] = result
			errs[idx] = err
		}(i, assignment)
	}

	for completed < total {
		select {
		case <-done:
			completed++
			_ = e.progress.UpdateProgress(branchID, completed, total)
		case <-ctx.Done():
			return results, ctx.Err()
		}
	}

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (e *Executor) dispatchOne(ctx context.Context, branchID domain.BranchId, assignment domain.AgentAssignment) (domain.AgentResult, error) {
	start := time.Now()
	payload := assignment.TaskOverride
	if payload == "" {
		payload = fmt.Sprintf("execute on branch %s", branchID)
	}

	dispatched, err := e.dispatcher.Dispatch(ctx, assignment.AgentID, payload)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		reason := err.Error()
		return domain.AgentResult{}, fmt.Errorf("executor: agent %s failed: %s", assignment.AgentID, reason)
	}

	switch dispatched.Outcome {
	case Completed:
		output := dispatched.Output
		return domain.AgentResult{AgentID: assignment.AgentID, Success: true, Output: &output, DurationMs: duration}, nil
	case Accepted:
		return domain.AgentResult{AgentID: assignment.AgentID, Success: true, DurationMs: duration}, nil
	case AgentBusy:
		reason := "agent is busy"
		return domain.AgentResult{AgentID: assignment.AgentID, Success: false, Error: &reason, DurationMs: duration},
			fmt.Errorf("executor: agent %s failed: %s", assignment.AgentID, reason)
	default:
		return domain.AgentResult{}, fmt.Errorf("executor: agent %s: unknown dispatch outcome %d", assignment.AgentID, dispatched.Outcome)
	}
}
