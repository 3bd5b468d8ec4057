// Package lifecycle implements the branch lifecycle manager (C8): the
// orchestrator that wires the VFS, the branch repository, the merge
// strategies, and the executor into create/execute/abort/merge/recover
// operations.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/brioproj/brio/internal/branch"
	"github.com/brioproj/brio/internal/domain"
	"github.com/brioproj/brio/internal/events"
	"github.com/brioproj/brio/internal/executor"
	"github.com/brioproj/brio/internal/merge"
	"github.com/brioproj/brio/internal/vfs"
)

// Source identifies what a new branch forks from: either a filesystem path
// or an existing branch's live session (spec.md §4.8 create_branch).
type Source struct {
	path     string
	branchID *domain.BranchId
}

// FromPath forks a new branch from a plain filesystem directory.
func FromPath(path string) Source { return Source{path: path} }

// FromBranch forks a new branch from an existing branch's working copy.
func FromBranch(id domain.BranchId) Source { return Source{branchID: &id} }

// Manager is the lifecycle orchestrator. It serializes cross-branch
// operations (create, recover) with mu to honor the global live-branch cap;
// single-branch status transitions are instead serialized by the
// repository's own transactional boundary.
type Manager struct {
	repo     branch.Repository
	vfsMgr   *vfs.Manager
	registry *merge.Registry
	exec     *executor.Executor
	events   events.Sink

	maxActiveBranches int

	mu sync.Mutex
}

// New constructs a Manager. maxActiveBranches is spec.md §5's
// MAX_ACTIVE_BRANCHES cap (default 8). Events are discarded until
// WithEvents is used to attach a sink.
func New(repo branch.Repository, vfsMgr *vfs.Manager, registry *merge.Registry, exec *executor.Executor, maxActiveBranches int) *Manager {
	return &Manager{repo: repo, vfsMgr: vfsMgr, registry: registry, exec: exec, maxActiveBranches: maxActiveBranches, events: events.NoopSink{}}
}

// WithEvents attaches sink as the destination for this Manager's branch
// event stream, returning m for chaining. Passing nil restores the
// discard-everything default.
func (m *Manager) WithEvents(sink events.Sink) *Manager {
	if sink == nil {
		sink = events.NoopSink{}
	}
	m.events = sink
	return m
}

// CreateBranch validates the global live-branch limit, opens a VFS session
// against the source, and persists a new Pending branch record (spec.md
// §4.8 create_branch).
func (m *Manager) CreateBranch(source Source, config domain.BranchConfig) (domain.BranchId, error) {
	if err := config.Validate(); err != nil {
		return domain.BranchId{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	active, err := m.repo.ListActiveBranches()
	if err != nil {
		return domain.BranchId{}, fmt.Errorf("lifecycle: list active branches: %w", err)
	}
	if len(active)+1 > m.maxActiveBranches {
		return domain.BranchId{}, &domain.TooManyBranchesError{Count: len(active) + 1, Max: m.maxActiveBranches}
	}

	basePath, parentID, err := m.resolveBasePath(source)
	if err != nil {
		return domain.BranchId{}, err
	}

	sessionID, err := m.vfsMgr.BeginSession(basePath)
	if err != nil {
		return domain.BranchId{}, fmt.Errorf("lifecycle: begin session: %w", err)
	}

	configBlob, err := json.Marshal(config)
	if err != nil {
		return domain.BranchId{}, fmt.Errorf("lifecycle: serialize branch config: %w", err)
	}

	b := domain.Branch{
		ID:         domain.NewBranchId(),
		ParentID:   parentID,
		Name:       config.Name,
		SessionID:  sessionID,
		Status:     domain.BranchPending,
		CreatedAt:  time.Now(),
		ConfigBlob: configBlob,
	}
	if err := b.Validate(); err != nil {
		_ = m.vfsMgr.RollbackSession(sessionID)
		return domain.BranchId{}, err
	}
	if err := m.repo.CreateBranch(b); err != nil {
		_ = m.vfsMgr.RollbackSession(sessionID)
		return domain.BranchId{}, err
	}
	m.events.Publish(events.Created{Meta_: events.NewMetadata(), Branch: b.ID, ParentID: parentID, Name: b.Name, SessionID: b.SessionID})
	return b.ID, nil
}

func (m *Manager) resolveBasePath(source Source) (string, *domain.BranchId, error) {
	if source.branchID != nil {
		parent, err := m.repo.GetBranch(*source.branchID)
		if err != nil {
			return "", nil, err
		}
		dir, err := m.vfsMgr.SessionDir(parent.SessionID)
		if err != nil {
			return "", nil, fmt.Errorf("lifecycle: resolve source branch session: %w", err)
		}
		id := *source.branchID
		return dir, &id, nil
	}
	if source.path == "" {
		return "", nil, &domain.ValidationError{Field: "source", Reason: "must supply a path or branch id"}
	}
	return source.path, nil, nil
}

// ExecuteBranch transitions Pending -> Active, runs the executor against
// the branch's decoded config, and transitions Active -> Completed or
// Active -> Failed depending on the outcome (spec.md §4.8 execute_branch).
func (m *Manager) ExecuteBranch(ctx context.Context, id domain.BranchId) error {
	b, err := m.repo.GetBranch(id)
	if err != nil {
		return err
	}
	if err := m.repo.UpdateBranchStatus(id, domain.BranchActive, nil); err != nil {
		return err
	}

	var config domain.BranchConfig
	if err := json.Unmarshal(b.ConfigBlob, &config); err != nil {
		now := time.Now()
		_ = m.repo.UpdateBranchStatus(id, domain.BranchFailed, &now)
		errMsg := err.Error()
		m.events.Publish(events.ExecutionFailed{Meta_: events.NewMetadata(), Branch: id, Error: errMsg})
		return fmt.Errorf("lifecycle: decode branch config for %s: %w", id, err)
	}

	strategyName := "sequential"
	if config.ExecutionStrategy.Parallel {
		strategyName = "parallel"
	}
	agents := make([]domain.AgentId, 0, len(config.Agents))
	for _, a := range config.Agents {
		agents = append(agents, a.AgentID)
	}
	start := time.Now()
	m.events.Publish(events.ExecutionStarted{Meta_: events.NewMetadata(), Branch: id, Agents: agents, ExecutionStrategy: strategyName})

	results, runErr := m.exec.Run(ctx, id, config)
	for i, r := range results {
		m.events.Publish(events.AgentCompleted{Meta_: events.NewMetadata(), Branch: id, AgentID: r.AgentID, Success: r.Success, Output: r.Output, Error: r.Error})
		m.events.Publish(events.ExecutionProgress{Meta_: events.NewMetadata(), Branch: id, TotalAgents: len(config.Agents), Completed: i + 1})
	}

	now := time.Now()
	if runErr != nil {
		if err := m.repo.UpdateBranchStatus(id, domain.BranchFailed, &now); err != nil {
			return err
		}
		var failedAgent *domain.AgentId
		for _, r := range results {
			if !r.Success && r.AgentID != "" {
				agentID := r.AgentID
				failedAgent = &agentID
				break
			}
		}
		if failedAgent == nil && !config.ExecutionStrategy.Parallel && len(results) < len(config.Agents) {
			agentID := config.SortedAgents()[len(results)].AgentID
			failedAgent = &agentID
		}
		m.events.Publish(events.ExecutionFailed{Meta_: events.NewMetadata(), Branch: id, Error: runErr.Error(), FailedAgent: failedAgent})
		return runErr
	}

	if err := m.repo.UpdateBranchStatus(id, domain.BranchComplete, &now); err != nil {
		return err
	}
	changes, _ := m.vfsMgr.SessionChanges(b.SessionID)
	m.events.Publish(events.ExecutionCompleted{Meta_: events.NewMetadata(), Branch: id, FileChangesCount: len(changes), DurationMs: now.Sub(start).Milliseconds()})
	return nil
}

// AbortBranch rolls back the branch's VFS session and marks it Failed
// (spec.md §4.8 abort_branch).
func (m *Manager) AbortBranch(id domain.BranchId) error {
	b, err := m.repo.GetBranch(id)
	if err != nil {
		return err
	}
	if err := m.vfsMgr.RollbackSession(b.SessionID); err != nil {
		return fmt.Errorf("lifecycle: rollback session for branch %s: %w", id, err)
	}
	now := time.Now()
	if err := m.repo.UpdateBranchStatus(id, domain.BranchFailed, &now); err != nil {
		return err
	}
	m.events.Publish(events.RolledBack{Meta_: events.NewMetadata(), Branch: id, Reason: "aborted"})
	return nil
}

// Recover runs startup crash recovery: every active branch whose session
// directory is gone moves to Failed; every remaining Active branch demotes
// to Pending for re-execution (spec.md §4.8 recover). Cross-branch
// operations are serialized by mu to match create_branch's locking.
func (m *Manager) Recover() ([]domain.BranchId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active, err := m.repo.ListActiveBranches()
	if err != nil {
		return nil, fmt.Errorf("lifecycle: list active branches: %w", err)
	}

	var recovered []domain.BranchId
	for _, b := range active {
		if _, err := m.vfsMgr.SessionDir(b.SessionID); err != nil {
			now := time.Now()
			_ = m.repo.UpdateBranchStatus(b.ID, domain.BranchFailed, &now)
			m.events.Publish(events.RolledBack{Meta_: events.NewMetadata(), Branch: b.ID, Reason: "session directory missing on recovery"})
			continue
		}
		if b.Status == domain.BranchActive {
			if err := m.repo.ResetActiveToPending(b.ID); err != nil {
				continue
			}
		}
		recovered = append(recovered, b.ID)
	}
	return recovered, nil
}
