package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brioproj/brio/internal/domain"
	"github.com/brioproj/brio/internal/events"
	"github.com/brioproj/brio/internal/merge"
	"github.com/brioproj/brio/internal/vfs"
)

// MergeResult is returned by Merge: either the merge request committed
// cleanly, or it's awaiting approval / conflict resolution.
type MergeResult struct {
	MergeRequestID domain.BranchId
	Conflicts      []domain.Conflict
}

// vfsContentReader adapts the VFS manager to merge.ContentReader. baseSession
// is any one of the participating branches' sessions: siblings created from
// the same Source share an identical base path, so reading the base
// through any of them is equivalent (documented in DESIGN.md).
type vfsContentReader struct {
	vfsMgr          *vfs.Manager
	baseSessionID   domain.SessionId
	sessionByBranch map[domain.BranchId]domain.SessionId
}

func (r *vfsContentReader) ReadBase(path string) (string, bool, error) {
	return r.vfsMgr.ReadBase(r.baseSessionID, path)
}

func (r *vfsContentReader) ReadBranch(branchID domain.BranchId, path string) (string, bool, error) {
	sid, ok := r.sessionByBranch[branchID]
	if !ok {
		return "", false, fmt.Errorf("lifecycle: no session tracked for branch %s", branchID)
	}
	return r.vfsMgr.ReadSession(sid, path)
}

// Merge creates a MergeRequest over branchIDs, transitions the participating
// branches to Merging, runs the named strategy, and either commits the
// result through a composite staging session or leaves the request
// HasConflicts / Pending approval (spec.md §4.8 merge).
func (m *Manager) Merge(ctx context.Context, branchIDs []domain.BranchId, strategyName string, requiresApproval bool) (MergeResult, error) {
	if len(branchIDs) == 0 {
		return MergeResult{}, &domain.ValidationError{Field: "branches", Reason: "must supply at least one branch"}
	}
	if len(branchIDs) > merge.MaxBranchesPerMerge {
		return MergeResult{}, &domain.TooManyBranchesError{Count: len(branchIDs), Max: merge.MaxBranchesPerMerge}
	}
	strategy, ok := m.registry.Get(strategyName)
	if !ok {
		return MergeResult{}, &domain.ValidationError{Field: "strategy", Reason: fmt.Sprintf("unregistered strategy %q", strategyName)}
	}

	branches := make([]domain.Branch, 0, len(branchIDs))
	for _, id := range branchIDs {
		b, err := m.repo.GetBranch(id)
		if err != nil {
			return MergeResult{}, err
		}
		branches = append(branches, b)
	}

	for _, b := range branches {
		if err := m.repo.UpdateBranchStatus(b.ID, domain.BranchMerging, nil); err != nil {
			return MergeResult{}, fmt.Errorf("lifecycle: transition branch %s to merging: %w", b.ID, err)
		}
	}

	mr := domain.MergeRequest{
		ID:               domain.NewBranchId(),
		BranchID:         branches[0].ID,
		StrategyName:     strategyName,
		Status:           domain.MergeReqPending,
		RequiresApproval: requiresApproval,
		CreatedAt:        time.Now().Unix(),
	}
	if len(branches) > 1 {
		parent := branches[1].ID
		mr.ParentID = &parent
	}
	if err := m.repo.CreateMergeRequest(mr); err != nil {
		return MergeResult{}, fmt.Errorf("lifecycle: create merge request: %w", err)
	}

	if requiresApproval {
		m.events.Publish(events.MergeStarted{Meta_: events.NewMetadata(), Branch: branches[0].ID, Strategy: strategyName, RequiresApproval: true})
		return MergeResult{MergeRequestID: mr.ID}, nil
	}
	return m.runMerge(ctx, mr.ID, branches, strategy)
}

// ApproveAndRun approves a Pending merge request and immediately runs it.
func (m *Manager) ApproveAndRun(ctx context.Context, mrID domain.BranchId, approver string) (MergeResult, error) {
	if err := m.repo.ApproveMerge(mrID, approver); err != nil {
		return MergeResult{}, err
	}
	mr, err := m.repo.GetMergeRequest(mrID)
	if err != nil {
		return MergeResult{}, err
	}

	branches := []domain.Branch{}
	b, err := m.repo.GetBranch(mr.BranchID)
	if err != nil {
		return MergeResult{}, err
	}
	branches = append(branches, b)
	if mr.ParentID != nil {
		sibling, err := m.repo.GetBranch(*mr.ParentID)
		if err != nil {
			return MergeResult{}, err
		}
		branches = append(branches, sibling)
	}

	strategy, ok := m.registry.Get(mr.StrategyName)
	if !ok {
		return MergeResult{}, &domain.ValidationError{Field: "strategy", Reason: fmt.Sprintf("unregistered strategy %q", mr.StrategyName)}
	}
	return m.runMerge(ctx, mrID, branches, strategy)
}

func (m *Manager) runMerge(ctx context.Context, mrID domain.BranchId, branches []domain.Branch, strategy merge.Strategy) (MergeResult, error) {
	m.events.Publish(events.MergeStarted{Meta_: events.NewMetadata(), Branch: branches[0].ID, Strategy: strategy.Name(), RequiresApproval: false})

	if err := m.repo.UpdateMergeRequestStatus(mrID, domain.MergeReqInProgress, ptrInt64(time.Now().Unix()), nil); err != nil {
		return MergeResult{}, fmt.Errorf("lifecycle: transition merge request to in-progress: %w", err)
	}

	inputs := make([]merge.BranchInput, 0, len(branches))
	sessionByBranch := make(map[domain.BranchId]domain.SessionId, len(branches))
	for _, b := range branches {
		changes, err := m.vfsMgr.SessionChanges(b.SessionID)
		if err != nil {
			return MergeResult{}, fmt.Errorf("lifecycle: compute changes for branch %s: %w", b.ID, err)
		}
		inputs = append(inputs, merge.BranchInput{BranchID: b.ID, Changes: changes})
		sessionByBranch[b.ID] = b.SessionID
	}

	reader := &vfsContentReader{vfsMgr: m.vfsMgr, baseSessionID: branches[0].SessionID, sessionByBranch: sessionByBranch}
	outcome, err := strategy.Merge(ctx, reader, inputs)
	if err != nil {
		return MergeResult{}, fmt.Errorf("lifecycle: run merge strategy %s: %w", strategy.Name(), err)
	}

	if outcome.HasConflicts() {
		if err := m.repo.UpdateMergeRequestStatus(mrID, domain.MergeReqHasConflicts, nil, nil); err != nil {
			return MergeResult{}, fmt.Errorf("lifecycle: transition merge request to has-conflicts: %w", err)
		}
		m.events.Publish(events.MergeConflict{Meta_: events.NewMetadata(), Branch: branches[0].ID, Conflicts: outcome.Conflicts, MergeRequestID: mrID})
		return MergeResult{MergeRequestID: mrID, Conflicts: outcome.Conflicts}, nil
	}

	if err := m.commitMerge(mrID, branches, inputs, outcome); err != nil {
		return MergeResult{}, err
	}

	completedAt := time.Now().Unix()
	if err := m.repo.UpdateMergeRequestStatus(mrID, domain.MergeReqCommitted, nil, &completedAt); err != nil {
		return MergeResult{}, fmt.Errorf("lifecycle: transition merge request to committed: %w", err)
	}
	for _, b := range branches {
		now := time.Now()
		if err := m.repo.UpdateBranchStatus(b.ID, domain.BranchMerged, &now); err != nil {
			return MergeResult{}, fmt.Errorf("lifecycle: transition branch %s to merged: %w", b.ID, err)
		}
	}
	m.events.Publish(events.MergeCompleted{Meta_: events.NewMetadata(), Branch: branches[0].ID, StrategyUsed: strategy.Name(), FilesChanged: len(outcome.MergedChanges)})
	return MergeResult{MergeRequestID: mrID}, nil
}

// commitMerge materializes outcome's merged changes into a fresh staging
// session opened against the branches' shared base, then commits that
// session back to the base (spec.md §4.8 merge, "writes the result via
// VFS.commit of a composite staging session").
func (m *Manager) commitMerge(mrID domain.BranchId, branches []domain.Branch, inputs []merge.BranchInput, outcome merge.MergeOutcome) error {
	basePath, err := m.vfsMgr.BasePath(branches[0].SessionID)
	if err != nil {
		return fmt.Errorf("lifecycle: resolve shared base path: %w", err)
	}
	stagingID, err := m.vfsMgr.BeginSession(basePath)
	if err != nil {
		return fmt.Errorf("lifecycle: open staging session: %w", err)
	}
	stagingDir, err := m.vfsMgr.SessionDir(stagingID)
	if err != nil {
		_ = m.vfsMgr.RollbackSession(stagingID)
		return fmt.Errorf("lifecycle: resolve staging session dir: %w", err)
	}

	ordered := inputs
	if outcome.StrategyName == domain.StrategyTheirs {
		ordered = make([]merge.BranchInput, 0, len(inputs))
		for i := len(inputs) - 1; i >= 0; i-- {
			ordered = append(ordered, inputs[i])
		}
	}
	sourceBranch := sourceBranchIndex(ordered)
	sessionByBranch := make(map[domain.BranchId]domain.SessionId, len(branches))
	for _, b := range branches {
		sessionByBranch[b.ID] = b.SessionID
	}
	for _, change := range outcome.MergedChanges {
		if err := materializeChange(m.vfsMgr, stagingDir, change, sessionByBranch[sourceBranch[change.Path]], outcome.ResolvedContent); err != nil {
			_ = m.vfsMgr.RollbackSession(stagingID)
			return fmt.Errorf("lifecycle: materialize %s: %w", change.Path, err)
		}
	}

	if _, err := m.vfsMgr.CommitSession(stagingID); err != nil {
		return fmt.Errorf("lifecycle: commit staging session: %w", err)
	}
	return nil
}

// sourceBranchIndex maps each touched path to the first branch whose input
// contains it, for merged (non-conflicting) changes where exactly one
// branch is authoritative for that path's content.
func sourceBranchIndex(inputs []merge.BranchInput) map[string]domain.BranchId {
	out := make(map[string]domain.BranchId)
	for _, in := range inputs {
		for _, c := range in.Changes {
			if _, ok := out[c.Path]; !ok {
				out[c.Path] = in.BranchID
			}
		}
	}
	return out
}

func materializeChange(vfsMgr *vfs.Manager, stagingDir string, change domain.FileChange, sourceSession domain.SessionId, resolved map[string]string) error {
	dst := filepath.Join(stagingDir, change.Path)
	if change.Kind == domain.ChangeDeleted {
		return os.RemoveAll(dst)
	}

	content, ok := resolved[change.Path]
	if !ok {
		var err error
		content, ok, err = vfsMgr.ReadSession(sourceSession, change.Path)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no content found for %s in session %s", change.Path, sourceSession)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte(content), 0o644)
}

func ptrInt64(v int64) *int64 { return &v }
