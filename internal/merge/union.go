package merge

import (
	"context"
	"fmt"

	"github.com/brioproj/brio/internal/domain"
)

// UnionStrategy combines non-conflicting changes from every branch and
// raises a conflict whenever more than one branch touches the same path.
type UnionStrategy struct{}

func (UnionStrategy) Name() string { return domain.StrategyUnion }

func (UnionStrategy) Description() string {
	return "combine non-conflicting changes, mark conflicts when multiple branches modify the same file"
}

type pathChange struct {
	branchID domain.BranchId
	change   domain.FileChange
}

func (UnionStrategy) Merge(_ context.Context, _ ContentReader, branches []BranchInput) (MergeOutcome, error) {
	if err := validateBranchCount(branches); err != nil {
		return MergeOutcome{}, err
	}
	if len(branches) == 0 {
		return MergeOutcome{StrategyName: domain.StrategyUnion}, nil
	}

	byPath := make(map[string][]pathChange)
	var order []string
	for _, b := range branches {
		for _, c := range b.Changes {
			if _, seen := byPath[c.Path]; !seen {
				order = append(order, c.Path)
			}
			byPath[c.Path] = append(byPath[c.Path], pathChange{branchID: b.BranchID, change: c})
		}
	}

	var merged []domain.FileChange
	var conflicts []domain.Conflict

	for _, path := range order {
		touches := byPath[path]
		if len(touches) == 1 {
			merged = append(merged, touches[0].change)
			continue
		}

		conflicts = append(conflicts, domain.Conflict{
			FilePath: path,
			Kind:     classifyConflict(touches),
			Reason:   fmt.Sprintf("%d branches modified %s", len(touches), path),
		})
	}

	return MergeOutcome{MergedChanges: merged, Conflicts: conflicts, StrategyName: domain.StrategyUnion}, nil
}

func classifyConflict(touches []pathChange) domain.ConflictKind {
	allAdded := true
	anyDeleted, anyNonDeleted := false, false
	for _, t := range touches {
		if t.change.Kind != domain.ChangeAdded {
			allAdded = false
		}
		if t.change.Kind == domain.ChangeDeleted {
			anyDeleted = true
		} else {
			anyNonDeleted = true
		}
	}
	switch {
	case allAdded:
		return domain.ConflictAddAdd
	case anyDeleted && anyNonDeleted:
		return domain.ConflictDeleteModify
	default:
		return domain.ConflictContent
	}
}
