package merge

import (
	"context"
	"fmt"

	"github.com/brioproj/brio/internal/domain"
)

// ThreeWayStrategy merges each touched path independently with ThreeWayMerge,
// using reader to pull base and per-branch content. It merges at most two
// branches, matching its two-sided merge core: no branches give an empty
// outcome, a single branch's changes pass through unchanged, and more than
// two are rejected (spec.md §3).
type ThreeWayStrategy struct {
	diffAlgo DiffAlgorithm
}

// NewThreeWayStrategy builds a ThreeWayStrategy using diffAlgo to compute
// each side's line-level diff against the base.
func NewThreeWayStrategy(diffAlgo DiffAlgorithm) ThreeWayStrategy {
	return ThreeWayStrategy{diffAlgo: diffAlgo}
}

func (ThreeWayStrategy) Name() string { return domain.StrategyThreeWay }

func (ThreeWayStrategy) Description() string {
	return "merge each touched file against its common base, line by line"
}

func (s ThreeWayStrategy) Merge(_ context.Context, reader ContentReader, branches []BranchInput) (MergeOutcome, error) {
	if err := validateBranchCount(branches); err != nil {
		return MergeOutcome{}, err
	}
	if len(branches) == 0 {
		return MergeOutcome{StrategyName: domain.StrategyThreeWay}, nil
	}
	if len(branches) == 1 {
		changes := append([]domain.FileChange(nil), branches[0].Changes...)
		return MergeOutcome{MergedChanges: changes, StrategyName: domain.StrategyThreeWay}, nil
	}
	if len(branches) != 2 {
		return MergeOutcome{}, &domain.ValidationError{
			Field:  "branches",
			Reason: fmt.Sprintf("three-way strategy merges exactly two branches, got %d", len(branches)),
		}
	}
	if reader == nil {
		return MergeOutcome{}, &domain.ValidationError{Field: "reader", Reason: "three-way strategy requires a ContentReader"}
	}

	a, b := branches[0], branches[1]
	paths := unionPaths(a.Changes, b.Changes)

	var merged []domain.FileChange
	var conflicts []domain.Conflict
	var resolved map[string]string

	for _, path := range paths {
		kindA, touchedA := findChange(a.Changes, path)
		kindB, touchedB := findChange(b.Changes, path)

		switch {
		case touchedA && !touchedB:
			merged = append(merged, domain.FileChange{Kind: kindA, Path: path})
			continue
		case touchedB && !touchedA:
			merged = append(merged, domain.FileChange{Kind: kindB, Path: path})
			continue
		}

		if kindA == domain.ChangeDeleted && kindB == domain.ChangeDeleted {
			merged = append(merged, domain.FileChange{Kind: domain.ChangeDeleted, Path: path})
			continue
		}
		if kindA == domain.ChangeDeleted || kindB == domain.ChangeDeleted {
			conflicts = append(conflicts, domain.Conflict{
				FilePath: path,
				Kind:     domain.ConflictDeleteModify,
				Reason:   fmt.Sprintf("%s deleted on one branch, modified on the other", path),
			})
			continue
		}

		baseContent, _, err := reader.ReadBase(path)
		if err != nil {
			return MergeOutcome{}, err
		}
		aContent, _, err := reader.ReadBranch(a.BranchID, path)
		if err != nil {
			return MergeOutcome{}, err
		}
		bContent, _, err := reader.ReadBranch(b.BranchID, path)
		if err != nil {
			return MergeOutcome{}, err
		}

		outcome, err := ThreeWayMerge(baseContent, aContent, bContent, s.diffAlgo)
		if err != nil {
			conflicts = append(conflicts, domain.Conflict{
				FilePath: path,
				Kind:     domain.ConflictContent,
				Reason:   err.Error(),
			})
			continue
		}
		if outcome.IsConflict() {
			conflicts = append(conflicts, domain.Conflict{
				FilePath:    path,
				Kind:        domain.ConflictContent,
				BaseContent: &baseContent,
				BranchContents: map[domain.BranchId]string{
					a.BranchID: aContent,
					b.BranchID: bContent,
				},
				Reason: fmt.Sprintf("%d conflicting hunk(s) in %s", len(outcome.Conflicts), path),
			})
			continue
		}
		merged = append(merged, domain.FileChange{Kind: domain.ChangeModified, Path: path})
		if resolved == nil {
			resolved = make(map[string]string)
		}
		resolved[path] = *outcome.Merged
	}

	return MergeOutcome{MergedChanges: merged, Conflicts: conflicts, StrategyName: domain.StrategyThreeWay, ResolvedContent: resolved}, nil
}

func unionPaths(a, b []domain.FileChange) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range a {
		if !seen[c.Path] {
			seen[c.Path] = true
			out = append(out, c.Path)
		}
	}
	for _, c := range b {
		if !seen[c.Path] {
			seen[c.Path] = true
			out = append(out, c.Path)
		}
	}
	return out
}

func findChange(changes []domain.FileChange, path string) (domain.ChangeKind, bool) {
	for _, c := range changes {
		if c.Path == path {
			return c.Kind, true
		}
	}
	return 0, false
}
