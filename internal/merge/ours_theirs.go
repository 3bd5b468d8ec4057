package merge

import (
	"context"

	"github.com/brioproj/brio/internal/domain"
)

// OursStrategy keeps only the first branch's changes, discarding the rest.
// Never produces a conflict.
type OursStrategy struct{}

func (OursStrategy) Name() string        { return domain.StrategyOurs }
func (OursStrategy) Description() string { return "keep only the first branch's changes" }

func (OursStrategy) Merge(_ context.Context, _ ContentReader, branches []BranchInput) (MergeOutcome, error) {
	if err := validateBranchCount(branches); err != nil {
		return MergeOutcome{}, err
	}
	if len(branches) == 0 {
		return MergeOutcome{StrategyName: domain.StrategyOurs}, nil
	}
	changes := append([]domain.FileChange(nil), branches[0].Changes...)
	return MergeOutcome{MergedChanges: changes, StrategyName: domain.StrategyOurs}, nil
}

// TheirsStrategy keeps only the last branch's changes, discarding the rest.
// Never produces a conflict.
type TheirsStrategy struct{}

func (TheirsStrategy) Name() string        { return domain.StrategyTheirs }
func (TheirsStrategy) Description() string { return "keep only the last branch's changes" }

func (TheirsStrategy) Merge(_ context.Context, _ ContentReader, branches []BranchInput) (MergeOutcome, error) {
	if err := validateBranchCount(branches); err != nil {
		return MergeOutcome{}, err
	}
	if len(branches) == 0 {
		return MergeOutcome{StrategyName: domain.StrategyTheirs}, nil
	}
	last := branches[len(branches)-1]
	changes := append([]domain.FileChange(nil), last.Changes...)
	return MergeOutcome{MergedChanges: changes, StrategyName: domain.StrategyTheirs}, nil
}
