package merge

import (
	"context"
	"sort"

	"github.com/brioproj/brio/internal/domain"
)

// MaxBranchesPerMerge bounds how many branches a single merge request may
// combine (spec.md §6 MAX_BRANCHES_PER_MERGE).
const MaxBranchesPerMerge = 8

// BranchInput is one branch's contribution to a merge: its id and the
// file-level changes it produced relative to the common base.
type BranchInput struct {
	BranchID domain.BranchId
	Changes  []domain.FileChange
}

// MergeOutcome is the result of running a Strategy over a set of branches.
type MergeOutcome struct {
	MergedChanges []domain.FileChange
	Conflicts     []domain.Conflict
	StrategyName  string
	// ResolvedContent holds the synthesized text for merged changes whose
	// content doesn't come verbatim from a single branch (the three-way
	// strategy's auto-merged, non-conflicting files), keyed by path. A
	// merged change whose path has no entry here can be materialized by
	// copying straight from whichever branch produced it.
	ResolvedContent map[string]string
}

// HasConflicts reports whether the outcome contains any conflicts.
func (o MergeOutcome) HasConflicts() bool { return len(o.Conflicts) > 0 }

// ContentReader resolves file content for strategies that need to inspect
// bytes rather than just change metadata (the three-way strategy). Path not
// found is reported via found=false, not an error.
type ContentReader interface {
	ReadBase(path string) (content string, found bool, err error)
	ReadBranch(branchID domain.BranchId, path string) (content string, found bool, err error)
}

// Strategy merges the changes produced by a set of branches into a single
// outcome (spec.md §3 MergeStrategy, C3).
type Strategy interface {
	Name() string
	Description() string
	Merge(ctx context.Context, reader ContentReader, branches []BranchInput) (MergeOutcome, error)
}

// validateBranchCount enforces MaxBranchesPerMerge.
func validateBranchCount(branches []BranchInput) error {
	if len(branches) > MaxBranchesPerMerge {
		return &domain.TooManyBranchesError{Count: len(branches), Max: MaxBranchesPerMerge}
	}
	return nil
}

// Registry looks up merge strategies by name (spec.md §3).
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates a registry pre-populated with the four built-in
// strategies: union (default), three-way, ours, theirs.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register(UnionStrategy{})
	r.Register(OursStrategy{})
	r.Register(TheirsStrategy{})
	r.Register(NewThreeWayStrategy(MyersDiff{}))
	return r
}

// Register adds or replaces a strategy under its own Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get returns the strategy registered under name, or false if none is.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// DefaultStrategy returns the union strategy, which must always be
// registered.
func (r *Registry) DefaultStrategy() Strategy {
	s, ok := r.strategies[domain.DefaultMergeStrategy]
	if !ok {
		panic("merge: default strategy " + domain.DefaultMergeStrategy + " is not registered")
	}
	return s
}

// AvailableStrategies lists the registered strategy names in sorted order.
func (r *Registry) AvailableStrategies() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
