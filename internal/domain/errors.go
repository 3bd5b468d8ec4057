package domain

import "fmt"

// ValidationError reports that caller-supplied data violates a model invariant.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NotFoundError reports that a branch, merge request, or session could not
// be located.
type NotFoundError struct {
	Kind string // "branch", "merge_request", "session"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// InvalidStatusTransitionError reports a rejected status transition.
type InvalidStatusTransitionError struct {
	From, To fmt.Stringer
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// TooManyBranchesError reports that a merge or commit exceeded the
// configured branch-count ceiling.
type TooManyBranchesError struct {
	Count, Max int
}

func (e *TooManyBranchesError) Error() string {
	return fmt.Sprintf("too many branches: %d exceeds max %d", e.Count, e.Max)
}

// PolicyViolationError reports a sandbox or authorization check failure.
type PolicyViolationError struct {
	Reason string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy violation: %s", e.Reason)
}

// ExternalMutationError reports that a session's base directory changed
// underneath it between begin_session and commit_session (spec.md §4.4
// commit_session step 1, §7 "Conflict (VFS external mutation)").
type ExternalMutationError struct {
	BasePath                   string
	OriginalHash, CurrentHash string
}

func (e *ExternalMutationError) Error() string {
	return fmt.Sprintf("external mutation detected at %s: hash %s != %s", e.BasePath, e.OriginalHash, e.CurrentHash)
}

// TimeoutError reports that a branch's executor deadline elapsed before
// completion (spec.md §7 "Timeout").
type TimeoutError struct {
	BranchID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("branch %s timed out", e.BranchID)
}
