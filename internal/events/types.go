// Package events implements the branch event stream (C10): the lifecycle
// manager's operations each produce a BranchEvent, which the Emitter
// publishes to subscribed WebSocket clients as a best-effort, asynchronous
// side channel (spec.md §4.10). No lifecycle operation ever blocks on, or
// fails because of, event delivery.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/brioproj/brio/internal/domain"
)

// Metadata is attached to every BranchEvent (spec.md §4.10: "each event
// carries {event_id, timestamp}").
type Metadata struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMetadata stamps an event with a fresh id and the current time.
func NewMetadata() Metadata {
	return Metadata{EventID: uuid.NewString(), Timestamp: time.Now()}
}

// BranchEvent is implemented by every concrete event type. The original
// Rust kernel models these as variants of one enum; Go has no sum types,
// so each variant is its own struct and Kind/MarshalJSON recover the
// "type"-tagged wire shape spec.md §6 describes ("JSON objects with a type
// tag matching the variant name").
type BranchEvent interface {
	Kind() string
	BranchID() domain.BranchId
	Meta() Metadata
}

// marshalTagged flattens fields (a struct with its own json tags) into a
// single object alongside the "type"/"event_id"/"timestamp" envelope, so
// each BranchEvent variant serializes as one flat tagged object rather
// than a nested "fields" object.
func marshalTagged(kind string, meta Metadata, fields any) ([]byte, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}

	out := map[string]any{
		"type":      kind,
		"event_id":  meta.EventID,
		"timestamp": meta.Timestamp,
	}
	for k, v := range m {
		out[k] = v
	}
	return json.Marshal(out)
}

// Created fires when CreateBranch persists a new branch.
type Created struct {
	Meta_     Metadata       `json:"-"`
	Branch    domain.BranchId `json:"-"`
	ParentID  *domain.BranchId
	Name      string
	SessionID domain.SessionId
}

func (e Created) Kind() string            { return "created" }
func (e Created) BranchID() domain.BranchId { return e.Branch }
func (e Created) Meta() Metadata          { return e.Meta_ }
func (e Created) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.Kind(), e.Meta_, struct {
		BranchID  domain.BranchId  `json:"branch_id"`
		ParentID  *domain.BranchId `json:"parent_id,omitempty"`
		Name      string           `json:"name"`
		SessionID domain.SessionId `json:"session_id"`
	}{e.Branch, e.ParentID, e.Name, e.SessionID})
}

// ExecutionStarted fires when ExecuteBranch begins dispatching agents.
type ExecutionStarted struct {
	Meta_             Metadata
	Branch            domain.BranchId
	Agents            []domain.AgentId
	ExecutionStrategy string
}

func (e ExecutionStarted) Kind() string            { return "execution_started" }
func (e ExecutionStarted) BranchID() domain.BranchId { return e.Branch }
func (e ExecutionStarted) Meta() Metadata          { return e.Meta_ }
func (e ExecutionStarted) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.Kind(), e.Meta_, struct {
		BranchID          domain.BranchId  `json:"branch_id"`
		Agents            []domain.AgentId `json:"agents"`
		ExecutionStrategy string           `json:"execution_strategy"`
	}{e.Branch, e.Agents, e.ExecutionStrategy})
}

// ExecutionProgress is published by the lifecycle manager once per collected
// agent result, after the executor returns; Completed counts the results
// published so far.
type ExecutionProgress struct {
	Meta_         Metadata
	Branch        domain.BranchId
	TotalAgents   int
	Completed     int
	CurrentAgent  *domain.AgentId
}

func (e ExecutionProgress) Kind() string            { return "execution_progress" }
func (e ExecutionProgress) BranchID() domain.BranchId { return e.Branch }
func (e ExecutionProgress) Meta() Metadata          { return e.Meta_ }

// PercentComplete mirrors the original BranchEvent::percent_complete helper.
func (e ExecutionProgress) PercentComplete() float64 {
	if e.TotalAgents == 0 {
		return 0
	}
	return float64(e.Completed) / float64(e.TotalAgents) * 100
}

func (e ExecutionProgress) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.Kind(), e.Meta_, struct {
		BranchID       domain.BranchId  `json:"branch_id"`
		TotalAgents    int              `json:"total_agents"`
		CompletedAgents int             `json:"completed_agents"`
		CurrentAgent   *domain.AgentId  `json:"current_agent,omitempty"`
	}{e.Branch, e.TotalAgents, e.Completed, e.CurrentAgent})
}

// AgentCompleted fires once per agent as its result is collected.
type AgentCompleted struct {
	Meta_   Metadata
	Branch  domain.BranchId
	AgentID domain.AgentId
	Success bool
	Output  *string
	Error   *string
}

func (e AgentCompleted) Kind() string            { return "agent_completed" }
func (e AgentCompleted) BranchID() domain.BranchId { return e.Branch }
func (e AgentCompleted) Meta() Metadata          { return e.Meta_ }
func (e AgentCompleted) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.Kind(), e.Meta_, struct {
		BranchID domain.BranchId `json:"branch_id"`
		AgentID  domain.AgentId  `json:"agent_id"`
		Success  bool            `json:"success"`
		Output   *string         `json:"output,omitempty"`
		Error    *string         `json:"error,omitempty"`
	}{e.Branch, e.AgentID, e.Success, e.Output, e.Error})
}

// ExecutionCompleted fires when every agent assignment has returned.
type ExecutionCompleted struct {
	Meta_            Metadata
	Branch           domain.BranchId
	FileChangesCount int
	DurationMs       int64
}

func (e ExecutionCompleted) Kind() string            { return "execution_completed" }
func (e ExecutionCompleted) BranchID() domain.BranchId { return e.Branch }
func (e ExecutionCompleted) Meta() Metadata          { return e.Meta_ }
func (e ExecutionCompleted) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.Kind(), e.Meta_, struct {
		BranchID         domain.BranchId `json:"branch_id"`
		FileChangesCount int             `json:"file_changes_count"`
		DurationMs       int64           `json:"duration_ms"`
	}{e.Branch, e.FileChangesCount, e.DurationMs})
}

// ExecutionFailed fires when ExecuteBranch gives up on a branch.
type ExecutionFailed struct {
	Meta_       Metadata
	Branch      domain.BranchId
	Error       string
	FailedAgent *domain.AgentId
}

func (e ExecutionFailed) Kind() string            { return "execution_failed" }
func (e ExecutionFailed) BranchID() domain.BranchId { return e.Branch }
func (e ExecutionFailed) Meta() Metadata          { return e.Meta_ }
func (e ExecutionFailed) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.Kind(), e.Meta_, struct {
		BranchID    domain.BranchId `json:"branch_id"`
		Error       string          `json:"error"`
		FailedAgent *domain.AgentId `json:"failed_agent,omitempty"`
	}{e.Branch, e.Error, e.FailedAgent})
}

// MergeStarted fires when Manager.Merge begins running a strategy.
type MergeStarted struct {
	Meta_            Metadata
	Branch           domain.BranchId
	Strategy         string
	RequiresApproval bool
}

func (e MergeStarted) Kind() string            { return "merge_started" }
func (e MergeStarted) BranchID() domain.BranchId { return e.Branch }
func (e MergeStarted) Meta() Metadata          { return e.Meta_ }
func (e MergeStarted) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.Kind(), e.Meta_, struct {
		BranchID         domain.BranchId `json:"branch_id"`
		Strategy         string          `json:"strategy"`
		RequiresApproval bool            `json:"requires_approval"`
	}{e.Branch, e.Strategy, e.RequiresApproval})
}

// MergeCompleted fires once commitMerge has committed the staging session.
type MergeCompleted struct {
	Meta_        Metadata
	Branch       domain.BranchId
	StrategyUsed string
	FilesChanged int
}

func (e MergeCompleted) Kind() string            { return "merge_completed" }
func (e MergeCompleted) BranchID() domain.BranchId { return e.Branch }
func (e MergeCompleted) Meta() Metadata          { return e.Meta_ }
func (e MergeCompleted) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.Kind(), e.Meta_, struct {
		BranchID     domain.BranchId `json:"branch_id"`
		StrategyUsed string          `json:"strategy_used"`
		FilesChanged int             `json:"files_changed"`
	}{e.Branch, e.StrategyUsed, e.FilesChanged})
}

// MergeConflict fires when a merge strategy reports unresolved conflicts.
type MergeConflict struct {
	Meta_          Metadata
	Branch         domain.BranchId
	Conflicts      []domain.Conflict
	MergeRequestID domain.BranchId
}

func (e MergeConflict) Kind() string            { return "merge_conflict" }
func (e MergeConflict) BranchID() domain.BranchId { return e.Branch }
func (e MergeConflict) Meta() Metadata          { return e.Meta_ }
func (e MergeConflict) MarshalJSON() ([]byte, error) {
	summaries := make([]conflictSummary, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		involved := make([]domain.BranchId, 0, len(c.BranchContents))
		for b := range c.BranchContents {
			involved = append(involved, b)
		}
		summaries = append(summaries, conflictSummary{
			FilePath:        c.FilePath,
			ConflictType:    c.Kind.String(),
			BranchesInvolved: involved,
		})
	}
	return marshalTagged(e.Kind(), e.Meta_, struct {
		BranchID       domain.BranchId    `json:"branch_id"`
		Conflicts      []conflictSummary  `json:"conflicts"`
		MergeRequestID domain.BranchId    `json:"merge_request_id"`
	}{e.Branch, summaries, e.MergeRequestID})
}

type conflictSummary struct {
	FilePath        string          `json:"file_path"`
	ConflictType    string          `json:"conflict_type"`
	BranchesInvolved []domain.BranchId `json:"branches_involved"`
}

// RolledBack fires when AbortBranch discards a branch's session.
type RolledBack struct {
	Meta_  Metadata
	Branch domain.BranchId
	Reason string
}

func (e RolledBack) Kind() string            { return "rolled_back" }
func (e RolledBack) BranchID() domain.BranchId { return e.Branch }
func (e RolledBack) Meta() Metadata          { return e.Meta_ }
func (e RolledBack) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.Kind(), e.Meta_, struct {
		BranchID domain.BranchId `json:"branch_id"`
		Reason   string          `json:"reason"`
	}{e.Branch, e.Reason})
}
