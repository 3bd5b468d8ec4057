package domain

// AgentResult is the per-agent outcome collected by the branch executor
// (spec.md §4.7).
type AgentResult struct {
	AgentID    AgentId
	Success    bool
	Output     *string
	Error      *string
	DurationMs int64
}
