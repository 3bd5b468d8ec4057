package domain

import (
	"testing"
	"time"
)

func TestValidateStatusTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    BranchStatus
		to      BranchStatus
		wantErr bool
	}{
		{"pending to active", BranchPending, BranchActive, false},
		{"pending to failed", BranchPending, BranchFailed, false},
		{"pending to completed invalid", BranchPending, BranchComplete, true},
		{"active to completed", BranchActive, BranchComplete, false},
		{"active to merging", BranchActive, BranchMerging, false},
		{"active to failed", BranchActive, BranchFailed, false},
		{"completed to merging", BranchComplete, BranchMerging, false},
		{"completed to active invalid", BranchComplete, BranchActive, true},
		{"merging to merged", BranchMerging, BranchMerged, false},
		{"merging to failed", BranchMerging, BranchFailed, false},
		{"merged is terminal", BranchMerged, BranchActive, true},
		{"failed is terminal", BranchFailed, BranchPending, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStatusTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStatusTransition(%v, %v) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestBranchStatus_Terminal(t *testing.T) {
	tests := []struct {
		status BranchStatus
		want   bool
	}{
		{BranchPending, false},
		{BranchActive, false},
		{BranchComplete, false},
		{BranchMerging, false},
		{BranchMerged, true},
		{BranchFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%v.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestExecutionStrategy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		s       ExecutionStrategy
		wantErr bool
	}{
		{"sequential always valid", Sequential(), false},
		{"parallel min", ParallelStrategy(1), false},
		{"parallel max", ParallelStrategy(SystemMaxConcurrency), false},
		{"parallel zero invalid", ParallelStrategy(0), true},
		{"parallel over max invalid", ParallelStrategy(SystemMaxConcurrency + 1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.s.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSortAgentAssignments_PriorityDescendingStableOnTies(t *testing.T) {
	in := []AgentAssignment{
		{AgentID: "a", Priority: 1},
		{AgentID: "b", Priority: 5},
		{AgentID: "c", Priority: 5},
		{AgentID: "d", Priority: 3},
	}
	got := SortAgentAssignments(in)
	want := []AgentId{"b", "c", "d", "a"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].AgentID != w {
			t.Errorf("got[%d] = %s, want %s", i, got[i].AgentID, w)
		}
	}
}

func TestBranchConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     BranchConfig
		wantErr bool
	}{
		{
			name: "valid minimal",
			cfg: BranchConfig{
				Name:              "feature",
				ExecutionStrategy: Sequential(),
				MergeStrategy:     StrategyUnion,
			},
			wantErr: false,
		},
		{
			name: "empty name invalid",
			cfg: BranchConfig{
				Name:          "",
				MergeStrategy: StrategyUnion,
			},
			wantErr: true,
		},
		{
			name: "unregistered strategy invalid",
			cfg: BranchConfig{
				Name:          "feature",
				MergeStrategy: "bogus",
			},
			wantErr: true,
		},
		{
			name: "invalid agent assignment propagates",
			cfg: BranchConfig{
				Name:          "feature",
				MergeStrategy: StrategyUnion,
				Agents:        []AgentAssignment{{AgentID: ""}},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBranch_Validate_CompletedAtInvariant(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Second)

	b := Branch{Name: "x", Status: BranchActive, CreatedAt: now}
	if err := b.Validate(); err != nil {
		t.Errorf("active branch without completed_at should validate: %v", err)
	}

	b2 := Branch{Name: "x", Status: BranchComplete, CreatedAt: now, CompletedAt: &later}
	if err := b2.Validate(); err != nil {
		t.Errorf("completed branch with completed_at should validate: %v", err)
	}

	b3 := Branch{Name: "x", Status: BranchComplete, CreatedAt: now}
	if err := b3.Validate(); err == nil {
		t.Error("completed branch without completed_at should fail validation")
	}

	b4 := Branch{Name: "x", Status: BranchActive, CreatedAt: now, CompletedAt: &later}
	if err := b4.Validate(); err == nil {
		t.Error("active branch with completed_at should fail validation")
	}
}
