package merge

import (
	"context"
	"testing"

	"github.com/brioproj/brio/internal/domain"
)

func branchInput(change ...domain.FileChange) BranchInput {
	return BranchInput{BranchID: domain.NewBranchId(), Changes: change}
}

func TestUnionStrategy_NoConflictDifferentFiles(t *testing.T) {
	b1 := branchInput(domain.FileChange{Kind: domain.ChangeAdded, Path: "file1.txt"})
	b2 := branchInput(domain.FileChange{Kind: domain.ChangeAdded, Path: "file2.txt"})

	out, err := (UnionStrategy{}).Merge(context.Background(), nil, []BranchInput{b1, b2})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if out.HasConflicts() {
		t.Fatalf("expected no conflicts, got %+v", out.Conflicts)
	}
	if len(out.MergedChanges) != 2 {
		t.Errorf("MergedChanges = %d, want 2", len(out.MergedChanges))
	}
}

func TestUnionStrategy_ConflictSameFile(t *testing.T) {
	b1 := branchInput(domain.FileChange{Kind: domain.ChangeModified, Path: "file.txt"})
	b2 := branchInput(domain.FileChange{Kind: domain.ChangeModified, Path: "file.txt"})

	out, err := (UnionStrategy{}).Merge(context.Background(), nil, []BranchInput{b1, b2})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !out.HasConflicts() {
		t.Fatal("expected a conflict")
	}
	if len(out.Conflicts) != 1 {
		t.Fatalf("Conflicts = %d, want 1", len(out.Conflicts))
	}
	if out.Conflicts[0].Kind != domain.ConflictContent {
		t.Errorf("Kind = %v, want ConflictContent", out.Conflicts[0].Kind)
	}
}

func TestUnionStrategy_EmptyBranches(t *testing.T) {
	out, err := (UnionStrategy{}).Merge(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if out.HasConflicts() || len(out.MergedChanges) != 0 {
		t.Errorf("expected empty clean outcome, got %+v", out)
	}
}

func TestUnionStrategy_SingleBranch(t *testing.T) {
	b := branchInput(
		domain.FileChange{Kind: domain.ChangeAdded, Path: "file1.txt"},
		domain.FileChange{Kind: domain.ChangeModified, Path: "file2.txt"},
	)

	out, err := (UnionStrategy{}).Merge(context.Background(), nil, []BranchInput{b})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if out.HasConflicts() {
		t.Fatalf("expected no conflicts, got %+v", out.Conflicts)
	}
	if len(out.MergedChanges) != 2 {
		t.Errorf("MergedChanges = %d, want 2", len(out.MergedChanges))
	}
}

func TestUnionStrategy_MultipleBranchesComplexMerge(t *testing.T) {
	b1 := branchInput(
		domain.FileChange{Kind: domain.ChangeAdded, Path: "new1.txt"},
		domain.FileChange{Kind: domain.ChangeModified, Path: "shared.txt"},
	)
	b2 := branchInput(
		domain.FileChange{Kind: domain.ChangeAdded, Path: "new2.txt"},
		domain.FileChange{Kind: domain.ChangeModified, Path: "shared.txt"},
	)
	b3 := branchInput(domain.FileChange{Kind: domain.ChangeAdded, Path: "new3.txt"})

	out, err := (UnionStrategy{}).Merge(context.Background(), nil, []BranchInput{b1, b2, b3})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(out.MergedChanges) != 3 {
		t.Errorf("MergedChanges = %d, want 3", len(out.MergedChanges))
	}
	if len(out.Conflicts) != 1 {
		t.Fatalf("Conflicts = %d, want 1", len(out.Conflicts))
	}
	if out.Conflicts[0].FilePath != "shared.txt" {
		t.Errorf("conflict path = %q, want shared.txt", out.Conflicts[0].FilePath)
	}
}

func TestUnionStrategy_TooManyBranches(t *testing.T) {
	branches := make([]BranchInput, MaxBranchesPerMerge+1)
	for i := range branches {
		branches[i] = branchInput(domain.FileChange{Kind: domain.ChangeAdded, Path: "f.txt"})
	}
	_, err := (UnionStrategy{}).Merge(context.Background(), nil, branches)
	if err == nil {
		t.Fatal("expected TooManyBranchesError")
	}
	if _, ok := err.(*domain.TooManyBranchesError); !ok {
		t.Errorf("err = %T, want *domain.TooManyBranchesError", err)
	}
}

func TestUnionStrategy_AddAddConflict(t *testing.T) {
	b1 := branchInput(domain.FileChange{Kind: domain.ChangeAdded, Path: "new.txt"})
	b2 := branchInput(domain.FileChange{Kind: domain.ChangeAdded, Path: "new.txt"})

	out, err := (UnionStrategy{}).Merge(context.Background(), nil, []BranchInput{b1, b2})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(out.Conflicts) != 1 || out.Conflicts[0].Kind != domain.ConflictAddAdd {
		t.Errorf("Conflicts = %+v, want single ConflictAddAdd", out.Conflicts)
	}
}

func TestUnionStrategy_DeleteModifyConflict(t *testing.T) {
	b1 := branchInput(domain.FileChange{Kind: domain.ChangeDeleted, Path: "f.txt"})
	b2 := branchInput(domain.FileChange{Kind: domain.ChangeModified, Path: "f.txt"})

	out, err := (UnionStrategy{}).Merge(context.Background(), nil, []BranchInput{b1, b2})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(out.Conflicts) != 1 || out.Conflicts[0].Kind != domain.ConflictDeleteModify {
		t.Errorf("Conflicts = %+v, want single ConflictDeleteModify", out.Conflicts)
	}
}
