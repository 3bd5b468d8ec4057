package merge

import (
	"strings"
	"testing"
)

func TestThreeWayMerge_DisjointChanges_S4(t *testing.T) {
	base := "L1\nL2\nL3\n"
	a := "L1\nA2\nL3\n"
	b := "L1\nL2\nB3\n"

	outcome, err := ThreeWayMerge(base, a, b, MyersDiff{})
	if err != nil {
		t.Fatalf("ThreeWayMerge: %v", err)
	}
	if outcome.IsConflict() {
		t.Fatalf("expected clean merge, got conflicts: %+v", outcome.Conflicts)
	}
	want := "L1\nA2\nB3\n"
	if outcome.Merged == nil || *outcome.Merged != want {
		t.Errorf("Merged = %v, want %q", outcome.Merged, want)
	}
}

func TestThreeWayMerge_ConflictingChanges_S5(t *testing.T) {
	base := "L1\n"
	a := "L1a\n"
	b := "L1b\n"

	outcome, err := ThreeWayMerge(base, a, b, MyersDiff{})
	if err != nil {
		t.Fatalf("ThreeWayMerge: %v", err)
	}
	if !outcome.IsConflict() {
		t.Fatalf("expected conflict, got clean merge: %v", outcome.Merged)
	}
	if len(outcome.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(outcome.Conflicts))
	}
	c := outcome.Conflicts[0]
	if strings.Join(c.Base, "|") != "L1" || strings.Join(c.A, "|") != "L1a" || strings.Join(c.B, "|") != "L1b" {
		t.Errorf("conflict = %+v", c)
	}
}

func TestThreeWayMerge_IdempotentOnEqualSides(t *testing.T) {
	base := "L1\nL2\nL3\n"
	side := "L1\nX2\nL3\nL4\n"

	outcome, err := ThreeWayMerge(base, side, side, MyersDiff{})
	if err != nil {
		t.Fatalf("ThreeWayMerge: %v", err)
	}
	if outcome.IsConflict() {
		t.Fatalf("expected clean merge, got conflicts: %+v", outcome.Conflicts)
	}
	if outcome.Merged == nil || *outcome.Merged != side {
		t.Errorf("Merged = %v, want %q", outcome.Merged, side)
	}
}

func TestThreeWayMerge_IdenticalModificationsNoConflict(t *testing.T) {
	base := "one\ntwo\nthree\n"
	x := "one\nTWO\nthree\n"

	outcome, err := ThreeWayMerge(base, x, x, MyersDiff{})
	if err != nil {
		t.Fatalf("ThreeWayMerge: %v", err)
	}
	if outcome.IsConflict() {
		t.Fatalf("expected clean merge for identical modifications, got %+v", outcome.Conflicts)
	}
	if outcome.Merged == nil || *outcome.Merged != x {
		t.Errorf("Merged = %v, want %q", outcome.Merged, x)
	}
}

func TestThreeWayMerge_Deterministic(t *testing.T) {
	base := "a\nb\nc\nd\n"
	sideA := "a\nB\nc\nd\n"
	sideB := "a\nb\nc\nD\n"

	first, err := ThreeWayMerge(base, sideA, sideB, MyersDiff{})
	if err != nil {
		t.Fatalf("ThreeWayMerge: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := ThreeWayMerge(base, sideA, sideB, MyersDiff{})
		if err != nil {
			t.Fatalf("ThreeWayMerge: %v", err)
		}
		if (first.Merged == nil) != (again.Merged == nil) {
			t.Fatalf("non-deterministic merge result across runs")
		}
		if first.Merged != nil && *first.Merged != *again.Merged {
			t.Errorf("non-deterministic merge output: %q vs %q", *first.Merged, *again.Merged)
		}
	}
}

func TestThreeWayMerge_BinaryInputRejected(t *testing.T) {
	base := "a\x00b"
	_, err := ThreeWayMerge(base, "a", "b", MyersDiff{})
	if err == nil {
		t.Fatal("expected error for NUL-containing input")
	}
	var binErr *BinaryOrTooLargeError
	if !asBinaryErr(err, &binErr) {
		t.Errorf("expected BinaryOrTooLargeError, got %T: %v", err, err)
	}
}

func TestThreeWayMerge_OversizeInputRejected(t *testing.T) {
	huge := strings.Repeat("x\n", 100)
	_, err := threeWayMergeMaxSize(huge, huge, huge, MyersDiff{}, 10)
	if err == nil {
		t.Fatal("expected error for oversize input")
	}
}

func TestRenderConflictMarkers(t *testing.T) {
	c := LineConflict{Base: []string{"L1"}, A: []string{"L1a"}, B: []string{"L1b"}}
	rendered := RenderConflictMarkers(c, "ours", "theirs")
	for _, want := range []string{"<<<<<<< ours", "L1a", "||||||| base", "L1", "=======", "L1b", ">>>>>>> theirs"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("rendered conflict missing %q:\n%s", want, rendered)
		}
	}
}

func TestRenderConflictMarkers_EmptySideCollapses(t *testing.T) {
	c := LineConflict{Base: nil, A: nil, B: []string{"only-b"}}
	rendered := RenderConflictMarkers(c, "a", "b")
	lines := strings.Split(rendered, "\n")
	// No blank body line should appear between "<<<<<<< a" and "||||||| base".
	for i, l := range lines {
		if l == "<<<<<<< a" && i+1 < len(lines) && lines[i+1] == "" {
			t.Errorf("empty A side emitted a blank line")
		}
	}
}

func asBinaryErr(err error, target **BinaryOrTooLargeError) bool {
	if e, ok := err.(*BinaryOrTooLargeError); ok {
		*target = e
		return true
	}
	return false
}
