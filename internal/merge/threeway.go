// Package merge implements the three-way merge engine (C2) and the
// pluggable merge strategies (C3) built on top of it.
package merge

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/brioproj/brio/internal/diff"
)

// DefaultMaxFileSize is MAX_FILE_SIZE_FOR_MERGE from spec.md §5.
const DefaultMaxFileSize = 10 * 1024 * 1024 // 10 MiB

// DiffAlgorithm is the pluggable line-diff used by ThreeWayMerge (spec.md §4.2).
type DiffAlgorithm interface {
	Diff(base, target []string) []diff.Op
}

// MyersDiff adapts the package-level Myers diff.Diff function to
// DiffAlgorithm.
type MyersDiff struct{}

// Diff implements DiffAlgorithm.
func (MyersDiff) Diff(base, target []string) []diff.Op {
	return diff.Diff(base, target)
}

// BinaryOrTooLargeError is returned when an input to ThreeWayMerge looks
// like binary data (contains a NUL byte) or exceeds the configured maximum
// file size (spec.md §4.2, §9).
type BinaryOrTooLargeError struct {
	Reason string
}

func (e *BinaryOrTooLargeError) Error() string { return "three-way merge: " + e.Reason }

// changeRange mirrors a DiffOp but split into base/target half-open ranges
// plus a change kind, for the overlap-walk in three-way merge (spec.md §4.2
// step 2).
type changeRange struct {
	hasBase       bool
	baseStart, baseEnd int
	hasTarget     bool
	targetStart, targetEnd int
	kind          diff.OpKind // Insert, Delete, or Replace — never Equal
}

func extractChanges(ops []diff.Op) []changeRange {
	var out []changeRange
	for _, op := range ops {
		switch op.Kind {
		case diff.Equal:
			continue
		case diff.Insert:
			out = append(out, changeRange{hasTarget: true, targetStart: op.NewStart, targetEnd: op.NewEnd, kind: diff.Insert})
		case diff.Delete:
			out = append(out, changeRange{hasBase: true, baseStart: op.OldStart, baseEnd: op.OldEnd, kind: diff.Delete})
		case diff.Replace:
			out = append(out, changeRange{
				hasBase: true, baseStart: op.OldStart, baseEnd: op.OldEnd,
				hasTarget: true, targetStart: op.NewStart, targetEnd: op.NewEnd,
				kind: diff.Replace,
			})
		}
	}
	return out
}

func (c changeRange) baseAnchor() (int, int) {
	if c.hasBase {
		return c.baseStart, c.baseEnd
	}
	return c.targetStart, c.targetStart // insertions anchor at a point in base
}

func changesOverlap(a, b changeRange) bool {
	as, ae := a.baseAnchor()
	bs, be := b.baseAnchor()
	return as < be && bs < ae
}

// LineConflict is a conflicting hunk discovered while walking the base
// during a three-way merge (spec.md §4.2 step 4, §3 Conflict).
type LineConflict struct {
	LineStart, LineEnd int
	Base, A, B         []string
}

// Outcome is the result of a three-way merge: either a clean merge or a set
// of line-level conflicts (spec.md §4.2 step 5).
type Outcome struct {
	Merged    *string
	Conflicts []LineConflict
}

// IsConflict reports whether the merge produced any conflicts.
func (o Outcome) IsConflict() bool { return len(o.Conflicts) > 0 }

// detectBinary scans for a NUL byte or a size over maxFileSize, the
// caller-detected-binary heuristic from spec.md §4.2, §9.
func detectBinary(s string, maxFileSize int) error {
	if maxFileSize > 0 && len(s) > maxFileSize {
		return &BinaryOrTooLargeError{Reason: fmt.Sprintf("input exceeds max file size %d bytes", maxFileSize)}
	}
	if bytes.IndexByte([]byte(s), 0) >= 0 {
		return &BinaryOrTooLargeError{Reason: "input contains a NUL byte (binary)"}
	}
	return nil
}

// ThreeWayMerge merges side_a and side_b against base, using diffAlgo to
// compute each side's changes relative to base, and classifying any
// overlapping changes as conflicts (spec.md §4.2).
func ThreeWayMerge(base, sideA, sideB string, diffAlgo DiffAlgorithm) (Outcome, error) {
	return threeWayMergeMaxSize(base, sideA, sideB, diffAlgo, DefaultMaxFileSize)
}

func threeWayMergeMaxSize(base, sideA, sideB string, diffAlgo DiffAlgorithm, maxFileSize int) (Outcome, error) {
	for _, s := range []string{base, sideA, sideB} {
		if err := detectBinary(s, maxFileSize); err != nil {
			return Outcome{}, err
		}
	}

	baseLines := diff.SplitLines(base)
	aLines := diff.SplitLines(sideA)
	bLines := diff.SplitLines(sideB)

	diffA := diffAlgo.Diff(baseLines, aLines)
	diffB := diffAlgo.Diff(baseLines, bLines)

	changesA := extractChanges(diffA)
	changesB := extractChanges(diffB)

	merged, conflicts := performMerge(baseLines, aLines, bLines, changesA, changesB)

	if len(conflicts) == 0 {
		joined := diff.JoinLines(merged)
		return Outcome{Merged: &joined}, nil
	}
	for i := range conflicts {
		conflicts[i].LineEnd = len(merged) + 1
	}
	return Outcome{Conflicts: conflicts}, nil
}

type taggedChange struct {
	pos    int
	change changeRange
	side   byte // 'a' or 'b'
}

// performMerge walks base in order, collecting the maximal overlapping set
// of changes from either side at each position (spec.md §4.2 steps 3-5).
func performMerge(base, sideA, sideB []string, changesA, changesB []changeRange) ([]string, []LineConflict) {
	var all []taggedChange
	for _, c := range changesA {
		s, _ := c.baseAnchor()
		all = append(all, taggedChange{pos: s, change: c, side: 'a'})
	}
	for _, c := range changesB {
		s, _ := c.baseAnchor()
		all = append(all, taggedChange{pos: s, change: c, side: 'b'})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].pos < all[j].pos })

	var merged []string
	var conflicts []LineConflict
	baseIdx := 0

	i := 0
	for i < len(all) {
		overlap := []taggedChange{all[i]}
		sidesSeen := map[byte]bool{all[i].side: true}

		for baseIdx < all[i].pos {
			merged = append(merged, base[baseIdx])
			baseIdx++
		}

		j := i + 1
		for j < len(all) {
			if anyOverlap(overlap, all[j].change) {
				if !sidesSeen[all[j].side] {
					overlap = append(overlap, all[j])
					sidesSeen[all[j].side] = true
				}
				j++
				continue
			}
			break
		}

		if len(sidesSeen) > 1 {
			bs := baseIdx
			be := baseIdx
			for _, oc := range overlap {
				if oc.change.hasBase && oc.change.baseEnd > be {
					be = oc.change.baseEnd
				}
			}
			var baseSlice []string
			if bs < be {
				baseSlice = append(baseSlice, base[bs:be]...)
			}

			aText := findSideText(overlap, 'a', sideA, baseSlice)
			bText := findSideText(overlap, 'b', sideB, baseSlice)

			if linesEqual(aText, bText) {
				merged = append(merged, aText...)
			} else {
				conflicts = append(conflicts, LineConflict{
					LineStart: len(merged) + 1,
					Base:      baseSlice,
					A:         aText,
					B:         bText,
				})
			}
			baseIdx = be
			i = j
			continue
		}

		// Single-side change: apply it directly.
		c := overlap[0].change
		switch c.kind {
		case diff.Insert:
			src := sideA
			if overlap[0].side == 'b' {
				src = sideB
			}
			merged = append(merged, src[c.targetStart:c.targetEnd]...)
		case diff.Delete:
			baseIdx = c.baseEnd
		case diff.Replace:
			baseIdx = c.baseEnd
			src := sideA
			if overlap[0].side == 'b' {
				src = sideB
			}
			merged = append(merged, src[c.targetStart:c.targetEnd]...)
		}
		i = j
	}

	for baseIdx < len(base) {
		merged = append(merged, base[baseIdx])
		baseIdx++
	}

	return merged, conflicts
}

func anyOverlap(overlap []taggedChange, c changeRange) bool {
	for _, oc := range overlap {
		if changesOverlap(oc.change, c) {
			return true
		}
	}
	return false
}

func findSideText(overlap []taggedChange, side byte, sideLines, fallback []string) []string {
	for _, oc := range overlap {
		if oc.side == side {
			if !oc.change.hasTarget {
				return fallback // pure deletion on this side
			}
			return sideLines[oc.change.targetStart:oc.change.targetEnd]
		}
	}
	return fallback // side did not touch this range
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RenderConflictMarkers renders a LineConflict as git-style conflict
// markers (spec.md §4.2 "Conflict markers"), with label A/B identifying the
// two sides. Empty-side bodies collapse (no blank line emitted).
func RenderConflictMarkers(c LineConflict, labelA, labelB string) string {
	var sb strings.Builder
	sb.WriteString("<<<<<<< " + labelA + "\n")
	if len(c.A) > 0 {
		sb.WriteString(diff.JoinLines(c.A))
	}
	sb.WriteString("||||||| base\n")
	if len(c.Base) > 0 {
		sb.WriteString(diff.JoinLines(c.Base))
	}
	sb.WriteString("=======\n")
	if len(c.B) > 0 {
		sb.WriteString(diff.JoinLines(c.B))
	}
	sb.WriteString(">>>>>>> " + labelB + "\n")
	return sb.String()
}
