// Package diff computes line-level edit scripts between two text sequences
// using the Myers shortest-edit-script algorithm (spec.md §4.1).
package diff

import "strings"

// OpKind classifies a DiffOp.
type OpKind int

const (
	Equal OpKind = iota
	Insert
	Delete
	Replace
)

func (k OpKind) String() string {
	switch k {
	case Equal:
		return "equal"
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Replace:
		return "replace"
	default:
		return "unknown"
	}
}

// Op is one edit operation, carrying half-open index ranges into the base
// ("old") and target ("new") line sequences.
type Op struct {
	Kind                         OpKind
	OldStart, OldEnd             int
	NewStart, NewEnd             int
}

// SplitLines splits s into lines the way the diff engine expects: a
// trailing newline does not produce a trailing empty element, matching
// typical line-oriented diff tooling. An empty string yields zero lines.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// JoinLines re-joins lines produced by SplitLines back into text, restoring
// the trailing newline convention.
func JoinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Diff computes the minimal edit script turning base into target using the
// Myers algorithm, coalescing adjacent operations of the same kind and
// adjacent Insert+Delete pairs into Replace (spec.md §4.1).
//
// Edge cases: both empty -> nil; base empty -> one Insert; target empty ->
// one Delete. Equal runs are maximal.
func Diff(base, target []string) []Op {
	if len(base) == 0 && len(target) == 0 {
		return nil
	}
	if len(base) == 0 {
		return []Op{{Kind: Insert, NewStart: 0, NewEnd: len(target)}}
	}
	if len(target) == 0 {
		return []Op{{Kind: Delete, OldStart: 0, OldEnd: len(base)}}
	}
	ses := computeSES(base, target)
	return convertSESToOps(ses)
}

type editKind int

const (
	editKeep editKind = iota
	editInsert
	editDelete
)

// computeSES runs the Myers O((N+M)D) algorithm, recording the edit
// frontier v[k] at each depth d, then backtracks to recover the shortest
// edit script as a sequence of per-line edits.
func computeSES(base, target []string) []editKind {
	n, m := len(base), len(target)
	maxD := n + m

	// v[k+maxD] = furthest-reaching x on diagonal k at the current depth.
	v := make([]int, 2*maxD+1)
	trace := make([][]int, 0, maxD+1)

	var finalD int
	found := false

outer:
	for d := 0; d <= maxD; d++ {
		snapshot := make([]int, len(v))
		copy(snapshot, v)
		trace = append(trace, snapshot)

		for k := -d; k <= d; k += 2 {
			kIdx := k + maxD
			var x int
			if k == -d || (k != d && v[kIdx-1] < v[kIdx+1]) {
				x = v[kIdx+1]
			} else {
				x = v[kIdx-1] + 1
			}
			y := x - k

			for x < n && y < m && base[x] == target[y] {
				x++
				y++
			}
			v[kIdx] = x

			if x >= n && y >= m {
				finalD = d
				found = true
				break outer
			}
		}
	}
	if !found {
		finalD = maxD
	}

	return backtrack(base, target, trace, maxD, finalD)
}

func backtrack(base, target []string, trace [][]int, maxD, finalD int) []editKind {
	var edits []editKind
	x, y := len(base), len(target)

	for d := finalD; d > 0; d-- {
		v := trace[d]
		k := x - y
		kIdx := k + maxD

		var prevK int
		if k == -d || (k != d && v[kIdx-1] < v[kIdx+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := v[prevK+maxD]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			edits = append(edits, editKeep)
			x--
			y--
		}
		if x > prevX {
			edits = append(edits, editDelete)
			x--
		} else if y > prevY {
			edits = append(edits, editInsert)
			y--
		}
	}
	for x > 0 && y > 0 {
		edits = append(edits, editKeep)
		x--
		y--
	}
	for y > 0 {
		edits = append(edits, editInsert)
		y--
	}
	for x > 0 {
		edits = append(edits, editDelete)
		x--
	}

	// edits were built end-to-start; reverse in place.
	for i, j := 0, len(edits)-1; i < j; i, j = i+1, j-1 {
		edits[i], edits[j] = edits[j], edits[i]
	}
	return edits
}

// convertSESToOps walks the per-line edit script and coalesces it into
// maximal Equal/Insert/Delete/Replace ranges.
func convertSESToOps(ses []editKind) []Op {
	if len(ses) == 0 {
		return nil
	}

	var ops []Op
	var cur *Op
	bi, ti := 0, 0

	flush := func() {
		if cur != nil {
			ops = append(ops, *cur)
			cur = nil
		}
	}

	for _, edit := range ses {
		switch edit {
		case editKeep:
			flush()
			if n := len(ops); n > 0 && ops[n-1].Kind == Equal {
				ops[n-1].OldEnd = bi + 1
				ops[n-1].NewEnd = ti + 1
			} else {
				ops = append(ops, Op{Kind: Equal, OldStart: bi, OldEnd: bi + 1, NewStart: ti, NewEnd: ti + 1})
			}
			bi++
			ti++
		case editDelete:
			if cur != nil && (cur.Kind == Replace || cur.Kind == Delete) {
				cur.OldEnd = bi + 1
			} else {
				flush()
				cur = &Op{Kind: Delete, OldStart: bi, OldEnd: bi + 1}
			}
			bi++
		case editInsert:
			switch {
			case cur != nil && cur.Kind == Delete:
				cur = &Op{Kind: Replace, OldStart: cur.OldStart, OldEnd: cur.OldEnd, NewStart: ti, NewEnd: ti + 1}
			case cur != nil && (cur.Kind == Replace || cur.Kind == Insert):
				cur.NewEnd = ti + 1
			default:
				flush()
				cur = &Op{Kind: Insert, NewStart: ti, NewEnd: ti + 1}
			}
			ti++
		}
	}
	flush()
	return ops
}

// Apply reconstructs target from base, target, and ops — used to verify the
// round-trip property (spec.md §8 property 6). Callers that only have base
// and the edit script (not the original target) cannot reconstruct Insert
// and Replace content, since DiffOp carries index ranges rather than text.
func Apply(base, target []string, ops []Op) []string {
	var out []string
	for _, op := range ops {
		switch op.Kind {
		case Equal:
			out = append(out, base[op.OldStart:op.OldEnd]...)
		case Insert, Replace:
			out = append(out, target[op.NewStart:op.NewEnd]...)
		case Delete:
			// contributes nothing to target
		}
	}
	return out
}
