// Copyright 2023 The gg Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//		 https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package diff

// myersDiff computes the shortest edit script between a and b using
// Myers' O((N+M)*D) algorithm, then coalesces the resulting snake into
// maximal contiguous Edit regions.
func myersDiff(a, b []Line, cmp Comparator) []Edit {
	script := myersEditScript(a, b, cmp)
	return coalesceOps(script, len(a), len(b))
}

// opKind is a single-line operation in the edit script, before
// coalescing into regions.
type opKind int

const (
	opEqual opKind = iota
	opDeleteLine
	opInsertLine
)

type op struct {
	kind opKind
	ai   int // index into a, for opEqual/opDeleteLine
	bi   int // index into b, for opEqual/opInsertLine
}

// myersEditScript returns the sequence of per-line operations (in order)
// that transforms a into b.
func myersEditScript(a, b []Line, cmp Comparator) []op {
	n, m := len(a), len(b)
	max := n + m
	if max == 0 {
		return nil
	}

	eq := func(ai, bi int) bool {
		return cmp.Equal(a[ai], b[bi])
	}

	// trace[d] is a snapshot of the V array taken at the start of round d
	// (that is, after round d-1), needed to reconstruct the path during
	// backtracking.
	offset := max
	size := 2*max + 1
	var trace [][]int
	v := make([]int, size)

	found := false
	var foundD int
outer:
	for d := 0; d <= max; d++ {
		snap := make([]int, size)
		copy(snap, v)
		trace = append(trace, snap)

		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k
			for x < n && y < m && eq(x, y) {
				x++
				y++
			}
			v[offset+k] = x
			if x >= n && y >= m {
				found = true
				foundD = d
				break outer
			}
		}
	}
	if !found {
		// Degenerate: one side is empty.
		foundD = max
		if len(trace) <= foundD {
			snap := make([]int, size)
			copy(snap, v)
			trace = append(trace, snap)
		}
	}

	// Backtrack through trace to build the reversed op list.
	var ops []op
	x, y := n, m
	for d := foundD; d > 0; d-- {
		vPrev := trace[d]
		k := x - y
		var prevK int
		if k == -d || (k != d && vPrev[offset+k-1] < vPrev[offset+k+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := vPrev[offset+prevK]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			x--
			y--
			ops = append(ops, op{kind: opEqual, ai: x, bi: y})
		}
		if x == prevX {
			y--
			ops = append(ops, op{kind: opInsertLine, bi: y})
		} else {
			x--
			ops = append(ops, op{kind: opDeleteLine, ai: x})
		}
	}
	for x > 0 && y > 0 {
		x--
		y--
		ops = append(ops, op{kind: opEqual, ai: x, bi: y})
	}

	// Reverse into forward order.
	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
	return ops
}

// coalesceOps groups consecutive non-equal ops into Edit regions.
func coalesceOps(ops []op, lenA, lenB int) []Edit {
	var edits []Edit
	i := 0
	for i < len(ops) {
		if ops[i].kind == opEqual {
			i++
			continue
		}
		beginA, beginB := -1, -1
		endA, endB := -1, -1
		j := i
		for j < len(ops) && ops[j].kind != opEqual {
			switch ops[j].kind {
			case opDeleteLine:
				if beginA == -1 {
					beginA = ops[j].ai
				}
				endA = ops[j].ai + 1
			case opInsertLine:
				if beginB == -1 {
					beginB = ops[j].bi
				}
				endB = ops[j].bi + 1
			}
			j++
		}
		if beginA == -1 {
			beginA, endA = adjacentA(ops, i, j)
		}
		if beginB == -1 {
			beginB, endB = adjacentB(ops, i, j)
		}
		edits = append(edits, newEdit(beginA, endA, beginB, endB))
		i = j
	}
	return edits
}

// adjacentA finds the A-side insertion point for a pure-insert region by
// looking at the nearest equal op.
func adjacentA(ops []op, i, j int) (int, int) {
	for k := i - 1; k >= 0; k-- {
		if ops[k].kind == opEqual {
			return ops[k].ai + 1, ops[k].ai + 1
		}
	}
	return 0, 0
}

// adjacentB finds the B-side insertion point for a pure-delete region.
func adjacentB(ops []op, i, j int) (int, int) {
	for k := i - 1; k >= 0; k-- {
		if ops[k].kind == opEqual {
			return ops[k].bi + 1, ops[k].bi + 1
		}
	}
	return 0, 0
}
