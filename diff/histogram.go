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

import "sort"

// maxChainLength bounds how many candidate occurrences of a line the
// histogram search will walk before giving up and handing the region to
// Myers. This keeps pathological inputs (a line repeated thousands of
// times) from making the recursive anchor search quadratic.
const maxChainLength = 64

// histogramDiff implements a histogram diff: recursively split on the
// rarest line shared by both sides (preferring the longest matching run
// through that line), falling back to Myers for any region where no usable
// anchor is found.
func histogramDiff(a, b []Line, cmp Comparator) []Edit {
	var edits []Edit
	histogramRange(a, b, 0, len(a), 0, len(b), cmp, &edits)
	sort.Slice(edits, func(i, j int) bool {
		if edits[i].BeginA != edits[j].BeginA {
			return edits[i].BeginA < edits[j].BeginA
		}
		return edits[i].BeginB < edits[j].BeginB
	})
	return edits
}

func histogramRange(a, b []Line, aLo, aHi, bLo, bHi int, cmp Comparator, out *[]Edit) {
	// Trim matching prefix and suffix within the range first, narrowing
	// the region that actually needs a diff.
	for aLo < aHi && bLo < bHi && cmp.Equal(a[aLo], b[bLo]) {
		aLo++
		bLo++
	}
	for aLo < aHi && bLo < bHi && cmp.Equal(a[aHi-1], b[bHi-1]) {
		aHi--
		bHi--
	}

	if aLo == aHi && bLo == bHi {
		return
	}
	if aLo == aHi || bLo == bHi {
		*out = append(*out, newEdit(aLo, aHi, bLo, bHi))
		return
	}

	aStart, aEnd, bStart, bEnd, ok := findLongestAnchor(a, b, aLo, aHi, bLo, bHi, cmp)
	if !ok {
		// No usable anchor (every shared line exceeded maxChainLength, or
		// the two ranges share no lines at all): fall back to Myers for
		// this region. Myers operates on the sliced (locally-indexed)
		// sub-sequences, so its output must be shifted back into the
		// outer range's coordinate space before appending.
		sub := myersDiff(a[aLo:aHi], b[bLo:bHi], cmp)
		shiftEdits(sub, aLo, bLo)
		*out = append(*out, sub...)
		return
	}

	histogramRange(a, b, aLo, aStart, bLo, bStart, cmp, out)
	histogramRange(a, b, aEnd, aHi, bEnd, bHi, cmp, out)
}

func shiftEdits(edits []Edit, dx, dy int) {
	for i := range edits {
		edits[i].BeginA += dx
		edits[i].EndA += dx
		edits[i].BeginB += dy
		edits[i].EndB += dy
	}
}

// findLongestAnchor finds the matching line (present in both ranges) with
// the fewest occurrences, preferring the longest contiguous equal run
// through it. Returns the matched run's bounds in both a and b, and false
// if no anchor under maxChainLength was found.
func findLongestAnchor(a, b []Line, aLo, aHi, bLo, bHi int, cmp Comparator) (aStart, aEnd, bStart, bEnd int, ok bool) {
	index := make(map[uint64][]int)
	for ai := aLo; ai < aHi; ai++ {
		h := cmp.Hash(a[ai])
		index[h] = append(index[h], ai)
	}

	bestCount := maxChainLength + 1
	found := false

	for bi := bLo; bi < bHi; bi++ {
		h := cmp.Hash(b[bi])
		candidates, present := index[h]
		if !present {
			continue
		}
		count := len(candidates)
		if count == 0 || count > bestCount {
			continue
		}
		for _, ai := range candidates {
			if !cmp.Equal(a[ai], b[bi]) {
				continue
			}
			if count < bestCount || (count == bestCount && !found) {
				// Extend the match as far as possible in both
				// directions to prefer the longest run through this
				// anchor.
				s, e := ai, ai+1
				bs, be := bi, bi+1
				for s > aLo && bs > bLo && cmp.Equal(a[s-1], b[bs-1]) {
					s--
					bs--
				}
				for e < aHi && be < bHi && cmp.Equal(a[e], b[be]) {
					e++
					be++
				}
				aStart, aEnd, bStart, bEnd = s, e, bs, be
				bestCount = count
				found = true
			}
		}
	}
	return aStart, aEnd, bStart, bEnd, found
}
