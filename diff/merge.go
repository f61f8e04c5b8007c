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

// MergeContentStrategy selects how a conflicting chunk is resolved.
type MergeContentStrategy int

const (
	// StrategyConflict wraps conflicting chunks in conflict markers (the
	// default).
	StrategyConflict MergeContentStrategy = iota
	// StrategyOurs takes our side with no markers.
	StrategyOurs
	// StrategyTheirs takes their side with no markers.
	StrategyTheirs
	// StrategyUnion concatenates ours then theirs, de-duplicated when the
	// two sides are identical.
	StrategyUnion
)

// MergeOptions configures ThreeWayMerge.
type MergeOptions struct {
	Algorithm Algorithm
	Policy    WhitespacePolicy
	Strategy  MergeContentStrategy

	// OursLabel and TheirsLabel annotate conflict markers
	// ("<<<<<<< OursLabel" / ">>>>>>> TheirsLabel"). They default to
	// "OURS"/"THEIRS" when empty.
	OursLabel, TheirsLabel string
}

func (o MergeOptions) withDefaults() MergeOptions {
	if o.OursLabel == "" {
		o.OursLabel = "OURS"
	}
	if o.TheirsLabel == "" {
		o.TheirsLabel = "THEIRS"
	}
	return o
}

// MergeResult is the output of ThreeWayMerge.
type MergeResult struct {
	Lines     []Line
	Conflicts bool
}

// chunkKind classifies a region of base by which side(s) touched it.
type chunkKind int

const (
	chunkStable chunkKind = iota
	chunkOnlyOurs
	chunkOnlyTheirs
	chunkSameEdit
	chunkConflict
)

// chunk is a region of base, with corresponding regions in ours and
// theirs (valid only for the sides that touched it).
type chunk struct {
	kind           chunkKind
	baseLo, baseHi int
	oursLo, oursHi int
	theirsLo, theirsHi int
}

// ThreeWayMerge merges ours and theirs against their common ancestor base,
// all given as line sequences. It never returns an error for textual
// input; conflicts are represented in the result per opts.Strategy.
func ThreeWayMerge(base, ours, theirs []Line, opts MergeOptions) MergeResult {
	opts = opts.withDefaults()
	cmp := Comparator{Policy: opts.Policy}

	oursEdits := Diff(base, ours, cmp, opts.Algorithm)
	theirsEdits := Diff(base, theirs, cmp, opts.Algorithm)

	chunks := partitionChunks(base, ours, theirs, oursEdits, theirsEdits, cmp)

	var out []Line
	conflicted := false
	for _, c := range chunks {
		switch c.kind {
		case chunkStable:
			out = append(out, base[c.baseLo:c.baseHi]...)
		case chunkOnlyOurs:
			out = append(out, ours[c.oursLo:c.oursHi]...)
		case chunkOnlyTheirs:
			out = append(out, theirs[c.theirsLo:c.theirsHi]...)
		case chunkSameEdit:
			out = append(out, ours[c.oursLo:c.oursHi]...)
		case chunkConflict:
			oursSlice := ours[c.oursLo:c.oursHi]
			theirsSlice := theirs[c.theirsLo:c.theirsHi]
			switch opts.Strategy {
			case StrategyOurs:
				out = append(out, oursSlice...)
			case StrategyTheirs:
				out = append(out, theirsSlice...)
			case StrategyUnion:
				out = append(out, unionLines(oursSlice, theirsSlice, cmp)...)
			default:
				conflicted = true
				out = append(out, Line{Text: []byte("<<<<<<< " + opts.OursLabel + "\n")})
				out = append(out, oursSlice...)
				out = append(out, Line{Text: []byte("=======\n")})
				out = append(out, theirsSlice...)
				out = append(out, Line{Text: []byte(">>>>>>> " + opts.TheirsLabel + "\n")})
			}
		}
	}
	return MergeResult{Lines: out, Conflicts: conflicted}
}

func unionLines(ours, theirs []Line, cmp Comparator) []Line {
	if linesEqual(ours, theirs, cmp) {
		return ours
	}
	out := make([]Line, 0, len(ours)+len(theirs))
	out = append(out, ours...)
	out = append(out, theirs...)
	return out
}

func linesEqual(a, b []Line, cmp Comparator) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !cmp.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// baseInterval is a side's edit projected onto base coordinates, tagged
// with which side produced it, for the overlap sweep in partitionChunks.
type baseInterval struct {
	lo, hi int
	ours   bool
	edit   Edit
}

// partitionChunks walks base in order, splitting it into stable regions
// (neither side touched) and chunks (at least one side touched), each
// classified as only-ours, only-theirs, same-edit, or conflict.
//
// Edits from the two sides are merged by overlap in base coordinates
// rather than matched by exact endpoints: two edits that overlap, or
// that meet at the same point (in particular two pure insertions at an
// identical base position, where BeginA == EndA on both sides), belong
// to the same chunk.
func partitionChunks(base, ours, theirs []Line, oursEdits, theirsEdits []Edit, cmp Comparator) []chunk {
	intervals := make([]baseInterval, 0, len(oursEdits)+len(theirsEdits))
	for _, e := range oursEdits {
		intervals = append(intervals, baseInterval{lo: e.BeginA, hi: e.EndA, ours: true, edit: e})
	}
	for _, e := range theirsEdits {
		intervals = append(intervals, baseInterval{lo: e.BeginA, hi: e.EndA, edit: e})
	}
	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].lo != intervals[j].lo {
			return intervals[i].lo < intervals[j].lo
		}
		return intervals[i].hi < intervals[j].hi
	})

	var chunks []chunk
	basePos := 0
	for i := 0; i < len(intervals); {
		groupLo, groupHi := intervals[i].lo, intervals[i].hi
		j := i + 1
		for j < len(intervals) && intervals[j].lo <= groupHi {
			if intervals[j].hi > groupHi {
				groupHi = intervals[j].hi
			}
			j++
		}

		if groupLo > basePos {
			chunks = append(chunks, chunk{kind: chunkStable, baseLo: basePos, baseHi: groupLo})
		}

		var oe, te Edit
		var oPresent, tPresent bool
		for k := i; k < j; k++ {
			e := intervals[k].edit
			if intervals[k].ours {
				oe, oPresent = mergeEditSpan(oe, oPresent, e)
			} else {
				te, tPresent = mergeEditSpan(te, tPresent, e)
			}
		}
		// Widen each side's span to the whole group: base lines of the
		// group outside that side's own edits are unchanged on that side.
		if oPresent {
			oe.BeginB -= oe.BeginA - groupLo
			oe.EndB += groupHi - oe.EndA
		}
		if tPresent {
			te.BeginB -= te.BeginA - groupLo
			te.EndB += groupHi - te.EndA
		}

		c := chunk{baseLo: groupLo, baseHi: groupHi}
		switch {
		case oPresent && !tPresent:
			c.kind = chunkOnlyOurs
			c.oursLo, c.oursHi = oe.BeginB, oe.EndB
		case !oPresent && tPresent:
			c.kind = chunkOnlyTheirs
			c.theirsLo, c.theirsHi = te.BeginB, te.EndB
		default:
			c.oursLo, c.oursHi = oe.BeginB, oe.EndB
			c.theirsLo, c.theirsHi = te.BeginB, te.EndB
			if linesEqual(ours[oe.BeginB:oe.EndB], theirs[te.BeginB:te.EndB], cmp) {
				c.kind = chunkSameEdit
			} else {
				c.kind = chunkConflict
			}
		}
		chunks = append(chunks, c)
		basePos = groupHi
		i = j
	}
	if basePos < len(base) {
		chunks = append(chunks, chunk{kind: chunkStable, baseLo: basePos, baseHi: len(base)})
	}
	return chunks
}

// mergeEditSpan folds e into the running span for one side of a group,
// widening it to cover every edit from that side in the group (same-side
// edits within a group are always contiguous in B space, since a single
// Diff call never produces overlapping or touching edits on its own).
func mergeEditSpan(span Edit, present bool, e Edit) (Edit, bool) {
	if !present {
		return e, true
	}
	if e.BeginB < span.BeginB {
		span.BeginB = e.BeginB
	}
	if e.EndB > span.EndB {
		span.EndB = e.EndB
	}
	if e.BeginA < span.BeginA {
		span.BeginA = e.BeginA
	}
	if e.EndA > span.EndA {
		span.EndA = e.EndA
	}
	return span, true
}
