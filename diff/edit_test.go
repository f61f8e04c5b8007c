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

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyEdits(a, b []Line, edits []Edit) []Line {
	var out []Line
	ai := 0
	for _, e := range edits {
		out = append(out, a[ai:e.BeginA]...)
		out = append(out, b[e.BeginB:e.EndB]...)
		ai = e.EndA
	}
	out = append(out, a[ai:]...)
	return out
}

func diffReconstructs(t *testing.T, algo Algorithm, aText, bText string) {
	t.Helper()
	a := linesFromString(aText)
	b := linesFromString(bText)
	edits := Diff(a, b, Comparator{Policy: Exact}, algo)
	got := joinLines(applyEdits(a, b, edits))
	assert.Equal(t, bText, got)

	// Edits must be sorted and non-overlapping.
	for i := 1; i < len(edits); i++ {
		require.LessOrEqual(t, edits[i-1].EndA, edits[i].BeginA)
	}
}

func TestMyersIdenticalSequences(t *testing.T) {
	a := linesFromString("a\nb\nc\n")
	edits := Diff(a, a, Comparator{Policy: Exact}, Myers)
	assert.Empty(t, edits)
}

func TestMyersPureInsert(t *testing.T) {
	diffReconstructs(t, Myers, "a\nc\n", "a\nb\nc\n")
}

func TestMyersPureDelete(t *testing.T) {
	diffReconstructs(t, Myers, "a\nb\nc\n", "a\nc\n")
}

func TestMyersReplace(t *testing.T) {
	diffReconstructs(t, Myers, "a\nb\nc\n", "a\nx\nc\n")
}

func TestMyersEmptyToNonEmpty(t *testing.T) {
	diffReconstructs(t, Myers, "", "a\nb\n")
}

func TestMyersNonEmptyToEmpty(t *testing.T) {
	diffReconstructs(t, Myers, "a\nb\n", "")
}

func TestMyersEditKinds(t *testing.T) {
	a := linesFromString("a\nb\nc\n")
	b := linesFromString("a\nx\nc\n")
	edits := Diff(a, b, Comparator{Policy: Exact}, Myers)
	require.Len(t, edits, 1)
	assert.Equal(t, Replace, edits[0].Kind)
}

func TestHistogramIdenticalSequences(t *testing.T) {
	a := linesFromString("a\nb\nc\n")
	edits := Diff(a, a, Comparator{Policy: Exact}, Histogram)
	assert.Empty(t, edits)
}

func TestHistogramPureInsert(t *testing.T) {
	diffReconstructs(t, Histogram, "a\nc\n", "a\nb\nc\n")
}

func TestHistogramReplace(t *testing.T) {
	diffReconstructs(t, Histogram, "a\nb\nc\n", "a\nx\nc\n")
}

func TestHistogramPrefersLongestAnchor(t *testing.T) {
	// "common" appears on both sides bracketed by distinct unique runs;
	// histogram should anchor on the rarest line and recurse around it
	// rather than falling back to Myers for the whole region.
	a := linesFromString("u1\nu2\ncommon\nv1\nv2\n")
	b := linesFromString("w1\ncommon\nx1\nx2\n")
	diffReconstructs(t, Histogram, joinLines(a), joinLines(b))
}

func TestHistogramFallsBackOnRepeatedBlocks(t *testing.T) {
	// Build input where every shared line occurs more than maxChainLength
	// times, forcing findLongestAnchor to report no usable anchor and the
	// range to fall back to Myers. Distinct first and last lines keep the
	// prefix/suffix trim from consuming the repeated lines beforehand.
	var aBuilder, bBuilder strings.Builder
	aBuilder.WriteString("head-a\n")
	bBuilder.WriteString("head-b\n")
	for i := 0; i < maxChainLength+5; i++ {
		aBuilder.WriteString("same\n")
		bBuilder.WriteString("same\n")
	}
	aBuilder.WriteString("only-a\n")
	bBuilder.WriteString("only-b\n")
	diffReconstructs(t, Histogram, aBuilder.String(), bBuilder.String())
}

func TestHistogramMatchesDefaultAlgorithm(t *testing.T) {
	assert.Equal(t, Histogram, Algorithm(DefaultAlgorithm))
}
