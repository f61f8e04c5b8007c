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
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitLinesKeepsTerminators(t *testing.T) {
	got := SplitLines([]byte("a\nb\nc"))
	require := func(i int, want string) {
		t.Helper()
		assert.Equal(t, want, string(got[i].Text))
	}
	assert.Len(t, got, 3)
	require(0, "a\n")
	require(1, "b\n")
	require(2, "c")
}

func TestSplitLinesEmpty(t *testing.T) {
	assert.Empty(t, SplitLines(nil))
}

func TestIsBinaryDetectsNUL(t *testing.T) {
	assert.True(t, IsBinary([]byte("hello\x00world")))
	assert.False(t, IsBinary([]byte("hello world\n")))
}

func TestIsBinaryDetectsCROnly(t *testing.T) {
	assert.True(t, IsBinary([]byte("line one\rline two\r")))
	assert.False(t, IsBinary([]byte("line one\r\nline two\r\n")), "CRLF is not CR-only")
}

func TestComparatorExact(t *testing.T) {
	c := Comparator{Policy: Exact}
	a := Line{Text: []byte("foo\n")}
	b := Line{Text: []byte("foo \n")}
	assert.False(t, c.Equal(a, b))
}

func TestComparatorIgnoreAllWS(t *testing.T) {
	c := Comparator{Policy: IgnoreAllWS}
	a := Line{Text: []byte("f o o\n")}
	b := Line{Text: []byte("foo\n")}
	assert.True(t, c.Equal(a, b))
}

func TestComparatorIgnoreLeadingWS(t *testing.T) {
	c := Comparator{Policy: IgnoreLeadingWS}
	a := Line{Text: []byte("  foo\n")}
	b := Line{Text: []byte("foo\n")}
	assert.True(t, c.Equal(a, b))
	assert.False(t, c.Equal(Line{Text: []byte("foo  \n")}, Line{Text: []byte("foo\n")}))
}

func TestComparatorIgnoreTrailingWS(t *testing.T) {
	c := Comparator{Policy: IgnoreTrailingWS}
	assert.True(t, c.Equal(Line{Text: []byte("foo  \n")}, Line{Text: []byte("foo\n")}))
}

func TestComparatorIgnoreWSChange(t *testing.T) {
	c := Comparator{Policy: IgnoreWSChange}
	a := Line{Text: []byte("foo    bar\n")}
	b := Line{Text: []byte("foo bar\n")}
	assert.True(t, c.Equal(a, b))
	assert.False(t, c.Equal(Line{Text: []byte("foobar\n")}, Line{Text: []byte("foo bar\n")}))
}

func TestComparatorHashConsistentWithEqual(t *testing.T) {
	c := Comparator{Policy: IgnoreAllWS}
	a := Line{Text: []byte("f o o\n")}
	b := Line{Text: []byte("foo\n")}
	assert.Equal(t, c.Hash(a), c.Hash(b))
}

func linesFromString(s string) []Line {
	return SplitLines([]byte(s))
}

func joinLines(lines []Line) string {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.Write(l.Text)
	}
	return buf.String()
}

func TestJoinLinesRoundTrip(t *testing.T) {
	s := "a\nb\nc\n"
	assert.Equal(t, s, joinLines(linesFromString(s)))
	assert.True(t, strings.HasSuffix(s, "\n"))
}
