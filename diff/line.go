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

// Package diff computes line-oriented text diffs and three-way merges.
package diff

import (
	"bytes"
	"errors"

	"github.com/cespare/xxhash/v2"
)

// WhitespacePolicy controls how two lines' raw bytes are compared.
type WhitespacePolicy int

const (
	// Exact compares every byte.
	Exact WhitespacePolicy = iota
	// IgnoreAllWS ignores all whitespace when comparing.
	IgnoreAllWS
	// IgnoreLeadingWS ignores leading whitespace only.
	IgnoreLeadingWS
	// IgnoreTrailingWS ignores trailing whitespace only.
	IgnoreTrailingWS
	// IgnoreWSChange treats any run of whitespace as equivalent to any
	// other non-empty run of whitespace, but still requires whitespace to
	// be present in the same places.
	IgnoreWSChange
)

// ErrBinaryInput is returned by diff and merge operations when an input is
// detected as binary content.
var ErrBinaryInput = errors.New("diff: binary input")

// binarySniffLen is how many leading bytes are inspected for a NUL byte
// when deciding whether content is binary.
const binarySniffLen = 8000

// IsBinary reports whether data looks like binary content: either it
// contains a NUL byte within its first 8000 bytes, or it uses CR-only line
// endings (a bare '\r' with no following '\n' anywhere in the input).
// Classic-Mac CR-only text is rare enough, and different enough from the
// LF/CRLF line model the rest of this package assumes, that it is treated
// as binary rather than given a third line-splitting mode.
func IsBinary(data []byte) bool {
	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) != -1 {
		return true
	}
	return hasCROnlyLineEndings(data)
}

func hasCROnlyLineEndings(data []byte) bool {
	for i := 0; i < len(data); i++ {
		if data[i] != '\r' {
			continue
		}
		if i+1 < len(data) && data[i+1] == '\n' {
			i++ // CRLF: not CR-only, keep scanning the rest.
			continue
		}
		return true // bare CR
	}
	return false
}

// Line is a single line of text, including its terminator (if any — the
// final line of a file need not end in one).
type Line struct {
	Text []byte
}

// SplitLines splits data into lines, keeping each line's terminator
// attached to it, matching how Git itself treats a missing trailing
// newline on the final line.
func SplitLines(data []byte) []Line {
	if len(data) == 0 {
		return nil
	}
	var lines []Line
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			lines = append(lines, Line{Text: data[start : i+1]})
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, Line{Text: data[start:]})
	}
	return lines
}

// Comparator compares lines under a whitespace policy, caching nothing
// itself (callers that hash many lines repeatedly should cache Hash
// results keyed by policy).
type Comparator struct {
	Policy WhitespacePolicy
}

// Hash returns a hash of line's text under c's policy, suitable for
// grouping candidate-equal lines before falling back to Equal for a
// byte-exact check.
func (c Comparator) Hash(l Line) uint64 {
	return xxhash.Sum64(c.normalize(l.Text))
}

// Equal reports whether a and b compare equal under c's policy.
func (c Comparator) Equal(a, b Line) bool {
	return bytes.Equal(c.normalize(a.Text), c.normalize(b.Text))
}

func (c Comparator) normalize(text []byte) []byte {
	switch c.Policy {
	case IgnoreAllWS:
		out := make([]byte, 0, len(text))
		for _, b := range text {
			if !isSpace(b) {
				out = append(out, b)
			}
		}
		return out
	case IgnoreLeadingWS:
		return bytes.TrimLeft(text, " \t\r\n\f\v")
	case IgnoreTrailingWS:
		return bytes.TrimRight(text, " \t\r\n\f\v")
	case IgnoreWSChange:
		return collapseWhitespaceRuns(text)
	default:
		return text
	}
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '\f', '\v':
		return true
	default:
		return false
	}
}

// collapseWhitespaceRuns replaces every maximal run of whitespace with a
// single space, so two lines differing only in the amount of whitespace
// between tokens compare equal, while still requiring whitespace to exist
// in the same relative positions.
func collapseWhitespaceRuns(text []byte) []byte {
	out := make([]byte, 0, len(text))
	inRun := false
	for _, b := range text {
		if isSpace(b) {
			if !inRun {
				out = append(out, ' ')
				inRun = true
			}
			continue
		}
		inRun = false
		out = append(out, b)
	}
	return out
}
