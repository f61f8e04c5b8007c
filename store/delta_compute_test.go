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

package store

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcskit.dev/pkg/git/packfile"
)

// applyDelta round-trips a delta through the teacher's own DeltaReader, the
// same code path packfile.Undeltifier uses when resolving a RefDelta/
// OffsetDelta object from a pack.
func applyDelta(t *testing.T, base []byte, delta []byte) []byte {
	t.Helper()
	dr := packfile.NewDeltaReader(bytes.NewReader(base), bufio.NewReader(bytes.NewReader(delta)))
	got, err := io.ReadAll(dr)
	require.NoError(t, err)
	return got
}

func TestComputeDeltaRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		target string
	}{
		{"identical", "the quick brown fox\n", "the quick brown fox\n"},
		{"appended", "line one\nline two\n", "line one\nline two\nline three\n"},
		{"prepended", "line two\nline three\n", "line one\nline two\nline three\n"},
		{"middle insert", "AAAA BBBB DDDD", "AAAA BBBB CCCC DDDD"},
		{"no overlap", strings.Repeat("x", 64), strings.Repeat("y", 64)},
		{"empty base", "", "brand new content"},
		{"empty target", "some old content", ""},
		{"repeated blocks", strings.Repeat("abcdefghijklmnop", 20), strings.Repeat("abcdefghijklmnop", 15) + "TAIL",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			delta := computeDelta([]byte(test.base), []byte(test.target))
			got := applyDelta(t, []byte(test.base), delta)
			assert.Equal(t, test.target, string(got))
		})
	}
}

func TestComputeDeltaSmallerThanNaiveInsertForRepeatedContent(t *testing.T) {
	base := strings.Repeat("0123456789abcdef", 64)
	target := base + "suffix"
	delta := computeDelta([]byte(base), []byte(target))
	// A delta exploiting the repeated base should be much smaller than
	// reinserting the whole target literally.
	assert.Less(t, len(delta), len(target)/2)
}
