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

package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

func conflictedIndex() (*Index, githash.SHA1, githash.SHA1, githash.SHA1) {
	idx := New("")
	var base, ours, theirs githash.SHA1
	base[0], ours[0], theirs[0] = 1, 2, 3
	idx.put(Entry{Path: "x", Stage: StageBase, ObjectID: base, Mode: object.ModePlain})
	idx.put(Entry{Path: "x", Stage: StageOurs, ObjectID: ours, Mode: object.ModePlain})
	idx.put(Entry{Path: "x", Stage: StageTheirs, ObjectID: theirs, Mode: object.ModePlain})
	return idx, base, ours, theirs
}

func TestMarkResolved(t *testing.T) {
	idx, _, _, _ := conflictedIndex()
	var resolvedID githash.SHA1
	resolvedID[0] = 0xee

	require.NoError(t, idx.MarkResolved("x", Resolution{ObjectID: resolvedID, Mode: object.ModePlain}, time.Now()))

	assert.False(t, idx.HasConflicts())
	e, ok := idx.GetEntry("x")
	require.True(t, ok)
	assert.Equal(t, resolvedID, e.ObjectID)
}

func TestAcceptOurs(t *testing.T) {
	idx, _, ours, _ := conflictedIndex()
	require.NoError(t, idx.AcceptOurs("x", time.Now()))

	e, ok := idx.GetEntry("x")
	require.True(t, ok)
	assert.Equal(t, ours, e.ObjectID)
}

func TestAcceptTheirs(t *testing.T) {
	idx, _, _, theirs := conflictedIndex()
	require.NoError(t, idx.AcceptTheirs("x", time.Now()))

	e, ok := idx.GetEntry("x")
	require.True(t, ok)
	assert.Equal(t, theirs, e.ObjectID)
}

func TestAcceptOursWhenOurSideDeleted(t *testing.T) {
	idx := New("")
	var base, theirs githash.SHA1
	base[0], theirs[0] = 1, 3
	idx.put(Entry{Path: "x", Stage: StageBase, ObjectID: base})
	idx.put(Entry{Path: "x", Stage: StageTheirs, ObjectID: theirs})

	require.NoError(t, idx.AcceptOurs("x", time.Now()))
	assert.Empty(t, idx.GetEntries("x"), "accepting our deletion removes the path entirely")
}

func TestContainsConflictMarkers(t *testing.T) {
	clean := []byte("line one\nline two\n")
	assert.False(t, ContainsConflictMarkers(clean))

	conflicted := []byte("line one\n<<<<<<< HEAD\nours\n=======\ntheirs\n>>>>>>> branch\n")
	assert.True(t, ContainsConflictMarkers(conflicted))
}

func TestMarkAllResolved(t *testing.T) {
	idx, _, _, _ := conflictedIndex()
	idx.put(Entry{Path: "clean.txt"})

	var resolvedID githash.SHA1
	resolvedID[0] = 0xff

	err := idx.MarkAllResolved(
		func(path string) ([]byte, error) {
			if path == "x" {
				return []byte("resolved content, no markers\n"), nil
			}
			return []byte("clean\n"), nil
		},
		func(path string) (Resolution, error) {
			return Resolution{ObjectID: resolvedID, Mode: object.ModePlain}, nil
		},
		time.Now(),
	)
	require.NoError(t, err)
	assert.False(t, idx.HasConflicts())
}

func TestMarkAllResolvedLeavesStillConflictedMarkers(t *testing.T) {
	idx, _, _, _ := conflictedIndex()

	err := idx.MarkAllResolved(
		func(path string) ([]byte, error) {
			return []byte("<<<<<<< HEAD\nours\n=======\ntheirs\n>>>>>>> branch\n"), nil
		},
		func(path string) (Resolution, error) {
			t.Fatal("resolution func should not be called when markers remain")
			return Resolution{}, nil
		},
		time.Now(),
	)
	require.NoError(t, err)
	assert.True(t, idx.HasConflicts())
}
