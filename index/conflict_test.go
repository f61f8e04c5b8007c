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

	"github.com/stretchr/testify/assert"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

func TestClassifyConflictAddAdd(t *testing.T) {
	idx := New("")
	var a, b githash.SHA1
	a[0], b[0] = 1, 2
	idx.put(Entry{Path: "x", Stage: StageOurs, ObjectID: a})
	idx.put(Entry{Path: "x", Stage: StageTheirs, ObjectID: b})
	assert.Equal(t, ConflictAddAdd, idx.ClassifyConflict("x"))
}

func TestClassifyConflictModifyDelete(t *testing.T) {
	idx := New("")
	var base, ours githash.SHA1
	base[0], ours[0] = 1, 2
	idx.put(Entry{Path: "x", Stage: StageBase, ObjectID: base})
	idx.put(Entry{Path: "x", Stage: StageOurs, ObjectID: ours})
	assert.Equal(t, ConflictModifyDelete, idx.ClassifyConflict("x"))
}

func TestClassifyConflictDeleteModify(t *testing.T) {
	idx := New("")
	var base, theirs githash.SHA1
	base[0], theirs[0] = 1, 3
	idx.put(Entry{Path: "x", Stage: StageBase, ObjectID: base})
	idx.put(Entry{Path: "x", Stage: StageTheirs, ObjectID: theirs})
	assert.Equal(t, ConflictDeleteModify, idx.ClassifyConflict("x"))
}

func TestClassifyConflictContent(t *testing.T) {
	idx := New("")
	var base, ours, theirs githash.SHA1
	base[0], ours[0], theirs[0] = 1, 2, 3
	idx.put(Entry{Path: "x", Stage: StageBase, ObjectID: base})
	idx.put(Entry{Path: "x", Stage: StageOurs, ObjectID: ours})
	idx.put(Entry{Path: "x", Stage: StageTheirs, ObjectID: theirs})
	assert.Equal(t, ConflictContent, idx.ClassifyConflict("x"))
}

func TestClassifyConflictMode(t *testing.T) {
	idx := New("")
	var base, sameID githash.SHA1
	base[0], sameID[0] = 1, 9
	idx.put(Entry{Path: "x", Stage: StageBase, ObjectID: base})
	idx.put(Entry{Path: "x", Stage: StageOurs, ObjectID: sameID, Mode: object.ModePlain})
	idx.put(Entry{Path: "x", Stage: StageTheirs, ObjectID: sameID, Mode: object.ModeExecutable})
	assert.Equal(t, ConflictMode, idx.ClassifyConflict("x"))
}

func TestClassifyConflictNoneForResolvedPath(t *testing.T) {
	idx := New("")
	var id githash.SHA1
	idx.put(Entry{Path: "x", Stage: StageNormal, ObjectID: id})
	assert.Equal(t, ConflictNone, idx.ClassifyConflict("x"))
}
