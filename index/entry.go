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

// Package index implements the Git staging index (the "cache"): a flat,
// ordered map of path -> (object id, mode, stage, size, mtime) that
// serializes to Git's on-disk index format and models the three-way merge
// stage convention used to represent unresolved conflicts.
package index

import (
	"time"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

// Stage is a merge stage: 0 for a normal (non-conflicted) entry, or 1-3 for
// the base/ours/theirs sides of an unresolved conflict.
type Stage int

// Merge stages.
const (
	StageNormal Stage = 0
	StageBase   Stage = 1
	StageOurs   Stage = 2
	StageTheirs Stage = 3
)

// Entry is a single record in the staging index.
type Entry struct {
	Path     string
	Stage    Stage
	Mode     object.Mode
	ObjectID githash.SHA1
	Size     int64

	CtimeSec, CtimeNsec uint32
	MtimeSec, MtimeNsec uint32
	Dev, Ino            uint32
	UID, GID            uint32

	// AssumeValid corresponds to the legacy "assume valid" flag bit.
	AssumeValid bool
	// SkipWorktree and IntentToAdd are the version-3 extended flags.
	SkipWorktree bool
	IntentToAdd  bool
}

// Mtime returns the entry's recorded modification time.
func (e Entry) Mtime() time.Time {
	return time.Unix(int64(e.MtimeSec), int64(e.MtimeNsec))
}

// entryLess reports whether a sorts before b: path ascending, then stage
// ascending, matching the sort order the binary format and every index
// operation assume.
func entryLess(a, b Entry) bool {
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	return a.Stage < b.Stage
}
