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

// ConflictType classifies an unresolved path by which stages are present
// and, when all three are, whether they differ in content or only mode.
// Conflict types are always derived from the present stages; none are
// stored.
type ConflictType int

const (
	// ConflictNone means the path has no non-zero-stage entries.
	ConflictNone ConflictType = iota
	// ConflictAddAdd is stages 2 and 3 present, stage 1 absent: both sides
	// added a file neither ancestor had.
	ConflictAddAdd
	// ConflictModifyDelete is stages 1 and 2 present, stage 3 absent: we
	// modified a file theirs deleted.
	ConflictModifyDelete
	// ConflictDeleteModify is stages 1 and 3 present, stage 2 absent: they
	// modified a file we deleted.
	ConflictDeleteModify
	// ConflictContent is all three stages present with differing object
	// ids.
	ConflictContent
	// ConflictMode is all three stages present with identical object ids
	// but differing modes.
	ConflictMode
)

func (t ConflictType) String() string {
	switch t {
	case ConflictNone:
		return "none"
	case ConflictAddAdd:
		return "add-add"
	case ConflictModifyDelete:
		return "modify-delete"
	case ConflictDeleteModify:
		return "delete-modify"
	case ConflictContent:
		return "content"
	case ConflictMode:
		return "mode"
	default:
		return "unknown"
	}
}

// ClassifyConflict derives the conflict type for path from its current
// stage entries.
func (idx *Index) ClassifyConflict(path string) ConflictType {
	return classifyConflict(idx.GetEntries(path))
}

func classifyConflict(entries []Entry) ConflictType {
	var base, ours, theirs *Entry
	for i := range entries {
		switch entries[i].Stage {
		case StageBase:
			base = &entries[i]
		case StageOurs:
			ours = &entries[i]
		case StageTheirs:
			theirs = &entries[i]
		}
	}
	switch {
	case base == nil && ours != nil && theirs != nil:
		return ConflictAddAdd
	case base != nil && ours != nil && theirs == nil:
		return ConflictModifyDelete
	case base != nil && ours == nil && theirs != nil:
		return ConflictDeleteModify
	case base != nil && ours != nil && theirs != nil:
		if ours.ObjectID != theirs.ObjectID {
			return ConflictContent
		}
		if ours.Mode != theirs.Mode {
			return ConflictMode
		}
		return ConflictNone
	default:
		return ConflictNone
	}
}
