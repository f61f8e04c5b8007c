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
	"time"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

// editKind distinguishes the three kinds of edit an Editor can queue.
type editKind int

const (
	editUpdate editKind = iota
	editDelete
	editApply
)

type edit struct {
	kind editKind

	path  string
	stage Stage

	// for editUpdate
	mode  object.Mode
	id    githash.SHA1
	size  int64
	mtime time.Time

	// for editApply
	fn func(prev Entry, ok bool) (next Entry, keep bool)
}

// Editor collects a sequence of edits against an Index and applies them
// atomically when Finish is called. Queuing edits does not mutate the
// index; nothing takes effect until Finish.
type Editor struct {
	idx   *Index
	edits []edit
}

// Editor returns a new Editor targeting idx.
func (idx *Index) Editor() *Editor {
	return &Editor{idx: idx}
}

// Update queues setting the stage-0 entry at path to the given mode,
// object id, size, and modification time, overwriting the files only if it
// exists, or upgrading the stage to it.
func (ed *Editor) Update(path string, mode object.Mode, id githash.SHA1, size int64, mtime time.Time) *Editor {
	ed.edits = append(ed.edits, edit{
		kind: editUpdate, path: path, stage: StageNormal,
		mode: mode, id: id, size: size, mtime: mtime,
	})
	return ed
}

// UpdateStage is like Update but targets an explicit conflict stage
// (1, 2, or 3), used to stage one side of an unresolved merge.
func (ed *Editor) UpdateStage(path string, stage Stage, mode object.Mode, id githash.SHA1, size int64) *Editor {
	ed.edits = append(ed.edits, edit{
		kind: editUpdate, path: path, stage: stage,
		mode: mode, id: id, size: size,
	})
	return ed
}

// Delete queues removing every stage entry for path.
func (ed *Editor) Delete(path string) *Editor {
	ed.edits = append(ed.edits, edit{kind: editDelete, path: path})
	return ed
}

// Apply queues a function-driven edit of the stage-0 entry at path: fn is
// called with the current entry (and whether it exists) when Finish runs,
// and its return value either replaces the entry (keep == true) or removes
// it (keep == false).
func (ed *Editor) Apply(path string, fn func(prev Entry, ok bool) (next Entry, keep bool)) *Editor {
	ed.edits = append(ed.edits, edit{kind: editApply, path: path, stage: StageNormal, fn: fn})
	return ed
}

// Finish applies every queued edit to the index atomically: either all
// edits are applied and the index is resorted with its update time
// advanced, or (if fn panics) none are, since nothing is written until this
// call runs. It does not itself write the backing file; call idx.Write for
// that.
func (ed *Editor) Finish() {
	// Restore the entries if an Apply function panics part-way through.
	saved := append([]Entry(nil), ed.idx.entries...)
	defer func() {
		if r := recover(); r != nil {
			ed.idx.entries = saved
			panic(r)
		}
	}()
	for _, e := range ed.edits {
		switch e.kind {
		case editUpdate:
			ed.idx.put(Entry{
				Path:      e.path,
				Stage:     e.stage,
				Mode:      e.mode,
				ObjectID:  e.id,
				Size:      e.size,
				MtimeSec:  uint32(e.mtime.Unix()),
				MtimeNsec: uint32(e.mtime.Nanosecond()),
			})
		case editDelete:
			ed.idx.removeAllStages(e.path)
		case editApply:
			prev, ok := ed.idx.GetEntry(e.path)
			next, keep := e.fn(prev, ok)
			if keep {
				next.Path = e.path
				next.Stage = StageNormal
				ed.idx.put(next)
			} else if ok {
				ed.idx.remove(e.path, StageNormal)
			}
		}
	}
	ed.idx.updateTime = time.Now()
}

// Builder rebuilds an index from scratch: every entry is supplied directly
// rather than incrementally edited against prior state, matching a full
// re-stage (e.g. after expanding a tree with ReadTree).
type Builder struct {
	version uint32
	path    string
	entries []Entry
}

// NewBuilder returns a Builder that will produce an index backed by path.
func NewBuilder(path string) *Builder {
	return &Builder{version: 2, path: path}
}

// Add appends e to the entries the built index will contain. Entries may
// be added in any order; Finish sorts them.
func (b *Builder) Add(e Entry) *Builder {
	b.entries = append(b.entries, e)
	return b
}

// Finish returns a new Index containing exactly the added entries, sorted
// by (path, stage).
func (b *Builder) Finish() *Index {
	idx := New(b.path)
	idx.Version = b.version
	idx.entries = append([]Entry(nil), b.entries...)
	sortEntries(idx.entries)
	return idx
}

func sortEntries(entries []Entry) {
	// Insertion sort: index entry counts are small enough in practice
	// (thousands, not millions) that this is simple and fast enough, and
	// keeps equal-key entries in insertion order.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entryLess(entries[j], entries[j-1]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
