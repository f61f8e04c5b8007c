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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

// ErrOutdated is returned by operations that require a freshly read Index
// when the backing file has changed since it was last loaded.
var ErrOutdated = errors.New("index: on-disk file changed since last read")

// Index is an in-memory copy of the Git staging index: a flat, sorted list
// of entries keyed by (path, stage). It is not safe for concurrent use; the
// caller (typically an Editor) is responsible for serializing access.
type Index struct {
	Version uint32

	entries []Entry

	path       string
	loadedSize int64
	loadedMod  time.Time

	// updateTime is the logical last-modified time the spec's
	// getUpdateTime exposes: it advances on Editor.Finish immediately, even
	// before the change is persisted, whereas loadedMod only tracks the
	// backing file's mtime as of the last Read or Write.
	updateTime time.Time
}

// New returns an empty index targeting path as its backing file.
func New(path string) *Index {
	return &Index{Version: 2, path: path}
}

// Read loads the index from its backing file, replacing any in-memory
// state. Reading a non-existent file yields an empty index, matching a
// repository that has never staged anything.
func Read(path string) (*Index, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		idx := New(path)
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: read %s: %w", path, err)
	}
	defer f.Close()

	idx, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("index: read %s: %w", path, err)
	}
	idx.path = path
	if fi, err := f.Stat(); err == nil {
		idx.loadedSize = fi.Size()
		idx.loadedMod = fi.ModTime()
		idx.updateTime = fi.ModTime()
	}
	return idx, nil
}

// Write serializes idx and atomically replaces its backing file.
func (idx *Index) Write() error {
	dir := filepath.Dir(idx.path)
	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("index: write %s: %w", idx.path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := idx.Encode(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("index: write %s: %w", idx.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("index: write %s: %w", idx.path, err)
	}
	if err := os.Rename(tmpName, idx.path); err != nil {
		return fmt.Errorf("index: write %s: %w", idx.path, err)
	}
	if fi, err := os.Stat(idx.path); err == nil {
		idx.loadedSize = fi.Size()
		idx.loadedMod = fi.ModTime()
		idx.updateTime = fi.ModTime()
	}
	return nil
}

// Clear removes every entry, leaving the index empty in memory (the backing
// file is untouched until Write is called).
func (idx *Index) Clear() {
	idx.entries = nil
}

// IsOutdated reports whether the on-disk file has changed since idx was
// last read or written, by comparing size and modification time. A false
// negative is possible if a mutation happens within the filesystem's mtime
// resolution, matching the teacher's treatment of mtime granularity
// elsewhere (see the racily-clean status rule).
func (idx *Index) IsOutdated() (bool, error) {
	fi, err := os.Stat(idx.path)
	if errors.Is(err, os.ErrNotExist) {
		return !idx.loadedMod.IsZero(), nil
	}
	if err != nil {
		return false, fmt.Errorf("index: stat %s: %w", idx.path, err)
	}
	return fi.Size() != idx.loadedSize || !fi.ModTime().Equal(idx.loadedMod), nil
}

// GetUpdateTime returns the index's logical last-modified time: it
// advances whenever Editor.Finish applies queued edits, as well as on every
// successful Read or Write, even if the backing file has not yet been
// rewritten to reflect an in-memory change.
func (idx *Index) GetUpdateTime() time.Time {
	return idx.updateTime
}

// search returns the position of the first entry with the given path (and,
// if stage >= 0, the given stage), plus whether it was found exactly.
func (idx *Index) search(path string, stage Stage) (int, bool) {
	i := sort.Search(len(idx.entries), func(i int) bool {
		e := idx.entries[i]
		if e.Path != path {
			return e.Path >= path
		}
		return e.Stage >= stage
	})
	if i < len(idx.entries) && idx.entries[i].Path == path && idx.entries[i].Stage == stage {
		return i, true
	}
	return i, false
}

// GetEntry returns the normal-stage (stage 0) entry for path, or false if
// there is none (either because the path isn't staged, or it is currently
// conflicted and has no stage-0 entry).
func (idx *Index) GetEntry(path string) (Entry, bool) {
	i, ok := idx.search(path, StageNormal)
	if !ok {
		return Entry{}, false
	}
	return idx.entries[i], true
}

// GetEntries returns every entry for path across all stages, in stage
// order. A conflicted path has two or three entries; a resolved path has
// exactly one, at stage 0.
func (idx *Index) GetEntries(path string) []Entry {
	i, _ := idx.search(path, StageNormal)
	var out []Entry
	for ; i < len(idx.entries) && idx.entries[i].Path == path; i++ {
		out = append(out, idx.entries[i])
	}
	return out
}

// ListEntries returns every entry in the index, sorted by path then stage.
func (idx *Index) ListEntries() []Entry {
	out := make([]Entry, len(idx.entries))
	copy(out, idx.entries)
	return out
}

// ListEntriesUnder returns every entry whose path is dir or falls under it
// (dir plus a trailing slash), sorted by path then stage. An empty dir
// matches every entry.
func (idx *Index) ListEntriesUnder(dir string) []Entry {
	if dir == "" {
		return idx.ListEntries()
	}
	prefix := strings.TrimSuffix(dir, "/") + "/"
	var out []Entry
	for _, e := range idx.entries {
		if e.Path == strings.TrimSuffix(prefix, "/") || strings.HasPrefix(e.Path, prefix) {
			out = append(out, e)
		}
	}
	return out
}

// HasConflicts reports whether any path in the index currently has a
// non-zero stage entry.
func (idx *Index) HasConflicts() bool {
	for _, e := range idx.entries {
		if e.Stage != StageNormal {
			return true
		}
	}
	return false
}

// GetConflictPaths returns the distinct paths that currently have one or
// more non-zero stage entries, in sorted order.
func (idx *Index) GetConflictPaths() []string {
	var out []string
	for i := 0; i < len(idx.entries); {
		path := idx.entries[i].Path
		conflicted := false
		j := i
		for ; j < len(idx.entries) && idx.entries[j].Path == path; j++ {
			if idx.entries[j].Stage != StageNormal {
				conflicted = true
			}
		}
		if conflicted {
			out = append(out, path)
		}
		i = j
	}
	return out
}

// put inserts or replaces the entry at (e.Path, e.Stage), keeping entries
// sorted.
func (idx *Index) put(e Entry) {
	i, ok := idx.search(e.Path, e.Stage)
	if ok {
		idx.entries[i] = e
		return
	}
	idx.entries = append(idx.entries, Entry{})
	copy(idx.entries[i+1:], idx.entries[i:])
	idx.entries[i] = e
}

// remove deletes the entry at (path, stage), if present.
func (idx *Index) remove(path string, stage Stage) {
	i, ok := idx.search(path, stage)
	if !ok {
		return
	}
	idx.entries = append(idx.entries[:i], idx.entries[i+1:]...)
}

// removeAllStages deletes every entry for path, across all stages.
func (idx *Index) removeAllStages(path string) {
	i, _ := idx.search(path, StageNormal)
	j := i
	for ; j < len(idx.entries) && idx.entries[j].Path == path; j++ {
	}
	idx.entries = append(idx.entries[:i], idx.entries[j:]...)
}

// WriteTree builds a Git tree object (and every intermediate subtree) from
// the index's stage-0 entries and stores them via w, returning the root
// tree's object ID. It fails if the index currently has any conflicts,
// matching Git's refusal to write a tree from an unmerged index.
func (idx *Index) WriteTree(ctx context.Context, w object.ObjectWriter) (githash.SHA1, error) {
	if idx.HasConflicts() {
		return githash.SHA1{}, fmt.Errorf("index: write tree: unresolved conflicts at %v", idx.GetConflictPaths())
	}

	root := newTreeDirNode("")
	for _, e := range idx.entries {
		if e.Stage != StageNormal {
			continue
		}
		root.insert(strings.Split(e.Path, "/"), e)
	}
	id, err := root.write(ctx, w)
	if err != nil {
		return githash.SHA1{}, fmt.Errorf("index: write tree: %w", err)
	}
	return id, nil
}
