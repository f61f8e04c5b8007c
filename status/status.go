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

// Package status computes working-copy status by comparing HEAD's tree,
// the staging index, and the worktree.
package status

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/index"
	"vcskit.dev/pkg/git/object"
	"vcskit.dev/pkg/git/store"
)

// racyWindow is how close a worktree entry's mtime must be to the index's
// update time before it is no longer trusted as clean (the "racily clean"
// rule): a worktree write that lands within this window of the index write
// could be indistinguishable from one that happened before it, at the
// timestamp resolution some filesystems offer.
const racyWindow = 3 * time.Second

// IndexStatus classifies how a path's staged state compares to HEAD.
type IndexStatus int

const (
	IndexUnmodified IndexStatus = iota
	IndexAdded
	IndexDeleted
	IndexModified
	IndexConflicted
)

func (s IndexStatus) String() string {
	switch s {
	case IndexUnmodified:
		return "unmodified"
	case IndexAdded:
		return "added"
	case IndexDeleted:
		return "deleted"
	case IndexModified:
		return "modified"
	case IndexConflicted:
		return "conflicted"
	default:
		return "unknown"
	}
}

// WorkTreeStatus classifies how a path's on-disk state compares to the
// index.
type WorkTreeStatus int

const (
	WorkTreeUnmodified WorkTreeStatus = iota
	WorkTreeModified
	WorkTreeDeleted
	WorkTreeUntracked
	WorkTreeIgnored
)

func (s WorkTreeStatus) String() string {
	switch s {
	case WorkTreeUnmodified:
		return "unmodified"
	case WorkTreeModified:
		return "modified"
	case WorkTreeDeleted:
		return "deleted"
	case WorkTreeUntracked:
		return "untracked"
	case WorkTreeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Entry is one path's combined status.
type Entry struct {
	Path           string
	IndexStatus    IndexStatus
	WorkTreeStatus WorkTreeStatus
}

// Options filters and tunes a status calculation.
type Options struct {
	// PathPrefix, if non-empty, restricts results to paths under it.
	PathPrefix string
	// SuppressUntracked omits WorkTreeUntracked entries from the result.
	SuppressUntracked bool
	// SuppressIgnored omits WorkTreeIgnored entries from the result.
	SuppressIgnored bool
}

// Summary is the result of a status calculation.
type Summary struct {
	Entries []Entry

	IsClean      bool
	HasStaged    bool
	HasUnstaged  bool
	HasUntracked bool
	HasConflicts bool

	// Branch is HEAD's symbolic target stripped of "refs/heads/", or empty
	// if HEAD is detached.
	Branch string
	// Head is HEAD's resolved commit id.
	Head githash.SHA1
}

// treeEntry is what flattenTree records per path from HEAD's tree.
type treeEntry struct {
	id   githash.SHA1
	mode object.Mode
}

// RefReader is the narrow capability Calculate needs from the ref store:
// resolving HEAD to a commit id, and inspecting its raw (possibly symbolic)
// target to derive the current branch name.
type RefReader interface {
	Resolve(ref githash.Ref) (githash.SHA1, error)
	Target(ref githash.Ref) (id githash.SHA1, target githash.Ref, symbolic bool, err error)
}

// WorktreeEntry is one path's on-disk state, as reported by a
// WorktreeLister.
type WorktreeEntry struct {
	Path      string
	Size      int64
	Mtime     time.Time
	Mode      object.Mode
	IsIgnored bool
}

// WorktreeLister lists the current state of the worktree. Implementations
// walk the filesystem and apply ignore-pattern matching; status treats
// every reported entry as tracked-or-untracked-or-ignored input and does
// not itself touch the filesystem.
type WorktreeLister interface {
	ListWorktree(ctx context.Context) ([]WorktreeEntry, error)
}

// Engine bundles the dependencies Calculate needs: object storage
// (to walk HEAD's tree), ref resolution (to find HEAD and the branch
// name), the staging index, and a worktree lister.
type Engine struct {
	Objects  object.ObjectReader
	Refs     RefReader
	Index    *index.Index
	Worktree WorktreeLister
}

// Calculate computes the working-copy status per opts.
func (e *Engine) Calculate(ctx context.Context, opts Options) (Summary, error) {
	headID, err := e.Refs.Resolve(githash.Head)
	var headTree map[string]treeEntry
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return Summary{}, fmt.Errorf("calculate status: resolve HEAD: %w", err)
		}
		// Unborn HEAD (a freshly initialized repository before the first
		// commit): there is no tree to compare against yet.
		headTree = map[string]treeEntry{}
	} else {
		headTree, err = flattenHeadTree(ctx, e.Objects, headID)
		if err != nil {
			return Summary{}, fmt.Errorf("calculate status: %w", err)
		}
	}

	indexMap := flattenIndex(e.Index)

	var worktreeEntries []WorktreeEntry
	if e.Worktree != nil {
		worktreeEntries, err = e.Worktree.ListWorktree(ctx)
		if err != nil {
			return Summary{}, fmt.Errorf("calculate status: list worktree: %w", err)
		}
	}
	worktreeMap := make(map[string]WorktreeEntry, len(worktreeEntries))
	for _, w := range worktreeEntries {
		worktreeMap[w.Path] = w
	}

	conflicted := make(map[string]bool)
	for _, p := range e.Index.GetConflictPaths() {
		conflicted[p] = true
	}

	paths := make(map[string]bool)
	for p := range headTree {
		paths[p] = true
	}
	for p := range indexMap {
		paths[p] = true
	}
	for p := range worktreeMap {
		paths[p] = true
	}

	updateTime := e.Index.GetUpdateTime()

	summary := Summary{Head: headID, Branch: branchName(e.Refs)}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		if opts.PathPrefix != "" && !strings.HasPrefix(p, opts.PathPrefix) {
			continue
		}
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	for _, p := range sorted {
		h, hasHead := headTree[p]
		idxE, hasIndex := indexMap[p]
		wt, hasWorktree := worktreeMap[p]

		var ent Entry
		ent.Path = p

		switch {
		case !hasHead && hasIndex:
			ent.IndexStatus = IndexAdded
		case hasHead && !hasIndex:
			ent.IndexStatus = IndexDeleted
		case hasHead && hasIndex && (h.id != idxE.id || h.mode != idxE.mode):
			ent.IndexStatus = IndexModified
		default:
			ent.IndexStatus = IndexUnmodified
		}

		switch {
		case hasIndex && !hasWorktree:
			ent.WorkTreeStatus = WorkTreeDeleted
		case hasIndex && hasWorktree:
			if worktreeDiffers(idxE, wt, updateTime) {
				ent.WorkTreeStatus = WorkTreeModified
			} else {
				ent.WorkTreeStatus = WorkTreeUnmodified
			}
		case !hasIndex && hasWorktree:
			if wt.IsIgnored {
				ent.WorkTreeStatus = WorkTreeIgnored
			} else {
				ent.WorkTreeStatus = WorkTreeUntracked
			}
		default:
			ent.WorkTreeStatus = WorkTreeUnmodified
		}

		if conflicted[p] {
			ent.IndexStatus = IndexConflicted
		}

		if ent.WorkTreeStatus == WorkTreeUntracked && opts.SuppressUntracked {
			continue
		}
		if ent.WorkTreeStatus == WorkTreeIgnored && opts.SuppressIgnored {
			continue
		}
		if ent.IndexStatus == IndexUnmodified && ent.WorkTreeStatus == WorkTreeUnmodified {
			continue
		}

		summary.Entries = append(summary.Entries, ent)

		switch ent.IndexStatus {
		case IndexAdded, IndexDeleted, IndexModified:
			summary.HasStaged = true
		case IndexConflicted:
			summary.HasConflicts = true
		}
		switch ent.WorkTreeStatus {
		case WorkTreeModified, WorkTreeDeleted:
			summary.HasUnstaged = true
		case WorkTreeUntracked:
			summary.HasUntracked = true
		}
	}

	summary.IsClean = !summary.HasStaged && !summary.HasUnstaged && !summary.HasUntracked && !summary.HasConflicts
	return summary, nil
}

// worktreeDiffers implements the "diff in worktree" rule from the
// classification table: a size or executable-bit mismatch is always a
// modification; otherwise, if the worktree entry is old enough relative to
// the index's update time, it is trusted clean, and if not (the racily
// clean case) it is conservatively reported modified.
func worktreeDiffers(idxE index.Entry, wt WorktreeEntry, indexUpdateTime time.Time) bool {
	if idxE.Size != wt.Size {
		return true
	}
	if idxE.Mode.IsRegular() != wt.Mode.IsRegular() {
		return true
	}
	if (idxE.Mode == object.ModeExecutable) != (wt.Mode == object.ModeExecutable) {
		return true
	}
	if indexUpdateTime.IsZero() {
		return false
	}
	if wt.Mtime.Before(indexUpdateTime.Add(-racyWindow)) {
		return false
	}
	return true
}

func flattenIndex(idx *index.Index) map[string]index.Entry {
	m := make(map[string]index.Entry)
	for _, e := range idx.ListEntries() {
		if e.Stage != index.StageNormal {
			continue
		}
		m[e.Path] = e
	}
	return m
}

func branchName(refs RefReader) string {
	_, target, symbolic, err := refs.Target(githash.Head)
	if err != nil || !symbolic {
		return ""
	}
	const prefix = "refs/heads/"
	if s := target.String(); strings.HasPrefix(s, prefix) {
		return strings.TrimPrefix(s, prefix)
	}
	return ""
}

