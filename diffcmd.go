// Copyright 2018 The gg Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package git

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

// DiffKind classifies one DiffEntry.
type DiffKind int

const (
	DiffAdd DiffKind = iota
	DiffDelete
	DiffModify
	DiffRename
	DiffCopy
)

func (k DiffKind) String() string {
	switch k {
	case DiffAdd:
		return "ADD"
	case DiffDelete:
		return "DELETE"
	case DiffModify:
		return "MODIFY"
	case DiffRename:
		return "RENAME"
	case DiffCopy:
		return "COPY"
	default:
		return "UNKNOWN"
	}
}

// DiffEntry is one path's change between the old and new side of a
// DiffCommand. OldPath is set only for RENAME and COPY entries.
type DiffEntry struct {
	Kind             DiffKind
	Path             string
	OldPath          string
	OldID, NewID     githash.SHA1
	OldMode, NewMode object.Mode
}

// DiffCommand compares two trees (or a tree against the index or the
// worktree), flattening both sides to path -> (id, mode) and walking their
// union.
type DiffCommand struct {
	called
	wc *WorkingCopy

	oldTree    string
	newTree    string
	newTreeSet bool
	cached     bool
	pathFilter string
}

// Diff returns a new DiffCommand bound to wc, comparing against HEAD by
// default.
func (wc *WorkingCopy) Diff() *DiffCommand {
	return &DiffCommand{wc: wc}
}

// SetOldTree selects the old side's commit-ish. The default is HEAD.
func (c *DiffCommand) SetOldTree(refOrID string) *DiffCommand {
	if c.check() == nil {
		c.oldTree = refOrID
	}
	return c
}

// SetNewTree selects the new side's commit-ish. If never called, the new
// side is the index (if SetCached) or the worktree (otherwise).
func (c *DiffCommand) SetNewTree(refOrID string) *DiffCommand {
	if c.check() == nil {
		c.newTree = refOrID
		c.newTreeSet = true
	}
	return c
}

// SetCached makes an unset new side compare against the index instead of
// the worktree.
func (c *DiffCommand) SetCached(v bool) *DiffCommand {
	if c.check() == nil {
		c.cached = v
	}
	return c
}

// SetPathFilter restricts the diff to paths under prefix.
func (c *DiffCommand) SetPathFilter(prefix string) *DiffCommand {
	if c.check() == nil {
		c.pathFilter = prefix
	}
	return c
}

// Run executes the command.
func (c *DiffCommand) Run(ctx context.Context) ([]DiffEntry, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	c.markDone()

	if err := c.wc.lock(); err != nil {
		return nil, err
	}
	defer c.wc.unlock()

	oldMap, err := c.resolveSide(ctx, c.oldTree)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}

	var newMap map[string]treeLeaf
	if c.newTreeSet {
		newMap, err = c.resolveSide(ctx, c.newTree)
		if err != nil {
			return nil, fmt.Errorf("diff: %w", err)
		}
	} else if c.cached {
		newMap = map[string]treeLeaf{}
		for _, e := range c.wc.idx.ListEntries() {
			newMap[e.Path] = treeLeaf{ID: e.ObjectID, Mode: e.Mode}
		}
	} else {
		newMap, err = c.worktreeSide(ctx)
		if err != nil {
			return nil, fmt.Errorf("diff: %w", err)
		}
	}

	return diffTreeMaps(oldMap, newMap, c.pathFilter), nil
}

func (c *DiffCommand) resolveSide(ctx context.Context, name string) (map[string]treeLeaf, error) {
	var id githash.SHA1
	if name == "" {
		var err error
		id, err = c.wc.refs.Resolve(githash.Head)
		if err != nil {
			return map[string]treeLeaf{}, nil
		}
	} else {
		var err error
		id, _, _, err = c.wc.resolveCommittish(name)
		if err != nil {
			return nil, err
		}
	}
	commit, err := readCommit(ctx, c.wc.objects, id)
	if err != nil {
		return nil, err
	}
	return flattenTree(ctx, c.wc.objects, commit.Tree)
}

func (c *DiffCommand) worktreeSide(ctx context.Context) (map[string]treeLeaf, error) {
	entries, err := c.wc.worktree.Walk(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string]treeLeaf, len(entries))
	for _, e := range entries {
		content, err := c.wc.worktree.ReadFile(ctx, e.Path)
		if err != nil {
			return nil, err
		}
		id, err := object.BlobSum(bytes.NewReader(content), int64(len(content)))
		if err != nil {
			return nil, err
		}
		out[e.Path] = treeLeaf{ID: id, Mode: e.Mode}
	}
	return out, nil
}

// diffTreeMaps walks the union of old and new, classifying each path, then
// pairs up unmatched deletes and adds with identical blob ids into RENAME
// (and, when the original path also survives, COPY) entries. This is an
// exact-content-match heuristic, not Git's similarity-scored rename
// detection.
func diffTreeMaps(oldMap, newMap map[string]treeLeaf, pathFilter string) []DiffEntry {
	paths := make(map[string]bool, len(oldMap)+len(newMap))
	for p := range oldMap {
		paths[p] = true
	}
	for p := range newMap {
		paths[p] = true
	}

	var deletedPaths, addedPaths []string
	entries := make(map[string]DiffEntry)
	for p := range paths {
		if pathFilter != "" && !strings.HasPrefix(p, pathFilter) {
			continue
		}
		o, hasOld := oldMap[p]
		n, hasNew := newMap[p]
		switch {
		case hasOld && !hasNew:
			entries[p] = DiffEntry{Kind: DiffDelete, Path: p, OldID: o.ID, OldMode: o.Mode}
			deletedPaths = append(deletedPaths, p)
		case !hasOld && hasNew:
			entries[p] = DiffEntry{Kind: DiffAdd, Path: p, NewID: n.ID, NewMode: n.Mode}
			addedPaths = append(addedPaths, p)
		case o.ID != n.ID || o.Mode != n.Mode:
			entries[p] = DiffEntry{Kind: DiffModify, Path: p, OldID: o.ID, OldMode: o.Mode, NewID: n.ID, NewMode: n.Mode}
		}
	}

	sort.Strings(deletedPaths)
	sort.Strings(addedPaths)
	// Deleted paths are tried first as sources (renames); paths present on
	// both sides follow them (copies).
	sources := append([]string(nil), deletedPaths...)
	for p := range oldMap {
		if _, ok := newMap[p]; ok {
			sources = append(sources, p)
		}
	}
	sort.Strings(sources[len(deletedPaths):])
	usedAdds := make(map[string]bool)
	for _, dp := range sources {
		del := DiffEntry{OldID: oldMap[dp].ID, OldMode: oldMap[dp].Mode}
		for _, ap := range addedPaths {
			if usedAdds[ap] {
				continue
			}
			add := entries[ap]
			if add.NewID != del.OldID || add.NewMode != del.OldMode {
				continue
			}
			kind := DiffRename
			if _, stillPresent := newMap[dp]; stillPresent {
				kind = DiffCopy
			}
			entries[ap] = DiffEntry{
				Kind:    kind,
				Path:    ap,
				OldPath: dp,
				OldID:   del.OldID,
				OldMode: del.OldMode,
				NewID:   add.NewID,
				NewMode: add.NewMode,
			}
			usedAdds[ap] = true
			if kind == DiffRename {
				delete(entries, dp)
			}
			break
		}
	}

	result := make([]DiffEntry, 0, len(entries))
	for _, e := range entries {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result
}
