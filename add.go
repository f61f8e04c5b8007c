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
	"path"
	"sort"

	"vcskit.dev/pkg/git/object"
)

// AddResult is the outcome of an AddCommand.
type AddResult struct {
	Added          []string
	Removed        []string
	Skipped        []string
	TotalProcessed int
}

// AddCommand stages worktree paths matching one or more globs. It is a
// single-shot fluent builder: configure it with AddPath/SetAll/SetUpdate/
// SetForce, then call Run once.
type AddCommand struct {
	called
	wc *WorkingCopy

	globs  []string
	all    bool
	update bool
	force  bool
}

// Add returns a new AddCommand bound to wc.
func (wc *WorkingCopy) Add() *AddCommand {
	return &AddCommand{wc: wc}
}

// AddPath appends a glob (prefix-or-glob semantics, matched against
// slash-separated worktree-relative paths) to the set this command stages.
func (c *AddCommand) AddPath(glob string) *AddCommand {
	if err := c.check(); err != nil {
		return c
	}
	c.globs = append(c.globs, glob)
	return c
}

// SetAll additionally deletes index entries whose paths no longer exist in
// the worktree.
func (c *AddCommand) SetAll(v bool) *AddCommand {
	if err := c.check(); err == nil {
		c.all = v
	}
	return c
}

// SetUpdate restricts staging to paths already present in the index.
func (c *AddCommand) SetUpdate(v bool) *AddCommand {
	if err := c.check(); err == nil {
		c.update = v
	}
	return c
}

// SetForce includes ignored paths in the walk and allows them to be
// staged.
func (c *AddCommand) SetForce(v bool) *AddCommand {
	if err := c.check(); err == nil {
		c.force = v
	}
	return c
}

// Run executes the command.
func (c *AddCommand) Run(ctx context.Context) (AddResult, error) {
	if err := c.check(); err != nil {
		return AddResult{}, err
	}
	c.markDone()

	if err := c.wc.lock(); err != nil {
		return AddResult{}, err
	}
	defer c.wc.unlock()

	if len(c.globs) == 0 {
		return AddResult{}, fmt.Errorf("add: %w", ErrMissingArgument)
	}

	entries, err := c.wc.worktree.Walk(ctx, c.force)
	if err != nil {
		return AddResult{}, fmt.Errorf("add: %w", err)
	}

	var result AddResult
	editor := c.wc.idx.Editor()
	var toDelete []string

	matchedAny := make(map[string]bool)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return AddResult{}, err
		}
		if !matchesAnyGlob(c.globs, e.Path) {
			continue
		}
		matchedAny[e.Path] = true
		result.TotalProcessed++

		_, inIndex := c.wc.idx.GetEntry(e.Path)
		if c.update && !inIndex {
			result.Skipped = append(result.Skipped, e.Path)
			continue
		}
		if e.IsIgnored && !c.force {
			result.Skipped = append(result.Skipped, e.Path)
			continue
		}

		data, err := c.wc.worktree.ReadFile(ctx, e.Path)
		if err != nil {
			editor.Finish()
			return AddResult{}, fmt.Errorf("add %s: %w", e.Path, err)
		}
		id, err := object.StoreBlob(ctx, c.wc.objects, bytes.NewReader(data), int64(len(data)))
		if err != nil {
			editor.Finish()
			return AddResult{}, fmt.Errorf("add %s: %w", e.Path, err)
		}
		editor.Update(e.Path, e.Mode, id, e.Size, e.Mtime)
		result.Added = append(result.Added, e.Path)
	}

	if c.all {
		for _, ie := range c.wc.idx.ListEntries() {
			if matchesAnyGlob(c.globs, ie.Path) && !matchedAny[ie.Path] {
				toDelete = append(toDelete, ie.Path)
			}
		}
	}
	for _, p := range toDelete {
		editor.Delete(p)
		result.Removed = append(result.Removed, p)
	}

	editor.Finish()
	if err := c.wc.idx.Write(); err != nil {
		return AddResult{}, fmt.Errorf("add: write index: %w", err)
	}

	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Strings(result.Skipped)
	return result, nil
}

// matchesAnyGlob reports whether p matches any of globs, using path.Match
// semantics plus a plain prefix match so that e.g. "dir" matches every path
// under "dir/".
func matchesAnyGlob(globs []string, p string) bool {
	for _, g := range globs {
		if g == "." || g == p {
			return true
		}
		if ok, err := path.Match(g, p); err == nil && ok {
			return true
		}
		if len(p) > len(g) && p[:len(g)] == g && p[len(g)] == '/' {
			return true
		}
	}
	return false
}
