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
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/index"
	"vcskit.dev/pkg/git/object"
)

// CheckoutStatus is the outcome of a CheckoutCommand.
type CheckoutStatus int

const (
	CheckoutOK CheckoutStatus = iota
	CheckoutConflicts
	CheckoutNondeleted
	CheckoutNotTried
	CheckoutError
)

func (s CheckoutStatus) String() string {
	switch s {
	case CheckoutOK:
		return "OK"
	case CheckoutConflicts:
		return "CONFLICTS"
	case CheckoutNondeleted:
		return "NONDELETED"
	case CheckoutNotTried:
		return "NOT_TRIED"
	case CheckoutError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// CheckoutResult is the outcome of a CheckoutCommand.
type CheckoutResult struct {
	Status    CheckoutStatus
	Updated   []string
	Removed   []string
	Conflicts []string
	// Ref is set to the branch ref HEAD now points to symbolically, for a
	// branch-mode checkout that lands on a local branch. It is empty for a
	// detached checkout or a paths-mode checkout.
	Ref githash.Ref
}

// CheckoutCommand switches the working copy to a branch or commit, or
// restores specific paths from a tree or the index. It is a single-shot
// fluent builder: configure it with exactly one of SetBranch or AddPath,
// then call Run once.
type CheckoutCommand struct {
	called
	wc *WorkingCopy

	branch     string
	paths      []string
	startPoint string
	force      bool
}

// Checkout returns a new CheckoutCommand bound to wc.
func (wc *WorkingCopy) Checkout() *CheckoutCommand {
	return &CheckoutCommand{wc: wc}
}

// SetBranch selects branch mode: switch HEAD and the whole working copy to
// name, which may be a local branch, a tag, or a raw object id.
func (c *CheckoutCommand) SetBranch(name string) *CheckoutCommand {
	if c.check() == nil {
		c.branch = name
	}
	return c
}

// AddPath selects paths mode: restore path from SetStartPoint's tree (if
// set) or from the current index.
func (c *CheckoutCommand) AddPath(path string) *CheckoutCommand {
	if c.check() == nil {
		c.paths = append(c.paths, path)
	}
	return c
}

// SetStartPoint names the tree paths-mode restores from. If unset, paths
// are restored from the current index into the worktree instead.
func (c *CheckoutCommand) SetStartPoint(name string) *CheckoutCommand {
	if c.check() == nil {
		c.startPoint = name
	}
	return c
}

// SetForce allows a branch-mode checkout to discard staged changes that
// would otherwise be reported as conflicts.
func (c *CheckoutCommand) SetForce(v bool) *CheckoutCommand {
	if c.check() == nil {
		c.force = v
	}
	return c
}

// Run executes the command.
func (c *CheckoutCommand) Run(ctx context.Context) (CheckoutResult, error) {
	if err := c.check(); err != nil {
		return CheckoutResult{Status: CheckoutNotTried}, err
	}
	c.markDone()

	if err := c.wc.lock(); err != nil {
		return CheckoutResult{Status: CheckoutNotTried}, err
	}
	defer c.wc.unlock()

	if c.branch != "" {
		return c.runBranch(ctx)
	}
	if len(c.paths) > 0 {
		return c.runPaths(ctx)
	}
	return CheckoutResult{Status: CheckoutNotTried}, fmt.Errorf("checkout: %w", ErrMissingArgument)
}

func (c *CheckoutCommand) runBranch(ctx context.Context) (CheckoutResult, error) {
	id, ref, isBranch, err := c.wc.resolveCommittish(c.branch)
	if err != nil {
		return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout %s: %w", c.branch, err)
	}
	commit, err := readCommit(ctx, c.wc.objects, id)
	if err != nil {
		return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout %s: %w", c.branch, err)
	}
	targetMap, err := flattenTree(ctx, c.wc.objects, commit.Tree)
	if err != nil {
		return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout %s: %w", c.branch, err)
	}

	headMap := map[string]treeLeaf{}
	if _, headCommit, err := c.wc.headCommit(ctx); err == nil {
		headMap, err = flattenTree(ctx, c.wc.objects, headCommit.Tree)
		if err != nil {
			return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout %s: %w", c.branch, err)
		}
	} else if !errors.Is(err, ErrRefNotFound) {
		return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout %s: %w", c.branch, err)
	}

	var conflicts []string
	for _, e := range c.wc.idx.ListEntries() {
		headLeaf, inHead := headMap[e.Path]
		stagedDiffers := !inHead || headLeaf.ID != e.ObjectID || headLeaf.Mode != e.Mode
		if !stagedDiffers {
			continue
		}
		targetLeaf, inTarget := targetMap[e.Path]
		wouldOverwrite := !inTarget || targetLeaf.ID != e.ObjectID || targetLeaf.Mode != e.Mode
		if wouldOverwrite {
			conflicts = append(conflicts, e.Path)
		}
	}
	if len(conflicts) > 0 && !c.force {
		sort.Strings(conflicts)
		return CheckoutResult{Status: CheckoutConflicts, Conflicts: conflicts}, nil
	}

	// Under force, conflicting paths are rewritten even where HEAD and the
	// target agree, so the discarded staged change leaves the worktree too.
	forced := make(map[string]bool, len(conflicts))
	for _, p := range conflicts {
		forced[p] = true
	}

	var updated, removed []string
	editor := c.wc.idx.Editor()
	for _, e := range c.wc.idx.ListEntries() {
		if _, ok := targetMap[e.Path]; !ok {
			editor.Delete(e.Path)
			removed = append(removed, e.Path)
		}
	}
	editor.Finish()
	if err := index.ReadTree(ctx, c.wc.idx, c.wc.objects, commit.Tree); err != nil {
		return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout %s: %w", c.branch, err)
	}
	if err := c.wc.idx.Write(); err != nil {
		return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout %s: write index: %w", c.branch, err)
	}

	for path, leaf := range targetMap {
		if err := ctx.Err(); err != nil {
			return CheckoutResult{Status: CheckoutError}, err
		}
		old, hadOld := headMap[path]
		if hadOld && old.ID == leaf.ID && old.Mode == leaf.Mode && !forced[path] {
			continue
		}
		content, err := readBlob(ctx, c.wc.objects, leaf.ID)
		if err != nil {
			return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout %s: %w", c.branch, err)
		}
		if err := c.wc.worktree.WriteFile(ctx, path, leaf.Mode, content); err != nil {
			return CheckoutResult{Status: CheckoutNondeleted}, fmt.Errorf("checkout %s: %w", c.branch, err)
		}
		updated = append(updated, path)
	}
	var nondeleted []string
	for path := range headMap {
		if _, ok := targetMap[path]; ok {
			continue
		}
		if err := c.wc.worktree.Remove(ctx, path); err != nil {
			nondeleted = append(nondeleted, path)
			continue
		}
	}

	var resultRef githash.Ref
	if isBranch {
		if err := c.wc.refs.SetSymbolic(githash.Head, ref); err != nil {
			return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout %s: %w", c.branch, err)
		}
		resultRef = ref
	} else {
		if err := c.wc.refs.Set(githash.Head, id); err != nil {
			return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout %s: %w", c.branch, err)
		}
	}

	sort.Strings(updated)
	sort.Strings(removed)
	if len(nondeleted) > 0 {
		sort.Strings(nondeleted)
		return CheckoutResult{Status: CheckoutNondeleted, Updated: updated, Removed: nondeleted, Ref: resultRef}, nil
	}
	return CheckoutResult{Status: CheckoutOK, Updated: updated, Removed: removed, Ref: resultRef}, nil
}

func (c *CheckoutCommand) runPaths(ctx context.Context) (CheckoutResult, error) {
	var targetMap map[string]treeLeaf
	if c.startPoint != "" {
		id, _, _, err := c.wc.resolveCommittish(c.startPoint)
		if err != nil {
			return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout: %w", err)
		}
		commit, err := readCommit(ctx, c.wc.objects, id)
		if err != nil {
			return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout: %w", err)
		}
		targetMap, err = flattenTree(ctx, c.wc.objects, commit.Tree)
		if err != nil {
			return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout: %w", err)
		}
	}

	var updated []string
	editor := c.wc.idx.Editor()
	for _, p := range c.paths {
		if err := ctx.Err(); err != nil {
			editor.Finish()
			return CheckoutResult{Status: CheckoutError}, err
		}
		var mode object.Mode
		var id githash.SHA1
		if c.startPoint != "" {
			leaf, ok := targetMap[p]
			if !ok {
				editor.Finish()
				return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout %s: %w", p, ErrPathNotFoundInTree)
			}
			mode, id = leaf.Mode, leaf.ID
		} else {
			entry, ok := c.wc.idx.GetEntry(p)
			if !ok {
				editor.Finish()
				return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout %s: %w", p, ErrPathNotInIndex)
			}
			mode, id = entry.Mode, entry.ObjectID
		}
		content, err := readBlob(ctx, c.wc.objects, id)
		if err != nil {
			editor.Finish()
			return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout %s: %w", p, err)
		}
		if err := c.wc.worktree.WriteFile(ctx, p, mode, content); err != nil {
			editor.Finish()
			return CheckoutResult{Status: CheckoutNondeleted}, fmt.Errorf("checkout %s: %w", p, err)
		}
		if c.startPoint != "" {
			editor.Update(p, mode, id, int64(len(content)), time.Now())
		}
		updated = append(updated, p)
	}
	editor.Finish()
	if c.startPoint != "" {
		if err := c.wc.idx.Write(); err != nil {
			return CheckoutResult{Status: CheckoutError}, fmt.Errorf("checkout: write index: %w", err)
		}
	}

	sort.Strings(updated)
	return CheckoutResult{Status: CheckoutOK, Updated: updated}, nil
}

// resolveCommittish resolves name to a commit id, trying a local branch,
// then a tag, then a raw object id, then a literal ref path. It reports
// whether the result names a local branch and, if so, the branch ref
// itself, for callers that need to leave HEAD pointing at it symbolically.
func (wc *WorkingCopy) resolveCommittish(name string) (id githash.SHA1, ref githash.Ref, isBranch bool, err error) {
	if branchRef := githash.BranchRef(name); wc.refs.Has(branchRef) {
		id, err := wc.refs.Resolve(branchRef)
		return id, branchRef, true, err
	}
	if tagRef := githash.TagRef(name); wc.refs.Has(tagRef) {
		id, err := wc.refs.Resolve(tagRef)
		return id, tagRef, false, err
	}
	if parsed, err := githash.ParseSHA1(name); err == nil {
		return parsed, "", false, nil
	}
	if ref := githash.Ref(name); ref.IsValid() && wc.refs.Has(ref) {
		id, err := wc.refs.Resolve(ref)
		return id, ref, false, err
	}
	return githash.SHA1{}, "", false, fmt.Errorf("%s: %w", name, ErrRefNotFound)
}

// readCommit opens and parses the commit named by id.
func readCommit(ctx context.Context, r object.ObjectReader, id githash.SHA1) (*object.Commit, error) {
	_, rc, err := r.OpenObject(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return object.ParseCommit(data)
}

// readBlob reads the full contents of the blob named by id.
func readBlob(ctx context.Context, r object.ObjectReader, id githash.SHA1) ([]byte, error) {
	rc, err := object.OpenBlob(ctx, r, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
