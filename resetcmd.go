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
	"sort"
	"time"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/index"
	"vcskit.dev/pkg/git/object"
	"vcskit.dev/pkg/git/store"
)

// ResetMode selects how far a ResetCommand reaches: just the ref (Soft),
// the ref and the index (Mixed, the default), or the ref, index, and
// worktree (Hard).
type ResetMode int

const (
	ResetSoft ResetMode = iota
	ResetMixed
	ResetHard
)

// ResetResult is the outcome of a ResetCommand.
type ResetResult struct {
	PreviousHead githash.SHA1
	NewHead      githash.SHA1
	Updated      []string
}

// ResetCommand moves HEAD's branch to a target commit, per mode also
// resetting the index and worktree to match it.
type ResetCommand struct {
	called
	wc *WorkingCopy

	target string
	mode   ResetMode
}

// Reset returns a new ResetCommand bound to wc, targeting HEAD by default.
func (wc *WorkingCopy) Reset() *ResetCommand {
	return &ResetCommand{wc: wc, mode: ResetMixed}
}

// SetTarget names the commit-ish to reset to. The default is HEAD (useful
// for ResetMixed/ResetHard to discard index/worktree changes without
// moving the branch).
func (c *ResetCommand) SetTarget(name string) *ResetCommand {
	if c.check() == nil {
		c.target = name
	}
	return c
}

// SetMode selects Soft, Mixed, or Hard reset.
func (c *ResetCommand) SetMode(mode ResetMode) *ResetCommand {
	if c.check() == nil {
		c.mode = mode
	}
	return c
}

// Run executes the command.
func (c *ResetCommand) Run(ctx context.Context) (ResetResult, error) {
	if err := c.check(); err != nil {
		return ResetResult{}, err
	}
	c.markDone()

	if err := c.wc.lock(); err != nil {
		return ResetResult{}, err
	}
	defer c.wc.unlock()

	var targetID githash.SHA1
	var err error
	if c.target == "" {
		targetID, err = c.wc.refs.Resolve(githash.Head)
	} else {
		targetID, _, _, err = c.wc.resolveCommittish(c.target)
	}
	if err != nil {
		return ResetResult{}, fmt.Errorf("reset: %w", err)
	}

	_, headTarget, symbolic, err := c.wc.refs.Target(githash.Head)
	if err != nil {
		return ResetResult{}, fmt.Errorf("reset: %w", err)
	}
	updateRef := githash.Head
	if symbolic {
		updateRef = headTarget
	}

	oldID, err := c.wc.refs.Resolve(updateRef)
	hadOld := true
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return ResetResult{}, fmt.Errorf("reset: %w", err)
		}
		hadOld = false
	}

	if hadOld {
		if err := c.wc.refs.CompareAndSwap(updateRef, oldID, targetID); err != nil {
			return ResetResult{}, fmt.Errorf("reset: %w", err)
		}
	} else {
		if err := c.wc.refs.Set(updateRef, targetID); err != nil {
			return ResetResult{}, fmt.Errorf("reset: %w", err)
		}
	}
	who := object.User(c.wc.config.Value("user.name") + " <" + c.wc.config.Value("user.email") + ">")
	now := time.Now()
	_ = c.wc.reflog.Append(githash.Head, oldID, targetID, who, now, "reset: moving to "+c.target)
	if updateRef != githash.Head {
		_ = c.wc.reflog.Append(updateRef, oldID, targetID, who, now, "reset: moving to "+c.target)
	}

	result := ResetResult{PreviousHead: oldID, NewHead: targetID}
	if c.mode == ResetSoft {
		return result, nil
	}

	updated, err := c.resetIndexAndWorktree(ctx, targetID)
	if err != nil {
		return ResetResult{}, err
	}
	result.Updated = updated
	return result, nil
}

// resetIndexAndWorktree makes the index (Mixed) or the index and worktree
// (Hard) match targetID's tree, without touching any ref. It reports the
// paths it wrote into the worktree, or nil under ResetMixed.
func (c *ResetCommand) resetIndexAndWorktree(ctx context.Context, targetID githash.SHA1) ([]string, error) {
	commit, err := readCommit(ctx, c.wc.objects, targetID)
	if err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	targetMap, err := flattenTree(ctx, c.wc.objects, commit.Tree)
	if err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}

	editor := c.wc.idx.Editor()
	for _, e := range c.wc.idx.ListEntries() {
		if _, ok := targetMap[e.Path]; !ok {
			editor.Delete(e.Path)
		}
	}
	editor.Finish()
	if err := index.ReadTree(ctx, c.wc.idx, c.wc.objects, commit.Tree); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	if err := c.wc.idx.Write(); err != nil {
		return nil, fmt.Errorf("reset: write index: %w", err)
	}

	if c.mode != ResetHard {
		return nil, nil
	}

	var updated []string
	prevWorktree, err := c.wc.worktree.Walk(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	for _, e := range prevWorktree {
		if _, ok := targetMap[e.Path]; !ok {
			if err := c.wc.worktree.Remove(ctx, e.Path); err != nil {
				return nil, fmt.Errorf("reset: %w", err)
			}
		}
	}
	for path, leaf := range targetMap {
		content, err := readBlob(ctx, c.wc.objects, leaf.ID)
		if err != nil {
			return nil, fmt.Errorf("reset: %w", err)
		}
		if err := c.wc.worktree.WriteFile(ctx, path, leaf.Mode, content); err != nil {
			return nil, fmt.Errorf("reset: %w", err)
		}
		updated = append(updated, path)
	}
	sort.Strings(updated)
	return updated, nil
}

// resetTo is resetIndexAndWorktree without requiring a fully populated
// ResetCommand; StashCommand uses it to restore a clean working copy
// after snapshotting it, reusing the same reset logic Run applies.
func (c *ResetCommand) resetTo(ctx context.Context, targetID githash.SHA1) error {
	_, err := c.resetIndexAndWorktree(ctx, targetID)
	return err
}
