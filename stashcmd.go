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
	"errors"
	"fmt"
	"time"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/index"
	"vcskit.dev/pkg/git/object"
	"vcskit.dev/pkg/git/store"
)

// refStash is the ref a stash's most recent entry lives under. Earlier
// entries are recovered from its reflog, one entry per push, exactly like
// the repository layout's reflog files already record every other ref's
// history.
const refStash githash.Ref = "refs/stash"

// StashAction selects what a StashCommand does.
type StashAction int

const (
	StashPush StashAction = iota
	StashList
	StashPop
	StashDrop
)

// StashResult is the outcome of a StashCommand.
type StashResult struct {
	// StashID is the id of the commit a push created, or the commit a pop
	// restored.
	StashID githash.SHA1
	// Entries lists the stash stack, newest first, for StashList.
	Entries []ReflogEntry
}

// StashCommand saves or restores uncommitted changes as ordinary commits
// referenced by refs/stash, per the reflog format every other ref already
// uses to record its history.
type StashCommand struct {
	called
	wc *WorkingCopy

	action  StashAction
	message string
}

// Stash returns a new StashCommand bound to wc, defaulting to a push.
func (wc *WorkingCopy) Stash() *StashCommand {
	return &StashCommand{wc: wc}
}

// SetMessage sets the message a push records.
func (c *StashCommand) SetMessage(message string) *StashCommand {
	if c.check() == nil {
		c.message = message
	}
	return c
}

// SetAction selects push, list, pop, or drop.
func (c *StashCommand) SetAction(action StashAction) *StashCommand {
	if c.check() == nil {
		c.action = action
	}
	return c
}

// Run executes the command.
func (c *StashCommand) Run(ctx context.Context) (StashResult, error) {
	if err := c.check(); err != nil {
		return StashResult{}, err
	}
	c.markDone()

	if err := c.wc.lock(); err != nil {
		return StashResult{}, err
	}
	defer c.wc.unlock()

	switch c.action {
	case StashList:
		entries, err := c.wc.reflog.Read(refStash)
		if err != nil {
			return StashResult{}, fmt.Errorf("stash list: %w", err)
		}
		reversed := make([]ReflogEntry, len(entries))
		for i, e := range entries {
			reversed[len(entries)-1-i] = e
		}
		return StashResult{Entries: reversed}, nil
	case StashPop:
		return c.runPop(ctx, true)
	case StashDrop:
		return c.runPop(ctx, false)
	default:
		return c.runPush(ctx)
	}
}

func (c *StashCommand) runPush(ctx context.Context) (StashResult, error) {
	headID, headCommit, err := c.wc.headCommit(ctx)
	if err != nil {
		return StashResult{}, fmt.Errorf("stash: %w", err)
	}

	entries, err := c.wc.worktree.Walk(ctx, false)
	if err != nil {
		return StashResult{}, fmt.Errorf("stash: %w", err)
	}
	builder := index.NewBuilder("")
	for _, e := range entries {
		content, err := c.wc.worktree.ReadFile(ctx, e.Path)
		if err != nil {
			return StashResult{}, fmt.Errorf("stash: %w", err)
		}
		id, err := object.StoreBlob(ctx, c.wc.objects, bytes.NewReader(content), int64(len(content)))
		if err != nil {
			return StashResult{}, fmt.Errorf("stash: %w", err)
		}
		builder.Add(index.Entry{Path: e.Path, Mode: e.Mode, ObjectID: id})
	}
	snapshot := builder.Finish()
	treeID, err := snapshot.WriteTree(ctx, c.wc.objects)
	if err != nil {
		return StashResult{}, fmt.Errorf("stash: %w", ErrConflict)
	}
	if treeID == headCommit.Tree {
		return StashResult{}, fmt.Errorf("stash: nothing to stash: %w", ErrUncommittedChanges)
	}

	who := object.User(c.wc.config.Value("user.name") + " <" + c.wc.config.Value("user.email") + ">")
	now := time.Now()
	message := c.message
	if message == "" {
		message = "WIP on " + c.wc.currentBranchLabel() + ": " + headID.Short()
	}
	commit := &object.Commit{
		Tree:       treeID,
		Parents:    []githash.SHA1{headID},
		Author:     who,
		AuthorTime: now,
		Committer:  who,
		CommitTime: now,
		Message:    message,
	}
	data, err := commit.MarshalText()
	if err != nil {
		return StashResult{}, fmt.Errorf("stash: %w", err)
	}
	stashID, err := c.wc.objects.WriteObject(ctx, object.TypeCommit, int64(len(data)), bytes.NewReader(data))
	if err != nil {
		return StashResult{}, fmt.Errorf("stash: %w", err)
	}

	oldStash, err := c.wc.refs.Resolve(refStash)
	hadStash := true
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return StashResult{}, fmt.Errorf("stash: %w", err)
		}
		hadStash = false
	}
	if hadStash {
		if err := c.wc.refs.CompareAndSwap(refStash, oldStash, stashID); err != nil {
			return StashResult{}, fmt.Errorf("stash: %w", err)
		}
	} else {
		if err := c.wc.refs.Set(refStash, stashID); err != nil {
			return StashResult{}, fmt.Errorf("stash: %w", err)
		}
	}
	if err := c.wc.reflog.Append(refStash, oldStash, stashID, who, now, message); err != nil {
		return StashResult{}, fmt.Errorf("stash: %w", err)
	}

	if err := (&ResetCommand{wc: c.wc, mode: ResetHard}).resetTo(ctx, headID); err != nil {
		return StashResult{}, fmt.Errorf("stash: %w", err)
	}

	return StashResult{StashID: stashID}, nil
}

func (c *StashCommand) runPop(ctx context.Context, updateStack bool) (StashResult, error) {
	stashID, err := c.wc.refs.Resolve(refStash)
	if err != nil {
		return StashResult{}, fmt.Errorf("stash: %w", ErrRefNotFound)
	}
	entries, err := c.wc.reflog.Read(refStash)
	if err != nil {
		return StashResult{}, fmt.Errorf("stash: %w", err)
	}

	if updateStack {
		commit, err := readCommit(ctx, c.wc.objects, stashID)
		if err != nil {
			return StashResult{}, fmt.Errorf("stash pop: %w", err)
		}
		if err := (&ResetCommand{wc: c.wc, mode: ResetHard}).resetTo(ctx, stashID); err != nil {
			return StashResult{}, fmt.Errorf("stash pop: %w", err)
		}
		_ = commit
	}

	if len(entries) <= 1 {
		if err := c.wc.refs.Delete(refStash); err != nil {
			return StashResult{}, fmt.Errorf("stash: %w", err)
		}
	} else {
		prev := entries[len(entries)-2]
		if err := c.wc.refs.Set(refStash, prev.New); err != nil {
			return StashResult{}, fmt.Errorf("stash: %w", err)
		}
	}
	return StashResult{StashID: stashID}, nil
}

// currentBranchLabel returns the branch name HEAD currently points to, or
// "detached HEAD" if it doesn't point to a branch.
func (wc *WorkingCopy) currentBranchLabel() string {
	_, target, symbolic, err := wc.refs.Target(githash.Head)
	if err != nil || !symbolic || !target.IsBranch() {
		return "detached HEAD"
	}
	return target.Branch()
}
