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
	"time"

	"vcskit.dev/pkg/git/diff"
	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/index"
	"vcskit.dev/pkg/git/object"
)

// MergeStatus is the outcome of a MergeCommand.
type MergeStatus int

const (
	MergeUpToDate MergeStatus = iota
	MergeFastForward
	MergeOK
	MergeConflicts
)

func (s MergeStatus) String() string {
	switch s {
	case MergeUpToDate:
		return "UP_TO_DATE"
	case MergeFastForward:
		return "FAST_FORWARD"
	case MergeOK:
		return "OK"
	case MergeConflicts:
		return "CONFLICTS"
	default:
		return "UNKNOWN"
	}
}

// MergeResult is the outcome of a MergeCommand.
type MergeResult struct {
	Status    MergeStatus
	Updated   []string
	Conflicts []string
	// CommitID is the new HEAD commit for MergeFastForward and MergeOK, the
	// unchanged HEAD commit for MergeUpToDate, and the zero value for
	// MergeConflicts.
	CommitID githash.SHA1
}

// MergeCommand merges another commit-ish into HEAD via a three-way content
// merge, fast-forwarding when possible.
type MergeCommand struct {
	called
	wc *WorkingCopy

	theirs  string
	message string
}

// Merge returns a new MergeCommand bound to wc.
func (wc *WorkingCopy) Merge() *MergeCommand {
	return &MergeCommand{wc: wc}
}

// SetTheirs names the commit-ish to merge into HEAD.
func (c *MergeCommand) SetTheirs(name string) *MergeCommand {
	if c.check() == nil {
		c.theirs = name
	}
	return c
}

// SetMessage overrides the merge commit's message.
func (c *MergeCommand) SetMessage(message string) *MergeCommand {
	if c.check() == nil {
		c.message = message
	}
	return c
}

// Run executes the command.
func (c *MergeCommand) Run(ctx context.Context) (MergeResult, error) {
	if err := c.check(); err != nil {
		return MergeResult{}, err
	}
	c.markDone()

	if err := c.wc.lock(); err != nil {
		return MergeResult{}, err
	}
	defer c.wc.unlock()

	if c.theirs == "" {
		return MergeResult{}, fmt.Errorf("merge: %w", ErrMissingArgument)
	}

	oursID, oursCommit, err := c.wc.headCommit(ctx)
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}

	theirsID, _, _, err := c.wc.resolveCommittish(c.theirs)
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}
	theirsCommit, err := readCommit(ctx, c.wc.objects, theirsID)
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}

	if theirsID == oursID {
		return MergeResult{Status: MergeUpToDate, CommitID: oursID}, nil
	}

	base, err := c.wc.mergeBase(ctx, oursID, theirsID)
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}
	if base == theirsID {
		return MergeResult{Status: MergeUpToDate, CommitID: oursID}, nil
	}
	if base == oursID {
		return c.fastForward(ctx, theirsID, theirsCommit)
	}

	return c.threeWay(ctx, oursID, oursCommit, theirsID, theirsCommit, base)
}

func (c *MergeCommand) fastForward(ctx context.Context, theirsID githash.SHA1, theirsCommit *object.Commit) (MergeResult, error) {
	if err := index.ReadTree(ctx, c.wc.idx, c.wc.objects, theirsCommit.Tree); err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}
	if err := c.wc.idx.Write(); err != nil {
		return MergeResult{}, fmt.Errorf("merge: write index: %w", err)
	}
	targetMap, err := flattenTree(ctx, c.wc.objects, theirsCommit.Tree)
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}
	var updated []string
	for path, leaf := range targetMap {
		content, err := readBlob(ctx, c.wc.objects, leaf.ID)
		if err != nil {
			return MergeResult{}, fmt.Errorf("merge: %w", err)
		}
		if err := c.wc.worktree.WriteFile(ctx, path, leaf.Mode, content); err != nil {
			return MergeResult{}, fmt.Errorf("merge: %w", err)
		}
		updated = append(updated, path)
	}

	_, target, symbolic, err := c.wc.refs.Target(githash.Head)
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}
	updateRef := githash.Head
	if symbolic {
		updateRef = target
	}
	oldID, _ := c.wc.refs.Resolve(updateRef)
	if err := c.wc.refs.CompareAndSwap(updateRef, oldID, theirsID); err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}
	who := object.User(c.wc.config.Value("user.name") + " <" + c.wc.config.Value("user.email") + ">")
	_ = c.wc.reflog.Append(githash.Head, oldID, theirsID, who, time.Now(), "merge "+c.theirs+": Fast-forward")
	if updateRef != githash.Head {
		_ = c.wc.reflog.Append(updateRef, oldID, theirsID, who, time.Now(), "merge "+c.theirs+": Fast-forward")
	}

	sort.Strings(updated)
	return MergeResult{Status: MergeFastForward, Updated: updated, CommitID: theirsID}, nil
}

func (c *MergeCommand) threeWay(ctx context.Context, oursID githash.SHA1, oursCommit *object.Commit, theirsID githash.SHA1, theirsCommit *object.Commit, baseID githash.SHA1) (MergeResult, error) {
	baseCommit, err := readCommit(ctx, c.wc.objects, baseID)
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}
	baseMap, err := flattenTree(ctx, c.wc.objects, baseCommit.Tree)
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}
	oursMap, err := flattenTree(ctx, c.wc.objects, oursCommit.Tree)
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}
	theirsMap, err := flattenTree(ctx, c.wc.objects, theirsCommit.Tree)
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}

	paths := map[string]bool{}
	for p := range baseMap {
		paths[p] = true
	}
	for p := range oursMap {
		paths[p] = true
	}
	for p := range theirsMap {
		paths[p] = true
	}

	editor := c.wc.idx.Editor()
	var updated, conflicts []string
	for path := range paths {
		if err := ctx.Err(); err != nil {
			editor.Finish()
			return MergeResult{}, err
		}
		base, hasBase := baseMap[path]
		ours, hasOurs := oursMap[path]
		theirs, hasTheirs := theirsMap[path]

		switch {
		case hasOurs && hasTheirs && ours.ID == theirs.ID && ours.Mode == theirs.Mode:
			// Identical on both sides: nothing to do.

		case hasBase && hasOurs && !hasTheirs:
			if ours.ID == base.ID && ours.Mode == base.Mode {
				editor.Delete(path)
				updated = append(updated, path)
			} else {
				conflicts = append(conflicts, path)
			}

		case hasBase && !hasOurs && hasTheirs:
			if theirs.ID == base.ID && theirs.Mode == base.Mode {
				// ours already deleted it; stays deleted.
			} else {
				conflicts = append(conflicts, path)
			}

		case !hasBase && hasOurs && !hasTheirs:
			// added only in ours: already present, nothing to do.

		case !hasBase && !hasOurs && hasTheirs:
			if err := c.stageFromTheirs(ctx, editor, path, theirs); err != nil {
				editor.Finish()
				return MergeResult{}, fmt.Errorf("merge: %w", err)
			}
			updated = append(updated, path)

		case !hasBase && hasOurs && hasTheirs:
			conflicts = append(conflicts, path)

		case hasBase && hasOurs && hasTheirs:
			if ours.Mode != theirs.Mode {
				conflicts = append(conflicts, path)
				break
			}
			if ours.ID == base.ID {
				if err := c.stageFromTheirs(ctx, editor, path, theirs); err != nil {
					editor.Finish()
					return MergeResult{}, fmt.Errorf("merge: %w", err)
				}
				updated = append(updated, path)
				break
			}
			if theirs.ID == base.ID {
				break // unchanged on theirs' side; ours already wins.
			}
			merged, ok, err := c.mergeContent(ctx, base.ID, ours.ID, theirs.ID)
			if err != nil {
				editor.Finish()
				return MergeResult{}, fmt.Errorf("merge: %w", err)
			}
			if !ok {
				conflicts = append(conflicts, path)
				break
			}
			id, err := object.StoreBlob(ctx, c.wc.objects, bytes.NewReader(merged), int64(len(merged)))
			if err != nil {
				editor.Finish()
				return MergeResult{}, fmt.Errorf("merge: %w", err)
			}
			editor.Update(path, ours.Mode, id, int64(len(merged)), time.Now())
			if err := c.wc.worktree.WriteFile(ctx, path, ours.Mode, merged); err != nil {
				editor.Finish()
				return MergeResult{}, fmt.Errorf("merge: %w", err)
			}
			updated = append(updated, path)
		}

		if len(conflicts) > 0 && conflicts[len(conflicts)-1] == path {
			editor.Delete(path) // drop the stage-0 entry before staging the sides
			if hasBase {
				editor.UpdateStage(path, index.StageBase, base.Mode, base.ID, 0)
			}
			if hasOurs {
				editor.UpdateStage(path, index.StageOurs, ours.Mode, ours.ID, 0)
			}
			if hasTheirs {
				editor.UpdateStage(path, index.StageTheirs, theirs.Mode, theirs.ID, 0)
				content, err := readBlob(ctx, c.wc.objects, theirs.ID)
				if err == nil {
					_ = c.wc.worktree.WriteFile(ctx, path, theirs.Mode, content)
				}
			}
		}
	}
	editor.Finish()
	if err := c.wc.idx.Write(); err != nil {
		return MergeResult{}, fmt.Errorf("merge: write index: %w", err)
	}

	sort.Strings(updated)
	sort.Strings(conflicts)

	if len(conflicts) > 0 {
		msg := c.message
		if msg == "" {
			msg = "Merge " + c.theirs
		}
		if err := c.wc.transform.Merge.Begin([]githash.SHA1{theirsID}, msg); err != nil {
			return MergeResult{}, fmt.Errorf("merge: %w", err)
		}
		return MergeResult{Status: MergeConflicts, Updated: updated, Conflicts: conflicts}, nil
	}

	treeID, err := c.wc.idx.WriteTree(ctx, c.wc.objects)
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", ErrConflict)
	}
	who := object.User(c.wc.config.Value("user.name") + " <" + c.wc.config.Value("user.email") + ">")
	msg := c.message
	if msg == "" {
		msg = "Merge " + c.theirs
	}
	now := time.Now()
	commit := &object.Commit{
		Tree:       treeID,
		Parents:    []githash.SHA1{oursID, theirsID},
		Author:     who,
		AuthorTime: now,
		Committer:  who,
		CommitTime: now,
		Message:    msg,
	}
	data, err := commit.MarshalText()
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}
	id, err := c.wc.objects.WriteObject(ctx, object.TypeCommit, int64(len(data)), bytes.NewReader(data))
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}

	_, target, symbolic, err := c.wc.refs.Target(githash.Head)
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}
	updateRef := githash.Head
	if symbolic {
		updateRef = target
	}
	if err := c.wc.refs.CompareAndSwap(updateRef, oursID, id); err != nil {
		return MergeResult{}, fmt.Errorf("merge: %w", err)
	}
	_ = c.wc.reflog.Append(githash.Head, oursID, id, who, now, "merge "+c.theirs+": Merge made by the merge strategy.")
	if updateRef != githash.Head {
		_ = c.wc.reflog.Append(updateRef, oursID, id, who, now, "merge "+c.theirs+": Merge made by the merge strategy.")
	}

	return MergeResult{Status: MergeOK, Updated: updated, CommitID: id}, nil
}

func (c *MergeCommand) stageFromTheirs(ctx context.Context, editor *index.Editor, path string, theirs treeLeaf) error {
	content, err := readBlob(ctx, c.wc.objects, theirs.ID)
	if err != nil {
		return err
	}
	editor.Update(path, theirs.Mode, theirs.ID, int64(len(content)), time.Now())
	return c.wc.worktree.WriteFile(ctx, path, theirs.Mode, content)
}

// mergeContent runs a line-based three-way merge on the blobs named by
// base, ours, and theirs, returning the merged bytes and whether the merge
// was clean.
func (c *MergeCommand) mergeContent(ctx context.Context, baseID, oursID, theirsID githash.SHA1) ([]byte, bool, error) {
	baseContent, err := readBlob(ctx, c.wc.objects, baseID)
	if err != nil {
		return nil, false, err
	}
	oursContent, err := readBlob(ctx, c.wc.objects, oursID)
	if err != nil {
		return nil, false, err
	}
	theirsContent, err := readBlob(ctx, c.wc.objects, theirsID)
	if err != nil {
		return nil, false, err
	}
	if diff.IsBinary(oursContent) || diff.IsBinary(theirsContent) {
		return nil, false, nil
	}

	result := diff.ThreeWayMerge(
		diff.SplitLines(baseContent),
		diff.SplitLines(oursContent),
		diff.SplitLines(theirsContent),
		diff.MergeOptions{},
	)
	if result.Conflicts {
		return nil, false, nil
	}
	var buf bytes.Buffer
	for _, l := range result.Lines {
		buf.Write(l.Text)
	}
	return buf.Bytes(), true, nil
}
