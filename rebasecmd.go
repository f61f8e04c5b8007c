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
	"vcskit.dev/pkg/git/transform"
)

// RebaseStatus is the outcome of a RebaseCommand.
type RebaseStatus int

const (
	RebaseUpToDate RebaseStatus = iota
	RebaseOK
	RebaseConflicts
)

func (s RebaseStatus) String() string {
	switch s {
	case RebaseUpToDate:
		return "UP_TO_DATE"
	case RebaseOK:
		return "OK"
	case RebaseConflicts:
		return "CONFLICTS"
	default:
		return "UNKNOWN"
	}
}

// RebaseResult is the outcome of a RebaseCommand.
type RebaseResult struct {
	Status RebaseStatus
	// Replayed lists the original commit ids that were successfully
	// reapplied, oldest first.
	Replayed []githash.SHA1
	// Conflicts names the paths left unresolved in the index when Status
	// is RebaseConflicts.
	Conflicts []string
	// CommitID is the new tip after a clean rebase.
	CommitID githash.SHA1
}

// RebaseCommand replays HEAD's commits since their merge-base with onto,
// one at a time, onto a new parent, stopping at the first commit whose
// replay conflicts.
type RebaseCommand struct {
	called
	wc *WorkingCopy

	onto     string
	upstream string
}

// Rebase returns a new RebaseCommand bound to wc.
func (wc *WorkingCopy) Rebase() *RebaseCommand {
	return &RebaseCommand{wc: wc}
}

// SetOnto names the commit-ish the replayed commits are reparented onto.
func (c *RebaseCommand) SetOnto(name string) *RebaseCommand {
	if c.check() == nil {
		c.onto = name
	}
	return c
}

// SetUpstream names the commit-ish marking the start of the range to
// replay (exclusive). The default is the merge-base of HEAD and onto,
// matching plain "rebase <onto>" with no separate upstream.
func (c *RebaseCommand) SetUpstream(name string) *RebaseCommand {
	if c.check() == nil {
		c.upstream = name
	}
	return c
}

// Run executes the command.
func (c *RebaseCommand) Run(ctx context.Context) (RebaseResult, error) {
	if err := c.check(); err != nil {
		return RebaseResult{}, err
	}
	c.markDone()

	if err := c.wc.lock(); err != nil {
		return RebaseResult{}, err
	}
	defer c.wc.unlock()

	if c.onto == "" {
		return RebaseResult{}, fmt.Errorf("rebase: %w", ErrMissingArgument)
	}

	origHeadID, err := c.wc.refs.Resolve(githash.Head)
	if err != nil {
		return RebaseResult{}, fmt.Errorf("rebase: %w", err)
	}
	ontoID, _, _, err := c.wc.resolveCommittish(c.onto)
	if err != nil {
		return RebaseResult{}, fmt.Errorf("rebase: %w", err)
	}

	var upstreamID githash.SHA1
	if c.upstream == "" {
		upstreamID, err = c.wc.mergeBase(ctx, origHeadID, ontoID)
	} else {
		upstreamID, _, _, err = c.wc.resolveCommittish(c.upstream)
	}
	if err != nil {
		return RebaseResult{}, fmt.Errorf("rebase: %w", err)
	}

	commits, err := c.commitsSince(ctx, origHeadID, upstreamID)
	if err != nil {
		return RebaseResult{}, fmt.Errorf("rebase: %w", err)
	}
	if len(commits) == 0 || ontoID == origHeadID {
		return RebaseResult{Status: RebaseUpToDate, CommitID: origHeadID}, nil
	}

	_, headTarget, symbolic, err := c.wc.refs.Target(githash.Head)
	if err != nil {
		return RebaseResult{}, fmt.Errorf("rebase: %w", err)
	}
	branchRef := githash.Head
	branchName := ""
	if symbolic {
		branchRef = headTarget
		branchName = headTarget.Branch()
	}

	resetCmd := &ResetCommand{wc: c.wc, mode: ResetHard}
	if err := resetCmd.resetTo(ctx, ontoID); err != nil {
		return RebaseResult{}, fmt.Errorf("rebase: %w", err)
	}

	tip := ontoID
	var replayed []githash.SHA1
	for i, commitID := range commits {
		commit, err := readCommit(ctx, c.wc.objects, commitID)
		if err != nil {
			return RebaseResult{}, fmt.Errorf("rebase: %w", err)
		}
		var parentTree githash.SHA1
		if len(commit.Parents) > 0 {
			parentCommit, err := readCommit(ctx, c.wc.objects, commit.Parents[0])
			if err != nil {
				return RebaseResult{}, fmt.Errorf("rebase: %w", err)
			}
			parentTree = parentCommit.Tree
		}
		tipCommit, err := readCommit(ctx, c.wc.objects, tip)
		if err != nil {
			return RebaseResult{}, fmt.Errorf("rebase: %w", err)
		}

		conflicts, err := c.replayOnto(ctx, parentTree, tipCommit.Tree, commit.Tree)
		if err != nil {
			return RebaseResult{}, fmt.Errorf("rebase: %w", err)
		}
		if len(conflicts) > 0 {
			remaining := make([]transform.TodoStep, 0, len(commits)-i)
			for _, rest := range commits[i:] {
				rc, err := readCommit(ctx, c.wc.objects, rest)
				if err != nil {
					return RebaseResult{}, fmt.Errorf("rebase: %w", err)
				}
				remaining = append(remaining, transform.TodoStep{Action: transform.ActionPick, Commit: rest, Message: rc.Message})
			}
			if err := c.wc.transform.Rebase.Begin(transform.RebaseParams{
				Onto:     ontoID,
				OrigHead: origHeadID,
				Branch:   branchName,
				Todo:     remaining,
			}); err != nil {
				return RebaseResult{}, fmt.Errorf("rebase: %w", err)
			}
			if err := c.wc.refs.Set(githash.Head, tip); err != nil {
				return RebaseResult{}, fmt.Errorf("rebase: %w", err)
			}
			sort.Strings(conflicts)
			return RebaseResult{Status: RebaseConflicts, Replayed: replayed, Conflicts: conflicts}, nil
		}

		treeID, err := c.wc.idx.WriteTree(ctx, c.wc.objects)
		if err != nil {
			return RebaseResult{}, fmt.Errorf("rebase: %w", ErrConflict)
		}
		now := time.Now()
		newCommit := &object.Commit{
			Tree:       treeID,
			Parents:    []githash.SHA1{tip},
			Author:     commit.Author,
			AuthorTime: commit.AuthorTime,
			Committer:  object.User(c.wc.config.Value("user.name") + " <" + c.wc.config.Value("user.email") + ">"),
			CommitTime: now,
			Message:    commit.Message,
		}
		data, err := newCommit.MarshalText()
		if err != nil {
			return RebaseResult{}, fmt.Errorf("rebase: %w", err)
		}
		newID, err := c.wc.objects.WriteObject(ctx, object.TypeCommit, int64(len(data)), bytes.NewReader(data))
		if err != nil {
			return RebaseResult{}, fmt.Errorf("rebase: %w", err)
		}
		tip = newID
		replayed = append(replayed, commitID)
	}

	who := object.User(c.wc.config.Value("user.name") + " <" + c.wc.config.Value("user.email") + ">")
	now := time.Now()
	if err := c.wc.refs.CompareAndSwap(branchRef, origHeadID, tip); err != nil {
		return RebaseResult{}, fmt.Errorf("rebase: %w", err)
	}
	_ = c.wc.reflog.Append(githash.Head, origHeadID, tip, who, now, "rebase finished: returning to "+branchRef.String())
	if branchRef != githash.Head {
		_ = c.wc.reflog.Append(branchRef, origHeadID, tip, who, now, "rebase finished: returning to "+branchRef.String())
	}

	return RebaseResult{Status: RebaseOK, Replayed: replayed, CommitID: tip}, nil
}

// commitsSince returns headID's first-parent ancestors down to but
// excluding upstreamID, oldest first.
func (c *RebaseCommand) commitsSince(ctx context.Context, headID, upstreamID githash.SHA1) ([]githash.SHA1, error) {
	var reversed []githash.SHA1
	id := headID
	for id != upstreamID {
		commit, err := readCommit(ctx, c.wc.objects, id)
		if err != nil {
			return nil, err
		}
		reversed = append(reversed, id)
		if len(commit.Parents) == 0 {
			break
		}
		id = commit.Parents[0]
	}
	out := make([]githash.SHA1, len(reversed))
	for i, v := range reversed {
		out[len(reversed)-1-i] = v
	}
	return out, nil
}

// replayOnto applies the change baseTree..theirsTree onto oursTree (the
// current tip), writing the result into the real index and worktree: on
// success, the index reflects the new tip's tree; on conflict, it reflects
// the standard three-stage conflict markup for the caller to resolve.
// It returns the paths left conflicted, if any.
func (c *RebaseCommand) replayOnto(ctx context.Context, baseTree, oursTree, theirsTree githash.SHA1) ([]string, error) {
	baseMap, err := flattenTree(ctx, c.wc.objects, baseTree)
	if err != nil {
		return nil, err
	}
	oursMap, err := flattenTree(ctx, c.wc.objects, oursTree)
	if err != nil {
		return nil, err
	}
	theirsMap, err := flattenTree(ctx, c.wc.objects, theirsTree)
	if err != nil {
		return nil, err
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
	var conflicts []string
	for path := range paths {
		if err := ctx.Err(); err != nil {
			editor.Finish()
			return nil, err
		}
		base, hasBase := baseMap[path]
		ours, hasOurs := oursMap[path]
		theirs, hasTheirs := theirsMap[path]
		conflicted := false

		switch {
		case hasOurs && hasTheirs && ours.ID == theirs.ID && ours.Mode == theirs.Mode:
			// Identical on both sides: nothing to do.

		case hasBase && hasOurs && !hasTheirs:
			if ours.ID == base.ID && ours.Mode == base.Mode {
				editor.Delete(path)
			} else {
				conflicted = true
			}

		case hasBase && !hasOurs && hasTheirs:
			if theirs.ID == base.ID && theirs.Mode == base.Mode {
				// already absent from ours; stays absent.
			} else {
				conflicted = true
			}

		case !hasBase && hasOurs && !hasTheirs:
			// not part of this change: already present, nothing to do.

		case !hasBase && !hasOurs && hasTheirs:
			if err := c.stageFromTree(ctx, editor, path, theirs); err != nil {
				editor.Finish()
				return nil, err
			}

		case !hasBase && hasOurs && hasTheirs:
			conflicted = true

		case hasBase && hasOurs && hasTheirs:
			if ours.Mode != theirs.Mode {
				conflicted = true
				break
			}
			if theirs.ID == base.ID {
				break // this change doesn't touch path; ours already has it.
			}
			if ours.ID == base.ID {
				if err := c.stageFromTree(ctx, editor, path, theirs); err != nil {
					editor.Finish()
					return nil, err
				}
				break
			}
			merged, ok, err := c.mergeContent(ctx, base.ID, ours.ID, theirs.ID)
			if err != nil {
				editor.Finish()
				return nil, err
			}
			if !ok {
				conflicted = true
				break
			}
			id, err := object.StoreBlob(ctx, c.wc.objects, bytes.NewReader(merged), int64(len(merged)))
			if err != nil {
				editor.Finish()
				return nil, err
			}
			editor.Update(path, ours.Mode, id, int64(len(merged)), time.Now())
			if err := c.wc.worktree.WriteFile(ctx, path, ours.Mode, merged); err != nil {
				editor.Finish()
				return nil, err
			}
		}

		if conflicted {
			conflicts = append(conflicts, path)
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
		return nil, fmt.Errorf("write index: %w", err)
	}
	return conflicts, nil
}

func (c *RebaseCommand) stageFromTree(ctx context.Context, editor *index.Editor, path string, leaf treeLeaf) error {
	content, err := readBlob(ctx, c.wc.objects, leaf.ID)
	if err != nil {
		return err
	}
	editor.Update(path, leaf.Mode, leaf.ID, int64(len(content)), time.Now())
	return c.wc.worktree.WriteFile(ctx, path, leaf.Mode, content)
}

func (c *RebaseCommand) mergeContent(ctx context.Context, baseID, oursID, theirsID githash.SHA1) ([]byte, bool, error) {
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
