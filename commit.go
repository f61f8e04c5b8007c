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
	"vcskit.dev/pkg/git/object"
	"vcskit.dev/pkg/git/store"
)

// CommitCommand builds a commit from the current index tree and updates
// HEAD. It is a single-shot fluent builder.
type CommitCommand struct {
	called
	wc *WorkingCopy

	message       string
	author        object.User
	authorTime    time.Time
	committer     object.User
	committerTime time.Time
}

// Commit returns a new CommitCommand bound to wc.
func (wc *WorkingCopy) Commit() *CommitCommand {
	now := time.Now()
	return &CommitCommand{
		wc:            wc,
		authorTime:    now,
		committerTime: now,
	}
}

// SetMessage sets the commit message.
func (c *CommitCommand) SetMessage(message string) *CommitCommand {
	if c.check() == nil {
		c.message = message
	}
	return c
}

// SetAuthor overrides the author identity and time. If not called, the
// committer identity and time are used for the author as well.
func (c *CommitCommand) SetAuthor(who object.User, when time.Time) *CommitCommand {
	if c.check() == nil {
		c.author, c.authorTime = who, when
	}
	return c
}

// SetCommitter overrides the committer identity and time.
func (c *CommitCommand) SetCommitter(who object.User, when time.Time) *CommitCommand {
	if c.check() == nil {
		c.committer, c.committerTime = who, when
	}
	return c
}

// Run builds the commit and advances HEAD to it, appending a reflog entry
// on success.
func (c *CommitCommand) Run(ctx context.Context) (githash.SHA1, error) {
	if err := c.check(); err != nil {
		return githash.SHA1{}, err
	}
	c.markDone()

	if err := c.wc.lock(); err != nil {
		return githash.SHA1{}, err
	}
	defer c.wc.unlock()

	if c.message == "" {
		return githash.SHA1{}, fmt.Errorf("commit: %w", ErrMissingArgument)
	}
	committer := c.committer
	if committer == "" {
		committer = object.User(c.wc.config.Value("user.name") + " <" + c.wc.config.Value("user.email") + ">")
	}
	author := c.author
	authorTime := c.authorTime
	if author == "" {
		author, authorTime = committer, c.committerTime
	}

	treeID, err := c.wc.idx.WriteTree(ctx, c.wc.objects)
	if err != nil {
		return githash.SHA1{}, fmt.Errorf("commit: %w", ErrConflict)
	}

	// Resolve what HEAD's ref update target actually is: the branch it
	// points to symbolically, or HEAD itself when detached.
	_, target, symbolic, err := c.wc.refs.Target(githash.Head)
	if err != nil {
		return githash.SHA1{}, fmt.Errorf("commit: read HEAD: %w", err)
	}
	updateRef := githash.Head
	if symbolic {
		updateRef = target
	}

	var parents []githash.SHA1
	oldID, err := c.wc.refs.Resolve(updateRef)
	headExisted := true
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return githash.SHA1{}, fmt.Errorf("commit: %w", err)
		}
		headExisted = false
	} else {
		parents = []githash.SHA1{oldID}
	}

	commit := &object.Commit{
		Tree:       treeID,
		Parents:    parents,
		Author:     author,
		AuthorTime: authorTime,
		Committer:  committer,
		CommitTime: c.committerTime,
		Message:    c.message,
	}
	data, err := commit.MarshalText()
	if err != nil {
		return githash.SHA1{}, fmt.Errorf("commit: %w", err)
	}
	id, err := c.wc.objects.WriteObject(ctx, object.TypeCommit, int64(len(data)), bytes.NewReader(data))
	if err != nil {
		return githash.SHA1{}, fmt.Errorf("commit: %w", err)
	}

	if headExisted {
		if err := c.wc.refs.CompareAndSwap(updateRef, oldID, id); err != nil {
			return githash.SHA1{}, fmt.Errorf("commit: %w", err)
		}
	} else {
		if err := c.wc.refs.Set(updateRef, id); err != nil {
			return githash.SHA1{}, fmt.Errorf("commit: %w", err)
		}
	}

	summary := commit.Summary()
	message := "commit: " + summary
	if err := c.wc.reflog.Append(githash.Head, oldID, id, committer, c.committerTime, message); err != nil {
		c.wc.log.Warn().Err(err).Msg("reflog append failed")
	}
	if updateRef != githash.Head {
		if err := c.wc.reflog.Append(updateRef, oldID, id, committer, c.committerTime, message); err != nil {
			c.wc.log.Warn().Err(err).Msg("reflog append failed")
		}
	}

	return id, nil
}
