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
	"fmt"
	"sort"
	"strings"

	"vcskit.dev/pkg/git/githash"
)

// BranchResult is the outcome of a BranchCommand.
type BranchResult struct {
	Created  string
	Deleted  string
	Branches []string
}

// BranchCommand creates, deletes, or lists local branches (refs/heads/*).
// With neither SetCreate nor SetDelete called, Run lists every local
// branch.
type BranchCommand struct {
	called
	wc *WorkingCopy

	create     string
	startPoint string
	delete     string
	force      bool
}

// Branch returns a new BranchCommand bound to wc.
func (wc *WorkingCopy) Branch() *BranchCommand {
	return &BranchCommand{wc: wc}
}

// SetCreate names the branch to create.
func (c *BranchCommand) SetCreate(name string) *BranchCommand {
	if c.check() == nil {
		c.create = name
	}
	return c
}

// SetStartPoint names the commit-ish a created branch points to. The
// default is HEAD.
func (c *BranchCommand) SetStartPoint(name string) *BranchCommand {
	if c.check() == nil {
		c.startPoint = name
	}
	return c
}

// SetDelete names the branch to delete.
func (c *BranchCommand) SetDelete(name string) *BranchCommand {
	if c.check() == nil {
		c.delete = name
	}
	return c
}

// SetForce allows creating a branch that already exists (moving it) and
// deleting one that is not merged into HEAD.
func (c *BranchCommand) SetForce(v bool) *BranchCommand {
	if c.check() == nil {
		c.force = v
	}
	return c
}

// Run executes the command.
func (c *BranchCommand) Run(ctx context.Context) (BranchResult, error) {
	if err := c.check(); err != nil {
		return BranchResult{}, err
	}
	c.markDone()

	if err := c.wc.lock(); err != nil {
		return BranchResult{}, err
	}
	defer c.wc.unlock()

	switch {
	case c.create != "":
		return c.runCreate(ctx)
	case c.delete != "":
		return c.runDelete(ctx)
	default:
		return c.runList()
	}
}

func (c *BranchCommand) runCreate(ctx context.Context) (BranchResult, error) {
	ref := githash.BranchRef(c.create)
	if c.wc.refs.Has(ref) && !c.force {
		return BranchResult{}, fmt.Errorf("branch %s: %w", c.create, ErrConflict)
	}
	var id githash.SHA1
	var err error
	if c.startPoint == "" {
		id, err = c.wc.refs.Resolve(githash.Head)
	} else {
		id, _, _, err = c.wc.resolveCommittish(c.startPoint)
	}
	if err != nil {
		return BranchResult{}, fmt.Errorf("branch %s: %w", c.create, err)
	}
	if err := c.wc.refs.Set(ref, id); err != nil {
		return BranchResult{}, fmt.Errorf("branch %s: %w", c.create, err)
	}
	return BranchResult{Created: c.create}, nil
}

func (c *BranchCommand) runDelete(ctx context.Context) (BranchResult, error) {
	ref := githash.BranchRef(c.delete)
	if !c.wc.refs.Has(ref) {
		return BranchResult{}, fmt.Errorf("branch %s: %w", c.delete, ErrRefNotFound)
	}
	if !c.force {
		id, err := c.wc.refs.Resolve(ref)
		if err != nil {
			return BranchResult{}, fmt.Errorf("branch %s: %w", c.delete, err)
		}
		headID, err := c.wc.refs.Resolve(githash.Head)
		if err == nil {
			ancestors, err := c.wc.ancestorSet(ctx, headID)
			if err != nil {
				return BranchResult{}, fmt.Errorf("branch %s: %w", c.delete, err)
			}
			if !ancestors[id] {
				return BranchResult{}, fmt.Errorf("branch %s: %w", c.delete, ErrConflict)
			}
		}
	}
	if err := c.wc.refs.Delete(ref); err != nil {
		return BranchResult{}, fmt.Errorf("branch %s: %w", c.delete, err)
	}
	return BranchResult{Deleted: c.delete}, nil
}

func (c *BranchCommand) runList() (BranchResult, error) {
	refs, err := c.wc.refs.List("refs/heads/")
	if err != nil {
		return BranchResult{}, fmt.Errorf("branch: %w", err)
	}
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, strings.TrimPrefix(r.String(), "refs/heads/"))
	}
	sort.Strings(names)
	return BranchResult{Branches: names}, nil
}
