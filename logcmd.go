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

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

// LogEntry is one commit as returned by LogCommand, paired with its id
// (object.Commit itself does not carry its own hash).
type LogEntry struct {
	ID     githash.SHA1
	Commit *object.Commit
}

// LogCommand walks first-parent history from a start point.
type LogCommand struct {
	called
	wc *WorkingCopy

	start string
	limit int
}

// Log returns a new LogCommand bound to wc, starting from HEAD.
func (wc *WorkingCopy) Log() *LogCommand {
	return &LogCommand{wc: wc}
}

// SetStart overrides the starting commit-ish; the default is HEAD.
func (c *LogCommand) SetStart(name string) *LogCommand {
	if c.check() == nil {
		c.start = name
	}
	return c
}

// SetLimit caps the number of entries returned. Zero (the default) means
// unlimited.
func (c *LogCommand) SetLimit(n int) *LogCommand {
	if c.check() == nil {
		c.limit = n
	}
	return c
}

// Run executes the command, walking first-parent history from the start
// point until it runs out of parents or hits the configured limit.
func (c *LogCommand) Run(ctx context.Context) ([]LogEntry, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	c.markDone()

	if err := c.wc.lock(); err != nil {
		return nil, err
	}
	defer c.wc.unlock()

	var id githash.SHA1
	if c.start == "" {
		var err error
		id, err = c.wc.refs.Resolve(githash.Head)
		if err != nil {
			return nil, fmt.Errorf("log: %w", ErrRefNotFound)
		}
	} else {
		var err error
		id, _, _, err = c.wc.resolveCommittish(c.start)
		if err != nil {
			return nil, fmt.Errorf("log: %w", err)
		}
	}

	var entries []LogEntry
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.limit > 0 && len(entries) >= c.limit {
			break
		}
		commit, err := readCommit(ctx, c.wc.objects, id)
		if err != nil {
			return nil, fmt.Errorf("log: %w", err)
		}
		entries = append(entries, LogEntry{ID: id, Commit: commit})
		if len(commit.Parents) == 0 {
			break
		}
		id = commit.Parents[0]
	}
	return entries, nil
}
