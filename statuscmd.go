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

	"vcskit.dev/pkg/git/status"
)

// StatusCommand is a thin wrapper over status.Engine.Calculate.
type StatusCommand struct {
	called
	wc *WorkingCopy

	opts status.Options
}

// Status returns a new StatusCommand bound to wc.
func (wc *WorkingCopy) Status() *StatusCommand {
	return &StatusCommand{wc: wc}
}

// SetPathFilter restricts results to paths under prefix.
func (c *StatusCommand) SetPathFilter(prefix string) *StatusCommand {
	if c.check() == nil {
		c.opts.PathPrefix = prefix
	}
	return c
}

// SetSuppressUntracked omits untracked entries from the result.
func (c *StatusCommand) SetSuppressUntracked(v bool) *StatusCommand {
	if c.check() == nil {
		c.opts.SuppressUntracked = v
	}
	return c
}

// SetSuppressIgnored omits ignored entries from the result.
func (c *StatusCommand) SetSuppressIgnored(v bool) *StatusCommand {
	if c.check() == nil {
		c.opts.SuppressIgnored = v
	}
	return c
}

// Run executes the command.
func (c *StatusCommand) Run(ctx context.Context) (status.Summary, error) {
	if err := c.check(); err != nil {
		return status.Summary{}, err
	}
	c.markDone()

	if err := c.wc.lock(); err != nil {
		return status.Summary{}, err
	}
	defer c.wc.unlock()

	return c.wc.statusEngine().Calculate(ctx, c.opts)
}
