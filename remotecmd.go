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
	"path/filepath"
	"sort"
)

// RemoteResult is the outcome of a RemoteCommand.
type RemoteResult struct {
	Added   string
	Removed string
	Remotes []Remote
}

// RemoteCommand manages a repository's configured remotes: the
// "remote.<name>.*" settings in config. It does not create, update or
// delete refs/remotes/* tracking refs, and it never contacts a remote;
// network transport is out of scope for the core.
type RemoteCommand struct {
	called
	wc *WorkingCopy

	addName, addURL string
	remove          string
}

// Remote returns a new RemoteCommand bound to wc.
func (wc *WorkingCopy) Remote() *RemoteCommand {
	return &RemoteCommand{wc: wc}
}

// SetAdd configures a new remote named name with the given fetch URL.
func (c *RemoteCommand) SetAdd(name, url string) *RemoteCommand {
	if c.check() == nil {
		c.addName, c.addURL = name, url
	}
	return c
}

// SetRemove names the remote to delete.
func (c *RemoteCommand) SetRemove(name string) *RemoteCommand {
	if c.check() == nil {
		c.remove = name
	}
	return c
}

// Run executes the command.
func (c *RemoteCommand) Run(ctx context.Context) (RemoteResult, error) {
	if err := c.check(); err != nil {
		return RemoteResult{}, err
	}
	c.markDone()

	if err := c.wc.lock(); err != nil {
		return RemoteResult{}, err
	}
	defer c.wc.unlock()

	configPath := filepath.Join(c.wc.gitDir, "config")

	switch {
	case c.addName != "":
		remote := Remote{
			Name:     c.addName,
			FetchURL: c.addURL,
			Fetch:    []FetchRefspec{FetchRefspec(fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", c.addName))},
		}
		if err := c.wc.config.AddRemote(configPath, remote); err != nil {
			return RemoteResult{}, fmt.Errorf("remote add %s: %w", c.addName, err)
		}
		return RemoteResult{Added: c.addName}, nil

	case c.remove != "":
		if _, ok := c.wc.config.ListRemotes()[c.remove]; !ok {
			return RemoteResult{}, fmt.Errorf("remote remove %s: %w", c.remove, ErrRefNotFound)
		}
		if err := c.wc.config.RemoveRemote(configPath, c.remove); err != nil {
			return RemoteResult{}, fmt.Errorf("remote remove %s: %w", c.remove, err)
		}
		return RemoteResult{Removed: c.remove}, nil

	default:
		remotes := c.wc.config.ListRemotes()
		names := make([]string, 0, len(remotes))
		for name := range remotes {
			names = append(names, name)
		}
		sort.Strings(names)
		result := make([]Remote, 0, len(names))
		for _, name := range names {
			result = append(result, *remotes[name])
		}
		return RemoteResult{Remotes: result}, nil
	}
}
