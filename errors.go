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

import "errors"

// Sentinel errors for the command facade (section 7's Input/Lookup/State
// kinds that a command can report directly, as opposed to the lower layers'
// own sentinels in store, index, and transform). Use errors.Is to test for
// these; wrapped context is added with %w at each call site.
var (
	// ErrMissingArgument is returned when a command is run without a
	// required setting (e.g. CommitCommand with no message).
	ErrMissingArgument = errors.New("git: missing argument")
	// ErrRefNotFound is returned when a command is given a ref or revision
	// that does not resolve to anything.
	ErrRefNotFound = errors.New("git: ref not found")
	// ErrPathNotInIndex is returned when a command expects a path to be
	// staged and it is not.
	ErrPathNotInIndex = errors.New("git: path not in index")
	// ErrPathNotFoundInTree is returned when a command looks up a path in
	// a tree and it is absent.
	ErrPathNotFoundInTree = errors.New("git: path not found in tree")
	// ErrNotADirectory is returned when a path that must name a directory
	// (e.g. a tree-walk prefix) instead names a blob.
	ErrNotADirectory = errors.New("git: not a directory")
	// ErrConflict is returned when a command cannot proceed because
	// applying it would produce or collide with an unresolved conflict.
	ErrConflict = errors.New("git: conflict")
	// ErrUncommittedChanges is returned when a command requires a clean
	// working copy or index and finds one that is not.
	ErrUncommittedChanges = errors.New("git: uncommitted changes")
	// ErrAlreadyCalled is returned by a command's setters and Run method
	// once Run has already been called on it: commands are single-shot.
	ErrAlreadyCalled = errors.New("git: command already called")
	// ErrClosed is returned by any operation on a WorkingCopy after Close
	// has been called on it.
	ErrClosed = errors.New("git: working copy closed")
)

// called is embedded in every command to implement the single-shot rule:
// every setter and Run must check it, and Run must set it before doing any
// work that should not be repeated.
type called struct {
	done bool
}

func (c *called) check() error {
	if c.done {
		return ErrAlreadyCalled
	}
	return nil
}

func (c *called) markDone() {
	c.done = true
}
