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

// Package git is the command facade (section 4.8): fluent, single-shot
// command builders (AddCommand, CommitCommand, CheckoutCommand, ...) that
// run in-process against the object store, staging index, diff engine,
// status engine, and transformation state this module implements, instead
// of shelling out to a git subprocess. WorkingCopy is the handle a caller
// opens once per repository and passes every command through.
package git

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/index"
	"vcskit.dev/pkg/git/object"
	"vcskit.dev/pkg/git/status"
	"vcskit.dev/pkg/git/store"
	"vcskit.dev/pkg/git/transform"
	"vcskit.dev/pkg/git/worktree"
)

// RefOps is the narrow capability commands need against the ref store:
// resolving, inspecting, setting, and listing refs. store.RefStore
// implements it.
type RefOps interface {
	status.RefReader
	Has(ref githash.Ref) bool
	Set(ref githash.Ref, id githash.SHA1) error
	SetSymbolic(ref, target githash.Ref) error
	Delete(ref githash.Ref) error
	CompareAndSwap(ref githash.Ref, expected, newID githash.SHA1) error
	List(prefix string) ([]githash.Ref, error)
}

// There is no StagingOps interface for the staging index: every command
// in this package takes the *index.Index pointer itself, since the index
// has no useful interface smaller than its own type (editors, conflict
// classification, and tree writing are all defined as its methods).

// WorkingCopy is an open handle on a single repository: its object store,
// refs, staging index, worktree, transformation state, and configuration.
// Per section 5's concurrency model, at most one command runs at a time on
// a given WorkingCopy; mu enforces that.
type WorkingCopy struct {
	dir    string // worktree root, absolute
	gitDir string // dir/.git, absolute

	mu sync.Mutex

	objects   *store.Store
	refs      *store.RefStore
	idx       *index.Index
	worktree  *worktree.Local
	transform *transform.Store
	reflog    *Reflog
	config    *Config

	log zerolog.Logger

	closed bool
}

// Open opens the repository rooted at dir (the worktree root, the
// directory containing ".git"). It does not create the repository; use
// Init for that.
func Open(dir string, log zerolog.Logger) (*WorkingCopy, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}
	gitDir := filepath.Join(abs, ".git")
	if _, err := os.Stat(gitDir); err != nil {
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}
	return newWorkingCopy(abs, gitDir, log)
}

// Init creates a new repository rooted at dir, laying out the ".git"
// directory skeleton (objects/, refs/heads, refs/tags, an unborn HEAD
// pointing at refs/heads/<initialBranch>), and opens it.
func Init(dir, initialBranch string, log zerolog.Logger) (*WorkingCopy, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("init repository %s: %w", dir, err)
	}
	gitDir := filepath.Join(abs, ".git")
	for _, sub := range []string{
		filepath.Join(gitDir, "objects", "pack"),
		filepath.Join(gitDir, "refs", "heads"),
		filepath.Join(gitDir, "refs", "tags"),
	} {
		if err := os.MkdirAll(sub, 0o777); err != nil {
			return nil, fmt.Errorf("init repository %s: %w", dir, err)
		}
	}
	if initialBranch == "" {
		initialBranch = "main"
	}
	if err := writeFile(filepath.Join(gitDir, "HEAD"), "ref: "+githash.BranchRef(initialBranch).String()+"\n"); err != nil {
		return nil, fmt.Errorf("init repository %s: %w", dir, err)
	}
	return newWorkingCopy(abs, gitDir, log)
}

func newWorkingCopy(dir, gitDir string, log zerolog.Logger) (*WorkingCopy, error) {
	objects, err := store.New(filepath.Join(gitDir, "objects"), log)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}
	refs := store.NewRefStore(gitDir, filepath.Join(gitDir, "vcskit-refcache"), log)
	idx, err := index.Read(filepath.Join(gitDir, "index"))
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}
	wt, err := worktree.NewLocal(dir)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}
	cfg, err := ReadConfigFile(filepath.Join(gitDir, "config"))
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}
	return &WorkingCopy{
		dir:       dir,
		gitDir:    gitDir,
		objects:   objects,
		refs:      refs,
		idx:       idx,
		worktree:  wt,
		transform: transform.NewStore(gitDir),
		reflog:    newReflog(gitDir),
		config:    cfg,
		log:       log,
	}, nil
}

// Dir returns the worktree root.
func (wc *WorkingCopy) Dir() string { return wc.dir }

// GitDir returns the repository's ".git" directory.
func (wc *WorkingCopy) GitDir() string { return wc.gitDir }

// Config returns the repository's parsed configuration.
func (wc *WorkingCopy) Config() *Config { return wc.config }

// Close releases the resources the WorkingCopy holds (the ref resolution
// cache). After Close, every command run against wc returns ErrClosed.
func (wc *WorkingCopy) Close() error {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	if wc.closed {
		return nil
	}
	wc.closed = true
	return wc.refs.Close()
}

// lock acquires the single-command-at-a-time lock and checks wc is still
// open. Every command's Run must call this (via beginCommand) before
// touching any repository state.
func (wc *WorkingCopy) lock() error {
	wc.mu.Lock()
	if wc.closed {
		wc.mu.Unlock()
		return ErrClosed
	}
	return nil
}

func (wc *WorkingCopy) unlock() {
	wc.mu.Unlock()
}

// statusEngine builds a status.Engine bound to wc's current dependencies.
func (wc *WorkingCopy) statusEngine() *status.Engine {
	return &status.Engine{
		Objects:  wc.objects,
		Refs:     wc.refs,
		Index:    wc.idx,
		Worktree: wc.worktree,
	}
}

// headCommit resolves HEAD to a commit object. It returns an error wrapping
// ErrRefNotFound whenever HEAD does not resolve (as on an unborn HEAD); the
// ref store's own error is not wrapped.
func (wc *WorkingCopy) headCommit(ctx context.Context) (githash.SHA1, *object.Commit, error) {
	id, err := wc.refs.Resolve(githash.Head)
	if err != nil {
		return githash.SHA1{}, nil, fmt.Errorf("resolve HEAD: %w", ErrRefNotFound)
	}
	_, rc, err := wc.objects.OpenObject(ctx, id)
	if err != nil {
		return githash.SHA1{}, nil, fmt.Errorf("read HEAD commit: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return githash.SHA1{}, nil, fmt.Errorf("read HEAD commit: %w", err)
	}
	commit, err := object.ParseCommit(data)
	if err != nil {
		return githash.SHA1{}, nil, fmt.Errorf("parse HEAD commit: %w", err)
	}
	return id, commit, nil
}
