// Copyright 2023 The gg Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//		 https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package worktree implements the working-copy filesystem view against a
// real local directory: the concrete adapter behind status.WorktreeLister
// and the Ops capability bundle commands use to walk, read, and write
// worktree files.
package worktree

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vcskit.dev/pkg/git/object"
	"vcskit.dev/pkg/git/status"
)

// Entry is one worktree file's metadata, as returned by Walk.
type Entry struct {
	Path      string
	Size      int64
	Mtime     time.Time
	Mode      object.Mode
	IsIgnored bool
}

// Ops is the narrow capability a command needs against the worktree:
// walking its current state and reading, writing, or removing individual
// files' content. It is the "worktree" member of the capability-interface
// split a command's WorkingCopy handle bundles alongside history (L1-L2)
// and checkout state (L3).
type Ops interface {
	Walk(ctx context.Context, includeIgnored bool) ([]Entry, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, mode object.Mode, content []byte) error
	Remove(ctx context.Context, path string) error
}

// Local is an Ops and status.WorktreeLister backed by a real directory on
// the local filesystem. Paths passed to and returned from its methods are
// always slash-separated and relative to the worktree root; an absolute
// path, or one whose ".." segments lead outside the root, is rejected and
// never reaches the filesystem.
type Local struct {
	root string // absolute, symlink-resolved
}

// NewLocal returns a Local rooted at dir, which must name an existing
// directory (typically a repository's worktree root, the directory
// containing ".git").
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("worktree: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("worktree: %w", err)
	}
	return &Local{root: resolved}, nil
}

func (l *Local) abs(relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("worktree: path %q must be relative", relPath)
	}
	p := filepath.Join(l.root, filepath.FromSlash(relPath))
	if p != l.root && !strings.HasPrefix(p, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("worktree: path %q escapes worktree root", relPath)
	}
	return p, nil
}

func (l *Local) rel(absPath string) (string, error) {
	r, err := filepath.Rel(l.root, absPath)
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}
	return filepath.ToSlash(r), nil
}

func deriveMode(info fs.FileInfo) object.Mode {
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		return object.ModeSymlink
	case info.IsDir():
		return object.ModeDir
	case info.Mode()&0o111 != 0:
		return object.ModeExecutable
	default:
		return object.ModePlain
	}
}

// Walk lists every file in the worktree (directories themselves are not
// reported; only the leaf entries a tree or index can hold), skipping
// ".git". Ignored paths are always classified via IsIgnored; when
// includeIgnored is false, they are additionally omitted from the result,
// matching AddCommand's default walk, whereas a status calculation (and
// AddCommand under force) needs them reported so they can be classified
// rather than silently dropped.
func (l *Local) Walk(ctx context.Context, includeIgnored bool) ([]Entry, error) {
	matcher := newIgnoreMatcher(l.root)
	var entries []Entry
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == l.root {
			return nil
		}
		rel, err := l.rel(p)
		if err != nil {
			return err
		}
		if rel == ".git" {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ignored, err := matcher.isIgnored(rel, false)
		if err != nil {
			return fmt.Errorf("check ignore %s: %w", rel, err)
		}
		if ignored && !includeIgnored {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", rel, err)
		}
		entries = append(entries, Entry{
			Path:      rel,
			Size:      info.Size(),
			Mtime:     info.ModTime(),
			Mode:      deriveMode(info),
			IsIgnored: ignored,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("worktree: walk: %w", err)
	}
	return entries, nil
}

// ListWorktree implements status.WorktreeLister.
func (l *Local) ListWorktree(ctx context.Context) ([]status.WorktreeEntry, error) {
	entries, err := l.Walk(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]status.WorktreeEntry, len(entries))
	for i, e := range entries {
		out[i] = status.WorktreeEntry{
			Path:      e.Path,
			Size:      e.Size,
			Mtime:     e.Mtime,
			Mode:      e.Mode,
			IsIgnored: e.IsIgnored,
		}
	}
	return out, nil
}

// ReadFile returns path's current content.
func (l *Local) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := l.abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("worktree: read %s: %w", path, err)
	}
	return data, nil
}

// WriteFile creates or overwrites path with content, creating any missing
// parent directories, and sets the executable bit to match mode.
func (l *Local) WriteFile(ctx context.Context, path string, mode object.Mode, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := l.abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o777); err != nil {
		return fmt.Errorf("worktree: write %s: %w", path, err)
	}
	perm := fs.FileMode(0o644)
	if mode == object.ModeExecutable {
		perm = 0o755
	}
	if err := os.WriteFile(abs, content, perm); err != nil {
		return fmt.Errorf("worktree: write %s: %w", path, err)
	}
	if err := os.Chmod(abs, perm); err != nil {
		return fmt.Errorf("worktree: write %s: %w", path, err)
	}
	return nil
}

// Remove deletes path. It is not an error if path does not exist.
func (l *Local) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := l.abs(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("worktree: remove %s: %w", path, err)
	}
	return nil
}
