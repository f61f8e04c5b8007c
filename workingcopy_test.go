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
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

// newTestRepo initializes a fresh repository under a t.TempDir() and
// returns its WorkingCopy, closing it automatically at test cleanup.
func newTestRepo(t *testing.T) *WorkingCopy {
	t.Helper()
	wc, err := Init(t.TempDir(), "main", zerolog.New(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { wc.Close() })
	return wc
}

// writeWorktreeFile creates (or overwrites) a file at path relative to wc's
// worktree root, including any missing parent directories.
func writeWorktreeFile(t *testing.T, wc *WorkingCopy, path, content string) {
	t.Helper()
	full := filepath.Join(wc.Dir(), path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o777))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

// removeWorktreeFile deletes a file at path relative to wc's worktree root.
func removeWorktreeFile(t *testing.T, wc *WorkingCopy, path string) error {
	t.Helper()
	return os.Remove(filepath.Join(wc.Dir(), path))
}

// testUser is the committer/author identity used across the facade tests.
var testUser = object.User("Test User <test@example.com>")

func TestOpenRequiresExistingRepo(t *testing.T) {
	_, err := Open(t.TempDir(), zerolog.New(io.Discard))
	require.Error(t, err)
}

func TestInitThenOpen(t *testing.T) {
	dir := t.TempDir()
	wc, err := Init(dir, "main", zerolog.New(io.Discard))
	require.NoError(t, err)
	require.NoError(t, wc.Close())

	reopened, err := Open(dir, zerolog.New(io.Discard))
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.refs.Resolve(githash.Head)
	require.Error(t, err) // unborn HEAD: no commit yet.
}

func TestClosedWorkingCopyRejectsCommands(t *testing.T) {
	wc := newTestRepo(t)
	require.NoError(t, wc.Close())

	_, err := wc.Add().AddPath(".").Run(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
