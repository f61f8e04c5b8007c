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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/status"
)

func TestResetSoftMovesOnlyHead(t *testing.T) {
	ctx := context.Background()
	wc := newTestRepo(t)
	commitOne(t, wc, "a.txt", "1\n", "first")
	firstHead, err := wc.refs.Resolve(githash.Head)
	require.NoError(t, err)
	commitOne(t, wc, "a.txt", "2\n", "second")

	res, err := wc.Reset().SetTarget(firstHead.String()).SetMode(ResetSoft).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, firstHead, res.NewHead)

	// Soft reset leaves the index staged with the second commit's content,
	// which now reads as modified relative to the rewound HEAD.
	_, ok := wc.idx.GetEntry("a.txt")
	require.True(t, ok)
	summary, err := wc.Status().Run(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Entries, 1)
	assert.Equal(t, status.IndexModified, summary.Entries[0].IndexStatus)
}

func TestResetHardRestoresWorktree(t *testing.T) {
	ctx := context.Background()
	wc := newTestRepo(t)
	commitOne(t, wc, "a.txt", "1\n", "first")
	firstHead, err := wc.refs.Resolve(githash.Head)
	require.NoError(t, err)
	commitOne(t, wc, "a.txt", "2\n", "second")

	_, err = wc.Reset().SetTarget(firstHead.String()).SetMode(ResetHard).Run(ctx)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(wc.Dir(), "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(content))

	summary, err := wc.Status().Run(ctx)
	require.NoError(t, err)
	assert.True(t, summary.IsClean)

	head, err := wc.refs.Resolve(githash.Head)
	require.NoError(t, err)
	assert.Equal(t, firstHead, head)
}

func TestResetMixedLeavesWorktreeDirty(t *testing.T) {
	ctx := context.Background()
	wc := newTestRepo(t)
	commitOne(t, wc, "a.txt", "1\n", "first")
	firstHead, err := wc.refs.Resolve(githash.Head)
	require.NoError(t, err)
	commitOne(t, wc, "a.txt", "2\n", "second")

	_, err = wc.Reset().SetTarget(firstHead.String()).SetMode(ResetMixed).Run(ctx)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(wc.Dir(), "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "2\n", string(content))

	summary, err := wc.Status().Run(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Entries, 1)
	assert.Equal(t, status.WorkTreeModified, summary.Entries[0].WorkTreeStatus)
}
