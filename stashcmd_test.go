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
)

func TestStashPushRestoresCleanWorktree(t *testing.T) {
	ctx := context.Background()
	wc := newTestRepo(t)
	commitOne(t, wc, "a.txt", "1\n", "init")
	writeWorktreeFile(t, wc, "a.txt", "dirty\n")

	res, err := wc.Stash().Run(ctx)
	require.NoError(t, err)
	require.NotZero(t, res.StashID)

	content, err := os.ReadFile(filepath.Join(wc.Dir(), "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(content))

	summary, err := wc.Status().Run(ctx)
	require.NoError(t, err)
	assert.True(t, summary.IsClean)
}

func TestStashPushWithNoChangesErrors(t *testing.T) {
	ctx := context.Background()
	wc := newTestRepo(t)
	commitOne(t, wc, "a.txt", "1\n", "init")

	_, err := wc.Stash().Run(ctx)
	require.ErrorIs(t, err, ErrUncommittedChanges)
}

func TestStashPopRestoresChangesAndDrops(t *testing.T) {
	ctx := context.Background()
	wc := newTestRepo(t)
	commitOne(t, wc, "a.txt", "1\n", "init")
	writeWorktreeFile(t, wc, "a.txt", "dirty\n")

	_, err := wc.Stash().Run(ctx)
	require.NoError(t, err)

	_, err = wc.Stash().SetAction(StashPop).Run(ctx)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(wc.Dir(), "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "dirty\n", string(content))

	_, err = wc.Stash().SetAction(StashList).Run(ctx)
	require.NoError(t, err)
}

func TestStashListReportsPushedEntries(t *testing.T) {
	ctx := context.Background()
	wc := newTestRepo(t)
	commitOne(t, wc, "a.txt", "1\n", "init")
	writeWorktreeFile(t, wc, "a.txt", "dirty\n")

	_, err := wc.Stash().SetMessage("work in progress").Run(ctx)
	require.NoError(t, err)

	res, err := wc.Stash().SetAction(StashList).Run(ctx)
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "work in progress", res.Entries[0].Message)
}
