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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcskit.dev/pkg/git/object"
)

func TestFlattenTreeNestedPaths(t *testing.T) {
	ctx := context.Background()
	wc := newTestRepo(t)
	writeWorktreeFile(t, wc, "top.txt", "top\n")
	writeWorktreeFile(t, wc, "dir/nested.txt", "nested\n")
	writeWorktreeFile(t, wc, "dir/sub/deep.txt", "deep\n")
	_, err := wc.Add().AddPath(".").Run(ctx)
	require.NoError(t, err)
	_, err = wc.Commit().SetMessage("init").SetCommitter(testUser, time.Now()).Run(ctx)
	require.NoError(t, err)

	headID, _, _, err := wc.resolveCommittish("HEAD")
	require.NoError(t, err)
	commit, err := readCommit(ctx, wc.objects, headID)
	require.NoError(t, err)

	leaves, err := flattenTree(ctx, wc.objects, commit.Tree)
	require.NoError(t, err)

	require.Contains(t, leaves, "top.txt")
	require.Contains(t, leaves, "dir/nested.txt")
	require.Contains(t, leaves, "dir/sub/deep.txt")
	assert.Equal(t, object.ModePlain, leaves["top.txt"].Mode)
}
