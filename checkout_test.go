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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCheckoutConflictDetection is scenario S6: branch main has f="v1" and
// is committed; branch feature stages f="v2" without committing. Switching
// back to main without force reports CONFLICTS and touches no files; with
// force it overwrites the staged change and lands cleanly on main's state.
func TestCheckoutConflictDetection(t *testing.T) {
	ctx := context.Background()
	wc := newTestRepo(t)
	writeWorktreeFile(t, wc, "f", "v1")
	_, err := wc.Add().AddPath("f").Run(ctx)
	require.NoError(t, err)
	_, err = wc.Commit().SetMessage("init").SetCommitter(testUser, time.Now()).Run(ctx)
	require.NoError(t, err)

	_, err = wc.Branch().SetCreate("feature").Run(ctx)
	require.NoError(t, err)
	res, err := wc.Checkout().SetBranch("feature").Run(ctx)
	require.NoError(t, err)
	require.Equal(t, CheckoutOK, res.Status)

	writeWorktreeFile(t, wc, "f", "v2")
	_, err = wc.Add().AddPath("f").Run(ctx)
	require.NoError(t, err)

	res, err = wc.Checkout().SetBranch("main").Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, CheckoutConflicts, res.Status)
	assert.Equal(t, []string{"f"}, res.Conflicts)

	content, err := os.ReadFile(filepath.Join(wc.Dir(), "f"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content)) // untouched by the failed checkout.

	res, err = wc.Checkout().SetBranch("main").SetForce(true).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, CheckoutOK, res.Status)

	content, err = os.ReadFile(filepath.Join(wc.Dir(), "f"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(content))
	entry, ok := wc.idx.GetEntry("f")
	require.True(t, ok)
	mainID, _, _, err := wc.resolveCommittish("main")
	require.NoError(t, err)
	commit, err := readCommit(ctx, wc.objects, mainID)
	require.NoError(t, err)
	tree, err := flattenTree(ctx, wc.objects, commit.Tree)
	require.NoError(t, err)
	assert.Equal(t, tree["f"].ID, entry.ObjectID)
}

func TestCheckoutRestoresSinglePath(t *testing.T) {
	ctx := context.Background()
	wc := newTestRepo(t)
	writeWorktreeFile(t, wc, "f", "committed")
	_, err := wc.Add().AddPath("f").Run(ctx)
	require.NoError(t, err)
	_, err = wc.Commit().SetMessage("init").SetCommitter(testUser, time.Now()).Run(ctx)
	require.NoError(t, err)

	writeWorktreeFile(t, wc, "f", "dirty")
	res, err := wc.Checkout().AddPath("f").Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, CheckoutOK, res.Status)

	content, err := os.ReadFile(filepath.Join(wc.Dir(), "f"))
	require.NoError(t, err)
	assert.Equal(t, "committed", string(content))
}
