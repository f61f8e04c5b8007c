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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

func TestTagLightweightPointsAtCommit(t *testing.T) {
	ctx := context.Background()
	wc := newTestRepo(t)
	commitOne(t, wc, "a.txt", "a\n", "init")
	headID, err := wc.refs.Resolve(githash.Head)
	require.NoError(t, err)

	res, err := wc.Tag().SetCreate("v1").Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, headID, res.ObjectID)
}

func TestTagAnnotatedCreatesTagObject(t *testing.T) {
	ctx := context.Background()
	wc := newTestRepo(t)
	commitOne(t, wc, "a.txt", "a\n", "init")
	headID, err := wc.refs.Resolve(githash.Head)
	require.NoError(t, err)

	res, err := wc.Tag().SetCreate("v1").SetMessage("release", object.User("Tagger <t@example.com>")).Run(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, headID, res.ObjectID)

	_, rc, err := wc.objects.OpenObject(ctx, res.ObjectID)
	require.NoError(t, err)
	rc.Close()
}

func TestTagListAndDelete(t *testing.T) {
	ctx := context.Background()
	wc := newTestRepo(t)
	commitOne(t, wc, "a.txt", "a\n", "init")
	_, err := wc.Tag().SetCreate("v1").Run(ctx)
	require.NoError(t, err)

	res, err := wc.Tag().Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, res.Tags)

	res, err = wc.Tag().SetDelete("v1").Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", res.Deleted)
}
