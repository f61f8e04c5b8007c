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
)

func TestLogWalksFirstParentHistory(t *testing.T) {
	ctx := context.Background()
	wc := newTestRepo(t)
	commitOne(t, wc, "a.txt", "1\n", "first")
	commitOne(t, wc, "a.txt", "2\n", "second")
	commitOne(t, wc, "a.txt", "3\n", "third")

	entries, err := wc.Log().Run(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "third", entries[0].Commit.Message)
	assert.Equal(t, "second", entries[1].Commit.Message)
	assert.Equal(t, "first", entries[2].Commit.Message)
}

func TestLogRespectsLimit(t *testing.T) {
	ctx := context.Background()
	wc := newTestRepo(t)
	commitOne(t, wc, "a.txt", "1\n", "first")
	commitOne(t, wc, "a.txt", "2\n", "second")

	entries, err := wc.Log().SetLimit(1).Run(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].Commit.Message)
}

func TestLogStartFromOlderCommit(t *testing.T) {
	ctx := context.Background()
	wc := newTestRepo(t)
	commitOne(t, wc, "a.txt", "1\n", "first")
	_, err := wc.Branch().SetCreate("early").Run(ctx)
	require.NoError(t, err)
	commitOne(t, wc, "a.txt", "2\n", "second")

	entries, err := wc.Log().SetStart("early").Run(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "first", entries[0].Commit.Message)
}
