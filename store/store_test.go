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

package store

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), zerolog.New(io.Discard))
	require.NoError(t, err)
	return s
}

func TestStoreWriteOpenRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const payload = "package main\n"

	id, err := s.WriteObject(ctx, object.TypeBlob, int64(len(payload)), strings.NewReader(payload))
	require.NoError(t, err)
	assert.True(t, s.Has(id))

	prefix, rc, err := s.OpenObject(ctx, id)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, object.TypeBlob, prefix.Type)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}

func TestStoreOpenMissingObject(t *testing.T) {
	s := newTestStore(t)
	var missing githash.SHA1
	_, _, err := s.OpenObject(context.Background(), missing)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreKeysIncludesWrittenObjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id1, err := s.WriteObject(ctx, object.TypeBlob, 1, strings.NewReader("a"))
	require.NoError(t, err)
	id2, err := s.WriteObject(ctx, object.TypeBlob, 1, strings.NewReader("b"))
	require.NoError(t, err)

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Contains(t, keys, id1)
	assert.Contains(t, keys, id2)
}

func TestStoreDeleteRemovesLooseObject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.WriteObject(ctx, object.TypeBlob, 1, strings.NewReader("a"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(id))
	assert.False(t, s.Has(id))

	_, _, err = s.OpenObject(ctx, id)
	assert.Error(t, err)
}

func TestBatchEndBatchPublishesPackAndResolvesDeltas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := strings.Repeat("the quick brown fox jumps over the lazy dog\n", 8)
	target := base + "one more line appended at the end\n"

	baseID, err := s.WriteObject(ctx, object.TypeBlob, int64(len(base)), strings.NewReader(base))
	require.NoError(t, err)
	targetID, err := s.WriteObject(ctx, object.TypeBlob, int64(len(target)), strings.NewReader(target))
	require.NoError(t, err)

	b, err := s.StartBatch(BatchOptions{})
	require.NoError(t, err)

	ok, err := b.Deltify(ctx, targetID, []githash.SHA1{baseID})
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, b.EndBatch())

	// The target's loose copy was removed once the pack was published; it
	// must now resolve via the pack instead.
	assert.False(t, s.loose.Has(targetID))

	prefix, rc, err := s.OpenObject(ctx, targetID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, object.TypeBlob, prefix.Type)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, target, string(got))
}

func TestStartBatchRejectsConcurrentBatch(t *testing.T) {
	s := newTestStore(t)
	_, err := s.StartBatch(BatchOptions{})
	require.NoError(t, err)

	_, err = s.StartBatch(BatchOptions{})
	assert.ErrorIs(t, err, ErrBatchInProgress)
}

func TestCancelBatchDiscardsPendingDeltas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := strings.Repeat("filler content\n", 16)
	target := base + "appended\n"
	baseID, err := s.WriteObject(ctx, object.TypeBlob, int64(len(base)), strings.NewReader(base))
	require.NoError(t, err)
	targetID, err := s.WriteObject(ctx, object.TypeBlob, int64(len(target)), strings.NewReader(target))
	require.NoError(t, err)

	b, err := s.StartBatch(BatchOptions{})
	require.NoError(t, err)
	_, err = b.Deltify(ctx, targetID, []githash.SHA1{baseID})
	require.NoError(t, err)

	require.NoError(t, b.CancelBatch())

	// The target's loose copy must still be present and directly readable.
	assert.True(t, s.loose.Has(targetID))
	_, err = s.StartBatch(BatchOptions{})
	require.NoError(t, err, "store should be Idle again after CancelBatch")
}
