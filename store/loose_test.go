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
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

func TestLooseStoreRoundTrip(t *testing.T) {
	ls := NewLooseStore(t.TempDir())
	const payload = "hello, world\n"

	id, err := ls.Write(object.TypeBlob, int64(len(payload)), strings.NewReader(payload))
	require.NoError(t, err)
	assert.True(t, ls.Has(id))

	prefix, rc, err := ls.Open(id)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, object.TypeBlob, prefix.Type)
	assert.Equal(t, int64(len(payload)), prefix.Size)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}

func TestLooseStoreDeleteIsIdempotent(t *testing.T) {
	ls := NewLooseStore(t.TempDir())
	id, err := ls.Write(object.TypeBlob, 0, strings.NewReader(""))
	require.NoError(t, err)

	require.NoError(t, ls.Delete(id))
	assert.False(t, ls.Has(id))
	// deleting an already-absent object is not an error
	require.NoError(t, ls.Delete(id))
}

func TestLooseStoreWalk(t *testing.T) {
	ls := NewLooseStore(t.TempDir())
	var want []string
	for _, s := range []string{"a", "bb", "ccc"} {
		id, err := ls.Write(object.TypeBlob, int64(len(s)), strings.NewReader(s))
		require.NoError(t, err)
		want = append(want, id.String())
	}

	var got []string
	require.NoError(t, ls.Walk(func(id githash.SHA1) error {
		got = append(got, id.String())
		return nil
	}))
	assert.ElementsMatch(t, want, got)
}
