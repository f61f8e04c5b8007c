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

package index

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

func sampleEntries() []Entry {
	var id1, id2, id3 githash.SHA1
	id1[0] = 0xaa
	id2[0] = 0xbb
	id3[0] = 0xcc
	return []Entry{
		{Path: "README.md", Mode: object.ModePlain, ObjectID: id1, Size: 42, MtimeSec: 1000},
		{Path: "cmd/main.go", Mode: object.ModePlain, ObjectID: id2, Size: 128, MtimeSec: 2000},
		{Path: "cmd/main_test.go", Mode: object.ModePlain, ObjectID: id3, Size: 256, MtimeSec: 3000},
	}
}

func TestCodecRoundTripV2(t *testing.T) {
	idx := &Index{Version: 2, entries: sampleEntries()}
	var buf bytes.Buffer
	require.NoError(t, idx.Encode(&buf))

	got, err := decodeBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, idx.entries, got.entries)
}

func TestCodecRoundTripV3ExtendedFlags(t *testing.T) {
	entries := sampleEntries()
	entries[1].SkipWorktree = true
	entries[2].IntentToAdd = true
	idx := &Index{Version: 3, entries: entries}

	var buf bytes.Buffer
	require.NoError(t, idx.Encode(&buf))

	got, err := decodeBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, entries, got.entries)
}

func TestCodecRoundTripV4PathCompression(t *testing.T) {
	idx := &Index{Version: 4, entries: sampleEntries()}
	var buf bytes.Buffer
	require.NoError(t, idx.Encode(&buf))

	got, err := decodeBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, idx.entries, got.entries)
	assert.Equal(t, uint32(4), got.Version)
}

func TestCodecRejectsBadMagic(t *testing.T) {
	data := append([]byte("NOPE"), make([]byte, 28)...)
	_, err := decodeBytes(data)
	assert.Error(t, err)
}

func TestCodecRejectsChecksumMismatch(t *testing.T) {
	idx := &Index{Version: 2, entries: sampleEntries()}
	var buf bytes.Buffer
	require.NoError(t, idx.Encode(&buf))
	corrupt := buf.Bytes()
	corrupt[20] ^= 0xff

	_, err := decodeBytes(corrupt)
	assert.Error(t, err)
}

func TestCodecRoundTripEmptyIndex(t *testing.T) {
	idx := &Index{Version: 2}
	var buf bytes.Buffer
	require.NoError(t, idx.Encode(&buf))

	got, err := decodeBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Empty(t, got.entries)
}
