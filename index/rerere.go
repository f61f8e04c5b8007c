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
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

// ShapeHash identifies a conflict "shape": the hash of a conflicted file's
// pre-image, so that the same conflict recurring (e.g. from repeatedly
// rebasing the same branch) can be recognized. No normalization is applied:
// pre-images that differ in any byte, including the labels on the marker
// lines, have different shapes.
type ShapeHash uint64

// HashConflictShape computes the shape hash of a conflicted file's raw
// pre-image bytes (the worktree content with conflict markers still
// present): the xxhash of those bytes exactly as given, so only
// byte-identical pre-images hash identically.
func HashConflictShape(preimage []byte) ShapeHash {
	return ShapeHash(xxhash.Sum64(preimage))
}

// RerereCache remembers resolutions for conflict shapes previously seen, so
// that re-encountering the same conflict (typically from replaying a
// rebase or re-merging the same branches) can offer or auto-apply the
// remembered resolution instead of asking again.
//
// Resolved content is stored as ordinary blobs in the object store the
// cache is given, so it is handled the same way any other object is; a small
// flat mapping file on disk records which blob resolves which shape.
type RerereCache struct {
	blobs   objectStore
	mapPath string
	mu      sync.Mutex
	byShape map[ShapeHash]githash.SHA1
}

// objectStore is the narrow capability RerereCache needs from an object
// store: enough to persist and retrieve resolved content as blobs.
type objectStore interface {
	object.ObjectWriter
	object.ObjectReader
}

// NewRerereCache returns a cache backed by blobs (for resolved content) and
// a mapping file at mapPath (for shape -> resolution lookups).
func NewRerereCache(blobs objectStore, mapPath string) (*RerereCache, error) {
	c := &RerereCache{blobs: blobs, mapPath: mapPath, byShape: make(map[ShapeHash]githash.SHA1)}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *RerereCache) load() error {
	f, err := os.Open(c.mapPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("index: rerere: load %s: %w", c.mapPath, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		shapeBytes, err := hex.DecodeString(fields[0])
		if err != nil || len(shapeBytes) != 8 {
			continue
		}
		var shape ShapeHash
		for _, b := range shapeBytes {
			shape = shape<<8 | ShapeHash(b)
		}
		id, err := githash.ParseSHA1(fields[1])
		if err != nil {
			continue
		}
		c.byShape[shape] = id
	}
	return sc.Err()
}

func (c *RerereCache) save() error {
	dir := filepath.Dir(c.mapPath)
	tmp, err := os.CreateTemp(dir, ".rerere-*.tmp")
	if err != nil {
		return fmt.Errorf("index: rerere: save %s: %w", c.mapPath, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	var buf bytes.Buffer
	for shape, id := range c.byShape {
		var shapeBytes [8]byte
		for i := 7; i >= 0; i-- {
			shapeBytes[i] = byte(shape)
			shape >>= 8
		}
		fmt.Fprintf(&buf, "%s %s\n", hex.EncodeToString(shapeBytes[:]), id.String())
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("index: rerere: save %s: %w", c.mapPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("index: rerere: save %s: %w", c.mapPath, err)
	}
	if err := os.Rename(tmpName, c.mapPath); err != nil {
		return fmt.Errorf("index: rerere: save %s: %w", c.mapPath, err)
	}
	return nil
}

// Remember records that the conflict with the given shape was resolved to
// resolved (the full post-image bytes), for future recall.
func (c *RerereCache) Remember(ctx context.Context, shape ShapeHash, resolved []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.blobs.WriteObject(ctx, object.TypeBlob, int64(len(resolved)), bytes.NewReader(resolved))
	if err != nil {
		return fmt.Errorf("index: rerere: remember: %w", err)
	}
	c.byShape[shape] = id
	return c.save()
}

// Recall returns the remembered resolution for shape, if any.
func (c *RerereCache) Recall(ctx context.Context, shape ShapeHash) ([]byte, bool, error) {
	c.mu.Lock()
	id, ok := c.byShape[shape]
	c.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	_, rc, err := c.blobs.OpenObject(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("index: rerere: recall: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, fmt.Errorf("index: rerere: recall: %w", err)
	}
	return data, true, nil
}

// Forget removes any remembered resolution for shape.
func (c *RerereCache) Forget(shape ShapeHash) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byShape[shape]; !ok {
		return nil
	}
	delete(c.byShape, shape)
	return c.save()
}
