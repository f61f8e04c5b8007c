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

// Package store implements the content-addressed raw object store (L0) and
// the delta engine (L1): computing, applying and chaining deltas over that
// store, plus the batch-oriented repack/GC controller.
package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/rs/zerolog"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
	"vcskit.dev/pkg/git/packfile"
)

// hotCacheSizeCutoff is the largest object size that is eligible for the
// fastcache hot-object cache; larger blobs are read straight from storage.
const hotCacheSizeCutoff = 64 << 10

// Store is the content-addressed object store described in section 4.1, combining
// loose object storage, packfiles, a hot-object cache, and the batch/delta
// machinery of the delta engine (section 4.2). The zero value is not usable; use
// New.
type Store struct {
	dir    string // <repo>/.git/objects
	loose  *LooseStore
	cache  *fastcache.Cache
	log    zerolog.Logger

	mu       sync.Mutex
	packs    []*openPack
	batch    *Batch // nil when Idle
	depthsMu sync.Mutex
	depths   map[githash.SHA1]int // best-known chain depth per object, this process's lifetime

	gcMu      sync.Mutex
	lastGCRun time.Time
}

type openPack struct {
	path string
	f    *os.File
	idx  *packfile.Index
}

// New returns a Store rooted at the given Git objects directory
// ("<repo>/.git/objects"). It opens any existing packfiles found under
// objects/pack.
func New(objectsDir string, log zerolog.Logger) (*Store, error) {
	s := &Store{
		dir:    objectsDir,
		loose:  NewLooseStore(objectsDir),
		cache:  fastcache.New(32 << 20),
		log:    log,
		depths: make(map[githash.SHA1]int),
	}
	if err := s.loadPacks(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadPacks() error {
	packDir := filepath.Join(s.dir, "pack")
	entries, err := os.ReadDir(packDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store: open packs: %w", err)
	}
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".pack" {
			continue
		}
		base := ent.Name()[:len(ent.Name())-len(".pack")]
		if err := s.openPack(filepath.Join(packDir, base)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) openPack(base string) error {
	idxFile, err := os.Open(base + ".idx")
	if err != nil {
		return fmt.Errorf("store: open pack index %s: %w", base, err)
	}
	defer idxFile.Close()
	idx, err := packfile.ReadIndex(idxFile)
	if err != nil {
		return fmt.Errorf("store: read pack index %s: %w", base, err)
	}
	f, err := os.Open(base + ".pack")
	if err != nil {
		return fmt.Errorf("store: open pack %s: %w", base, err)
	}
	s.packs = append(s.packs, &openPack{path: base, f: f, idx: idx})
	return nil
}

// Has reports whether id exists in loose or pack storage.
func (s *Store) Has(id githash.SHA1) bool {
	if s.loose.Has(id) {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.packs {
		if p.idx.FindID(id) != -1 {
			return true
		}
	}
	return false
}

// OpenObject opens the object with the given id, returning its prefix and a
// reader over its payload. It implements object.ObjectReader.
func (s *Store) OpenObject(ctx context.Context, id githash.SHA1) (object.Prefix, io.ReadCloser, error) {
	if cached, ok := s.cacheGet(id); ok {
		prefix, payload := cached.prefix, cached.payload
		return prefix, io.NopCloser(bytes.NewReader(payload)), nil
	}
	if s.loose.Has(id) {
		prefix, rc, err := s.loose.Open(id)
		if err != nil {
			return object.Prefix{}, nil, err
		}
		return prefix, rc, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.packs {
		i := p.idx.FindID(id)
		if i == -1 {
			continue
		}
		var u packfile.Undeltifier
		prefix, r, err := u.Undeltify(packfile.NewBufferedReadSeeker(p.f), p.idx.Offsets[i], &packfile.UndeltifyOptions{Index: p.idx})
		if err != nil {
			return object.Prefix{}, nil, fmt.Errorf("store: open %v: %w", id, err)
		}
		payload, err := io.ReadAll(r)
		if err != nil {
			return object.Prefix{}, nil, fmt.Errorf("store: open %v: %w", id, err)
		}
		s.cachePut(id, prefix, payload)
		return prefix, io.NopCloser(bytes.NewReader(payload)), nil
	}
	return object.Prefix{}, nil, fmt.Errorf("store: open %v: %w", id, ErrNotFound)
}

// WriteObject writes a new loose object of the given type, hashing it as it
// streams. It implements object.ObjectWriter. Writing while a batch is open
// is permitted: non-batched writes simply bypass the pack being built.
func (s *Store) WriteObject(ctx context.Context, typ object.Type, size int64, r io.Reader) (githash.SHA1, error) {
	id, err := s.loose.Write(typ, size, r)
	if err != nil {
		return githash.SHA1{}, err
	}
	s.setDepth(id, 0)
	return id, nil
}

// Size returns the uncompressed payload size of id.
func (s *Store) Size(ctx context.Context, id githash.SHA1) (int64, error) {
	prefix, rc, err := s.OpenObject(ctx, id)
	if err != nil {
		return 0, err
	}
	rc.Close()
	return prefix.Size, nil
}

// Keys returns every object id present in loose or pack storage.
func (s *Store) Keys() ([]githash.SHA1, error) {
	seen := make(map[githash.SHA1]struct{})
	if err := s.loose.Walk(func(id githash.SHA1) error {
		seen[id] = struct{}{}
		return nil
	}); err != nil {
		return nil, err
	}
	s.mu.Lock()
	for _, p := range s.packs {
		for _, id := range p.idx.ObjectIDs {
			seen[id] = struct{}{}
		}
	}
	s.mu.Unlock()
	keys := make([]githash.SHA1, 0, len(seen))
	for id := range seen {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys, nil
}

// Delete removes a loose object. Objects inside a pack cannot be deleted
// individually; they are removed by a repack that excludes them.
func (s *Store) Delete(id githash.SHA1) error {
	return s.loose.Delete(id)
}

type cachedObject struct {
	prefix  object.Prefix
	payload []byte
}

func (s *Store) cacheGet(id githash.SHA1) (cachedObject, bool) {
	raw, ok := s.cache.HasGet(nil, id[:])
	if !ok {
		return cachedObject{}, false
	}
	nul := bytes.IndexByte(raw, 0)
	if nul == -1 {
		return cachedObject{}, false
	}
	var prefix object.Prefix
	if err := prefix.UnmarshalBinary(raw[:nul+1]); err != nil {
		return cachedObject{}, false
	}
	return cachedObject{prefix: prefix, payload: raw[nul+1:]}, true
}

func (s *Store) cachePut(id githash.SHA1, prefix object.Prefix, payload []byte) {
	if int64(len(payload)) > hotCacheSizeCutoff {
		return
	}
	prefixBytes, err := prefix.MarshalBinary()
	if err != nil {
		return
	}
	entry := make([]byte, 0, len(prefixBytes)+len(payload))
	entry = append(entry, prefixBytes...)
	entry = append(entry, payload...)
	s.cache.Set(id[:], entry)
}

// ChainInfo reports the delta-chain depth and on-disk compressed size of a
// packed object, for diagnostics and GC-threshold decisions.
type ChainInfo struct {
	Depth          int
	CompressedSize int64
}

// PackedChainInfo looks up id among the open packs and reports its chain
// depth and compressed size. The second return is false if id is not found
// in any pack (it may still be loose, or absent entirely).
func (s *Store) PackedChainInfo(id githash.SHA1) (ChainInfo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.packs {
		i := p.idx.FindID(id)
		if i == -1 {
			continue
		}
		depth, err := packfile.ChainDepth(packfile.NewBufferedReadSeeker(p.f), p.idx.Offsets[i], &packfile.UndeltifyOptions{Index: p.idx})
		if err != nil {
			return ChainInfo{}, false, fmt.Errorf("store: chain info for %v: %w", id, err)
		}
		size, err := packedEntrySize(p, i)
		if err != nil {
			return ChainInfo{}, false, fmt.Errorf("store: chain info for %v: %w", id, err)
		}
		return ChainInfo{Depth: depth, CompressedSize: size}, true, nil
	}
	return ChainInfo{}, false, nil
}

// packedEntrySize returns the number of compressed on-disk bytes (header
// plus zlib payload) that the i'th object of p occupies, computed as the
// gap to the next entry by offset, or to the pack's trailing checksum for
// the last entry.
func packedEntrySize(p *openPack, i int) (int64, error) {
	offset := p.idx.Offsets[i]
	sorted := append([]int64(nil), p.idx.Offsets...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })
	pos := sort.Search(len(sorted), func(j int) bool { return sorted[j] > offset })
	if pos < len(sorted) {
		return sorted[pos] - offset, nil
	}
	fi, err := p.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("packed entry size: %w", err)
	}
	return fi.Size() - githash.SHA1Size - offset, nil
}

// anyChainExceeds reports whether any object already stored in a pack has a
// delta-chain depth greater than maxDepth.
func (s *Store) anyChainExceeds(maxDepth int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.packs {
		for i, offset := range p.idx.Offsets {
			depth, err := packfile.ChainDepth(packfile.NewBufferedReadSeeker(p.f), offset, &packfile.UndeltifyOptions{Index: p.idx})
			if err != nil {
				return false, fmt.Errorf("store: chain depth for %v: %w", p.idx.ObjectIDs[i], err)
			}
			if depth > maxDepth {
				return true, nil
			}
		}
	}
	return false, nil
}

// undeltifyOverdeepChains finds every packed object whose chain depth
// exceeds maxDepth and undeltifies it, so the repack's window-slide step
// can re-evaluate it as a fresh loose object. It returns the ids it
// undeltified.
func (s *Store) undeltifyOverdeepChains(ctx context.Context, maxDepth int) ([]githash.SHA1, error) {
	s.mu.Lock()
	var overdeep []githash.SHA1
	for _, p := range s.packs {
		for i, offset := range p.idx.Offsets {
			depth, err := packfile.ChainDepth(packfile.NewBufferedReadSeeker(p.f), offset, &packfile.UndeltifyOptions{Index: p.idx})
			if err != nil {
				s.mu.Unlock()
				return nil, fmt.Errorf("store: chain depth for %v: %w", p.idx.ObjectIDs[i], err)
			}
			if depth > maxDepth {
				overdeep = append(overdeep, p.idx.ObjectIDs[i])
			}
		}
	}
	s.mu.Unlock()

	for _, id := range overdeep {
		if err := s.Undeltify(ctx, id); err != nil {
			return nil, err
		}
	}
	return overdeep, nil
}

// Undeltify resolves id's delta chain, if it has one, and writes the full
// bytes back to loose storage; the new loose copy shadows the packed delta
// record on every future lookup (OpenObject and Has both check loose
// first), per the Delete doc comment's note that packed bytes can only be
// dropped by a repack that excludes them. It is a no-op if id is already
// loose or is not a delta object.
func (s *Store) Undeltify(ctx context.Context, id githash.SHA1) error {
	if s.loose.Has(id) {
		return nil
	}
	if info, ok, err := s.PackedChainInfo(id); err == nil && ok && info.Depth == 0 {
		return nil
	}
	prefix, rc, err := s.OpenObject(ctx, id)
	if err != nil {
		return fmt.Errorf("store: undeltify %v: %w", id, err)
	}
	defer rc.Close()
	got, err := s.loose.Write(prefix.Type, prefix.Size, rc)
	if err != nil {
		return fmt.Errorf("store: undeltify %v: %w", id, err)
	}
	if got != id {
		return fmt.Errorf("store: undeltify %v: rehashed to %v", id, got)
	}
	s.setDepth(id, 0)
	return nil
}

func (s *Store) setDepth(id githash.SHA1, depth int) {
	s.depthsMu.Lock()
	s.depths[id] = depth
	s.depthsMu.Unlock()
}

func (s *Store) depthOf(id githash.SHA1) int {
	s.depthsMu.Lock()
	defer s.depthsMu.Unlock()
	return s.depths[id]
}
