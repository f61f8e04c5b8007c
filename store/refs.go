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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"

	"vcskit.dev/pkg/git/githash"
)

// refValue is a ref's on-disk value: either a direct 40-hex object id, or a
// symbolic "ref: <target>" line.
type refValue struct {
	direct   githash.SHA1
	symbolic githash.Ref
}

func (v refValue) isSymbolic() bool { return v.symbolic != "" }

// RefStore manages the refs of a single repository: "<repo>/.git/HEAD" and
// the "<repo>/.git/refs/..." hierarchy, one file per ref, matching upstream
// Git's loose-ref layout (section 4.1's on-disk model). Symbolic refs and
// compare-and-swap semantics mirror what a plumbing-level ref transaction
// needs for checkout/branch/merge to remain race-safe.
//
// Resolution additionally keeps a non-canonical cockroachdb/pebble-backed
// cache mapping ref name to its last-resolved object id, to short-circuit
// repeated symbolic chases (e.g. resolving HEAD -> refs/heads/main -> commit)
// within a single command invocation. The files on disk remain the source of
// truth; every mutating call invalidates the relevant cache entries.
type RefStore struct {
	gitDir string
	log    zerolog.Logger

	mu    sync.Mutex
	cache *pebble.DB // nil if the cache could not be opened; treated as a pure optimization
}

// NewRefStore returns a RefStore rooted at gitDir (e.g. "<repo>/.git").
// cacheDir, if non-empty, is used for the resolution cache; if the cache
// cannot be opened, NewRefStore proceeds without one rather than failing,
// since the cache is not required for correctness.
func NewRefStore(gitDir, cacheDir string, log zerolog.Logger) *RefStore {
	rs := &RefStore{gitDir: gitDir, log: log}
	if cacheDir == "" {
		return rs
	}
	db, err := pebble.Open(cacheDir, &pebble.Options{})
	if err != nil {
		log.Warn().Err(err).Msg("ref resolution cache unavailable, resolving from disk only")
		return rs
	}
	rs.cache = db
	return rs
}

// Close releases the resolution cache, if one is open.
func (rs *RefStore) Close() error {
	if rs.cache == nil {
		return nil
	}
	return rs.cache.Close()
}

func (rs *RefStore) path(ref githash.Ref) string {
	if ref == githash.Head || ref == githash.FetchHead {
		return filepath.Join(rs.gitDir, ref.String())
	}
	return filepath.Join(rs.gitDir, filepath.FromSlash(ref.String()))
}

// get reads the raw value stored at ref, without following symbolic refs.
func (rs *RefStore) get(ref githash.Ref) (refValue, error) {
	data, err := os.ReadFile(rs.path(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return refValue{}, fmt.Errorf("ref %s: %w", ref, ErrNotFound)
		}
		return refValue{}, fmt.Errorf("read ref %s: %w", ref, err)
	}
	line := strings.TrimSpace(string(data))
	if target, ok := strings.CutPrefix(line, "ref: "); ok {
		return refValue{symbolic: githash.Ref(strings.TrimSpace(target))}, nil
	}
	id, err := githash.ParseSHA1(line)
	if err != nil {
		return refValue{}, fmt.Errorf("ref %s: %w", ref, err)
	}
	return refValue{direct: id}, nil
}

// Has reports whether ref exists (as a direct or symbolic ref).
func (rs *RefStore) Has(ref githash.Ref) bool {
	_, err := os.Lstat(rs.path(ref))
	return err == nil
}

// Target returns ref's raw stored value without following symbolic chains
// beyond a single hop: if ref is symbolic, symbolic is true and target holds
// what it points at; otherwise id holds the direct object id it names.
func (rs *RefStore) Target(ref githash.Ref) (id githash.SHA1, target githash.Ref, symbolic bool, err error) {
	v, err := rs.get(ref)
	if err != nil {
		return githash.SHA1{}, "", false, err
	}
	if v.isSymbolic() {
		return githash.SHA1{}, v.symbolic, true, nil
	}
	return v.direct, "", false, nil
}

// Resolve follows ref through any chain of symbolic refs to a direct object
// id. It detects cycles via a visited set rather than a fixed depth limit,
// since the worst case (pathological symlink-like ref chains) is rare but
// should still terminate instead of looping forever.
func (rs *RefStore) Resolve(ref githash.Ref) (githash.SHA1, error) {
	if id, ok := rs.cacheGet(ref); ok {
		return id, nil
	}
	visited := make(map[githash.Ref]bool)
	cur := ref
	for {
		if visited[cur] {
			return githash.SHA1{}, fmt.Errorf("resolve ref %s: cycle detected at %s", ref, cur)
		}
		visited[cur] = true
		v, err := rs.get(cur)
		if err != nil {
			return githash.SHA1{}, fmt.Errorf("resolve ref %s: %w", ref, err)
		}
		if !v.isSymbolic() {
			rs.cachePut(ref, v.direct)
			return v.direct, nil
		}
		cur = v.symbolic
	}
}

// writeRefFile atomically writes a loose ref file, following the same
// temp-then-rename pattern as LooseStore.Write.
func writeRefFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "ref")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Set writes ref to point directly at id.
func (rs *RefStore) Set(ref githash.Ref, id githash.SHA1) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := writeRefFile(rs.path(ref), id.String()+"\n"); err != nil {
		return fmt.Errorf("set ref %s: %w", ref, err)
	}
	rs.invalidate(ref)
	return nil
}

// SetSymbolic writes ref as a symbolic ref pointing at target.
func (rs *RefStore) SetSymbolic(ref, target githash.Ref) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := writeRefFile(rs.path(ref), "ref: "+target.String()+"\n"); err != nil {
		return fmt.Errorf("set symbolic ref %s: %w", ref, err)
	}
	rs.invalidate(ref)
	return nil
}

// Delete removes ref. It is not an error if ref does not exist.
func (rs *RefStore) Delete(ref githash.Ref) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	err := os.Remove(rs.path(ref))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete ref %s: %w", ref, err)
	}
	rs.invalidate(ref)
	return nil
}

// CompareAndSwap sets ref to newID only if its current resolved value equals
// expected (the zero SHA1 means "ref must not currently exist"). It returns
// ErrCasFailure (wrapped) if the precondition does not hold.
func (rs *RefStore) CompareAndSwap(ref githash.Ref, expected, newID githash.SHA1) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var zero githash.SHA1
	cur, err := rs.get(ref)
	switch {
	case err != nil && errors.Is(err, ErrNotFound):
		if expected != zero {
			return fmt.Errorf("compare-and-swap %s: %w", ref, ErrCasFailure)
		}
	case err != nil:
		return fmt.Errorf("compare-and-swap %s: %w", ref, err)
	case cur.isSymbolic():
		return fmt.Errorf("compare-and-swap %s: ref is symbolic", ref)
	default:
		if cur.direct != expected {
			return fmt.Errorf("compare-and-swap %s: %w", ref, ErrCasFailure)
		}
	}
	if err := writeRefFile(rs.path(ref), newID.String()+"\n"); err != nil {
		return fmt.Errorf("compare-and-swap %s: %w", ref, err)
	}
	rs.invalidate(ref)
	return nil
}

// List returns every ref under the given prefix (e.g. "refs/heads/"),
// sorted lexically.
func (rs *RefStore) List(prefix string) ([]githash.Ref, error) {
	root := filepath.Join(rs.gitDir, filepath.FromSlash(prefix))
	var refs []githash.Ref
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(rs.gitDir, path)
		if err != nil {
			return err
		}
		refs = append(refs, githash.Ref(filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list refs %s: %w", prefix, err)
	}
	return refs, nil
}

func (rs *RefStore) cacheKey(ref githash.Ref) []byte {
	return []byte("ref\x00" + ref.String())
}

func (rs *RefStore) cacheGet(ref githash.Ref) (githash.SHA1, bool) {
	if rs.cache == nil {
		return githash.SHA1{}, false
	}
	v, closer, err := rs.cache.Get(rs.cacheKey(ref))
	if err != nil {
		return githash.SHA1{}, false
	}
	defer closer.Close()
	var id githash.SHA1
	if len(v) != len(id) {
		return githash.SHA1{}, false
	}
	copy(id[:], v)
	return id, true
}

func (rs *RefStore) cachePut(ref githash.Ref, id githash.SHA1) {
	if rs.cache == nil {
		return
	}
	if err := rs.cache.Set(rs.cacheKey(ref), id[:], pebble.NoSync); err != nil {
		rs.log.Warn().Err(err).Str("ref", ref.String()).Msg("failed to populate ref resolution cache")
	}
}

// invalidate drops every cached resolution. A mutation to any ref can
// invalidate resolutions of other refs that chase through it symbolically
// (e.g. advancing a branch invalidates HEAD's cached resolution when HEAD
// points at that branch), so tracking per-ref reverse edges isn't worth it:
// the cache exists only to avoid repeated symbolic-chain disk reads within
// one command, and a full flush on any Set/SetSymbolic/Delete/CompareAndSwap
// keeps it trivially correct.
func (rs *RefStore) invalidate(ref githash.Ref) {
	if rs.cache == nil {
		return
	}
	rs.flushCache()
}

func (rs *RefStore) flushCache() {
	iter, err := rs.cache.NewIter(&pebble.IterOptions{
		LowerBound: []byte("ref\x00"),
		UpperBound: []byte("ref\x01"),
	})
	if err != nil {
		return
	}
	defer iter.Close()
	var keys [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		k := append([]byte(nil), iter.Key()...)
		keys = append(keys, k)
	}
	for _, k := range keys {
		rs.cache.Delete(k, pebble.NoSync)
	}
}
