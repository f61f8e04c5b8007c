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
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

// LooseStore stores Git objects as individually DEFLATE-compressed files
// under dir, mirroring the on-disk layout of a real .git/objects directory
// (fan-out by the first hash byte). Unlike packfile.ObjectDir, which the
// pack builder uses as an uncompressed seekable scratch space, LooseStore
// produces and reads files byte-identical to upstream Git's loose objects.
type LooseStore struct {
	dir string
}

// NewLooseStore returns a LooseStore rooted at dir (typically
// "<repo>/.git/objects").
func NewLooseStore(dir string) *LooseStore {
	return &LooseStore{dir: dir}
}

func (ls *LooseStore) path(id githash.SHA1) string {
	hexID := hex.EncodeToString(id[:])
	return filepath.Join(ls.dir, hexID[:2], hexID[2:])
}

// Has reports whether id exists as a loose object.
func (ls *LooseStore) Has(id githash.SHA1) bool {
	_, err := os.Stat(ls.path(id))
	return err == nil
}

// Write compresses and writes a framed object (prefix + payload read from r,
// exactly size bytes) to storage, returning its id. The write is atomic: a
// temp file is written and renamed into place only once the payload hash is
// known to be internally consistent.
func (ls *LooseStore) Write(typ object.Type, size int64, r io.Reader) (githash.SHA1, error) {
	if err := os.MkdirAll(ls.dir, 0o777); err != nil {
		return githash.SHA1{}, fmt.Errorf("loose store: write %s: %w", typ, err)
	}
	tmp, err := os.CreateTemp(ls.dir, "obj")
	if err != nil {
		return githash.SHA1{}, fmt.Errorf("loose store: write %s: %w", typ, err)
	}
	tmpName := tmp.Name()
	removeTmp := true
	defer func() {
		if removeTmp {
			os.Remove(tmpName)
		}
	}()

	h := sha1.New()
	zw := zlib.NewWriter(tmp)
	mw := io.MultiWriter(h, zw)

	prefix := object.AppendPrefix(nil, typ, size)
	if _, err := mw.Write(prefix); err != nil {
		tmp.Close()
		return githash.SHA1{}, fmt.Errorf("loose store: write %s: %w", typ, err)
	}
	n, err := io.Copy(mw, r)
	if err != nil {
		tmp.Close()
		return githash.SHA1{}, fmt.Errorf("loose store: write %s: %w", typ, err)
	}
	if n != size {
		tmp.Close()
		return githash.SHA1{}, fmt.Errorf("loose store: write %s: wrote %d bytes, expected %d", typ, n, size)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return githash.SHA1{}, fmt.Errorf("loose store: write %s: %w", typ, err)
	}
	if err := tmp.Close(); err != nil {
		return githash.SHA1{}, fmt.Errorf("loose store: write %s: %w", typ, err)
	}

	var id githash.SHA1
	h.Sum(id[:0])
	dst := ls.path(id)
	if err := os.MkdirAll(filepath.Dir(dst), 0o777); err != nil {
		return githash.SHA1{}, fmt.Errorf("loose store: write %s %v: %w", typ, id, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return githash.SHA1{}, fmt.Errorf("loose store: write %s %v: %w", typ, id, err)
	}
	removeTmp = false
	return id, nil
}

// Open opens the loose object with the given id, returning its prefix and a
// reader for its payload. The caller must Close the reader.
func (ls *LooseStore) Open(id githash.SHA1) (object.Prefix, io.ReadCloser, error) {
	f, err := os.Open(ls.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return object.Prefix{}, nil, fmt.Errorf("loose store: open %v: %w", id, ErrNotFound)
		}
		return object.Prefix{}, nil, fmt.Errorf("loose store: open %v: %w", id, err)
	}
	zr, err := zlib.NewReader(f)
	if err != nil {
		f.Close()
		return object.Prefix{}, nil, fmt.Errorf("loose store: open %v: %w", id, err)
	}
	br := &prefixReader{zr: zr, f: f}
	prefix, err := br.readPrefix()
	if err != nil {
		zr.Close()
		f.Close()
		return object.Prefix{}, nil, fmt.Errorf("loose store: open %v: %w", id, err)
	}
	return prefix, br, nil
}

// Delete removes the loose object with the given id. It is not an error if
// the object does not exist.
func (ls *LooseStore) Delete(id githash.SHA1) error {
	err := os.Remove(ls.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loose store: delete %v: %w", id, err)
	}
	return nil
}

// Walk calls fn for every loose object id present in the store.
func (ls *LooseStore) Walk(fn func(githash.SHA1) error) error {
	fanouts, err := os.ReadDir(ls.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loose store: walk: %w", err)
	}
	for _, fanout := range fanouts {
		if !fanout.IsDir() || len(fanout.Name()) != 2 {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(ls.dir, fanout.Name()))
		if err != nil {
			return fmt.Errorf("loose store: walk: %w", err)
		}
		for _, ent := range entries {
			hexID := fanout.Name() + ent.Name()
			if len(hexID) != githash.SHA1Size*2 {
				continue
			}
			id, err := githash.ParseSHA1(hexID)
			if err != nil {
				continue
			}
			if err := fn(id); err != nil {
				return err
			}
		}
	}
	return nil
}

type prefixReader struct {
	zr io.ReadCloser
	f  *os.File
}

func (pr *prefixReader) readPrefix() (object.Prefix, error) {
	buf := make([]byte, 0, 64)
	one := make([]byte, 1)
	for {
		n, err := pr.zr.Read(one)
		if n == 0 && err != nil {
			return object.Prefix{}, err
		}
		buf = append(buf, one[:n]...)
		if n > 0 && one[0] == 0 {
			break
		}
		if len(buf) > 64 {
			return object.Prefix{}, fmt.Errorf("missing object prefix")
		}
	}
	var prefix object.Prefix
	if err := prefix.UnmarshalBinary(buf); err != nil {
		return object.Prefix{}, err
	}
	return prefix, nil
}

func (pr *prefixReader) Read(p []byte) (int, error) {
	return pr.zr.Read(p)
}

func (pr *prefixReader) Close() error {
	zerr := pr.zr.Close()
	ferr := pr.f.Close()
	if zerr != nil {
		return zerr
	}
	return ferr
}
