// Copyright 2021 The gg Authors
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

package packfile

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"vcskit.dev/pkg/git/object"
)

// maxDeltaObjectSize bounds how large a base object Undeltifier.Undeltify will
// buffer in memory while resolving a chain.
const maxDeltaObjectSize = 1 << 32

// fileHeaderSize is the length in bytes of a packfile's leading "PACK" magic,
// version, and object count fields.
const fileHeaderSize = 12

var (
	errTooShort = errors.New("packfile: object data shorter than header size")
	errTooLong  = errors.New("packfile: object data longer than header size")
)

// readFileHeader parses the 12-byte packfile signature, verifies the version,
// and returns the number of objects the file claims to hold.
func readFileHeader(r io.Reader) (uint32, error) {
	var buf [fileHeaderSize]byte
	if _, err := readFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	if buf[0] != 'P' || buf[1] != 'A' || buf[2] != 'C' || buf[3] != 'K' {
		return 0, errors.New("read header: incorrect signature")
	}
	version := ntohl(buf[4:8])
	if version != 2 {
		return 0, fmt.Errorf("read header: version is %d (only supports 2)", version)
	}
	return ntohl(buf[8:12]), nil
}

// ReadHeader parses a single object header from r, which must be positioned at
// the start of an object record within a packfile. offset is the byte
// position of the header within the packfile and is recorded on the returned
// Header so that callers can use it as a delta base reference.
func ReadHeader(offset int64, r ByteReader) (*Header, error) {
	typ, size, err := readLengthType(r)
	if err != nil {
		return nil, fmt.Errorf("packfile: read object header at %d: %w", offset, err)
	}
	hdr := &Header{Offset: offset, Type: typ, Size: size}
	switch typ {
	case OffsetDelta:
		delta, err := readOffset(r)
		if err != nil {
			return nil, fmt.Errorf("packfile: read object header at %d: %w", offset, err)
		}
		hdr.BaseOffset = offset + delta
	case RefDelta:
		if _, err := readFull(r, hdr.BaseObject[:]); err != nil {
			return nil, fmt.Errorf("packfile: read object header at %d: %w", offset, err)
		}
	}
	return hdr, nil
}

// readObjectHeader is the unexported name used by earlier call sites; it
// behaves identically to ReadHeader.
func readObjectHeader(offset int64, r ByteReader) (*Header, error) {
	return ReadHeader(offset, r)
}

// NonDelta returns the object.Type that corresponds to typ, or the empty
// string if typ is one of the delta representations (OffsetDelta, RefDelta).
func (typ ObjectType) NonDelta() object.Type {
	switch typ {
	case Commit:
		return object.TypeCommit
	case Tree:
		return object.TypeTree
	case Blob:
		return object.TypeBlob
	case Tag:
		return object.TypeTag
	default:
		return ""
	}
}

// newZlibReader allocates a fresh zlibReader over r.
func newZlibReader(r io.Reader) (zlibReader, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, err
	}
	return zr.(zlibReader), nil
}

// setZlibReader (re)initializes z to decompress from r, reusing the
// underlying flate state when possible. This avoids an allocation per object
// when an Undeltifier walks a long delta chain.
func setZlibReader(z *zlibReader, r io.Reader) error {
	if *z == nil {
		zr, err := newZlibReader(r)
		if err != nil {
			return err
		}
		*z = zr
		return nil
	}
	return (*z).Reset(r, nil)
}

// emptyReader is an io.Reader that always reports EOF. It is used to drop a
// zlibReader's reference to its underlying stream without allocating a new
// reader.
type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }

// ReadSeekCloser is the interface that groups io.Reader, io.Seeker, and
// io.Closer, as satisfied by an open object file.
type ReadSeekCloser interface {
	io.Reader
	io.Seeker
	io.Closer
}
