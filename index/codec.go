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
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

// Wire format constants for the "DIRC" index, versions 2 through 4.
// https://github.com/git/git/blob/master/Documentation/gitformat-index.txt
const (
	indexMagic = "DIRC"

	// fixedEntrySize is the length of every entry's fixed fields (ctime
	// through the base flags field), before the variable-length path.
	fixedEntrySize = 62

	entryAlignment = 8

	flagPathLenMask  = 0x0fff
	flagExtendedBit  = 0x4000
	flagStageMask    = 0x3000
	flagStageShift   = 12
	flagAssumeValidBit = 0x8000

	extFlagIntentToAddBit  = 0x2000
	extFlagSkipWorktreeBit = 0x4000
)

// Decode parses the Git index binary format (versions 2-4) from r.
func Decode(r io.Reader) (*Index, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("index: decode: %w", err)
	}
	return decodeBytes(data)
}

func decodeBytes(data []byte) (*Index, error) {
	const headerSize = 12
	if len(data) < headerSize+githash.SHA1Size {
		return nil, fmt.Errorf("index: decode: file too short")
	}
	if string(data[:4]) != indexMagic {
		return nil, fmt.Errorf("index: decode: bad magic %q", data[:4])
	}
	version := binary.BigEndian.Uint32(data[4:8])
	if version < 2 || version > 4 {
		return nil, fmt.Errorf("index: decode: unsupported version %d", version)
	}
	numEntries := binary.BigEndian.Uint32(data[8:12])

	body := data[:len(data)-githash.SHA1Size]
	wantChecksum := data[len(data)-githash.SHA1Size:]
	gotChecksum := sha1.Sum(body)
	if !bytes.Equal(gotChecksum[:], wantChecksum) {
		return nil, fmt.Errorf("index: decode: checksum mismatch")
	}

	idx := &Index{Version: version}
	offset := headerSize
	var prevPath string
	for i := uint32(0); i < numEntries; i++ {
		ent, consumed, path, err := decodeEntry(data, offset, version, prevPath)
		if err != nil {
			return nil, fmt.Errorf("index: decode: entry %d: %w", i, err)
		}
		ent.Path = path
		idx.entries = append(idx.entries, ent)
		prevPath = path
		offset += consumed
	}
	return idx, nil
}

func decodeEntry(data []byte, offset int, version uint32, prevPath string) (Entry, int, string, error) {
	if offset+fixedEntrySize > len(data) {
		return Entry{}, 0, "", fmt.Errorf("truncated fixed fields")
	}
	p := data[offset:]
	var e Entry
	e.CtimeSec = binary.BigEndian.Uint32(p[0:4])
	e.CtimeNsec = binary.BigEndian.Uint32(p[4:8])
	e.MtimeSec = binary.BigEndian.Uint32(p[8:12])
	e.MtimeNsec = binary.BigEndian.Uint32(p[12:16])
	e.Dev = binary.BigEndian.Uint32(p[16:20])
	e.Ino = binary.BigEndian.Uint32(p[20:24])
	e.Mode = object.Mode(binary.BigEndian.Uint32(p[24:28]))
	e.UID = binary.BigEndian.Uint32(p[28:32])
	e.GID = binary.BigEndian.Uint32(p[32:36])
	e.Size = int64(binary.BigEndian.Uint32(p[36:40]))
	copy(e.ObjectID[:], p[40:60])
	flags := binary.BigEndian.Uint16(p[60:62])
	e.Stage = Stage((flags & flagStageMask) >> flagStageShift)
	e.AssumeValid = flags&flagAssumeValidBit != 0
	pathLen := int(flags & flagPathLenMask)
	extended := flags&flagExtendedBit != 0

	cursor := offset + fixedEntrySize
	if extended {
		if version < 3 {
			return Entry{}, 0, "", fmt.Errorf("extended flag set in v%d entry", version)
		}
		if cursor+2 > len(data) {
			return Entry{}, 0, "", fmt.Errorf("truncated extended flags")
		}
		extFlags := binary.BigEndian.Uint16(data[cursor : cursor+2])
		e.SkipWorktree = extFlags&extFlagSkipWorktreeBit != 0
		e.IntentToAdd = extFlags&extFlagIntentToAddBit != 0
		cursor += 2
	}

	var path string
	var afterPath int
	if version >= 4 {
		stripLen, n, err := binary.Varint(data[cursor:])
		if n <= 0 {
			return Entry{}, 0, "", fmt.Errorf("malformed v4 path prefix varint: %v", err)
		}
		cursor += n
		nul := bytes.IndexByte(data[cursor:], 0)
		if nul == -1 {
			return Entry{}, 0, "", fmt.Errorf("missing NUL after v4 path suffix")
		}
		suffix := string(data[cursor : cursor+nul])
		if int(stripLen) > len(prevPath) {
			return Entry{}, 0, "", fmt.Errorf("v4 path prefix strip length exceeds previous path")
		}
		path = prevPath[:len(prevPath)-int(stripLen)] + suffix
		afterPath = cursor + nul + 1
		// Version 4 entries are NOT padded to an 8-byte boundary.
		return e, afterPath - offset, path, nil
	}

	if pathLen == flagPathLenMask {
		nul := bytes.IndexByte(data[cursor:], 0)
		if nul == -1 {
			return Entry{}, 0, "", fmt.Errorf("missing NUL for long path")
		}
		path = string(data[cursor : cursor+nul])
	} else {
		if cursor+pathLen > len(data) {
			return Entry{}, 0, "", fmt.Errorf("path extends beyond entry")
		}
		path = string(data[cursor : cursor+pathLen])
	}
	rawLen := (cursor - offset) + len(path) + 1
	paddedLen := (rawLen + entryAlignment - 1) &^ (entryAlignment - 1)
	return e, paddedLen, path, nil
}

// Encode writes idx to w in its configured version's binary format.
func (idx *Index) Encode(w io.Writer) error {
	version := idx.Version
	if version == 0 {
		version = 2
	}
	var buf bytes.Buffer
	header := make([]byte, 12)
	copy(header, indexMagic)
	binary.BigEndian.PutUint32(header[4:8], version)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(idx.entries)))
	buf.Write(header)

	var prevPath string
	for _, e := range idx.entries {
		encodeEntry(&buf, e, version, prevPath)
		prevPath = e.Path
	}

	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])
	_, err := w.Write(buf.Bytes())
	if err != nil {
		return fmt.Errorf("index: encode: %w", err)
	}
	return nil
}

func encodeEntry(buf *bytes.Buffer, e Entry, version uint32, prevPath string) {
	start := buf.Len()
	var fixed [fixedEntrySize]byte
	binary.BigEndian.PutUint32(fixed[0:4], e.CtimeSec)
	binary.BigEndian.PutUint32(fixed[4:8], e.CtimeNsec)
	binary.BigEndian.PutUint32(fixed[8:12], e.MtimeSec)
	binary.BigEndian.PutUint32(fixed[12:16], e.MtimeNsec)
	binary.BigEndian.PutUint32(fixed[16:20], e.Dev)
	binary.BigEndian.PutUint32(fixed[20:24], e.Ino)
	binary.BigEndian.PutUint32(fixed[24:28], uint32(e.Mode))
	binary.BigEndian.PutUint32(fixed[28:32], e.UID)
	binary.BigEndian.PutUint32(fixed[32:36], e.GID)
	binary.BigEndian.PutUint32(fixed[36:40], uint32(e.Size))
	copy(fixed[40:60], e.ObjectID[:])

	extended := version >= 3 && (e.SkipWorktree || e.IntentToAdd)
	pathLen := len(e.Path)
	flagPath := pathLen
	if flagPath > flagPathLenMask {
		flagPath = flagPathLenMask
	}
	flags := uint16(flagPath) | uint16(e.Stage)<<flagStageShift
	if e.AssumeValid {
		flags |= flagAssumeValidBit
	}
	if extended {
		flags |= flagExtendedBit
	}
	binary.BigEndian.PutUint16(fixed[60:62], flags)
	buf.Write(fixed[:])

	if extended {
		var extFlags uint16
		if e.SkipWorktree {
			extFlags |= extFlagSkipWorktreeBit
		}
		if e.IntentToAdd {
			extFlags |= extFlagIntentToAddBit
		}
		var eb [2]byte
		binary.BigEndian.PutUint16(eb[:], extFlags)
		buf.Write(eb[:])
	}

	if version >= 4 {
		strip := commonPrefixLen(prevPath, e.Path)
		var varintBuf [binary.MaxVarintLen64]byte
		n := binary.PutVarint(varintBuf[:], int64(len(prevPath)-strip))
		buf.Write(varintBuf[:n])
		buf.WriteString(e.Path[strip:])
		buf.WriteByte(0)
		return // v4 entries are not padded
	}

	buf.WriteString(e.Path)
	buf.WriteByte(0)
	rawLen := buf.Len() - start
	padded := (rawLen + entryAlignment - 1) &^ (entryAlignment - 1)
	for buf.Len()-start < padded {
		buf.WriteByte(0)
	}
}

// commonPrefixLen returns how many leading bytes a and b share.
func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
