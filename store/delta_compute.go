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
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// blockSize is the rolling-hash block length used to index the base object
// when searching for copyable regions. Git's own delta generator uses a
// similar small block as the minimum match length.
const blockSize = 16

// minCopySize is the shortest match worth emitting as a copy instruction;
// shorter runs are cheaper to inline as insert bytes.
const minCopySize = 4

// maxCopySize is the largest single copy instruction's length field (24
// bits per the pack format).
const maxCopySize = 0xffffff

// computeDelta produces a Git-pack-format delta (the same copy/insert
// instruction encoding that packfile.DeltaReader and packfile.Undeltifier
// already consume) that transforms base into target.
//
// The instruction search is a block-hash longest-match scan: base is indexed
// by blockSize-byte windows, then target is scanned left to right, extending
// any hash hit into the longest matching run before falling back to
// literal bytes. This mirrors the windowed delta search used by real Git
// pack generators.
func computeDelta(base, target []byte) []byte {
	delta := make([]byte, 0, len(target)/2+32)
	delta = appendUvarint(delta, uint64(len(base)))
	delta = appendUvarint(delta, uint64(len(target)))

	index := indexBlocks(base)

	var insertBuf []byte
	flushInsert := func() {
		for len(insertBuf) > 0 {
			n := len(insertBuf)
			if n > 0x7f {
				n = 0x7f
			}
			delta = append(delta, byte(n))
			delta = append(delta, insertBuf[:n]...)
			insertBuf = insertBuf[n:]
		}
	}

	for i := 0; i < len(target); {
		matchOff, matchLen := bestMatch(base, target, index, i)
		if matchLen >= minCopySize {
			flushInsert()
			delta = appendCopyInstruction(delta, matchOff, matchLen)
			i += matchLen
			continue
		}
		insertBuf = append(insertBuf, target[i])
		i++
	}
	flushInsert()
	return delta
}

// indexBlocks maps every blockSize-byte window's hash to the (first few)
// positions it occurs at in base.
func indexBlocks(base []byte) map[uint64][]int {
	index := make(map[uint64][]int)
	if len(base) < blockSize {
		return index
	}
	for i := 0; i+blockSize <= len(base); i++ {
		h := xxhash.Sum64(base[i : i+blockSize])
		positions := index[h]
		if len(positions) < 8 {
			index[h] = append(positions, i)
		}
	}
	return index
}

// bestMatch finds the longest run in base matching target starting at
// target[i], using index to seed candidate base offsets.
func bestMatch(base, target []byte, index map[uint64][]int, i int) (offset, length int) {
	if i+blockSize > len(target) {
		return 0, 0
	}
	h := xxhash.Sum64(target[i : i+blockSize])
	candidates := index[h]
	best := 0
	bestOff := 0
	for _, off := range candidates {
		l := matchLength(base, target, off, i)
		if l > best {
			best = l
			bestOff = off
		}
	}
	if best > maxCopySize {
		best = maxCopySize
	}
	return bestOff, best
}

func matchLength(base, target []byte, baseOff, targetOff int) int {
	n := 0
	for baseOff+n < len(base) && targetOff+n < len(target) && base[baseOff+n] == target[targetOff+n] {
		n++
	}
	return n
}

// appendUvarint appends x in standard LEB128 form, matching
// binary.ReadUvarint (used by packfile.readDeltaHeader).
func appendUvarint(dst []byte, x uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], x)
	return append(dst, buf[:n]...)
}

// appendCopyInstruction appends a "copy from base object" instruction per
// https://git-scm.com/docs/pack-format#_instruction_to_copy_from_base_object
func appendCopyInstruction(dst []byte, offset, size int) []byte {
	var offBytes, sizeBytes [4]byte
	binary.LittleEndian.PutUint32(offBytes[:], uint32(offset))
	binary.LittleEndian.PutUint32(sizeBytes[:], uint32(size))

	instruction := byte(0x80)
	var payload []byte
	for i := 0; i < 4; i++ {
		if offBytes[i] != 0 {
			instruction |= 1 << i
			payload = append(payload, offBytes[i])
		}
	}
	for i := 0; i < 3; i++ {
		if sizeBytes[i] != 0 {
			instruction |= 1 << (4 + i)
			payload = append(payload, sizeBytes[i])
		}
	}
	dst = append(dst, instruction)
	dst = append(dst, payload...)
	return dst
}
