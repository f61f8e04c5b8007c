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
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
	"vcskit.dev/pkg/git/packfile"
)

// Delta engine tunables (section 4.2). Defaults match the spec.
const (
	DefaultMaxRatio      = 0.75
	DefaultMinSize       = 50
	DefaultMaxChainDepth = 50
)

// pendingDelta is one accepted deltification, held in memory until EndBatch
// knows the final object count and can open the real packfile.Writer.
type pendingDelta struct {
	target githash.SHA1
	base   githash.SHA1
	delta  []byte
}

// Batch is a write transaction over the delta engine. While a batch is open,
// Deltify calls accumulate in memory; EndBatch writes them all into a single
// new pack and publishes it atomically, CancelBatch discards them. Batches
// are not nestable: the store models Idle/InBatch as two distinct states
// (per the duck-typed-store re-architecture guidance) rather than a flag
// checked at each call.
type Batch struct {
	ID    string
	store *Store

	maxRatio      float64
	minSize       int64
	maxChainDepth int

	pending []pendingDelta
	closed  bool
}

// BatchOptions configures the thresholds used by Batch.Deltify. The zero
// value uses the spec's defaults.
type BatchOptions struct {
	MaxRatio      float64
	MinSize       int64
	MaxChainDepth int
}

func (o BatchOptions) withDefaults() BatchOptions {
	if o.MaxRatio <= 0 {
		o.MaxRatio = DefaultMaxRatio
	}
	if o.MinSize <= 0 {
		o.MinSize = DefaultMinSize
	}
	if o.MaxChainDepth <= 0 {
		o.MaxChainDepth = DefaultMaxChainDepth
	}
	return o
}

// StartBatch opens a batch on s. It returns ErrBatchInProgress (wrapped) if a
// batch is already open.
func (s *Store) StartBatch(opts BatchOptions) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batch != nil {
		return nil, fmt.Errorf("store: start batch: %w", ErrBatchInProgress)
	}
	opts = opts.withDefaults()
	b := &Batch{
		ID:            uuid.NewString(),
		store:         s,
		maxRatio:      opts.MaxRatio,
		minSize:       opts.MinSize,
		maxChainDepth: opts.MaxChainDepth,
	}
	s.batch = b
	s.log.Info().Str("batch", b.ID).Msg("batch started")
	return b, nil
}

// Deltify attempts to rewrite target as a delta against the best of
// candidates, per the selection rule in section 4.2: lowest compression
// ratio among candidates satisfying ratio <= maxRatio and
// target-size >= minSize, without pushing the resulting chain past
// maxChainDepth. It returns whether deltification happened; returning
// (false, nil) is the DeltaNotBeneficial soft outcome, not an error.
func (b *Batch) Deltify(ctx context.Context, target githash.SHA1, candidates []githash.SHA1) (bool, error) {
	if b.closed {
		return false, fmt.Errorf("store: deltify: %w", ErrNoBatch)
	}
	_, targetBytes, err := b.readFull(ctx, target)
	if err != nil {
		return false, fmt.Errorf("store: deltify %v: %w", target, err)
	}
	if int64(len(targetBytes)) < b.minSize {
		return false, nil
	}

	type attempt struct {
		ratio float64
		delta pendingDelta
		ok    bool
	}
	attempts := make([]attempt, len(candidates))
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	g, gctx := errgroup.WithContext(ctx)
	for i, cand := range candidates {
		i, cand := i, cand
		if cand == target || b.store.depthOf(cand)+1 > b.maxChainDepth {
			continue
		}
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			_, candBytes, err := b.readFull(gctx, cand)
			if err != nil {
				return nil // candidate unreadable: simply not a contender
			}
			delta := computeDelta(candBytes, targetBytes)
			ratio := float64(len(delta)) / float64(len(targetBytes))
			if ratio > b.maxRatio {
				return nil
			}
			attempts[i] = attempt{ratio: ratio, delta: pendingDelta{target: target, base: cand, delta: delta}, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, fmt.Errorf("store: deltify %v: %w", target, err)
	}

	var best *pendingDelta
	var bestRatio float64
	for _, a := range attempts {
		if !a.ok {
			continue
		}
		if best == nil || a.ratio < bestRatio {
			d := a.delta
			best = &d
			bestRatio = a.ratio
		}
	}
	if best == nil {
		return false, nil
	}

	b.pending = append(b.pending, *best)
	b.store.setDepth(target, b.store.depthOf(best.base)+1)
	return true, nil
}

// readFull reads an object's entire payload, for use by the delta search
// (which needs whole candidate/target bytes to compute a delta against).
func (b *Batch) readFull(ctx context.Context, id githash.SHA1) (object.Prefix, []byte, error) {
	prefix, rc, err := b.store.OpenObject(ctx, id)
	if err != nil {
		return object.Prefix{}, nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return object.Prefix{}, nil, err
	}
	return prefix, data, nil
}

// EndBatch finalizes the pack being built, publishing every deltification
// made during the batch as a single new pack with a matching .idx. Loose
// copies of objects that became deltas are removed only after the pack is
// durably in place.
func (b *Batch) EndBatch() error {
	if b.closed {
		return fmt.Errorf("store: end batch: %w", ErrNoBatch)
	}
	b.closed = true
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	defer func() { b.store.batch = nil }()

	if len(b.pending) == 0 {
		return nil
	}

	packDir := filepath.Join(b.store.dir, "pack")
	if err := os.MkdirAll(packDir, 0o777); err != nil {
		return fmt.Errorf("store: end batch: %w", err)
	}
	tmp, err := os.CreateTemp(packDir, "tmp_pack_*.pack")
	if err != nil {
		return fmt.Errorf("store: end batch: %w", err)
	}
	tmpPath := tmp.Name()

	w := packfile.NewWriter(tmp, uint32(len(b.pending)))
	var idx packfile.Index
	for _, pd := range b.pending {
		hdr := &packfile.Header{
			Type:       packfile.RefDelta,
			Size:       int64(len(pd.delta)),
			BaseObject: pd.base,
		}
		offset, err := w.WriteHeader(hdr)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("store: end batch: %w", err)
		}
		if _, err := w.Write(pd.delta); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("store: end batch: %w", err)
		}
		idx.Offsets = append(idx.Offsets, offset)
		idx.ObjectIDs = append(idx.ObjectIDs, pd.target)
		idx.PackedChecksums = append(idx.PackedChecksums, crc32.ChecksumIEEE(pd.delta))
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("store: end batch: %w", err)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("store: end batch: %w", err)
	}
	sum := sha1.New()
	if _, err := io.Copy(sum, tmp); err != nil {
		return fmt.Errorf("store: end batch: %w", err)
	}
	var packSHA1 githash.SHA1
	sum.Sum(packSHA1[:0])
	idx.PackfileSHA1 = packSHA1
	tmp.Close()

	finalBase := filepath.Join(packDir, "pack-"+packSHA1.String())
	if err := os.Rename(tmpPath, finalBase+".pack"); err != nil {
		return fmt.Errorf("store: end batch: %w", err)
	}
	idxFile, err := os.Create(finalBase + ".idx")
	if err != nil {
		return fmt.Errorf("store: end batch: %w", err)
	}
	sortIndex(&idx)
	if err := idx.EncodeV2(idxFile); err != nil {
		idxFile.Close()
		return fmt.Errorf("store: end batch: %w", err)
	}
	if err := idxFile.Close(); err != nil {
		return fmt.Errorf("store: end batch: %w", err)
	}

	if err := b.store.openPack(finalBase); err != nil {
		return fmt.Errorf("store: end batch: %w", err)
	}

	for _, pd := range b.pending {
		if err := b.store.loose.Delete(pd.target); err != nil {
			b.store.log.Warn().Err(err).Str("object", pd.target.String()).Msg("failed to remove loose copy after pack publish")
		}
	}
	b.store.log.Info().Str("batch", b.ID).Int("objects", len(idx.ObjectIDs)).Msg("batch committed")
	return nil
}

// sortIndex reorders idx's parallel slices by ascending object ID, as
// required before encoding (packfile.Index.validate rejects unsorted data).
func sortIndex(idx *packfile.Index) {
	type row struct {
		id       githash.SHA1
		offset   int64
		checksum uint32
	}
	rows := make([]row, len(idx.ObjectIDs))
	for i := range rows {
		rows[i] = row{idx.ObjectIDs[i], idx.Offsets[i], idx.PackedChecksums[i]}
	}
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && bytes.Compare(rows[j-1].id[:], rows[j].id[:]) > 0; j-- {
			rows[j-1], rows[j] = rows[j], rows[j-1]
		}
	}
	for i, r := range rows {
		idx.ObjectIDs[i] = r.id
		idx.Offsets[i] = r.offset
		idx.PackedChecksums[i] = r.checksum
	}
}

// CancelBatch discards everything accumulated during the batch; the
// repository is left exactly as it was before StartBatch.
func (b *Batch) CancelBatch() error {
	if b.closed {
		return fmt.Errorf("store: cancel batch: %w", ErrNoBatch)
	}
	b.closed = true
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	b.store.batch = nil
	b.store.log.Info().Str("batch", b.ID).Msg("batch cancelled")
	return nil
}
