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
	"fmt"
	"time"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

// Resolution describes how a conflicted path was resolved.
type Resolution struct {
	ObjectID githash.SHA1
	Mode     object.Mode
}

// MarkResolved replaces every stage entry for path with a single stage-0
// entry reflecting res, clearing the conflict.
func (idx *Index) MarkResolved(path string, res Resolution, mtime time.Time) error {
	if _, ok := idx.GetEntry(path); !ok && len(idx.GetEntries(path)) == 0 {
		return fmt.Errorf("index: mark resolved %s: no entry", path)
	}
	idx.removeAllStages(path)
	idx.put(Entry{
		Path:      path,
		Stage:     StageNormal,
		Mode:      res.Mode,
		ObjectID:  res.ObjectID,
		MtimeSec:  uint32(mtime.Unix()),
		MtimeNsec: uint32(mtime.Nanosecond()),
	})
	return nil
}

// AcceptOurs resolves path by keeping the stage-2 ("ours") entry.
func (idx *Index) AcceptOurs(path string, mtime time.Time) error {
	return idx.acceptSide(path, StageOurs, mtime)
}

// AcceptTheirs resolves path by keeping the stage-3 ("theirs") entry.
func (idx *Index) AcceptTheirs(path string, mtime time.Time) error {
	return idx.acceptSide(path, StageTheirs, mtime)
}

func (idx *Index) acceptSide(path string, stage Stage, mtime time.Time) error {
	entries := idx.GetEntries(path)
	for _, e := range entries {
		if e.Stage == stage {
			return idx.MarkResolved(path, Resolution{ObjectID: e.ObjectID, Mode: e.Mode}, mtime)
		}
	}
	// The side being accepted was deleted relative to base: accepting it
	// means the path itself is deleted.
	idx.removeAllStages(path)
	return nil
}

// conflictMarkerPrefixes are the three lines upstream Git inserts around a
// textual conflict; their presence anywhere in a path's worktree content
// means the conflict has not actually been resolved yet.
var conflictMarkerPrefixes = [][]byte{
	[]byte("<<<<<<< "),
	[]byte("======="),
	[]byte(">>>>>>> "),
}

// ContainsConflictMarkers reports whether content still has any of the
// textual conflict marker lines.
func ContainsConflictMarkers(content []byte) bool {
	for _, line := range bytes.Split(content, []byte("\n")) {
		for _, marker := range conflictMarkerPrefixes {
			if bytes.HasPrefix(line, marker) {
				return true
			}
		}
	}
	return false
}

// MarkAllResolved scans every currently conflicted path, reading its
// present worktree content via readWorktree, and promotes it to stage-0
// (using res for the new object id and mode) when that content no longer
// contains conflict markers. Paths whose content still has markers, or
// whose content can't be read, are left conflicted.
func (idx *Index) MarkAllResolved(readWorktree func(path string) ([]byte, error), res func(path string) (Resolution, error), mtime time.Time) error {
	for _, path := range idx.GetConflictPaths() {
		content, err := readWorktree(path)
		if err != nil {
			continue
		}
		if ContainsConflictMarkers(content) {
			continue
		}
		r, err := res(path)
		if err != nil {
			return fmt.Errorf("index: mark all resolved: %s: %w", path, err)
		}
		if err := idx.MarkResolved(path, r, mtime); err != nil {
			return err
		}
	}
	return nil
}
