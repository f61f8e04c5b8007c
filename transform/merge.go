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

package transform

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"vcskit.dev/pkg/git/githash"
)

// MergeState is a merge's persisted parameters.
type MergeState struct {
	// Heads are the other parents being merged into HEAD, in the order
	// given to Begin.
	Heads []githash.SHA1
	// Message is the in-progress commit message.
	Message string
}

// MergeStore persists a single non-fast-forward merge in progress, under
// "<gitDir>/MERGE_HEAD" and "<gitDir>/MERGE_MSG", matching upstream Git's
// on-disk layout for the same state.
type MergeStore struct {
	gitDir string
}

func newMergeStore(gitDir string) *MergeStore {
	return &MergeStore{gitDir: gitDir}
}

func (s *MergeStore) headPath() string { return filepath.Join(s.gitDir, "MERGE_HEAD") }
func (s *MergeStore) msgPath() string  { return filepath.Join(s.gitDir, "MERGE_MSG") }

// IsInProgress reports whether a merge is currently recorded.
func (s *MergeStore) IsInProgress() bool {
	return exists(s.headPath())
}

// Begin records the start of a merge. It fails with ErrAlreadyInProgress if
// one is already recorded.
func (s *MergeStore) Begin(heads []githash.SHA1, message string) error {
	if s.IsInProgress() {
		return fmt.Errorf("begin merge: %w", ErrAlreadyInProgress)
	}
	lines := make([]string, len(heads))
	for i, h := range heads {
		lines[i] = h.String()
	}
	if err := writeFile(s.headPath(), strings.Join(lines, "\n")+"\n"); err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	if err := writeFile(s.msgPath(), message); err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	return nil
}

// Read returns the current merge state.
func (s *MergeStore) Read() (MergeState, error) {
	data, err := readFile(s.headPath())
	if err != nil {
		return MergeState{}, fmt.Errorf("read merge state: %w", err)
	}
	var heads []githash.SHA1
	for _, line := range strings.Split(strings.TrimSpace(data), "\n") {
		if line == "" {
			continue
		}
		h, err := githash.ParseSHA1(line)
		if err != nil {
			return MergeState{}, fmt.Errorf("read merge state: %w", err)
		}
		heads = append(heads, h)
	}
	msg, err := readFile(s.msgPath())
	if err != nil && !errors.Is(err, ErrNotInProgress) {
		return MergeState{}, fmt.Errorf("read merge state: %w", err)
	}
	return MergeState{Heads: heads, Message: msg}, nil
}

// UpdateMessage rewrites the in-progress commit message.
func (s *MergeStore) UpdateMessage(message string) error {
	if !s.IsInProgress() {
		return fmt.Errorf("update merge message: %w", ErrNotInProgress)
	}
	if err := writeFile(s.msgPath(), message); err != nil {
		return fmt.Errorf("update merge message: %w", err)
	}
	return nil
}

// Complete clears the merge state after its commit has been recorded.
func (s *MergeStore) Complete() error {
	return s.clear("complete merge")
}

// Abort clears the merge state without committing.
func (s *MergeStore) Abort() error {
	return s.clear("abort merge")
}

func (s *MergeStore) clear(op string) error {
	if err := removeFile(s.headPath()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := removeFile(s.msgPath()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
