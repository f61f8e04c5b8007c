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
	"fmt"
	"path/filepath"
	"strings"

	"vcskit.dev/pkg/git/githash"
)

// CherryPickState is a cherry-pick's persisted parameters.
type CherryPickState struct {
	// Head is the commit currently being applied.
	Head githash.SHA1
	// Message is the in-progress commit message.
	Message string
	// Sequencer is true if more commits are queued behind Head.
	Sequencer bool
}

// CherryPickStore persists a single cherry-pick in progress, under
// "<gitDir>/CHERRY_PICK_HEAD" and "<gitDir>/CHERRY_PICK_MSG". When more
// than one commit is queued, the remaining commits live in the shared
// SequencerStore and Head tracks only the one currently being applied.
type CherryPickStore struct {
	gitDir string
}

func newCherryPickStore(gitDir string) *CherryPickStore {
	return &CherryPickStore{gitDir: gitDir}
}

func (s *CherryPickStore) headPath() string { return filepath.Join(s.gitDir, "CHERRY_PICK_HEAD") }
func (s *CherryPickStore) msgPath() string  { return filepath.Join(s.gitDir, "CHERRY_PICK_MSG") }

// IsInProgress reports whether a cherry-pick is currently recorded.
func (s *CherryPickStore) IsInProgress() bool {
	return exists(s.headPath())
}

// Begin records the start of a cherry-pick: head is the commit currently
// being applied, message is its in-progress commit message.
func (s *CherryPickStore) Begin(head githash.SHA1, message string) error {
	if s.IsInProgress() {
		return fmt.Errorf("begin cherry-pick: %w", ErrAlreadyInProgress)
	}
	if err := writeFile(s.headPath(), head.String()+"\n"); err != nil {
		return fmt.Errorf("begin cherry-pick: %w", err)
	}
	if err := writeFile(s.msgPath(), message); err != nil {
		return fmt.Errorf("begin cherry-pick: %w", err)
	}
	return nil
}

// Read returns the current cherry-pick state. sequencerActive should be the
// result of the sibling SequencerStore's IsInProgress.
func (s *CherryPickStore) Read(sequencerActive bool) (CherryPickState, error) {
	data, err := readFile(s.headPath())
	if err != nil {
		return CherryPickState{}, fmt.Errorf("read cherry-pick state: %w", err)
	}
	head, err := githash.ParseSHA1(strings.TrimSpace(data))
	if err != nil {
		return CherryPickState{}, fmt.Errorf("read cherry-pick state: %w", err)
	}
	msg, err := readFile(s.msgPath())
	if err != nil {
		return CherryPickState{}, fmt.Errorf("read cherry-pick state: %w", err)
	}
	return CherryPickState{Head: head, Message: msg, Sequencer: sequencerActive}, nil
}

// Advance replaces the commit currently being applied with the next one in
// the sequence, with a freshly-derived message, after the current one has
// completed successfully.
func (s *CherryPickStore) Advance(head githash.SHA1, message string) error {
	if !s.IsInProgress() {
		return fmt.Errorf("advance cherry-pick: %w", ErrNotInProgress)
	}
	if err := writeFile(s.headPath(), head.String()+"\n"); err != nil {
		return fmt.Errorf("advance cherry-pick: %w", err)
	}
	if err := writeFile(s.msgPath(), message); err != nil {
		return fmt.Errorf("advance cherry-pick: %w", err)
	}
	return nil
}

// UpdateMessage rewrites the in-progress commit message.
func (s *CherryPickStore) UpdateMessage(message string) error {
	if !s.IsInProgress() {
		return fmt.Errorf("update cherry-pick message: %w", ErrNotInProgress)
	}
	if err := writeFile(s.msgPath(), message); err != nil {
		return fmt.Errorf("update cherry-pick message: %w", err)
	}
	return nil
}

// Complete clears the cherry-pick state after its commit has been recorded.
func (s *CherryPickStore) Complete() error {
	return s.clear("complete cherry-pick")
}

// Abort clears the cherry-pick state without committing.
func (s *CherryPickStore) Abort() error {
	return s.clear("abort cherry-pick")
}

func (s *CherryPickStore) clear(op string) error {
	if err := removeFile(s.headPath()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := removeFile(s.msgPath()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
