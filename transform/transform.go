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

// Package transform persists which multi-step history-rewriting operation
// (merge, rebase, cherry-pick, or revert) a working copy is currently in
// the middle of, under the well-known on-disk names upstream Git uses for
// the same state, so that a command invoked later (to continue, skip, or
// abort) can find where the previous one left off.
package transform

import "fmt"

// Kind identifies which kind of transformation is in progress.
type Kind int

const (
	KindMerge Kind = iota
	KindRebase
	KindCherryPick
	KindRevert
)

func (k Kind) String() string {
	switch k {
	case KindMerge:
		return "merge"
	case KindRebase:
		return "rebase"
	case KindCherryPick:
		return "cherry-pick"
	case KindRevert:
		return "revert"
	default:
		return "unknown"
	}
}

func parseKind(s string) (Kind, error) {
	switch s {
	case "merge":
		return KindMerge, nil
	case "rebase":
		return KindRebase, nil
	case "cherry-pick":
		return KindCherryPick, nil
	case "revert":
		return KindRevert, nil
	default:
		return 0, fmt.Errorf("unknown transform kind %q", s)
	}
}

// kindPriority is the priority order in which a Store resolves which kind
// is current when (in principle) more than one sub-store's files are
// present: rebase outranks merge outranks cherry-pick outranks revert.
var kindPriority = []Kind{KindRebase, KindMerge, KindCherryPick, KindRevert}

// Capabilities are the actions currently valid against whichever
// transformation is in progress.
type Capabilities struct {
	CanContinue bool
	CanSkip     bool
	CanAbort    bool
	CanQuit     bool
}

// Store bundles the per-kind sub-stores that together track a working
// copy's transformation state. At most one of Merge, Rebase, CherryPick,
// and Revert is ever in progress at a time; Sequencer is active alongside
// CherryPick or Revert only when more than one commit was queued.
type Store struct {
	gitDir     string
	Merge      *MergeStore
	Rebase     *RebaseStore
	CherryPick *CherryPickStore
	Revert     *RevertStore
	Sequencer  *SequencerStore
}

// NewStore returns a Store rooted at gitDir (e.g. "<repo>/.git").
func NewStore(gitDir string) *Store {
	return &Store{
		gitDir:     gitDir,
		Merge:      newMergeStore(gitDir),
		Rebase:     newRebaseStore(gitDir),
		CherryPick: newCherryPickStore(gitDir),
		Revert:     newRevertStore(gitDir),
		Sequencer:  newSequencerStore(gitDir),
	}
}

// Current reports which transformation is in progress, if any.
func (s *Store) Current() (Kind, bool) {
	for _, k := range kindPriority {
		if s.isInProgress(k) {
			return k, true
		}
	}
	return 0, false
}

func (s *Store) isInProgress(k Kind) bool {
	switch k {
	case KindMerge:
		return s.Merge.IsInProgress()
	case KindRebase:
		return s.Rebase.IsInProgress()
	case KindCherryPick:
		return s.CherryPick.IsInProgress()
	case KindRevert:
		return s.Revert.IsInProgress()
	default:
		return false
	}
}

// Capabilities derives the currently-valid actions for whichever
// transformation is in progress, per the capability table: merge permits
// only continue/abort; rebase additionally permits skip, and quit only
// when interactive; cherry-pick additionally permits skip and quit only
// while its sequencer is queuing more commits; revert permits only
// continue/abort regardless of queue depth.
func (s *Store) Capabilities() Capabilities {
	kind, ok := s.Current()
	if !ok {
		return Capabilities{}
	}
	switch kind {
	case KindMerge:
		return Capabilities{CanContinue: true, CanAbort: true}
	case KindRebase:
		interactive := s.Rebase.IsInteractive()
		return Capabilities{
			CanContinue: true,
			CanSkip:     true,
			CanAbort:    true,
			CanQuit:     interactive,
		}
	case KindCherryPick:
		sequencing := s.Sequencer.IsInProgress()
		return Capabilities{
			CanContinue: true,
			CanSkip:     sequencing,
			CanAbort:    true,
			CanQuit:     sequencing,
		}
	case KindRevert:
		return Capabilities{CanContinue: true, CanAbort: true}
	default:
		return Capabilities{}
	}
}

// AbortCurrent cleans up whichever transformation is active, plus the
// sequencer if one is present, regardless of which operation started it.
func (s *Store) AbortCurrent() error {
	kind, ok := s.Current()
	if ok {
		var err error
		switch kind {
		case KindMerge:
			err = s.Merge.Abort()
		case KindRebase:
			err = s.Rebase.Abort()
		case KindCherryPick:
			err = s.CherryPick.Abort()
		case KindRevert:
			err = s.Revert.Abort()
		}
		if err != nil {
			return fmt.Errorf("abort current transformation: %w", err)
		}
	}
	if s.Sequencer.IsInProgress() {
		if err := s.Sequencer.Abort(); err != nil {
			return fmt.Errorf("abort current transformation: %w", err)
		}
	}
	return nil
}
