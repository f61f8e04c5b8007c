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

// RebaseState is a rebase's persisted parameters.
type RebaseState struct {
	Onto        githash.SHA1
	OrigHead    githash.SHA1
	Branch      string
	Interactive bool
	Todo        []TodoStep
	Done        []TodoStep
}

// RebaseParams are the arguments to RebaseStore.Begin.
type RebaseParams struct {
	Onto        githash.SHA1
	OrigHead    githash.SHA1
	Branch      string
	Interactive bool
	Todo        []TodoStep
}

// RebaseStore persists a single rebase in progress, under
// "<gitDir>/rebase-merge/", matching upstream Git's layout for a
// merge-backend rebase (as opposed to the legacy apply backend).
type RebaseStore struct {
	gitDir string
}

func newRebaseStore(gitDir string) *RebaseStore {
	return &RebaseStore{gitDir: gitDir}
}

func (s *RebaseStore) dir() string             { return filepath.Join(s.gitDir, "rebase-merge") }
func (s *RebaseStore) ontoPath() string        { return filepath.Join(s.dir(), "onto") }
func (s *RebaseStore) origHeadPath() string    { return filepath.Join(s.dir(), "orig-head") }
func (s *RebaseStore) headNamePath() string    { return filepath.Join(s.dir(), "head-name") }
func (s *RebaseStore) interactivePath() string { return filepath.Join(s.dir(), "interactive") }
func (s *RebaseStore) todoPath() string        { return filepath.Join(s.dir(), "git-rebase-todo") }
func (s *RebaseStore) donePath() string        { return filepath.Join(s.dir(), "done") }

// IsInProgress reports whether a rebase is currently recorded.
func (s *RebaseStore) IsInProgress() bool {
	return exists(s.dir())
}

// IsInteractive reports whether the in-progress rebase is interactive. It
// is only meaningful while IsInProgress is true.
func (s *RebaseStore) IsInteractive() bool {
	return exists(s.interactivePath())
}

// Begin records the start of a rebase. It fails with ErrAlreadyInProgress
// if one is already recorded.
func (s *RebaseStore) Begin(p RebaseParams) error {
	if s.IsInProgress() {
		return fmt.Errorf("begin rebase: %w", ErrAlreadyInProgress)
	}
	if err := writeFile(s.ontoPath(), p.Onto.String()); err != nil {
		return fmt.Errorf("begin rebase: %w", err)
	}
	if err := writeFile(s.origHeadPath(), p.OrigHead.String()); err != nil {
		return fmt.Errorf("begin rebase: %w", err)
	}
	if err := writeFile(s.headNamePath(), p.Branch); err != nil {
		return fmt.Errorf("begin rebase: %w", err)
	}
	if err := writeFile(s.todoPath(), marshalTodo(p.Todo)); err != nil {
		return fmt.Errorf("begin rebase: %w", err)
	}
	if err := writeFile(s.donePath(), ""); err != nil {
		return fmt.Errorf("begin rebase: %w", err)
	}
	if p.Interactive {
		if err := writeFile(s.interactivePath(), ""); err != nil {
			return fmt.Errorf("begin rebase: %w", err)
		}
	}
	return nil
}

// Read returns the current rebase state.
func (s *RebaseStore) Read() (RebaseState, error) {
	if !s.IsInProgress() {
		return RebaseState{}, fmt.Errorf("read rebase state: %w", ErrNotInProgress)
	}
	ontoData, err := readFile(s.ontoPath())
	if err != nil {
		return RebaseState{}, fmt.Errorf("read rebase state: %w", err)
	}
	onto, err := githash.ParseSHA1(strings.TrimSpace(ontoData))
	if err != nil {
		return RebaseState{}, fmt.Errorf("read rebase state: %w", err)
	}
	origHeadData, err := readFile(s.origHeadPath())
	if err != nil {
		return RebaseState{}, fmt.Errorf("read rebase state: %w", err)
	}
	origHead, err := githash.ParseSHA1(strings.TrimSpace(origHeadData))
	if err != nil {
		return RebaseState{}, fmt.Errorf("read rebase state: %w", err)
	}
	branch, err := readFile(s.headNamePath())
	if err != nil {
		return RebaseState{}, fmt.Errorf("read rebase state: %w", err)
	}
	todoData, err := readFile(s.todoPath())
	if err != nil {
		return RebaseState{}, fmt.Errorf("read rebase state: %w", err)
	}
	todo, err := parseTodo(todoData)
	if err != nil {
		return RebaseState{}, fmt.Errorf("read rebase state: %w", err)
	}
	doneData, err := readFile(s.donePath())
	if err != nil {
		return RebaseState{}, fmt.Errorf("read rebase state: %w", err)
	}
	done, err := parseTodo(doneData)
	if err != nil {
		return RebaseState{}, fmt.Errorf("read rebase state: %w", err)
	}
	return RebaseState{
		Onto:        onto,
		OrigHead:    origHead,
		Branch:      branch,
		Interactive: s.IsInteractive(),
		Todo:        todo,
		Done:        done,
	}, nil
}

// NextStep returns the next step to apply, if any, without removing it.
func (s *RebaseStore) NextStep() (*TodoStep, error) {
	st, err := s.Read()
	if err != nil {
		return nil, err
	}
	if len(st.Todo) == 0 {
		return nil, nil
	}
	step := st.Todo[0]
	return &step, nil
}

// Advance moves the next step from the todo list to the done log,
// recording that it was applied successfully.
func (s *RebaseStore) Advance() error {
	return s.pop("advance rebase")
}

// Skip moves the next step from the todo list to the done log without it
// having been applied, used to skip a step whose changes are already
// reflected upstream.
func (s *RebaseStore) Skip() error {
	return s.pop("skip rebase step")
}

func (s *RebaseStore) pop(op string) error {
	st, err := s.Read()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(st.Todo) == 0 {
		return fmt.Errorf("%s: no steps remain", op)
	}
	st.Done = append(st.Done, st.Todo[0])
	st.Todo = st.Todo[1:]
	if err := writeFile(s.todoPath(), marshalTodo(st.Todo)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := writeFile(s.donePath(), marshalTodo(st.Done)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateTodoList replaces the remaining (not yet processed) steps, the
// primitive an interactive rebase's todo-list editor uses.
func (s *RebaseStore) UpdateTodoList(todo []TodoStep) error {
	if !s.IsInProgress() {
		return fmt.Errorf("update rebase todo: %w", ErrNotInProgress)
	}
	if err := writeFile(s.todoPath(), marshalTodo(todo)); err != nil {
		return fmt.Errorf("update rebase todo: %w", err)
	}
	return nil
}

// Complete clears the rebase state once every step has been processed.
func (s *RebaseStore) Complete() error {
	return removeAll(s.dir())
}

// Abort clears the rebase state, restoring nothing itself; the caller is
// responsible for resetting HEAD and the index back to OrigHead first.
func (s *RebaseStore) Abort() error {
	return removeAll(s.dir())
}
