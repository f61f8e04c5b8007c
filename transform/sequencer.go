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
)

// SequencerState is the remaining and completed work of a queued
// multi-commit cherry-pick or revert.
type SequencerState struct {
	Owner Kind
	Todo  []TodoStep
	Done  []TodoStep
}

// SequencerStore persists the todo list a multi-commit cherry-pick or
// revert works through one commit at a time, under
// "<gitDir>/sequencer/{owner,todo,done}", mirroring upstream Git's
// sequencer directory. It is only active when more than one commit is
// queued; a single-commit cherry-pick or revert never creates one.
type SequencerStore struct {
	gitDir string
}

func newSequencerStore(gitDir string) *SequencerStore {
	return &SequencerStore{gitDir: gitDir}
}

func (s *SequencerStore) dir() string      { return filepath.Join(s.gitDir, "sequencer") }
func (s *SequencerStore) ownerPath() string { return filepath.Join(s.dir(), "owner") }
func (s *SequencerStore) todoPath() string  { return filepath.Join(s.dir(), "todo") }
func (s *SequencerStore) donePath() string  { return filepath.Join(s.dir(), "done") }

// IsInProgress reports whether a sequencer run is active.
func (s *SequencerStore) IsInProgress() bool {
	return exists(s.todoPath())
}

// Begin records a new sequencer run owned by the given kind (CherryPick or
// Revert), with the given commits still to process.
func (s *SequencerStore) Begin(owner Kind, todo []TodoStep) error {
	if s.IsInProgress() {
		return fmt.Errorf("begin sequencer: %w", ErrAlreadyInProgress)
	}
	if err := writeFile(s.ownerPath(), owner.String()); err != nil {
		return fmt.Errorf("begin sequencer: %w", err)
	}
	if err := writeFile(s.todoPath(), marshalTodo(todo)); err != nil {
		return fmt.Errorf("begin sequencer: %w", err)
	}
	if err := writeFile(s.donePath(), ""); err != nil {
		return fmt.Errorf("begin sequencer: %w", err)
	}
	return nil
}

// Read returns the sequencer's current state.
func (s *SequencerStore) Read() (SequencerState, error) {
	ownerData, err := readFile(s.ownerPath())
	if err != nil {
		return SequencerState{}, fmt.Errorf("read sequencer state: %w", err)
	}
	owner, err := parseKind(ownerData)
	if err != nil {
		return SequencerState{}, fmt.Errorf("read sequencer state: %w", err)
	}
	todoData, err := readFile(s.todoPath())
	if err != nil {
		return SequencerState{}, fmt.Errorf("read sequencer state: %w", err)
	}
	todo, err := parseTodo(todoData)
	if err != nil {
		return SequencerState{}, fmt.Errorf("read sequencer state: %w", err)
	}
	doneData, err := readFile(s.donePath())
	if err != nil {
		return SequencerState{}, fmt.Errorf("read sequencer state: %w", err)
	}
	done, err := parseTodo(doneData)
	if err != nil {
		return SequencerState{}, fmt.Errorf("read sequencer state: %w", err)
	}
	return SequencerState{Owner: owner, Todo: todo, Done: done}, nil
}

// NextStep returns the next unprocessed step, if any, without removing it.
func (s *SequencerStore) NextStep() (*TodoStep, error) {
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

// Advance moves the next step from the todo list to the done log, recording
// that it was applied successfully.
func (s *SequencerStore) Advance() error {
	return s.pop("advance sequencer")
}

// Skip moves the next step from the todo list to the done log without it
// having been applied.
func (s *SequencerStore) Skip() error {
	return s.pop("skip sequencer step")
}

func (s *SequencerStore) pop(op string) error {
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

// UpdateTodoList replaces the remaining (not yet processed) steps.
func (s *SequencerStore) UpdateTodoList(todo []TodoStep) error {
	if !s.IsInProgress() {
		return fmt.Errorf("update sequencer todo: %w", ErrNotInProgress)
	}
	if err := writeFile(s.todoPath(), marshalTodo(todo)); err != nil {
		return fmt.Errorf("update sequencer todo: %w", err)
	}
	return nil
}

// Complete clears the sequencer once every step has been processed.
func (s *SequencerStore) Complete() error {
	return removeAll(s.dir())
}

// Abort clears the sequencer, discarding any remaining steps.
func (s *SequencerStore) Abort() error {
	return removeAll(s.dir())
}
