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
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"vcskit.dev/pkg/git/githash"
)

// TodoAction names what a TodoStep does with its commit.
type TodoAction int

const (
	ActionPick TodoAction = iota
	ActionEdit
	ActionSquash
	ActionFixup
	ActionDrop
)

func (a TodoAction) String() string {
	switch a {
	case ActionPick:
		return "pick"
	case ActionEdit:
		return "edit"
	case ActionSquash:
		return "squash"
	case ActionFixup:
		return "fixup"
	case ActionDrop:
		return "drop"
	default:
		return "unknown"
	}
}

func parseTodoAction(s string) (TodoAction, error) {
	switch s {
	case "pick":
		return ActionPick, nil
	case "edit":
		return ActionEdit, nil
	case "squash":
		return ActionSquash, nil
	case "fixup":
		return ActionFixup, nil
	case "drop":
		return ActionDrop, nil
	default:
		return 0, fmt.Errorf("unknown todo action %q", s)
	}
}

// TodoStep is one entry in a rebase or sequencer todo list: an action to
// take on a single commit, carried alongside its subject line so a listing
// can be shown without re-reading the object store.
type TodoStep struct {
	Action  TodoAction
	Commit  githash.SHA1
	Message string
}

// marshalTodo serializes steps one per line, in order, as
// "<action> <sha1> <message>", the message written as a Go-quoted string
// (strconv.Quote).
func marshalTodo(steps []TodoStep) string {
	var sb strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&sb, "%s %s %s\n", s.Action, s.Commit, strconv.Quote(s.Message))
	}
	return sb.String()
}

// parseTodo is the inverse of marshalTodo.
func parseTodo(data string) ([]TodoStep, error) {
	var steps []TodoStep
	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("parse todo: malformed line %q", line)
		}
		action, err := parseTodoAction(fields[0])
		if err != nil {
			return nil, fmt.Errorf("parse todo: %w", err)
		}
		commit, err := githash.ParseSHA1(fields[1])
		if err != nil {
			return nil, fmt.Errorf("parse todo: %w", err)
		}
		msg, err := strconv.Unquote(fields[2])
		if err != nil {
			return nil, fmt.Errorf("parse todo: %w", err)
		}
		steps = append(steps, TodoStep{Action: action, Commit: commit, Message: msg})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("parse todo: %w", err)
	}
	return steps, nil
}
