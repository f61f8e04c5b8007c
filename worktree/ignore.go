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

package worktree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vcskit.dev/pkg/git/gitglob"
)

// ignoreRule is one compiled line of a .gitignore file.
type ignoreRule struct {
	pattern *gitglob.Glob
	negate  bool
	dirOnly bool
	// base is the rule's .gitignore directory, relative to the worktree
	// root ("" for the root itself); the rule only applies to paths
	// under base.
	base string
}

// ignoreMatcher decides whether worktree paths are ignored, applying
// ".gitignore" files the same way Git's own working-tree scan does: rules
// closer to the path and later in a file override earlier ones, and a
// directory excluded by a dirOnly or plain pattern excludes everything
// beneath it unconditionally (Git does not let a file re-include itself
// out of an already-excluded parent directory).
//
// It does not consult a repository-wide "core.excludesFile" or
// ".git/info/exclude" — only per-directory ".gitignore" files, which
// covers the spec's isIgnored contract without requiring a configuration
// layer this package has no access to.
type ignoreMatcher struct {
	root       string
	rulesByDir map[string][]ignoreRule
}

func newIgnoreMatcher(root string) *ignoreMatcher {
	return &ignoreMatcher{root: root, rulesByDir: make(map[string][]ignoreRule)}
}

func (m *ignoreMatcher) rulesFor(dir string) ([]ignoreRule, error) {
	if rules, ok := m.rulesByDir[dir]; ok {
		return rules, nil
	}
	abs := filepath.Join(m.root, filepath.FromSlash(dir), ".gitignore")
	data, err := os.ReadFile(abs)
	var rules []ignoreRule
	switch {
	case err == nil:
		rules, err = parseIgnoreFile(string(data), dir)
		if err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		// No ".gitignore" at this level: zero rules, not an error.
	default:
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}
	m.rulesByDir[dir] = rules
	return rules, nil
}

// isIgnored reports whether relPath (slash-separated, relative to the
// worktree root) is ignored. isDir indicates whether relPath itself names
// a directory, which matters for dirOnly rules.
func (m *ignoreMatcher) isIgnored(relPath string, isDir bool) (bool, error) {
	segments := strings.Split(relPath, "/")
	var active []ignoreRule
	cur := ""
	ignored := false
	for i, seg := range segments {
		parent := cur
		if cur == "" {
			cur = seg
		} else {
			cur = cur + "/" + seg
		}
		last := i == len(segments)-1
		segIsDir := !last || isDir

		rules, err := m.rulesFor(parent)
		if err != nil {
			return false, err
		}
		active = append(active, rules...)

		if matched, ignore := evalRules(active, cur, segIsDir); matched {
			ignored = ignore
		}

		if !last && ignored {
			// cur names an excluded ancestor directory: everything
			// beneath it is ignored, and no deeper rule can override
			// that, matching Git's own behavior.
			return true, nil
		}
	}
	return ignored, nil
}

// evalRules applies every rule whose base covers testPath, in order, the
// last match winning (a later negated rule un-ignores an earlier match).
func evalRules(rules []ignoreRule, testPath string, isDir bool) (matched, ignore bool) {
	for _, r := range rules {
		if r.dirOnly && !isDir {
			continue
		}
		rel := testPath
		if r.base != "" {
			prefix := r.base + "/"
			if !strings.HasPrefix(testPath, prefix) {
				continue
			}
			rel = strings.TrimPrefix(testPath, prefix)
		}
		if r.pattern.MatchString(rel) {
			matched = true
			ignore = !r.negate
		}
	}
	return matched, ignore
}

// parseIgnoreFile parses the lines of a ".gitignore" file found in dir
// (relative to the worktree root).
func parseIgnoreFile(data, dir string) ([]ignoreRule, error) {
	var rules []ignoreRule
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		negate := false
		if strings.HasPrefix(line, "!") {
			negate = true
			line = line[1:]
		}
		if strings.HasPrefix(line, "\\") {
			line = line[1:]
		}
		dirOnly := false
		if strings.HasSuffix(line, "/") {
			dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		if line == "" {
			continue
		}
		anchored := strings.Contains(line, "/")
		if anchored {
			line = strings.TrimPrefix(line, "/")
		} else {
			line = "**/" + line
		}
		g, err := gitglob.Compile(line)
		if err != nil {
			return nil, fmt.Errorf("parse %s/.gitignore: %w", dir, err)
		}
		rules = append(rules, ignoreRule{pattern: g, negate: negate, dirOnly: dirOnly, base: dir})
	}
	return rules, nil
}
