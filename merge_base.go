// Copyright 2018 The gg Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package git

import (
	"context"
	"fmt"

	"vcskit.dev/pkg/git/githash"
)

// ancestorSet returns start and every commit reachable from it by following
// every parent edge.
func (wc *WorkingCopy) ancestorSet(ctx context.Context, start githash.SHA1) (map[githash.SHA1]bool, error) {
	seen := map[githash.SHA1]bool{}
	queue := []githash.SHA1{start}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		commit, err := readCommit(ctx, wc.objects, id)
		if err != nil {
			return nil, err
		}
		queue = append(queue, commit.Parents...)
	}
	return seen, nil
}

// mergeBase finds a common ancestor of a and b by breadth-first search: the
// first commit reachable from b that is also reachable from a. It does not
// guarantee the single "best" base in a criss-cross history, only *a* valid
// common ancestor, which is what a two-way 3-way-merge needs.
func (wc *WorkingCopy) mergeBase(ctx context.Context, a, b githash.SHA1) (githash.SHA1, error) {
	aSet, err := wc.ancestorSet(ctx, a)
	if err != nil {
		return githash.SHA1{}, err
	}
	if aSet[b] {
		return b, nil
	}
	visited := map[githash.SHA1]bool{}
	queue := []githash.SHA1{b}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return githash.SHA1{}, err
		}
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		if aSet[id] {
			return id, nil
		}
		commit, err := readCommit(ctx, wc.objects, id)
		if err != nil {
			return githash.SHA1{}, err
		}
		queue = append(queue, commit.Parents...)
	}
	return githash.SHA1{}, fmt.Errorf("merge base of %v and %v: %w", a, b, ErrRefNotFound)
}
