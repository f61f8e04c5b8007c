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

package status

import (
	"context"
	"fmt"
	"io"
	"path"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

// flattenHeadTree walks HEAD's commit and its tree, recursively, into a flat
// path -> (id, mode) map.
func flattenHeadTree(ctx context.Context, r object.ObjectReader, headID githash.SHA1) (map[string]treeEntry, error) {
	_, rc, err := r.OpenObject(ctx, headID)
	if err != nil {
		return nil, fmt.Errorf("flatten HEAD tree: open commit %v: %w", headID, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("flatten HEAD tree: read commit %v: %w", headID, err)
	}
	commit, err := object.ParseCommit(data)
	if err != nil {
		return nil, fmt.Errorf("flatten HEAD tree: parse commit %v: %w", headID, err)
	}

	out := make(map[string]treeEntry)
	if err := flattenTree(ctx, r, commit.Tree, "", out); err != nil {
		return nil, fmt.Errorf("flatten HEAD tree: %w", err)
	}
	return out, nil
}

func flattenTree(ctx context.Context, r object.ObjectReader, id githash.SHA1, prefix string, out map[string]treeEntry) error {
	_, rc, err := r.OpenObject(ctx, id)
	if err != nil {
		return fmt.Errorf("open tree %v: %w", id, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("read tree %v: %w", id, err)
	}
	tree, err := object.ParseTree(data)
	if err != nil {
		return fmt.Errorf("parse tree %v: %w", id, err)
	}

	for _, ent := range tree {
		p := path.Join(prefix, ent.Name)
		if ent.Mode.IsDir() {
			if err := flattenTree(ctx, r, ent.ObjectID, p, out); err != nil {
				return err
			}
			continue
		}
		out[p] = treeEntry{id: ent.ObjectID, mode: ent.Mode}
	}
	return nil
}
