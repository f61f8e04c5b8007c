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
	"io"
	"path"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

// treeLeaf is one blob-or-gitlink path's state, as flattened out of a tree
// and its subtrees.
type treeLeaf struct {
	ID   githash.SHA1
	Mode object.Mode
}

// flattenTree reads the tree named by id and every subtree it reaches,
// returning a flat map of slash-separated path to leaf state. CheckoutCommand
// and DiffCommand both need a full path -> (id, mode) view of a tree to
// compute conflicts and to diff two trees by path.
func flattenTree(ctx context.Context, r object.ObjectReader, id githash.SHA1) (map[string]treeLeaf, error) {
	out := make(map[string]treeLeaf)
	if err := flattenTreeInto(ctx, r, id, "", out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenTreeInto(ctx context.Context, r object.ObjectReader, id githash.SHA1, prefix string, out map[string]treeLeaf) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prefixObj, rc, err := r.OpenObject(ctx, id)
	if err != nil {
		return fmt.Errorf("read tree %v: %w", id, err)
	}
	defer rc.Close()
	if prefixObj.Type != object.TypeTree {
		return fmt.Errorf("read tree %v: object is a %s, not a tree", id, prefixObj.Type)
	}
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read tree %v: %w", id, err)
	}
	tree, err := object.ParseTree(data)
	if err != nil {
		return fmt.Errorf("read tree %v: %w", id, err)
	}
	for _, ent := range tree {
		p := ent.Name
		if prefix != "" {
			p = path.Join(prefix, ent.Name)
		}
		if ent.Mode.IsDir() {
			if err := flattenTreeInto(ctx, r, ent.ObjectID, p, out); err != nil {
				return err
			}
			continue
		}
		out[p] = treeLeaf{ID: ent.ObjectID, Mode: ent.Mode}
	}
	return nil
}
