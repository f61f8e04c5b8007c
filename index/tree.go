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

package index

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

// treeDirNode is an in-memory directory being assembled from index entries,
// one node per path component, so that WriteTree can build every
// intermediate subtree bottom-up before hashing the root.
type treeDirNode struct {
	name     string
	files    map[string]Entry
	children map[string]*treeDirNode
}

func newTreeDirNode(name string) *treeDirNode {
	return &treeDirNode{
		name:     name,
		files:    make(map[string]Entry),
		children: make(map[string]*treeDirNode),
	}
}

// insert places e at the location described by the remaining path
// components, creating intermediate directory nodes as needed.
func (d *treeDirNode) insert(components []string, e Entry) {
	if len(components) == 1 {
		d.files[components[0]] = e
		return
	}
	name := components[0]
	child, ok := d.children[name]
	if !ok {
		child = newTreeDirNode(name)
		d.children[name] = child
	}
	child.insert(components[1:], e)
}

// write recursively serializes d's files and subdirectories into Git tree
// objects, storing each via w, and returns the object ID of d's own tree.
func (d *treeDirNode) write(ctx context.Context, w object.ObjectWriter) (githash.SHA1, error) {
	var tree object.Tree
	for name, e := range d.files {
		tree = append(tree, &object.TreeEntry{
			Name:     name,
			Mode:     e.Mode,
			ObjectID: e.ObjectID,
		})
	}
	for name, child := range d.children {
		id, err := child.write(ctx, w)
		if err != nil {
			return githash.SHA1{}, err
		}
		tree = append(tree, &object.TreeEntry{
			Name:     name,
			Mode:     object.ModeDir,
			ObjectID: id,
		})
	}
	if err := tree.Sort(); err != nil {
		return githash.SHA1{}, fmt.Errorf("assemble tree %q: %w", d.name, err)
	}
	data, err := tree.MarshalBinary()
	if err != nil {
		return githash.SHA1{}, fmt.Errorf("assemble tree %q: %w", d.name, err)
	}
	id, err := w.WriteObject(ctx, object.TypeTree, int64(len(data)), bytes.NewReader(data))
	if err != nil {
		return githash.SHA1{}, fmt.Errorf("store tree %q: %w", d.name, err)
	}
	return id, nil
}

// ReadTree populates idx's stage-0 entries from the given tree object,
// recursively walking subtrees via r, replacing any existing entries at the
// affected paths. Entries not under the tree are left untouched, matching a
// partial checkout of a subtree.
func ReadTree(ctx context.Context, idx *Index, r object.ObjectReader, root githash.SHA1) error {
	return readTreeInto(ctx, idx, r, root, "")
}

func readTreeInto(ctx context.Context, idx *Index, r object.ObjectReader, id githash.SHA1, prefix string) error {
	prefix_, rc, err := r.OpenObject(ctx, id)
	if err != nil {
		return fmt.Errorf("read tree %v: %w", id, err)
	}
	defer rc.Close()
	if prefix_.Type != object.TypeTree {
		return fmt.Errorf("read tree %v: object is a %s, not a tree", id, prefix_.Type)
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
		path := ent.Name
		if prefix != "" {
			path = prefix + "/" + ent.Name
		}
		if ent.Mode.IsDir() {
			if err := readTreeInto(ctx, idx, r, ent.ObjectID, path); err != nil {
				return err
			}
			continue
		}
		idx.removeAllStages(path)
		idx.put(Entry{
			Path:     path,
			Stage:    StageNormal,
			Mode:     ent.Mode,
			ObjectID: ent.ObjectID,
		})
	}
	return nil
}
