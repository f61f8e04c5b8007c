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
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/index"
	"vcskit.dev/pkg/git/object"
	"vcskit.dev/pkg/git/store"
)

type fakeObjectStore struct {
	objects map[githash.SHA1][]byte
	types   map[githash.SHA1]object.Type
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[githash.SHA1][]byte), types: make(map[githash.SHA1]object.Type)}
}

func (s *fakeObjectStore) WriteObject(ctx context.Context, typ object.Type, size int64, r io.Reader) (githash.SHA1, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return githash.SHA1{}, err
	}
	h := sha1.New()
	h.Write(object.AppendPrefix(nil, typ, size))
	h.Write(data)
	var id githash.SHA1
	h.Sum(id[:0])
	s.objects[id] = data
	s.types[id] = typ
	return id, nil
}

func (s *fakeObjectStore) OpenObject(ctx context.Context, id githash.SHA1) (object.Prefix, io.ReadCloser, error) {
	data, ok := s.objects[id]
	if !ok {
		return object.Prefix{}, nil, fmt.Errorf("fakeObjectStore: no object %v", id)
	}
	return object.Prefix{Type: s.types[id], Size: int64(len(data))}, io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeObjectStore) writeBlob(t *testing.T, ctx context.Context, content string) githash.SHA1 {
	t.Helper()
	id, err := s.WriteObject(ctx, object.TypeBlob, int64(len(content)), bytes.NewReader([]byte(content)))
	require.NoError(t, err)
	return id
}

func (s *fakeObjectStore) writeTree(t *testing.T, ctx context.Context, entries ...*object.TreeEntry) githash.SHA1 {
	t.Helper()
	tree := object.Tree(entries)
	require.NoError(t, tree.Sort())
	data, err := tree.MarshalBinary()
	require.NoError(t, err)
	id, err := s.WriteObject(ctx, object.TypeTree, int64(len(data)), bytes.NewReader(data))
	require.NoError(t, err)
	return id
}

func (s *fakeObjectStore) writeCommit(t *testing.T, ctx context.Context, tree githash.SHA1) githash.SHA1 {
	t.Helper()
	user, err := object.MakeUser("A", "a@example.com")
	require.NoError(t, err)
	c := &object.Commit{
		Tree:       tree,
		Author:     user,
		AuthorTime: time.Unix(0, 0),
		Committer:  user,
		CommitTime: time.Unix(0, 0),
		Message:    "msg\n",
	}
	data, err := c.MarshalText()
	require.NoError(t, err)
	id, err := s.WriteObject(ctx, object.TypeCommit, int64(len(data)), bytes.NewReader(data))
	require.NoError(t, err)
	return id
}

type fakeRefReader struct {
	headID     githash.SHA1
	headTarget githash.Ref
	headDirect bool
	resolveErr error
}

func (f *fakeRefReader) Resolve(ref githash.Ref) (githash.SHA1, error) {
	if f.resolveErr != nil {
		return githash.SHA1{}, f.resolveErr
	}
	return f.headID, nil
}

func (f *fakeRefReader) Target(ref githash.Ref) (githash.SHA1, githash.Ref, bool, error) {
	if f.headDirect {
		return f.headID, "", false, nil
	}
	return githash.SHA1{}, f.headTarget, true, nil
}

type fakeWorktreeLister struct {
	entries []WorktreeEntry
}

func (f *fakeWorktreeLister) ListWorktree(ctx context.Context) ([]WorktreeEntry, error) {
	return f.entries, nil
}

func newTestIndex(t *testing.T, entries ...index.Entry) *index.Index {
	t.Helper()
	b := index.NewBuilder("")
	for _, e := range entries {
		b.Add(e)
	}
	return b.Finish()
}

func TestCalculateStatusCleanRepo(t *testing.T) {
	ctx := context.Background()
	objs := newFakeObjectStore()
	blobID := objs.writeBlob(t, ctx, "hello")
	treeID := objs.writeTree(t, ctx, &object.TreeEntry{Name: "a.txt", Mode: object.ModePlain, ObjectID: blobID})
	commitID := objs.writeCommit(t, ctx, treeID)

	idx := newTestIndex(t, index.Entry{Path: "a.txt", Mode: object.ModePlain, ObjectID: blobID, Size: 5})

	e := &Engine{
		Objects: objs,
		Refs:    &fakeRefReader{headID: commitID, headTarget: githash.BranchRef("main")},
		Index:   idx,
		Worktree: &fakeWorktreeLister{entries: []WorktreeEntry{
			{Path: "a.txt", Size: 5, Mtime: time.Unix(0, 0), Mode: object.ModePlain},
		}},
	}

	sum, err := e.Calculate(ctx, Options{})
	require.NoError(t, err)
	assert.True(t, sum.IsClean)
	assert.Empty(t, sum.Entries)
	assert.Equal(t, "main", sum.Branch)
	assert.Equal(t, commitID, sum.Head)
}

func TestCalculateStatusStagedAdd(t *testing.T) {
	ctx := context.Background()
	objs := newFakeObjectStore()
	treeID := objs.writeTree(t, ctx)
	commitID := objs.writeCommit(t, ctx, treeID)

	blobID := objs.writeBlob(t, ctx, "new")
	idx := newTestIndex(t, index.Entry{Path: "new.txt", Mode: object.ModePlain, ObjectID: blobID, Size: 3})

	e := &Engine{
		Objects:  objs,
		Refs:     &fakeRefReader{headID: commitID, headTarget: githash.BranchRef("main")},
		Index:    idx,
		Worktree: &fakeWorktreeLister{entries: []WorktreeEntry{{Path: "new.txt", Size: 3, Mtime: time.Unix(0, 0), Mode: object.ModePlain}}},
	}

	sum, err := e.Calculate(ctx, Options{})
	require.NoError(t, err)
	require.Len(t, sum.Entries, 1)
	assert.Equal(t, IndexAdded, sum.Entries[0].IndexStatus)
	assert.True(t, sum.HasStaged)
	assert.False(t, sum.IsClean)
}

func TestCalculateStatusStagedDelete(t *testing.T) {
	ctx := context.Background()
	objs := newFakeObjectStore()
	blobID := objs.writeBlob(t, ctx, "gone")
	treeID := objs.writeTree(t, ctx, &object.TreeEntry{Name: "gone.txt", Mode: object.ModePlain, ObjectID: blobID})
	commitID := objs.writeCommit(t, ctx, treeID)

	idx := newTestIndex(t)

	e := &Engine{
		Objects:  objs,
		Refs:     &fakeRefReader{headID: commitID, headTarget: githash.BranchRef("main")},
		Index:    idx,
		Worktree: &fakeWorktreeLister{},
	}

	sum, err := e.Calculate(ctx, Options{})
	require.NoError(t, err)
	require.Len(t, sum.Entries, 1)
	assert.Equal(t, IndexDeleted, sum.Entries[0].IndexStatus)
	assert.True(t, sum.HasStaged)
}

func TestCalculateStatusUnstagedModifyBySizeMismatch(t *testing.T) {
	ctx := context.Background()
	objs := newFakeObjectStore()
	blobID := objs.writeBlob(t, ctx, "hello")
	treeID := objs.writeTree(t, ctx, &object.TreeEntry{Name: "a.txt", Mode: object.ModePlain, ObjectID: blobID})
	commitID := objs.writeCommit(t, ctx, treeID)

	idx := newTestIndex(t, index.Entry{Path: "a.txt", Mode: object.ModePlain, ObjectID: blobID, Size: 5})

	e := &Engine{
		Objects: objs,
		Refs:    &fakeRefReader{headID: commitID, headTarget: githash.BranchRef("main")},
		Index:   idx,
		Worktree: &fakeWorktreeLister{entries: []WorktreeEntry{
			{Path: "a.txt", Size: 9, Mtime: time.Unix(0, 0), Mode: object.ModePlain},
		}},
	}

	sum, err := e.Calculate(ctx, Options{})
	require.NoError(t, err)
	require.Len(t, sum.Entries, 1)
	assert.Equal(t, WorkTreeModified, sum.Entries[0].WorkTreeStatus)
	assert.True(t, sum.HasUnstaged)
}

func TestCalculateStatusRacilyCleanIsReportedModified(t *testing.T) {
	ctx := context.Background()
	objs := newFakeObjectStore()
	blobID := objs.writeBlob(t, ctx, "hello")
	treeID := objs.writeTree(t, ctx, &object.TreeEntry{Name: "a.txt", Mode: object.ModePlain, ObjectID: blobID})
	commitID := objs.writeCommit(t, ctx, treeID)

	idx := newTestIndex(t, index.Entry{Path: "a.txt", Mode: object.ModePlain, ObjectID: blobID, Size: 5})
	ed := idx.Editor()
	ed.Update("a.txt", object.ModePlain, blobID, 5, time.Unix(1000, 0))
	ed.Finish()
	updateTime := idx.GetUpdateTime()

	e := &Engine{
		Objects: objs,
		Refs:    &fakeRefReader{headID: commitID, headTarget: githash.BranchRef("main")},
		Index:   idx,
		Worktree: &fakeWorktreeLister{entries: []WorktreeEntry{
			// Same size, but the worktree mtime lands within the racy window
			// of the index's own update time.
			{Path: "a.txt", Size: 5, Mtime: updateTime, Mode: object.ModePlain},
		}},
	}

	sum, err := e.Calculate(ctx, Options{})
	require.NoError(t, err)
	require.Len(t, sum.Entries, 1)
	assert.Equal(t, WorkTreeModified, sum.Entries[0].WorkTreeStatus)
}

func TestCalculateStatusTrustsCleanOutsideRacyWindow(t *testing.T) {
	ctx := context.Background()
	objs := newFakeObjectStore()
	blobID := objs.writeBlob(t, ctx, "hello")
	treeID := objs.writeTree(t, ctx, &object.TreeEntry{Name: "a.txt", Mode: object.ModePlain, ObjectID: blobID})
	commitID := objs.writeCommit(t, ctx, treeID)

	idx := newTestIndex(t, index.Entry{Path: "a.txt", Mode: object.ModePlain, ObjectID: blobID, Size: 5})
	ed := idx.Editor()
	ed.Update("a.txt", object.ModePlain, blobID, 5, time.Unix(1000, 0))
	ed.Finish()
	updateTime := idx.GetUpdateTime()

	e := &Engine{
		Objects: objs,
		Refs:    &fakeRefReader{headID: commitID, headTarget: githash.BranchRef("main")},
		Index:   idx,
		Worktree: &fakeWorktreeLister{entries: []WorktreeEntry{
			{Path: "a.txt", Size: 5, Mtime: updateTime.Add(-10 * time.Second), Mode: object.ModePlain},
		}},
	}

	sum, err := e.Calculate(ctx, Options{})
	require.NoError(t, err)
	assert.Empty(t, sum.Entries)
	assert.True(t, sum.IsClean)
}

func TestCalculateStatusUntrackedFile(t *testing.T) {
	ctx := context.Background()
	objs := newFakeObjectStore()
	treeID := objs.writeTree(t, ctx)
	commitID := objs.writeCommit(t, ctx, treeID)

	idx := newTestIndex(t)

	e := &Engine{
		Objects:  objs,
		Refs:     &fakeRefReader{headID: commitID, headTarget: githash.BranchRef("main")},
		Index:    idx,
		Worktree: &fakeWorktreeLister{entries: []WorktreeEntry{{Path: "loose.txt", Size: 1, Mtime: time.Unix(0, 0), Mode: object.ModePlain}}},
	}

	sum, err := e.Calculate(ctx, Options{})
	require.NoError(t, err)
	require.Len(t, sum.Entries, 1)
	assert.Equal(t, WorkTreeUntracked, sum.Entries[0].WorkTreeStatus)
	assert.True(t, sum.HasUntracked)
}

func TestCalculateStatusSuppressUntracked(t *testing.T) {
	ctx := context.Background()
	objs := newFakeObjectStore()
	treeID := objs.writeTree(t, ctx)
	commitID := objs.writeCommit(t, ctx, treeID)
	idx := newTestIndex(t)

	e := &Engine{
		Objects:  objs,
		Refs:     &fakeRefReader{headID: commitID, headTarget: githash.BranchRef("main")},
		Index:    idx,
		Worktree: &fakeWorktreeLister{entries: []WorktreeEntry{{Path: "loose.txt", Size: 1, Mtime: time.Unix(0, 0), Mode: object.ModePlain}}},
	}

	sum, err := e.Calculate(ctx, Options{SuppressUntracked: true})
	require.NoError(t, err)
	assert.Empty(t, sum.Entries)
}

func TestCalculateStatusIgnoredFile(t *testing.T) {
	ctx := context.Background()
	objs := newFakeObjectStore()
	treeID := objs.writeTree(t, ctx)
	commitID := objs.writeCommit(t, ctx, treeID)
	idx := newTestIndex(t)

	e := &Engine{
		Objects: objs,
		Refs:    &fakeRefReader{headID: commitID, headTarget: githash.BranchRef("main")},
		Index:   idx,
		Worktree: &fakeWorktreeLister{entries: []WorktreeEntry{
			{Path: "build.log", Size: 1, Mtime: time.Unix(0, 0), Mode: object.ModePlain, IsIgnored: true},
		}},
	}

	sum, err := e.Calculate(ctx, Options{})
	require.NoError(t, err)
	require.Len(t, sum.Entries, 1)
	assert.Equal(t, WorkTreeIgnored, sum.Entries[0].WorkTreeStatus)
}

func TestCalculateStatusConflictOverridesIndexStatus(t *testing.T) {
	ctx := context.Background()
	objs := newFakeObjectStore()
	baseID := objs.writeBlob(t, ctx, "base")
	oursID := objs.writeBlob(t, ctx, "ours")
	treeID := objs.writeTree(t, ctx, &object.TreeEntry{Name: "x.txt", Mode: object.ModePlain, ObjectID: baseID})
	commitID := objs.writeCommit(t, ctx, treeID)

	b := index.NewBuilder("")
	b.Add(index.Entry{Path: "x.txt", Stage: index.StageBase, Mode: object.ModePlain, ObjectID: baseID})
	b.Add(index.Entry{Path: "x.txt", Stage: index.StageOurs, Mode: object.ModePlain, ObjectID: oursID})
	b.Add(index.Entry{Path: "x.txt", Stage: index.StageTheirs, Mode: object.ModePlain, ObjectID: baseID})
	idx := b.Finish()

	e := &Engine{
		Objects:  objs,
		Refs:     &fakeRefReader{headID: commitID, headTarget: githash.BranchRef("main")},
		Index:    idx,
		Worktree: &fakeWorktreeLister{entries: []WorktreeEntry{{Path: "x.txt", Size: 4, Mtime: time.Unix(0, 0), Mode: object.ModePlain}}},
	}

	sum, err := e.Calculate(ctx, Options{})
	require.NoError(t, err)
	require.Len(t, sum.Entries, 1)
	assert.Equal(t, IndexConflicted, sum.Entries[0].IndexStatus)
	assert.True(t, sum.HasConflicts)
}

func TestCalculateStatusDetachedHeadHasNoBranch(t *testing.T) {
	ctx := context.Background()
	objs := newFakeObjectStore()
	treeID := objs.writeTree(t, ctx)
	commitID := objs.writeCommit(t, ctx, treeID)
	idx := newTestIndex(t)

	e := &Engine{
		Objects:  objs,
		Refs:     &fakeRefReader{headID: commitID, headDirect: true},
		Index:    idx,
		Worktree: &fakeWorktreeLister{},
	}

	sum, err := e.Calculate(ctx, Options{})
	require.NoError(t, err)
	assert.Empty(t, sum.Branch)
	assert.Equal(t, commitID, sum.Head)
}

func TestCalculateStatusUnbornHead(t *testing.T) {
	ctx := context.Background()
	objs := newFakeObjectStore()
	idx := newTestIndex(t)

	e := &Engine{
		Objects:  objs,
		Refs:     &fakeRefReader{resolveErr: store.ErrNotFound, headTarget: githash.BranchRef("main")},
		Index:    idx,
		Worktree: &fakeWorktreeLister{entries: []WorktreeEntry{{Path: "new.txt", Size: 1, Mtime: time.Unix(0, 0), Mode: object.ModePlain}}},
	}

	sum, err := e.Calculate(ctx, Options{})
	require.NoError(t, err)
	require.Len(t, sum.Entries, 1)
	assert.Equal(t, WorkTreeUntracked, sum.Entries[0].WorkTreeStatus)
}
