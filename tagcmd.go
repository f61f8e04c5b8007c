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
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

// TagResult is the outcome of a TagCommand.
type TagResult struct {
	Created string
	Deleted string
	Tags    []string
	// ObjectID is the id the created tag's ref points to: the annotated tag
	// object's id if a message was set, or the target commit's id for a
	// lightweight tag.
	ObjectID githash.SHA1
}

// TagCommand creates, deletes, or lists tags (refs/tags/*). Setting a
// message creates an annotated tag object; otherwise the ref points
// directly at the target commit ("lightweight" tag).
type TagCommand struct {
	called
	wc *WorkingCopy

	create     string
	startPoint string
	message    string
	tagger     object.User
	delete     string
	force      bool
}

// Tag returns a new TagCommand bound to wc.
func (wc *WorkingCopy) Tag() *TagCommand {
	return &TagCommand{wc: wc}
}

// SetCreate names the tag to create.
func (c *TagCommand) SetCreate(name string) *TagCommand {
	if c.check() == nil {
		c.create = name
	}
	return c
}

// SetStartPoint names the commit-ish a created tag refers to. The default
// is HEAD.
func (c *TagCommand) SetStartPoint(name string) *TagCommand {
	if c.check() == nil {
		c.startPoint = name
	}
	return c
}

// SetMessage makes the created tag an annotated tag object carrying
// message and tagger.
func (c *TagCommand) SetMessage(message string, tagger object.User) *TagCommand {
	if c.check() == nil {
		c.message = message
		c.tagger = tagger
	}
	return c
}

// SetDelete names the tag to delete.
func (c *TagCommand) SetDelete(name string) *TagCommand {
	if c.check() == nil {
		c.delete = name
	}
	return c
}

// SetForce allows creating a tag that already exists, moving it.
func (c *TagCommand) SetForce(v bool) *TagCommand {
	if c.check() == nil {
		c.force = v
	}
	return c
}

// Run executes the command.
func (c *TagCommand) Run(ctx context.Context) (TagResult, error) {
	if err := c.check(); err != nil {
		return TagResult{}, err
	}
	c.markDone()

	if err := c.wc.lock(); err != nil {
		return TagResult{}, err
	}
	defer c.wc.unlock()

	switch {
	case c.create != "":
		return c.runCreate(ctx)
	case c.delete != "":
		return c.runDelete()
	default:
		return c.runList()
	}
}

func (c *TagCommand) runCreate(ctx context.Context) (TagResult, error) {
	ref := githash.TagRef(c.create)
	if c.wc.refs.Has(ref) && !c.force {
		return TagResult{}, fmt.Errorf("tag %s: %w", c.create, ErrConflict)
	}
	var commitID githash.SHA1
	var err error
	if c.startPoint == "" {
		commitID, err = c.wc.refs.Resolve(githash.Head)
	} else {
		commitID, _, _, err = c.wc.resolveCommittish(c.startPoint)
	}
	if err != nil {
		return TagResult{}, fmt.Errorf("tag %s: %w", c.create, err)
	}

	targetID := commitID
	if c.message != "" {
		tagger := c.tagger
		if tagger == "" {
			tagger = object.User(c.wc.config.Value("user.name") + " <" + c.wc.config.Value("user.email") + ">")
		}
		tag := &object.Tag{
			ObjectID:   commitID,
			ObjectType: object.TypeCommit,
			Name:       c.create,
			Tagger:     tagger,
			Time:       time.Now(),
			Message:    c.message,
		}
		data, err := tag.MarshalText()
		if err != nil {
			return TagResult{}, fmt.Errorf("tag %s: %w", c.create, err)
		}
		targetID, err = c.wc.objects.WriteObject(ctx, object.TypeTag, int64(len(data)), bytes.NewReader(data))
		if err != nil {
			return TagResult{}, fmt.Errorf("tag %s: %w", c.create, err)
		}
	}

	if err := c.wc.refs.Set(ref, targetID); err != nil {
		return TagResult{}, fmt.Errorf("tag %s: %w", c.create, err)
	}
	return TagResult{Created: c.create, ObjectID: targetID}, nil
}

func (c *TagCommand) runDelete() (TagResult, error) {
	ref := githash.TagRef(c.delete)
	if !c.wc.refs.Has(ref) {
		return TagResult{}, fmt.Errorf("tag %s: %w", c.delete, ErrRefNotFound)
	}
	if err := c.wc.refs.Delete(ref); err != nil {
		return TagResult{}, fmt.Errorf("tag %s: %w", c.delete, err)
	}
	return TagResult{Deleted: c.delete}, nil
}

func (c *TagCommand) runList() (TagResult, error) {
	refs, err := c.wc.refs.List("refs/tags/")
	if err != nil {
		return TagResult{}, fmt.Errorf("tag: %w", err)
	}
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, strings.TrimPrefix(r.String(), "refs/tags/"))
	}
	sort.Strings(names)
	return TagResult{Tags: names}, nil
}
