// Copyright 2020 The gg Authors
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

package object

import (
	"context"
	"fmt"
	"io"

	"vcskit.dev/pkg/git/githash"
)

// ObjectWriter is the narrow capability a blob needs to persist itself: an
// object store that accepts a framed object and returns its id. Stores
// implement this by hashing the stream as it is written.
type ObjectWriter interface {
	WriteObject(ctx context.Context, typ Type, size int64, r io.Reader) (githash.SHA1, error)
}

// ObjectReader is the narrow capability a blob needs to read itself back: an
// object store that opens an object's payload by id, along with its prefix.
type ObjectReader interface {
	OpenObject(ctx context.Context, id githash.SHA1) (Prefix, io.ReadCloser, error)
}

// StoreBlob streams r (exactly size bytes) into w as a blob object and
// returns its id. This is BlobSum plus the actual write; callers that only
// need the id without persisting should call BlobSum directly.
func StoreBlob(ctx context.Context, w ObjectWriter, r io.Reader, size int64) (githash.SHA1, error) {
	id, err := w.WriteObject(ctx, TypeBlob, size, r)
	if err != nil {
		return githash.SHA1{}, fmt.Errorf("store git blob: %w", err)
	}
	return id, nil
}

// OpenBlob opens the blob with the given id for reading. It returns an error
// if the object exists but is not a blob.
func OpenBlob(ctx context.Context, r ObjectReader, id githash.SHA1) (io.ReadCloser, error) {
	prefix, rc, err := r.OpenObject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open git blob %v: %w", id, err)
	}
	if prefix.Type != TypeBlob {
		rc.Close()
		return nil, fmt.Errorf("open git blob %v: object is a %s, not a blob", id, prefix.Type)
	}
	return rc, nil
}
