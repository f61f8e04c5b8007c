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

package store

import "errors"

// Sentinel errors for the L0/L1 contract. Use errors.Is to test for these;
// wrapped context is added with %w at each call site.
var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("store: not found")
	// ErrAlreadyInBatch names a write attempted while a batch is open on
	// the same store. Store.WriteObject does not return it: non-batched
	// writes are accepted while a batch is open.
	ErrAlreadyInBatch = errors.New("store: write attempted while batch is open")
	// ErrMissingBase is returned when a delta's base object cannot be resolved.
	ErrMissingBase = errors.New("store: delta base object missing")
	// ErrChecksumMismatch is returned when a resolved delta's checksum does
	// not match the expected value.
	ErrChecksumMismatch = errors.New("store: checksum mismatch")
	// ErrChainTooDeep names a delta whose acceptance would exceed
	// maxChainDepth. Batch.Deltify does not return it: candidates that
	// would exceed the depth are skipped.
	ErrChainTooDeep = errors.New("store: delta chain too deep")
	// ErrBatchInProgress is returned by StartBatch when a batch is already open.
	ErrBatchInProgress = errors.New("store: batch already in progress")
	// ErrNoBatch is returned by EndBatch/CancelBatch when no batch is open.
	ErrNoBatch = errors.New("store: no batch in progress")
	// ErrCasFailure is returned by Refs.CompareAndSwap when expected did not
	// match the ref's current value.
	ErrCasFailure = errors.New("store: compare-and-swap failed")
)

// DeltaNotBeneficial is a soft outcome, not an error: Batch.Deltify returns
// (false, nil) rather than an error when no candidate meets the ratio/size
// thresholds.
