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

import "errors"

var (
	// ErrNotInProgress is returned by a sub-store's Read/update methods
	// when no operation of that kind has been begun.
	ErrNotInProgress = errors.New("transform: not in progress")

	// ErrAlreadyInProgress is returned by Begin when a sub-store already
	// has an operation recorded on disk.
	ErrAlreadyInProgress = errors.New("transform: already in progress")
)
