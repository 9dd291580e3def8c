// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package bucketmap

import "errors"

var (
	// ErrInvalidArgument is returned (or, for empty keys, panicked with) when
	// the caller violates the Map contract: a non-positive primary capacity, a
	// nil hash function, a base bucket size below 2 or an empty key.
	ErrInvalidArgument = errors.New("bucketmap: invalid argument")

	// ErrAllocationFailure is returned when the Allocator cannot provide the
	// memory needed to grow a bucket. The bucket is left exactly as it was
	// before the failed operation.
	ErrAllocationFailure = errors.New("bucketmap: allocation failure")
)
