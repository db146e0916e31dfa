// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package metastore

import "context"

// The synchronous adapter: each helper wraps one async call with a
// single-shot completion latch. Blocking here is the only suspension
// point a processor has on the replicated path.

func SyncMultiPut(ctx context.Context, s Store, kvs []KV) error {
	done := make(chan error, 1)
	s.AsyncMultiPut(ctx, kvs, func(err error) { done <- err })
	return <-done
}

func SyncRemove(ctx context.Context, s Store, key []byte) error {
	done := make(chan error, 1)
	s.AsyncRemove(ctx, key, func(err error) { done <- err })
	return <-done
}

func SyncMultiRemove(ctx context.Context, s Store, keys [][]byte) error {
	done := make(chan error, 1)
	s.AsyncMultiRemove(ctx, keys, func(err error) { done <- err })
	return <-done
}

func SyncRemoveRange(ctx context.Context, s Store, start, end []byte) error {
	done := make(chan error, 1)
	s.AsyncRemoveRange(ctx, start, end, func(err error) { done <- err })
	return <-done
}

func SyncAtomicOp(ctx context.Context, s Store, op AtomicOp) error {
	done := make(chan error, 1)
	s.AsyncAtomicOp(ctx, op, func(err error) { done <- err })
	return <-done
}
