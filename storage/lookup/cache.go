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

package lookup

import (
	"sync"

	"github.com/cubefs/graphdb/proto"
)

const defaultVertexCacheCap = 16 * 1024

// VertexCache memoizes decoded vertex records between lookups. Eviction
// is whole-cache on overflow; the cache is an accelerator, not a store.
type VertexCache struct {
	mu      sync.Mutex
	entries map[string]map[string]proto.Value
	cap     int
}

func NewVertexCache(capacity int) *VertexCache {
	if capacity <= 0 {
		capacity = defaultVertexCacheCap
	}
	return &VertexCache{
		entries: make(map[string]map[string]proto.Value),
		cap:     capacity,
	}
}

func (c *VertexCache) Get(key string) (map[string]proto.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	props, ok := c.entries[key]
	return props, ok
}

func (c *VertexCache) Put(key string, props map[string]proto.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.cap {
		c.entries = make(map[string]map[string]proto.Value)
	}
	c.entries[key] = props
}

func (c *VertexCache) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
