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

// Package schemaman serves read-only schema and index descriptors to the
// storage node. Views are immutable snapshots rebuilt from the catalog on
// demand; concurrent rebuilds of the same space collapse into one load.
package schemaman

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apierrors "github.com/cubefs/graphdb/errors"
	"github.com/cubefs/graphdb/meta/metakey"
	"github.com/cubefs/graphdb/meta/metastore"
	"github.com/cubefs/graphdb/proto"
	"golang.org/x/sync/singleflight"
)

type SchemaManager interface {
	ToTagName(spaceID proto.GraphSpaceID, tagID proto.TagID) (string, error)
	ToEdgeName(spaceID proto.GraphSpaceID, edgeType proto.EdgeType) (string, error)
	// GetAllVerTagSchema returns every schema version per tag, oldest
	// first; the last entry is the active one.
	GetAllVerTagSchema(spaceID proto.GraphSpaceID) (map[proto.TagID][]*proto.Schema, error)
	GetAllVerEdgeSchema(spaceID proto.GraphSpaceID) (map[proto.EdgeType][]*proto.Schema, error)
	GetSpaceVidLen(spaceID proto.GraphSpaceID) (int, error)
}

type IndexManager interface {
	GetTagIndex(spaceID proto.GraphSpaceID, indexID proto.IndexID) (*proto.IndexItem, error)
	GetEdgeIndex(spaceID proto.GraphSpaceID, indexID proto.IndexID) (*proto.IndexItem, error)
}

// spaceView is one immutable snapshot of a space's descriptors.
type spaceView struct {
	desc      *proto.SpaceDesc
	tagNames  map[proto.TagID]string
	edgeNames map[proto.EdgeType]string
	tags      map[proto.TagID][]*proto.Schema
	edges     map[proto.EdgeType][]*proto.Schema
	indexes   map[proto.IndexID]*proto.IndexItem
}

// Manager implements both read-only caches over the catalog store.
type Manager struct {
	kv metastore.Store

	mu     sync.RWMutex
	views  map[proto.GraphSpaceID]*spaceView
	single singleflight.Group
}

func NewManager(kv metastore.Store) *Manager {
	return &Manager{kv: kv, views: make(map[proto.GraphSpaceID]*spaceView)}
}

// Invalidate drops the cached view; the next read reloads it.
func (m *Manager) Invalidate(spaceID proto.GraphSpaceID) {
	m.mu.Lock()
	delete(m.views, spaceID)
	m.mu.Unlock()
}

func (m *Manager) view(spaceID proto.GraphSpaceID) (*spaceView, error) {
	m.mu.RLock()
	v, ok := m.views[spaceID]
	m.mu.RUnlock()
	if ok {
		return v, nil
	}

	ret, err, _ := m.single.Do(fmt.Sprintf("space-%d", spaceID), func() (interface{}, error) {
		v, err := m.load(spaceID)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.views[spaceID] = v
		m.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return ret.(*spaceView), nil
}

func (m *Manager) load(spaceID proto.GraphSpaceID) (*spaceView, error) {
	ctx := context.Background()

	raw, err := m.kv.Get(ctx, metakey.SpaceKey(spaceID))
	if err != nil {
		return nil, apierrors.ErrSpaceNotExist
	}
	desc, err := metakey.ParseSpaceVal(raw)
	if err != nil {
		return nil, err
	}

	v := &spaceView{
		desc:      desc,
		tagNames:  make(map[proto.TagID]string),
		edgeNames: make(map[proto.EdgeType]string),
		tags:      make(map[proto.TagID][]*proto.Schema),
		edges:     make(map[proto.EdgeType][]*proto.Schema),
		indexes:   make(map[proto.IndexID]*proto.IndexItem),
	}

	// id -> name from the name index family
	if err = m.scan(ctx, metakey.IndexTagPrefix(spaceID), func(key, val []byte) {
		v.tagNames[metakey.ParseID(val)] = string(key[6:])
	}); err != nil {
		return nil, err
	}
	if err = m.scan(ctx, metakey.IndexEdgePrefix(spaceID), func(key, val []byte) {
		v.edgeNames[metakey.ParseID(val)] = string(key[6:])
	}); err != nil {
		return nil, err
	}

	// all schema versions; iteration order is newest first per id
	if err = m.scan(ctx, metakey.SchemaTagsPrefix(spaceID), func(key, val []byte) {
		schema, perr := metakey.ParseSchemaVal(val)
		if perr != nil {
			return
		}
		tagID := metakey.ParseTagID(key)
		v.tags[tagID] = append(v.tags[tagID], schema)
	}); err != nil {
		return nil, err
	}
	if err = m.scan(ctx, metakey.SchemaEdgesPrefix(spaceID), func(key, val []byte) {
		schema, perr := metakey.ParseSchemaVal(val)
		if perr != nil {
			return
		}
		edgeType := metakey.ParseEdgeType(key)
		v.edges[edgeType] = append(v.edges[edgeType], schema)
	}); err != nil {
		return nil, err
	}
	for _, schemas := range v.tags {
		sortSchemas(schemas)
	}
	for _, schemas := range v.edges {
		sortSchemas(schemas)
	}

	if err = m.scan(ctx, metakey.IndexPrefix(spaceID), func(key, val []byte) {
		item, perr := metakey.ParseIndexVal(val)
		if perr != nil {
			return
		}
		v.indexes[item.IndexID] = item
	}); err != nil {
		return nil, err
	}

	return v, nil
}

func (m *Manager) scan(ctx context.Context, prefix []byte, fn func(key, val []byte)) error {
	iter, err := m.kv.Prefix(ctx, prefix)
	if err != nil {
		return err
	}
	defer iter.Close()
	for ; iter.Valid(); iter.Next() {
		fn(iter.Key(), iter.Val())
	}
	return iter.Err()
}

func sortSchemas(schemas []*proto.Schema) {
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Version < schemas[j].Version })
}

func (m *Manager) ToTagName(spaceID proto.GraphSpaceID, tagID proto.TagID) (string, error) {
	v, err := m.view(spaceID)
	if err != nil {
		return "", err
	}
	name, ok := v.tagNames[tagID]
	if !ok {
		return "", apierrors.ErrTagNotExist
	}
	return name, nil
}

func (m *Manager) ToEdgeName(spaceID proto.GraphSpaceID, edgeType proto.EdgeType) (string, error) {
	v, err := m.view(spaceID)
	if err != nil {
		return "", err
	}
	name, ok := v.edgeNames[edgeType]
	if !ok {
		return "", apierrors.ErrEdgeNotExist
	}
	return name, nil
}

func (m *Manager) GetAllVerTagSchema(spaceID proto.GraphSpaceID) (map[proto.TagID][]*proto.Schema, error) {
	v, err := m.view(spaceID)
	if err != nil {
		return nil, err
	}
	return v.tags, nil
}

func (m *Manager) GetAllVerEdgeSchema(spaceID proto.GraphSpaceID) (map[proto.EdgeType][]*proto.Schema, error) {
	v, err := m.view(spaceID)
	if err != nil {
		return nil, err
	}
	return v.edges, nil
}

func (m *Manager) GetSpaceVidLen(spaceID proto.GraphSpaceID) (int, error) {
	v, err := m.view(spaceID)
	if err != nil {
		return 0, err
	}
	if v.desc.Vid.Type == proto.PropertyTypeInt64 {
		return 8, nil
	}
	if v.desc.Vid.Length > 0 {
		return int(v.desc.Vid.Length), nil
	}
	return 8, nil
}

// IsIntVid reports whether the space addresses vertices by integer id.
func (m *Manager) IsIntVid(spaceID proto.GraphSpaceID) (bool, error) {
	v, err := m.view(spaceID)
	if err != nil {
		return false, err
	}
	return v.desc.Vid.Type == proto.PropertyTypeInt64, nil
}

func (m *Manager) GetTagIndex(spaceID proto.GraphSpaceID, indexID proto.IndexID) (*proto.IndexItem, error) {
	return m.index(spaceID, indexID, proto.SchemaIDTag)
}

func (m *Manager) GetEdgeIndex(spaceID proto.GraphSpaceID, indexID proto.IndexID) (*proto.IndexItem, error) {
	return m.index(spaceID, indexID, proto.SchemaIDEdge)
}

func (m *Manager) index(spaceID proto.GraphSpaceID, indexID proto.IndexID, kind proto.SchemaIDKind) (*proto.IndexItem, error) {
	v, err := m.view(spaceID)
	if err != nil {
		return nil, err
	}
	item, ok := v.indexes[indexID]
	if !ok || item.SchemaID.Kind != kind {
		return nil, apierrors.ErrIndexNotExist
	}
	return item, nil
}
