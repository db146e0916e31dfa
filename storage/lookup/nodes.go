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
	"context"
	"fmt"
	"strings"

	"github.com/cubefs/graphdb/proto"
	"github.com/cubefs/graphdb/storage/expression"
)

// key component column names
const (
	kVid  = "vid"
	kTag  = "tag"
	kSrc  = "src"
	kType = "type"
	kRank = "rank"
	kDst  = "dst"
)

var propsInKey = map[string]struct{}{
	kVid: {}, kTag: {}, kSrc: {}, kType: {}, kRank: {}, kDst: {},
}

var propsInEdgeKey = map[string]struct{}{
	kSrc: {}, kType: {}, kRank: {}, kDst: {},
}

// IndexEntry is one raw index row: the key components plus the column
// values resident in the index entry itself.
type IndexEntry struct {
	IndexKey []byte
	Keys     map[string]proto.Value
	Indexed  map[string]proto.Value
}

// Source is the physical access layer behind the plan: index scans and
// base record fetches. The index data structures themselves are out of
// the planner's sight.
type Source interface {
	ScanIndex(ctx context.Context, spaceID proto.GraphSpaceID, indexID proto.IndexID, hints []proto.IndexColumnHint) ([]IndexEntry, error)
	GetVertexProps(ctx context.Context, spaceID proto.GraphSpaceID, tagID proto.TagID, entry *IndexEntry) (map[string]proto.Value, error)
	GetEdgeProps(ctx context.Context, spaceID proto.GraphSpaceID, edgeType proto.EdgeType, entry *IndexEntry) (map[string]proto.Value, error)
}

// row is the unit flowing between nodes.
type row struct {
	entry *IndexEntry
	props map[string]proto.Value // populated by a decode node
}

type Node interface {
	ID() int
	setID(int)
	Name() string
	DependsOn() []int
	AddDependency(id int)
	Execute(ctx context.Context, plan *Plan) error
}

type rowProducer interface {
	rows() []*row
}

type baseNode struct {
	id   int
	deps []int
	out  []*row
}

func (n *baseNode) ID() int              { return n.id }
func (n *baseNode) setID(id int)         { n.id = id }
func (n *baseNode) DependsOn() []int     { return n.deps }
func (n *baseNode) AddDependency(id int) { n.deps = append(n.deps, id) }
func (n *baseNode) rows() []*row         { return n.out }

func inputRows(plan *Plan, deps []int) []*row {
	var in []*row
	for _, dep := range deps {
		in = append(in, plan.Node(dep).(rowProducer).rows()...)
	}
	return in
}

// IndexScanNode emits raw index entries for one (index, hints) pair.
type IndexScanNode struct {
	baseNode
	planCtx *PlanContext
	indexID proto.IndexID
	hints   []proto.IndexColumnHint
}

func NewIndexScanNode(planCtx *PlanContext, indexID proto.IndexID, hints []proto.IndexColumnHint) *IndexScanNode {
	return &IndexScanNode{planCtx: planCtx, indexID: indexID, hints: hints}
}

func (n *IndexScanNode) Name() string { return "IndexScanNode" }

func (n *IndexScanNode) Execute(ctx context.Context, plan *Plan) error {
	entries, err := n.planCtx.Source.ScanIndex(ctx, n.planCtx.SpaceID, n.indexID, n.hints)
	if err != nil {
		return err
	}
	n.out = n.out[:0]
	for i := range entries {
		n.out = append(n.out, &row{entry: &entries[i]})
	}
	return nil
}

// IndexVertexNode fetches the full vertex record for each scan entry,
// consulting the vertex cache first.
type IndexVertexNode struct {
	baseNode
	planCtx *PlanContext
	cache   *VertexCache
}

func NewIndexVertexNode(planCtx *PlanContext, cache *VertexCache) *IndexVertexNode {
	return &IndexVertexNode{planCtx: planCtx, cache: cache}
}

func (n *IndexVertexNode) Name() string { return "IndexVertexNode" }

func (n *IndexVertexNode) Execute(ctx context.Context, plan *Plan) error {
	n.out = n.out[:0]
	for _, in := range inputRows(plan, n.deps) {
		cacheKey := fmt.Sprintf("%v:%d", in.entry.Keys[kVid], n.planCtx.TagID)
		if n.cache != nil {
			if props, ok := n.cache.Get(cacheKey); ok {
				n.out = append(n.out, &row{entry: in.entry, props: props})
				continue
			}
		}
		props, err := n.planCtx.Source.GetVertexProps(ctx, n.planCtx.SpaceID, n.planCtx.TagID, in.entry)
		if err != nil {
			return err
		}
		if n.cache != nil {
			n.cache.Put(cacheKey, props)
		}
		n.out = append(n.out, &row{entry: in.entry, props: props})
	}
	return nil
}

// IndexEdgeNode fetches the full edge record for each scan entry.
type IndexEdgeNode struct {
	baseNode
	planCtx *PlanContext
}

func NewIndexEdgeNode(planCtx *PlanContext) *IndexEdgeNode {
	return &IndexEdgeNode{planCtx: planCtx}
}

func (n *IndexEdgeNode) Name() string { return "IndexEdgeNode" }

func (n *IndexEdgeNode) Execute(ctx context.Context, plan *Plan) error {
	n.out = n.out[:0]
	for _, in := range inputRows(plan, n.deps) {
		props, err := n.planCtx.Source.GetEdgeProps(ctx, n.planCtx.SpaceID, n.planCtx.EdgeType, in.entry)
		if err != nil {
			return err
		}
		n.out = append(n.out, &row{entry: in.entry, props: props})
	}
	return nil
}

// IndexFilterNode evaluates the residual filter. Before decoding it sees
// only the index-resident columns; after decoding it sees the full row.
// Rows evaluating to false or null are dropped.
type IndexFilterNode struct {
	baseNode
	filter    *expression.Expression
	onDecoded bool
}

func NewIndexFilterNode(filter *expression.Expression, onDecoded bool) *IndexFilterNode {
	return &IndexFilterNode{filter: filter, onDecoded: onDecoded}
}

func (n *IndexFilterNode) Name() string { return "IndexFilterNode" }

func (n *IndexFilterNode) Execute(ctx context.Context, plan *Plan) error {
	n.out = n.out[:0]
	for _, in := range inputRows(plan, n.deps) {
		in := in
		getter := func(kind expression.Kind, prop string) (proto.Value, bool) {
			return resolveProperty(in, kind, prop, n.onDecoded)
		}
		v, err := n.filter.Eval(getter)
		if err != nil {
			return err
		}
		if keep, ok := v.(bool); ok && keep {
			n.out = append(n.out, in)
		}
	}
	return nil
}

func resolveProperty(r *row, kind expression.Kind, prop string, onDecoded bool) (proto.Value, bool) {
	switch kind {
	case expression.KindEdgeSrc, expression.KindEdgeType, expression.KindEdgeRank, expression.KindEdgeDst:
		v, ok := r.entry.Keys[prop]
		return v, ok
	}
	if onDecoded && r.props != nil {
		v, ok := r.props[prop]
		return v, ok
	}
	if v, ok := r.entry.Indexed[prop]; ok {
		return v, true
	}
	v, ok := r.entry.Keys[prop]
	return v, ok
}

// IndexOutputNode projects the yield list into the result dataset, in the
// declared order.
type IndexOutputNode struct {
	baseNode
	planCtx   *PlanContext
	result    *proto.DataSet
	yieldCols []string
}

func NewIndexOutputNode(result *proto.DataSet, planCtx *PlanContext, yieldCols []string) *IndexOutputNode {
	return &IndexOutputNode{planCtx: planCtx, result: result, yieldCols: yieldCols}
}

func (n *IndexOutputNode) Name() string { return "IndexOutputNode" }

func (n *IndexOutputNode) Execute(ctx context.Context, plan *Plan) error {
	for _, in := range inputRows(plan, n.deps) {
		values := make([]proto.Value, 0, len(n.yieldCols))
		for _, col := range n.yieldCols {
			values = append(values, projectColumn(in, col))
		}
		n.result.Rows = append(n.result.Rows, proto.Row{Values: values})
	}
	return nil
}

func projectColumn(r *row, col string) proto.Value {
	if _, ok := propsInKey[col]; ok {
		return r.entry.Keys[col]
	}
	if r.props != nil {
		if v, ok := r.props[col]; ok {
			return v
		}
	}
	if v, ok := r.entry.Indexed[col]; ok {
		return v
	}
	return nil
}

// DeDupNode drops duplicate result rows by the positions declared at
// construction; survivors keep first-appearance order.
type DeDupNode struct {
	baseNode
	result   *proto.DataSet
	dedupPos []int
}

func NewDeDupNode(result *proto.DataSet, dedupPos []int) *DeDupNode {
	return &DeDupNode{result: result, dedupPos: dedupPos}
}

func (n *DeDupNode) Name() string { return "DeDupNode" }

func (n *DeDupNode) Execute(ctx context.Context, plan *Plan) error {
	if len(n.dedupPos) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(n.result.Rows))
	kept := n.result.Rows[:0]
	for _, r := range n.result.Rows {
		var sb strings.Builder
		for _, pos := range n.dedupPos {
			if pos < len(r.Values) {
				fmt.Fprintf(&sb, "%v|", r.Values[pos])
			}
		}
		key := sb.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, r)
	}
	n.result.Rows = kept
	return nil
}

// AggregateNode finalizes the dataset.
type AggregateNode struct {
	baseNode
	result   *proto.DataSet
	RowCount int
}

func NewAggregateNode(result *proto.DataSet) *AggregateNode {
	return &AggregateNode{result: result}
}

func (n *AggregateNode) Name() string { return "AggregateNode" }

func (n *AggregateNode) Execute(ctx context.Context, plan *Plan) error {
	n.RowCount = len(n.result.Rows)
	return nil
}
