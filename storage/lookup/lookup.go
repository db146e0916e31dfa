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

// Package lookup compiles an index-query request into a DAG of execution
// nodes: scan, decode, filter, dedup, aggregate. The plan shape of each
// query context is a pure function of whether the request needs the full
// record (needData) and whether a residual filter remains (needFilter).
package lookup

import (
	"context"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/graphdb/proto"
	"github.com/cubefs/graphdb/storage/expression"
	"github.com/cubefs/graphdb/storage/schemaman"
)

// IndexQueryContext is one index choice: the scan hints plus an optional
// residual filter.
type IndexQueryContext struct {
	IndexID     proto.IndexID
	Filter      *expression.Expression
	ColumnHints []proto.IndexColumnHint
}

type LookupIndexRequest struct {
	SpaceID       proto.GraphSpaceID
	IsEdge        bool
	TagOrEdgeID   int32
	Contexts      []IndexQueryContext
	ReturnColumns []string
}

// PlanContext carries the per-request facts every node needs.
type PlanContext struct {
	SpaceID  proto.GraphSpaceID
	VidLen   int
	IsIntID  bool
	IsEdge   bool
	TagID    proto.TagID
	EdgeType proto.EdgeType
	TagName  string
	EdgeName string
	Schemas  []*proto.Schema // oldest first; last is active
	Source   Source
}

type LookupProcessor struct {
	schemaMan   schemaman.SchemaManager
	indexMan    schemaman.IndexManager
	source      Source
	vertexCache *VertexCache

	planCtx       *PlanContext
	contexts      []IndexQueryContext
	yieldCols     []string
	deDupColPos   []int
	resultDataSet proto.DataSet
}

func NewLookupProcessor(schemaMan schemaman.SchemaManager, indexMan schemaman.IndexManager, source Source, cache *VertexCache) *LookupProcessor {
	return &LookupProcessor{
		schemaMan:   schemaMan,
		indexMan:    indexMan,
		source:      source,
		vertexCache: cache,
	}
}

// Process validates the request, builds the plan and runs it.
func (p *LookupProcessor) Process(ctx context.Context, req *LookupIndexRequest) (*proto.DataSet, proto.ErrorCode) {
	span := trace.SpanFromContextSafe(ctx)

	if code := p.requestCheck(req); !code.OK() {
		return nil, code
	}

	plan, code := p.buildPlan()
	if !code.OK() {
		return nil, code
	}
	if err := plan.Finalize(); err != nil {
		span.Errorf("finalize lookup plan failed: %v", err)
		return nil, proto.ErrCodeUnknown
	}
	if err := plan.Execute(ctx); err != nil {
		span.Errorf("execute lookup plan failed: %v", err)
		return nil, proto.ErrCodeStoreFailure
	}
	return &p.resultDataSet, proto.Succeeded
}

// BuildPlan exposes plan construction without execution.
func (p *LookupProcessor) BuildPlan(req *LookupIndexRequest) (*Plan, proto.ErrorCode) {
	if code := p.requestCheck(req); !code.OK() {
		return nil, code
	}
	plan, code := p.buildPlan()
	if !code.OK() {
		return nil, code
	}
	if err := plan.Finalize(); err != nil {
		return nil, proto.ErrCodeUnknown
	}
	return plan, proto.Succeeded
}

func (p *LookupProcessor) requestCheck(req *LookupIndexRequest) proto.ErrorCode {
	vidLen, err := p.schemaMan.GetSpaceVidLen(req.SpaceID)
	if err != nil {
		return proto.ErrCodeSpaceNotFound
	}

	p.planCtx = &PlanContext{
		SpaceID: req.SpaceID,
		VidLen:  vidLen,
		IsEdge:  req.IsEdge,
		Source:  p.source,
	}
	if m, ok := p.schemaMan.(*schemaman.Manager); ok {
		p.planCtx.IsIntID, _ = m.IsIntVid(req.SpaceID)
	}

	if req.IsEdge {
		p.planCtx.EdgeType = req.TagOrEdgeID
		name, err := p.schemaMan.ToEdgeName(req.SpaceID, req.TagOrEdgeID)
		if err != nil {
			return proto.ErrCodeEdgeNotFound
		}
		p.planCtx.EdgeName = name
		allEdges, err := p.schemaMan.GetAllVerEdgeSchema(req.SpaceID)
		if err != nil {
			return proto.ErrCodeEdgeNotFound
		}
		schemas, ok := allEdges[req.TagOrEdgeID]
		if !ok {
			return proto.ErrCodeEdgeNotFound
		}
		p.planCtx.Schemas = schemas
	} else {
		p.planCtx.TagID = req.TagOrEdgeID
		name, err := p.schemaMan.ToTagName(req.SpaceID, req.TagOrEdgeID)
		if err != nil {
			return proto.ErrCodeTagNotFound
		}
		p.planCtx.TagName = name
		allTags, err := p.schemaMan.GetAllVerTagSchema(req.SpaceID)
		if err != nil {
			return proto.ErrCodeTagNotFound
		}
		schemas, ok := allTags[req.TagOrEdgeID]
		if !ok {
			return proto.ErrCodeTagNotFound
		}
		p.planCtx.Schemas = schemas
	}

	if len(req.Contexts) == 0 || len(req.ReturnColumns) == 0 {
		return proto.ErrCodeInvalidOperation
	}
	p.contexts = req.Contexts
	p.yieldCols = req.ReturnColumns

	p.resultDataSet = proto.DataSet{}
	p.deDupColPos = p.deDupColPos[:0]
	for i, col := range p.yieldCols {
		p.resultDataSet.ColNames = append(p.resultDataSet.ColNames, col)
		if _, ok := propsInKey[col]; ok {
			p.deDupColPos = append(p.deDupColPos, i)
		}
	}

	return proto.Succeeded
}

// isOutsideIndex reports whether the filter references any column beyond
// the chosen index's fields (or the fixed edge-key set).
func isOutsideIndex(filter *expression.Expression, index *proto.IndexItem) bool {
	switch {
	case filter.Kind.IsLogical():
		for _, operand := range filter.Operands {
			if isOutsideIndex(operand, index) {
				return true
			}
		}
	case filter.Kind.IsRelational():
		if isOutsideIndex(filter.Left, index) {
			return true
		}
		if isOutsideIndex(filter.Right, index) {
			return true
		}
	case filter.Kind == expression.KindEdgeSrc,
		filter.Kind == expression.KindEdgeType,
		filter.Kind == expression.KindEdgeRank,
		filter.Kind == expression.KindEdgeDst:
		_, ok := propsInEdgeKey[filter.Prop]
		return !ok
	case filter.Kind == expression.KindTagProperty,
		filter.Kind == expression.KindEdgeProperty:
		for i := range index.Fields {
			if index.Fields[i].Name == filter.Prop {
				return false
			}
		}
		return true
	}
	return false
}

// buildPlan assembles one scan pipeline per context, all feeding a shared
// DeDupNode and AggregateNode trailer.
//
//	            +--------+---------+
//	            |  AggregateNode   |
//	            +--------+---------+
//	                     |
//	            +--------+---------+
//	            |    DeDupNode     |
//	            +--------+---------+
//	                     |
//	          +----------+-----------+
//	          +  IndexOutputNode...  +
//	          +----------+-----------+
func (p *LookupProcessor) buildPlan() (*Plan, proto.ErrorCode) {
	plan := &Plan{}
	deDup := NewDeDupNode(&p.resultDataSet, append([]int(nil), p.deDupColPos...))

	for i := range p.contexts {
		ctx := &p.contexts[i]
		needFilter := ctx.Filter != nil

		var (
			index *proto.IndexItem
			err   error
		)
		if p.planCtx.IsEdge {
			index, err = p.indexMan.GetEdgeIndex(p.planCtx.SpaceID, ctx.IndexID)
		} else {
			index, err = p.indexMan.GetTagIndex(p.planCtx.SpaceID, ctx.IndexID)
		}
		if err != nil {
			return nil, proto.ErrCodeIndexNotFound
		}

		// the full record is needed once any yield column lives outside
		// the index entry
		needData := false
		for _, yieldCol := range p.yieldCols {
			if _, ok := propsInKey[yieldCol]; ok {
				continue
			}
			found := false
			for j := range index.Fields {
				if index.Fields[j].Name == yieldCol {
					found = true
					break
				}
			}
			if !found {
				needData = true
				break
			}
		}

		if needFilter && isOutsideIndex(ctx.Filter, index) {
			needData = true
		}

		var outID int
		switch {
		case !needData && !needFilter:
			outID = p.buildPlanBasic(ctx, plan)
		case needData && !needFilter:
			outID = p.buildPlanWithData(ctx, plan)
		case !needData && needFilter:
			outID = p.buildPlanWithFilter(ctx, plan)
		default:
			if len(p.planCtx.Schemas) == 0 {
				return nil, proto.ErrCodeTagNotFound
			}
			outID = p.buildPlanWithDataAndFilter(ctx, plan)
		}
		if outID < 0 {
			return nil, proto.ErrCodeUnknown
		}
		deDup.AddDependency(outID)
	}

	deDupID := plan.AddNode(deDup)
	aggr := NewAggregateNode(&p.resultDataSet)
	aggr.AddDependency(deDupID)
	plan.AddNode(aggr)
	return plan, proto.Succeeded
}

// Scan -> Output: every yield column is covered by the index entry and no
// residual filter remains.
func (p *LookupProcessor) buildPlanBasic(ctx *IndexQueryContext, plan *Plan) int {
	scanID := plan.AddNode(NewIndexScanNode(p.planCtx, ctx.IndexID, ctx.ColumnHints))
	output := NewIndexOutputNode(&p.resultDataSet, p.planCtx, p.yieldCols)
	output.AddDependency(scanID)
	return plan.AddNode(output)
}

// Scan -> Decode -> Output: a yield column lives outside the index entry.
func (p *LookupProcessor) buildPlanWithData(ctx *IndexQueryContext, plan *Plan) int {
	scanID := plan.AddNode(NewIndexScanNode(p.planCtx, ctx.IndexID, ctx.ColumnHints))
	decodeID := p.addDecodeNode(plan, scanID)
	output := NewIndexOutputNode(&p.resultDataSet, p.planCtx, p.yieldCols)
	output.AddDependency(decodeID)
	return plan.AddNode(output)
}

// Scan -> Filter -> Output: the filter runs over index-resident columns.
func (p *LookupProcessor) buildPlanWithFilter(ctx *IndexQueryContext, plan *Plan) int {
	scanID := plan.AddNode(NewIndexScanNode(p.planCtx, ctx.IndexID, ctx.ColumnHints))
	filter := NewIndexFilterNode(ctx.Filter, false)
	filter.AddDependency(scanID)
	filterID := plan.AddNode(filter)
	output := NewIndexOutputNode(&p.resultDataSet, p.planCtx, p.yieldCols)
	output.AddDependency(filterID)
	return plan.AddNode(output)
}

// Scan -> Decode -> Filter -> Output: the filter needs fully decoded rows.
func (p *LookupProcessor) buildPlanWithDataAndFilter(ctx *IndexQueryContext, plan *Plan) int {
	scanID := plan.AddNode(NewIndexScanNode(p.planCtx, ctx.IndexID, ctx.ColumnHints))
	decodeID := p.addDecodeNode(plan, scanID)
	filter := NewIndexFilterNode(ctx.Filter, true)
	filter.AddDependency(decodeID)
	filterID := plan.AddNode(filter)
	output := NewIndexOutputNode(&p.resultDataSet, p.planCtx, p.yieldCols)
	output.AddDependency(filterID)
	return plan.AddNode(output)
}

func (p *LookupProcessor) addDecodeNode(plan *Plan, scanID int) int {
	if p.planCtx.IsEdge {
		edge := NewIndexEdgeNode(p.planCtx)
		edge.AddDependency(scanID)
		return plan.AddNode(edge)
	}
	vertex := NewIndexVertexNode(p.planCtx, p.vertexCache)
	vertex.AddDependency(scanID)
	return plan.AddNode(vertex)
}
