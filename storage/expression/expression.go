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

// Package expression models the residual filter of an index lookup: a
// small tree of logical, relational and property nodes evaluated against
// one row at a time. Evaluation follows three-valued logic; a missing
// property yields null and null never satisfies a filter.
package expression

import (
	"fmt"

	"github.com/cubefs/graphdb/proto"
)

type Kind int

const (
	KindConstant Kind = iota
	KindLogicalAnd
	KindLogicalOr
	KindRelEQ
	KindRelNE
	KindRelLT
	KindRelLE
	KindRelGT
	KindRelGE
	KindRelIn
	KindRelNotIn
	KindTagProperty
	KindEdgeProperty
	KindEdgeSrc
	KindEdgeType
	KindEdgeRank
	KindEdgeDst
)

func (k Kind) IsLogical() bool {
	return k == KindLogicalAnd || k == KindLogicalOr
}

func (k Kind) IsRelational() bool {
	return k >= KindRelEQ && k <= KindRelNotIn
}

func (k Kind) IsProperty() bool {
	return k >= KindTagProperty && k <= KindEdgeDst
}

type Expression struct {
	Kind     Kind
	Operands []*Expression // logical nodes
	Left     *Expression   // relational nodes
	Right    *Expression
	Prop     string      // property nodes
	Value    proto.Value // constants; a slice for In/NotIn
}

func And(operands ...*Expression) *Expression {
	return &Expression{Kind: KindLogicalAnd, Operands: operands}
}

func Or(operands ...*Expression) *Expression {
	return &Expression{Kind: KindLogicalOr, Operands: operands}
}

func rel(kind Kind, left, right *Expression) *Expression {
	return &Expression{Kind: kind, Left: left, Right: right}
}

func EQ(l, r *Expression) *Expression    { return rel(KindRelEQ, l, r) }
func NE(l, r *Expression) *Expression    { return rel(KindRelNE, l, r) }
func LT(l, r *Expression) *Expression    { return rel(KindRelLT, l, r) }
func LE(l, r *Expression) *Expression    { return rel(KindRelLE, l, r) }
func GT(l, r *Expression) *Expression    { return rel(KindRelGT, l, r) }
func GE(l, r *Expression) *Expression    { return rel(KindRelGE, l, r) }
func In(l, r *Expression) *Expression    { return rel(KindRelIn, l, r) }
func NotIn(l, r *Expression) *Expression { return rel(KindRelNotIn, l, r) }

func TagProp(name string) *Expression  { return &Expression{Kind: KindTagProperty, Prop: name} }
func EdgeProp(name string) *Expression { return &Expression{Kind: KindEdgeProperty, Prop: name} }
func EdgeSrc(name string) *Expression  { return &Expression{Kind: KindEdgeSrc, Prop: name} }
func EdgeTyp(name string) *Expression  { return &Expression{Kind: KindEdgeType, Prop: name} }
func EdgeRank(name string) *Expression { return &Expression{Kind: KindEdgeRank, Prop: name} }
func EdgeDst(name string) *Expression  { return &Expression{Kind: KindEdgeDst, Prop: name} }

func Const(v proto.Value) *Expression {
	return &Expression{Kind: KindConstant, Value: v}
}

// PropertyGetter resolves a property node during evaluation. The second
// return is false when the property is absent from the row.
type PropertyGetter func(kind Kind, prop string) (proto.Value, bool)

// Eval computes the expression over one row. The result is a bool, a
// comparable value, or nil for null.
func (e *Expression) Eval(get PropertyGetter) (proto.Value, error) {
	switch {
	case e.Kind == KindConstant:
		return e.Value, nil
	case e.Kind.IsProperty():
		v, ok := get(e.Kind, e.Prop)
		if !ok {
			return nil, nil
		}
		return v, nil
	case e.Kind.IsLogical():
		return e.evalLogical(get)
	case e.Kind.IsRelational():
		return e.evalRelational(get)
	default:
		return nil, fmt.Errorf("unknown expression kind %d", e.Kind)
	}
}

func (e *Expression) evalLogical(get PropertyGetter) (proto.Value, error) {
	sawNull := false
	for _, operand := range e.Operands {
		v, err := operand.Eval(get)
		if err != nil {
			return nil, err
		}
		if v == nil {
			sawNull = true
			continue
		}
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("logical operand is not a bool: %v", v)
		}
		if e.Kind == KindLogicalAnd && !b {
			return false, nil
		}
		if e.Kind == KindLogicalOr && b {
			return true, nil
		}
	}
	if sawNull {
		return nil, nil
	}
	return e.Kind == KindLogicalAnd, nil
}

func (e *Expression) evalRelational(get PropertyGetter) (proto.Value, error) {
	l, err := e.Left.Eval(get)
	if err != nil {
		return nil, err
	}
	r, err := e.Right.Eval(get)
	if err != nil {
		return nil, err
	}
	if l == nil || r == nil {
		return nil, nil
	}

	switch e.Kind {
	case KindRelIn, KindRelNotIn:
		set, ok := r.([]proto.Value)
		if !ok {
			return nil, fmt.Errorf("In operand is not a list: %v", r)
		}
		found := false
		for _, item := range set {
			if eq, err := valueEQ(l, item); err == nil && eq {
				found = true
				break
			}
		}
		if e.Kind == KindRelIn {
			return found, nil
		}
		return !found, nil
	case KindRelEQ:
		eq, err := valueEQ(l, r)
		return eq, err
	case KindRelNE:
		eq, err := valueEQ(l, r)
		return !eq, err
	}

	cmp, err := valueCompare(l, r)
	if err != nil {
		return nil, err
	}
	switch e.Kind {
	case KindRelLT:
		return cmp < 0, nil
	case KindRelLE:
		return cmp <= 0, nil
	case KindRelGT:
		return cmp > 0, nil
	case KindRelGE:
		return cmp >= 0, nil
	}
	return nil, fmt.Errorf("unknown relational kind %d", e.Kind)
}

func asFloat(v proto.Value) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func valueEQ(l, r proto.Value) (bool, error) {
	if lf, ok := asFloat(l); ok {
		rf, ok := asFloat(r)
		if !ok {
			return false, nil
		}
		return lf == rf, nil
	}
	return l == r, nil
}

func valueCompare(l, r proto.Value) (int, error) {
	if lf, ok := asFloat(l); ok {
		rf, ok := asFloat(r)
		if !ok {
			return 0, fmt.Errorf("cannot compare %v with %v", l, r)
		}
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		switch {
		case ls < rs:
			return -1, nil
		case ls > rs:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, fmt.Errorf("cannot compare %v with %v", l, r)
}
