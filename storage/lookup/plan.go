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

	apierrors "github.com/cubefs/graphdb/errors"
)

// Plan owns every execution node. Producer references are indices into
// the node slice, and execution order is a topological order derived once
// at Finalize.
type Plan struct {
	nodes     []Node
	order     []int
	finalized bool
}

func (p *Plan) AddNode(n Node) int {
	id := len(p.nodes)
	n.setID(id)
	p.nodes = append(p.nodes, n)
	return id
}

func (p *Plan) Node(id int) Node {
	return p.nodes[id]
}

func (p *Plan) NumNodes() int {
	return len(p.nodes)
}

// Finalize derives the execution order. The DAG is strictly acyclic; a
// cycle is a planner bug and fails the whole plan.
func (p *Plan) Finalize() error {
	inDegree := make([]int, len(p.nodes))
	consumers := make([][]int, len(p.nodes))
	for _, n := range p.nodes {
		for _, dep := range n.DependsOn() {
			inDegree[n.ID()]++
			consumers[dep] = append(consumers[dep], n.ID())
		}
	}

	queue := make([]int, 0, len(p.nodes))
	for id := range p.nodes {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]int, 0, len(p.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, consumer := range consumers[id] {
			inDegree[consumer]--
			if inDegree[consumer] == 0 {
				queue = append(queue, consumer)
			}
		}
	}
	if len(order) != len(p.nodes) {
		return apierrors.ErrPlanShape
	}
	p.order = order
	p.finalized = true
	return nil
}

// Execute runs every node in topological order.
func (p *Plan) Execute(ctx context.Context) error {
	if !p.finalized {
		if err := p.Finalize(); err != nil {
			return err
		}
	}
	for _, id := range p.order {
		if err := p.nodes[id].Execute(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Order exposes the derived execution order for inspection.
func (p *Plan) Order() []int {
	return p.order
}
