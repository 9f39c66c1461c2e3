/*
 * Copyright 2024 Forge Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/** This is an implementation of the Lengauer-Tarjan algorithm described in
 *  https://doi.org/10.1145%2F357062.357071
 */

package codegen

import (
	"github.com/forgecc/forge/internal/ir"
)

type _LtNode struct {
	semi     int
	block    ir.Block
	dom      *_LtNode
	label    *_LtNode
	parent   *_LtNode
	ancestor *_LtNode
	pred     []*_LtNode
	bucket   map[*_LtNode]struct{}
}

type _LengauerTarjan struct {
	nodes  []*_LtNode
	vertex map[ir.Block]int
}

func newLengauerTarjan() *_LengauerTarjan {
	return &_LengauerTarjan{
		vertex: make(map[ir.Block]int),
	}
}

func (self *_LengauerTarjan) dfs(cfg *ir.ControlFlowGraph, bb ir.Block) {
	i := len(self.nodes)
	self.vertex[bb] = i

	/* create a new node */
	p := &_LtNode{
		semi:   i,
		block:  bb,
		bucket: make(map[*_LtNode]struct{}),
	}

	/* add to node list */
	p.label = p
	self.nodes = append(self.nodes, p)

	/* traverse the successors */
	for _, w := range cfg.Succs[bb] {
		idx, ok := self.vertex[w]

		/* not visited yet */
		if !ok {
			self.dfs(cfg, w)
			idx = self.vertex[w]
			self.nodes[idx].parent = p
		}

		/* add predecessors */
		q := self.nodes[idx]
		q.pred = append(q.pred, p)
	}
}

func (self *_LengauerTarjan) eval(p *_LtNode) *_LtNode {
	if p.ancestor == nil {
		return p
	} else {
		self.compress(p)
		return p.label
	}
}

func (self *_LengauerTarjan) link(p *_LtNode, q *_LtNode) {
	q.ancestor = p
}

func (self *_LengauerTarjan) compress(p *_LtNode) {
	if p.ancestor.ancestor != nil {
		self.compress(p.ancestor)
		if p.label.semi > p.ancestor.label.semi {
			p.label = p.ancestor.label
		}
		p.ancestor = p.ancestor.ancestor
	}
}

func minInt(a int, b int) int {
	if a < b {
		return a
	} else {
		return b
	}
}

// DominatorTree is the immediate-dominator relation over the blocks of one
// CFG snapshot. It is valid only relative to the CFG it was computed from
// and must be cleared whenever the CFG may have changed.
type DominatorTree struct {
	valid bool

	// Idom is the immediate dominator of each block; the entry block and
	// unreachable blocks have ir.NoBlock.
	Idom []ir.Block

	// Children lists the blocks immediately dominated by each block.
	Children [][]ir.Block
}

// Valid reports whether the tree reflects some prior Compute call.
func (self *DominatorTree) Valid() bool {
	return self.valid
}

// Clear drops the tree, retaining capacity.
func (self *DominatorTree) Clear() {
	self.valid = false
	for i := range self.Children {
		self.Children[i] = self.Children[i][:0]
	}
	self.Idom = self.Idom[:0]
	self.Children = self.Children[:0]
}

// Compute rebuilds the tree from fn and the given CFG snapshot.
func (self *DominatorTree) Compute(fn *ir.Function, cfg *ir.ControlFlowGraph) {
	self.Clear()
	nb := len(fn.Blocks)

	/* grow the relation tables */
	for len(self.Idom) < nb {
		self.Idom = append(self.Idom, ir.NoBlock)
	}
	for len(self.Children) < nb {
		self.Children = append(self.Children, nil)
	}
	for i := 0; i < nb; i++ {
		self.Idom[i] = ir.NoBlock
	}
	if nb == 0 {
		self.valid = true
		return
	}

	/* Step 1: Carry out a depth-first search of the problem graph. Number the vertices
	 * from 1 to n as they are reached during the search. Initialize the variables used
	 * in succeeding steps. */
	lt := newLengauerTarjan()
	lt.dfs(cfg, fn.Entry().ID)

	/* perform Step 2 and Step 3 simultaneously */
	for i := len(lt.nodes) - 1; i > 0; i-- {
		p := lt.nodes[i]
		q := (*_LtNode)(nil)

		/* Step 2: Compute the semidominators of all vertices by applying Theorem 4.
		 * Carry out the computation vertex by vertex in decreasing order by number. */
		for _, v := range p.pred {
			q = lt.eval(v)
			p.semi = minInt(p.semi, q.semi)
		}

		/* link the ancestor */
		lt.link(p.parent, p)
		lt.nodes[p.semi].bucket[p] = struct{}{}

		/* Step 3: Implicitly define the immediate dominator of each vertex by applying Corollary 1 */
		for v := range p.parent.bucket {
			if q = lt.eval(v); q.semi < v.semi {
				v.dom = q
			} else {
				v.dom = p.parent
			}
		}

		/* clear the bucket */
		for v := range p.parent.bucket {
			delete(p.parent.bucket, v)
		}
	}

	/* Step 4: Explicitly define the immediate dominator of each vertex, carrying out the
	 * computation vertex by vertex in increasing order by number. */
	for _, p := range lt.nodes[1:] {
		if p.dom.block != lt.nodes[p.semi].block {
			p.dom = p.dom.dom
		}
	}

	/* map the dominator relations */
	for _, p := range lt.nodes[1:] {
		self.Idom[p.block] = p.dom.block
		self.Children[p.dom.block] = append(self.Children[p.dom.block], p.block)
	}
	self.valid = true
}

// Dominates checks whether a dominates b. Every block dominates itself.
func (self *DominatorTree) Dominates(a ir.Block, b ir.Block) bool {
	for b != ir.NoBlock {
		if a == b {
			return true
		}
		b = self.Idom[b]
	}
	return false
}
