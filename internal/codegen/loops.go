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

package codegen

import (
	"github.com/oleiade/lane"

	"github.com/forgecc/forge/internal/ir"
)

// Loop is one natural loop: a header plus every block that can reach one of
// the header's back edges without leaving the loop.
type Loop struct {
	Header ir.Block
	Blocks []ir.Block
	member map[ir.Block]struct{}
}

// Contains checks whether bb belongs to the loop.
func (self *Loop) Contains(bb ir.Block) bool {
	_, ok := self.member[bb]
	return ok
}

// LoopAnalysis is the loop-nest forest identified from back edges. It is
// computed from a CFG and the dominator tree of the same snapshot, and is
// invalidated together with the dominator tree; it must never be derived
// from a stale one.
type LoopAnalysis struct {
	valid bool
	Loops []Loop
}

// Valid reports whether the analysis reflects some prior Compute call.
func (self *LoopAnalysis) Valid() bool {
	return self.valid
}

// Clear drops the analysis, retaining capacity.
func (self *LoopAnalysis) Clear() {
	self.valid = false
	self.Loops = self.Loops[:0]
}

// Compute finds every natural loop of fn. A CFG edge b -> h is a back edge
// iff h dominates b; the loop body is collected by a backward walk from the
// latches, stopping at the header.
func (self *LoopAnalysis) Compute(fn *ir.Function, cfg *ir.ControlFlowGraph, domtree *DominatorTree) {
	self.Clear()
	latches := make(map[ir.Block][]ir.Block)

	/* identify the back edges */
	for _, bb := range fn.Blocks {
		for _, h := range cfg.Succs[bb.ID] {
			if domtree.Dominates(h, bb.ID) {
				latches[h] = append(latches[h], bb.ID)
			}
		}
	}

	/* one loop per distinct header, walked in block order for determinism */
	for _, bb := range fn.Blocks {
		lt, ok := latches[bb.ID]
		if !ok {
			continue
		}

		/* collect the body with a backward BFS from the latches */
		lp := Loop{Header: bb.ID, member: map[ir.Block]struct{}{bb.ID: {}}}
		lp.Blocks = append(lp.Blocks, bb.ID)
		q := lane.NewQueue()
		for _, l := range lt {
			q.Enqueue(l)
		}

		for !q.Empty() {
			v := q.Dequeue().(ir.Block)
			if _, seen := lp.member[v]; seen {
				continue
			}
			lp.member[v] = struct{}{}
			lp.Blocks = append(lp.Blocks, v)
			for _, p := range cfg.Preds[v] {
				q.Enqueue(p)
			}
		}
		self.Loops = append(self.Loops, lp)
	}
	self.valid = true
}
