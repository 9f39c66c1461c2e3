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

package ir

import (
	"github.com/oleiade/lane"
)

// ControlFlowGraph is the predecessor/successor view derived from a
// Function's terminators. It is valid only as of the last Compute call;
// passes that touch block structure never update it in place, the
// compilation context recomputes it instead.
type ControlFlowGraph struct {
	Preds [][]Block
	Succs [][]Block
	valid bool
}

// Valid reports whether the graph reflects some prior Compute call.
// It says nothing about staleness relative to later function edits.
func (self *ControlFlowGraph) Valid() bool {
	return self.valid
}

// Clear drops the graph, retaining edge list capacity for reuse.
func (self *ControlFlowGraph) Clear() {
	self.valid = false
	for i := range self.Preds {
		self.Preds[i] = self.Preds[i][:0]
	}
	for i := range self.Succs {
		self.Succs[i] = self.Succs[i][:0]
	}
	self.Preds = self.Preds[:0]
	self.Succs = self.Succs[:0]
}

// Compute rebuilds the edge lists from fn's current terminators.
func (self *ControlFlowGraph) Compute(fn *Function) {
	nb := len(fn.Blocks)
	self.Clear()

	/* grow the edge tables as needed */
	for len(self.Preds) < nb {
		self.Preds = append(self.Preds, nil)
	}
	for len(self.Succs) < nb {
		self.Succs = append(self.Succs, nil)
	}

	/* one edge per terminator target, duplicates collapsed */
	for _, bb := range fn.Blocks {
		t := bb.Term()
		if t == nil {
			continue
		}
		for _, to := range t.Targets {
			if !blockin(self.Succs[bb.ID], to) {
				self.Succs[bb.ID] = append(self.Succs[bb.ID], to)
				self.Preds[to] = append(self.Preds[to], bb.ID)
			}
		}
	}
	self.valid = true
}

// PostOrder returns the blocks reachable from the entry in post-order.
func (self *ControlFlowGraph) PostOrder(fn *Function) []Block {
	if len(fn.Blocks) == 0 {
		return nil
	}

	/* iterative DFS, marking blocks on first push */
	ret := make([]Block, 0, len(fn.Blocks))
	vis := make([]bool, len(fn.Blocks))
	idx := make([]int, len(fn.Blocks))
	stk := lane.NewStack()

	/* start from the entry block */
	vis[0] = true
	stk.Push(Block(0))

	/* expand one unvisited successor at a time */
	for !stk.Empty() {
		bb := stk.Head().(Block)
		tail := true

		for idx[bb] < len(self.Succs[bb]) {
			nx := self.Succs[bb][idx[bb]]
			idx[bb]++
			if !vis[nx] {
				vis[nx] = true
				stk.Push(nx)
				tail = false
				break
			}
		}

		/* all successors done, emit the block */
		if tail {
			ret = append(ret, stk.Pop().(Block))
		}
	}
	return ret
}

// ReversePostOrder returns the blocks reachable from the entry in reverse
// post-order, the natural iteration order for forward dataflow.
func (self *ControlFlowGraph) ReversePostOrder(fn *Function) []Block {
	po := self.PostOrder(fn)
	blockreverse(po)
	return po
}

func blockin(s []Block, b Block) bool {
	for _, v := range s {
		if v == b {
			return true
		}
	}
	return false
}

func blockreverse(s []Block) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
