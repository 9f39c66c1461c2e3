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
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/flow"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/forgecc/forge/internal/ir"
	"github.com/forgecc/forge/internal/isa"
)

type _Verifier struct {
	list []Violation
}

func (self *_Verifier) errf(bb ir.Block, i int, format string, args ...interface{}) {
	self.list = append(self.list, Violation{
		Block: bb,
		Instr: i,
		Msg:   fmt.Sprintf(format, args...),
	})
}

// verifyFunction checks the structural consistency of fn, and of the CFG
// and dominator tree when they claim to be valid. It returns every
// violation it finds in one sweep.
func (self *_Verifier) verifyFunction(fn *ir.Function, cfg *ir.ControlFlowGraph, domtree *DominatorTree) {
	nb := len(fn.Blocks)
	nv := fn.NumValues()

	if nb == 0 {
		self.errf(ir.NoBlock, -1, "function has no entry block")
		return
	}

	/* per-block structure */
	defs := make([]int, nv)
	for _, bb := range fn.Blocks {
		if len(bb.Ins) == 0 {
			self.errf(bb.ID, -1, "empty basic block")
			continue
		}
		if bb.Term() == nil {
			self.errf(bb.ID, -1, "block does not end in a terminator")
		}

		for i := range bb.Ins {
			p := &bb.Ins[i]

			/* terminators may only appear last */
			if p.Op.IsTerminator() && i != len(bb.Ins)-1 {
				self.errf(bb.ID, i, "terminator %s in the middle of a block", p.Op)
			}

			/* branch targets must exist */
			for _, to := range p.Targets {
				if int(to) < 0 || int(to) >= nb {
					self.errf(bb.ID, i, "branch to non-existent block %s", to)
				}
			}
			switch p.Op {
			case ir.OpJump:
				if len(p.Targets) != 1 {
					self.errf(bb.ID, i, "jump must have exactly one target")
				}
			case ir.OpBrz:
				if len(p.Targets) != 2 {
					self.errf(bb.ID, i, "brz must have exactly two targets")
				}
			case ir.OpBrTable:
				if len(p.Targets) < 1 {
					self.errf(bb.ID, i, "br_table must have a default target")
				}
			case ir.OpReturn:
				self.checkReturn(fn, bb.ID, i, p)
			}

			/* value defs and uses must be in range, defs unique */
			if p.Def != ir.NoValue {
				if int(p.Def) < 0 || int(p.Def) >= nv {
					self.errf(bb.ID, i, "definition of out-of-range value %s", p.Def)
				} else if defs[p.Def]++; defs[p.Def] > 1 {
					self.errf(bb.ID, i, "value %s defined more than once", p.Def)
				}
			}
			for _, u := range p.Uses() {
				if u != ir.NoValue && (int(u) < 0 || int(u) >= nv) {
					self.errf(bb.ID, i, "use of out-of-range value %s", u)
				}
			}
		}
	}

	/* the CFG, if computed, must match the current terminators */
	if cfg != nil && cfg.Valid() {
		self.checkCFG(fn, cfg)
	}

	/* the dominator tree, if computed, must agree with an independent
	 * implementation run against the same CFG snapshot */
	if domtree != nil && domtree.Valid() && cfg != nil && cfg.Valid() {
		self.checkDomTree(fn, cfg, domtree)
	}
}

func (self *_Verifier) checkReturn(fn *ir.Function, bb ir.Block, i int, p *ir.Instr) {
	nr := len(fn.Sig.Returns)
	switch {
	case nr == 0 && p.Args[0] != ir.NoValue:
		self.errf(bb, i, "return with a value from a void function")
	case nr == 1 && p.Args[0] == ir.NoValue:
		self.errf(bb, i, "return without a value")
	case nr == 1 && int(p.Args[0]) < fn.NumValues() && p.Args[0] >= 0 && fn.TypeOf(p.Args[0]) != fn.Sig.Returns[0]:
		self.errf(bb, i, "return type mismatch: %s != %s", fn.TypeOf(p.Args[0]), fn.Sig.Returns[0])
	case nr > 1:
		self.errf(bb, i, "multiple return values are not supported")
	}
}

func (self *_Verifier) checkCFG(fn *ir.Function, cfg *ir.ControlFlowGraph) {
	var fresh ir.ControlFlowGraph
	fresh.Compute(fn)

	for b := 0; b < len(fn.Blocks); b++ {
		if !sameEdges(cfg.Succs[b], fresh.Succs[b]) {
			self.errf(ir.Block(b), -1, "stale CFG: successors %v, terminators say %v", cfg.Succs[b], fresh.Succs[b])
		}
	}
}

// checkDomTree recomputes immediate dominators with gonum's flow package
// and compares. Self edges are skipped when mirroring the CFG: a block
// reached only through itself is already reached, so they never affect
// domination, and the graph type rejects them.
func (self *_Verifier) checkDomTree(fn *ir.Function, cfg *ir.ControlFlowGraph, domtree *DominatorTree) {
	g := simple.NewDirectedGraph()
	reach := cfg.PostOrder(fn)

	for _, b := range reach {
		if g.Node(int64(b)) == nil {
			g.AddNode(simple.Node(b))
		}
		for _, s := range cfg.Succs[b] {
			if s != b {
				g.SetEdge(g.NewEdge(simple.Node(b), simple.Node(s)))
			}
		}
	}

	dt := flow.Dominators(simple.Node(fn.Entry().ID), g)
	for _, b := range reach {
		want := graph.Node(nil)
		if b != fn.Entry().ID {
			want = dt.DominatorOf(int64(b))
		}
		switch got := domtree.Idom[b]; {
		case want == nil && got != ir.NoBlock:
			self.errf(b, -1, "stale dominator tree: idom %s, expected none", got)
		case want != nil && int64(got) != want.ID():
			self.errf(b, -1, "stale dominator tree: idom %s, expected bb%d", got, want.ID())
		}
	}
}

// verifyLocations checks that register allocation assigned a consistent
// location to every value the function still references.
func (self *_Verifier) verifyLocations(fn *ir.Function, regs isa.RegInfo) {
	for _, bb := range fn.Blocks {
		for i := range bb.Ins {
			p := &bb.Ins[i]
			if p.Def != ir.NoValue {
				self.checkLoc(fn, bb.ID, i, p.Def, regs)
			}
			for _, u := range p.Uses() {
				if u != ir.NoValue {
					self.checkLoc(fn, bb.ID, i, u, regs)
				}
			}
		}
	}
}

func (self *_Verifier) checkLoc(fn *ir.Function, bb ir.Block, i int, v ir.Value, regs isa.RegInfo) {
	switch loc := fn.LocOf(v); loc.Kind {
	case ir.LocNone:
		self.errf(bb, i, "value %s has no assigned location", v)
	case ir.LocReg:
		if int(loc.Idx) >= regs.NumRegs {
			self.errf(bb, i, "value %s assigned to out-of-range register %d", v, loc.Idx)
		}
	case ir.LocStack:
		if fn.Frame.Valid && loc.Idx >= fn.Frame.SpillSlots {
			self.errf(bb, i, "value %s assigned to out-of-range spill slot %d", v, loc.Idx)
		}
	}
}

func sameEdges(a []ir.Block, b []ir.Block) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		found := false
		for _, y := range b {
			if x == y {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
