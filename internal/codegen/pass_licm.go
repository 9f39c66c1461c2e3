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
	"github.com/forgecc/forge/internal/ir"
)

// licm hoists loop-invariant pure instructions into the loop preheader.
// A loop only has its instructions hoisted when it has a dedicated
// preheader: a single out-of-loop predecessor of the header ending in an
// unconditional jump. Loops entered some other way are left alone; the
// transform stays a pure win with no control-flow surgery.
func licm(fn *ir.Function, cfg *ir.ControlFlowGraph, loops *LoopAnalysis) {
	for li := range loops.Loops {
		lp := &loops.Loops[li]
		pre := preheaderOf(fn, cfg, lp)
		if pre == ir.NoBlock {
			continue
		}

		/* defining block per value, kept in sync while hoisting */
		defBlock := make(map[ir.Value]ir.Block)
		for _, bb := range fn.Blocks {
			for i := range bb.Ins {
				if d := bb.Ins[i].Def; d != ir.NoValue {
					defBlock[d] = bb.ID
				}
			}
		}

		invariant := func(p *ir.Instr) bool {
			if !p.Op.IsPure() || p.Def == ir.NoValue {
				return false
			}
			for _, u := range p.Uses() {
				if b, ok := defBlock[u]; ok && lp.Contains(b) {
					return false
				}
			}
			return true
		}

		/* sweep the loop body until nothing else moves; hoisting one
		 * instruction can make its users invariant too */
		ph := fn.Blocks[pre]
		for moved := true; moved; {
			moved = false
			for _, b := range lp.Blocks {
				bb := fn.Blocks[b]
				kept := bb.Ins[:0]
				for i := range bb.Ins {
					p := bb.Ins[i]
					if !invariant(&p) {
						kept = append(kept, p)
						continue
					}

					/* insert ahead of the preheader terminator */
					n := len(ph.Ins)
					ph.Ins = append(ph.Ins, ir.Instr{})
					copy(ph.Ins[n:], ph.Ins[n-1:])
					ph.Ins[n-1] = p
					defBlock[p.Def] = pre
					moved = true
				}
				bb.Ins = kept
			}
		}
	}
}

// preheaderOf finds the dedicated preheader of a loop, or NoBlock.
func preheaderOf(fn *ir.Function, cfg *ir.ControlFlowGraph, lp *Loop) ir.Block {
	pre := ir.NoBlock
	for _, p := range cfg.Preds[lp.Header] {
		if lp.Contains(p) {
			continue
		}
		if pre != ir.NoBlock {
			return ir.NoBlock // more than one entry edge
		}
		pre = p
	}
	if pre == ir.NoBlock {
		return ir.NoBlock
	}
	if t := fn.Blocks[pre].Term(); t == nil || t.Op != ir.OpJump {
		return ir.NoBlock
	}
	return pre
}
