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

type _GvnKey struct {
	op   ir.Opcode
	cond ir.Cond
	ty   ir.Type
	x    ir.Value
	y    ir.Value
	imm  int64
}

// simpleGVN merges provably equal pure computations. The hash scope walks
// the dominator tree top-down, so a match is always a dominating definition
// and the replacement preserves SSA validity. Redundant instructions keep
// their (now unused) definitions for dead-code elimination to sweep.
func simpleGVN(fn *ir.Function, domtree *DominatorTree) {
	table := make(map[_GvnKey]ir.Value)

	var walk func(bb ir.Block)
	walk = func(bb ir.Block) {
		undo := make([]_GvnKey, 0, len(fn.Blocks[bb].Ins))

		for i := range fn.Blocks[bb].Ins {
			p := &fn.Blocks[bb].Ins[i]
			if !p.Op.IsPure() || p.Def == ir.NoValue {
				continue
			}

			key := _GvnKey{
				op:   p.Op,
				cond: p.Cond,
				ty:   p.Ty,
				x:    p.Args[0],
				y:    p.Args[1],
				imm:  p.Imm,
			}

			/* commutative ops hash with ordered operands */
			if commutative(p.Op) && key.x > key.y {
				key.x, key.y = key.y, key.x
			}

			if prev, ok := table[key]; ok {
				replaceUses(fn, p.Def, prev)
			} else {
				table[key] = p.Def
				undo = append(undo, key)
			}
		}

		/* recurse into the dominated blocks, then pop this scope */
		for _, c := range domtree.Children[bb] {
			walk(c)
		}
		for _, k := range undo {
			delete(table, k)
		}
	}
	walk(fn.Entry().ID)
}

func commutative(op ir.Opcode) bool {
	switch op {
	case ir.OpIadd, ir.OpImul, ir.OpBand, ir.OpBor, ir.OpBxor, ir.OpFadd, ir.OpFmul:
		return true
	default:
		return false
	}
}
