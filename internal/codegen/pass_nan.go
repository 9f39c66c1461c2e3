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

// canonicalizeNaNs rewrites every float arithmetic result v into
// fcanon(v), so that any NaN produced at runtime collapses to the single
// canonical bit pattern regardless of the operand NaNs. Only the arithmetic
// ops can produce fresh NaNs; constants and moves cannot.
func canonicalizeNaNs(fn *ir.Function) {
	for _, bb := range fn.Blocks {
		out := bb.Ins[:0:0]
		for i := range bb.Ins {
			p := bb.Ins[i]
			out = append(out, p)
			if !isNaNProducer(&p) {
				continue
			}

			/* route all downstream uses through the canonical value */
			cv := fn.NewValue(p.Ty)
			replaceUses(fn, p.Def, cv)
			out = append(out, ir.Instr{
				Op:   ir.OpFcanon,
				Ty:   p.Ty,
				Def:  cv,
				Args: [2]ir.Value{p.Def, ir.NoValue},
				Pos:  p.Pos,
			})
		}
		bb.Ins = out
	}
}

func isNaNProducer(p *ir.Instr) bool {
	switch p.Op {
	case ir.OpFadd, ir.OpFmul:
		return p.Ty.IsFloat()
	default:
		return false
	}
}
