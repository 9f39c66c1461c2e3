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
	"math/bits"

	"github.com/forgecc/forge/internal/ir"
)

// defIndex maps every value to its defining instruction. Instruction
// pointers stay valid for the duration of one pass as long as no block
// grows its instruction slice.
func defIndex(fn *ir.Function) map[ir.Value]*ir.Instr {
	defs := make(map[ir.Value]*ir.Instr, fn.NumValues())
	for _, bb := range fn.Blocks {
		for i := range bb.Ins {
			if p := &bb.Ins[i]; p.Def != ir.NoValue {
				defs[p.Def] = p
			}
		}
	}
	return defs
}

// replaceUses rewrites every use of from into to, across the whole function.
func replaceUses(fn *ir.Function, from ir.Value, to ir.Value) {
	for _, bb := range fn.Blocks {
		for i := range bb.Ins {
			p := &bb.Ins[i]
			for k := range p.Args {
				if p.Args[k] == from {
					p.Args[k] = to
				}
			}
		}
	}
}

func asConst(defs map[ir.Value]*ir.Instr, v ir.Value) (int64, bool) {
	if v == ir.NoValue {
		return 0, false
	} else if p, ok := defs[v]; !ok {
		return 0, false
	} else if p.Op != ir.OpIconst && p.Op != ir.OpBconst {
		return 0, false
	} else {
		return p.Imm, true
	}
}

// rewrites an instruction into an integer constant in place
func intoConst(fn *ir.Function, p *ir.Instr, v int64) {
	op := ir.OpIconst
	if fn.TypeOf(p.Def) == ir.TBool {
		op = ir.OpBconst
	}
	p.Op = op
	p.Imm = v
	p.Args = [2]ir.Value{ir.NoValue, ir.NoValue}
	p.Sym = ""
}

// preopt is the pre-legalization rewrite pass: integer constant folding,
// algebraic identities and constant branch folding. It recomputes the CFG
// itself when it rewrites a terminator.
func preopt(fn *ir.Function, cfg *ir.ControlFlowGraph) {
	defs := defIndex(fn)
	branched := false

	for _, bb := range fn.Blocks {
		for i := range bb.Ins {
			p := &bb.Ins[i]
			x, xok := asConst(defs, p.Args[0])
			y, yok := asConst(defs, p.Args[1])

			switch p.Op {
			case ir.OpIadd:
				switch {
				case xok && yok:
					intoConst(fn, p, x+y)
				case yok && y == 0:
					replaceUses(fn, p.Def, p.Args[0])
				case xok && x == 0:
					replaceUses(fn, p.Def, p.Args[1])
				}

			case ir.OpIsub:
				if xok && yok {
					intoConst(fn, p, x-y)
				} else if yok && y == 0 {
					replaceUses(fn, p.Def, p.Args[0])
				}

			case ir.OpImul:
				switch {
				case xok && yok:
					intoConst(fn, p, x*y)
				case yok && y == 1:
					replaceUses(fn, p.Def, p.Args[0])
				case xok && x == 1:
					replaceUses(fn, p.Def, p.Args[1])
				}

			case ir.OpBand:
				if xok && yok {
					intoConst(fn, p, x&y)
				}

			case ir.OpBor:
				if xok && yok {
					intoConst(fn, p, x|y)
				}

			case ir.OpBxor:
				if xok && yok {
					intoConst(fn, p, x^y)
				}

			case ir.OpIshl:
				if xok && yok {
					intoConst(fn, p, x<<(uint64(y)&63))
				}

			case ir.OpUshr:
				if xok && yok {
					intoConst(fn, p, int64(uint64(x)>>(uint64(y)&63)))
				}

			case ir.OpPopcnt:
				if xok {
					intoConst(fn, p, int64(bits.OnesCount64(uint64(x))))
				}

			case ir.OpIcmp:
				if xok && yok {
					intoConst(fn, p, evalIcmp(p.Cond, x, y))
				}

			case ir.OpBrz:
				if xok {
					to := p.Targets[1]
					if x == 0 {
						to = p.Targets[0]
					}
					p.Op = ir.OpJump
					p.Args = [2]ir.Value{ir.NoValue, ir.NoValue}
					p.Targets = p.Targets[:1]
					p.Targets[0] = to
					branched = true
				}
			}
		}
	}

	/* terminator rewrites change the block graph */
	if branched {
		cfg.Compute(fn)
	}
}

func evalIcmp(cc ir.Cond, x int64, y int64) int64 {
	var r bool
	switch cc {
	case ir.CondEq:
		r = x == y
	case ir.CondNe:
		r = x != y
	case ir.CondLt:
		r = x < y
	case ir.CondLe:
		r = x <= y
	case ir.CondGt:
		r = x > y
	case ir.CondGe:
		r = x >= y
	case ir.CondULt:
		r = uint64(x) < uint64(y)
	case ir.CondULe:
		r = uint64(x) <= uint64(y)
	case ir.CondUGt:
		r = uint64(x) > uint64(y)
	case ir.CondUGe:
		r = uint64(x) >= uint64(y)
	}
	if r {
		return 1
	} else {
		return 0
	}
}
