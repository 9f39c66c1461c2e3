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

package amd64

import (
	"github.com/klauspost/cpuid/v2"

	"github.com/forgecc/forge/internal/ir"
	"github.com/forgecc/forge/internal/isa"
)

// width masks for the bit-counting expansion
const (
	_M1  = 0x5555555555555555
	_M2  = 0x3333333333333333
	_M4  = 0x0f0f0f0f0f0f0f0f
	_H01 = 0x0101010101010101
)

var typeBits = [...]int64{
	ir.TInt8:  8,
	ir.TInt16: 16,
	ir.TInt32: 32,
	ir.TInt64: 64,
	ir.TBool:  1,
	ir.TRef:   64,
}

// Legalize lowers fn into the subset of the IR this backend can encode.
// Boolean constants become integer constants, and on machines without the
// POPCNT extension bit counting is expanded into the carry-save sequence.
// Floating point and function parameters have no lowering here and fail
// with a LegalizeError.
func (self *Amd64) Legalize(fn *ir.Function, cfg *ir.ControlFlowGraph) error {
	if len(fn.Sig.Params) != 0 {
		return isa.LegalizeError{Target: self.Name(), Op: ir.OpInvalid, Note: "function parameters are not supported"}
	}
	if len(fn.Sig.Returns) > 1 {
		return isa.LegalizeError{Target: self.Name(), Op: ir.OpReturn, Note: "multiple return values are not supported"}
	}

	hw := cpuid.CPU.Has(cpuid.POPCNT)
	for _, bb := range fn.Blocks {
		for i := 0; i < len(bb.Ins); i++ {
			p := &bb.Ins[i]
			switch {
			case p.Ty.IsFloat() || p.Op == ir.OpFconst || p.Op == ir.OpFadd || p.Op == ir.OpFmul || p.Op == ir.OpFcanon:
				return isa.LegalizeError{Target: self.Name(), Op: p.Op, Note: "floating point is not supported"}
			case p.Op == ir.OpBconst:
				p.Op = ir.OpIconst
			case p.Op == ir.OpPopcnt && !hw:
				i = expandPopcnt(fn, bb, i)
			}
		}
	}

	/* lowering may have grown blocks, refresh the CFG */
	cfg.Compute(fn)
	return nil
}

// expandPopcnt replaces the bit-count at bb.Ins[i] with the classic
// carry-save adder sequence, and returns the index of its last instruction:
//
//	x -= (x >> 1) & 0x5555...
//	x  = (x & 0x3333...) + ((x >> 2) & 0x3333...)
//	x  = (x + (x >> 4)) & 0x0f0f...
//	x  = (x * 0x0101...) >> 56
func expandPopcnt(fn *ir.Function, bb *ir.BasicBlock, i int) int {
	old := bb.Ins[i]
	ty := old.Ty
	seq := make([]ir.Instr, 0, 20)

	ins := func(op ir.Opcode, x ir.Value, y ir.Value) ir.Value {
		d := fn.NewValue(ty)
		seq = append(seq, ir.Instr{Op: op, Ty: ty, Def: d, Args: [2]ir.Value{x, y}, Pos: old.Pos})
		return d
	}
	num := func(v int64) ir.Value {
		d := fn.NewValue(ty)
		seq = append(seq, ir.Instr{Op: ir.OpIconst, Ty: ty, Def: d, Imm: v, Pos: old.Pos})
		return d
	}

	/* narrow values may carry garbage above their width */
	x := old.Args[0]
	if w := typeBits[ty]; w < 64 {
		x = ins(ir.OpBand, x, num(int64(1)<<w-1))
	}

	m1, m2, m4 := num(_M1), num(_M2), num(_M4)
	c1, c2, c4, c56 := num(1), num(2), num(4), num(56)

	x = ins(ir.OpIsub, x, ins(ir.OpBand, ins(ir.OpUshr, x, c1), m1))
	x = ins(ir.OpIadd, ins(ir.OpBand, x, m2), ins(ir.OpBand, ins(ir.OpUshr, x, c2), m2))
	x = ins(ir.OpBand, ins(ir.OpIadd, x, ins(ir.OpUshr, x, c4)), m4)
	x = ins(ir.OpImul, x, num(_H01))

	/* the final shift writes the original def so downstream uses hold */
	seq = append(seq, ir.Instr{Op: ir.OpUshr, Ty: ty, Def: old.Def, Args: [2]ir.Value{x, c56}, Pos: old.Pos})

	/* splice the sequence over the original instruction */
	bb.Ins = append(bb.Ins[:i], append(seq, bb.Ins[i+1:]...)...)
	return i + len(seq) - 1
}
