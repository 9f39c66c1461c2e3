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
	"math"

	"github.com/chenzhuoyu/iasm/x86_64"

	"github.com/forgecc/forge/internal/ir"
)

// Spill slots live right below the frame pointer, callee-saved registers
// below them. Both are 8-byte cells addressed with negative displacements.
func slotDisp(slot int32) int32 {
	return -8 * (slot + 1)
}

func savedDisp(spills int32, k int) int32 {
	return -8 * (spills + int32(k) + 1)
}

// asm encodes one position-independent instruction sequence and appends
// the bytes to the current raw run. Everything position-dependent goes
// through the layout items instead.
func (self *_Relaxer) asm(emit func(*x86_64.Program)) {
	p := self.isa.arch.CreateProgram()
	emit(p)
	self.raw(p.Assemble(0))
	p.Free()
}

// raw appends literal machine code bytes, merging adjacent runs.
func (self *_Relaxer) raw(b []byte) {
	if n := len(self.items); n != 0 && self.items[n-1].kind == _KindRaw {
		self.items[n-1].raw = append(self.items[n-1].raw, b...)
		return
	}
	self.items = append(self.items, _Item{kind: _KindRaw, raw: append([]byte(nil), b...)})
}

// loadTo moves the value into the given hardware register.
func (self *_Relaxer) loadTo(p *x86_64.Program, v ir.Value, r x86_64.Register64) {
	switch loc := self.fn.LocOf(v); loc.Kind {
	case ir.LocReg:
		p.MOVQ(hwreg(loc.Idx), r)
	case ir.LocStack:
		p.MOVQ(Ptr(RBP, slotDisp(loc.Idx)), r)
	default:
		self.failf("value %s has no location", v)
	}
}

// operand yields a register holding the value, loading spilled values into
// the R11 scratch.
func (self *_Relaxer) operand(p *x86_64.Program, v ir.Value) x86_64.Register64 {
	switch loc := self.fn.LocOf(v); loc.Kind {
	case ir.LocReg:
		return hwreg(loc.Idx)
	case ir.LocStack:
		p.MOVQ(Ptr(RBP, slotDisp(loc.Idx)), R11)
		return R11
	default:
		self.failf("value %s has no location", v)
		return R11
	}
}

// store moves a register into the value's assigned location.
func (self *_Relaxer) store(p *x86_64.Program, r x86_64.Register64, v ir.Value) {
	switch loc := self.fn.LocOf(v); loc.Kind {
	case ir.LocReg:
		if hw := hwreg(loc.Idx); hw != r {
			p.MOVQ(r, hw)
		}
	case ir.LocStack:
		p.MOVQ(r, Ptr(RBP, slotDisp(loc.Idx)))
	default:
		self.failf("value %s has no location", v)
	}
}

// constant materializes an integer constant into the value's location,
// honoring the encoding hints left by instruction shrinking.
func (self *_Relaxer) constant(p *x86_64.Program, v *ir.Instr) {
	loc := self.fn.LocOf(v.Def)

	/* register destination */
	if loc.Kind == ir.LocReg {
		d := hwreg(loc.Idx)
		switch v.Hint {
		case ir.HintZeroIdiom:
			p.XORL(x86_64.Register32(d), x86_64.Register32(d))
		case ir.HintImm32:
			p.MOVL(v.Imm, x86_64.Register32(d))
		default:
			p.MOVQ(v.Imm, d)
		}
		return
	}

	/* spill slot destination */
	m := Ptr(RBP, slotDisp(loc.Idx))
	switch {
	case v.Hint == ir.HintZeroIdiom:
		p.MOVQ(0, m)
	case v.Imm >= math.MinInt32 && v.Imm <= math.MaxInt32:
		p.MOVQ(v.Imm, m)
	default:
		p.MOVQ(v.Imm, R10)
		p.MOVQ(R10, m)
	}
}

var setcc = [...]func(*x86_64.Program, interface{}) *x86_64.Instruction{
	ir.CondEq:  (*x86_64.Program).SETE,
	ir.CondNe:  (*x86_64.Program).SETNE,
	ir.CondLt:  (*x86_64.Program).SETL,
	ir.CondLe:  (*x86_64.Program).SETLE,
	ir.CondGt:  (*x86_64.Program).SETG,
	ir.CondGe:  (*x86_64.Program).SETGE,
	ir.CondULt: (*x86_64.Program).SETB,
	ir.CondULe: (*x86_64.Program).SETBE,
	ir.CondUGt: (*x86_64.Program).SETA,
	ir.CondUGe: (*x86_64.Program).SETAE,
}
